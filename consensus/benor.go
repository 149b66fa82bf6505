// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

// benOr implements the two-phase binary Ben-Or protocol. Stage 1 collects R
// (raw votes) and computes w = majority(R) or -1; stage 2 collects S
// (published w's) and, on N-f replies, adopts the first non -1 value
// (latching done if it has support > f), or takes a fresh coin flip when
// every reply is -1. Messages strictly ahead of
// the current phase are buffered per-phase and drained at the start of the
// next ProcessMessage call once the local phase catches up.
type benOr struct {
	n, f   int
	self   ReplicaID
	rand   RandSource
	v      float64
	w      *float64
	p      Phase
	stage  int
	r, s   []*float64
	done   bool
	futures map[Phase][]PeerMessage
}

func newBenOr(p Params) (Algorithm, error) {
	if p.N <= 2*p.F {
		return nil, ErrInvalidConfiguration
	}
	a := &benOr{
		n:       p.N,
		f:       p.F,
		self:    p.SelfID,
		rand:    p.Rand,
		v:       boolToFloat(p.Rand.Bit()),
		stage:   1,
		futures: make(map[Phase][]PeerMessage),
	}
	a.reset()
	return a, nil
}

func (a *benOr) reset() {
	a.r = make([]*float64, a.n)
	a.s = make([]*float64, a.n)
	a.r[a.self] = floatPtr(a.v)
	if a.w != nil {
		a.s[a.self] = floatPtr(*a.w)
	}
	a.w = nil
}

func (a *benOr) IsDone() bool                            { return a.done }
func (a *benOr) SupportsByzantine() bool                 { return false }
func (a *benOr) RequiresSynchronousUpdateBroadcast() bool { return true }

func (a *benOr) drainFutures() {
	queued := a.futures[a.p]
	if len(queued) == 0 {
		return
	}
	delete(a.futures, a.p)
	for _, fm := range queued {
		a.r[fm.ID] = floatPtr(fm.V)
		if fm.W != nil {
			a.s[fm.ID] = floatPtr(*fm.W)
		}
	}
}

func (a *benOr) ProcessMessage(m PeerMessage) bool {
	if int(m.ID) < 0 || int(m.ID) >= a.n {
		return false
	}
	a.drainFutures()

	if m.P > a.p {
		a.futures[m.P] = append(a.futures[m.P], m)
	}
	stage := 1
	if m.Stage != nil {
		stage = *m.Stage
	}
	if m.P == a.p && stage == 1 {
		a.r[m.ID] = floatPtr(m.V)
	} else if m.P == a.p && stage == 2 {
		if m.W != nil {
			a.s[m.ID] = floatPtr(*m.W)
		}
	}

	advanced := false
	switch {
	case a.stage == 1 && countNonNil(a.r) >= a.n-a.f:
		if maj, ok := majority(filterFloats(a.r)); ok {
			a.w = floatPtr(maj)
		} else {
			a.w = floatPtr(-1)
		}
		a.s[a.self] = floatPtr(*a.w)
		a.stage = 2
		advanced = true
	case a.stage == 2 && countNonNil(a.s) >= a.n-a.f:
		values := filterNonSentinel(filterFloats(a.s))
		if len(values) > 0 {
			a.v = values[0]
			if countEqual(filterFloats(a.s), a.v) > a.f {
				a.done = true
			}
		} else {
			a.v = boolToFloat(a.rand.Bit())
		}
		a.stage = 1
		a.p++
		a.reset()
		return true
	}
	return advanced
}

func (a *benOr) GetInternalState() State {
	return State{
		ID:     a.self,
		V:      a.v,
		P:      a.p,
		W:      a.w,
		Stage:  a.stage,
		IsDone: a.IsDone(),
	}
}
