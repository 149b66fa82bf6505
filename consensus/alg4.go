// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

// algorithm4 implements the Ben-Or-like binary variant without Byzantine
// tolerance. R collects raw votes; once N-f are in, the majority (or -1 if
// none) is published into S. Once N-f S-values are in, v takes the first
// non -1 value and latches done if that value has support > f+1; only when
// every S-value is -1 does a fresh coin flip set v. A message strictly ahead in phase is a jump: it
// replaces v, resets R/S, and the phase advances to match.
type algorithm4 struct {
	n, f int
	self ReplicaID
	eps  float64
	rand RandSource
	v    float64
	w    *float64
	p    Phase
	r, s []*float64
	done bool
}

func newAlgorithm4(p Params) (Algorithm, error) {
	a := &algorithm4{
		n:    p.N,
		f:    p.F,
		self: p.SelfID,
		eps:  p.Eps,
		rand: p.Rand,
		v:    boolToFloat(p.Rand.Bit()),
	}
	a.reset()
	return a, nil
}

func (a *algorithm4) reset() {
	a.w = nil
	a.r = make([]*float64, a.n)
	a.r[a.self] = floatPtr(1)
	a.s = make([]*float64, a.n)
}

func (a *algorithm4) IsDone() bool                            { return a.done }
func (a *algorithm4) SupportsByzantine() bool                 { return false }
func (a *algorithm4) RequiresSynchronousUpdateBroadcast() bool { return false }

func (a *algorithm4) ProcessMessage(m PeerMessage) bool {
	if int(m.ID) < 0 || int(m.ID) >= a.n {
		return false
	}
	if m.P > a.p {
		a.p = m.P
		a.v = m.V
		a.reset()
		return true
	}
	if m.P == a.p {
		a.r[m.ID] = floatPtr(m.V)
		if m.W != nil {
			a.s[m.ID] = floatPtr(*m.W)
		}
	}

	filteredR := filterFloats(a.r)
	if len(filteredR) >= a.n-a.f && (a.w == nil || *a.w == -1) {
		if maj, ok := majority(filteredR); ok {
			a.w = floatPtr(maj)
		} else {
			a.w = floatPtr(-1)
		}
		a.s[m.ID] = floatPtr(*a.w)
	}

	filteredS := filterFloats(a.s)
	if len(filteredS) >= a.n-a.f {
		values := filterNonSentinel(filteredS)
		if len(values) > 0 {
			a.v = values[0]
			if countEqual(filteredS, a.v) > a.f+1 {
				a.done = true
			}
		} else {
			a.v = boolToFloat(a.rand.Bit())
		}
		a.p++
		a.reset()
		return true
	}
	return false
}

func (a *algorithm4) GetInternalState() State {
	return State{
		ID:     a.self,
		V:      a.v,
		P:      a.p,
		W:      a.w,
		IsDone: a.IsDone(),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func filterNonSentinel(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v != -1 {
			out = append(out, v)
		}
	}
	return out
}

func countEqual(vals []float64, target float64) int {
	n := 0
	for _, v := range vals {
		if v == target {
			n++
		}
	}
	return n
}
