// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "math"

// jacm86 implements the Byzantine trimmed-mean variant with peer retirement.
// Votes are kept in a fixed (pEnd+2) x N matrix, one row per phase, so a
// message for any past or future phase can always be recorded. A replica
// that announces is_done fills its column across every row with
// its final value, permanently retiring it from future trimming.
type jacm86 struct {
	n, f   int
	self   ReplicaID
	k, eps float64
	v      float64
	p      Phase
	rows   [][]*float64
	pEnd   float64
	byz    bool
	done   bool
	converged bool
	doneServers []bool
	doneValues  []*float64
}

func newJACM86(p Params) (Algorithm, error) {
	if p.N <= 5*p.F {
		return nil, ErrInvalidConfiguration
	}
	a := &jacm86{
		n:    p.N,
		f:    p.F,
		self: p.SelfID,
		k:    p.K,
		eps:  p.Eps,
		v:    p.Rand.Float64() * p.K,
		byz:  p.N > 5*p.F,
	}
	a.pEnd = math.Log(p.Eps/p.K) / math.Log(0.5)
	a.doneServers = make([]bool, a.n)
	a.doneValues = make([]*float64, a.n)
	a.rows = make([][]*float64, int(a.pEnd)+2)
	for i := range a.rows {
		a.rows[i] = make([]*float64, a.n)
	}
	a.rows[a.p][a.self] = floatPtr(a.v)
	return a, nil
}

func (a *jacm86) IsDone() bool                            { return float64(a.p) > a.pEnd }
func (a *jacm86) SupportsByzantine() bool                 { return a.byz }
func (a *jacm86) RequiresSynchronousUpdateBroadcast() bool { return true }

func (a *jacm86) ProcessMessage(m PeerMessage) bool {
	if int(m.ID) < 0 || int(m.ID) >= a.n {
		return false
	}

	if m.IsDone {
		a.doneServers[m.ID] = true
		a.doneValues[m.ID] = floatPtr(m.V)
		for _, row := range a.rows {
			row[m.ID] = floatPtr(m.V)
		}
	}

	if int(m.P) >= 0 && int(m.P) < len(a.rows) && a.rows[m.P][m.ID] == nil {
		a.rows[m.P][m.ID] = floatPtr(m.V)
	}

	if int(a.p) >= len(a.rows) {
		return false
	}
	filtered := filterFloats(a.rows[a.p])
	if len(filtered) < a.n-a.f {
		return false
	}
	if float64(a.p) > a.pEnd {
		return false
	}

	values := trimF(filtered, a.f)
	if len(values) == 0 {
		values = filtered
	}
	if anyBeyondHalfEps(values, a.v, a.eps) {
		a.v = trimmedMean(filtered, a.f)
	} else {
		a.converged = true
	}
	a.p++
	if int(a.p) < len(a.rows) {
		a.rows[a.p][a.self] = floatPtr(a.v)
	}
	return true
}

func (a *jacm86) GetInternalState() State {
	return State{
		ID:          a.self,
		V:           a.v,
		P:           a.p,
		Converged:   a.converged,
		DoneServers: a.doneServers,
		DoneValues:  a.doneValues,
		PEnd:        a.pEnd,
		IsDone:      a.IsDone(),
	}
}

func anyBeyondHalfEps(vals []float64, center, eps float64) bool {
	for _, v := range vals {
		if math.Abs(center-v) > eps/2.0 {
			return true
		}
	}
	return false
}
