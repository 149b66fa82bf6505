// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "math"

// algorithm3 implements the Byzantine trimmed-mean variant (5f+1 quorum).
// Messages for the current phase land in R; messages strictly ahead of the
// current phase land in S as early stage-2 confirmations. A phase closes
// either when |R|+|S| >= N-f (normal progress) or when |S| alone reaches
// 2f+1 (a supermajority of peers has already raced ahead).
type algorithm3 struct {
	n, f   int
	self   ReplicaID
	k, eps float64
	v      float64
	p      Phase
	r, s   []*float64
	pEnd   float64
	byz    bool
}

func newAlgorithm3(p Params) (Algorithm, error) {
	if p.N < 5*p.F+1 {
		return nil, ErrInvalidConfiguration
	}
	a := &algorithm3{
		n:    p.N,
		f:    p.F,
		self: p.SelfID,
		k:    p.K,
		eps:  p.Eps,
		v:    float64(int(p.Rand.Float64() * (p.K + 1))),
		byz:  p.N >= 5*p.F+1,
	}
	a.reset()
	alpha := 0.5 * (float64(p.N-5*p.F) / (2 * float64(p.N-p.F)))
	a.pEnd = math.Log(p.Eps/p.K) / math.Log(alpha)
	return a, nil
}

func (a *algorithm3) reset() {
	a.r = make([]*float64, a.n)
	a.r[a.self] = floatPtr(1)
	a.s = make([]*float64, a.n)
}

func (a *algorithm3) IsDone() bool                            { return float64(a.p) > a.pEnd }
func (a *algorithm3) SupportsByzantine() bool                 { return a.byz }
func (a *algorithm3) RequiresSynchronousUpdateBroadcast() bool { return false }

func (a *algorithm3) ProcessMessage(m PeerMessage) bool {
	if int(m.ID) < 0 || int(m.ID) >= a.n {
		return false
	}
	if m.P > a.p && a.s[m.ID] == nil {
		a.s[m.ID] = floatPtr(m.V)
	} else if m.P == a.p && a.r[m.ID] == nil {
		a.r[m.ID] = floatPtr(m.V)
	}

	filteredR := filterFloats(a.r)
	filteredS := filterFloats(a.s)

	if len(filteredR)+len(filteredS) >= a.n-a.f {
		union := append(append([]float64(nil), filteredR...), filteredS...)
		a.v = trimmedMean(union, a.f)
		a.p++
		a.reset()
		return true
	}

	if len(filteredS) >= 2*a.f+1 {
		a.v = trimmedMean(filteredS, a.f)
		a.p++
		a.reset()
		return true
	}

	return false
}

func (a *algorithm3) GetInternalState() State {
	return State{
		ID:     a.self,
		V:      a.v,
		P:      a.p,
		PEnd:   a.pEnd,
		IsDone: a.IsDone(),
	}
}
