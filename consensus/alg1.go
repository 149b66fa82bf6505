// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "math"

// algorithm1 implements midpoint averaging: a phase closes once N-f peer
// values have been collected, and the new proposal is the midpoint of the
// max and min reported values. ALG1 does not accept jump updates — a
// message for a phase other than the current one is ignored, since the
// source never buffers or special-cases it.
type algorithm1 struct {
	n, f   int
	self   ReplicaID
	k, eps float64
	v      float64
	p      Phase
	r      []*float64
	pEnd   float64
	done   bool
}

func newAlgorithm1(p Params) (Algorithm, error) {
	if p.N <= 2*p.F {
		return nil, ErrInvalidConfiguration
	}
	a := &algorithm1{
		n:    p.N,
		f:    p.F,
		self: p.SelfID,
		k:    p.K,
		eps:  p.Eps,
		v:    p.Rand.Float64() * p.K,
	}
	a.pEnd = math.Log(p.Eps/p.K) / math.Log(float64(p.F)/float64(p.N-p.F))
	a.reset()
	return a, nil
}

func (a *algorithm1) reset() {
	a.r = make([]*float64, a.n)
	a.r[a.self] = floatPtr(a.v)
}

func (a *algorithm1) IsDone() bool                            { return float64(a.p) > a.pEnd }
func (a *algorithm1) SupportsByzantine() bool                 { return false }
func (a *algorithm1) RequiresSynchronousUpdateBroadcast() bool { return true }

func (a *algorithm1) ProcessMessage(m PeerMessage) bool {
	if m.P != a.p {
		return false
	}
	if int(m.ID) < 0 || int(m.ID) >= a.n {
		return false
	}
	if a.r[m.ID] != nil {
		return false
	}
	v := m.V
	a.r[m.ID] = &v

	filled := filterFloats(a.r)
	if len(filled) < a.n-a.f {
		return false
	}
	a.v = (maxFloat(filled) + minFloat(filled)) / 2.0
	a.done = allWithinEps(filled, a.v, a.eps/2.0)
	a.p++
	a.reset()
	return true
}

func (a *algorithm1) GetInternalState() State {
	return State{
		ID:        a.self,
		V:         a.v,
		P:         a.p,
		Converged: a.done,
		PEnd:      a.pEnd,
		IsDone:    a.IsDone(),
	}
}

func allWithinEps(vals []float64, center, halfEps float64) bool {
	for _, v := range vals {
		if math.Abs(v-center) > halfEps {
			return false
		}
	}
	return true
}
