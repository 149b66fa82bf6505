// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "math"

// algorithm2 implements sum-normalize averaging with a jump update: a
// message strictly ahead in phase replaces v and resets R/S immediately.
// Within a phase, once N-f values are collected the new v is their
// arithmetic mean (the canonical reading adopted by the spec for the
// source's ambiguous Σvalues/|values| vs v/ΣR revisions), unless no
// collected value exceeds eps/2, in which case v is kept and converged is
// latched.
type algorithm2 struct {
	n, f     int
	self     ReplicaID
	k, eps   float64
	v        float64
	p        Phase
	r        []*float64 // presence flags keyed by slot
	values   []*float64 // reported values, self pre-filled
	pEnd     float64
	converged bool
}

func newAlgorithm2(p Params) (Algorithm, error) {
	if p.N <= 2*p.F {
		return nil, ErrInvalidConfiguration
	}
	a := &algorithm2{
		n:    p.N,
		f:    p.F,
		self: p.SelfID,
		k:    p.K,
		eps:  p.Eps,
		v:    p.Rand.Float64() * p.K,
	}
	a.reset()
	a.pEnd = math.Log(p.Eps/p.K) / math.Log(float64(p.F)/float64(p.N-p.F))
	return a, nil
}

func (a *algorithm2) reset() {
	a.r = make([]*float64, a.n)
	a.values = make([]*float64, a.n)
	a.values[a.self] = floatPtr(a.v)
	a.r[a.self] = floatPtr(1)
}

func (a *algorithm2) IsDone() bool                            { return float64(a.p) > a.pEnd }
func (a *algorithm2) SupportsByzantine() bool                 { return false }
func (a *algorithm2) RequiresSynchronousUpdateBroadcast() bool { return false }

func (a *algorithm2) ProcessMessage(m PeerMessage) bool {
	if int(m.ID) < 0 || int(m.ID) >= a.n {
		return false
	}
	if m.P > a.p {
		a.v = m.V
		a.p = m.P
		a.reset()
		return true
	}
	if m.P == a.p && a.r[m.ID] == nil {
		a.r[m.ID] = floatPtr(1)
		a.values[m.ID] = floatPtr(m.V)

		filledCount := countNonNil(a.r)
		if filledCount >= a.n-a.f {
			values := filterFloats(a.values)
			if anyAboveHalfEps(values, a.eps) {
				sum := 0.0
				for _, v := range values {
					sum += v
				}
				a.v = sum / float64(len(values))
			} else {
				a.converged = true
			}
			a.p++
			a.reset()
			return true
		}
	}
	return false
}

func (a *algorithm2) GetInternalState() State {
	return State{
		ID:        a.self,
		V:         a.v,
		P:         a.p,
		Converged: a.converged,
		PEnd:      a.pEnd,
		IsDone:    a.IsDone(),
	}
}

func countNonNil(vals []*float64) int {
	n := 0
	for _, v := range vals {
		if v != nil {
			n++
		}
	}
	return n
}

func anyAboveHalfEps(vals []float64, eps float64) bool {
	for _, v := range vals {
		if v > eps/2.0 {
			return true
		}
	}
	return false
}
