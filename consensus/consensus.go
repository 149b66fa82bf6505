// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package consensus implements the six approximate-consensus state
// machines driven by the replica runtime. Each variant is a pure function
// of its internal state and an incoming peer report: it never performs
// I/O and never blocks.
package consensus

import "errors"

// Sentinel errors surfaced at construction time only; ProcessMessage never
// returns an error — malformed input is rejected by the decoder upstream.
var (
	// ErrInvalidConfiguration is returned when (N, f) does not satisfy the
	// selected variant's quorum prerequisite (N > 2f, N > 5f, ...).
	ErrInvalidConfiguration = errors.New("consensus: invalid configuration")
	// ErrUnknownAlgorithm is returned by New for a name outside the
	// enumerated set of six variants.
	ErrUnknownAlgorithm = errors.New("consensus: unknown algorithm")
)

// ReplicaID identifies one of the N replicas, in [0, N).
type ReplicaID int

// Phase is a non-decreasing, per-replica round counter.
type Phase int64

// PeerMessage is the payload a replica publishes about its own state and
// that peers fold into their own state via ProcessMessage.
type PeerMessage struct {
	ID             ReplicaID `json:"id"`
	P              Phase     `json:"p"`
	V              float64   `json:"v"`
	W              *float64  `json:"w,omitempty"`
	Stage          *int      `json:"phase,omitempty"` // 1 or 2, BenOr only
	IsDone         bool      `json:"is_done"`
	TimeGenerated  int64     `json:"time_generated"`
}

// State is a superset snapshot of a variant's internal state, used both for
// outbound peer broadcasts and controller reports. Fields not meaningful to
// a given variant are left at their zero value.
type State struct {
	ID          ReplicaID  `json:"id"`
	V           float64    `json:"v"`
	P           Phase      `json:"p"`
	W           *float64   `json:"w,omitempty"`
	Stage       int        `json:"phase,omitempty"`
	Converged   bool       `json:"converged"`
	DoneServers []bool     `json:"done_servers,omitempty"`
	DoneValues  []*float64 `json:"done_values,omitempty"`
	PEnd        float64    `json:"p_end"`
	IsDone      bool       `json:"is_done"`
}

// Algorithm is the shared contract for all six approximate-consensus
// variants. Implementations guard their own state; ProcessMessage,
// GetInternalState and IsDone are called under the replica's single CA
// mutex, never concurrently with each other.
type Algorithm interface {
	// ProcessMessage folds one peer report into the algorithm's state and
	// reports whether the state advanced (phase closed, jump accepted,
	// or a stage transition fired).
	ProcessMessage(m PeerMessage) bool
	// GetInternalState returns a snapshot for outbound messages/reports.
	GetInternalState() State
	// IsDone reports the termination predicate.
	IsDone() bool
	// SupportsByzantine reports whether this variant tolerates the
	// send-omission Byzantine model (affects replica runtime behavior).
	SupportsByzantine() bool
	// RequiresSynchronousUpdateBroadcast reports whether broadcasts must
	// be emitted synchronously on every advancement (TCP, event-driven)
	// instead of on the periodic UDP timer.
	RequiresSynchronousUpdateBroadcast() bool
}

// Params bundles the construction inputs shared by every variant.
type Params struct {
	N      int
	SelfID ReplicaID
	F      int
	Eps    float64
	K      float64
	// Rand supplies the initial proposal's randomness. Tests pass a seeded
	// source for determinism; production callers pass nil to use the
	// process-global source.
	Rand RandSource
}

// RandSource is the minimal randomness surface the six variants need:
// a uniform real in [0, 1) (variants scale it by K) and a single random bit.
type RandSource interface {
	Float64() float64
	Bit() bool
}

const (
	nameAlgorithm1 = "algorithm_1"
	nameAlgorithm2 = "algorithm_2"
	nameAlgorithm3 = "algorithm_3"
	nameAlgorithm4 = "algorithm_4"
	nameBenOr      = "BenOr"
	nameJACM86     = "JACM86"
)

// New constructs the named variant, validating its quorum prerequisite.
func New(name string, p Params) (Algorithm, error) {
	rnd := p.Rand
	if rnd == nil {
		rnd = defaultRandSource{}
	}
	p.Rand = rnd

	switch name {
	case nameAlgorithm1:
		return newAlgorithm1(p)
	case nameAlgorithm2:
		return newAlgorithm2(p)
	case nameAlgorithm3:
		return newAlgorithm3(p)
	case nameAlgorithm4:
		return newAlgorithm4(p)
	case nameBenOr:
		return newBenOr(p)
	case nameJACM86:
		return newJACM86(p)
	default:
		return nil, ErrUnknownAlgorithm
	}
}
