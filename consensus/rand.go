// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import "math/rand"

// defaultRandSource wraps the top-level math/rand functions, matching the
// original simulator's use of numpy.random without a fixed per-replica seed.
type defaultRandSource struct{}

func (defaultRandSource) Float64() float64 { return rand.Float64() }
func (defaultRandSource) Bit() bool        { return rand.Intn(2) == 1 }

// NewSeededRandSource returns a RandSource backed by a seeded generator, for
// deterministic tests and reproducible simulation runs.
func NewSeededRandSource(seed int64) RandSource {
	return &seededRandSource{r: rand.New(rand.NewSource(seed))}
}

type seededRandSource struct {
	r *rand.Rand
}

func (s *seededRandSource) Float64() float64 { return s.r.Float64() }
func (s *seededRandSource) Bit() bool        { return s.r.Intn(2) == 1 }
