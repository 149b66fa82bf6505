// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlgorithm3RejectsInsufficientQuorum(t *testing.T) {
	_, err := New(nameAlgorithm3, Params{N: 4, SelfID: 0, F: 1, Eps: 1, K: 10})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestAlgorithm3TrimmedMeanOnRQuorum(t *testing.T) {
	a, err := New(nameAlgorithm3, Params{
		N: 6, SelfID: 0, F: 1, Eps: 1, K: 10,
		Rand: newFixedRand([]float64{0}, nil),
	})
	require.NoError(t, err)
	require.True(t, a.SupportsByzantine())

	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 10}))
	require.False(t, a.ProcessMessage(PeerMessage{ID: 2, P: 0, V: 20}))
	require.False(t, a.ProcessMessage(PeerMessage{ID: 3, P: 0, V: 30}))
	require.True(t, a.ProcessMessage(PeerMessage{ID: 4, P: 0, V: 40}))

	st := a.GetInternalState()
	require.Equal(t, 20.0, st.V) // trim{1,10,20,30,40} drops 1 and 40, midpoint 20
	require.Equal(t, Phase(1), st.P)
	require.True(t, a.IsDone())
}

func TestAlgorithm3SClosesOnSupermajority(t *testing.T) {
	a, err := New(nameAlgorithm3, Params{
		N: 6, SelfID: 0, F: 1, Eps: 1, K: 10,
		Rand: newFixedRand([]float64{0}, nil),
	})
	require.NoError(t, err)

	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 1, V: 10}))
	require.False(t, a.ProcessMessage(PeerMessage{ID: 2, P: 1, V: 20}))
	require.True(t, a.ProcessMessage(PeerMessage{ID: 3, P: 1, V: 30}))

	st := a.GetInternalState()
	require.Equal(t, 20.0, st.V) // trim{10,20,30} with f=1 leaves only 20
	require.Equal(t, Phase(1), st.P)
}
