// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newAlg2ForTest(t *testing.T) Algorithm {
	t.Helper()
	a, err := New(nameAlgorithm2, Params{
		N: 4, SelfID: 0, F: 1, Eps: 1, K: 10,
		Rand: newFixedRand([]float64{0}, nil),
	})
	require.NoError(t, err)
	return a
}

func TestAlgorithm2MeanUpdateOnQuorum(t *testing.T) {
	a := newAlg2ForTest(t)

	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 10}))
	require.True(t, a.ProcessMessage(PeerMessage{ID: 2, P: 0, V: 20}))

	st := a.GetInternalState()
	require.Equal(t, 10.0, st.V) // mean of {0, 10, 20}
	require.Equal(t, Phase(1), st.P)
	require.False(t, st.Converged)
}

func TestAlgorithm2JumpUpdate(t *testing.T) {
	a := newAlg2ForTest(t)

	advanced := a.ProcessMessage(PeerMessage{ID: 1, P: 5, V: 42})
	require.True(t, advanced)

	st := a.GetInternalState()
	require.Equal(t, 42.0, st.V)
	require.Equal(t, Phase(5), st.P)
}

func TestAlgorithm2ConvergesWhenClose(t *testing.T) {
	a, err := New(nameAlgorithm2, Params{
		N: 4, SelfID: 0, F: 1, Eps: 10, K: 10,
		Rand: newFixedRand([]float64{0}, nil),
	})
	require.NoError(t, err)

	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 0.1}))
	require.True(t, a.ProcessMessage(PeerMessage{ID: 2, P: 0, V: 0.1}))

	require.True(t, a.GetInternalState().Converged)
}
