// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newAlg1ForTest(t *testing.T) Algorithm {
	t.Helper()
	a, err := New(nameAlgorithm1, Params{
		N: 4, SelfID: 0, F: 1, Eps: 1, K: 10,
		Rand: newFixedRand([]float64{0}, nil),
	})
	require.NoError(t, err)
	return a
}

func TestAlgorithm1IgnoresWrongPhase(t *testing.T) {
	a := newAlg1ForTest(t)
	advanced := a.ProcessMessage(PeerMessage{ID: 1, P: 5, V: 10})
	require.False(t, advanced)
}

func TestAlgorithm1ClosesPhaseOnQuorum(t *testing.T) {
	a := newAlg1ForTest(t)

	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 10}))
	require.True(t, a.ProcessMessage(PeerMessage{ID: 2, P: 0, V: 20}))

	st := a.GetInternalState()
	require.Equal(t, 10.0, st.V) // midpoint of {0, 10, 20}
	require.Equal(t, Phase(1), st.P)
	require.False(t, st.Converged)
}

func TestAlgorithm1RejectsDuplicateSender(t *testing.T) {
	a := newAlg1ForTest(t)
	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 10}))
	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 999}))
}

func TestAlgorithm1InitialStateAndCapabilities(t *testing.T) {
	a := newAlg1ForTest(t)
	require.False(t, a.IsDone())
	require.False(t, a.SupportsByzantine())
	require.True(t, a.RequiresSynchronousUpdateBroadcast())
}
