// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAlgorithm4LatchesDoneOnAgreement(t *testing.T) {
	a, err := New(nameAlgorithm4, Params{
		N: 4, SelfID: 0, F: 1, Eps: 1,
		Rand: newFixedRand(nil, []bool{false}),
	})
	require.NoError(t, err)
	require.False(t, a.SupportsByzantine())
	require.False(t, a.RequiresSynchronousUpdateBroadcast())

	one := 1.0
	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 1, W: &one}))
	require.False(t, a.ProcessMessage(PeerMessage{ID: 2, P: 0, V: 1, W: &one}))
	require.True(t, a.ProcessMessage(PeerMessage{ID: 3, P: 0, V: 1, W: &one}))

	st := a.GetInternalState()
	require.True(t, a.IsDone())
	require.Equal(t, 1.0, st.V)
	require.Equal(t, Phase(1), st.P)
}

func TestAlgorithm4JumpResetsPhase(t *testing.T) {
	a, err := New(nameAlgorithm4, Params{
		N: 4, SelfID: 0, F: 1, Eps: 1,
		Rand: newFixedRand(nil, []bool{false}),
	})
	require.NoError(t, err)

	advanced := a.ProcessMessage(PeerMessage{ID: 1, P: 3, V: 1})
	require.True(t, advanced)
	require.Equal(t, Phase(3), a.GetInternalState().P)
}
