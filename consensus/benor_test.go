// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestBenOrTwoPhaseAgreement(t *testing.T) {
	a, err := New(nameBenOr, Params{
		N: 4, SelfID: 0, F: 1, Eps: 1,
		Rand: newFixedRand(nil, []bool{false}),
	})
	require.NoError(t, err)
	require.True(t, a.RequiresSynchronousUpdateBroadcast())

	// Stage 1: collect R, majority(0,1,1) = 1, w is published.
	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 1}))
	advanced := a.ProcessMessage(PeerMessage{ID: 2, P: 0, V: 1})
	require.True(t, advanced)
	require.Equal(t, 2, a.GetInternalState().Stage)

	one := 1.0
	// Stage 2: collect S, every published w agrees on 1 -> done.
	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, Stage: intPtr(2), W: &one}))
	require.True(t, a.ProcessMessage(PeerMessage{ID: 2, P: 0, Stage: intPtr(2), W: &one}))

	st := a.GetInternalState()
	require.True(t, a.IsDone())
	require.Equal(t, 1.0, st.V)
	require.Equal(t, Phase(1), st.P)
}

func TestBenOrBuffersFutureMessages(t *testing.T) {
	a, err := New(nameBenOr, Params{
		N: 4, SelfID: 0, F: 1, Eps: 1,
		Rand: newFixedRand(nil, []bool{false}),
	})
	require.NoError(t, err)

	// A message for a future phase is buffered, not applied immediately.
	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 1, V: 1}))
	require.Equal(t, Phase(0), a.GetInternalState().P)
}
