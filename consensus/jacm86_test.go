// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newJACM86ForTest(t *testing.T) Algorithm {
	t.Helper()
	a, err := New(nameJACM86, Params{
		N: 6, SelfID: 0, F: 1, Eps: 1, K: 10,
		Rand: newFixedRand([]float64{0}, nil),
	})
	require.NoError(t, err)
	return a
}

func TestJACM86TrimmedMeanOnQuorum(t *testing.T) {
	a := newJACM86ForTest(t)
	require.True(t, a.SupportsByzantine())

	require.False(t, a.ProcessMessage(PeerMessage{ID: 1, P: 0, V: 10}))
	require.False(t, a.ProcessMessage(PeerMessage{ID: 2, P: 0, V: 20}))
	require.False(t, a.ProcessMessage(PeerMessage{ID: 3, P: 0, V: 30}))
	require.True(t, a.ProcessMessage(PeerMessage{ID: 4, P: 0, V: 40}))

	st := a.GetInternalState()
	require.Equal(t, 20.0, st.V) // trim{0,10,20,30,40} drops 0 and 40, midpoint 20
	require.Equal(t, Phase(1), st.P)
	require.False(t, a.IsDone())
}

func TestJACM86RetiresDoneServer(t *testing.T) {
	a := newJACM86ForTest(t)

	done := 99.0
	advanced := a.ProcessMessage(PeerMessage{ID: 5, P: 0, V: done, IsDone: true})
	require.False(t, advanced) // only 2 of 5 needed R slots filled (self + id5)

	st := a.GetInternalState()
	require.True(t, st.DoneServers[5])
	require.Equal(t, done, *st.DoneValues[5])
}
