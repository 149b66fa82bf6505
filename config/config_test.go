// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Valid())
	require.NoError(t, LocalConfig().Valid())
	require.NoError(t, StressConfig().Valid())
}

func TestValidRejectsUnknownAlgorithm(t *testing.T) {
	c := DefaultConfig()
	c.Algorithm = "not-a-real-algorithm"
	require.ErrorIs(t, c.Valid(), ErrUnknownAlgorithm)
}

func TestValidRejectsBadServers(t *testing.T) {
	c := DefaultConfig()
	c.Servers = 0
	require.ErrorIs(t, c.Valid(), ErrInvalidServers)
}

func TestValidRejectsBadProbability(t *testing.T) {
	c := DefaultConfig()
	c.ByzantineP = 1.5
	require.ErrorIs(t, c.Valid(), ErrInvalidProbability)
}

func TestValidRejectsBadPort(t *testing.T) {
	c := DefaultConfig()
	c.ServerPort = 70000
	require.ErrorIs(t, c.Valid(), ErrInvalidPort)
}

func TestSupportsByzantine(t *testing.T) {
	c := DefaultConfig()
	c.Algorithm = Algorithm3
	require.True(t, c.SupportsByzantine())
	c.Algorithm = Algorithm1
	require.False(t, c.SupportsByzantine())
}
