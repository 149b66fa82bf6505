// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkish/approxconsensus/codec"
	"github.com/dkish/approxconsensus/config"
	"github.com/dkish/approxconsensus/consensus"
	"github.com/dkish/approxconsensus/replica"
)

func TestPickFaultySetPicksExactlyF(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Servers = 5
	cfg.F = 2

	faulty, err := pickFaultySet(cfg)
	require.NoError(t, err)
	require.Len(t, faulty, cfg.F)
	for id := range faulty {
		require.True(t, int(id) >= 0 && int(id) < cfg.Servers)
	}
}

func TestPickFaultySetRejectsTooManyFaulty(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Servers = 2
	cfg.F = 5

	_, err := pickFaultySet(cfg)
	require.Error(t, err)
}

// fakeReplica dials the controller's TCP listener and readCommand reads one
// command frame from it, enough surface to exercise acceptRegistrations,
// broadcastStart and forceTerminateAll without a real replica.Runtime.
func fakeReplica(t *testing.T, tcpAddr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", tcpAddr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readCommand(t *testing.T, conn net.Conn) replica.Command {
	t.Helper()
	buf := make([]byte, codec.FrameSize)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	var cmd replica.Command
	require.NoError(t, codec.DecodeFrame(buf[:n], &cmd))
	return cmd
}

func TestAcceptRegistrationsAssignsSequentialIDs(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Servers = 2
	cfg.F = 0

	c := New(cfg, "127.0.0.1:0", "127.0.0.1:0", nil, slog.Default())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	done := make(chan error, 1)
	go func() { done <- c.acceptRegistrations(ln, map[consensus.ReplicaID]bool{}) }()

	conn0 := fakeReplica(t, ln.Addr().String())
	conn1 := fakeReplica(t, ln.Addr().String())

	require.NoError(t, <-done)
	require.Len(t, c.conns, 2)
	require.Contains(t, c.conns, consensus.ReplicaID(0))
	require.Contains(t, c.conns, consensus.ReplicaID(1))

	c.broadcastStart()
	cmd0 := readCommand(t, conn0)
	cmd1 := readCommand(t, conn1)
	require.False(t, cmd0.IsDown)
	require.False(t, cmd1.IsDown)

	c.forceTerminateAll()
	termCmd := readCommand(t, conn0)
	require.True(t, termCmd.IsDown)
	require.True(t, termCmd.IsPermanent)
}
