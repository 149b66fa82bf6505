// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkish/approxconsensus/codec"
	"github.com/dkish/approxconsensus/config"
	"github.com/dkish/approxconsensus/consensus"
)

// newFakeController stands in for CTL during a loopback test: it accepts
// TCP command connections (never sending anything) and drains UDP reports,
// just enough surface for CL.Connect/Send to succeed.
func newFakeController(t *testing.T) (tcpAddr, udpAddr string) {
	t.Helper()
	tcpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := tcpLn.Accept()
			if err != nil {
				return
			}
			go io.Copy(io.Discard, conn)
		}
	}()
	t.Cleanup(func() { tcpLn.Close() })

	udpLn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		buf := make([]byte, codec.FrameSize)
		for {
			if _, _, err := udpLn.ReadFrom(buf); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() { udpLn.Close() })

	return tcpLn.Addr().String(), udpLn.Addr().String()
}

func reservePort(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())
	return addr
}

func TestRuntimeBroadcastAndReceiveOverUDP(t *testing.T) {
	tcpAddr, udpAddr := newFakeController(t)

	addr0 := reservePort(t)
	addr1 := reservePort(t)
	peerAddrs := map[consensus.ReplicaID]string{0: addr0, 1: addr1}

	cfg := config.DefaultConfig()
	cfg.Algorithm = config.Algorithm2
	logger := slog.Default()

	alg0, err := consensus.New(config.Algorithm2, consensus.Params{N: 2, SelfID: 0, F: 0, Eps: 1, K: 10, Rand: newTestRand(0)})
	require.NoError(t, err)
	alg1, err := consensus.New(config.Algorithm2, consensus.Params{N: 2, SelfID: 1, F: 0, Eps: 1, K: 10, Rand: newTestRand(0.5)})
	require.NoError(t, err)

	rs0, rs1 := NewRS(), NewRS()
	rs0.Apply(Command{IsDown: false})
	rs1.Apply(Command{IsDown: false})

	cl0, err := Connect(tcpAddr, udpAddr)
	require.NoError(t, err)
	t.Cleanup(func() { cl0.Close() })
	cl1, err := Connect(tcpAddr, udpAddr)
	require.NoError(t, err)
	t.Cleanup(func() { cl1.Close() })

	rt0, err := NewRuntime(cfg, 0, alg0, rs0, cl0, addr0, peerAddrs, nil, logger)
	require.NoError(t, err)
	t.Cleanup(rt0.closeConns)
	rt1, err := NewRuntime(cfg, 1, alg1, rs1, cl1, addr1, peerAddrs, nil, logger)
	require.NoError(t, err)
	t.Cleanup(rt1.closeConns)

	// replica 0 broadcasts its initial state; replica 1 should receive and
	// fold it into its own algorithm.
	rt0.broadcastNow()

	buf := make([]byte, codec.FrameSize)
	require.NoError(t, rt1.peerIn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := rt1.peerIn.ReadFrom(buf)
	require.NoError(t, err)

	rt1.handleFrame(buf[:n])

	st := alg1.GetInternalState()
	require.Equal(t, consensus.ReplicaID(1), st.ID)
	require.Equal(t, consensus.Phase(1), st.P)
	require.Equal(t, 2.5, st.V) // mean of {5 (self), 0 (peer 0)}
}

// testRand is a minimal deterministic consensus.RandSource for runtime
// tests, distinct from the package-private fixedRand used by the algorithm
// unit tests.
type testRand struct{ seed float64 }

func newTestRand(seed float64) *testRand { return &testRand{seed: seed} }
func (r *testRand) Float64() float64     { return r.seed }
func (r *testRand) Bit() bool            { return r.seed > 0 }
