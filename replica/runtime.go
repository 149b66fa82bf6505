// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package replica

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/dkish/approxconsensus/codec"
	"github.com/dkish/approxconsensus/config"
	"github.com/dkish/approxconsensus/consensus"
	"github.com/dkish/approxconsensus/metrics"
	"github.com/dkish/approxconsensus/utils/wrappers"
)

// Runtime is the per-replica concurrent driver: Broadcaster, Receiver,
// ControllerHandler, and a Supervisor, each a goroutine. The consensus
// algorithm is guarded by caMu; RS has its own lock. Neither lock is held
// across an I/O boundary.
type Runtime struct {
	id  consensus.ReplicaID
	cfg config.Config

	caMu sync.Mutex
	ca   consensus.Algorithm
	rs   *RS
	cl   *CL

	peerSync  bool
	peerConns map[consensus.ReplicaID]net.Conn
	peerIn    net.PacketConn // periodic (UDP) inbound
	peerListener net.Listener // synchronous (TCP) inbound

	signaledController bool
	advanceCh           chan struct{}

	rand *rand.Rand

	metrics *metrics.ReplicaMetrics
	logger  *slog.Logger
}

// NewRuntime dials every peer (UDP if the algorithm broadcasts periodically,
// TCP if it requires synchronous event-driven broadcast per spec.md §4.4)
// and binds the inbound socket, returning a Runtime ready for Run.
func NewRuntime(
	cfg config.Config,
	id consensus.ReplicaID,
	ca consensus.Algorithm,
	rs *RS,
	cl *CL,
	selfListenAddr string,
	peerAddrs map[consensus.ReplicaID]string,
	m *metrics.ReplicaMetrics,
	logger *slog.Logger,
) (*Runtime, error) {
	rt := &Runtime{
		id:        id,
		cfg:       cfg,
		ca:        ca,
		rs:        rs,
		cl:        cl,
		peerSync:  ca.RequiresSynchronousUpdateBroadcast(),
		peerConns: make(map[consensus.ReplicaID]net.Conn, len(peerAddrs)),
		advanceCh: make(chan struct{}, 1),
		rand:      rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		metrics:   m,
		logger:    logger.With("replica_id", int(id)),
	}

	network := "udp"
	if rt.peerSync {
		network = "tcp"
	}
	for peerID, addr := range peerAddrs {
		if peerID == id {
			continue
		}
		conn, err := net.Dial(network, addr)
		if err != nil {
			rt.closeConns()
			return nil, err
		}
		rt.peerConns[peerID] = conn
	}

	if rt.peerSync {
		ln, err := net.Listen("tcp", selfListenAddr)
		if err != nil {
			rt.closeConns()
			return nil, err
		}
		rt.peerListener = ln
	} else {
		pc, err := net.ListenPacket("udp", selfListenAddr)
		if err != nil {
			rt.closeConns()
			return nil, err
		}
		rt.peerIn = pc
	}
	return rt, nil
}

func (rt *Runtime) closeConns() {
	for _, c := range rt.peerConns {
		c.Close()
	}
	if rt.peerIn != nil {
		rt.peerIn.Close()
	}
	if rt.peerListener != nil {
		rt.peerListener.Close()
	}
}

// Run starts the broadcaster, receiver, controller handler and supervisor,
// and blocks until RS latches done (normal termination, fault-injected
// crash, or a peer activity crashing).
func (rt *Runtime) Run() error {
	if rt.cfg.StartupGrace > 0 {
		time.Sleep(rt.cfg.StartupGrace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer rt.closeConns()

	var wg sync.WaitGroup
	var errs wrappers.Errs
	alive := make(map[string]bool, 3)
	var aliveMu sync.Mutex

	run := func(name string, fn func(context.Context) error) {
		aliveMu.Lock()
		alive[name] = true
		aliveMu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errs.Add(err)
			}
			aliveMu.Lock()
			alive[name] = false
			aliveMu.Unlock()
		}()
	}

	run("broadcaster", rt.runBroadcaster)
	run("receiver", rt.runReceiver)
	run("controllerHandler", rt.runControllerHandler)

	run("supervisor", func(ctx context.Context) error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if rt.rs.IsFinished() {
					return nil
				}
				aliveMu.Lock()
				crashed := !alive["broadcaster"] || !alive["receiver"] || !alive["controllerHandler"]
				aliveMu.Unlock()
				if crashed {
					rt.logger.Error("replica activity exited unexpectedly, latching done")
					rt.rs.MarkDone()
					return nil
				}
			}
		}
	})

	for !rt.rs.IsFinished() {
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	wg.Wait()
	return errs.Err()
}

func (rt *Runtime) selfSnapshot() (consensus.State, State) {
	rt.caMu.Lock()
	cs := rt.ca.GetInternalState()
	rt.caMu.Unlock()
	return cs, rt.rs.Snapshot()
}

// runBroadcaster drives periodic broadcast for variants that don't require
// synchronous mode; for variants that do, it instead calls broadcastNow each
// time handleFrame signals an advancement on advanceCh.
func (rt *Runtime) runBroadcaster(ctx context.Context) error {
	if rt.peerSync {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-rt.advanceCh:
				if rt.rs.IsFinished() {
					return nil
				}
				rt.broadcastNow()
			}
		}
	}

	period := time.Duration(rt.cfg.BroadcastPeriod) * time.Millisecond
	if period <= 0 {
		period = 50 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if rt.rs.IsFinished() {
				return nil
			}
			rt.broadcastNow()
		}
	}
}

func (rt *Runtime) broadcastNow() {
	cs, rs := rt.selfSnapshot()
	if rs.IsDown {
		return
	}
	m := consensus.PeerMessage{
		ID:            rt.id,
		P:             cs.P,
		V:             cs.V,
		W:             cs.W,
		IsDone:        cs.IsDone,
		TimeGenerated: time.Now().UnixNano() / int64(time.Millisecond),
	}
	if cs.Stage != 0 {
		stage := cs.Stage
		m.Stage = &stage
	}
	frame, err := codec.EncodeFrame(m)
	if err != nil {
		rt.logger.Error("encode broadcast frame", "error", err)
		return
	}

	if rs.IsByzantine && rt.ca.SupportsByzantine() {
		for peer, conn := range rt.peerConns {
			if rt.rand.Float64() > rt.cfg.ByzantineSendP {
				rt.writeTo(conn, frame, peer)
			}
		}
		return
	}
	for peer, conn := range rt.peerConns {
		rt.writeTo(conn, frame, peer)
	}
}

func (rt *Runtime) writeTo(conn net.Conn, frame []byte, peer consensus.ReplicaID) {
	if _, err := conn.Write(frame); err != nil {
		rt.logger.Warn("broadcast write failed", "peer", int(peer), "error", err)
	}
}

// runReceiver waits on the peer-facing socket, decodes, drops self-sent and
// simulated-loss messages, and folds the rest into the algorithm under the
// CA lock.
func (rt *Runtime) runReceiver(ctx context.Context) error {
	if rt.peerSync {
		return rt.runReceiverTCP(ctx)
	}
	return rt.runReceiverUDP(ctx)
}

func (rt *Runtime) runReceiverUDP(ctx context.Context) error {
	buf := make([]byte, codec.FrameSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if rt.rs.IsFinished() {
			return nil
		}
		rt.peerIn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := rt.peerIn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		rt.handleFrame(buf[:n])
	}
}

func (rt *Runtime) runReceiverTCP(ctx context.Context) error {
	msgCh := make(chan []byte, 64)
	go func() {
		for {
			conn, err := rt.peerListener.Accept()
			if err != nil {
				return
			}
			go rt.readFrames(conn, msgCh)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-msgCh:
			rt.handleFrame(frame)
		case <-time.After(2 * time.Second):
			if rt.rs.IsFinished() {
				return nil
			}
		}
	}
}

func (rt *Runtime) readFrames(conn net.Conn, out chan<- []byte) {
	defer conn.Close()
	buf := make([]byte, codec.FrameSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		out <- frame
	}
}

func (rt *Runtime) handleFrame(frame []byte) {
	var m consensus.PeerMessage
	if err := codec.DecodeFrame(frame, &m); err != nil {
		if rt.metrics != nil {
			rt.metrics.MessagesDrop.Inc()
		}
		return
	}
	if m.ID == rt.id {
		return
	}
	if rt.metrics != nil {
		rt.metrics.MessagesTotal.Inc()
	}
	if rt.rand.Float64() < rt.cfg.DropRate {
		if rt.metrics != nil {
			rt.metrics.MessagesDrop.Inc()
		}
		return
	}
	if rt.rs.Snapshot().IsDown {
		return
	}

	rt.caMu.Lock()
	advanced := rt.ca.ProcessMessage(m)
	cs := rt.ca.GetInternalState()
	rt.caMu.Unlock()

	if advanced {
		if rt.metrics != nil {
			rt.metrics.Advances.Inc()
			rt.metrics.Phase.Set(float64(cs.P))
		}
		report := newReport(cs, rt.rs.Snapshot(), false)
		report.TimeGenerated = time.Now().UnixNano() / int64(time.Millisecond)
		if err := rt.cl.Send(report); err != nil {
			rt.logger.Warn("send report to controller failed", "error", err)
		}
		if rt.peerSync {
			select {
			case rt.advanceCh <- struct{}{}:
			default:
			}
		}
	}

	if cs.IsDone {
		if rt.metrics != nil {
			rt.metrics.Done.Set(1)
		}
		if !rt.signaledController {
			rt.signaledController = true
			report := newReport(cs, rt.rs.Snapshot(), true)
			report.TimeGenerated = time.Now().UnixNano() / int64(time.Millisecond)
			if err := rt.cl.Send(report); err != nil {
				rt.logger.Warn("send done report to controller failed", "error", err)
			}
		}
	}
}

// runControllerHandler loops CL.Recv, applying fault commands to RS until
// RS latches done.
func (rt *Runtime) runControllerHandler(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if rt.rs.IsFinished() {
			return nil
		}
		cmd, err := rt.cl.Recv(time.Second)
		if err != nil {
			if err == ErrControllerTimeout {
				continue
			}
			if errors.Is(err, codec.ErrDataNotPresent) {
				rt.logger.Warn("dropping unreadable controller frame", "error", err)
				continue
			}
			rt.logger.Warn("controller connection lost, latching done", "error", err)
			rt.rs.MarkDone()
			return nil
		}
		rt.rs.Apply(cmd)
	}
}
