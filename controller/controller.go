// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package controller implements the simulation controller: fault-set
// selection, replica registration, per-replica fault injection, and the
// state collector that detects ε-agreement and terminates the fleet.
package controller

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/dkish/approxconsensus/codec"
	"github.com/dkish/approxconsensus/config"
	"github.com/dkish/approxconsensus/consensus"
	"github.com/dkish/approxconsensus/metrics"
	"github.com/dkish/approxconsensus/replica"
	"github.com/dkish/approxconsensus/utils/sampler"
	"github.com/dkish/approxconsensus/utils/wrappers"
)

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// replicaConn is the controller's end of one replica's command channel.
type replicaConn struct {
	id      consensus.ReplicaID
	conn    net.Conn
	faulty  bool
	done    bool
}

// CTL drives one simulation: it picks the faulty set, waits for every
// replica to register over TCP, spawns one fault driver per replica, and
// runs the state collector until every replica is marked done.
type CTL struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.ControllerMetrics

	tcpAddr string
	udpAddr string

	mu    sync.Mutex
	conns map[consensus.ReplicaID]*replicaConn

	collector *collector
}

// New constructs a controller bound to the given listen addresses but does
// not yet accept connections; call Run to execute one full simulation.
func New(cfg config.Config, tcpAddr, udpAddr string, m *metrics.ControllerMetrics, logger *slog.Logger) *CTL {
	return &CTL{
		cfg:     cfg,
		logger:  logger.With("component", "controller"),
		metrics: m,
		tcpAddr: tcpAddr,
		udpAddr: udpAddr,
		conns:   make(map[consensus.ReplicaID]*replicaConn),
	}
}

// Run executes one simulation end to end: accept N registrations, pick the
// faulty set, broadcast the start command, drive faults, collect reports
// until ε-agreement or full completion, then force-terminate and return the
// archived result.
func (c *CTL) Run() (*Result, error) {
	faulty, err := pickFaultySet(c.cfg)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", c.tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("controller: listen %s: %w", c.tcpAddr, err)
	}
	defer ln.Close()

	if err := c.acceptRegistrations(ln, faulty); err != nil {
		return nil, err
	}

	udpConn, err := net.ListenPacket("udp", c.udpAddr)
	if err != nil {
		return nil, fmt.Errorf("controller: listen %s: %w", c.udpAddr, err)
	}
	defer udpConn.Close()

	c.collector = newCollector(c.cfg, faulty, c.metrics, c.logger)

	firstStart := time.Now()
	c.broadcastStart()
	allStarted := time.Now()

	var wg sync.WaitGroup
	var errs wrappers.Errs
	for id, rc := range c.conns {
		wg.Add(1)
		go func(id consensus.ReplicaID, rc *replicaConn) {
			defer wg.Done()
			if err := c.runDriver(id, rc); err != nil {
				errs.Add(err)
			}
		}(id, rc)
	}

	collectDone := make(chan struct{})
	go func() {
		c.runCollector(udpConn)
		close(collectDone)
	}()

	<-collectDone
	c.forceTerminateAll()
	wg.Wait()

	return &Result{
		ServerStates:   c.collector.history,
		Params:         c.cfg,
		FirstStartTime: firstStart,
		AllStartTime:   allStarted,
		FaultyServers:  faulty,
	}, errs.Err()
}

// pickFaultySet chooses f replica IDs to be faulty, matching spec.md §4.5:
// Byzantine-capable algorithms make all f faulty replicas Byzantine;
// otherwise all f are permanently down.
func pickFaultySet(cfg config.Config) (map[consensus.ReplicaID]bool, error) {
	u := sampler.NewUniform()
	if err := u.Initialize(cfg.Servers); err != nil {
		return nil, fmt.Errorf("controller: initialize fault sampler: %w", err)
	}
	indices, ok := u.Sample(cfg.F)
	if !ok {
		return nil, fmt.Errorf("controller: cannot sample %d faulty replicas out of %d", cfg.F, cfg.Servers)
	}
	faulty := make(map[consensus.ReplicaID]bool, cfg.F)
	for _, idx := range indices {
		faulty[consensus.ReplicaID(idx)] = true
	}
	return faulty, nil
}

func (c *CTL) acceptRegistrations(ln net.Listener, faulty map[consensus.ReplicaID]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.cfg.Servers; i++ {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("controller: accept registration %d/%d: %w", i+1, c.cfg.Servers, err)
		}
		id := consensus.ReplicaID(i)
		c.conns[id] = &replicaConn{id: id, conn: conn, faulty: faulty[id]}
	}
	return nil
}

func (c *CTL) broadcastStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := replica.Command{IsDown: false, IsByzantine: false, IsPermanent: false}
	for id, rc := range c.conns {
		frame, err := codec.EncodeFrame(start)
		if err != nil {
			c.logger.Error("encode start command", "replica", int(id), "error", err)
			continue
		}
		if _, err := rc.conn.Write(frame); err != nil {
			c.logger.Warn("send start command failed", "replica", int(id), "error", err)
		}
		if c.metrics != nil {
			c.metrics.FaultCommands.Inc()
		}
	}
}

func (c *CTL) runCollector(udpConn net.PacketConn) {
	buf := make([]byte, codec.FrameSize)
	for {
		n, _, err := udpConn.ReadFrom(buf)
		if err != nil {
			return
		}
		var report replica.Report
		if err := codec.DecodeFrame(buf[:n], &report); err != nil {
			continue
		}
		allDone := c.collector.ingest(report)
		if c.metrics != nil {
			c.metrics.AgreementSpread.Set(c.collector.lastSpread())
			c.metrics.ReplicasDone.Set(float64(c.collector.doneCount()))
		}
		if allDone {
			return
		}
	}
}

// forceTerminateAll sends the final permanent-down command to every
// still-connected replica, per spec.md §4.5's "when every replica is marked
// done" step (also reached when terminate_on_p_agreement fires early).
func (c *CTL) forceTerminateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := replica.Command{IsDown: true, IsPermanent: true}
	frame, err := codec.EncodeFrame(cmd)
	if err != nil {
		c.logger.Error("encode terminate command", "error", err)
		return
	}
	for id, rc := range c.conns {
		if rc.done {
			continue
		}
		if _, err := rc.conn.Write(frame); err != nil {
			c.logger.Warn("terminate command failed", "replica", int(id), "error", err)
		}
		rc.conn.Close()
		rc.done = true
	}
}
