// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"log/slog"
	"sync"

	"github.com/dkish/approxconsensus/config"
	"github.com/dkish/approxconsensus/consensus"
	"github.com/dkish/approxconsensus/metrics"
	"github.com/dkish/approxconsensus/replica"
)

// pAgreement records the phase at which ε-agreement was last observed and
// the latest time_generated among the contributing reports.
type pAgreement struct {
	phase consensus.Phase
	time  int64
}

// historyEntry is one report plus the order it arrived in, preserved
// append-only for the persisted archive.
type historyEntry struct {
	Report     replica.Report `cbor:"report"`
	ReceivedAt int64          `cbor:"received_at"`
}

// collector implements spec.md §4.5's state collector: it appends every
// report to a per-replica history, tracks each replica's most recent
// report, and detects ε-agreement among non-faulty replicas at a common
// phase, including the 10-consecutive-tick stability rule.
type collector struct {
	cfg     config.Config
	faulty  map[consensus.ReplicaID]bool
	metrics *metrics.ControllerMetrics
	logger  *slog.Logger

	mu          sync.Mutex
	history     map[consensus.ReplicaID][]historyEntry
	latest      map[consensus.ReplicaID]replica.Report
	doneServers map[consensus.ReplicaID]bool

	agreement   *pAgreement
	consecutive int
	spread      float64
	terminated  bool
}

func newCollector(cfg config.Config, faulty map[consensus.ReplicaID]bool, m *metrics.ControllerMetrics, logger *slog.Logger) *collector {
	return &collector{
		cfg:         cfg,
		faulty:      faulty,
		metrics:     m,
		logger:      logger.With("component", "collector"),
		history:     make(map[consensus.ReplicaID][]historyEntry, cfg.Servers),
		latest:      make(map[consensus.ReplicaID]replica.Report, cfg.Servers),
		doneServers: make(map[consensus.ReplicaID]bool, cfg.Servers),
	}
}

// ingest folds one report into the collector's state and returns whether
// every replica is now marked done.
func (c *collector) ingest(report replica.Report) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history[report.ID] = append(c.history[report.ID], historyEntry{Report: report, ReceivedAt: nowMillis()})
	c.latest[report.ID] = report
	if report.State.IsDone {
		c.doneServers[report.ID] = true
	}

	c.evaluateAgreement(report.P)

	if c.consecutive >= 10 && c.cfg.TerminateOnPAgreement && !c.terminated {
		c.terminated = true
		for id := consensus.ReplicaID(0); int(id) < c.cfg.Servers; id++ {
			c.doneServers[id] = true
		}
		c.logger.Info("terminating on stable p-agreement", "phase", c.agreement.phase)
	}

	return len(c.doneServers) >= c.cfg.Servers
}

// evaluateAgreement recomputes the ε-agreement set among non-faulty
// replicas whose latest known report is at phase p, per spec.md §4.5. When
// phase p has no quorum yet, an existing agreement is cleared if the latest
// non-faulty reports, across all phases, now spread wider than ε.
func (c *collector) evaluateAgreement(p consensus.Phase) {
	var values []float64
	var maxTime int64
	for id, rep := range c.latest {
		if c.faulty[id] {
			continue
		}
		if rep.P != p {
			continue
		}
		values = append(values, rep.V)
		if rep.TimeGenerated > maxTime {
			maxTime = rep.TimeGenerated
		}
	}

	if len(values) < c.cfg.Servers-c.cfg.F {
		if c.agreement == nil {
			return
		}
		var all []float64
		for id, rep := range c.latest {
			if !c.faulty[id] {
				all = append(all, rep.V)
			}
		}
		if maxFloat(all)-minFloat(all) > c.cfg.Eps {
			c.logger.Debug("p-agreement diverged", "phase", p)
			c.agreement = nil
			c.consecutive = 0
		}
		return
	}

	spread := maxFloat(values) - minFloat(values)
	c.spread = spread

	if spread <= c.cfg.Eps {
		c.agreement = &pAgreement{phase: p, time: maxTime}
		c.consecutive++
		return
	}

	if c.agreement != nil {
		c.logger.Debug("p-agreement diverged", "phase", p, "spread", spread)
		c.agreement = nil
		c.consecutive = 0
	}
}

func (c *collector) markDone(id consensus.ReplicaID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doneServers[id] = true
}

func (c *collector) isDone(id consensus.ReplicaID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doneServers[id]
}

func (c *collector) doneCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.doneServers)
}

func (c *collector) lastSpread() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spread
}

func maxFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
