// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/dkish/approxconsensus/codec"
	"github.com/dkish/approxconsensus/consensus"
	"github.com/dkish/approxconsensus/replica"
)

// gammaDelay samples a Gamma(shape=3, scale=2) variate, the same
// distribution the original driver used via numpy.random.gamma(3, 2).
// gonum's distuv.Gamma parameterizes by rate, not scale, so Beta = 1/scale.
func gammaDelay(src rand.Source) time.Duration {
	g := distuv.Gamma{Alpha: 3, Beta: 0.5, Src: src}
	return time.Duration(g.Rand() * float64(time.Second))
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// runDriver drives one replica's fault-status commands for the lifetime of
// the simulation: a permanent-down driver for replicas chosen to crash, an
// unreliable/Byzantine driver for the rest.
func (c *CTL) runDriver(id consensus.ReplicaID, rc *replicaConn) error {
	src := rand.NewSource(time.Now().UnixNano() + int64(id)*7919)
	if rc.faulty && !c.cfg.SupportsByzantine() {
		return c.runPermanentDownDriver(id, rc, src)
	}
	return c.runUnreliableDriver(id, rc, src, rc.faulty && c.cfg.SupportsByzantine())
}

// runPermanentDownDriver waits a Gamma-sampled delay then crashes the
// replica permanently, per spec.md §4.5's permanent-down driver.
func (c *CTL) runPermanentDownDriver(id consensus.ReplicaID, rc *replicaConn, src rand.Source) error {
	delay := clamp(gammaDelay(src), 0, time.Second)
	time.Sleep(delay)
	if err := c.sendCommand(rc, replica.Command{IsDown: true, IsPermanent: true}); err != nil {
		c.markDone(id)
		return fmt.Errorf("controller: permanent-down driver for replica %d: %w", id, err)
	}
	c.markDone(id)
	return nil
}

// runUnreliableDriver toggles the replica's up/down polarity on a
// Gamma-sampled schedule, occasionally flipping it to Byzantine (and
// terminal, from the correct-peer convergence view) if it's eligible.
func (c *CTL) runUnreliableDriver(id consensus.ReplicaID, rc *replicaConn, src rand.Source, byzantineEligible bool) error {
	rng := rand.New(src)
	down := false
	isByzantine := false
	for {
		if c.isMarkedDone(id) {
			return nil
		}

		maxDelay := 10 * time.Second
		if down {
			maxDelay = time.Second
		}
		delay := clamp(gammaDelay(src), 0, maxDelay)
		time.Sleep(delay)

		down = !down
		if byzantineEligible && !isByzantine && rng.Float64() < c.cfg.ByzantineP {
			isByzantine = true
			if err := c.sendCommand(rc, replica.Command{IsDown: false, IsByzantine: true}); err != nil {
				c.markDone(id)
				return fmt.Errorf("controller: byzantine driver for replica %d: %w", id, err)
			}
			c.markDone(id)
			return nil
		}

		if err := c.sendCommand(rc, replica.Command{IsDown: down, IsByzantine: isByzantine}); err != nil {
			c.markDone(id)
			return fmt.Errorf("controller: unreliable driver for replica %d: %w", id, err)
		}
	}
}

func (c *CTL) sendCommand(rc *replicaConn, cmd replica.Command) error {
	frame, err := codec.EncodeFrame(cmd)
	if err != nil {
		return err
	}
	_, err = rc.conn.Write(frame)
	if c.metrics != nil && err == nil {
		c.metrics.FaultCommands.Inc()
	}
	return err
}

func (c *CTL) markDone(id consensus.ReplicaID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rc, ok := c.conns[id]; ok {
		rc.done = true
	}
	c.collector.markDone(id)
}

func (c *CTL) isMarkedDone(id consensus.ReplicaID) bool {
	return c.collector.isDone(id)
}
