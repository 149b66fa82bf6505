// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package replica implements the per-replica runtime: fault status (RS),
// the controller link (CL), and the concurrent broadcaster/receiver/
// controller-handler/supervisor activities (RR) that drive a consensus.
// Algorithm toward agreement.
package replica

import "sync"

// Command is the fault-status instruction issued by the controller.
// IsPermanent with IsDown set means crash: the replica latches done and
// never clears it.
type Command struct {
	IsDown      bool `json:"is_down"`
	IsByzantine bool `json:"is_byzantine"`
	IsPermanent bool `json:"is_permanent"`
}

// State is the replica's fault-status snapshot, guarded separately from the
// consensus algorithm's own lock.
type State struct {
	IsDown      bool `json:"is_down"`
	IsByzantine bool `json:"is_byzantine"`
	IsDone      bool `json:"is_done"`
}

// RS holds the mutable fault status dictated by the controller. Its own
// mutex is disjoint from the consensus algorithm's lock; no method performs
// I/O.
type RS struct {
	mu    sync.RWMutex
	state State
}

// NewRS returns RS in its initial state: down until the controller sends
// the start command.
func NewRS() *RS {
	return &RS{state: State{IsDown: true}}
}

// Apply folds a controller command into the fault state. A permanent
// command latches done and is never cleared by a later command.
func (r *RS) Apply(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsDone {
		return
	}
	r.state.IsDown = cmd.IsDown
	r.state.IsByzantine = cmd.IsByzantine
	if cmd.IsPermanent {
		r.state.IsDone = true
	}
}

// Snapshot returns a copy of the current fault state.
func (r *RS) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsFinished reports whether this replica has latched done.
func (r *RS) IsFinished() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.IsDone
}

// MarkDone force-latches done, used by the supervisor when a peer activity
// crashes and by the controller handler when the controller connection is
// lost.
func (r *RS) MarkDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.IsDone = true
}
