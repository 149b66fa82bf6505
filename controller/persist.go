// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/dkish/approxconsensus/config"
	"github.com/dkish/approxconsensus/consensus"
)

// Result is the full simulation archive persisted to disk, matching
// spec.md §4.5's `{server_states, params, first_start_time, all_start_time,
// faulty_servers}` structure.
type Result struct {
	ServerStates   map[consensus.ReplicaID][]historyEntry `cbor:"server_states"`
	Params         config.Config                          `cbor:"params"`
	FirstStartTime time.Time                              `cbor:"first_start_time"`
	AllStartTime   time.Time                               `cbor:"all_start_time"`
	FaultyServers  map[consensus.ReplicaID]bool            `cbor:"faulty_servers"`
}

// descriptor builds the directory name spec.md §6 specifies:
// <algorithm>_nServers_<N>_f_<f>_eps_<ε>_byzantineP_<p>_bcastPeriod_<ms>.
func descriptor(cfg config.Config) string {
	return fmt.Sprintf(
		"%s_nServers_%d_f_%d_eps_%g_byzantineP_%g_bcastPeriod_%d",
		cfg.Algorithm, cfg.Servers, cfg.F, cfg.Eps, cfg.ByzantineP, cfg.BroadcastPeriod,
	)
}

// Persist CBOR-encodes result and writes it to
// data/<descriptor>/<uuid>.bin, creating the directory if needed.
func Persist(dataDir string, result *Result) (string, error) {
	dir := filepath.Join(dataDir, descriptor(result.Params))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("controller: create archive dir %s: %w", dir, err)
	}
	body, err := cbor.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("controller: cbor marshal result: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+".bin")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("controller: write archive %s: %w", path, err)
	}
	return path, nil
}
