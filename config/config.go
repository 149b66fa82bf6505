// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config decodes and validates the JSON simulation parameters
// shared by the replica and controller binaries.
package config

import "time"

// Algorithm names understood by the consensus factory.
const (
	Algorithm1 = "algorithm_1"
	Algorithm2 = "algorithm_2"
	Algorithm3 = "algorithm_3"
	Algorithm4 = "algorithm_4"
	AlgorithmBenOr   = "BenOr"
	AlgorithmJACM86  = "JACM86"
)

// Config is the JSON simulation configuration loaded by both binaries.
// Field names follow the wire-level JSON keys from the original tooling.
type Config struct {
	Algorithm string `json:"algorithm"`
	Servers   int    `json:"servers"`
	F         int    `json:"f"`
	K         float64 `json:"K"`
	Eps       float64 `json:"eps"`

	ByzantineP      float64 `json:"byzantine_p"`
	ByzantineSendP  float64 `json:"byzantine_send_p"`
	DropRate        float64 `json:"drop_rate"`

	BroadcastPeriod  int `json:"broadcast_period"`
	ServerPort       int `json:"server_port"`
	ControllerPort   int `json:"controller_port"`

	NSimulations          int  `json:"n_simulations"`
	TerminateOnPAgreement bool `json:"terminate_on_p_agreement"`

	// LoggingServerAddr optionally mirrors log records to a TCP collector,
	// the way the original server.py forwarded to a SocketHandler. Left
	// empty, only the local structured logger is used.
	LoggingServerAddr string `json:"logging_server_addr,omitempty"`

	// StartupGrace delays a replica's runtime goroutines after connect, to
	// let sockets settle the way the original server.py's initial
	// time.sleep(1) did. Zero means no delay.
	StartupGrace time.Duration `json:"startup_grace,omitempty"`
}

// DefaultConfig returns the baseline smoke-test configuration: N=4 with a
// fault budget of f=1, ALG1 midpoint averaging.
func DefaultConfig() Config {
	return Config{
		Algorithm:             Algorithm1,
		Servers:               4,
		F:                     1,
		K:                     100,
		Eps:                   0.1,
		ByzantineP:            0.1,
		ByzantineSendP:        0.5,
		DropRate:              0.0,
		BroadcastPeriod:       50,
		ServerPort:            9001,
		ControllerPort:        9000,
		NSimulations:          1,
		TerminateOnPAgreement: true,
		StartupGrace:          time.Second,
	}
}

// LocalConfig returns a configuration tuned for fast, single-machine runs:
// short broadcast periods, no startup grace.
func LocalConfig() Config {
	c := DefaultConfig()
	c.BroadcastPeriod = 10
	c.StartupGrace = 0
	return c
}

// StressConfig returns a configuration that exercises Byzantine fault
// injection with a larger fleet.
func StressConfig() Config {
	c := DefaultConfig()
	c.Algorithm = Algorithm3
	c.Servers = 13
	c.F = 2
	c.ByzantineP = 0.3
	c.ByzantineSendP = 0.4
	c.DropRate = 0.05
	return c
}

// Valid validates the configuration's structural constraints. Per-algorithm
// quorum prerequisites (N > 2f, N > 5f, ...) are validated separately by the
// consensus factory, since they are algorithm-specific.
func (c Config) Valid() error {
	switch c.Algorithm {
	case Algorithm1, Algorithm2, Algorithm3, Algorithm4, AlgorithmBenOr, AlgorithmJACM86:
	default:
		return ErrUnknownAlgorithm
	}
	if c.Servers < 1 {
		return ErrInvalidServers
	}
	if c.F < 0 {
		return ErrInvalidF
	}
	if c.K <= 0 {
		return ErrInvalidK
	}
	if c.Eps <= 0 {
		return ErrInvalidEps
	}
	for _, p := range []float64{c.ByzantineP, c.ByzantineSendP, c.DropRate} {
		if p < 0 || p > 1 {
			return ErrInvalidProbability
		}
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return ErrInvalidPort
	}
	if c.ControllerPort <= 0 || c.ControllerPort > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// SupportsByzantine reports whether the selected algorithm models
// send-omission Byzantine behavior, mirroring consensus.Algorithm's
// capability flag without importing the consensus package.
func (c Config) SupportsByzantine() bool {
	switch c.Algorithm {
	case Algorithm3, AlgorithmJACM86:
		return true
	default:
		return false
	}
}
