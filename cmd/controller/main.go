// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkish/approxconsensus/api/health"
	apimetrics "github.com/dkish/approxconsensus/api/metrics"
	"github.com/dkish/approxconsensus/config"
	"github.com/dkish/approxconsensus/controller"
	"github.com/dkish/approxconsensus/logging"
	"github.com/dkish/approxconsensus/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON config file (defaults to config.DefaultConfig)")
	tcpAddr := flag.String("tcp-addr", "", "TCP address replicas register commands on (default 127.0.0.1:controller_port)")
	udpAddr := flag.String("udp-addr", "", "UDP address replicas send reports to (default 127.0.0.1:controller_port+1)")
	dataDir := flag.String("data-dir", "data", "Directory archives are persisted under")
	metricsAddr := flag.String("metrics-addr", "", "If set, serve Prometheus /metrics and /healthz on this address")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "controller: load config:", err)
		os.Exit(1)
	}
	if err := cfg.Valid(); err != nil {
		fmt.Fprintln(os.Stderr, "controller: invalid config:", err)
		os.Exit(1)
	}

	if *tcpAddr == "" {
		*tcpAddr = fmt.Sprintf("127.0.0.1:%d", cfg.ControllerPort)
	}
	if *udpAddr == "" {
		*udpAddr = fmt.Sprintf("127.0.0.1:%d", cfg.ControllerPort+1)
	}

	logger := logging.New("controller", cfg.LoggingServerAddr)

	reg := apimetrics.NewRegistry()
	cm, err := metrics.NewControllerMetrics(reg)
	if err != nil {
		logger.Error("register metrics", "error", err)
		os.Exit(1)
	}

	h := &healthState{}
	if *metricsAddr != "" {
		mg := apimetrics.NewMultiGatherer()
		_ = mg.Register("controller", reg)
		go serveOps(*metricsAddr, mg, h, logger)
	}

	for sim := 0; sim < cfg.NSimulations; sim++ {
		simLogger := logger.With("simulation", sim)
		simLogger.Info("starting simulation", "algorithm", cfg.Algorithm, "servers", cfg.Servers, "f", cfg.F)

		h.setReady(false)
		ctl := controller.New(cfg, *tcpAddr, *udpAddr, cm, simLogger)
		h.setReady(true)

		result, err := ctl.Run()
		if err != nil {
			simLogger.Error("simulation failed", "error", err)
			continue
		}

		path, err := controller.Persist(*dataDir, result)
		if err != nil {
			simLogger.Error("persist archive", "error", err)
			continue
		}
		simLogger.Info("simulation complete", "archive", path)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg config.Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return config.Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

// healthState is set ready once a simulation's controller is constructed,
// just before it starts accepting replica registrations, and stays ready for
// the rest of that simulation; it backs the /healthz endpoint.
type healthState struct {
	mu    sync.Mutex
	ready bool
}

func (h *healthState) setReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

func (h *healthState) HealthCheck(context.Context) (interface{}, error) {
	h.mu.Lock()
	ready := h.ready
	h.mu.Unlock()
	return health.Report{Healthy: true, Checks: []health.Check{
		{Name: "accepting_registrations", Healthy: ready},
	}}, nil
}

func serveOps(addr string, gatherer prometheus.Gatherer, h *healthState, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report, _ := h.HealthCheck(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("ops server exited", "error", err)
	}
}
