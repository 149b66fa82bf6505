// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apimetrics "github.com/dkish/approxconsensus/api/metrics"
	"github.com/dkish/approxconsensus/config"
	"github.com/dkish/approxconsensus/consensus"
	"github.com/dkish/approxconsensus/logging"
	"github.com/dkish/approxconsensus/metrics"
	"github.com/dkish/approxconsensus/replica"
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON config file (defaults to config.DefaultConfig)")
	id := flag.Int("id", -1, "This replica's ReplicaID, in [0, servers)")
	listen := flag.String("listen", "", "Address this replica listens on for peer traffic (default 127.0.0.1:server_port)")
	peers := flag.String("peers", "", "Comma-separated id=addr list of every peer, including self")
	controllerAddr := flag.String("controller", "", "Controller TCP command address (default 127.0.0.1:controller_port)")
	reportAddr := flag.String("report", "", "Controller UDP report address (default 127.0.0.1:controller_port+1)")
	metricsAddr := flag.String("metrics-addr", "", "If set, serve Prometheus /metrics on this address")
	flag.Parse()

	if *id < 0 {
		fmt.Fprintln(os.Stderr, "replica: -id is required")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replica: load config:", err)
		os.Exit(1)
	}
	if err := cfg.Valid(); err != nil {
		fmt.Fprintln(os.Stderr, "replica: invalid config:", err)
		os.Exit(1)
	}

	if *listen == "" {
		*listen = fmt.Sprintf("127.0.0.1:%d", cfg.ServerPort)
	}
	if *controllerAddr == "" {
		*controllerAddr = fmt.Sprintf("127.0.0.1:%d", cfg.ControllerPort)
	}
	if *reportAddr == "" {
		*reportAddr = fmt.Sprintf("127.0.0.1:%d", cfg.ControllerPort+1)
	}

	logger := logging.New("replica", cfg.LoggingServerAddr).With("replica_id", *id)

	peerAddrs, err := parsePeers(*peers)
	if err != nil {
		logger.Error("parse peers", "error", err)
		os.Exit(1)
	}

	reg := apimetrics.NewRegistry()
	rm, err := metrics.NewReplicaMetrics(reg, *id)
	if err != nil {
		logger.Error("register metrics", "error", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		mg := apimetrics.NewMultiGatherer()
		_ = mg.Register("replica", reg)
		go serveMetrics(*metricsAddr, mg, logger)
	}

	ca, err := consensus.New(cfg.Algorithm, consensus.Params{
		N:      cfg.Servers,
		SelfID: consensus.ReplicaID(*id),
		F:      cfg.F,
		Eps:    cfg.Eps,
		K:      cfg.K,
	})
	if err != nil {
		logger.Error("construct consensus algorithm", "error", err)
		os.Exit(1)
	}

	rs := replica.NewRS()
	cl, err := replica.Connect(*controllerAddr, *reportAddr)
	if err != nil {
		logger.Error("connect to controller", "error", err)
		os.Exit(1)
	}
	defer cl.Close()

	rt, err := replica.NewRuntime(cfg, consensus.ReplicaID(*id), ca, rs, cl, *listen, peerAddrs, rm, logger)
	if err != nil {
		logger.Error("construct runtime", "error", err)
		os.Exit(1)
	}

	logger.Info("replica starting", "algorithm", cfg.Algorithm, "servers", cfg.Servers)
	if err := rt.Run(); err != nil {
		logger.Error("replica exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("replica finished")
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

// parsePeers decodes "0=127.0.0.1:9100,1=127.0.0.1:9101" into a ReplicaID
// keyed address map.
func parsePeers(s string) (map[consensus.ReplicaID]string, error) {
	out := make(map[consensus.ReplicaID]string)
	if s == "" {
		return out, nil
	}
	for _, entry := range strings.Split(s, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed peer entry %q, want id=addr", entry)
		}
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("malformed peer id %q: %w", parts[0], err)
		}
		out[consensus.ReplicaID(idx)] = parts[1]
	}
	return out, nil
}

func serveMetrics(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", "error", err)
	}
}
