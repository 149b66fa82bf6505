// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides consensus metrics.
type Metrics struct {
	Registry prometheus.Registerer
}

// NewMetrics creates new metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Registry: reg,
	}
}

// Register registers a prometheus collector.
func (m *Metrics) Register(collector prometheus.Collector) error {
	return m.Registry.Register(collector)
}

// ReplicaMetrics exposes the per-replica gauges/counters scraped from a
// replica process: the last phase advanced into, whether the replica has
// latched done, and counts of dropped/accepted peer messages.
type ReplicaMetrics struct {
	Phase         prometheus.Gauge
	Done          prometheus.Gauge
	Advances      prometheus.Counter
	MessagesDrop  prometheus.Counter
	MessagesTotal prometheus.Counter
}

// NewReplicaMetrics creates and registers the replica gauges/counters on reg.
func NewReplicaMetrics(reg prometheus.Registerer, replicaID int) (*ReplicaMetrics, error) {
	labels := prometheus.Labels{"replica_id": strconv.Itoa(replicaID)}
	rm := &ReplicaMetrics{
		Phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "approxconsensus_replica_phase",
			Help:        "Current consensus phase of the replica.",
			ConstLabels: labels,
		}),
		Done: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "approxconsensus_replica_done",
			Help:        "1 if the replica has latched done, else 0.",
			ConstLabels: labels,
		}),
		Advances: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "approxconsensus_replica_advances_total",
			Help:        "Number of times process_message returned advanced=true.",
			ConstLabels: labels,
		}),
		MessagesDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "approxconsensus_replica_messages_dropped_total",
			Help:        "Number of peer messages dropped by drop_rate simulation or as undecodable frames.",
			ConstLabels: labels,
		}),
		MessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "approxconsensus_replica_messages_total",
			Help:        "Number of peer messages received.",
			ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{rm.Phase, rm.Done, rm.Advances, rm.MessagesDrop, rm.MessagesTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return rm, nil
}

// ControllerMetrics exposes fleet-wide gauges scraped from the controller:
// the live agreement spread and the count of replicas currently marked done.
type ControllerMetrics struct {
	AgreementSpread prometheus.Gauge
	ReplicasDone    prometheus.Gauge
	FaultCommands   prometheus.Counter
}

// NewControllerMetrics creates and registers the controller gauges/counters on reg.
func NewControllerMetrics(reg prometheus.Registerer) (*ControllerMetrics, error) {
	cm := &ControllerMetrics{
		AgreementSpread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "approxconsensus_controller_agreement_spread",
			Help: "max(v) - min(v) across the latest non-faulty replica reports at the same phase.",
		}),
		ReplicasDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "approxconsensus_controller_replicas_done",
			Help: "Number of replicas currently marked done.",
		}),
		FaultCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "approxconsensus_controller_fault_commands_total",
			Help: "Number of fault-status commands sent to replicas.",
		}),
	}
	for _, c := range []prometheus.Collector{cm.AgreementSpread, cm.ReplicasDone, cm.FaultCommands} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return cm, nil
}
