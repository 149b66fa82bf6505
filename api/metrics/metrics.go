// Copyright (C) 2020-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registerer is an interface for registering prometheus metrics.
type Registerer interface {
	prometheus.Registerer
}

// Registry is an interface for a prometheus registry.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// NewRegistry creates a new prometheus registry.
func NewRegistry() Registry {
	return prometheus.NewRegistry()
}

// MultiGatherer concatenates the metric families of its registered
// gatherers under one /metrics endpoint. Each binary registers only its own
// registry; the registration name is a map key and is not added as a label.
type MultiGatherer interface {
	prometheus.Gatherer

	// Register adds a new gatherer under name.
	Register(name string, gatherer prometheus.Gatherer) error
}

type multiGatherer struct {
	gatherers map[string]prometheus.Gatherer
}

// NewMultiGatherer creates a new multi-gatherer.
func NewMultiGatherer() MultiGatherer {
	return &multiGatherer{
		gatherers: make(map[string]prometheus.Gatherer),
	}
}

func (mg *multiGatherer) Register(name string, gatherer prometheus.Gatherer) error {
	mg.gatherers[name] = gatherer
	return nil
}

func (mg *multiGatherer) Gather() ([]*dto.MetricFamily, error) {
	var result []*dto.MetricFamily
	for _, g := range mg.gatherers {
		families, err := g.Gather()
		if err != nil {
			return nil, err
		}
		result = append(result, families...)
	}
	return result, nil
}
