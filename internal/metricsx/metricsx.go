// Copyright 2019 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package metricsx wraps a Prometheus registry with the counters and
// histograms the router and execution session record: dispatch volume,
// turn duration, turn outcome, and idle-wait outcome.
package metricsx

import (
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Provider owns the Prometheus registry and the kernel's named
// collectors, mirroring the teacher's HTTP-handler Provider shape but
// instrumenting turns instead of requests.
type Provider struct {
	registry *prometheus.Registry

	dispatchTotal   *prometheus.CounterVec
	turnDuration    prometheus.Histogram
	turnOutcome     *prometheus.CounterVec
	idleWaitOutcome *prometheus.CounterVec
}

// New returns a new Provider with every collector registered.
func New() *Provider {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())

	dispatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "othismo_dispatch_total",
			Help: "Count of envelopes dispatched by the router, by recipient resolution.",
		},
		[]string{"resolution"}, // "direct" or "fallback_root"
	)
	registry.MustRegister(dispatchTotal)

	turnDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "othismo_turn_duration_seconds",
		Help: "A histogram of execution session turn durations.",
	})
	registry.MustRegister(turnDuration)

	turnOutcome := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "othismo_turn_outcome_total",
			Help: "Count of execution session turns, by outcome.",
		},
		[]string{"outcome"}, // "committed" or "discarded"
	)
	registry.MustRegister(turnOutcome)

	idleWaitOutcome := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "othismo_idle_wait_outcome_total",
			Help: "Count of WaitForIdleness calls, by how they returned.",
		},
		[]string{"outcome"}, // "idle" or "timeout"
	)
	registry.MustRegister(idleWaitOutcome)

	return &Provider{
		registry:        registry,
		dispatchTotal:   dispatchTotal,
		turnDuration:    turnDuration,
		turnOutcome:     turnOutcome,
		idleWaitOutcome: idleWaitOutcome,
	}
}

// RecordDispatch increments the dispatch counter for the given resolution.
func (p *Provider) RecordDispatch(fallback bool) {
	resolution := "direct"
	if fallback {
		resolution = "fallback_root"
	}
	p.dispatchTotal.WithLabelValues(resolution).Inc()
}

// RecordTurn records a turn's duration and its outcome.
func (p *Provider) RecordTurn(d time.Duration, committed bool) {
	p.turnDuration.Observe(d.Seconds())
	outcome := "discarded"
	if committed {
		outcome = "committed"
	}
	p.turnOutcome.WithLabelValues(outcome).Inc()
}

// RecordIdleWait records whether WaitForIdleness returned because the
// router went idle or because the caller's max wait elapsed.
func (p *Provider) RecordIdleWait(idle bool) {
	outcome := "timeout"
	if idle {
		outcome = "idle"
	}
	p.idleWaitOutcome.WithLabelValues(outcome).Inc()
}

// Registry returns the underlying Prometheus registry, e.g. for exposing
// a /metrics endpoint from a future transport.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// MarshalJSON gathers the registry and returns it as JSON, following the
// teacher's All()/MarshalJSON convention for ad hoc inspection (e.g. from
// a debug CLI command) without standing up an HTTP server.
func (p *Provider) MarshalJSON() ([]byte, error) {
	families, err := p.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return json.Marshal(out)
}
