// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Call outcomes recorded by Metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeActionError = "action_error"
	OutcomeRedirect    = "redirect"
	OutcomeNotFound    = "not_found"
	OutcomeBadRequest  = "bad_request"
	OutcomeError       = "error"
)

// Metrics records endpoint calls.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics creates Metrics named after namespace and registers them.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_calls_total",
				Help:      "Action calls by path and outcome.",
			},
			[]string{"action", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_call_duration_seconds",
				Help:      "Time to serve an action call, including streaming the result.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "action_calls_in_flight",
				Help:      "Action calls being served.",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.calls, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering metric")
		}
	}
	return m, nil
}

func (m *Metrics) start() func(action, outcome string) {
	if m == nil {
		return func(string, string) {}
	}
	m.inFlight.Inc()
	begin := time.Now()
	return func(action, outcome string) {
		m.inFlight.Dec()
		m.calls.WithLabelValues(action, outcome).Inc()
		m.duration.WithLabelValues(action).Observe(time.Since(begin).Seconds())
	}
}
