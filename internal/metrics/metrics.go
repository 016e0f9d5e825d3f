// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics implements the proxy's Prometheus instrumentation: exchange
// throughput, pending-queue depth, decisions by kind, and forward latency,
// exposed on /metrics via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "jrpcproxy"
	proxySubsystem   = "proxy"
)

// Metrics holds every Prometheus collector jrpcproxy registers. It is
// constructed once at startup with New and handed to the engine's Handler,
// which records every series.
type Metrics struct {
	// ExchangesTotal counts exchanges recorded by the store, labeled by
	// direction (request, response).
	ExchangesTotal *prometheus.CounterVec

	// DecisionsTotal counts interception decisions by kind (allow, block,
	// complete).
	DecisionsTotal *prometheus.CounterVec

	// PendingDepth gauges the current size of the interception queue.
	PendingDepth prometheus.Gauge

	// ForwardLatencySeconds histograms upstream round-trip latency.
	ForwardLatencySeconds prometheus.Histogram

	// InterceptTimeoutsTotal counts interceptions that hit the decision
	// timeout rather than receiving an operator decision.
	InterceptTimeoutsTotal prometheus.Counter
}

// New registers and returns a fresh Metrics instance against reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global default
// registry; production code typically passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ExchangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: proxySubsystem,
				Name:      "exchanges_total",
				Help:      "Total messages recorded by the exchange store, by direction",
			},
			[]string{"direction"},
		),

		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: proxySubsystem,
				Name:      "decisions_total",
				Help:      "Total interception decisions, by kind",
			},
			[]string{"kind"},
		),

		PendingDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: proxySubsystem,
				Name:      "pending_depth",
				Help:      "Current number of requests awaiting an operator decision",
			},
		),

		ForwardLatencySeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: proxySubsystem,
				Name:      "forward_latency_seconds",
				Help:      "Upstream forward round-trip latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),

		InterceptTimeoutsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: proxySubsystem,
				Name:      "intercept_timeouts_total",
				Help:      "Total interceptions resolved by decision timeout rather than an operator",
			},
		),
	}
}

// Handler returns the promhttp handler for gatherer, suitable for mounting
// at /metrics via server.New's optional metricsHandler parameter.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
