// Streamweaver - IPTV Orchestration and Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamweaver

// Package metrics exposes Prometheus collectors for the pipeline, the
// prober, the bandwidth tracker and the upstream client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_pipeline_runs_total",
			Help: "Total pipeline executions by mode and status",
		},
		[]string{"mode", "status"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamweaver_pipeline_duration_seconds",
			Help:    "End-to-end pipeline run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	PipelineStreamsEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamweaver_pipeline_streams_evaluated_total",
			Help: "Total streams evaluated across pipeline runs",
		},
	)

	PipelineConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamweaver_pipeline_conflicts_total",
			Help: "Total rule conflicts recorded",
		},
	)

	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_rollbacks_total",
			Help: "Total execution rollbacks by outcome",
		},
		[]string{"status"},
	)

	// Prober metrics

	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_probes_total",
			Help: "Total stream probes by result",
		},
		[]string{"result"}, // success, failed, timeout, skipped
	)

	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamweaver_probe_duration_seconds",
			Help:    "Single stream probe duration in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 15, 30, 45, 60},
		},
	)

	ProbeRampLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamweaver_probe_ramp_limit",
			Help: "Current per-provider probe concurrency limit",
		},
		[]string{"provider"},
	)

	ProbeActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamweaver_probe_active",
			Help: "Probes currently in flight",
		},
	)

	ProbeHolds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_probe_holds_total",
			Help: "Overload holds applied per provider",
		},
		[]string{"provider"},
	)

	// Bandwidth tracker metrics

	TrackerSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_tracker_samples_total",
			Help: "Bandwidth tracker samples by outcome",
		},
		[]string{"status"}, // ok, error
	)

	TrackerBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_tracker_bytes_total",
			Help: "Bytes attributed by direction",
		},
		[]string{"direction"}, // in, out
	)

	TrackerActiveChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamweaver_tracker_active_channels",
			Help: "Channels active in the latest stats sample",
		},
	)

	TrackerActiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamweaver_tracker_active_clients",
			Help: "Clients active in the latest stats sample",
		},
	)

	WatchEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_watch_events_total",
			Help: "Watch lifecycle events emitted",
		},
		[]string{"event"}, // start, stop
	)

	// API metrics

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_api_requests_total",
			Help: "API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamweaver_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamweaver_api_active_requests",
			Help: "API requests currently in flight",
		},
	)

	// Upstream client metrics

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_upstream_requests_total",
			Help: "Upstream REST requests by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamweaver_upstream_request_duration_seconds",
			Help:    "Upstream REST request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamweaver_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamweaver_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
