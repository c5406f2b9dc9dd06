// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package metrics exposes Prometheus collectors for the abuse-prevention
// engine: gating decisions, anomaly events, behavior classification,
// subject lifecycle, and API latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gating decision metrics
	RequestsAllowed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardline_requests_allowed_total",
			Help: "Total requests allowed by the rate limiter",
		},
		[]string{"tier"},
	)

	RequestsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardline_requests_denied_total",
			Help: "Total requests denied by the rate limiter",
		},
		[]string{"tier", "reason"},
	)

	CheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guardline_check_duration_seconds",
			Help:    "Duration of CheckAndRecord gating decisions",
			Buckets: []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3},
		},
	)

	// Adaptive throttle metrics
	ThrottleEscalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardline_throttle_escalations_total",
			Help: "Total adaptive throttle multiplier escalations",
		},
	)

	ThrottleResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardline_throttle_resets_total",
			Help: "Total adaptive throttle full resets after sustained good behavior",
		},
	)

	// Behavior analysis metrics
	AnomalyEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardline_anomaly_events_total",
			Help: "Total out-of-band anomaly events fired",
		},
		[]string{"category"},
	)

	SubjectsByCategory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guardline_subjects_by_category",
			Help: "Tracked subjects grouped by current behavior category",
		},
		[]string{"category"},
	)

	TelemetrySamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardline_telemetry_samples_total",
			Help: "Total telemetry samples ingested",
		},
		[]string{"kind"}, // "action", "movement"
	)

	// Subject lifecycle metrics
	SubjectsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardline_subjects_tracked",
			Help: "Current number of subjects with in-memory state",
		},
	)

	SubjectsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guardline_subjects_evicted_total",
			Help: "Total subjects evicted (disconnect or staleness)",
		},
	)

	// Notifier metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardline_notifications_sent_total",
			Help: "Total anomaly notifications dispatched, by notifier and outcome",
		},
		[]string{"notifier", "outcome"}, // outcome: "ok", "error", "dropped"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardline_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardline_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)
)

// ObserveCheck records the duration of a single gating decision.
func ObserveCheck(start time.Time) {
	CheckDuration.Observe(time.Since(start).Seconds())
}
