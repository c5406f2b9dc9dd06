// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guardline/guardline/internal/config"
)

// NewRouter assembles the HTTP routes.
//
// The gating and telemetry endpoints sit on the hot path of the
// collaborating service, so the perimeter limiter is applied per-IP and
// is generous; the engine's own per-subject limits do the real work.
func NewRouter(cfg config.APIConfig, handler *Handler) http.Handler {
	mw := NewMiddleware(cfg)

	r := chi.NewRouter()

	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Get("/healthz", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(PrometheusMetrics)

		r.Post("/check", handler.Check)

		r.Route("/telemetry", func(r chi.Router) {
			r.Post("/action", handler.RecordAction)
			r.Post("/movement", handler.RecordMovement)
		})

		r.Route("/subjects/{id}", func(r chi.Router) {
			r.Get("/analysis", handler.SubjectAnalysis)
			r.Get("/violations", handler.SubjectViolations)
			r.Delete("/", handler.EvictSubject)
		})

		r.Get("/stats", handler.Stats)
		r.Get("/alerts/stream", handler.AlertStream)
	})

	return r
}
