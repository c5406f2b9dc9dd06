// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package main is the entry point for the Guardline server.
//
// Guardline is an adaptive abuse-prevention sidecar for interactive
// services (game servers, collaborative platforms, real-time APIs). It
// combines a sliding-window rate limiter with adaptive per-subject
// escalation and a statistical behavioral analyzer that classifies
// subjects from their telemetry.
//
// # Startup order
//
//  1. Configuration: Koanf v2 layered sources (defaults, config.yaml,
//     GUARDLINE_* environment variables)
//  2. Logging: zerolog, JSON or console
//  3. Engine: limiter + behavior analyzer + subject store
//  4. Notifiers: webhook (if configured)
//  5. Alert hub: websocket fan-out for live anomaly alerts
//  6. HTTP server: gating, telemetry, query, and ops endpoints
//
// All long-running components run under a suture supervision tree and
// are restarted on crash. SIGINT/SIGTERM trigger graceful shutdown with
// a bounded drain of in-flight requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guardline/guardline/internal/api"
	"github.com/guardline/guardline/internal/config"
	"github.com/guardline/guardline/internal/engine"
	"github.com/guardline/guardline/internal/logging"
	"github.com/guardline/guardline/internal/notify"
	"github.com/guardline/guardline/internal/supervisor"
	"github.com/guardline/guardline/internal/supervisor/services"
	ws "github.com/guardline/guardline/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Int("endpoint_tiers", len(cfg.Limiter.Endpoints)).
		Int("privileged_subjects", len(cfg.Engine.PrivilegedSubjects)).
		Bool("webhook_enabled", cfg.Notify.WebhookEnabled).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	eng := engine.New(cfg, nil)

	hub := ws.NewHub()
	eng.SetBroadcaster(hub)

	if cfg.Notify.WebhookEnabled {
		eng.RegisterNotifier(notify.NewWebhookNotifier(cfg.Notify))
		logging.Info().Str("url", cfg.Notify.WebhookURL).Msg("Webhook notifier enabled")
	}

	handler := api.NewHandler(eng, hub, cfg.API.CORSAllowedOrigins)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(cfg.API, handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	tree.AddEngineService(services.NewEngineService(eng))
	tree.AddEngineService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Guardline stopped gracefully")
}
