// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package services wraps Guardline's long-running components as
// suture.Service implementations.
package services

import (
	"context"
)

// Runner is anything driven by a RunWithContext loop: the abuse
// prevention engine and the websocket hub both satisfy it. Taking the
// interface instead of the concrete types keeps this package free of
// upward dependencies and lets tests substitute fakes.
type Runner interface {
	RunWithContext(ctx context.Context) error
}

// EngineService supervises the engine's scoring and eviction loops.
type EngineService struct {
	runner Runner
	name   string
}

// NewEngineService wraps the abuse prevention engine.
func NewEngineService(runner Runner) *EngineService {
	return &EngineService{runner: runner, name: "abuse-engine"}
}

// Serve implements suture.Service. Returns ctx.Err() on normal shutdown.
func (s *EngineService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

// String identifies the service in supervisor logs.
func (s *EngineService) String() string {
	return s.name
}

// HubService supervises the websocket alert hub.
type HubService struct {
	runner Runner
	name   string
}

// NewHubService wraps the websocket hub.
func NewHubService(runner Runner) *HubService {
	return &HubService{runner: runner, name: "alert-hub"}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.runner.RunWithContext(ctx)
}

// String identifies the service in supervisor logs.
func (s *HubService) String() string {
	return s.name
}
