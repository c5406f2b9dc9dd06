// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Limiter.EscalationFactor != 1.5 {
		t.Errorf("EscalationFactor = %v, want 1.5", cfg.Limiter.EscalationFactor)
	}
	if cfg.Limiter.MaxMultiplier != 5.0 {
		t.Errorf("MaxMultiplier = %v, want 5.0", cfg.Limiter.MaxMultiplier)
	}
	if cfg.Behavior.MinSamples != 10 {
		t.Errorf("MinSamples = %d, want 10", cfg.Behavior.MinSamples)
	}

	w := cfg.Behavior.Weights
	total := w.Action + w.Timing + w.Movement + w.Session + w.Sequence + w.Velocity
	if total < 0.89 || total > 0.91 {
		t.Errorf("feature weight budget = %v, want 0.90", total)
	}
}

func TestValidateRejectsBadThresholdOrder(t *testing.T) {
	cfg := Default()
	cfg.Behavior.ThresholdBotLike = 0.1 // below suspicious

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-ascending thresholds")
	}
}

func TestValidateRejectsUnknownEndpointTier(t *testing.T) {
	cfg := Default()
	cfg.Limiter.Endpoints = map[string]string{"trade": "platinum"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown tier assignment")
	}
}

func TestValidateRejectsWebhookWithoutURL(t *testing.T) {
	cfg := Default()
	cfg.Notify.WebhookEnabled = true
	cfg.Notify.WebhookURL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled webhook without URL")
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9000
limiter:
  escalation_threshold: 4
  endpoints:
    trade: critical
    chat: high_frequency
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GUARDLINE_SERVER__PORT", "9100")
	t.Setenv("GUARDLINE_LOGGING__LEVEL", "debug")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	// Env beats file beats defaults.
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want 9100 (env override)", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Limiter.EscalationThreshold != 4 {
		t.Errorf("EscalationThreshold = %d, want 4 (file override)", cfg.Limiter.EscalationThreshold)
	}
	if cfg.Limiter.Endpoints["trade"] != "critical" {
		t.Errorf("endpoint map not loaded: %v", cfg.Limiter.Endpoints)
	}

	// Untouched defaults survive layering.
	if cfg.Engine.MacroInterval != 30*time.Second {
		t.Errorf("MacroInterval = %v, want 30s", cfg.Engine.MacroInterval)
	}
}

func TestEnvToKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"GUARDLINE_SERVER__PORT", "server.port"},
		{"GUARDLINE_LIMITER__MAX_MULTIPLIER", "limiter.max_multiplier"},
		{"GUARDLINE_BEHAVIOR__WEIGHTS__ACTION", "behavior.weights.action"},
	}
	for _, tt := range tests {
		if got := envToKey(tt.in); got != tt.want {
			t.Errorf("envToKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFrom("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
