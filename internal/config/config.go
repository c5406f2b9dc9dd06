// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package config loads and validates Guardline configuration.
//
// Configuration is loaded via Koanf v2 with layered sources, highest
// priority last:
//
//  1. Built-in defaults (struct literals below)
//  2. Config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (GUARDLINE_ prefix, "__" as the nesting
//     delimiter, e.g. GUARDLINE_SERVER__PORT=8080)
//
// Every tuned constant of the engine (tier profiles, escalation factors,
// feature weights, classification thresholds, cadences, retention windows)
// lives here as a default. They are tunable parameters, not requirements.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Guardline server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	Limiter  LimiterConfig  `koanf:"limiter"`
	Behavior BehaviorConfig `koanf:"behavior"`
	Engine   EngineConfig   `koanf:"engine"`
	Notify   NotifyConfig   `koanf:"notify"`
	API      APIConfig      `koanf:"api"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// TierConfig is one rate-limit tier profile. These map directly onto the
// effective limiter policy for endpoints assigned to the tier.
type TierConfig struct {
	MaxRequests int     `koanf:"max_requests" validate:"min=1"`
	Window      float64 `koanf:"window_seconds" validate:"gt=0"`
	BurstLimit  int     `koanf:"burst_limit" validate:"min=1"`
	Cooldown    float64 `koanf:"cooldown_seconds" validate:"min=0"`
}

// LimiterConfig configures the sliding-window rate limiter and the
// adaptive throttle.
type LimiterConfig struct {
	// Tier profiles, tightest to loosest. Privileged overrides all
	// endpoint tiers for subjects flagged privileged.
	Critical      TierConfig `koanf:"critical"`
	Standard      TierConfig `koanf:"standard"`
	HighFrequency TierConfig `koanf:"high_frequency"`
	Privileged    TierConfig `koanf:"privileged"`

	// Endpoints assigns endpoint names to tiers ("critical", "standard",
	// "high_frequency"). Unknown endpoints fall back to standard.
	Endpoints map[string]string `koanf:"endpoints"`

	// Adaptive escalation. Escalation is fast, recovery slow: this
	// hysteresis prevents oscillation and limiter gaming.
	EscalationThreshold int           `koanf:"escalation_threshold" validate:"min=1"`
	EscalationFactor    float64       `koanf:"escalation_factor" validate:"gt=1"`
	MaxMultiplier       float64       `koanf:"max_multiplier" validate:"gte=1"`
	TrustDecayFactor    float64       `koanf:"trust_decay_factor" validate:"gt=0,lt=1"`
	MinTrust            float64       `koanf:"min_trust" validate:"gt=0,lte=1"`
	QuietPeriod         time.Duration `koanf:"quiet_period" validate:"gt=0"`
	RelaxFactor         float64       `koanf:"relax_factor" validate:"gt=0,lt=1"`
	ResetCutoff         float64       `koanf:"reset_cutoff" validate:"gt=1"`

	// ViolationRetention bounds per-subject violation history by age.
	ViolationRetention time.Duration `koanf:"violation_retention" validate:"gt=0"`
}

// WeightsConfig holds the fixed feature-weight budget. Micro scorers
// (action, timing, movement) feed the anomaly score; macro scorers
// (session, sequence, velocity) feed the risk score.
type WeightsConfig struct {
	Action   float64 `koanf:"action" validate:"gte=0,lte=1"`
	Timing   float64 `koanf:"timing" validate:"gte=0,lte=1"`
	Movement float64 `koanf:"movement" validate:"gte=0,lte=1"`
	Session  float64 `koanf:"session" validate:"gte=0,lte=1"`
	Sequence float64 `koanf:"sequence" validate:"gte=0,lte=1"`
	Velocity float64 `koanf:"velocity" validate:"gte=0,lte=1"`
}

// BehaviorConfig configures feature scoring and classification.
type BehaviorConfig struct {
	MinSamples     int           `koanf:"min_samples" validate:"min=1"`
	MicroRetention time.Duration `koanf:"micro_retention" validate:"gt=0"`
	MacroRetention time.Duration `koanf:"macro_retention" validate:"gt=0"`

	Weights WeightsConfig `koanf:"weights"`

	// Action-frequency scorer.
	FrequencyBaseline   float64 `koanf:"frequency_baseline" validate:"gt=0"`
	FrequencyRatioLimit float64 `koanf:"frequency_ratio_limit" validate:"gt=1"`
	VarianceEpsilon     float64 `koanf:"variance_epsilon" validate:"gt=0"`
	NGramSize           int     `koanf:"ngram_size" validate:"min=2"`
	NGramRepeatLimit    int     `koanf:"ngram_repeat_limit" validate:"min=1"`

	// Timing-consistency scorer.
	CVLowerBound float64 `koanf:"cv_lower_bound" validate:"gt=0"`
	CVUpperBound float64 `koanf:"cv_upper_bound" validate:"gt=0"`

	// Movement scorer.
	MaxSpeed             float64 `koanf:"max_speed" validate:"gt=0"`
	DirectionWindow      int     `koanf:"direction_window" validate:"min=2"`
	DirectionRepeatLimit int     `koanf:"direction_repeat_limit" validate:"min=1"`

	// Classification thresholds, ascending: normal / suspicious /
	// bot-like / exploit-attempt boundaries.
	ThresholdSuspicious     float64 `koanf:"threshold_suspicious" validate:"gt=0,lt=1"`
	ThresholdBotLike        float64 `koanf:"threshold_bot_like" validate:"gt=0,lt=1"`
	ThresholdExploit        float64 `koanf:"threshold_exploit" validate:"gt=0,lt=1"`
	ThresholdAdvanced       float64 `koanf:"threshold_advanced" validate:"gt=0,lt=1"`
	AnomalyEventThreshold   float64 `koanf:"anomaly_event_threshold" validate:"gt=0,lte=1"`
	ViolationSignalMinCount int     `koanf:"violation_signal_min_count" validate:"min=1"`
}

// EngineConfig configures cadences, eviction, and privileged subjects.
type EngineConfig struct {
	MicroInterval    time.Duration `koanf:"micro_interval" validate:"gt=0"`
	MacroInterval    time.Duration `koanf:"macro_interval" validate:"gt=0"`
	EvictionInterval time.Duration `koanf:"eviction_interval" validate:"gt=0"`

	// SubjectTTL evicts subjects with no activity for this long even
	// without an explicit disconnect signal.
	SubjectTTL time.Duration `koanf:"subject_ttl" validate:"gt=0"`

	// PrivilegedSubjects is the default allowlist authorizer's content.
	// Identity is otherwise an external collaborator; this list is not
	// a security boundary.
	PrivilegedSubjects []string `koanf:"privileged_subjects"`
}

// NotifyConfig configures outbound anomaly notification.
type NotifyConfig struct {
	WebhookEnabled bool              `koanf:"webhook_enabled"`
	WebhookURL     string            `koanf:"webhook_url" validate:"omitempty,url"`
	WebhookHeaders map[string]string `koanf:"webhook_headers"`
	// RatePerSecond paces webhook sends; bursts beyond it are dropped,
	// never queued against the gating path.
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gt=0"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
}

// APIConfig configures the HTTP API perimeter.
type APIConfig struct {
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	RateLimitRequests  int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow    time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled  bool          `koanf:"rate_limit_disabled"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8429,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Limiter: LimiterConfig{
			Critical:      TierConfig{MaxRequests: 3, Window: 60, BurstLimit: 1, Cooldown: 5},
			Standard:      TierConfig{MaxRequests: 20, Window: 10, BurstLimit: 5, Cooldown: 0.5},
			HighFrequency: TierConfig{MaxRequests: 120, Window: 10, BurstLimit: 30, Cooldown: 0},
			Privileged:    TierConfig{MaxRequests: 1000, Window: 10, BurstLimit: 200, Cooldown: 0},
			Endpoints:     map[string]string{},

			EscalationThreshold: 3,
			EscalationFactor:    1.5,
			MaxMultiplier:       5.0,
			TrustDecayFactor:    0.8,
			MinTrust:            0.1,
			QuietPeriod:         60 * time.Second,
			RelaxFactor:         0.9,
			ResetCutoff:         1.05,

			ViolationRetention: 10 * time.Minute,
		},
		Behavior: BehaviorConfig{
			MinSamples:     10,
			MicroRetention: 60 * time.Second,
			MacroRetention: 10 * time.Minute,
			Weights: WeightsConfig{
				Action:   0.25,
				Timing:   0.20,
				Movement: 0.15,
				Session:  0.05,
				Sequence: 0.15,
				Velocity: 0.10,
			},
			FrequencyBaseline:   1.0,
			FrequencyRatioLimit: 5.0,
			VarianceEpsilon:     0.001,
			NGramSize:           4,
			NGramRepeatLimit:    3,

			CVLowerBound: 0.1,
			CVUpperBound: 2.5,

			MaxSpeed:             50.0,
			DirectionWindow:      5,
			DirectionRepeatLimit: 3,

			ThresholdSuspicious:     0.2,
			ThresholdBotLike:        0.4,
			ThresholdExploit:        0.6,
			ThresholdAdvanced:       0.8,
			AnomalyEventThreshold:   0.7,
			ViolationSignalMinCount: 5,
		},
		Engine: EngineConfig{
			MicroInterval:    time.Second,
			MacroInterval:    30 * time.Second,
			EvictionInterval: 60 * time.Second,
			SubjectTTL:       5 * time.Minute,
		},
		Notify: NotifyConfig{
			WebhookEnabled: false,
			RatePerSecond:  2,
			Timeout:        10 * time.Second,
		},
		API: APIConfig{
			CORSAllowedOrigins: []string{},
			RateLimitRequests:  300,
			RateLimitWindow:    time.Minute,
		},
	}
}

// Validate checks structural constraints plus cross-field rules the
// validator tags cannot express.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	b := &c.Behavior
	if !(b.ThresholdSuspicious < b.ThresholdBotLike &&
		b.ThresholdBotLike < b.ThresholdExploit &&
		b.ThresholdExploit < b.ThresholdAdvanced) {
		return fmt.Errorf("config validation: behavior thresholds must be strictly ascending")
	}
	if b.CVLowerBound >= b.CVUpperBound {
		return fmt.Errorf("config validation: cv_lower_bound must be below cv_upper_bound")
	}

	for endpoint, tier := range c.Limiter.Endpoints {
		switch tier {
		case "critical", "standard", "high_frequency":
		default:
			return fmt.Errorf("config validation: endpoint %q assigned to unknown tier %q", endpoint, tier)
		}
	}

	if c.Notify.WebhookEnabled && c.Notify.WebhookURL == "" {
		return fmt.Errorf("config validation: notify.webhook_url required when webhook is enabled")
	}

	return nil
}
