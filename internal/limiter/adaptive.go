// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package limiter

import (
	"math"
	"time"

	"github.com/guardline/guardline/internal/config"
)

// AdaptiveState is the per-subject throttle state. The multiplier and
// trust score always move in opposite directions: escalation pushes the
// multiplier up and trust down, decay reverses both.
type AdaptiveState struct {
	ViolationCount     int       `json:"violation_count"`
	ThrottleMultiplier float64   `json:"throttle_multiplier"` // >= 1.0
	TrustScore         float64   `json:"trust_score"`         // [minTrust, 1.0]
	LastViolation      time.Time `json:"last_violation"`
}

// NewAdaptiveState returns the neutral state for a fresh subject.
func NewAdaptiveState() AdaptiveState {
	return AdaptiveState{
		ThrottleMultiplier: 1.0,
		TrustScore:         1.0,
	}
}

// Throttle scales effective policies by a subject's adaptive state and
// owns the escalation/decay hysteresis: escalation is fast (multiplicative
// growth after a burst of violations), recovery is slow and requires a
// sustained quiet period.
type Throttle struct {
	escalationThreshold int
	escalationFactor    float64
	maxMultiplier       float64
	trustDecayFactor    float64
	minTrust            float64
	quietPeriod         time.Duration
	relaxFactor         float64
	resetCutoff         float64
}

// NewThrottle builds a throttle from configuration.
func NewThrottle(cfg config.LimiterConfig) *Throttle {
	return &Throttle{
		escalationThreshold: cfg.EscalationThreshold,
		escalationFactor:    cfg.EscalationFactor,
		maxMultiplier:       cfg.MaxMultiplier,
		trustDecayFactor:    cfg.TrustDecayFactor,
		minTrust:            cfg.MinTrust,
		quietPeriod:         cfg.QuietPeriod,
		relaxFactor:         cfg.RelaxFactor,
		resetCutoff:         cfg.ResetCutoff,
	}
}

// Scale derives the effective policy for a subject: request and burst
// budgets shrink by the multiplier (floored, minimum 1), window and
// cooldown stretch by it.
func (t *Throttle) Scale(p Policy, state *AdaptiveState) Policy {
	m := state.ThrottleMultiplier
	if m <= 1.0 {
		return p
	}

	scaled := p
	scaled.MaxRequests = int(math.Floor(float64(p.MaxRequests) / m))
	if scaled.MaxRequests < 1 {
		scaled.MaxRequests = 1
	}
	scaled.BurstLimit = int(math.Floor(float64(p.BurstLimit) / m))
	if scaled.BurstLimit < 1 {
		scaled.BurstLimit = 1
	}
	scaled.Window = time.Duration(float64(p.Window) * m)
	scaled.Cooldown = time.Duration(float64(p.Cooldown) * m)
	return scaled
}

// OnViolation records a violation and escalates once the subject has
// accumulated escalationThreshold of them. Every violation past the
// threshold escalates again, so repeat offenders degrade quickly.
// Returns true when the multiplier was escalated.
func (t *Throttle) OnViolation(state *AdaptiveState, now time.Time) bool {
	state.ViolationCount++
	state.LastViolation = now

	if state.ViolationCount < t.escalationThreshold {
		return false
	}

	state.ThrottleMultiplier = math.Min(t.maxMultiplier, state.ThrottleMultiplier*t.escalationFactor)
	state.TrustScore = math.Max(t.minTrust, state.TrustScore*t.trustDecayFactor)
	return true
}

// Decay relaxes the throttle after a sustained quiet period: the
// multiplier shrinks toward 1.0 and trust recovers toward 1.0. Once the
// multiplier falls below the near-1 reset cutoff the state resets fully.
// Returns true when a full reset occurred.
func (t *Throttle) Decay(state *AdaptiveState, now time.Time) bool {
	if state.ViolationCount == 0 && state.ThrottleMultiplier <= 1.0 {
		return false
	}
	if now.Sub(state.LastViolation) < t.quietPeriod {
		return false
	}

	state.ThrottleMultiplier = math.Max(1.0, state.ThrottleMultiplier*t.relaxFactor)
	state.TrustScore = math.Min(1.0, state.TrustScore/t.relaxFactor)

	if state.ThrottleMultiplier < t.resetCutoff {
		state.ViolationCount = 0
		state.ThrottleMultiplier = 1.0
		state.TrustScore = 1.0
		return true
	}
	return false
}
