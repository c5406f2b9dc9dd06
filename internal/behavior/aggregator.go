// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package behavior

import (
	"math"
	"time"

	"github.com/guardline/guardline/internal/config"
)

// Aggregator combines feature sub-scores into the composite anomaly score
// (micro cadence) and risk score (macro cadence), and classifies subjects
// from the combination. Classification is a pure function of the current
// scores, not a latch requiring a reset.
type Aggregator struct {
	cfg config.BehaviorConfig

	action   *ActionFrequencyScorer
	timing   *TimingConsistencyScorer
	movement *MovementScorer

	session  *SessionScorer
	sequence *SequenceScorer
	velocity *VelocityScorer
}

// NewAggregator builds the aggregator and its scorers from configuration.
func NewAggregator(cfg config.BehaviorConfig) *Aggregator {
	return &Aggregator{
		cfg:      cfg,
		action:   &ActionFrequencyScorer{cfg: cfg},
		timing:   &TimingConsistencyScorer{cfg: cfg},
		movement: &MovementScorer{cfg: cfg},
		session:  &SessionScorer{cfg: cfg},
		sequence: &SequenceScorer{cfg: cfg},
		velocity: &VelocityScorer{cfg: cfg},
	}
}

// ScoreMicro runs the fast-cadence scorers and updates the profile's
// composite anomaly score. The weighted sum is normalized by the micro
// weight budget so the score spans [0,1].
func (a *Aggregator) ScoreMicro(p *Profile, now time.Time) float64 {
	w := a.cfg.Weights
	budget := w.Action + w.Timing + w.Movement
	if budget <= 0 {
		return 0
	}

	sum := w.Action*a.action.Score(p, now) +
		w.Timing*a.timing.Score(p, now) +
		w.Movement*a.movement.Score(p, now)

	p.AnomalyScore = sum / budget
	return p.AnomalyScore
}

// ScoreMacro runs the slow-cadence scorers and updates the profile's risk
// score. recentViolations is the cross-signal from the rate limiter:
// repeated throttle violations within the micro window raise risk beyond
// what telemetry alone shows. The baseline for the action-frequency
// scorer also adapts here, on the macro cadence.
func (a *Aggregator) ScoreMacro(p *Profile, recentViolations int, now time.Time) float64 {
	w := a.cfg.Weights
	budget := w.Session + w.Sequence + w.Velocity
	if budget <= 0 {
		return 0
	}

	sum := w.Session*a.session.Score(p, now) +
		w.Sequence*a.sequence.Score(p, now) +
		w.Velocity*a.velocity.Score(p, now)

	risk := sum / budget

	if recentViolations >= a.cfg.ViolationSignalMinCount {
		boost := 0.1 + 0.05*float64(recentViolations-a.cfg.ViolationSignalMinCount)
		risk = math.Min(1.0, risk+math.Min(0.3, boost))
	}

	a.action.AdaptBaseline(p, now)

	p.RiskScore = risk
	return risk
}

// Classify derives the behavior category and confidence from the
// profile's current scores and stores them on the profile. Calling it
// twice with unchanged scores yields identical results.
func (a *Aggregator) Classify(p *Profile) (Category, float64) {
	category, confidence := classify(a.cfg, p.RiskScore, p.AnomalyScore)
	p.Category = category
	p.Confidence = confidence
	return category, confidence
}

// classify is the pure transition function: combined = (risk+anomaly)/2,
// category by fixed ascending thresholds, confidence = combined (or
// 1-combined for normal, reflecting confidence in normalcy).
func classify(cfg config.BehaviorConfig, risk, anomaly float64) (Category, float64) {
	combined := (risk + anomaly) / 2

	var category Category
	switch {
	case combined < cfg.ThresholdSuspicious:
		category = CategoryNormal
	case combined < cfg.ThresholdBotLike:
		category = CategorySuspicious
	case combined < cfg.ThresholdExploit:
		category = CategoryBotLike
	case combined < cfg.ThresholdAdvanced:
		category = CategoryExploitAttempt
	default:
		category = CategoryAdvancedExploit
	}

	confidence := combined
	if category == CategoryNormal {
		confidence = 1 - combined
	}
	return category, confidence
}

// AnomalyEventThreshold exposes the hard threshold for immediate
// out-of-band anomaly events.
func (a *Aggregator) AnomalyEventThreshold() float64 {
	return a.cfg.AnomalyEventThreshold
}

// Retention exposes the micro/macro retention windows for pruning.
func (a *Aggregator) Retention() (micro, macro time.Duration) {
	return a.cfg.MicroRetention, a.cfg.MacroRetention
}
