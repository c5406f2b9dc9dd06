// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package behavior

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/guardline/guardline/internal/config"
)

// Scorer reduces one aspect of a subject's telemetry to an anomaly
// sub-score in [0,1]. Scorers with fewer than the minimum sample count
// return 0 (insufficient data is not an error and never blocks gating).
type Scorer interface {
	Name() string
	Score(p *Profile, now time.Time) float64
}

// Pattern contribution weights for the action-frequency scorer. Each
// triggered pattern adds its weight; the sub-score is capped at 1.0.
const (
	weightHighFrequency = 0.4
	weightZeroVariance  = 0.3
	weightRepeatedNGram = 0.3
)

// Penalty weights for the timing-consistency scorer. Too-regular
// inter-arrival timing is a stronger bot signal than erratic timing.
const (
	penaltyLowCV  = 0.7
	penaltyHighCV = 0.5
)

// Pattern contribution weights for the movement scorer.
const (
	weightExcessSpeed     = 0.5
	weightScriptedHeading = 0.5
)

// ActionFrequencyScorer flags action rates far above the learned
// baseline, machine-regular spacing between actions, and repeating
// action-type n-grams.
type ActionFrequencyScorer struct {
	cfg config.BehaviorConfig
}

func (s *ActionFrequencyScorer) Name() string { return "action_frequency" }

func (s *ActionFrequencyScorer) Score(p *Profile, now time.Time) float64 {
	actions := p.recentActions(now.Add(-s.cfg.MicroRetention))
	if len(actions) < s.cfg.MinSamples {
		return 0
	}

	score := 0.0

	if frequency(actions) > s.cfg.FrequencyRatioLimit*p.FrequencyBaseline {
		score += weightHighFrequency
	}

	intervals := intervalsOf(actionTimes(actions))
	if len(intervals) > 1 && variance(intervals) < s.cfg.VarianceEpsilon {
		score += weightZeroVariance
	}

	if maxNGramRepeats(actions, s.cfg.NGramSize) > s.cfg.NGramRepeatLimit {
		score += weightRepeatedNGram
	}

	return math.Min(1.0, score)
}

// AdaptBaseline nudges the learned baseline toward the observed rate.
// Only unflagged windows adapt the baseline: rates past the ratio limit
// would otherwise launder sustained abuse into the baseline itself.
func (s *ActionFrequencyScorer) AdaptBaseline(p *Profile, now time.Time) {
	actions := p.recentActions(now.Add(-s.cfg.MicroRetention))
	if len(actions) < s.cfg.MinSamples {
		return
	}
	observed := frequency(actions)
	if observed > s.cfg.FrequencyRatioLimit*p.FrequencyBaseline {
		return
	}
	p.FrequencyBaseline = clamp(0.9*p.FrequencyBaseline+0.1*observed, 0.1, 100)
}

// TimingConsistencyScorer scores the coefficient of variation of
// inter-arrival intervals. Too-low CV means bot-like regularity, too-high
// means erratic or replayed traffic; both are penalized.
type TimingConsistencyScorer struct {
	cfg config.BehaviorConfig
}

func (s *TimingConsistencyScorer) Name() string { return "timing_consistency" }

func (s *TimingConsistencyScorer) Score(p *Profile, now time.Time) float64 {
	cutoff := now.Add(-s.cfg.MicroRetention)
	times := make([]time.Time, 0, len(p.Timings))
	for _, ts := range p.Timings {
		if !ts.Before(cutoff) {
			times = append(times, ts)
		}
	}
	if len(times) < s.cfg.MinSamples {
		return 0
	}

	intervals := intervalsOf(times)
	m := mean(intervals)
	if m <= 0 {
		// All samples at the identical instant: maximal regularity.
		return penaltyLowCV
	}

	cv := math.Sqrt(variance(intervals)) / m
	switch {
	case cv < s.cfg.CVLowerBound:
		return penaltyLowCV
	case cv > s.cfg.CVUpperBound:
		return penaltyHighCV
	default:
		return 0
	}
}

// MovementScorer flags implied speeds above the physical cap and
// repeating direction-vector windows that indicate scripted movement.
type MovementScorer struct {
	cfg config.BehaviorConfig
}

func (s *MovementScorer) Name() string { return "movement" }

func (s *MovementScorer) Score(p *Profile, now time.Time) float64 {
	cutoff := now.Add(-s.cfg.MicroRetention)
	samples := make([]MovementSample, 0, len(p.Movements))
	for _, m := range p.Movements {
		if !m.At.Before(cutoff) {
			samples = append(samples, m)
		}
	}
	if len(samples) < s.cfg.MinSamples {
		return 0
	}

	score := 0.0

	for i := 1; i < len(samples); i++ {
		dt := samples[i].At.Sub(samples[i-1].At).Seconds()
		if dt <= 0 {
			continue
		}
		if samples[i].Position.Sub(samples[i-1].Position).Length()/dt > s.cfg.MaxSpeed {
			score += weightExcessSpeed
			break
		}
	}

	if s.hasScriptedHeading(samples) {
		score += weightScriptedHeading
	}

	return math.Min(1.0, score)
}

// hasScriptedHeading detects a window of direction vectors (rounded to
// one decimal) that repeats more than the configured limit.
func (s *MovementScorer) hasScriptedHeading(samples []MovementSample) bool {
	if len(samples) < s.cfg.DirectionWindow+1 {
		return false
	}

	headings := make([]string, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		d := samples[i].Position.Sub(samples[i-1].Position)
		l := d.Length()
		if l == 0 {
			headings = append(headings, "0,0,0")
			continue
		}
		headings = append(headings, fmt.Sprintf("%.1f,%.1f,%.1f", d.X/l, d.Y/l, d.Z/l))
	}

	counts := make(map[string]int)
	for i := 0; i+s.cfg.DirectionWindow <= len(headings); i++ {
		key := strings.Join(headings[i:i+s.cfg.DirectionWindow], "|")
		counts[key]++
		if counts[key] > s.cfg.DirectionRepeatLimit {
			return true
		}
	}
	return false
}

// --- shared statistics helpers ---

func actionTimes(actions []ActionSample) []time.Time {
	out := make([]time.Time, len(actions))
	for i := range actions {
		out[i] = actions[i].At
	}
	return out
}

// frequency returns actions per second over the sampled span.
func frequency(actions []ActionSample) float64 {
	if len(actions) < 2 {
		return 0
	}
	span := actions[len(actions)-1].At.Sub(actions[0].At).Seconds()
	if span <= 0 {
		return math.Inf(1)
	}
	return float64(len(actions)) / span
}

func intervalsOf(times []time.Time) []float64 {
	if len(times) < 2 {
		return nil
	}
	out := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		out = append(out, times[i].Sub(times[i-1]).Seconds())
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs))
}

// maxNGramRepeats counts the most frequent n-gram of action types.
func maxNGramRepeats(actions []ActionSample, n int) int {
	if len(actions) < n {
		return 0
	}
	types := make([]string, len(actions))
	for i := range actions {
		types[i] = actions[i].Type
	}

	counts := make(map[string]int)
	best := 0
	for i := 0; i+n <= len(types); i++ {
		key := strings.Join(types[i:i+n], "|")
		counts[key]++
		if counts[key] > best {
			best = counts[key]
		}
	}
	return best
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}
