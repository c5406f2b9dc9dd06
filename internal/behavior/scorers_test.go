// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package behavior

import (
	"fmt"
	"testing"
	"time"

	"github.com/guardline/guardline/internal/config"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func behaviorCfg() config.BehaviorConfig {
	return config.Default().Behavior
}

// botProfile builds a profile with n identical-type actions spaced
// exactly step seconds apart, starting at t0.
func botProfile(n int, step float64) *Profile {
	p := NewProfile(t0, 1.0)
	for i := 0; i < n; i++ {
		p.AddAction("attack", at(float64(i)*step))
	}
	return p
}

func TestActionScorerInsufficientData(t *testing.T) {
	s := &ActionFrequencyScorer{cfg: behaviorCfg()}
	p := botProfile(5, 0.1) // below MinSamples=10

	if got := s.Score(p, at(1)); got != 0 {
		t.Errorf("score = %v, want 0 for insufficient samples", got)
	}
}

func TestBotRegularityScenario(t *testing.T) {
	// 20 identical actions spaced exactly 0.1s apart: both the
	// action-frequency and timing-consistency scorers report elevated
	// sub-scores and the composite micro anomaly score exceeds 0.5.
	cfg := behaviorCfg()
	p := botProfile(20, 0.1)
	now := at(2)

	action := (&ActionFrequencyScorer{cfg: cfg}).Score(p, now)
	timing := (&TimingConsistencyScorer{cfg: cfg}).Score(p, now)

	if action < 0.5 {
		t.Errorf("action sub-score = %v, want elevated (>= 0.5)", action)
	}
	if timing < 0.5 {
		t.Errorf("timing sub-score = %v, want elevated (>= 0.5)", timing)
	}

	agg := NewAggregator(cfg)
	if micro := agg.ScoreMicro(p, now); micro <= 0.5 {
		t.Errorf("composite micro anomaly = %v, want > 0.5", micro)
	}
}

func TestActionScorerNormalTraffic(t *testing.T) {
	cfg := behaviorCfg()
	p := NewProfile(t0, 1.0)
	// Varied types, irregular human-ish spacing, ~0.5 actions/sec.
	types := []string{"move", "look", "use", "chat", "jump", "move", "use", "look", "chat", "move", "jump", "use"}
	offsets := []float64{0, 1.7, 4.1, 5.0, 7.9, 9.2, 12.5, 13.1, 16.8, 18.0, 21.3, 23.9}
	for i, typ := range types {
		p.AddAction(typ, at(offsets[i]))
	}

	s := &ActionFrequencyScorer{cfg: cfg}
	if got := s.Score(p, at(24)); got != 0 {
		t.Errorf("score = %v, want 0 for normal traffic", got)
	}
}

func TestTimingScorerErraticTraffic(t *testing.T) {
	cfg := behaviorCfg()
	p := NewProfile(t0, 1.0)
	// Wildly spread intervals: CV above the upper bound.
	offsets := []float64{0, 0.01, 0.02, 0.03, 0.04, 0.05, 0.06, 0.07, 0.08, 0.09, 59}
	for i, off := range offsets {
		p.AddAction(fmt.Sprintf("a%d", i), at(off))
	}

	s := &TimingConsistencyScorer{cfg: cfg}
	got := s.Score(p, at(59.5))
	if got != penaltyHighCV {
		t.Errorf("score = %v, want high-CV penalty %v", got, penaltyHighCV)
	}
}

func TestMovementScorerSpeedCap(t *testing.T) {
	cfg := behaviorCfg() // MaxSpeed 50
	p := NewProfile(t0, 1.0)
	// 12 samples at 10 units/s, then one teleport.
	for i := 0; i < 12; i++ {
		p.AddMovement(Vec3{X: float64(i) * 1.0}, Vec3{X: 10}, at(float64(i)*0.1))
	}
	p.AddMovement(Vec3{X: 500}, Vec3{}, at(1.3))

	s := &MovementScorer{cfg: cfg}
	if got := s.Score(p, at(2)); got < weightExcessSpeed {
		t.Errorf("score = %v, want >= %v for teleport", got, weightExcessSpeed)
	}
}

func TestMovementScorerScriptedHeading(t *testing.T) {
	cfg := behaviorCfg()
	p := NewProfile(t0, 1.0)
	// A repeating square patrol loop: headings +X, +Y, -X, -Y over and
	// over. Speeds stay far below the cap.
	dirs := []Vec3{{X: 1}, {Y: 1}, {X: -1}, {Y: -1}}
	pos := Vec3{}
	for i := 0; i < 40; i++ {
		d := dirs[i%4]
		pos = Vec3{X: pos.X + d.X, Y: pos.Y + d.Y, Z: 0}
		p.AddMovement(pos, d, at(float64(i)*0.5))
	}

	s := &MovementScorer{cfg: cfg}
	if got := s.Score(p, at(20)); got < weightScriptedHeading {
		t.Errorf("score = %v, want >= %v for scripted patrol", got, weightScriptedHeading)
	}
}

func TestMovementScorerNormalMovement(t *testing.T) {
	cfg := behaviorCfg()
	p := NewProfile(t0, 1.0)
	// Meandering walk, varied headings, modest speed.
	coords := [][2]float64{
		{0, 0}, {1.2, 0.3}, {2.1, 1.5}, {2.8, 3.0}, {4.5, 3.2}, {5.1, 4.8},
		{6.9, 5.0}, {7.2, 6.6}, {9.0, 7.1}, {9.8, 8.9}, {11.0, 9.2}, {12.4, 10.8},
	}
	for i, c := range coords {
		p.AddMovement(Vec3{X: c[0], Y: c[1]}, Vec3{}, at(float64(i)*0.5))
	}

	s := &MovementScorer{cfg: cfg}
	if got := s.Score(p, at(6)); got != 0 {
		t.Errorf("score = %v, want 0 for unremarkable movement", got)
	}
}

func TestSequenceScorerSpam(t *testing.T) {
	cfg := behaviorCfg()
	p := botProfile(30, 1.0)

	s := &SequenceScorer{cfg: cfg}
	if got := s.Score(p, at(31)); got < 0.8 {
		t.Errorf("score = %v, want high for single-type spam", got)
	}
}

func TestSequenceScorerDiverse(t *testing.T) {
	cfg := behaviorCfg()
	p := NewProfile(t0, 1.0)
	for i := 0; i < 30; i++ {
		p.AddAction(fmt.Sprintf("type-%d", i%10), at(float64(i)))
	}

	s := &SequenceScorer{cfg: cfg}
	if got := s.Score(p, at(31)); got > 0.1 {
		t.Errorf("score = %v, want ~0 for diverse actions", got)
	}
}

func TestSessionScorer(t *testing.T) {
	cfg := behaviorCfg()
	p := NewProfile(t0, 1.0)
	s := &SessionScorer{cfg: cfg}

	if got := s.Score(p, t0.Add(30*time.Minute)); got != 0 {
		t.Errorf("score = %v, want 0 for short session", got)
	}
	mid := s.Score(p, t0.Add(4*time.Hour))
	if mid <= 0 || mid >= 1 {
		t.Errorf("score = %v, want between 0 and 1 at 4h", mid)
	}
	if got := s.Score(p, t0.Add(20*time.Hour)); got != 1.0 {
		t.Errorf("score = %v, want saturated 1.0", got)
	}
}

func TestAdaptBaselineIgnoresAbusiveWindows(t *testing.T) {
	cfg := behaviorCfg()
	s := &ActionFrequencyScorer{cfg: cfg}

	// Abusive rate: baseline must not move.
	p := botProfile(20, 0.1)
	s.AdaptBaseline(p, at(2))
	if p.FrequencyBaseline != 1.0 {
		t.Errorf("baseline = %v, must not adapt to abusive rate", p.FrequencyBaseline)
	}

	// Modest rate: baseline drifts toward the observation.
	q := NewProfile(t0, 1.0)
	for i := 0; i < 12; i++ {
		q.AddAction("move", at(float64(i)*2.0))
	}
	s.AdaptBaseline(q, at(23))
	if q.FrequencyBaseline >= 1.0 {
		t.Errorf("baseline = %v, want drift below 1.0 toward ~0.55", q.FrequencyBaseline)
	}
}

func TestProfilePrune(t *testing.T) {
	cfg := behaviorCfg()
	p := NewProfile(t0, 1.0)
	for i := 0; i < 100; i++ {
		p.AddAction("a", at(float64(i)*10))
		p.AddMovement(Vec3{X: float64(i)}, Vec3{}, at(float64(i)*10))
	}

	now := at(1000)
	p.Prune(now, cfg.MicroRetention, cfg.MacroRetention)

	microCutoff := now.Add(-cfg.MicroRetention)
	for _, ts := range p.Timings {
		if ts.Before(microCutoff) {
			t.Fatal("timing sample older than micro retention survived prune")
		}
	}
	macroCutoff := now.Add(-cfg.MacroRetention)
	for _, a := range p.Actions {
		if a.At.Before(macroCutoff) {
			t.Fatal("action sample older than macro retention survived prune")
		}
	}
	// SampleCount is a session total, not a buffer length.
	if p.SampleCount != 200 {
		t.Errorf("SampleCount = %d, want 200", p.SampleCount)
	}
}
