// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package behavior implements statistical behavioral analysis: per-subject
// rolling telemetry buffers, independent feature scorers that reduce a
// buffer to a [0,1] anomaly sub-score, and a weighted aggregator that
// derives composite anomaly/risk scores and a behavior classification.
package behavior

import (
	"fmt"
	"math"
	"time"
)

// Category is the discrete trustworthiness classification, ordered from
// benign to hostile. It is always derived from the scores that produced
// it and never stored or edited independently.
type Category int

const (
	CategoryNormal Category = iota
	CategorySuspicious
	CategoryBotLike
	CategoryExploitAttempt
	CategoryAdvancedExploit
)

var categoryNames = [...]string{
	"normal",
	"suspicious",
	"bot_like",
	"exploit_attempt",
	"advanced_exploit",
}

func (c Category) String() string {
	if c < CategoryNormal || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// MarshalJSON renders the category as its string name.
func (c Category) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// Vec3 is a position or velocity sample component.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// ActionSample is one observed action invocation.
type ActionSample struct {
	Type string
	At   time.Time
}

// MovementSample is one observed position/velocity report.
type MovementSample struct {
	Position Vec3
	Velocity Vec3
	At       time.Time
}

// Profile holds one subject's rolling telemetry buffers and derived
// scores. Buffers are append-only and pruned from the front, so they stay
// ordered by time. A Profile is owned by the engine's subject store and
// accessed under its synchronization.
type Profile struct {
	CreatedAt    time.Time
	LastActivity time.Time

	// Actions is retained for the macro window so sequence analysis has
	// session-scale history; micro scorers filter it to the micro window.
	Actions   []ActionSample
	Timings   []time.Time
	Movements []MovementSample

	// FrequencyBaseline is the learned actions-per-second baseline,
	// adapted from unflagged macro windows.
	FrequencyBaseline float64

	AnomalyScore float64
	RiskScore    float64
	Category     Category
	Confidence   float64
	SampleCount  int
}

// NewProfile creates a fresh profile for a subject first seen at now.
func NewProfile(now time.Time, frequencyBaseline float64) *Profile {
	return &Profile{
		CreatedAt:         now,
		LastActivity:      now,
		FrequencyBaseline: frequencyBaseline,
		Confidence:        1.0, // confident in normalcy until scored
	}
}

// AddAction appends an action sample and its arrival time.
func (p *Profile) AddAction(actionType string, now time.Time) {
	p.Actions = append(p.Actions, ActionSample{Type: actionType, At: now})
	p.Timings = append(p.Timings, now)
	p.SampleCount++
	p.LastActivity = now
}

// AddMovement appends a movement sample.
func (p *Profile) AddMovement(position, velocity Vec3, now time.Time) {
	p.Movements = append(p.Movements, MovementSample{Position: position, Velocity: velocity, At: now})
	p.SampleCount++
	p.LastActivity = now
}

// Prune drops samples older than their retention windows: timings and
// movements by the micro window, actions by the macro window.
func (p *Profile) Prune(now time.Time, microRetention, macroRetention time.Duration) {
	microCutoff := now.Add(-microRetention)
	macroCutoff := now.Add(-macroRetention)

	i := 0
	for i < len(p.Actions) && p.Actions[i].At.Before(macroCutoff) {
		i++
	}
	if i > 0 {
		p.Actions = append(p.Actions[:0], p.Actions[i:]...)
	}

	i = 0
	for i < len(p.Timings) && p.Timings[i].Before(microCutoff) {
		i++
	}
	if i > 0 {
		p.Timings = append(p.Timings[:0], p.Timings[i:]...)
	}

	i = 0
	for i < len(p.Movements) && p.Movements[i].At.Before(microCutoff) {
		i++
	}
	if i > 0 {
		p.Movements = append(p.Movements[:0], p.Movements[i:]...)
	}
}

// recentActions returns the suffix of Actions at or after the cutoff.
func (p *Profile) recentActions(cutoff time.Time) []ActionSample {
	for i := range p.Actions {
		if !p.Actions[i].At.Before(cutoff) {
			return p.Actions[i:]
		}
	}
	return nil
}

// Analysis is a read-only snapshot of a profile's derived state.
type Analysis struct {
	RiskScore    float64  `json:"risk_score"`
	AnomalyScore float64  `json:"anomaly_score"`
	Category     Category `json:"behavior_category"`
	Confidence   float64  `json:"confidence"`
	SampleCount  int      `json:"sample_count"`
}

// Snapshot extracts the derived fields.
func (p *Profile) Snapshot() Analysis {
	return Analysis{
		RiskScore:    p.RiskScore,
		AnomalyScore: p.AnomalyScore,
		Category:     p.Category,
		Confidence:   p.Confidence,
		SampleCount:  p.SampleCount,
	}
}

// FreshAnalysis is what GetAnalysis returns for a never-seen (or evicted)
// subject: unscored, classified normal with full confidence in normalcy.
func FreshAnalysis() Analysis {
	return Analysis{Category: CategoryNormal, Confidence: 1.0}
}
