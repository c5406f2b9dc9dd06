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

// Macro scorers run on the slower cadence and feed the risk score. They
// look at session-scale history rather than the last few seconds.

// sessionRampStart / sessionRampFull bound the session-length scorer:
// sessions shorter than the start contribute nothing; the score ramps
// linearly to 1.0 at the full mark. Marathon unattended sessions are a
// weak automation signal on their own, hence the small weight budget.
const (
	sessionRampStart = 1 * time.Hour
	sessionRampFull  = 8 * time.Hour
)

// SessionScorer scores session length.
type SessionScorer struct {
	cfg config.BehaviorConfig
}

func (s *SessionScorer) Name() string { return "session" }

func (s *SessionScorer) Score(p *Profile, now time.Time) float64 {
	length := now.Sub(p.CreatedAt)
	if length <= sessionRampStart {
		return 0
	}
	return math.Min(1.0, float64(length-sessionRampStart)/float64(sessionRampFull-sessionRampStart))
}

// SequenceScorer scores the diversity of the macro action history: a
// session dominated by a tiny set of action types repeated over and over
// looks scripted.
type SequenceScorer struct {
	cfg config.BehaviorConfig
}

func (s *SequenceScorer) Name() string { return "sequence" }

func (s *SequenceScorer) Score(p *Profile, now time.Time) float64 {
	actions := p.recentActions(now.Add(-s.cfg.MacroRetention))
	if len(actions) < s.cfg.MinSamples {
		return 0
	}

	distinct := make(map[string]struct{}, 8)
	for _, a := range actions {
		distinct[a.Type] = struct{}{}
	}
	diversity := float64(len(distinct)) / float64(len(actions))

	// diversity 0.2+ (one type per five actions) is ordinary play;
	// below that the score rises toward 1.0 for single-type spam.
	return clamp(1.0-5.0*diversity, 0, 1)
}

// VelocityScorer scores the subject's session velocity profile: the
// fraction of consecutive movement pairs whose implied speed exceeds the
// physical cap.
type VelocityScorer struct {
	cfg config.BehaviorConfig
}

func (s *VelocityScorer) Name() string { return "velocity" }

func (s *VelocityScorer) Score(p *Profile, now time.Time) float64 {
	if len(p.Movements) < s.cfg.MinSamples {
		return 0
	}

	pairs, excess := 0, 0
	for i := 1; i < len(p.Movements); i++ {
		dt := p.Movements[i].At.Sub(p.Movements[i-1].At).Seconds()
		if dt <= 0 {
			continue
		}
		pairs++
		if p.Movements[i].Position.Sub(p.Movements[i-1].Position).Length()/dt > s.cfg.MaxSpeed {
			excess++
		}
	}
	if pairs == 0 {
		return 0
	}

	// Double the raw fraction so that half the samples teleporting
	// already saturates the sub-score.
	return math.Min(1.0, 2.0*float64(excess)/float64(pairs))
}
