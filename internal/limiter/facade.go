// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package limiter

import (
	"sync/atomic"
	"time"

	"github.com/guardline/guardline/internal/config"
	"github.com/guardline/guardline/internal/metrics"
)

// Deny codes label the limiter check that produced a denial.
const (
	DenyCooldown = "cooldown"
	DenyBurst    = "burst"
	DenyWindow   = "window"

	// DenyEscalated labels violations injected by the behavior analyzer
	// (anomaly cross-signal), not produced by a limiter check.
	DenyEscalated = "escalated"
)

// Decision is the outcome of one gating check. A denial is a normal
// negative result, not an error: the reason string is human-readable and
// the code is stable for metrics and violation records.
type Decision struct {
	Allowed bool
	Code    string
	Reason  string
	Tier    Tier
}

// ViolationRecord is one denied attempt, retained per subject and pruned
// by age. Durable persistence belongs to the external audit collaborator.
type ViolationRecord struct {
	SubjectID string    `json:"subject_id"`
	Endpoint  string    `json:"endpoint"`
	Reason    string    `json:"reason"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// SubjectState holds all limiter-side state for one subject. It is owned
// by the engine's subject store and must only be accessed under the
// store's per-subject synchronization.
type SubjectState struct {
	windows    map[string]*requestWindow
	Adaptive   AdaptiveState
	violations []ViolationRecord
}

// NewSubjectState returns fresh limiter state for a subject.
func NewSubjectState() *SubjectState {
	return &SubjectState{
		windows:  make(map[string]*requestWindow),
		Adaptive: NewAdaptiveState(),
	}
}

// Facade orchestrates PolicyTable, the sliding-window checks, and the
// adaptive throttle into single CheckAndRecord decisions. It is stateless
// apart from process-wide counters; all per-subject state is passed in.
type Facade struct {
	table     *PolicyTable
	throttle  *Throttle
	retention time.Duration

	allowed atomic.Uint64
	denied  atomic.Uint64
}

// NewFacade builds the rate-limiter facade from configuration.
func NewFacade(cfg config.LimiterConfig) *Facade {
	return &Facade{
		table:     NewPolicyTable(cfg),
		throttle:  NewThrottle(cfg),
		retention: cfg.ViolationRetention,
	}
}

// Throttle exposes the underlying adaptive throttle for decay scheduling.
func (f *Facade) Throttle() *Throttle {
	return f.throttle
}

// CheckAndRecord resolves the endpoint policy, scales it by the subject's
// adaptive state, and evaluates the sliding-window checks. On allow the
// request timestamp is recorded; on denial the violation is recorded and
// the throttle notified. Side effects are confined to the passed-in state
// and the process-wide counters.
func (f *Facade) CheckAndRecord(st *SubjectState, subjectID, endpoint string, privileged bool, now time.Time) Decision {
	base := f.table.Resolve(endpoint, privileged)
	effective := f.throttle.Scale(base, &st.Adaptive)

	w, ok := st.windows[endpoint]
	if !ok {
		w = &requestWindow{}
		st.windows[endpoint] = w
	}

	decision := w.evaluate(effective, now)
	if decision.Allowed {
		w.record(now)
		f.allowed.Add(1)
		metrics.RequestsAllowed.WithLabelValues(string(decision.Tier)).Inc()
		return decision
	}

	f.recordViolation(st, subjectID, endpoint, decision, now)
	return decision
}

// RecordEscalation injects a violation that did not come from a limiter
// check, e.g. a behavioral anomaly event. It feeds the same throttle
// escalation path as a denied request.
func (f *Facade) RecordEscalation(st *SubjectState, subjectID, reason string, now time.Time) {
	decision := Decision{
		Allowed: false,
		Code:    DenyEscalated,
		Reason:  reason,
		Tier:    TierStandard,
	}
	f.recordViolation(st, subjectID, "behavior", decision, now)
}

func (f *Facade) recordViolation(st *SubjectState, subjectID, endpoint string, d Decision, now time.Time) {
	escalated := f.throttle.OnViolation(&st.Adaptive, now)
	if escalated {
		metrics.ThrottleEscalations.Inc()
	}

	st.violations = append(st.violations, ViolationRecord{
		SubjectID: subjectID,
		Endpoint:  endpoint,
		Reason:    d.Reason,
		Code:      d.Code,
		Timestamp: now,
	})

	f.denied.Add(1)
	metrics.RequestsDenied.WithLabelValues(string(d.Tier), d.Code).Inc()
}

// Decay runs the throttle relaxation for one subject. Returns true when
// the adaptive state fully reset.
func (f *Facade) Decay(st *SubjectState, now time.Time) bool {
	reset := f.throttle.Decay(&st.Adaptive, now)
	if reset {
		metrics.ThrottleResets.Inc()
	}
	return reset
}

// Violations returns the subject's retained violation records, newest
// last. The returned slice is a copy.
func (f *Facade) Violations(st *SubjectState) []ViolationRecord {
	out := make([]ViolationRecord, len(st.violations))
	copy(out, st.violations)
	return out
}

// ViolationsSince counts violations at or after the cutoff. Used by the
// behavior analyzer's cross-signal.
func (f *Facade) ViolationsSince(st *SubjectState, cutoff time.Time) int {
	n := 0
	for i := len(st.violations) - 1; i >= 0; i-- {
		if st.violations[i].Timestamp.Before(cutoff) {
			break
		}
		n++
	}
	return n
}

// Prune drops request timestamps outside their policy windows and
// violations older than the retention window. Empty endpoint windows are
// removed entirely.
func (f *Facade) Prune(st *SubjectState, now time.Time) {
	// Request windows can be pruned with the widest configured window;
	// the per-check evaluate() already prunes with the effective window.
	maxWindow := f.maxConfiguredWindow(&st.Adaptive)
	for endpoint, w := range st.windows {
		w.prune(now, maxWindow)
		if len(w.times) == 0 {
			delete(st.windows, endpoint)
		}
	}

	cutoff := now.Add(-f.retention)
	i := 0
	for i < len(st.violations) && st.violations[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		st.violations = append(st.violations[:0], st.violations[i:]...)
	}
}

func (f *Facade) maxConfiguredWindow(state *AdaptiveState) time.Duration {
	var max time.Duration
	for _, p := range f.table.tiers {
		if p.Window > max {
			max = p.Window
		}
	}
	// Scaled windows stretch by the multiplier; keep those entries too.
	if state.ThrottleMultiplier > 1.0 {
		max = time.Duration(float64(max) * state.ThrottleMultiplier)
	}
	return max
}

// Stats returns the process-wide allowed/denied counters.
func (f *Facade) Stats() (allowed, denied uint64) {
	return f.allowed.Load(), f.denied.Load()
}
