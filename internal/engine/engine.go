// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package engine composes the rate limiter and the behavior analyzer
// into the abuse-prevention facade. It owns the per-subject state store
// and routes the cross-signals between the two halves: behavioral
// anomalies escalate the adaptive throttle, and repeated throttle
// violations feed the behavioral risk score.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guardline/guardline/internal/behavior"
	"github.com/guardline/guardline/internal/config"
	"github.com/guardline/guardline/internal/limiter"
	"github.com/guardline/guardline/internal/logging"
	"github.com/guardline/guardline/internal/metrics"
	"github.com/guardline/guardline/internal/notify"
)

// Caller errors. A denied request is NOT an error; denials are normal
// negative results carried in the returned reason.
var (
	ErrInvalidSubject  = errors.New("subject id must not be empty")
	ErrInvalidEndpoint = errors.New("endpoint name must not be empty")
	ErrInvalidAction   = errors.New("action type must not be empty")
)

// notifyTimeout bounds each asynchronous notifier dispatch.
const notifyTimeout = 5 * time.Second

// Broadcaster pushes anomaly events to live observability clients.
// Satisfied by the websocket hub.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// statsBroadcaster is the optional second half of Broadcaster: periodic
// counter snapshots alongside the anomaly alerts.
type statsBroadcaster interface {
	BroadcastStatsUpdate(allowed, denied uint64, tracked int)
}

// Stats is a process-wide counter snapshot.
type Stats struct {
	RequestsAllowed uint64 `json:"requests_allowed"`
	RequestsDenied  uint64 `json:"requests_denied"`
	SubjectsTracked int    `json:"subjects_tracked"`
}

// subjectEntry bundles one subject's limiter state and behavior profile.
// Its mutex serializes all mutation of that subject; different subjects
// never contend with each other beyond the store map lock.
type subjectEntry struct {
	mu       sync.Mutex
	limiter  *limiter.SubjectState
	profile  *behavior.Profile
	lastSeen time.Time

	// anomalyActive edge-triggers the out-of-band anomaly event: one
	// event per excursion above the threshold, not one per micro tick.
	anomalyActive bool
}

// Engine is the top-level abuse-prevention facade.
type Engine struct {
	cfg       config.EngineConfig
	baseline  float64
	gate      *limiter.Facade
	agg       *behavior.Aggregator
	auth      Authorizer
	notifiers []notify.Notifier

	mu          sync.RWMutex
	subjects    map[string]*subjectEntry
	broadcaster Broadcaster
}

// New creates the engine from configuration.
func New(cfg *config.Config, auth Authorizer) *Engine {
	if auth == nil {
		auth = NewAllowlistAuthorizer(cfg.Engine.PrivilegedSubjects)
	}
	return &Engine{
		cfg:      cfg.Engine,
		baseline: cfg.Behavior.FrequencyBaseline,
		gate:     limiter.NewFacade(cfg.Limiter),
		agg:      behavior.NewAggregator(cfg.Behavior),
		auth:     auth,
		subjects: make(map[string]*subjectEntry),
	}
}

// RegisterNotifier adds an anomaly notifier.
func (e *Engine) RegisterNotifier(n notify.Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifiers = append(e.notifiers, n)
	logging.Info().Str("notifier", n.Name()).Msg("registered notifier")
}

// SetBroadcaster wires the live alert broadcaster.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

// getOrCreate returns the subject's entry, lazily creating it. A missing
// entry is never an error: an evicted or never-seen subject simply
// starts fresh.
func (e *Engine) getOrCreate(subjectID string, now time.Time) *subjectEntry {
	e.mu.RLock()
	entry, ok := e.subjects[subjectID]
	e.mu.RUnlock()
	if ok {
		return entry
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok = e.subjects[subjectID]; ok {
		return entry
	}
	entry = &subjectEntry{
		limiter:  limiter.NewSubjectState(),
		profile:  behavior.NewProfile(now, e.baseline),
		lastSeen: now,
	}
	e.subjects[subjectID] = entry
	metrics.SubjectsTracked.Set(float64(len(e.subjects)))
	return entry
}

func (e *Engine) lookup(subjectID string) (*subjectEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.subjects[subjectID]
	return entry, ok
}

// CheckAndRecord is the sole gating entry point, called once per inbound
// action before it executes. It returns synchronously; all side effects
// are confined to the subject's own state and process-wide counters.
func (e *Engine) CheckAndRecord(subjectID, endpoint string, isPrivileged bool, now time.Time) (bool, string, error) {
	if subjectID == "" {
		return false, "", ErrInvalidSubject
	}
	if endpoint == "" {
		return false, "", ErrInvalidEndpoint
	}
	defer metrics.ObserveCheck(time.Now())

	privileged := isPrivileged || e.auth.IsPrivileged(subjectID)

	entry := e.getOrCreate(subjectID, now)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	decision := e.gate.CheckAndRecord(entry.limiter, subjectID, endpoint, privileged, now)
	entry.lastSeen = now

	if !decision.Allowed {
		logging.Debug().
			Str("subject", subjectID).
			Str("endpoint", endpoint).
			Str("code", decision.Code).
			Msg("request denied")
	}
	return decision.Allowed, decision.Reason, nil
}

// RecordAction ingests one observed action invocation. actionData is
// opaque collaborator payload, carried for audit parity but not scored.
func (e *Engine) RecordAction(subjectID, actionType string, actionData map[string]interface{}, now time.Time) error {
	if subjectID == "" {
		return ErrInvalidSubject
	}
	if actionType == "" {
		return ErrInvalidAction
	}
	_ = actionData

	entry := e.getOrCreate(subjectID, now)
	entry.mu.Lock()
	entry.profile.AddAction(actionType, now)
	entry.lastSeen = now
	entry.mu.Unlock()

	metrics.TelemetrySamples.WithLabelValues("action").Inc()
	return nil
}

// RecordMovement ingests one observed position/velocity sample.
func (e *Engine) RecordMovement(subjectID string, position, velocity behavior.Vec3, now time.Time) error {
	if subjectID == "" {
		return ErrInvalidSubject
	}

	entry := e.getOrCreate(subjectID, now)
	entry.mu.Lock()
	entry.profile.AddMovement(position, velocity, now)
	entry.lastSeen = now
	entry.mu.Unlock()

	metrics.TelemetrySamples.WithLabelValues("movement").Inc()
	return nil
}

// GetAnalysis returns a read-only snapshot of the subject's behavioral
// state. A never-seen (or evicted) subject yields the fresh-state
// analysis; no state is created.
func (e *Engine) GetAnalysis(subjectID string) behavior.Analysis {
	entry, ok := e.lookup(subjectID)
	if !ok {
		return behavior.FreshAnalysis()
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.profile.Snapshot()
}

// Violations returns the subject's retained violation records.
func (e *Engine) Violations(subjectID string) []limiter.ViolationRecord {
	entry, ok := e.lookup(subjectID)
	if !ok {
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return e.gate.Violations(entry.limiter)
}

// TickMicro runs the fast-cadence feature scoring for every subject.
// When a subject's composite anomaly score crosses the hard threshold an
// out-of-band anomaly event fires immediately: it escalates the adaptive
// throttle and is dispatched to notifiers without waiting for the macro
// tick.
func (e *Engine) TickMicro(now time.Time) {
	for subjectID, entry := range e.snapshot() {
		entry.mu.Lock()
		score := e.agg.ScoreMicro(entry.profile, now)
		threshold := e.agg.AnomalyEventThreshold()

		var event *notify.Event
		if score >= threshold && !entry.anomalyActive {
			entry.anomalyActive = true
			category, _ := e.agg.Classify(entry.profile)
			e.gate.RecordEscalation(entry.limiter, subjectID,
				fmt.Sprintf("behavioral anomaly score %.2f exceeded threshold %.2f", score, threshold), now)
			event = &notify.Event{
				ID:        uuid.NewString(),
				SubjectID: subjectID,
				Score:     score,
				Category:  category,
				Details:   fmt.Sprintf("micro anomaly score %.2f exceeded threshold %.2f", score, threshold),
				Timestamp: now,
			}
		} else if score < threshold {
			entry.anomalyActive = false
		}
		entry.mu.Unlock()

		if event != nil {
			e.emitAnomaly(event)
		}
	}
}

// TickMacro runs the slow-cadence risk scoring, reclassification, and
// adaptive throttle decay for every subject.
func (e *Engine) TickMacro(now time.Time) {
	micro, _ := e.agg.Retention()
	categories := make(map[behavior.Category]int, 5)

	for _, entry := range e.snapshot() {
		entry.mu.Lock()
		recent := e.gate.ViolationsSince(entry.limiter, now.Add(-micro))
		e.agg.ScoreMacro(entry.profile, recent, now)
		category, _ := e.agg.Classify(entry.profile)
		e.gate.Decay(entry.limiter, now)
		entry.mu.Unlock()

		categories[category]++
	}

	for c := behavior.CategoryNormal; c <= behavior.CategoryAdvancedExploit; c++ {
		metrics.SubjectsByCategory.WithLabelValues(c.String()).Set(float64(categories[c]))
	}

	e.pushStats()
}

// pushStats sends a counter snapshot to the broadcaster when it accepts
// stats frames. The websocket hub does; test doubles may not.
func (e *Engine) pushStats() {
	e.mu.RLock()
	b := e.broadcaster
	e.mu.RUnlock()

	sb, ok := b.(statsBroadcaster)
	if !ok {
		return
	}
	s := e.Stats()
	sb.BroadcastStatsUpdate(s.RequestsAllowed, s.RequestsDenied, s.SubjectsTracked)
}

// EvictStale prunes every subject's aged-out buffers and evicts subjects
// idle past the TTL. Runs on the slowest cadence.
func (e *Engine) EvictStale(now time.Time) {
	micro, macro := e.agg.Retention()

	var stale []string
	for subjectID, entry := range e.snapshot() {
		entry.mu.Lock()
		if now.Sub(entry.lastSeen) > e.cfg.SubjectTTL {
			stale = append(stale, subjectID)
		} else {
			e.gate.Prune(entry.limiter, now)
			entry.profile.Prune(now, micro, macro)
		}
		entry.mu.Unlock()
	}

	for _, subjectID := range stale {
		e.EvictSubject(subjectID)
	}
}

// EvictSubject removes all state for a subject, typically on disconnect.
// Removing the map entry atomically cancels pending scoring and decay
// work for the subject; concurrent reads see it as never-seen.
func (e *Engine) EvictSubject(subjectID string) bool {
	e.mu.Lock()
	_, ok := e.subjects[subjectID]
	if ok {
		delete(e.subjects, subjectID)
		metrics.SubjectsTracked.Set(float64(len(e.subjects)))
	}
	e.mu.Unlock()

	if ok {
		metrics.SubjectsEvicted.Inc()
		logging.Debug().Str("subject", subjectID).Msg("subject evicted")
	}
	return ok
}

// Stats returns the process-wide counters.
func (e *Engine) Stats() Stats {
	allowed, denied := e.gate.Stats()
	e.mu.RLock()
	tracked := len(e.subjects)
	e.mu.RUnlock()
	return Stats{
		RequestsAllowed: allowed,
		RequestsDenied:  denied,
		SubjectsTracked: tracked,
	}
}

// snapshot copies the subject map so tick iteration never holds the
// store lock across per-subject work.
func (e *Engine) snapshot() map[string]*subjectEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*subjectEntry, len(e.subjects))
	for id, entry := range e.subjects {
		out[id] = entry
	}
	return out
}

// emitAnomaly dispatches an anomaly event to notifiers and the live
// broadcaster. Dispatch is asynchronous; it must never block a tick or
// the gating path.
func (e *Engine) emitAnomaly(event *notify.Event) {
	metrics.AnomalyEvents.WithLabelValues(event.Category.String()).Inc()
	logging.Warn().
		Str("subject", event.SubjectID).
		Float64("score", event.Score).
		Str("category", event.Category.String()).
		Msg("anomaly detected")

	e.mu.RLock()
	notifiers := make([]notify.Notifier, 0, len(e.notifiers))
	for _, n := range e.notifiers {
		if n.Enabled() {
			notifiers = append(notifiers, n)
		}
	}
	broadcaster := e.broadcaster
	e.mu.RUnlock()

	for _, n := range notifiers {
		go func(n notify.Notifier) {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := n.Send(ctx, event); err != nil {
				logging.Error().Err(err).Str("notifier", n.Name()).Msg("notifier send failed")
			}
		}(n)
	}

	if broadcaster != nil {
		broadcaster.BroadcastJSON("anomaly_alert", event)
	}
}

// RunWithContext drives the micro, macro, and eviction cadences until
// the context is canceled. Designed for suture supervision; a test
// harness can instead call the tick methods directly with a synthetic
// clock.
func (e *Engine) RunWithContext(ctx context.Context) error {
	logging.Info().
		Dur("micro_interval", e.cfg.MicroInterval).
		Dur("macro_interval", e.cfg.MacroInterval).
		Msg("abuse prevention engine started")

	microTicker := time.NewTicker(e.cfg.MicroInterval)
	defer microTicker.Stop()
	macroTicker := time.NewTicker(e.cfg.MacroInterval)
	defer macroTicker.Stop()
	evictTicker := time.NewTicker(e.cfg.EvictionInterval)
	defer evictTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("abuse prevention engine shutting down")
			return ctx.Err()
		case now := <-microTicker.C:
			e.TickMicro(now)
		case now := <-macroTicker.C:
			e.TickMacro(now)
		case now := <-evictTicker.C:
			e.EvictStale(now)
		}
	}
}
