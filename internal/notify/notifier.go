// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package notify delivers anomaly events to external collaborators
// (moderation hooks, audit sinks, chat webhooks). The engine dispatches
// events here asynchronously; nothing in this package may block the
// gating decision path.
package notify

import (
	"context"
	"time"

	"github.com/guardline/guardline/internal/behavior"
)

// Event is one anomaly detection emitted by the engine.
type Event struct {
	ID        string            `json:"id"`
	SubjectID string            `json:"subject_id"`
	Score     float64           `json:"score"`
	Category  behavior.Category `json:"category"`
	Details   string            `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier sends anomaly events to an external system.
type Notifier interface {
	// Send delivers an event. Implementations may drop events under
	// pressure; they must never block indefinitely.
	Send(ctx context.Context, event *Event) error

	// Name returns the notifier name for logs and metrics.
	Name() string

	// Enabled reports whether this notifier is active.
	Enabled() bool
}
