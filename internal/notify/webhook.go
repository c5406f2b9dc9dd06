// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/guardline/guardline/internal/config"
	"github.com/guardline/guardline/internal/metrics"
)

// WebhookNotifier POSTs anomaly events as JSON to a configured endpoint.
// Sends are paced by a token-bucket limiter (excess events are dropped,
// not queued) and guarded by a circuit breaker so a dead endpoint cannot
// pile up goroutines.
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu      sync.RWMutex
	enabled bool
}

// WebhookPayload is the JSON body sent to the webhook endpoint.
type WebhookPayload struct {
	Event     *Event    `json:"event"`
	EventType string    `json:"event_type"` // always "anomaly_detected"
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // always "guardline"
}

// NewWebhookNotifier creates a webhook notifier from configuration.
func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	headers := make(map[string]string, len(cfg.WebhookHeaders))
	for k, v := range cfg.WebhookHeaders {
		headers[k] = v
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "webhook-notifier",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &WebhookNotifier{
		url:     cfg.WebhookURL,
		headers: headers,
		enabled: cfg.WebhookEnabled,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		breaker: breaker,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the notifier name.
func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Enabled reports whether the notifier is active.
func (n *WebhookNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled && n.url != ""
}

// SetEnabled enables or disables the notifier.
func (n *WebhookNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Send delivers an event to the webhook endpoint. Events beyond the send
// rate are dropped silently (recorded in metrics) rather than queued.
func (n *WebhookNotifier) Send(ctx context.Context, event *Event) error {
	if !n.Enabled() {
		return nil
	}

	if !n.limiter.Allow() {
		metrics.NotificationsSent.WithLabelValues(n.Name(), "dropped").Inc()
		return nil
	}

	payload := WebhookPayload{
		Event:     event,
		EventType: "anomaly_detected",
		Timestamp: time.Now(),
		Source:    "guardline",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	_, err = n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.post(ctx, body)
	})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(n.Name(), "error").Inc()
		return fmt.Errorf("webhook send: %w", err)
	}

	metrics.NotificationsSent.WithLabelValues(n.Name(), "ok").Inc()
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	n.mu.RLock()
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}
	n.mu.RUnlock()

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
