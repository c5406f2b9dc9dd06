// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

// Package websocket streams live anomaly alerts and engine stats to
// connected operators. The hub fans one broadcast channel out to every
// client; slow clients are dropped rather than allowed to stall the
// engine's tick loops.
package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/guardline/guardline/internal/logging"
)

// Message types pushed to clients.
const (
	MessageTypeAnomalyAlert = "anomaly_alert"
	MessageTypeStatsUpdate  = "stats_update"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message is the envelope for every frame on the wire.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub loop until the context is canceled, then
// closes every client and returns ctx.Err(). Designed for suture
// supervision. Lifecycle events are drained before broadcasts so client
// state is consistent when a message fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Drain pending lifecycle events before the blocking wait.
		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.drop()
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// broadcastToClients fans a message out in client-ID order. A client
// whose send buffer is full is dropped; alert delivery is best-effort
// and must never block the hub.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		if !client.trySend(message) {
			client.drop()
			delete(h.clients, client)
		}
	}
}

// shutdown closes every client and logs the reason. Context cancellation
// is the normal shutdown path, not an error.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		client.drop()
		delete(h.clients, client)
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

// BroadcastJSON queues a typed message for every connected client. It
// never blocks: when the broadcast buffer is full the message is dropped
// with a warning.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{Type: messageType, Data: data}

	select {
	case h.broadcast <- message:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// StatsUpdateData is the payload of a stats_update frame.
type StatsUpdateData struct {
	Timestamp       string `json:"timestamp"`
	RequestsAllowed uint64 `json:"requests_allowed"`
	RequestsDenied  uint64 `json:"requests_denied"`
	SubjectsTracked int    `json:"subjects_tracked"`
}

// BroadcastStatsUpdate pushes an engine counter snapshot to all clients.
func (h *Hub) BroadcastStatsUpdate(allowed, denied uint64, tracked int) {
	h.BroadcastJSON(MessageTypeStatsUpdate, StatsUpdateData{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		RequestsAllowed: allowed,
		RequestsDenied:  denied,
		SubjectsTracked: tracked,
	})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
