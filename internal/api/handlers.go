// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/guardline/guardline/internal/behavior"
	"github.com/guardline/guardline/internal/engine"
	"github.com/guardline/guardline/internal/limiter"
	"github.com/guardline/guardline/internal/logging"
	"github.com/guardline/guardline/internal/websocket"
)

// Handler serves the Guardline API against one engine instance.
type Handler struct {
	engine   *engine.Engine
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

// NewHandler creates the API handler. hub may be nil when the alert
// stream is not wired, in which case /alerts/stream returns 503.
func NewHandler(eng *engine.Engine, hub *websocket.Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}

	return &Handler{
		engine: eng,
		hub:    hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || wildcard {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// checkRequest is the body of POST /api/v1/check.
type checkRequest struct {
	SubjectID  string `json:"subject_id"`
	Endpoint   string `json:"endpoint"`
	Privileged bool   `json:"privileged,omitempty"`
}

// checkResponse reports the gating decision. A denial is a 200 with
// allowed=false; HTTP errors are reserved for malformed requests.
type checkResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Check gates one inbound action for a subject.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	allowed, reason, err := h.engine.CheckAndRecord(req.SubjectID, req.Endpoint, req.Privileged, time.Now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, checkResponse{Allowed: allowed, Reason: reason})
}

// actionRequest is the body of POST /api/v1/telemetry/action.
type actionRequest struct {
	SubjectID  string                 `json:"subject_id"`
	ActionType string                 `json:"action_type"`
	ActionData map[string]interface{} `json:"action_data,omitempty"`
}

// RecordAction ingests one action telemetry sample.
func (h *Handler) RecordAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.engine.RecordAction(req.SubjectID, req.ActionType, req.ActionData, time.Now()); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// movementRequest is the body of POST /api/v1/telemetry/movement.
type movementRequest struct {
	SubjectID string        `json:"subject_id"`
	Position  behavior.Vec3 `json:"position"`
	Velocity  behavior.Vec3 `json:"velocity"`
}

// RecordMovement ingests one movement telemetry sample.
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.engine.RecordMovement(req.SubjectID, req.Position, req.Velocity, time.Now()); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// analysisResponse wraps a behavior snapshot with its subject.
type analysisResponse struct {
	SubjectID string `json:"subject_id"`
	behavior.Analysis
}

// SubjectAnalysis returns the behavioral analysis snapshot for a subject.
// Unknown subjects answer with the fresh-state analysis, not 404: an
// evicted subject and a never-seen one are indistinguishable.
func (h *Handler) SubjectAnalysis(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "id")
	respondJSON(w, http.StatusOK, analysisResponse{
		SubjectID: subjectID,
		Analysis:  h.engine.GetAnalysis(subjectID),
	})
}

// violationsResponse lists a subject's retained violations.
type violationsResponse struct {
	SubjectID  string                    `json:"subject_id"`
	Violations []limiter.ViolationRecord `json:"violations"`
}

// SubjectViolations returns the subject's retained violation records.
func (h *Handler) SubjectViolations(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "id")
	violations := h.engine.Violations(subjectID)
	if violations == nil {
		violations = []limiter.ViolationRecord{}
	}
	respondJSON(w, http.StatusOK, violationsResponse{SubjectID: subjectID, Violations: violations})
}

// EvictSubject removes all state for a subject, typically called when
// the subject disconnects. Evicting an unknown subject is a no-op 204.
func (h *Handler) EvictSubject(w http.ResponseWriter, r *http.Request) {
	h.engine.EvictSubject(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// Stats returns process-wide counters.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Stats())
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AlertStream upgrades the connection and attaches it to the alert hub.
func (h *Handler) AlertStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "alert stream not enabled")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
