// Guardline - Adaptive Abuse Prevention for Interactive Services
// Copyright 2026 Guardline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/guardline/guardline

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/guardline/guardline/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
