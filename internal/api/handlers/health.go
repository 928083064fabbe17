// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seedarr/seedarr/pkg/breaker"
)

// HealthHandler reports liveness plus the circuit breaker states, so an
// operator can see which upstreams are currently shunned.
type HealthHandler struct {
	version  string
	breakers *breaker.Registry
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(version string, breakers *breaker.Registry) *HealthHandler {
	return &HealthHandler{version: version, breakers: breakers}
}

// Routes mounts the handler.
func (h *HealthHandler) Routes(r chi.Router) {
	r.Get("/health", h.health)
}

type healthResponse struct {
	Status   string           `json:"status"`
	Version  string           `json:"version"`
	Breakers []breaker.Status `json:"breakers"`
}

func (h *HealthHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: h.version}
	if h.breakers != nil {
		resp.Breakers = h.breakers.Statuses()
	}
	RespondJSON(w, http.StatusOK, resp)
}
