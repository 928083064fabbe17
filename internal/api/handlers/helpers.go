// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("api: encode response failed")
		}
	}
}

// RespondError sends an error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondServiceError maps service errors to HTTP statuses.
func RespondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrJobNotFound),
		errors.Is(err, models.ErrBatchNotFound),
		errors.Is(err, models.ErrFileEntryNotFound),
		errors.Is(err, models.ErrTrackerNotFound):
		RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	switch errkind.KindOf(err) {
	case errkind.KindValidation:
		RespondError(w, http.StatusBadRequest, err.Error())
	case errkind.KindDuplicateRelease:
		RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("api: request failed")
		RespondError(w, http.StatusInternalServerError, err.Error())
	}
}

// DecodeJSON decodes the request body. On failure the error response is
// already written and false is returned.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// IDParam extracts the {id} URL parameter. On failure the error response
// is already written and false is returned.
func IDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		RespondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
