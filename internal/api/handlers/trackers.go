// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/services/trackersvc"
	"github.com/seedarr/seedarr/internal/tracker"
)

// TrackerInstances resolves a stored tracker into a live instance.
type TrackerInstances interface {
	Instance(ctx context.Context, slug string) (*trackersvc.Instance, error)
	Invalidate(slug string)
}

// TrackersHandler serves the tracker configuration endpoints.
type TrackersHandler struct {
	store     *models.TrackerStore
	instances TrackerInstances
}

// NewTrackersHandler creates a TrackersHandler.
func NewTrackersHandler(store *models.TrackerStore, instances TrackerInstances) *TrackersHandler {
	return &TrackersHandler{store: store, instances: instances}
}

// Routes mounts the handler.
func (h *TrackersHandler) Routes(r chi.Router) {
	r.Route("/trackers", func(r chi.Router) {
		r.Get("/", h.list)
		r.Put("/{slug}", h.update)
		r.Post("/{slug}/test", h.test)
	})
}

// trackerView is the list representation: credentials appear only in
// redacted form, which update accepts back as "keep the stored value".
type trackerView struct {
	*models.Tracker
	APIKey  string `json:"apiKey,omitempty"`
	Passkey string `json:"passkey,omitempty"`
}

func (h *TrackersHandler) list(w http.ResponseWriter, r *http.Request) {
	trackers, err := h.store.List(r.Context())
	if err != nil {
		RespondServiceError(w, err)
		return
	}

	views := make([]trackerView, 0, len(trackers))
	for _, row := range trackers {
		apiKey, passkey, err := h.store.Credentials(row)
		if err != nil {
			RespondServiceError(w, err)
			return
		}
		views = append(views, trackerView{
			Tracker: row,
			APIKey:  domain.RedactString(apiKey),
			Passkey: domain.RedactString(passkey),
		})
	}
	RespondJSON(w, http.StatusOK, views)
}

type updateTrackerRequest struct {
	APIKey  *string `json:"apiKey"`
	Passkey *string `json:"passkey"`
	Enabled *bool   `json:"enabled"`
}

// update stores new credentials and flips the enabled flag. Clients that
// only toggle the flag send the redacted credential form back, which means
// "keep what is stored".
func (h *TrackersHandler) update(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req updateTrackerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	row, err := h.store.GetBySlug(r.Context(), slug)
	if err != nil {
		RespondServiceError(w, err)
		return
	}

	if req.APIKey != nil || req.Passkey != nil {
		apiKey, passkey, err := h.store.Credentials(row)
		if err != nil {
			RespondServiceError(w, err)
			return
		}
		if req.APIKey != nil && !domain.IsRedactedValue(*req.APIKey) {
			apiKey = *req.APIKey
		}
		if req.Passkey != nil && !domain.IsRedactedValue(*req.Passkey) {
			passkey = *req.Passkey
		}
		if err := h.store.UpdateCredentials(r.Context(), row.ID, apiKey, passkey); err != nil {
			RespondServiceError(w, err)
			return
		}
	}

	if req.Enabled != nil {
		if err := h.store.SetEnabled(r.Context(), row.ID, *req.Enabled); err != nil {
			RespondServiceError(w, err)
			return
		}
	}

	h.instances.Invalidate(slug)

	updated, err := h.store.GetBySlug(r.Context(), slug)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

type testRequest struct {
	// Op is "auth", "search" or "upload".
	Op string `json:"op"`
}

// test runs a non-destructive connectivity check against the tracker.
// The upload op is a dry run; nothing is published.
func (h *TrackersHandler) test(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req testRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}
	if req.Op == "" {
		req.Op = "auth"
	}

	inst, err := h.instances.Instance(r.Context(), slug)
	if err != nil {
		RespondServiceError(w, err)
		return
	}

	switch req.Op {
	case "auth":
		RespondJSON(w, http.StatusOK, inst.TestAuth(r.Context()))
	case "search":
		RespondJSON(w, http.StatusOK, inst.TestSearch(r.Context()))
	case "upload":
		RespondJSON(w, http.StatusOK, inst.TestUpload(sampleUploadContext()))
	default:
		RespondError(w, http.StatusBadRequest, "op must be auth, search or upload")
	}
}

// sampleUploadContext is a synthetic release for upload dry runs. Nothing
// is transmitted; the adapter only builds and validates the payload.
func sampleUploadContext() tracker.Context {
	return tracker.Context{
		"torrent_data": []byte("d8:announce0:4:infod4:name4:teste e"),
		"release_name": "Connectivity.Test.2026.1080p.WEB-DL.H.264-SEEDARR",
		"name":         "Connectivity.Test.2026.1080p.WEB-DL.H.264-SEEDARR",
		"description":  "connectivity test",
		"mediainfo":    "connectivity test",
		"tmdb_id":      int64(0),
		"category":     "1",
	}
}
