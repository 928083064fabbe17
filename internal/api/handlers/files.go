// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seedarr/seedarr/internal/models"
)

// Approver releases a file entry parked at the approval gate.
type Approver interface {
	Approve(ctx context.Context, id int64) (*models.FileEntry, error)
}

// FileEnqueuer schedules a file entry for processing.
type FileEnqueuer interface {
	EnqueueEntry(ctx context.Context, fileEntryID int64, priority models.JobPriority) (*models.QueueJob, error)
}

// FilesHandler serves the file entry endpoints.
type FilesHandler struct {
	entries  *models.FileEntryStore
	approver Approver
	queue    FileEnqueuer
}

// NewFilesHandler creates a FilesHandler.
func NewFilesHandler(entries *models.FileEntryStore, approver Approver, queue FileEnqueuer) *FilesHandler {
	return &FilesHandler{entries: entries, approver: approver, queue: queue}
}

// Routes mounts the handler.
func (h *FilesHandler) Routes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.list)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Get("/results", h.results)
			r.Post("/enqueue", h.enqueue)
			r.Post("/approve", h.approve)
		})
	})
}

func (h *FilesHandler) list(w http.ResponseWriter, r *http.Request) {
	status := models.FileStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.entries.List(r.Context(), status, limit)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*models.FileEntry{}
	}
	RespondJSON(w, http.StatusOK, entries)
}

func (h *FilesHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(w, r)
	if !ok {
		return
	}

	entry, err := h.entries.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}

func (h *FilesHandler) results(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.entries.Get(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}

	results, err := h.entries.TrackerResults(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	if results == nil {
		results = []models.TrackerResult{}
	}
	RespondJSON(w, http.StatusOK, results)
}

type enqueueRequest struct {
	Priority string `json:"priority"`
}

func (h *FilesHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(w, r)
	if !ok {
		return
	}

	var req enqueueRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}
	priority, err := models.ParseJobPriority(req.Priority)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.entries.Get(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}

	job, err := h.queue.EnqueueEntry(r.Context(), id, priority)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, job)
}

// approve releases a parked entry and immediately schedules it.
func (h *FilesHandler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(w, r)
	if !ok {
		return
	}

	entry, err := h.approver.Approve(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}

	if _, err := h.queue.EnqueueEntry(r.Context(), id, models.PriorityHigh); err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}
