// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/services/queue"
)

// QueueHandler serves the queue and batch endpoints.
type QueueHandler struct {
	queue *queue.Service
}

// NewQueueHandler creates a QueueHandler.
func NewQueueHandler(q *queue.Service) *QueueHandler {
	return &QueueHandler{queue: q}
}

// Routes mounts the handler.
func (h *QueueHandler) Routes(r chi.Router) {
	r.Route("/queue/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Post("/{id}/cancel", h.cancelJob)
	})

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", h.createBatch)
		r.Get("/", h.listBatches)
		r.Get("/{id}", h.getBatch)
		r.Post("/{id}/cancel", h.cancelBatch)
	})
}

func (h *QueueHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	state := models.JobState(r.URL.Query().Get("state"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.queue.Jobs(r.Context(), state, limit)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*models.QueueJob{}
	}
	RespondJSON(w, http.StatusOK, jobs)
}

func (h *QueueHandler) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(w, r)
	if !ok {
		return
	}

	if err := h.queue.CancelJob(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type createBatchRequest struct {
	Paths            []string `json:"paths"`
	Priority         string   `json:"priority"`
	ConcurrencyLimit int      `json:"concurrencyLimit"`
	MaxAttempts      int      `json:"maxAttempts"`
}

func (h *QueueHandler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	priority, err := models.ParseJobPriority(req.Priority)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.queue.CreateBatch(r.Context(), queue.BatchRequest{
		Paths:            req.Paths,
		Priority:         priority,
		ConcurrencyLimit: req.ConcurrencyLimit,
		MaxAttempts:      req.MaxAttempts,
	})
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, batch)
}

func (h *QueueHandler) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.queue.ActiveBatches(r.Context())
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	if batches == nil {
		batches = []*models.BatchJob{}
	}
	RespondJSON(w, http.StatusOK, batches)
}

func (h *QueueHandler) getBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(w, r)
	if !ok {
		return
	}

	batch, err := h.queue.Batch(r.Context(), id)
	if err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, batch)
}

func (h *QueueHandler) cancelBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := IDParam(w, r)
	if !ok {
		return
	}

	if err := h.queue.CancelBatch(r.Context(), id); err != nil {
		RespondServiceError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
