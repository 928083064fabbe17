// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
)

// BatchRequest describes a batch submission.
type BatchRequest struct {
	// Paths are the absolute media file paths to publish.
	Paths []string
	// Priority orders the batch's jobs against the rest of the queue.
	Priority models.JobPriority
	// ConcurrencyLimit caps how many of the batch's jobs run at once.
	// Zero means one at a time.
	ConcurrencyLimit int
	// MaxAttempts overrides the per-job attempt budget when positive.
	MaxAttempts int
}

// CreateBatch registers the files and enqueues one job per file under a
// shared concurrency cap. Files already known keep their entry; files with
// an active job keep that job.
func (s *Service) CreateBatch(ctx context.Context, req BatchRequest) (*models.BatchJob, error) {
	if len(req.Paths) == 0 {
		return nil, errkind.New(errkind.KindValidation, "batch requires at least one path")
	}

	batch, err := s.batches.Create(ctx, len(req.Paths), req.Priority, req.ConcurrencyLimit)
	if err != nil {
		return nil, err
	}

	for _, path := range req.Paths {
		entry, err := s.entries.GetOrCreate(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", path, err)
		}

		if _, err := s.jobs.Enqueue(ctx, entry.ID, models.EnqueueOptions{
			Priority:    req.Priority,
			MaxAttempts: req.MaxAttempts,
			BatchID:     &batch.ID,
		}); err != nil {
			return nil, fmt.Errorf("enqueue %s: %w", path, err)
		}
	}

	log.Info().Int64("batchId", batch.ID).Int("files", len(req.Paths)).
		Str("priority", req.Priority.String()).Msg("queue: batch created")
	return batch, nil
}

// EnqueueEntry schedules a single file entry outside any batch. Idempotent
// for entries that already have an active job.
func (s *Service) EnqueueEntry(ctx context.Context, fileEntryID int64, priority models.JobPriority) (*models.QueueJob, error) {
	return s.jobs.Enqueue(ctx, fileEntryID, models.EnqueueOptions{Priority: priority})
}

// CancelBatch cancels the batch's queued jobs immediately. Running jobs
// observe the cancelled batch cooperatively before their next dispatch.
func (s *Service) CancelBatch(ctx context.Context, batchID int64) error {
	batch, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == models.BatchStatusCompleted || batch.Status == models.BatchStatusCancelled {
		return errkind.New(errkind.KindValidation, "batch %d is already %s", batchID, batch.Status)
	}

	cancelled, err := s.jobs.CancelByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if err := s.batches.SetStatus(ctx, batchID, models.BatchStatusCancelled); err != nil {
		return err
	}

	log.Info().Int64("batchId", batchID).Int64("jobs", cancelled).Msg("queue: batch cancelled")
	return nil
}

// Batch returns the batch with current progress counters.
func (s *Service) Batch(ctx context.Context, batchID int64) (*models.BatchJob, error) {
	return s.batches.Get(ctx, batchID)
}

// ActiveBatches returns pending and running batches.
func (s *Service) ActiveBatches(ctx context.Context) ([]*models.BatchJob, error) {
	return s.batches.ListActive(ctx)
}

// Jobs lists queue jobs filtered by state.
func (s *Service) Jobs(ctx context.Context, state models.JobState, limit int) ([]*models.QueueJob, error) {
	return s.jobs.List(ctx, state, limit)
}

// CancelJob cancels one queued or running job.
func (s *Service) CancelJob(ctx context.Context, id int64) error {
	return s.jobs.Cancel(ctx, id)
}

func batchSummary(b *models.BatchJob) string {
	return fmt.Sprintf("batch finished: %d completed, %d failed, %d cancelled of %d",
		b.Completed, b.Failed, b.Cancelled, b.Total)
}
