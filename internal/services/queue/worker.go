// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package queue runs the durable job queue: a fixed pool of workers claims
// jobs from the store, drives each file entry through the pipeline, and
// applies the retry policy. Jobs survive restarts; stale claims from a
// crashed process are requeued at startup.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/services/notifications"
)

// Processor drives one file entry through the pipeline.
type Processor interface {
	Process(ctx context.Context, fileEntryID int64) (*models.FileEntry, error)
	FinalizePartial(ctx context.Context, fileEntryID int64) (bool, error)
}

// Options tunes the worker pool.
type Options struct {
	// WorkerCount is the number of concurrent workers, minimum 1.
	WorkerCount int
	// StaleGrace is how long a running claim may predate startup before it
	// is requeued as abandoned.
	StaleGrace time.Duration
	// PollInterval is the idle sleep between claim attempts.
	PollInterval time.Duration
	// DeferDelay is how long a batch-capped job waits before re-dispatch.
	DeferDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.WorkerCount < 1 {
		o.WorkerCount = 1
	}
	if o.StaleGrace <= 0 {
		o.StaleGrace = 5 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.DeferDelay <= 0 {
		o.DeferDelay = 5 * time.Second
	}
	return o
}

// Service owns the worker pool and the batch controller.
type Service struct {
	opts    Options
	jobs    *models.QueueStore
	batches *models.BatchStore
	entries *models.FileEntryStore
	proc    Processor
	events  notifications.Publisher
}

// NewService creates a Service.
func NewService(opts Options, jobs *models.QueueStore, batches *models.BatchStore,
	entries *models.FileEntryStore, proc Processor, events notifications.Publisher) *Service {
	return &Service{
		opts:    opts.withDefaults(),
		jobs:    jobs,
		batches: batches,
		entries: entries,
		proc:    proc,
		events:  events,
	}
}

// Start recovers stale claims and runs the worker pool until ctx is
// cancelled. It blocks.
func (s *Service) Start(ctx context.Context) error {
	reset, err := s.jobs.ResetStale(ctx, s.opts.StaleGrace)
	if err != nil {
		return err
	}
	if reset > 0 {
		log.Info().Int64("jobs", reset).Msg("queue: requeued stale claims from previous run")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.opts.WorkerCount; i++ {
		worker := i
		g.Go(func() error {
			s.workerLoop(ctx, worker)
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) workerLoop(ctx context.Context, worker int) {
	log.Debug().Int("worker", worker).Msg("queue: worker started")
	for {
		if ctx.Err() != nil {
			log.Debug().Int("worker", worker).Msg("queue: worker stopped")
			return
		}

		job, err := s.jobs.Claim(ctx)
		if errors.Is(err, models.ErrNoJobReady) {
			s.sleep(ctx, s.opts.PollInterval)
			continue
		}
		if err != nil {
			log.Error().Err(err).Int("worker", worker).Msg("queue: claim failed")
			s.sleep(ctx, s.opts.PollInterval)
			continue
		}

		s.runJob(ctx, job)
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// runJob executes one claimed job and settles its outcome.
func (s *Service) runJob(ctx context.Context, job *models.QueueJob) {
	if job.BatchID != nil {
		proceed, err := s.admitBatchJob(ctx, job)
		if err != nil {
			log.Error().Err(err).Int64("jobId", job.ID).Msg("queue: batch admission failed")
			s.sleep(ctx, s.opts.PollInterval)
			return
		}
		if !proceed {
			return
		}
	}

	log.Debug().Int64("jobId", job.ID).Int64("fileEntryId", job.FileEntryID).
		Int("attempt", job.Attempt).Msg("queue: running job")

	entry, err := s.proc.Process(ctx, job.FileEntryID)
	if err == nil {
		s.settleDone(ctx, job, entry)
		return
	}
	s.settleError(ctx, job, err)
}

// admitBatchJob enforces the batch concurrency cap and cooperative
// cancellation. It reports whether the job should run.
func (s *Service) admitBatchJob(ctx context.Context, job *models.QueueJob) (bool, error) {
	batch, err := s.batches.Get(ctx, *job.BatchID)
	if err != nil {
		return false, err
	}

	if batch.Status == models.BatchStatusCancelled {
		if err := s.jobs.Cancel(ctx, job.ID); err != nil {
			return false, err
		}
		if err := s.entries.MarkCancelled(ctx, job.FileEntryID); err != nil {
			log.Error().Err(err).Int64("fileEntryId", job.FileEntryID).Msg("queue: mark cancelled failed")
		}
		return false, s.batches.RecordOutcome(ctx, batch.ID, models.JobStateCancelled)
	}

	running, err := s.jobs.RunningCountForBatch(ctx, batch.ID, job.ID)
	if err != nil {
		return false, err
	}
	if running >= batch.ConcurrencyLimit {
		log.Debug().Int64("jobId", job.ID).Int64("batchId", batch.ID).
			Int("running", running).Msg("queue: batch at concurrency cap, deferring")
		return false, s.jobs.Defer(ctx, job.ID, s.opts.DeferDelay)
	}

	if batch.Status == models.BatchStatusPending {
		if err := s.batches.SetStatus(ctx, batch.ID, models.BatchStatusRunning); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Service) settleDone(ctx context.Context, job *models.QueueJob, entry *models.FileEntry) {
	if err := s.jobs.Complete(ctx, job.ID); err != nil {
		log.Error().Err(err).Int64("jobId", job.ID).Msg("queue: complete failed")
		return
	}
	if entry != nil {
		log.Info().Int64("jobId", job.ID).Int64("fileEntryId", entry.ID).
			Str("status", string(entry.Status)).Msg("queue: job done")
	}
	s.recordBatchOutcome(ctx, job, models.JobStateDone)
}

func (s *Service) settleError(ctx context.Context, job *models.QueueJob, procErr error) {
	kind := errkind.KindOf(procErr)

	if kind == errkind.KindUserCancelled {
		if err := s.jobs.Cancel(ctx, job.ID); err != nil {
			log.Error().Err(err).Int64("jobId", job.ID).Msg("queue: cancel failed")
			return
		}
		if err := s.entries.MarkCancelled(ctx, job.FileEntryID); err != nil {
			log.Error().Err(err).Int64("fileEntryId", job.FileEntryID).Msg("queue: mark cancelled failed")
		}
		s.recordBatchOutcome(ctx, job, models.JobStateCancelled)
		return
	}

	if errkind.IsRetryable(procErr) {
		delay := retryDelay(job.Attempt, errkind.RetryAfterOf(procErr))
		updated, err := s.jobs.Requeue(ctx, job.ID, delay, procErr.Error())
		if err != nil {
			log.Error().Err(err).Int64("jobId", job.ID).Msg("queue: requeue failed")
			return
		}
		if updated.State == models.JobStateQueued {
			log.Warn().Err(procErr).Int64("jobId", job.ID).Int("attempt", updated.Attempt).
				Dur("delay", delay).Msg("queue: retryable failure, requeued")
			return
		}
		// Attempt budget exhausted. A partially uploaded entry still
		// counts as published when at least one tracker settled.
		finalized, ferr := s.proc.FinalizePartial(ctx, job.FileEntryID)
		if ferr != nil {
			log.Error().Err(ferr).Int64("fileEntryId", job.FileEntryID).Msg("queue: finalize partial failed")
		}
		if finalized {
			log.Warn().Int64("fileEntryId", job.FileEntryID).
				Msg("queue: attempts exhausted, finalized with partial tracker coverage")
			s.recordBatchOutcome(ctx, job, models.JobStateDone)
			return
		}
		s.failEntry(ctx, job, kind, procErr)
		return
	}

	if err := s.jobs.Fail(ctx, job.ID, procErr.Error()); err != nil {
		log.Error().Err(err).Int64("jobId", job.ID).Msg("queue: fail failed")
		return
	}
	s.failEntry(ctx, job, kind, procErr)
}

func (s *Service) failEntry(ctx context.Context, job *models.QueueJob, kind errkind.Kind, procErr error) {
	log.Error().Err(procErr).Int64("jobId", job.ID).Int64("fileEntryId", job.FileEntryID).
		Str("kind", string(kind)).Msg("queue: job failed")

	if err := s.entries.MarkFailed(ctx, job.FileEntryID, string(kind), procErr.Error()); err != nil {
		log.Error().Err(err).Int64("fileEntryId", job.FileEntryID).Msg("queue: mark failed failed")
	}

	event := notifications.Event{
		Type:        notifications.EventFileFailed,
		FileEntryID: job.FileEntryID,
		ErrorKind:   string(kind),
		Message:     procErr.Error(),
	}
	if job.BatchID != nil {
		event.BatchID = *job.BatchID
	}
	s.publish(event)

	s.recordBatchOutcome(ctx, job, models.JobStateFailed)
}

func (s *Service) recordBatchOutcome(ctx context.Context, job *models.QueueJob, state models.JobState) {
	if job.BatchID == nil {
		return
	}

	if err := s.batches.RecordOutcome(ctx, *job.BatchID, state); err != nil {
		log.Error().Err(err).Int64("batchId", *job.BatchID).Msg("queue: record batch outcome failed")
		return
	}

	batch, err := s.batches.Get(ctx, *job.BatchID)
	if err != nil {
		return
	}
	if batch.Status == models.BatchStatusCompleted {
		s.publish(notifications.Event{
			Type:    notifications.EventBatchCompleted,
			BatchID: batch.ID,
			Message: batchSummary(batch),
		})
	}
}

func (s *Service) publish(event notifications.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// retryDelay is exponential from one second, capped at five minutes. A
// server-provided Retry-After wins when longer.
func retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	const maxDelay = 5 * time.Minute

	if attempt > 8 {
		attempt = 8
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}
