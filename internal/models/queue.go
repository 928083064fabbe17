// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seedarr/seedarr/internal/dbinterface"
)

var (
	ErrJobNotFound   = errors.New("queue job not found")
	ErrNoJobReady    = errors.New("no queue job ready")
	ErrJobNotClaimed = errors.New("queue job is not running")
)

// JobPriority orders dispatch; lower values dispatch first.
type JobPriority int

const (
	PriorityHigh   JobPriority = 0
	PriorityNormal JobPriority = 1
	PriorityLow    JobPriority = 2
)

// ParseJobPriority converts the wire form ("high", "normal", "low").
func ParseJobPriority(v string) (JobPriority, error) {
	switch v {
	case "high":
		return PriorityHigh, nil
	case "normal", "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityNormal, fmt.Errorf("invalid priority %q", v)
	}
}

func (p JobPriority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// JobState is the lifecycle state of a queue job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateDone      JobState = "done"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// QueueJob is one scheduled execution attempt for a file entry.
type QueueJob struct {
	ID          int64       `json:"id"`
	FileEntryID int64       `json:"fileEntryId"`
	BatchID     *int64      `json:"batchId,omitempty"`
	Priority    JobPriority `json:"priority"`
	State       JobState    `json:"state"`
	Attempt     int         `json:"attempt"`
	MaxAttempts int         `json:"maxAttempts"`
	ScheduledAt time.Time   `json:"scheduledAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	FinishedAt  *time.Time  `json:"finishedAt,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// QueueStore persists queue jobs. Claim relies on SQLite's single-writer
// semantics plus a state-guarded UPDATE, so concurrent workers cannot claim
// the same job twice.
type QueueStore struct {
	db dbinterface.Querier
}

// NewQueueStore creates a QueueStore.
func NewQueueStore(db dbinterface.Querier) *QueueStore {
	return &QueueStore{db: db}
}

const queueJobColumns = `
	id, file_entry_id, batch_id, priority, state, attempt, max_attempts,
	scheduled_at, started_at, finished_at, last_error, created_at, updated_at
`

func scanQueueJob(row interface{ Scan(...any) error }) (*QueueJob, error) {
	var (
		j         QueueJob
		batchID   sql.NullInt64
		lastError sql.NullString
	)

	err := row.Scan(
		&j.ID, &j.FileEntryID, &batchID, &j.Priority, &j.State, &j.Attempt, &j.MaxAttempts,
		&j.ScheduledAt, &j.StartedAt, &j.FinishedAt, &lastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if batchID.Valid {
		j.BatchID = &batchID.Int64
	}
	j.LastError = lastError.String
	return &j, nil
}

// EnqueueOptions tunes Enqueue.
type EnqueueOptions struct {
	Priority    JobPriority
	MaxAttempts int
	ScheduledAt time.Time
	BatchID     *int64
}

// Enqueue creates a queued job for the file entry. Idempotent: when an
// active (queued or running) job for the same file already exists, that job
// is returned unchanged.
func (s *QueueStore) Enqueue(ctx context.Context, fileEntryID int64, opts EnqueueOptions) (*QueueJob, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.ScheduledAt.IsZero() {
		opts.ScheduledAt = time.Now().UTC()
	}

	var batchID any
	if opts.BatchID != nil {
		batchID = *opts.BatchID
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_jobs (file_entry_id, batch_id, priority, max_attempts, scheduled_at)
		VALUES (?, ?, ?, ?, ?)
	`, fileEntryID, batchID, opts.Priority, opts.MaxAttempts, opts.ScheduledAt)
	if err != nil {
		if isUniqueViolation(err) {
			return s.ActiveForFile(ctx, fileEntryID)
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get retrieves a job by id.
func (s *QueueStore) Get(ctx context.Context, id int64) (*QueueJob, error) {
	job, err := scanQueueJob(s.db.QueryRowContext(ctx,
		`SELECT `+queueJobColumns+` FROM queue_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue job: %w", err)
	}
	return job, nil
}

// ActiveForFile returns the queued or running job for a file entry.
func (s *QueueStore) ActiveForFile(ctx context.Context, fileEntryID int64) (*QueueJob, error) {
	job, err := scanQueueJob(s.db.QueryRowContext(ctx, `
		SELECT `+queueJobColumns+` FROM queue_jobs
		WHERE file_entry_id = ? AND state IN ('queued', 'running')
	`, fileEntryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active job for file: %w", err)
	}
	return job, nil
}

// Claim transactionally takes the next ready job: highest priority first,
// then earliest scheduled_at, then lowest id. Returns ErrNoJobReady when
// nothing is due.
func (s *QueueStore) Claim(ctx context.Context) (*QueueJob, error) {
	// The state guard in the UPDATE makes the claim a compare-and-set:
	// two workers selecting the same candidate race on it, the loser
	// retries with the next candidate.
	now := time.Now().UTC()
	for {
		job, err := scanQueueJob(s.db.QueryRowContext(ctx, `
			SELECT `+queueJobColumns+` FROM queue_jobs
			WHERE state = 'queued' AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC, id ASC
			LIMIT 1
		`, now))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJobReady
		}
		if err != nil {
			return nil, fmt.Errorf("select claimable job: %w", err)
		}

		result, err := s.db.ExecContext(ctx, `
			UPDATE queue_jobs
			SET state = 'running', started_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND state = 'queued'
		`, now, job.ID)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 1 {
			return s.Get(ctx, job.ID)
		}
		// Lost the race; try the next candidate.
	}
}

// Complete marks a running job done.
func (s *QueueStore) Complete(ctx context.Context, id int64) error {
	return s.finish(ctx, id, JobStateDone, "")
}

// Fail marks a running job failed with the final error.
func (s *QueueStore) Fail(ctx context.Context, id int64, errMsg string) error {
	return s.finish(ctx, id, JobStateFailed, errMsg)
}

// Cancel marks a queued or running job cancelled.
func (s *QueueStore) Cancel(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = 'cancelled', finished_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state IN ('queued', 'running')
	`, id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *QueueStore) finish(ctx context.Context, id int64, state JobState, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = ?, last_error = ?, finished_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = 'running'
	`, state, nullable(errMsg), id)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotClaimed
	}
	return nil
}

// Requeue puts a running job back in the queue after a retryable failure,
// bumping the attempt counter and delaying the next run. When the attempt
// budget is exhausted the job fails instead.
func (s *QueueStore) Requeue(ctx context.Context, id int64, delay time.Duration, errMsg string) (*QueueJob, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != JobStateRunning {
		return nil, ErrJobNotClaimed
	}

	if job.Attempt+1 >= job.MaxAttempts {
		if err := s.Fail(ctx, id, errMsg); err != nil {
			return nil, err
		}
		return s.Get(ctx, id)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = 'queued', attempt = attempt + 1, scheduled_at = ?,
		    started_at = NULL, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = 'running'
	`, time.Now().UTC().Add(delay), nullable(errMsg), id)
	if err != nil {
		return nil, fmt.Errorf("requeue job: %w", err)
	}
	return s.Get(ctx, id)
}

// Defer puts a running job back in the queue without consuming an attempt.
// Used when the job cannot run yet for reasons that are not failures, like
// a batch at its concurrency cap.
func (s *QueueStore) Defer(ctx context.Context, id int64, delay time.Duration) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = 'queued', scheduled_at = ?, started_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND state = 'running'
	`, time.Now().UTC().Add(delay), id)
	if err != nil {
		return fmt.Errorf("defer job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotClaimed
	}
	return nil
}

// RunningCountForBatch counts the batch's jobs currently running, excluding
// the given job so a claimed job can check the cap against its peers.
func (s *QueueStore) RunningCountForBatch(ctx context.Context, batchID, excludeJobID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_jobs
		WHERE batch_id = ? AND state = 'running' AND id != ?
	`, batchID, excludeJobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count running batch jobs: %w", err)
	}
	return count, nil
}

// ResetStale requeues running jobs whose start predates the grace period.
// Called at worker startup to recover from crashes.
func (s *QueueStore) ResetStale(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-grace)
	result, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = 'queued', started_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE state = 'running' AND started_at <= ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale jobs: %w", err)
	}
	return result.RowsAffected()
}

// List returns jobs filtered by state (all when empty), in dispatch order.
func (s *QueueStore) List(ctx context.Context, state JobState, limit int) ([]*QueueJob, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + queueJobColumns + ` FROM queue_jobs`
	args := []any{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*QueueJob
	for rows.Next() {
		j, err := scanQueueJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CancelByBatch cancels all queued jobs belonging to a batch. Running jobs
// finish their current stage and observe cancellation cooperatively.
func (s *QueueStore) CancelByBatch(ctx context.Context, batchID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET state = 'cancelled', finished_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE batch_id = ? AND state = 'queued'
	`, batchID)
	if err != nil {
		return 0, fmt.Errorf("cancel batch jobs: %w", err)
	}
	return result.RowsAffected()
}
