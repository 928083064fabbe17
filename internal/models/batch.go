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

var ErrBatchNotFound = errors.New("batch job not found")

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// BatchJob bundles many file entries under one concurrency cap.
type BatchJob struct {
	ID               int64       `json:"id"`
	Priority         JobPriority `json:"priority"`
	ConcurrencyLimit int         `json:"concurrencyLimit"`
	Status           BatchStatus `json:"status"`
	Total            int         `json:"total"`
	Completed        int         `json:"completed"`
	Failed           int         `json:"failed"`
	Cancelled        int         `json:"cancelled"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Finished reports whether every bundled job reached a terminal state.
func (b *BatchJob) Finished() bool {
	return b.Completed+b.Failed+b.Cancelled >= b.Total
}

// BatchStore persists batch jobs.
type BatchStore struct {
	db dbinterface.Querier
}

// NewBatchStore creates a BatchStore.
func NewBatchStore(db dbinterface.Querier) *BatchStore {
	return &BatchStore{db: db}
}

// Create inserts a pending batch.
func (s *BatchStore) Create(ctx context.Context, total int, priority JobPriority, concurrencyLimit int) (*BatchJob, error) {
	if total <= 0 {
		return nil, errors.New("batch requires at least one file entry")
	}
	if concurrencyLimit <= 0 {
		concurrencyLimit = 1
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (priority, concurrency_limit, total)
		VALUES (?, ?, ?)
	`, priority, concurrencyLimit, total)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get retrieves a batch by id.
func (s *BatchStore) Get(ctx context.Context, id int64) (*BatchJob, error) {
	var b BatchJob
	err := s.db.QueryRowContext(ctx, `
		SELECT id, priority, concurrency_limit, status, total, completed, failed, cancelled, created_at, updated_at
		FROM batch_jobs WHERE id = ?
	`, id).Scan(&b.ID, &b.Priority, &b.ConcurrencyLimit, &b.Status, &b.Total, &b.Completed, &b.Failed, &b.Cancelled, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// SetStatus updates the batch lifecycle state.
func (s *BatchStore) SetStatus(ctx context.Context, id int64, status BatchStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("set batch status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBatchNotFound
	}
	return nil
}

// RecordOutcome bumps the progress counter for one finished job and marks
// the batch completed when all jobs have finished. Progress is eventually
// consistent; counters only grow.
func (s *BatchStore) RecordOutcome(ctx context.Context, id int64, state JobState) error {
	var column string
	switch state {
	case JobStateDone:
		column = "completed"
	case JobStateFailed:
		column = "failed"
	case JobStateCancelled:
		column = "cancelled"
	default:
		return fmt.Errorf("batch outcome for non-terminal state %q", state)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs SET `+column+` = `+column+` + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("record batch outcome: %w", err)
	}

	batch, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if batch.Finished() && batch.Status == BatchStatusRunning {
		return s.SetStatus(ctx, id, BatchStatusCompleted)
	}
	return nil
}

// ListActive returns pending and running batches.
func (s *BatchStore) ListActive(ctx context.Context) ([]*BatchJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, priority, concurrency_limit, status, total, completed, failed, cancelled, created_at, updated_at
		FROM batch_jobs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active batches: %w", err)
	}
	defer rows.Close()

	var batches []*BatchJob
	for rows.Next() {
		var b BatchJob
		if err := rows.Scan(&b.ID, &b.Priority, &b.ConcurrencyLimit, &b.Status, &b.Total, &b.Completed, &b.Failed, &b.Cancelled, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}
