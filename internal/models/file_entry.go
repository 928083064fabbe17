// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seedarr/seedarr/internal/dbinterface"
)

var (
	ErrFileEntryNotFound   = errors.New("file entry not found")
	ErrFileEntryExists     = errors.New("file entry already exists for path")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUnknownPipelineStage = errors.New("unknown pipeline stage")
)

// FileStatus is the pipeline status of a file entry.
type FileStatus string

const (
	FileStatusPending           FileStatus = "pending"
	FileStatusScanned           FileStatus = "scanned"
	FileStatusAnalyzed          FileStatus = "analyzed"
	FileStatusApproved          FileStatus = "approved"
	FileStatusPrepared          FileStatus = "prepared"
	FileStatusRenamed           FileStatus = "renamed"
	FileStatusMetadataGenerated FileStatus = "metadata_generated"
	FileStatusUploaded          FileStatus = "uploaded"
	FileStatusFailed            FileStatus = "failed"
	FileStatusCancelled         FileStatus = "cancelled"
)

// statusRank orders the forward chain. Terminal statuses are not ranked.
var statusRank = map[FileStatus]int{
	FileStatusPending:           0,
	FileStatusScanned:           1,
	FileStatusAnalyzed:          2,
	FileStatusApproved:          3,
	FileStatusPrepared:          4,
	FileStatusRenamed:           5,
	FileStatusMetadataGenerated: 6,
	FileStatusUploaded:          7,
}

// CanTransition reports whether moving from s to next is allowed: one step
// forward along the chain, or into FAILED/CANCELLED from any non-terminal
// status.
func (s FileStatus) CanTransition(next FileStatus) bool {
	if s == FileStatusFailed || s == FileStatusCancelled || s == FileStatusUploaded {
		return false
	}
	if next == FileStatusFailed || next == FileStatusCancelled {
		return true
	}

	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Stage names one pipeline stage. Each stage owns a checkpoint column and a
// resulting status.
type Stage string

const (
	StageScan     Stage = "scan"
	StageAnalyze  Stage = "analyze"
	StageApprove  Stage = "approve"
	StagePrepare  Stage = "prepare"
	StageRename   Stage = "rename"
	StageGenerate Stage = "generate"
	StageUpload   Stage = "upload"
)

// stageColumns maps a stage to its checkpoint column and postcondition
// status. The column name is compiled in, never caller-supplied.
var stageColumns = map[Stage]struct {
	column string
	status FileStatus
}{
	StageScan:     {"scanned_at", FileStatusScanned},
	StageAnalyze:  {"analyzed_at", FileStatusAnalyzed},
	StageApprove:  {"approved_at", FileStatusApproved},
	StagePrepare:  {"prepared_at", FileStatusPrepared},
	StageRename:   {"renamed_at", FileStatusRenamed},
	StageGenerate: {"metadata_generated_at", FileStatusMetadataGenerated},
	StageUpload:   {"uploaded_at", FileStatusUploaded},
}

// StatusAfter returns the status a completed stage produces.
func (s Stage) StatusAfter() (FileStatus, error) {
	sc, ok := stageColumns[s]
	if !ok {
		return "", ErrUnknownPipelineStage
	}
	return sc.status, nil
}

// FileEntry is one media file moving through the pipeline.
type FileEntry struct {
	ID           int64      `json:"id"`
	FilePath     string     `json:"filePath"`
	ReleaseName  string     `json:"releaseName,omitempty"`
	Status       FileStatus `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	ErrorKind    string     `json:"errorKind,omitempty"`

	NFOPath        string            `json:"nfoPath,omitempty"`
	ScreenshotURLs []string          `json:"screenshotUrls"`
	TorrentPaths   map[string]string `json:"torrentPaths"`
	Metadata       json.RawMessage   `json:"metadata,omitempty"`

	ScannedAt           *time.Time `json:"scannedAt,omitempty"`
	AnalyzedAt          *time.Time `json:"analyzedAt,omitempty"`
	ApprovedAt          *time.Time `json:"approvedAt,omitempty"`
	PreparedAt          *time.Time `json:"preparedAt,omitempty"`
	RenamedAt           *time.Time `json:"renamedAt,omitempty"`
	MetadataGeneratedAt *time.Time `json:"metadataGeneratedAt,omitempty"`
	UploadedAt          *time.Time `json:"uploadedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CheckpointSet reports whether the stage's checkpoint is already recorded.
func (e *FileEntry) CheckpointSet(stage Stage) bool {
	switch stage {
	case StageScan:
		return e.ScannedAt != nil
	case StageAnalyze:
		return e.AnalyzedAt != nil
	case StageApprove:
		return e.ApprovedAt != nil
	case StagePrepare:
		return e.PreparedAt != nil
	case StageRename:
		return e.RenamedAt != nil
	case StageGenerate:
		return e.MetadataGeneratedAt != nil
	case StageUpload:
		return e.UploadedAt != nil
	}
	return false
}

// NextStage returns the first stage whose checkpoint is unset, or "" when
// the pipeline is complete.
func (e *FileEntry) NextStage() Stage {
	for _, stage := range []Stage{StageScan, StageAnalyze, StageApprove, StagePrepare, StageRename, StageGenerate, StageUpload} {
		if !e.CheckpointSet(stage) {
			return stage
		}
	}
	return ""
}

// Terminal reports whether no further processing may happen.
func (e *FileEntry) Terminal() bool {
	return e.Status == FileStatusUploaded || e.Status == FileStatusFailed || e.Status == FileStatusCancelled
}

// StageArtifacts carries the fields a stage may set together with its
// checkpoint. Nil fields are left untouched.
type StageArtifacts struct {
	FilePath       *string
	ReleaseName    *string
	NFOPath        *string
	ScreenshotURLs []string
	TorrentPaths   map[string]string
	Metadata       json.RawMessage
}

// TrackerOutcome is the per-tracker result of the Upload stage.
type TrackerOutcome string

const (
	TrackerOutcomeUploaded         TrackerOutcome = "uploaded"
	TrackerOutcomeSkippedDuplicate TrackerOutcome = "skipped_duplicate"
	TrackerOutcomeFailed           TrackerOutcome = "failed"
)

// TrackerResult records one tracker's outcome for a file entry.
type TrackerResult struct {
	ID              int64          `json:"id"`
	FileEntryID     int64          `json:"fileEntryId"`
	TrackerSlug     string         `json:"trackerSlug"`
	Outcome         TrackerOutcome `json:"outcome"`
	RemoteTorrentID string         `json:"remoteTorrentId,omitempty"`
	RemoteURL       string         `json:"remoteUrl,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// FileEntryStore persists file entries and their tracker results.
type FileEntryStore struct {
	db dbinterface.Querier
}

// NewFileEntryStore creates a FileEntryStore.
func NewFileEntryStore(db dbinterface.Querier) *FileEntryStore {
	return &FileEntryStore{db: db}
}

const fileEntryColumns = `
	id, file_path, release_name, status, error_message, error_kind,
	nfo_path, screenshot_urls, torrent_paths, metadata,
	scanned_at, analyzed_at, approved_at, prepared_at, renamed_at,
	metadata_generated_at, uploaded_at, created_at, updated_at
`

func scanFileEntry(row interface{ Scan(...any) error }) (*FileEntry, error) {
	var (
		e            FileEntry
		releaseName  sql.NullString
		errMsg       sql.NullString
		errKind      sql.NullString
		nfoPath      sql.NullString
		screenshots  string
		torrentPaths string
		metadata     sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.FilePath, &releaseName, &e.Status, &errMsg, &errKind,
		&nfoPath, &screenshots, &torrentPaths, &metadata,
		&e.ScannedAt, &e.AnalyzedAt, &e.ApprovedAt, &e.PreparedAt, &e.RenamedAt,
		&e.MetadataGeneratedAt, &e.UploadedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ReleaseName = releaseName.String
	e.ErrorMessage = errMsg.String
	e.ErrorKind = errKind.String
	e.NFOPath = nfoPath.String

	if err := json.Unmarshal([]byte(screenshots), &e.ScreenshotURLs); err != nil {
		return nil, fmt.Errorf("decode screenshot urls: %w", err)
	}
	if err := json.Unmarshal([]byte(torrentPaths), &e.TorrentPaths); err != nil {
		return nil, fmt.Errorf("decode torrent paths: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		e.Metadata = json.RawMessage(metadata.String)
	}

	return &e, nil
}

// Create inserts a new pending entry for path.
func (s *FileEntryStore) Create(ctx context.Context, path string) (*FileEntry, error) {
	if path == "" {
		return nil, errors.New("file path cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO file_entries (file_path) VALUES (?)`, path)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrFileEntryExists
		}
		return nil, fmt.Errorf("create file entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.Get(ctx, id)
}

// GetOrCreate returns the active entry for path, creating one when absent.
func (s *FileEntryStore) GetOrCreate(ctx context.Context, path string) (*FileEntry, error) {
	entry, err := s.GetByPath(ctx, path)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, ErrFileEntryNotFound) {
		return nil, err
	}
	return s.Create(ctx, path)
}

// Get retrieves an entry by id.
func (s *FileEntryStore) Get(ctx context.Context, id int64) (*FileEntry, error) {
	entry, err := scanFileEntry(s.db.QueryRowContext(ctx,
		`SELECT `+fileEntryColumns+` FROM file_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file entry: %w", err)
	}
	return entry, nil
}

// GetByPath retrieves an entry by file path.
func (s *FileEntryStore) GetByPath(ctx context.Context, path string) (*FileEntry, error) {
	entry, err := scanFileEntry(s.db.QueryRowContext(ctx,
		`SELECT `+fileEntryColumns+` FROM file_entries WHERE file_path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file entry by path: %w", err)
	}
	return entry, nil
}

// List returns entries, newest first, optionally filtered by status.
func (s *FileEntryStore) List(ctx context.Context, status FileStatus, limit int) ([]*FileEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + fileEntryColumns + ` FROM file_entries`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list file entries: %w", err)
	}
	defer rows.Close()

	var entries []*FileEntry
	for rows.Next() {
		e, err := scanFileEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateWithCheckpoint atomically records a completed stage: the new status,
// the stage's checkpoint timestamp (set exactly once) and any artifacts, in
// a single statement. The status transition is validated against the current
// row.
func (s *FileEntryStore) UpdateWithCheckpoint(ctx context.Context, id int64, stage Stage, artifacts StageArtifacts) (*FileEntry, error) {
	sc, ok := stageColumns[stage]
	if !ok {
		return nil, ErrUnknownPipelineStage
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != sc.status && !current.Status.CanTransition(sc.status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, sc.status)
	}

	set := []string{
		"status = ?",
		"updated_at = CURRENT_TIMESTAMP",
		// COALESCE keeps an already-set checkpoint: resumption never
		// rewrites history.
		sc.column + " = COALESCE(" + sc.column + ", CURRENT_TIMESTAMP)",
	}
	args := []any{sc.status}

	if artifacts.FilePath != nil {
		set = append(set, "file_path = ?")
		args = append(args, *artifacts.FilePath)
	}
	if artifacts.ReleaseName != nil {
		set = append(set, "release_name = ?")
		args = append(args, *artifacts.ReleaseName)
	}
	if artifacts.NFOPath != nil {
		set = append(set, "nfo_path = ?")
		args = append(args, *artifacts.NFOPath)
	}
	if artifacts.ScreenshotURLs != nil {
		blob, err := json.Marshal(artifacts.ScreenshotURLs)
		if err != nil {
			return nil, err
		}
		set = append(set, "screenshot_urls = ?")
		args = append(args, string(blob))
	}
	if artifacts.TorrentPaths != nil {
		blob, err := json.Marshal(artifacts.TorrentPaths)
		if err != nil {
			return nil, err
		}
		set = append(set, "torrent_paths = ?")
		args = append(args, string(blob))
	}
	if artifacts.Metadata != nil {
		set = append(set, "metadata = ?")
		args = append(args, string(artifacts.Metadata))
	}

	args = append(args, id)

	query := "UPDATE file_entries SET "
	for i, clause := range set {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = ?"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update checkpoint %s: %w", stage, err)
	}

	return s.Get(ctx, id)
}

// MarkFailed sets the terminal failed status with error details. Checkpoints
// stay untouched so a manual retry can resume.
func (s *FileEntryStore) MarkFailed(ctx context.Context, id int64, kind, message string) error {
	return s.markTerminal(ctx, id, FileStatusFailed, kind, message)
}

// MarkCancelled sets the terminal cancelled status.
func (s *FileEntryStore) MarkCancelled(ctx context.Context, id int64) error {
	return s.markTerminal(ctx, id, FileStatusCancelled, "user_cancelled", "cancelled by user")
}

func (s *FileEntryStore) markTerminal(ctx context.Context, id int64, status FileStatus, kind, message string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE file_entries
		SET status = ?, error_kind = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, kind, message, id)
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	return nil
}

// RecordTrackerResult upserts the per-tracker outcome for an entry.
func (s *FileEntryStore) RecordTrackerResult(ctx context.Context, r TrackerResult) error {
	if r.FileEntryID == 0 || r.TrackerSlug == "" {
		return errors.New("tracker result requires file entry id and tracker slug")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracker_results (file_entry_id, tracker_slug, outcome, remote_torrent_id, remote_url, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_entry_id, tracker_slug) DO UPDATE SET
			outcome = excluded.outcome,
			remote_torrent_id = excluded.remote_torrent_id,
			remote_url = excluded.remote_url,
			error = excluded.error
	`, r.FileEntryID, r.TrackerSlug, r.Outcome, nullable(r.RemoteTorrentID), nullable(r.RemoteURL), nullable(r.Error))
	if err != nil {
		return fmt.Errorf("record tracker result: %w", err)
	}
	return nil
}

// TrackerResults lists the per-tracker outcomes for an entry.
func (s *FileEntryStore) TrackerResults(ctx context.Context, fileEntryID int64) ([]TrackerResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_entry_id, tracker_slug, outcome, remote_torrent_id, remote_url, error, created_at
		FROM tracker_results
		WHERE file_entry_id = ?
		ORDER BY tracker_slug
	`, fileEntryID)
	if err != nil {
		return nil, fmt.Errorf("list tracker results: %w", err)
	}
	defer rows.Close()

	var results []TrackerResult
	for rows.Next() {
		var (
			r        TrackerResult
			remoteID sql.NullString
			remote   sql.NullString
			errMsg   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.FileEntryID, &r.TrackerSlug, &r.Outcome, &remoteID, &remote, &errMsg, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RemoteTorrentID = remoteID.String
		r.RemoteURL = remote.String
		r.Error = errMsg.String
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
