// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/internal/api/handlers"
	"github.com/seedarr/seedarr/internal/database"
	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/registry"
	"github.com/seedarr/seedarr/internal/services/queue"
	"github.com/seedarr/seedarr/internal/services/trackersvc"
)

type fakeApprover struct {
	err error
}

func (f *fakeApprover) Approve(ctx context.Context, id int64) (*models.FileEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.FileEntry{ID: id, Status: models.FileStatusApproved}, nil
}

type noopProcessor struct{}

func (noopProcessor) Process(ctx context.Context, id int64) (*models.FileEntry, error) {
	return &models.FileEntry{ID: id, Status: models.FileStatusUploaded}, nil
}

func (noopProcessor) FinalizePartial(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

type apiEnv struct {
	db      *database.DB
	entries *models.FileEntryStore
	store   *models.TrackerStore
	queue   *queue.Service
	approve *fakeApprover
	router  chi.Router
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "seedarr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	entries := models.NewFileEntryStore(db)
	store, err := models.NewTrackerStore(db, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	guards := registry.New(&domain.Config{Retry: domain.RetryConfig{MaxAttempts: 1}})
	q := queue.NewService(queue.Options{PollInterval: 10 * time.Millisecond},
		models.NewQueueStore(db), models.NewBatchStore(db), entries, noopProcessor{}, nil)

	env := &apiEnv{
		db:      db,
		entries: entries,
		store:   store,
		queue:   q,
		approve: &fakeApprover{},
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handlers.NewHealthHandler("test", guards.Breakers).Routes(r)
		handlers.NewFilesHandler(entries, env.approve, q).Routes(r)
		handlers.NewQueueHandler(q).Routes(r)
		handlers.NewTrackersHandler(store, trackersvc.New(store, guards, nil)).Routes(r)
	})
	env.router = r
	return env
}

func (e *apiEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)

	rec := env.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestFiles_ListAndGet(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)
	ctx := context.Background()

	entry, err := env.entries.Create(ctx, "/media/The.Movie.2024.mkv")
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/files/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.FileEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, entry.ID, list[0].ID)

	rec = env.do(t, http.MethodGet, "/api/files/999/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/files/abc/", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFiles_EnqueueIsIdempotent(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)
	ctx := context.Background()

	entry, err := env.entries.Create(ctx, "/media/The.Movie.2024.mkv")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/files/1/enqueue", `{"priority": "high"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var job models.QueueJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, entry.ID, job.FileEntryID)
	assert.Equal(t, models.PriorityHigh, job.Priority)

	// A second enqueue returns the already active job.
	rec = env.do(t, http.MethodPost, "/api/files/1/enqueue", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var again models.QueueJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, job.ID, again.ID)
}

func TestFiles_EnqueueInvalidPriority(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)

	_, err := env.entries.Create(context.Background(), "/media/a.mkv")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/files/1/enqueue", `{"priority": "urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFiles_ApproveEnqueuesHighPriority(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)
	ctx := context.Background()

	entry, err := env.entries.Create(ctx, "/media/a.mkv")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/files/1/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)

	jobs, err := env.queue.Jobs(ctx, models.JobStateQueued, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, entry.ID, jobs[0].FileEntryID)
	assert.Equal(t, models.PriorityHigh, jobs[0].Priority)
}

func TestFiles_ApproveRejectsWrongState(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)
	env.approve.err = errkind.New(errkind.KindValidation, "entry is pending, only analyzed entries can be approved")

	_, err := env.entries.Create(context.Background(), "/media/a.mkv")
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/api/files/1/approve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatches_CreateAndCancel(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)

	rec := env.do(t, http.MethodPost, "/api/batches/",
		`{"paths": ["/media/a.mkv", "/media/b.mkv"], "concurrencyLimit": 2, "priority": "low"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var batch models.BatchJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, models.PriorityLow, batch.Priority)

	rec = env.do(t, http.MethodGet, "/api/batches/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/batches/1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Cancelling twice is a validation error.
	rec = env.do(t, http.MethodPost, "/api/batches/1/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatches_CreateRequiresPaths(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)

	rec := env.do(t, http.MethodPost, "/api/batches/", `{"paths": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueue_ListAndCancel(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)
	ctx := context.Background()

	entry, err := env.entries.Create(ctx, "/media/a.mkv")
	require.NoError(t, err)
	_, err = env.queue.EnqueueEntry(ctx, entry.ID, models.PriorityNormal)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/queue/jobs/?state=queued", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []models.QueueJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)

	rec = env.do(t, http.MethodPost, "/api/queue/jobs/1/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/queue/jobs/1/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

const apiTestSchema = `
tracker:
  name: Example
  slug: example
  base_url: https://example.test
auth:
  type: bearer
endpoints:
  upload: /api/upload
upload:
  fields:
    - name: torrent
      type: file
      source: torrent_data
      required: true
    - name: name
      type: string
      source: release_name
      required: true
`

func TestTrackers_ListAndDryRunUpload(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)
	ctx := context.Background()

	_, err := env.store.Create(ctx, "example", "Example", apiTestSchema, "key", "", true)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/trackers/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var trackers []struct {
		Slug   string `json:"slug"`
		APIKey string `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trackers))
	require.Len(t, trackers, 1)
	assert.Equal(t, "example", trackers[0].Slug)
	assert.Equal(t, "***", trackers[0].APIKey)

	rec = env.do(t, http.MethodPost, "/api/trackers/example/test", `{"op": "upload"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Success bool     `json:"success"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Contains(t, result.Details, "torrent (file)")

	rec = env.do(t, http.MethodPost, "/api/trackers/missing/test", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/trackers/example/test", `{"op": "bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackers_UpdateCredentialsAndEnable(t *testing.T) {
	t.Parallel()
	env := setupAPI(t)
	ctx := context.Background()

	_, err := env.store.Create(ctx, "example", "Example", apiTestSchema, "old-key", "old-pass", false)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPut, "/api/trackers/example",
		`{"apiKey": "new-key", "enabled": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	row, err := env.store.GetBySlug(ctx, "example")
	require.NoError(t, err)
	assert.True(t, row.Enabled)

	apiKey, passkey, err := env.store.Credentials(row)
	require.NoError(t, err)
	assert.Equal(t, "new-key", apiKey)
	assert.Equal(t, "old-pass", passkey)

	// The redacted form keeps the stored credential.
	rec = env.do(t, http.MethodPut, "/api/trackers/example",
		`{"apiKey": "*******", "passkey": "fresh-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	row, err = env.store.GetBySlug(ctx, "example")
	require.NoError(t, err)
	apiKey, passkey, err = env.store.Credentials(row)
	require.NoError(t, err)
	assert.Equal(t, "new-key", apiKey)
	assert.Equal(t, "fresh-pass", passkey)

	rec = env.do(t, http.MethodPut, "/api/trackers/missing", `{"enabled": true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
