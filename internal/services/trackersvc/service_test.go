// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package trackersvc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/internal/database"
	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/registry"
	"github.com/seedarr/seedarr/internal/tracker"
)

func schemaYAML(slug, baseURL string) string {
	return fmt.Sprintf(`
tracker:
  name: Tracker %s
  slug: %s
  base_url: %s
auth:
  type: bearer
endpoints:
  upload: /api/torrents/upload
  search: /api/torrents/filter
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
search:
  params:
    tmdb_id: tmdbId
  response:
    format: json
    path: data
response:
  upload:
    success_field: success
    error_field: message
    torrent_id_field: data.id
`, slug, slug, baseURL)
}

func setupStore(t *testing.T) *models.TrackerStore {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "seedarr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := models.NewTrackerStore(db, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return store
}

func testGuards() *registry.Registry {
	return registry.New(&domain.Config{Retry: domain.RetryConfig{MaxAttempts: 1}})
}

func TestService_ActiveBuildsEnabledInstances(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := setupStore(t)
	_, err := store.Create(ctx, "alpha", "Alpha", schemaYAML("alpha", "https://alpha.test"), "key-a", "pass-a", true)
	require.NoError(t, err)
	_, err = store.Create(ctx, "bravo", "Bravo", schemaYAML("bravo", "https://bravo.test"), "key-b", "", false)
	require.NoError(t, err)

	svc := New(store, testGuards(), nil)

	instances, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "alpha", instances[0].Slug())
	assert.Equal(t, "ALPHA", instances[0].SourceFlag())
	assert.Contains(t, instances[0].AnnounceURL(), "pass-a")
}

func TestService_InstanceIsCachedUntilRowChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := setupStore(t)
	row, err := store.Create(ctx, "alpha", "Alpha", schemaYAML("alpha", "https://alpha.test"), "key-a", "", true)
	require.NoError(t, err)

	svc := New(store, testGuards(), nil)

	first, err := svc.Instance(ctx, "alpha")
	require.NoError(t, err)
	second, err := svc.Instance(ctx, "alpha")
	require.NoError(t, err)
	assert.Same(t, first, second)

	// A schema update invalidates the cache and forces a rebuild.
	require.NoError(t, store.UpdateSchema(ctx, row.ID, schemaYAML("alpha", "https://alpha2.test")))
	svc.Invalidate("alpha")
	third, err := svc.Instance(ctx, "alpha")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Contains(t, third.AnnounceURL(), "alpha2.test")
}

func TestService_InstanceDecryptsCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"success": true, "data": {"id": 1}}`)
	}))
	defer server.Close()

	store := setupStore(t)
	_, err := store.Create(ctx, "alpha", "Alpha", schemaYAML("alpha", server.URL), "secret-key", "", true)
	require.NoError(t, err)

	svc := New(store, testGuards(), nil)
	inst, err := svc.Instance(ctx, "alpha")
	require.NoError(t, err)

	uc := tracker.Context{"torrent_data": []byte("d4:infoe"), "release_name": "The.Movie.2024.1080p.BluRay.x264-GRP"}
	_, err = inst.Upload(ctx, uc)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestService_InstanceUnknownSlug(t *testing.T) {
	t.Parallel()

	svc := New(setupStore(t), testGuards(), nil)
	_, err := svc.Instance(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrTrackerNotFound)
}

func TestService_SyncSchemas(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.yaml"),
		[]byte(schemaYAML("alpha", "https://alpha.test")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("tracker: ["), 0o644))

	store := setupStore(t)
	svc := New(store, testGuards(), nil)
	require.NoError(t, svc.SyncSchemas(ctx, dir))

	// New slugs arrive disabled until an operator adds credentials.
	row, err := store.GetBySlug(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, row.Enabled)
	assert.Equal(t, "Tracker alpha", row.Name)

	// A changed file updates the stored blob.
	updated := schemaYAML("alpha", "https://alpha-moved.test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.yaml"), []byte(updated), 0o644))
	require.NoError(t, svc.SyncSchemas(ctx, dir))

	row, err = store.GetBySlug(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, updated, row.SchemaYAML)
}

func TestService_SyncSchemasMissingDir(t *testing.T) {
	t.Parallel()

	svc := New(setupStore(t), testGuards(), nil)
	assert.NoError(t, svc.SyncSchemas(context.Background(), filepath.Join(t.TempDir(), "absent")))
	assert.NoError(t, svc.SyncSchemas(context.Background(), ""))
}
