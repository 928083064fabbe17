// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/internal/models"
)

const testSchemaYAML = `
tracker:
  name: Aither
  slug: aither
`

func TestNewTrackerStore_KeyLength(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)

	_, err := models.NewTrackerStore(db, []byte("short"))
	assert.Error(t, err)

	_, err = models.NewTrackerStore(db, testEncryptionKey())
	assert.NoError(t, err)
}

func TestTrackerStore_CredentialRoundTrip(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store, err := models.NewTrackerStore(db, testEncryptionKey())
	require.NoError(t, err)
	ctx := context.Background()

	tracker, err := store.Create(ctx, "aither", "Aither", testSchemaYAML, "secret-api-key", "secret-passkey", true)
	require.NoError(t, err)

	// Credentials never sit in the clear at rest.
	assert.NotEqual(t, "secret-api-key", tracker.APIKeyEncrypted)
	assert.NotEqual(t, "secret-passkey", tracker.PasskeyEncrypted)

	apiKey, passkey, err := store.Credentials(tracker)
	require.NoError(t, err)
	assert.Equal(t, "secret-api-key", apiKey)
	assert.Equal(t, "secret-passkey", passkey)
}

func TestTrackerStore_EmptyCredentials(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store, err := models.NewTrackerStore(db, testEncryptionKey())
	require.NoError(t, err)
	ctx := context.Background()

	tracker, err := store.Create(ctx, "open", "Open Tracker", testSchemaYAML, "", "", true)
	require.NoError(t, err)

	apiKey, passkey, err := store.Credentials(tracker)
	require.NoError(t, err)
	assert.Empty(t, apiKey)
	assert.Empty(t, passkey)
}

func TestTrackerStore_UpdateCredentials(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store, err := models.NewTrackerStore(db, testEncryptionKey())
	require.NoError(t, err)
	ctx := context.Background()

	tracker, err := store.Create(ctx, "aither", "Aither", testSchemaYAML, "old-key", "old-passkey", true)
	require.NoError(t, err)

	require.NoError(t, store.UpdateCredentials(ctx, tracker.ID, "new-key", "new-passkey"))

	got, err := store.Get(ctx, tracker.ID)
	require.NoError(t, err)

	apiKey, passkey, err := store.Credentials(got)
	require.NoError(t, err)
	assert.Equal(t, "new-key", apiKey)
	assert.Equal(t, "new-passkey", passkey)

	assert.ErrorIs(t, store.UpdateCredentials(ctx, 9999, "k", "p"), models.ErrTrackerNotFound)
}

func TestTrackerStore_GetBySlug(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store, err := models.NewTrackerStore(db, testEncryptionKey())
	require.NoError(t, err)
	ctx := context.Background()

	created, err := store.Create(ctx, "blutopia", "Blutopia", testSchemaYAML, "", "", true)
	require.NoError(t, err)

	got, err := store.GetBySlug(ctx, "blutopia")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, testSchemaYAML, got.SchemaYAML)

	_, err = store.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrTrackerNotFound)
}

func TestTrackerStore_ListEnabled(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store, err := models.NewTrackerStore(db, testEncryptionKey())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Create(ctx, "aither", "Aither", testSchemaYAML, "", "", true)
	require.NoError(t, err)
	disabled, err := store.Create(ctx, "blutopia", "Blutopia", testSchemaYAML, "", "", true)
	require.NoError(t, err)

	require.NoError(t, store.SetEnabled(ctx, disabled.ID, false))

	enabled, err := store.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "aither", enabled[0].Slug)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTrackerStore_UpdateSchema(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store, err := models.NewTrackerStore(db, testEncryptionKey())
	require.NoError(t, err)
	ctx := context.Background()

	tracker, err := store.Create(ctx, "aither", "Aither", testSchemaYAML, "", "", true)
	require.NoError(t, err)

	require.NoError(t, store.UpdateSchema(ctx, tracker.ID, "tracker:\n  name: Aither v2\n"))

	got, err := store.Get(ctx, tracker.ID)
	require.NoError(t, err)
	assert.Contains(t, got.SchemaYAML, "Aither v2")

	assert.Error(t, store.UpdateSchema(ctx, tracker.ID, ""))
}
