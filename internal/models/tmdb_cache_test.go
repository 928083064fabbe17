// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/internal/models"
)

func TestTmdbCacheStore_RoundTrip(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store := models.NewTmdbCacheStore(db)
	ctx := context.Background()

	_, err := store.Get(ctx, 550)
	assert.ErrorIs(t, err, models.ErrTmdbCacheMiss)

	payload := json.RawMessage(`{"title":"Fight Club","year":1999}`)
	require.NoError(t, store.Upsert(ctx, 550, payload, 30*24*time.Hour))

	entry, err := store.Get(ctx, 550)
	require.NoError(t, err)
	assert.EqualValues(t, 550, entry.TmdbID)
	assert.JSONEq(t, string(payload), string(entry.Payload))

	// Upsert refreshes the payload in place.
	updated := json.RawMessage(`{"title":"Fight Club","year":1999,"imdbId":"tt0137523"}`)
	require.NoError(t, store.Upsert(ctx, 550, updated, 30*24*time.Hour))

	entry, err = store.Get(ctx, 550)
	require.NoError(t, err)
	assert.JSONEq(t, string(updated), string(entry.Payload))
}

func TestTmdbCacheStore_Expiry(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store := models.NewTmdbCacheStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 603, json.RawMessage(`{"title":"The Matrix"}`), -time.Minute))

	_, err := store.Get(ctx, 603)
	assert.ErrorIs(t, err, models.ErrTmdbCacheMiss)
}

func TestTmdbCacheStore_CleanupExpired(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store := models.NewTmdbCacheStore(db)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, 1, json.RawMessage(`{}`), -time.Minute))
	require.NoError(t, store.Upsert(ctx, 2, json.RawMessage(`{}`), time.Hour))

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = store.Get(ctx, 2)
	assert.NoError(t, err)
}
