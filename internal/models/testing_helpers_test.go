// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/internal/database"
	"github.com/seedarr/seedarr/internal/models"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "seedarr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestEntry(t *testing.T, db *database.DB, path string) *models.FileEntry {
	t.Helper()

	entry, err := models.NewFileEntryStore(db).Create(context.Background(), path)
	require.NoError(t, err)
	return entry
}

func testEncryptionKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}
