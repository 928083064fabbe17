// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_GeneratesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	c, err := New(dir, "test")
	require.NoError(t, err)

	// The default file lands next to the database.
	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, 7733, c.Config.Port)
	assert.Equal(t, "auto", c.Config.ApprovePolicy)
	assert.Equal(t, 2, c.Config.WorkerCount)
	assert.Equal(t, filepath.Join(dir, "seedarr.db"), c.Config.DatabasePath)

	// A fresh secret is generated and long enough for key derivation.
	assert.GreaterOrEqual(t, len(c.Config.EncryptionSecret), 32)
	assert.Len(t, c.EncryptionKey(), 32)
}

func TestNew_ReadsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
host = "0.0.0.0"
port = 9000
encryptionSecret = "` + strings.Repeat("a", 32) + `"
approvePolicy = "manual"
workerCount = 4
scanDirs = ["/data/media"]

[tmdb]
apiKey = "tmdb-key"
cacheTtlDays = 7
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	c, err := New(configPath, "test")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", c.Config.Host)
	assert.Equal(t, 9000, c.Config.Port)
	assert.Equal(t, "manual", c.Config.ApprovePolicy)
	assert.Equal(t, 4, c.Config.WorkerCount)
	assert.Equal(t, []string{"/data/media"}, c.Config.ScanDirs)
	assert.Equal(t, "tmdb-key", c.Config.TMDB.APIKey)
	assert.Equal(t, float64(7*24), c.Config.TMDB.CacheTTL().Hours())
}

func TestNew_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
port = 9000
encryptionSecret = "` + strings.Repeat("a", 32) + `"
approvePolicy = "auto"
workerCount = 1
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	t.Setenv("SEEDARR__PORT", "9100")
	t.Setenv("SEEDARR__TMDB_APIKEY", "env-key")

	c, err := New(configPath, "test")
	require.NoError(t, err)

	assert.Equal(t, 9100, c.Config.Port)
	assert.Equal(t, "env-key", c.Config.TMDB.APIKey)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
port = 9000
encryptionSecret = "` + strings.Repeat("a", 32) + `"
approvePolicy = "sometimes"
workerCount = 1
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	_, err := New(configPath, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "approvePolicy")
}
