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

var ErrTmdbCacheMiss = errors.New("tmdb cache miss")

// TmdbCacheEntry is one cached TMDB payload.
type TmdbCacheEntry struct {
	TmdbID    int64           `json:"tmdbId"`
	Payload   json.RawMessage `json:"payload"`
	CachedAt  time.Time       `json:"cachedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Valid reports whether the entry has not expired.
func (e *TmdbCacheEntry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// TmdbCacheStore persists TMDB payloads with a TTL.
type TmdbCacheStore struct {
	db dbinterface.Querier
}

// NewTmdbCacheStore creates a TmdbCacheStore.
func NewTmdbCacheStore(db dbinterface.Querier) *TmdbCacheStore {
	return &TmdbCacheStore{db: db}
}

// Get returns the cached payload for tmdbID. Expired entries count as a
// miss; callers fall through to the network.
func (s *TmdbCacheStore) Get(ctx context.Context, tmdbID int64) (*TmdbCacheEntry, error) {
	var (
		e       TmdbCacheEntry
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT tmdb_id, payload, cached_at, expires_at FROM tmdb_cache WHERE tmdb_id = ?
	`, tmdbID).Scan(&e.TmdbID, &payload, &e.CachedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTmdbCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get tmdb cache: %w", err)
	}

	if !e.Valid(time.Now().UTC()) {
		return nil, ErrTmdbCacheMiss
	}

	e.Payload = json.RawMessage(payload)
	return &e, nil
}

// Upsert stores or refreshes a payload with the given TTL.
func (s *TmdbCacheStore) Upsert(ctx context.Context, tmdbID int64, payload json.RawMessage, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tmdb_cache (tmdb_id, payload, cached_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tmdb_id) DO UPDATE SET
			payload = excluded.payload,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, tmdbID, string(payload), now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("upsert tmdb cache: %w", err)
	}
	return nil
}

// CleanupExpired removes entries past their TTL and returns the count.
func (s *TmdbCacheStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tmdb_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup tmdb cache: %w", err)
	}
	return result.RowsAffected()
}
