// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/registry"
)

func testGuards() *registry.Registry {
	r := registry.New(&domain.Config{
		RateLimits: map[string]domain.RateLimitConfig{
			"tmdb": {Capacity: 100, RefillRate: 100},
		},
	})
	r.Retry.MaxAttempts = 1
	r.Retry.BaseDelay = time.Millisecond
	return r
}

func TestService_SearchMovie(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/movie":
			assert.Equal(t, "Fight Club", r.URL.Query().Get("query"))
			assert.Equal(t, "1999", r.URL.Query().Get("year"))
			w.Write([]byte(`{"results":[
				{"id":551,"title":"Fight Club Documentary","release_date":"1999-03-01"},
				{"id":550,"title":"Fight Club","original_title":"Fight Club","release_date":"1999-10-15","original_language":"en"}
			]}`))
		case "/movie/550":
			assert.Equal(t, "external_ids", r.URL.Query().Get("append_to_response"))
			w.Write([]byte(`{"id":550,"title":"Fight Club","release_date":"1999-10-15","original_language":"en","external_ids":{"imdb_id":"tt0137523"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	svc := NewService(domain.TMDBConfig{APIKey: "key", BaseURL: srv.URL}, nil, testGuards())

	// The exact title match wins over the first result.
	movie, err := svc.SearchMovie(context.Background(), "Fight Club", 1999)
	require.NoError(t, err)
	assert.EqualValues(t, 550, movie.TmdbID)
	assert.Equal(t, "tt0137523", movie.ImdbID)
	assert.Equal(t, 1999, movie.Year)
}

func TestService_SearchMovieRetriesWithoutYear(t *testing.T) {
	t.Parallel()

	searches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/movie":
			searches++
			if r.URL.Query().Get("year") != "" {
				w.Write([]byte(`{"results":[]}`))
				return
			}
			w.Write([]byte(`{"results":[{"id":603,"title":"The Matrix","release_date":"1999-03-31"}]}`))
		case "/movie/603":
			w.Write([]byte(`{"id":603,"title":"The Matrix","release_date":"1999-03-31","external_ids":{"imdb_id":"tt0133093"}}`))
		}
	}))
	defer srv.Close()

	svc := NewService(domain.TMDBConfig{APIKey: "key", BaseURL: srv.URL}, nil, testGuards())

	movie, err := svc.SearchMovie(context.Background(), "The Matrix", 2000)
	require.NoError(t, err)
	assert.EqualValues(t, 603, movie.TmdbID)
	assert.Equal(t, 2, searches)
}

func TestService_SearchMovieNoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	svc := NewService(domain.TMDBConfig{APIKey: "key", BaseURL: srv.URL}, nil, testGuards())

	_, err := svc.SearchMovie(context.Background(), "Nonexistent Movie", 0)
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.KindOf(err))
}

func TestService_AuthRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status_message":"Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewService(domain.TMDBConfig{APIKey: "bad", BaseURL: srv.URL}, nil, testGuards())

	_, err := svc.GetMovie(context.Background(), 550)
	require.Error(t, err)
	assert.Equal(t, errkind.KindAuthRejected, errkind.KindOf(err))
}

func TestService_MissingAPIKey(t *testing.T) {
	t.Parallel()

	svc := NewService(domain.TMDBConfig{}, nil, testGuards())

	_, err := svc.GetMovie(context.Background(), 550)
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.KindOf(err))
}
