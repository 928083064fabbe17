// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

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
	r := registry.New(&domain.Config{Retry: domain.RetryConfig{MaxAttempts: 1}})
	r.Retry.BaseDelay = time.Millisecond
	return r
}

func testAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	s := parseTestSchema(t)
	s.Tracker.BaseURL = baseURL
	return NewAdapter(s, Credentials{APIKey: "secret-key", Passkey: "pass-123"}, testGuards(), nil)
}

func uploadContext() Context {
	return Context{
		"release_name": "The.Movie.2024.1080p.BluRay.x264-GRP",
		"torrent_data": []byte("d8:announce0:e"),
		"tmdb":         map[string]any{"id": float64(603)},
		"tags":         []int{10, 15, 20},
	}
}

func TestAdapter_Upload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/torrents/upload", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		form := r.MultipartForm

		file, header, err := r.FormFile("torrent")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "The.Movie.2024.1080p.BluRay.x264-GRP.torrent", header.Filename)

		assert.Equal(t, []string{"The.Movie.2024.1080p.BluRay.x264-GRP"}, form.Value["name"])
		assert.Equal(t, []string{"603"}, form.Value["tmdb"])
		assert.Equal(t, []string{"false"}, form.Value["anonymous"])
		// Repeated fields arrive as one form entry per value, not an array.
		assert.Equal(t, []string{"10", "15", "20"}, form.Value["tag_ids"])

		w.Write([]byte(`{"success":true,"data":{"id":4521}}`))
	}))
	defer srv.Close()

	result, err := testAdapter(t, srv.URL).Upload(context.Background(), uploadContext())
	require.NoError(t, err)
	assert.Equal(t, "4521", result.TorrentID)
	assert.Equal(t, srv.URL+"/torrents/4521", result.TorrentURL)
}

func TestAdapter_UploadValidationFailsBeforeNetwork(t *testing.T) {
	t.Parallel()

	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer srv.Close()

	adapter := testAdapter(t, srv.URL)

	uc := uploadContext()
	uc["release_name"] = "abc" // below min_length
	_, err := adapter.Upload(context.Background(), uc)
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.KindOf(err))

	delete(uc, "torrent_data")
	uc["release_name"] = "The.Movie.2024"
	_, err = adapter.Upload(context.Background(), uc)
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.KindOf(err))
	assert.Contains(t, err.Error(), `"torrent"`)

	assert.Equal(t, 0, requests)
}

func TestAdapter_UploadDuplicateRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"This torrent already exists (duplicate)"}`))
	}))
	defer srv.Close()

	_, err := testAdapter(t, srv.URL).Upload(context.Background(), uploadContext())
	require.Error(t, err)
	assert.Equal(t, errkind.KindDuplicateRelease, errkind.KindOf(err))
	assert.Contains(t, err.Error(), "already exists")
}

func TestAdapter_UploadRejectionIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"category not allowed"}`))
	}))
	defer srv.Close()

	_, err := testAdapter(t, srv.URL).Upload(context.Background(), uploadContext())
	require.Error(t, err)
	assert.Equal(t, errkind.KindTrackerPermanent, errkind.KindOf(err))
}

func TestAdapter_SearchJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/torrents/filter", r.URL.Path)
		assert.Equal(t, "603", r.URL.Query().Get("tmdbId"))
		w.Write([]byte(`{"data":[
			{"name":"The.Movie.2024.1080p.BluRay.x264-GRP","tmdb_id":603,"size":8589934592,"seeders":42,"leechers":3},
			{"name":"The.Movie.2024.2160p.WEB-DL.x265-OTH","tmdb_id":603,"seeders":"7"}
		]}`))
	}))
	defer srv.Close()

	results, err := testAdapter(t, srv.URL).Search(context.Background(), map[string]string{"tmdbId": "603"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "The.Movie.2024.1080p.BluRay.x264-GRP", results[0].Title)
	assert.Equal(t, int64(603), results[0].TmdbID)
	assert.Equal(t, int64(8589934592), results[0].Size)
	assert.Equal(t, 42, results[0].Seeders)
	assert.Equal(t, 7, results[1].Seeders)
}

func TestAdapter_SearchTorznab(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>example</title>
    <item>
      <title>The.Movie.2024.1080p.BluRay.x264-GRP</title>
      <guid>https://tracker.example/details/99</guid>
      <size>8589934592</size>
      <attr name="tmdbid" value="603"/>
      <attr name="imdbid" value="0133093"/>
      <attr name="seeders" value="12"/>
      <attr name="peers" value="2"/>
    </item>
  </channel>
</rss>`))
	}))
	defer srv.Close()

	s := parseTestSchema(t)
	s.Tracker.BaseURL = srv.URL
	s.Search.Response = SearchResponse{Format: "torznab_xml"}
	adapter := NewAdapter(s, Credentials{APIKey: "secret-key"}, testGuards(), nil)

	results, err := adapter.Search(context.Background(), map[string]string{"name": "The Movie"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(603), results[0].TmdbID)
	assert.Equal(t, "tt0133093", results[0].ImdbID)
	assert.Equal(t, 12, results[0].Seeders)
	assert.Equal(t, "https://tracker.example/details/99", results[0].URL)
}

func TestAdapter_DuplicateCheckCascade(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("tmdbId") != "":
			w.Write([]byte(`{"data":[{"name":"The.Movie.2024.1080p.BluRay.x264-GRP"}]}`))
		default:
			w.Write([]byte(`{"data":[]}`))
		}
	}))
	defer srv.Close()

	matches, method, err := testAdapter(t, srv.URL).DuplicateCheck(context.Background(), DuplicateQuery{
		TmdbID:      603,
		ImdbID:      "tt0133093",
		ReleaseName: "The.Movie.2024.1080p.BluRay.x264-GRP",
	})
	require.NoError(t, err)
	assert.Equal(t, "tmdb", method)
	require.Len(t, matches, 1)
}

func TestAdapter_DuplicateCheckNameFiltersFuzzyResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("name") != "" {
			w.Write([]byte(`{"data":[
				{"name":"The Movie 2024 1080p BluRay x264-GRP"},
				{"name":"The.Movie.2024.2160p.WEB-DL.x265-OTH"}
			]}`))
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	matches, method, err := testAdapter(t, srv.URL).DuplicateCheck(context.Background(), DuplicateQuery{
		TmdbID:      603,
		ImdbID:      "tt0133093",
		ReleaseName: "The.Movie.2024.1080p.BluRay.x264-GRP",
	})
	require.NoError(t, err)
	assert.Equal(t, "name", method)
	// Only the dot/space variant of the same release counts as a duplicate.
	require.Len(t, matches, 1)
	assert.Equal(t, "The Movie 2024 1080p BluRay x264-GRP", matches[0].Title)
}

func TestAdapter_DuplicateCheckNoMatches(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	matches, method, err := testAdapter(t, srv.URL).DuplicateCheck(context.Background(), DuplicateQuery{
		TmdbID: 603, ReleaseName: "The.Movie.2024",
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, method)
}

func TestAdapter_AnnounceURLAndSourceFlag(t *testing.T) {
	t.Parallel()

	s := parseTestSchema(t)
	adapter := NewAdapter(s, Credentials{Passkey: "pass-123"}, testGuards(), nil)

	assert.Equal(t, "https://tracker.example/announce?passkey=pass-123", adapter.AnnounceURL())
	assert.Equal(t, "EXAMPLE", adapter.SourceFlag())

	s.Tracker.SourceFlag = "EXA"
	assert.Equal(t, "EXA", adapter.SourceFlag())
}

func TestAdapter_TestUploadDryRun(t *testing.T) {
	t.Parallel()

	adapter := testAdapter(t, "https://tracker.example")

	result := adapter.TestUpload(uploadContext())
	assert.True(t, result.Success)
	assert.Contains(t, result.Details, "torrent (file)")
	assert.Contains(t, result.Details, "tag_ids (repeated)")

	uc := uploadContext()
	delete(uc, "torrent_data")
	result = adapter.TestUpload(uc)
	assert.False(t, result.Success)
}

func TestAdapter_AuthenticateRequiresSolverForCloudflare(t *testing.T) {
	t.Parallel()

	s := parseTestSchema(t)
	s.Cloudflare.Enabled = true
	adapter := NewAdapter(s, Credentials{APIKey: "secret-key"}, testGuards(), nil)

	err := adapter.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.KindOf(err))
}
