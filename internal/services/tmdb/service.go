// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tmdb looks up movie metadata from The Movie Database. Lookups
// are cached in SQLite so repeated pipeline runs for the same title stay
// off the network.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/registry"
)

// Movie is the subset of TMDB movie data the pipeline needs.
type Movie struct {
	TmdbID           int64   `json:"tmdbId"`
	ImdbID           string  `json:"imdbId,omitempty"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"originalTitle,omitempty"`
	Year             int     `json:"year"`
	Overview         string  `json:"overview,omitempty"`
	OriginalLanguage string  `json:"originalLanguage,omitempty"`
	VoteAverage      float64 `json:"voteAverage,omitempty"`
	PosterPath       string  `json:"posterPath,omitempty"`
	Genres           []Genre `json:"genres,omitempty"`
}

// Genre is one TMDB genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Service is the TMDB client.
type Service struct {
	cfg        domain.TMDBConfig
	httpClient *http.Client
	cache      *models.TmdbCacheStore
	guards     *registry.Registry
}

// NewService creates a Service. cache may be nil to disable caching (tests).
func NewService(cfg domain.TMDBConfig, cache *models.TmdbCacheStore, guards *registry.Registry) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.themoviedb.org/3"
	}

	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		guards:     guards,
	}
}

type searchResponse struct {
	Results []struct {
		ID               int64   `json:"id"`
		Title            string  `json:"title"`
		OriginalTitle    string  `json:"original_title"`
		ReleaseDate      string  `json:"release_date"`
		Overview         string  `json:"overview"`
		OriginalLanguage string  `json:"original_language"`
		VoteAverage      float64 `json:"vote_average"`
		PosterPath       string  `json:"poster_path"`
	} `json:"results"`
}

type movieResponse struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	ReleaseDate      string  `json:"release_date"`
	Overview         string  `json:"overview"`
	OriginalLanguage string  `json:"original_language"`
	VoteAverage      float64 `json:"vote_average"`
	PosterPath       string  `json:"poster_path"`
	Genres           []Genre `json:"genres"`
	ExternalIDs      struct {
		ImdbID string `json:"imdb_id"`
	} `json:"external_ids"`
}

// SearchMovie finds the best match for a parsed title and year. An exact
// case-insensitive title match wins; otherwise the first result does.
func (s *Service) SearchMovie(ctx context.Context, title string, year int) (*Movie, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errkind.New(errkind.KindValidation, "empty title for tmdb search")
	}

	params := url.Values{}
	params.Set("query", title)
	if year > 0 {
		params.Set("year", strconv.Itoa(year))
	}

	var sr searchResponse
	if err := s.get(ctx, "/search/movie", params, &sr); err != nil {
		return nil, err
	}

	if len(sr.Results) == 0 {
		// Retry without the year hint; rips often carry the wrong one.
		if year > 0 {
			return s.SearchMovie(ctx, title, 0)
		}
		return nil, errkind.New(errkind.KindValidation, "no tmdb results for %q", title)
	}

	best := sr.Results[0]
	for _, r := range sr.Results {
		if strings.EqualFold(r.Title, title) || strings.EqualFold(r.OriginalTitle, title) {
			best = r
			break
		}
	}

	// The search endpoint omits external ids; fetch the full record (which
	// also warms the cache with the imdb id).
	return s.GetMovie(ctx, best.ID)
}

// GetMovie fetches a movie by TMDB id, serving from cache when fresh.
func (s *Service) GetMovie(ctx context.Context, tmdbID int64) (*Movie, error) {
	if s.cache != nil {
		if entry, err := s.cache.Get(ctx, tmdbID); err == nil {
			var m Movie
			if err := json.Unmarshal(entry.Payload, &m); err == nil {
				return &m, nil
			}
			log.Warn().Int64("tmdbId", tmdbID).Msg("tmdb: discarding undecodable cache entry")
		}
	}

	params := url.Values{}
	params.Set("append_to_response", "external_ids")

	var mr movieResponse
	if err := s.get(ctx, fmt.Sprintf("/movie/%d", tmdbID), params, &mr); err != nil {
		return nil, err
	}

	movie := &Movie{
		TmdbID:           mr.ID,
		ImdbID:           mr.ExternalIDs.ImdbID,
		Title:            mr.Title,
		OriginalTitle:    mr.OriginalTitle,
		Year:             yearOf(mr.ReleaseDate),
		Overview:         mr.Overview,
		OriginalLanguage: mr.OriginalLanguage,
		VoteAverage:      mr.VoteAverage,
		PosterPath:       mr.PosterPath,
		Genres:           mr.Genres,
	}

	if s.cache != nil {
		payload, err := json.Marshal(movie)
		if err == nil {
			if err := s.cache.Upsert(ctx, tmdbID, payload, s.cfg.CacheTTL()); err != nil {
				log.Warn().Err(err).Int64("tmdbId", tmdbID).Msg("tmdb: could not cache movie")
			}
		}
	}

	return movie, nil
}

// Test verifies the API key against the configuration endpoint.
func (s *Service) Test(ctx context.Context) error {
	var out map[string]any
	return s.get(ctx, "/configuration", url.Values{}, &out)
}

func (s *Service) get(ctx context.Context, path string, params url.Values, out any) error {
	if s.cfg.APIKey == "" {
		return errkind.New(errkind.KindValidation, "tmdb api key is not configured")
	}
	params.Set("api_key", s.cfg.APIKey)

	return s.guards.Call(ctx, "tmdb", "", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+path+"?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("build tmdb request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return errkind.FromTransportErr(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return errkind.FromHTTPStatus(resp.StatusCode, retryAfterOf(resp), string(body))
		}

		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func retryAfterOf(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func yearOf(releaseDate string) int {
	if len(releaseDate) < 4 {
		return 0
	}
	year, _ := strconv.Atoi(releaseDate[:4])
	return year
}
