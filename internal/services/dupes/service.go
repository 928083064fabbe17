// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dupes runs duplicate checks against trackers before an upload is
// attempted. Checks cascade from the strongest identifier (TMDB id) down
// to a sanitized name search, and fall back to Prowlarr when a tracker
// offers no native search.
package dupes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/tracker"
	"github.com/seedarr/seedarr/pkg/prowlarr"
)

// Checker is the tracker-side duplicate search. *tracker.Adapter satisfies
// it.
type Checker interface {
	Slug() string
	Schema() *tracker.Schema
	DuplicateCheck(ctx context.Context, q tracker.DuplicateQuery) ([]tracker.SearchResult, string, error)
}

// Result is one tracker's duplicate verdict.
type Result struct {
	Tracker     string                 `json:"tracker"`
	IsDuplicate bool                   `json:"isDuplicate"`
	// Method names the identifier that produced the matches: "tmdb",
	// "imdb", "name", or "prowlarr".
	Method  string                 `json:"method,omitempty"`
	Matches []tracker.SearchResult `json:"matches,omitempty"`
	// Error is set when the check could not complete. An errored check is
	// inconclusive, not a duplicate.
	Error string `json:"error,omitempty"`
}

// Service coordinates duplicate checks and caches conclusive results so a
// requeued job does not re-query the tracker.
type Service struct {
	cache    *ttlcache.Cache[string, Result]
	prowlarr *prowlarr.Client

	// indexerIDs maps tracker slug to resolved Prowlarr indexer id.
	mu         sync.Mutex
	indexerIDs map[string]string
}

// NewService creates the duplicate check service. prowlarrClient may be
// nil when Prowlarr is not configured.
func NewService(prowlarrClient *prowlarr.Client) *Service {
	return &Service{
		cache:      ttlcache.New(ttlcache.Options[string, Result]{}.SetDefaultTTL(15 * time.Minute)),
		prowlarr:   prowlarrClient,
		indexerIDs: make(map[string]string),
	}
}

func cacheKey(slug string, q tracker.DuplicateQuery) string {
	return fmt.Sprintf("%s|%d|%s|%s", slug, q.TmdbID, q.ImdbID, q.ReleaseName)
}

// Check runs the cascade against one tracker. Conclusive results are
// cached; errors are returned uncached so the next attempt retries.
func (s *Service) Check(ctx context.Context, chk Checker, q tracker.DuplicateQuery) Result {
	key := cacheKey(chk.Slug(), q)
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}

	result := s.check(ctx, chk, q)
	if result.Error == "" {
		s.cache.Set(key, result, ttlcache.DefaultTTL)
	}
	return result
}

func (s *Service) check(ctx context.Context, chk Checker, q tracker.DuplicateQuery) Result {
	result := Result{Tracker: chk.Slug()}

	matches, method, err := chk.DuplicateCheck(ctx, q)
	if err == nil {
		result.IsDuplicate = len(matches) > 0
		result.Method = method
		result.Matches = matches
		return result
	}

	log.Debug().Err(err).Str("tracker", chk.Slug()).Msg("dupes: native search failed")

	if s.prowlarr != nil {
		matches, perr := s.viaProwlarr(ctx, chk, q)
		if perr == nil {
			result.IsDuplicate = len(matches) > 0
			result.Method = "prowlarr"
			result.Matches = matches
			return result
		}
		log.Debug().Err(perr).Str("tracker", chk.Slug()).Msg("dupes: prowlarr fallback failed")
	}

	result.Error = err.Error()
	return result
}

// CheckAll fans the check out over every tracker sequentially. Upload
// pacing happens per tracker inside the adapters, so there is no benefit
// to querying them in parallel from one job.
func (s *Service) CheckAll(ctx context.Context, checkers []Checker, q tracker.DuplicateQuery) []Result {
	results := make([]Result, 0, len(checkers))
	for _, chk := range checkers {
		results = append(results, s.Check(ctx, chk, q))
	}
	return results
}

// Invalidate drops the cached verdict for one tracker and query. Called
// after a successful upload so the next check sees the new release.
func (s *Service) Invalidate(slug string, q tracker.DuplicateQuery) {
	s.cache.Delete(cacheKey(slug, q))
}

// viaProwlarr searches through the Prowlarr indexer matched to the
// tracker by the schema's hints.
func (s *Service) viaProwlarr(ctx context.Context, chk Checker, q tracker.DuplicateQuery) ([]tracker.SearchResult, error) {
	indexerID, err := s.resolveIndexer(ctx, chk)
	if err != nil {
		return nil, err
	}

	params := map[string]string{}
	switch {
	case q.TmdbID > 0:
		params["t"] = "movie"
		params["tmdbid"] = strconv.FormatInt(q.TmdbID, 10)
	case q.ImdbID != "":
		params["t"] = "movie"
		params["imdbid"] = strings.TrimPrefix(q.ImdbID, "tt")
	default:
		params["q"] = chk.Schema().SanitizeName(q.ReleaseName)
	}

	rss, err := s.prowlarr.SearchIndexer(ctx, indexerID, params)
	if err != nil {
		return nil, err
	}

	results := make([]tracker.SearchResult, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		seeders, _ := strconv.Atoi(item.Attr("seeders"))
		results = append(results, tracker.SearchResult{
			Title:   item.Title,
			TmdbID:  item.TmdbID(),
			ImdbID:  item.ImdbID(),
			Size:    item.Size,
			Seeders: seeders,
			URL:     item.GUID,
		})
	}
	return results, nil
}

// resolveIndexer finds the Prowlarr indexer for a tracker by the schema's
// name and URL hints. The mapping is cached for the process lifetime.
func (s *Service) resolveIndexer(ctx context.Context, chk Checker) (string, error) {
	s.mu.Lock()
	if id, ok := s.indexerIDs[chk.Slug()]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	hints := chk.Schema().Prowlarr
	if len(hints.IndexerNames) == 0 && len(hints.URLPatterns) == 0 {
		return "", fmt.Errorf("tracker %s has no prowlarr hints", chk.Slug())
	}

	indexers, err := s.prowlarr.GetIndexers(ctx)
	if err != nil {
		return "", err
	}

	for _, idx := range indexers {
		if !idx.Enable || !matchesHints(idx, hints) {
			continue
		}
		id := strconv.Itoa(idx.ID)
		s.mu.Lock()
		s.indexerIDs[chk.Slug()] = id
		s.mu.Unlock()
		return id, nil
	}
	return "", fmt.Errorf("no prowlarr indexer matches tracker %s", chk.Slug())
}

func matchesHints(idx prowlarr.Indexer, hints tracker.ProwlarrHints) bool {
	name := strings.ToLower(idx.Name)
	for _, want := range hints.IndexerNames {
		if strings.Contains(name, strings.ToLower(want)) {
			return true
		}
	}
	impl := strings.ToLower(idx.Implementation)
	for _, pattern := range hints.URLPatterns {
		if strings.Contains(impl, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
