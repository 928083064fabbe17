// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package trackersvc turns stored tracker rows into live upload adapters.
// Schemas live in the database as YAML blobs; credentials are decrypted on
// demand and never leave this package. Built adapters are cached per slug
// and rebuilt when the row changes, so rate-limit buckets and Cloudflare
// clearances survive across pipeline runs.
package trackersvc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/registry"
	"github.com/seedarr/seedarr/internal/services/pipeline"
	"github.com/seedarr/seedarr/internal/tracker"
)

// Service builds and caches tracker instances from the store.
type Service struct {
	store  *models.TrackerStore
	guards *registry.Registry
	solver tracker.ChallengeSolver

	mu    sync.Mutex
	cache map[string]*Instance
}

// New creates a Service. solver may be nil when no challenge solver is
// configured; Cloudflare-fronted trackers then fail with a validation error.
func New(store *models.TrackerStore, guards *registry.Registry, solver tracker.ChallengeSolver) *Service {
	return &Service{
		store:  store,
		guards: guards,
		solver: solver,
		cache:  make(map[string]*Instance),
	}
}

// Active returns an instance for every enabled tracker.
func (s *Service) Active(ctx context.Context) ([]pipeline.TrackerInstance, error) {
	rows, err := s.store.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}

	instances := make([]pipeline.TrackerInstance, 0, len(rows))
	for _, row := range rows {
		inst, err := s.instance(row)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Instance returns the instance for one tracker by slug, enabled or not.
// Used by connectivity tests against trackers that are still disabled.
func (s *Service) Instance(ctx context.Context, slug string) (*Instance, error) {
	row, err := s.store.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.instance(row)
}

func (s *Service) instance(row *models.Tracker) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[row.Slug]; ok && cached.builtFrom.Equal(row.UpdatedAt) {
		// Row-level policy can flip without a rebuild.
		cached.skipOnDuplicate = row.SkipOnDuplicate
		return cached, nil
	}

	schema, err := tracker.Parse([]byte(row.SchemaYAML))
	if err != nil {
		return nil, errkind.Wrap(errkind.KindValidation, err, "stored schema for %s", row.Slug)
	}

	apiKey, passkey, err := s.store.Credentials(row)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		Adapter:         tracker.NewAdapter(schema, tracker.Credentials{APIKey: apiKey, Passkey: passkey}, s.guards, s.solver),
		skipOnDuplicate: row.SkipOnDuplicate,
		builtFrom:       row.UpdatedAt,
	}
	s.cache[row.Slug] = inst
	return inst, nil
}

// Invalidate drops the cached instance so the next use rebuilds it.
func (s *Service) Invalidate(slug string) {
	s.mu.Lock()
	delete(s.cache, slug)
	s.mu.Unlock()
}

// SyncSchemas reconciles the schema files in dir against the store: new
// slugs are created disabled, changed blobs update the stored row. Rows
// without a matching file are left alone.
func (s *Service) SyncSchemas(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		schema, err := tracker.Parse(data)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("trackersvc: skipping invalid schema file")
			continue
		}

		slug := schema.Tracker.Slug
		row, err := s.store.GetBySlug(ctx, slug)
		switch {
		case errors.Is(err, models.ErrTrackerNotFound):
			if _, err := s.store.Create(ctx, slug, schema.Tracker.Name, string(data), "", "", false); err != nil {
				return err
			}
			log.Info().Str("tracker", slug).Msg("trackersvc: registered new tracker schema")
		case err != nil:
			return err
		case row.SchemaYAML != string(data):
			if err := s.store.UpdateSchema(ctx, row.ID, string(data)); err != nil {
				return err
			}
			s.Invalidate(slug)
			log.Info().Str("tracker", slug).Msg("trackersvc: updated tracker schema")
		}
	}
	return nil
}

// Instance is one configured tracker ready for duplicate checks and
// uploads. Cloudflare clearance and credential verification happen lazily
// on first use and are not repeated after success.
type Instance struct {
	*tracker.Adapter

	skipOnDuplicate bool
	builtFrom       time.Time

	authMu sync.Mutex
	authed bool
}

// SkipOnDuplicate reports the row-level duplicate policy.
func (i *Instance) SkipOnDuplicate() bool {
	return i.skipOnDuplicate
}

func (i *Instance) ensureAuth(ctx context.Context) error {
	i.authMu.Lock()
	defer i.authMu.Unlock()

	if i.authed {
		return nil
	}
	if err := i.Adapter.Authenticate(ctx); err != nil {
		return err
	}
	i.authed = true
	return nil
}

// Upload authenticates on first use, then delegates to the adapter.
func (i *Instance) Upload(ctx context.Context, uc tracker.Context) (*tracker.UploadResult, error) {
	if err := i.ensureAuth(ctx); err != nil {
		return nil, err
	}
	return i.Adapter.Upload(ctx, uc)
}

// DuplicateCheck authenticates on first use, then delegates to the adapter.
func (i *Instance) DuplicateCheck(ctx context.Context, q tracker.DuplicateQuery) ([]tracker.SearchResult, string, error) {
	if err := i.ensureAuth(ctx); err != nil {
		return nil, "", err
	}
	return i.Adapter.DuplicateCheck(ctx, q)
}
