// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package watcher feeds the queue from the library directories. It combines
// inotify events with a periodic rescan: events give low latency, the
// rescan catches files that arrived while the process was down or that the
// kernel dropped. Writes are debounced per path so a file still being
// copied is not admitted half-finished.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/pkg/debounce"
)

// Enqueuer schedules a registered file entry for processing.
type Enqueuer interface {
	EnqueueEntry(ctx context.Context, fileEntryID int64, priority models.JobPriority) (*models.QueueJob, error)
}

// Options tunes the watcher.
type Options struct {
	// ScanDirs are the library roots to watch, recursively.
	ScanDirs []string
	// VideoExtensions whitelists admitted files, dot included. Empty
	// falls back to the common containers.
	VideoExtensions []string
	// SettleDelay is how long a path must stay quiet after its last write
	// before admission.
	SettleDelay time.Duration
	// RescanInterval is the period of the full directory sweep.
	RescanInterval time.Duration
}

func (o Options) withDefaults() Options {
	if len(o.VideoExtensions) == 0 {
		o.VideoExtensions = []string{".mkv", ".mp4", ".avi", ".ts", ".m2ts"}
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 30 * time.Second
	}
	if o.RescanInterval <= 0 {
		o.RescanInterval = 15 * time.Minute
	}
	return o
}

// Service watches the library directories and admits settled video files.
type Service struct {
	opts    Options
	exts    map[string]bool
	entries *models.FileEntryStore
	queue   Enqueuer

	mu       sync.Mutex
	settling map[string]*debounce.Debouncer
}

// NewService creates a Service.
func NewService(opts Options, entries *models.FileEntryStore, queue Enqueuer) *Service {
	opts = opts.withDefaults()

	exts := make(map[string]bool, len(opts.VideoExtensions))
	for _, ext := range opts.VideoExtensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Service{
		opts:     opts,
		exts:     exts,
		entries:  entries,
		queue:    queue,
		settling: make(map[string]*debounce.Debouncer),
	}
}

// Start runs an initial sweep, then watches for events and rescans
// periodically until ctx is cancelled. It blocks.
func (s *Service) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	defer s.stopSettling()

	for _, dir := range s.opts.ScanDirs {
		if err := s.watchTree(fsw, dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("watcher: cannot watch directory")
		}
	}

	s.rescan(ctx)

	ticker := time.NewTicker(s.opts.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			s.rescan(ctx)

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher: fsnotify error")
		}
	}
}

// watchTree registers dir and all its subdirectories.
func (s *Service) watchTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (s *Service) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}

	// New directories join the watch so nested moves are seen.
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op.Has(fsnotify.Create) {
			if err := s.watchTree(fsw, event.Name); err != nil {
				log.Warn().Err(err).Str("dir", event.Name).Msg("watcher: cannot watch new directory")
			}
		}
		return
	}

	if !s.wanted(event.Name) {
		return
	}

	s.mu.Lock()
	d, ok := s.settling[event.Name]
	if !ok {
		d = debounce.New(s.opts.SettleDelay)
		s.settling[event.Name] = d
	}
	s.mu.Unlock()

	path := event.Name
	d.Do(func() {
		s.mu.Lock()
		delete(s.settling, path)
		s.mu.Unlock()
		// Stop would wait for this very callback to return.
		go d.Stop()

		s.admit(ctx, path)
	})
}

func (s *Service) stopSettling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, d := range s.settling {
		d.Stop()
		delete(s.settling, path)
	}
}

// rescan sweeps the scan dirs and admits every wanted file.
func (s *Service) rescan(ctx context.Context) {
	for _, dir := range s.opts.ScanDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !d.IsDir() && s.wanted(path) {
				s.admit(ctx, path)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("dir", dir).Msg("watcher: rescan failed")
		}
	}
}

func (s *Service) wanted(path string) bool {
	return s.exts[strings.ToLower(filepath.Ext(path))]
}

// admit registers the file and enqueues it. Entries that already moved
// past pending are left alone, so completed or failed files are not
// resubmitted on every rescan.
func (s *Service) admit(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return
	}

	entry, err := s.entries.GetOrCreate(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("watcher: register file failed")
		return
	}
	if entry.Status != models.FileStatusPending {
		return
	}

	if _, err := s.queue.EnqueueEntry(ctx, entry.ID, models.PriorityNormal); err != nil {
		log.Error().Err(err).Int64("fileEntryId", entry.ID).Msg("watcher: enqueue failed")
		return
	}
	log.Info().Str("path", path).Int64("fileEntryId", entry.ID).Msg("watcher: admitted file")
}
