// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/services/notifications"
	"github.com/seedarr/seedarr/internal/services/renamer"
	"github.com/seedarr/seedarr/internal/torrents"
	"github.com/seedarr/seedarr/internal/tracker"
	"github.com/seedarr/seedarr/pkg/pathutil"
)

// runScan verifies the file exists, is readable, and lives under a
// configured library root.
func (p *Pipeline) runScan(ctx context.Context, entry *models.FileEntry) (*models.FileEntry, error) {
	if err := p.validatePath(entry.FilePath); err != nil {
		return nil, err
	}
	return p.entries.UpdateWithCheckpoint(ctx, entry.ID, models.StageScan, models.StageArtifacts{})
}

func (p *Pipeline) validatePath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errkind.Wrap(errkind.KindValidation, err, "resolve path")
	}

	info, err := os.Stat(abs)
	if err != nil {
		return errkind.Wrap(errkind.KindValidation, err, "stat media file")
	}
	if info.IsDir() {
		return errkind.New(errkind.KindValidation, "%s is a directory", abs)
	}
	if info.Size() == 0 {
		return errkind.New(errkind.KindValidation, "%s is empty", abs)
	}

	if len(p.cfg.ScanDirs) == 0 {
		return nil
	}
	for _, root := range p.cfg.ScanDirs {
		cleanRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == cleanRoot || strings.HasPrefix(abs, cleanRoot+string(filepath.Separator)) {
			return nil
		}
	}
	return errkind.New(errkind.KindValidation, "%s is outside the configured scan directories", abs)
}

// runAnalyze extracts technical metadata and resolves the movie on TMDB.
func (p *Pipeline) runAnalyze(ctx context.Context, entry *models.FileEntry) (*models.FileEntry, error) {
	info, err := p.analyzer.Analyze(ctx, entry.FilePath)
	if err != nil {
		return nil, err
	}

	parsed := rls.ParseString(filepath.Base(entry.FilePath))
	title := parsed.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(entry.FilePath), filepath.Ext(entry.FilePath))
	}

	movie, err := p.movies.SearchMovie(ctx, title, parsed.Year)
	if err != nil {
		return nil, err
	}

	blob, err := json.Marshal(Metadata{Movie: movie, Info: info})
	if err != nil {
		return nil, errkind.Wrap(errkind.KindInternalInvariant, err, "encode entry metadata")
	}

	return p.entries.UpdateWithCheckpoint(ctx, entry.ID, models.StageAnalyze, models.StageArtifacts{
		Metadata: blob,
	})
}

// runApprove passes automatically under the auto policy and parks the
// entry otherwise.
func (p *Pipeline) runApprove(ctx context.Context, entry *models.FileEntry) (*models.FileEntry, error) {
	if p.cfg.ApprovePolicy == "manual" {
		return nil, ErrAwaitingApproval
	}
	return p.entries.UpdateWithCheckpoint(ctx, entry.ID, models.StageApprove, models.StageArtifacts{})
}

// runPrepare captures screenshots and uploads them. Both halves are
// optional: without ffmpeg or an image host the stage records an empty
// URL list and moves on.
func (p *Pipeline) runPrepare(ctx context.Context, entry *models.FileEntry) (*models.FileEntry, error) {
	urls := []string{}

	if p.shots != nil && p.shots.Available() && p.images != nil && p.images.Enabled() {
		meta, err := p.metadata(entry)
		if err != nil {
			return nil, err
		}
		var duration float64
		if meta.Info != nil {
			duration = meta.Info.DurationSecs
		}

		outDir := filepath.Join(p.cfg.OutputDir, "screenshots", strconv.FormatInt(entry.ID, 10))
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("create screenshot dir: %w", err)
		}

		paths, err := p.shots.Capture(ctx, entry.FilePath, duration, outDir)
		if err != nil {
			return nil, err
		}

		if len(paths) > 0 {
			urls, err = p.images.UploadAll(ctx, paths)
			if err != nil {
				if errkind.IsRetryable(err) {
					return nil, err
				}
				// A rejected upload is not worth failing the release over.
				log.Warn().Err(err).Int64("fileEntryId", entry.ID).Msg("pipeline: screenshot upload rejected, continuing without")
				urls = []string{}
			}
		}
	}

	return p.entries.UpdateWithCheckpoint(ctx, entry.ID, models.StagePrepare, models.StageArtifacts{
		ScreenshotURLs: urls,
	})
}

// runRename derives the canonical release name from the verified metadata
// and moves the media file into the output directory under that name.
func (p *Pipeline) runRename(ctx context.Context, entry *models.FileEntry) (*models.FileEntry, error) {
	meta, err := p.metadata(entry)
	if err != nil {
		return nil, err
	}

	result, err := renamer.ReleaseName(renamer.Input{
		OriginalName: filepath.Base(entry.FilePath),
		Movie:        meta.Movie,
		Info:         meta.Info,
		Team:         p.cfg.ReleaseTeam,
	})
	if err != nil {
		return nil, err
	}

	newPath := filepath.Join(p.cfg.OutputDir,
		pathutil.SanitizeSegment(result.ReleaseName)+filepath.Ext(entry.FilePath))
	if err := moveFile(entry.FilePath, newPath); err != nil {
		return nil, err
	}

	meta.Rename = result
	blob, err := json.Marshal(meta)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindInternalInvariant, err, "encode entry metadata")
	}

	return p.entries.UpdateWithCheckpoint(ctx, entry.ID, models.StageRename, models.StageArtifacts{
		FilePath:    &newPath,
		ReleaseName: &result.ReleaseName,
		Metadata:    blob,
	})
}

// moveFile moves the payload into the output directory. A crash between
// the move and the checkpoint leaves the payload at the target already, so
// a missing source with the target present counts as moved.
func moveFile(src, dst string) error {
	if src == dst {
		return nil
	}
	if _, err := os.Stat(src); os.IsNotExist(err) {
		if _, dstErr := os.Stat(dst); dstErr == nil {
			return nil
		}
		return errkind.Wrap(errkind.KindValidation, err, "media file is gone")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across filesystems; copy and remove instead.
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("move %s to output dir: %w", filepath.Base(src), err)
	}
	if err := os.Remove(src); err != nil {
		log.Warn().Err(err).Str("path", src).Msg("pipeline: could not remove source after copy")
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// runGenerate writes the NFO and one torrent per enabled tracker. The
// per-tracker source flag makes each infohash unique.
func (p *Pipeline) runGenerate(ctx context.Context, entry *models.FileEntry) (*models.FileEntry, error) {
	instances, err := p.trackers.Active(ctx)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, errkind.New(errkind.KindValidation, "no enabled trackers to generate torrents for")
	}

	meta, err := p.metadata(entry)
	if err != nil {
		return nil, err
	}

	safeName := pathutil.SanitizeSegment(entry.ReleaseName)
	paths := make(map[string]string, len(instances))

	for _, inst := range instances {
		// Resumption reuses a torrent generated on a previous attempt.
		if existing, ok := entry.TorrentPaths[inst.Slug()]; ok {
			if _, err := os.Stat(existing); err == nil {
				paths[inst.Slug()] = existing
				continue
			}
		}

		// The embedded name must match the payload on disk or the torrent
		// can never hash-check.
		data, err := torrents.Generate(entry.FilePath, filepath.Base(entry.FilePath), torrents.Options{
			AnnounceURL: inst.AnnounceURL(),
			Source:      inst.SourceFlag(),
			CreatedBy:   "seedarr",
		})
		if err != nil {
			return nil, fmt.Errorf("generate torrent for %s: %w", inst.Slug(), err)
		}

		dir := filepath.Join(p.cfg.OutputDir, "torrents", inst.Slug())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create torrent dir: %w", err)
		}

		path := filepath.Join(dir, safeName+".torrent")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write torrent: %w", err)
		}
		paths[inst.Slug()] = path
	}

	nfoDir := filepath.Join(p.cfg.OutputDir, "nfo")
	if err := os.MkdirAll(nfoDir, 0o755); err != nil {
		return nil, fmt.Errorf("create nfo dir: %w", err)
	}
	nfoPath := filepath.Join(nfoDir, safeName+".nfo")
	if err := os.WriteFile(nfoPath, []byte(renderNFO(entry, meta)), 0o644); err != nil {
		return nil, fmt.Errorf("write nfo: %w", err)
	}

	return p.entries.UpdateWithCheckpoint(ctx, entry.ID, models.StageGenerate, models.StageArtifacts{
		NFOPath:      &nfoPath,
		TorrentPaths: paths,
	})
}

// runUpload publishes to every enabled tracker. The entry completes when
// at least one tracker accepted the release or skipped it as a known
// duplicate; it fails only when every tracker failed.
func (p *Pipeline) runUpload(ctx context.Context, entry *models.FileEntry) (*models.FileEntry, error) {
	instances, err := p.trackers.Active(ctx)
	if err != nil {
		return nil, err
	}

	meta, err := p.metadata(entry)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]models.TrackerResult)
	results, err := p.entries.TrackerResults(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		existing[r.TrackerSlug] = r
	}

	query := tracker.DuplicateQuery{ReleaseName: entry.ReleaseName}
	if meta.Movie != nil {
		query.TmdbID = meta.Movie.TmdbID
		query.ImdbID = meta.Movie.ImdbID
	}

	var settled int
	var lastErr error
	retryable := false

	for _, inst := range instances {
		slug := inst.Slug()

		// Trackers settled on a previous attempt are never retried.
		if r, ok := existing[slug]; ok && r.Outcome != models.TrackerOutcomeFailed {
			settled++
			continue
		}

		if p.dupes != nil {
			verdict := p.dupes.Check(ctx, inst, query)
			if verdict.IsDuplicate && inst.SkipOnDuplicate() {
				p.recordSkip(ctx, entry, slug, fmt.Sprintf("duplicate found via %s search", verdict.Method))
				settled++
				continue
			}
		}

		uc, torrentData, err := p.uploadContext(entry, meta, inst)
		if err != nil {
			return nil, err
		}

		result, err := inst.Upload(ctx, uc)
		if err != nil {
			if errkind.KindOf(err) == errkind.KindDuplicateRelease {
				p.recordSkip(ctx, entry, slug, err.Error())
				settled++
				continue
			}

			log.Warn().Err(err).Str("tracker", slug).Int64("fileEntryId", entry.ID).Msg("pipeline: upload failed")
			if recErr := p.entries.RecordTrackerResult(ctx, models.TrackerResult{
				FileEntryID: entry.ID,
				TrackerSlug: slug,
				Outcome:     models.TrackerOutcomeFailed,
				Error:       err.Error(),
			}); recErr != nil {
				return nil, recErr
			}
			if errkind.IsRetryable(err) {
				retryable = true
			}
			lastErr = err
			continue
		}

		if err := p.entries.RecordTrackerResult(ctx, models.TrackerResult{
			FileEntryID:     entry.ID,
			TrackerSlug:     slug,
			Outcome:         models.TrackerOutcomeUploaded,
			RemoteTorrentID: result.TorrentID,
			RemoteURL:       result.TorrentURL,
		}); err != nil {
			return nil, err
		}
		settled++

		if p.dupes != nil {
			p.dupes.Invalidate(slug, query)
		}

		if p.seeder != nil && p.seeder.Enabled() {
			if err := p.seeder.Seed(ctx, torrentData, filepath.Dir(entry.FilePath)); err != nil {
				log.Warn().Err(err).Str("tracker", slug).Msg("pipeline: could not start seeding")
			}
		}
	}

	// Retryable failures requeue the job even when other trackers already
	// settled; those are skipped on the next attempt. The budget-exhausted
	// case is finalized by the queue from the recorded results.
	if retryable {
		return nil, lastErr
	}

	if settled > 0 {
		return p.entries.UpdateWithCheckpoint(ctx, entry.ID, models.StageUpload, models.StageArtifacts{})
	}

	if lastErr == nil {
		return nil, errkind.New(errkind.KindValidation, "no enabled trackers to upload to")
	}
	return nil, errkind.Wrap(errkind.KindTrackerPermanent, lastErr, "all trackers rejected the upload")
}

func (p *Pipeline) recordSkip(ctx context.Context, entry *models.FileEntry, slug, reason string) {
	if err := p.entries.RecordTrackerResult(ctx, models.TrackerResult{
		FileEntryID: entry.ID,
		TrackerSlug: slug,
		Outcome:     models.TrackerOutcomeSkippedDuplicate,
		Error:       reason,
	}); err != nil {
		log.Error().Err(err).Str("tracker", slug).Msg("pipeline: could not record duplicate skip")
	}

	p.publish(notifications.Event{
		Type:        notifications.EventDuplicateDetected,
		FileEntryID: entry.ID,
		ReleaseName: entry.ReleaseName,
		Tracker:     slug,
		Message:     reason,
	})
}

// uploadContext assembles the build context the tracker schema's field
// descriptors resolve against.
func (p *Pipeline) uploadContext(entry *models.FileEntry, meta *Metadata, inst TrackerInstance) (tracker.Context, []byte, error) {
	torrentPath, ok := entry.TorrentPaths[inst.Slug()]
	if !ok {
		return nil, nil, errkind.New(errkind.KindInternalInvariant, "no torrent generated for tracker %s", inst.Slug())
	}
	torrentData, err := os.ReadFile(torrentPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read torrent: %w", err)
	}

	uc := tracker.Context{
		"torrent_data": torrentData,
		"release_name": entry.ReleaseName,
		"name":         entry.ReleaseName,
		"description":  buildDescription(entry, meta),
		"mediainfo":    mediaSummary(meta.Info),
		"anonymous":    false,
	}

	if entry.NFOPath != "" {
		if nfo, err := os.ReadFile(entry.NFOPath); err == nil {
			uc["nfo"] = string(nfo)
		}
	}
	if len(entry.ScreenshotURLs) > 0 {
		uc["screenshots"] = entry.ScreenshotURLs
	}

	if meta.Movie != nil {
		uc["tmdb_id"] = meta.Movie.TmdbID
		uc["imdb_id"] = meta.Movie.ImdbID
		// Re-decode to a generic map so dotted paths like tmdb.title
		// resolve.
		if blob, err := json.Marshal(meta.Movie); err == nil {
			var m map[string]any
			if err := json.Unmarshal(blob, &m); err == nil {
				uc["tmdb"] = m
			}
		}
	}

	schema := inst.Schema()
	resolution := ""
	if meta.Info != nil {
		resolution = meta.Info.Resolution()
	}
	// Resolution-qualified keys (movie_1080p) win over the plain one.
	if category, ok := schema.Categories["movie_"+strings.ToLower(resolution)]; ok {
		uc["category"] = category
	} else if category, ok := schema.Categories["movie"]; ok {
		uc["category"] = category
	}

	optMeta := tracker.Metadata{ReleaseName: entry.ReleaseName}
	if meta.Info != nil {
		optMeta.Resolution = resolution
		optMeta.Languages = meta.Info.Languages()
	}
	if meta.Rename != nil {
		optMeta.Source = meta.Rename.Source
	}
	if meta.Movie != nil {
		for _, g := range meta.Movie.Genres {
			optMeta.Genres = append(optMeta.Genres, tracker.Genre{ID: g.ID, Name: g.Name})
		}
	}
	uc["options"] = schema.BuildOptions(optMeta)

	return uc, torrentData, nil
}

func (p *Pipeline) publish(event notifications.Event) {
	if p.events == nil {
		return
	}
	p.events.Publish(event)
}
