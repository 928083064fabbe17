// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pipeline drives a file entry through the publishing stages:
// scan, analyze, approve, prepare, rename, generate, upload. Each stage
// records a checkpoint; resumption starts at the first stage without one
// and never repeats completed side effects.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/services/dupes"
	"github.com/seedarr/seedarr/internal/services/mediainfo"
	"github.com/seedarr/seedarr/internal/services/notifications"
	"github.com/seedarr/seedarr/internal/services/renamer"
	"github.com/seedarr/seedarr/internal/services/tmdb"
	"github.com/seedarr/seedarr/internal/tracker"
)

// ErrAwaitingApproval parks an entry at the approve stage until an
// operator approves it. It is not a failure.
var ErrAwaitingApproval = errors.New("entry awaits manual approval")

// MovieResolver looks up verified metadata for a parsed title.
type MovieResolver interface {
	SearchMovie(ctx context.Context, title string, year int) (*tmdb.Movie, error)
}

// ScreenshotTaker captures stills from a media file.
type ScreenshotTaker interface {
	Available() bool
	Capture(ctx context.Context, mediaPath string, durationSecs float64, outDir string) ([]string, error)
}

// ImageUploader pushes captured stills to an image host.
type ImageUploader interface {
	Enabled() bool
	UploadAll(ctx context.Context, paths []string) ([]string, error)
}

// Seeder hands a generated torrent to the seeding client.
type Seeder interface {
	Enabled() bool
	Seed(ctx context.Context, torrentData []byte, savePath string) error
}

// TrackerInstance is one enabled tracker ready for uploads.
type TrackerInstance interface {
	dupes.Checker
	AnnounceURL() string
	SourceFlag() string
	SkipOnDuplicate() bool
	Upload(ctx context.Context, uc tracker.Context) (*tracker.UploadResult, error)
}

// TrackerProvider supplies the enabled tracker instances.
type TrackerProvider interface {
	Active(ctx context.Context) ([]TrackerInstance, error)
}

// DuplicateChecker runs pre-upload duplicate searches.
type DuplicateChecker interface {
	Check(ctx context.Context, chk dupes.Checker, q tracker.DuplicateQuery) dupes.Result
	Invalidate(slug string, q tracker.DuplicateQuery)
}

// Config carries the pipeline's policy knobs.
type Config struct {
	// ApprovePolicy is "auto" or "manual".
	ApprovePolicy string
	// ScanDirs are the roots a file must live under to be processed.
	ScanDirs []string
	// OutputDir receives generated artifacts.
	OutputDir string
	// ReleaseTeam is the group tag when the original name carries none.
	ReleaseTeam string
}

// Pipeline executes stages against the persistent entry state.
type Pipeline struct {
	cfg      Config
	entries  *models.FileEntryStore
	analyzer mediainfo.Analyzer
	movies   MovieResolver
	shots    ScreenshotTaker
	images   ImageUploader
	trackers TrackerProvider
	dupes    DuplicateChecker
	seeder   Seeder
	events   notifications.Publisher
}

// New assembles a pipeline. analyzer, movies and trackers are required;
// the remaining collaborators may be nil and their stages degrade to
// no-ops where the spec allows it.
func New(cfg Config, entries *models.FileEntryStore, analyzer mediainfo.Analyzer, movies MovieResolver,
	shots ScreenshotTaker, images ImageUploader, trackers TrackerProvider,
	dupeChecker DuplicateChecker, seeder Seeder, events notifications.Publisher) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		entries:  entries,
		analyzer: analyzer,
		movies:   movies,
		shots:    shots,
		images:   images,
		trackers: trackers,
		dupes:    dupeChecker,
		seeder:   seeder,
		events:   events,
	}
}

// Metadata is the JSON blob accumulated across stages.
type Metadata struct {
	Movie  *tmdb.Movie     `json:"movie,omitempty"`
	Info   *mediainfo.Info `json:"mediainfo,omitempty"`
	Rename *renamer.Result `json:"rename,omitempty"`
}

func (p *Pipeline) metadata(entry *models.FileEntry) (*Metadata, error) {
	meta := &Metadata{}
	if len(entry.Metadata) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(entry.Metadata, meta); err != nil {
		return nil, errkind.Wrap(errkind.KindInternalInvariant, err, "decode entry metadata")
	}
	return meta, nil
}

// Process runs the entry forward from its first unset checkpoint until it
// completes, parks for approval, or a stage fails. The returned entry
// reflects the last persisted state.
func (p *Pipeline) Process(ctx context.Context, id int64) (*models.FileEntry, error) {
	entry, err := p.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return entry, errkind.Wrap(errkind.KindUserCancelled, err, "processing interrupted")
		}
		if entry.Terminal() {
			return entry, nil
		}

		stage := entry.NextStage()
		if stage == "" {
			return entry, nil
		}

		log.Debug().Int64("fileEntryId", entry.ID).Str("stage", string(stage)).Msg("pipeline: running stage")

		next, err := p.runStage(ctx, entry, stage)
		if errors.Is(err, ErrAwaitingApproval) {
			log.Info().Int64("fileEntryId", entry.ID).Msg("pipeline: parked awaiting approval")
			return entry, nil
		}
		if err != nil {
			return entry, fmt.Errorf("stage %s: %w", stage, err)
		}
		entry = next

		if entry.Status == models.FileStatusUploaded {
			p.publish(notifications.Event{
				Type:        notifications.EventFileCompleted,
				FileEntryID: entry.ID,
				FilePath:    entry.FilePath,
				ReleaseName: entry.ReleaseName,
				Message:     "pipeline complete",
			})
		} else {
			p.publish(notifications.Event{
				Type:        notifications.EventFileProgressed,
				FileEntryID: entry.ID,
				FilePath:    entry.FilePath,
				ReleaseName: entry.ReleaseName,
				Stage:       string(stage),
				Message:     "stage complete",
			})
		}
	}
}

func (p *Pipeline) runStage(ctx context.Context, entry *models.FileEntry, stage models.Stage) (*models.FileEntry, error) {
	switch stage {
	case models.StageScan:
		return p.runScan(ctx, entry)
	case models.StageAnalyze:
		return p.runAnalyze(ctx, entry)
	case models.StageApprove:
		return p.runApprove(ctx, entry)
	case models.StagePrepare:
		return p.runPrepare(ctx, entry)
	case models.StageRename:
		return p.runRename(ctx, entry)
	case models.StageGenerate:
		return p.runGenerate(ctx, entry)
	case models.StageUpload:
		return p.runUpload(ctx, entry)
	default:
		return nil, models.ErrUnknownPipelineStage
	}
}

// FinalizePartial completes an entry whose upload attempts ran out of
// budget but where at least one tracker already accepted or skipped the
// release. It reports whether the entry was finalized.
func (p *Pipeline) FinalizePartial(ctx context.Context, id int64) (bool, error) {
	entry, err := p.entries.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if entry.Terminal() || entry.NextStage() != models.StageUpload {
		return false, nil
	}

	results, err := p.entries.TrackerResults(ctx, id)
	if err != nil {
		return false, err
	}
	for _, r := range results {
		if r.Outcome != models.TrackerOutcomeFailed {
			if _, err := p.entries.UpdateWithCheckpoint(ctx, id, models.StageUpload, models.StageArtifacts{}); err != nil {
				return false, err
			}
			p.publish(notifications.Event{
				Type:        notifications.EventFileCompleted,
				FileEntryID: entry.ID,
				ReleaseName: entry.ReleaseName,
				Message:     "completed with partial tracker coverage",
			})
			return true, nil
		}
	}
	return false, nil
}

// Approve records operator approval for a parked entry. The queue picks
// the entry up again through a fresh job.
func (p *Pipeline) Approve(ctx context.Context, id int64) (*models.FileEntry, error) {
	entry, err := p.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.FileStatusAnalyzed {
		return nil, errkind.New(errkind.KindValidation, "entry %d is %s, only analyzed entries can be approved", id, entry.Status)
	}
	return p.entries.UpdateWithCheckpoint(ctx, id, models.StageApprove, models.StageArtifacts{})
}
