// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/seedarr/seedarr/internal/database"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/services/dupes"
	"github.com/seedarr/seedarr/internal/services/mediainfo"
	"github.com/seedarr/seedarr/internal/services/tmdb"
	"github.com/seedarr/seedarr/internal/tracker"
)

type fakeAnalyzer struct {
	calls int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string) (*mediainfo.Info, error) {
	f.calls++
	return &mediainfo.Info{
		Container:    "Matroska",
		FileSize:     8 << 30,
		DurationSecs: 5400,
		Video:        &mediainfo.VideoTrack{Format: "AVC", Width: 1920, Height: 1080},
		Audio:        []mediainfo.AudioTrack{{Format: "DTS", Channels: 6, Language: "en"}},
	}, nil
}

type fakeResolver struct {
	calls int
}

func (f *fakeResolver) SearchMovie(_ context.Context, title string, year int) (*tmdb.Movie, error) {
	f.calls++
	return &tmdb.Movie{
		TmdbID: 603, ImdbID: "tt0133093",
		Title: "The Movie", Year: 2024,
		Overview: "A movie about movies.",
		Genres:   []tmdb.Genre{{ID: 28, Name: "Action"}},
	}, nil
}

type fakeTracker struct {
	slug       string
	schema     *tracker.Schema
	skipOnDupe bool

	dupeMatches []tracker.SearchResult

	uploadErr    error
	uploads      []tracker.Context
	uploadResult *tracker.UploadResult
}

func newFakeTracker(slug string) *fakeTracker {
	return &fakeTracker{
		slug: slug,
		schema: &tracker.Schema{
			Tracker:    tracker.Identity{Name: slug, Slug: slug, BaseURL: "https://" + slug + ".example"},
			Categories: map[string]string{"movie": "1"},
		},
		skipOnDupe:   true,
		uploadResult: &tracker.UploadResult{TorrentID: "42", TorrentURL: "https://" + slug + ".example/torrents/42"},
	}
}

func (f *fakeTracker) Slug() string            { return f.slug }
func (f *fakeTracker) Schema() *tracker.Schema { return f.schema }
func (f *fakeTracker) AnnounceURL() string {
	return "https://" + f.slug + ".example/announce?passkey=pk"
}
func (f *fakeTracker) SourceFlag() string    { return f.slug }
func (f *fakeTracker) SkipOnDuplicate() bool { return f.skipOnDupe }

func (f *fakeTracker) DuplicateCheck(_ context.Context, _ tracker.DuplicateQuery) ([]tracker.SearchResult, string, error) {
	if len(f.dupeMatches) > 0 {
		return f.dupeMatches, "tmdb", nil
	}
	return nil, "", nil
}

func (f *fakeTracker) Upload(_ context.Context, uc tracker.Context) (*tracker.UploadResult, error) {
	f.uploads = append(f.uploads, uc)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadResult, nil
}

type fakeProvider struct {
	instances []TrackerInstance
}

func (f *fakeProvider) Active(_ context.Context) ([]TrackerInstance, error) {
	return f.instances, nil
}

type unavailableShots struct{}

func (unavailableShots) Available() bool { return false }
func (unavailableShots) Capture(_ context.Context, _ string, _ float64, _ string) ([]string, error) {
	return nil, errors.New("unreachable")
}

type testEnv struct {
	pipeline *Pipeline
	entries  *models.FileEntryStore
	entry    *models.FileEntry
	analyzer *fakeAnalyzer
	resolver *fakeResolver
	trackers []*fakeTracker
	cfg      Config
}

func setupEnv(t *testing.T, policy string, trackers ...*fakeTracker) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "seedarr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mediaDir := filepath.Join(t.TempDir(), "media")
	require.NoError(t, os.MkdirAll(mediaDir, 0o755))
	mediaPath := filepath.Join(mediaDir, "The.Movie.2024.1080p.BluRay.x264-GRP.mkv")
	require.NoError(t, os.WriteFile(mediaPath, []byte("not really a movie"), 0o644))

	if len(trackers) == 0 {
		trackers = []*fakeTracker{newFakeTracker("trk1")}
	}
	instances := make([]TrackerInstance, len(trackers))
	for i, trk := range trackers {
		instances[i] = trk
	}

	entries := models.NewFileEntryStore(db)
	entry, err := entries.Create(context.Background(), mediaPath)
	require.NoError(t, err)

	cfg := Config{
		ApprovePolicy: policy,
		ScanDirs:      []string{mediaDir},
		OutputDir:     filepath.Join(t.TempDir(), "output"),
		ReleaseTeam:   "SDR",
	}

	analyzer := &fakeAnalyzer{}
	resolver := &fakeResolver{}
	p := New(cfg, entries, analyzer, resolver,
		unavailableShots{}, nil, &fakeProvider{instances: instances},
		dupes.NewService(nil), nil, nil)

	return &testEnv{
		pipeline: p, entries: entries, entry: entry,
		analyzer: analyzer, resolver: resolver, trackers: trackers, cfg: cfg,
	}
}

func TestPipeline_HappyPath(t *testing.T) {
	t.Parallel()

	env := setupEnv(t, "auto")
	ctx := context.Background()

	got, err := env.pipeline.Process(ctx, env.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusUploaded, got.Status)

	for _, stage := range []models.Stage{
		models.StageScan, models.StageAnalyze, models.StageApprove, models.StagePrepare,
		models.StageRename, models.StageGenerate, models.StageUpload,
	} {
		assert.True(t, got.CheckpointSet(stage), "checkpoint %s", stage)
	}

	assert.Contains(t, got.ReleaseName, "The.Movie.2024")
	assert.Contains(t, got.ReleaseName, "1080p")

	// The media file moved into the output dir under the release name.
	assert.Equal(t, filepath.Join(env.cfg.OutputDir, got.ReleaseName+".mkv"), got.FilePath)
	_, err = os.Stat(got.FilePath)
	require.NoError(t, err)

	// Artifacts landed on disk.
	require.Contains(t, got.TorrentPaths, "trk1")
	data, err := os.ReadFile(got.TorrentPaths["trk1"])
	require.NoError(t, err)
	var mi struct {
		Info struct {
			Name    string `bencode:"name"`
			Private int    `bencode:"private"`
			Source  string `bencode:"source"`
		} `bencode:"info"`
	}
	require.NoError(t, bencode.DecodeBytes(data, &mi))
	// The torrent names the payload as it sits on disk, so it hash-checks.
	assert.Equal(t, filepath.Base(got.FilePath), mi.Info.Name)
	assert.Equal(t, 1, mi.Info.Private)
	assert.Equal(t, "trk1", mi.Info.Source)
	nfo, err := os.ReadFile(got.NFOPath)
	require.NoError(t, err)
	assert.Contains(t, string(nfo), "The Movie (2024)")

	// The tracker received the generated torrent and the resolved ids.
	trk := env.trackers[0]
	require.Len(t, trk.uploads, 1)
	uc := trk.uploads[0]
	assert.Equal(t, data, uc["torrent_data"])
	assert.Equal(t, got.ReleaseName, uc["name"])
	assert.Equal(t, int64(603), uc["tmdb_id"])
	assert.Equal(t, "1", uc["category"])

	results, err := env.entries.TrackerResults(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.TrackerOutcomeUploaded, results[0].Outcome)
	assert.Equal(t, "42", results[0].RemoteTorrentID)
}

func TestPipeline_ManualApprovalParksAndResumes(t *testing.T) {
	t.Parallel()

	env := setupEnv(t, "manual")
	ctx := context.Background()

	got, err := env.pipeline.Process(ctx, env.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusAnalyzed, got.Status)
	assert.Equal(t, 1, env.analyzer.calls)
	assert.Empty(t, env.trackers[0].uploads)

	// Processing again without approval stays parked and repeats nothing.
	got, err = env.pipeline.Process(ctx, env.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusAnalyzed, got.Status)
	assert.Equal(t, 1, env.analyzer.calls)

	_, err = env.pipeline.Approve(ctx, env.entry.ID)
	require.NoError(t, err)

	got, err = env.pipeline.Process(ctx, env.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusUploaded, got.Status)
	// Completed stages never re-ran.
	assert.Equal(t, 1, env.analyzer.calls)
	assert.Equal(t, 1, env.resolver.calls)
}

func TestPipeline_ApproveRejectsWrongStatus(t *testing.T) {
	t.Parallel()

	env := setupEnv(t, "manual")

	_, err := env.pipeline.Approve(context.Background(), env.entry.ID)
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.KindOf(err))
}

func TestPipeline_DuplicateSkipCompletesEntry(t *testing.T) {
	t.Parallel()

	trk := newFakeTracker("trk1")
	trk.dupeMatches = []tracker.SearchResult{{Title: "The.Movie.2024.1080p.BluRay.x264-GRP"}}
	env := setupEnv(t, "auto", trk)
	ctx := context.Background()

	got, err := env.pipeline.Process(ctx, env.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusUploaded, got.Status)
	assert.Empty(t, trk.uploads)

	results, err := env.entries.TrackerResults(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.TrackerOutcomeSkippedDuplicate, results[0].Outcome)
}

func TestPipeline_PartialUploadStillCompletes(t *testing.T) {
	t.Parallel()

	good := newFakeTracker("good")
	bad := newFakeTracker("bad")
	bad.uploadErr = errkind.New(errkind.KindTrackerPermanent, "category not allowed")
	env := setupEnv(t, "auto", good, bad)
	ctx := context.Background()

	got, err := env.pipeline.Process(ctx, env.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusUploaded, got.Status)

	results, err := env.entries.TrackerResults(ctx, got.ID)
	require.NoError(t, err)
	byTracker := map[string]models.TrackerOutcome{}
	for _, r := range results {
		byTracker[r.TrackerSlug] = r.Outcome
	}
	assert.Equal(t, models.TrackerOutcomeUploaded, byTracker["good"])
	assert.Equal(t, models.TrackerOutcomeFailed, byTracker["bad"])
}

func TestPipeline_AllTrackersFailedIsAnError(t *testing.T) {
	t.Parallel()

	trk := newFakeTracker("trk1")
	trk.uploadErr = errkind.New(errkind.KindTrackerPermanent, "upload rejected")
	env := setupEnv(t, "auto", trk)
	ctx := context.Background()

	_, err := env.pipeline.Process(ctx, env.entry.ID)
	require.Error(t, err)
	assert.False(t, errkind.IsRetryable(err))

	// The entry is not terminal yet; the queue decides fail vs retry.
	got, err := env.entries.Get(ctx, env.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusMetadataGenerated, got.Status)
}

func TestPipeline_RetryableUploadFailureBubbles(t *testing.T) {
	t.Parallel()

	trk := newFakeTracker("trk1")
	trk.uploadErr = errkind.New(errkind.KindNetworkTransient, "connection reset")
	env := setupEnv(t, "auto", trk)

	_, err := env.pipeline.Process(context.Background(), env.entry.ID)
	require.Error(t, err)
	assert.True(t, errkind.IsRetryable(err))
}

func TestPipeline_ResumeSkipsSettledTrackers(t *testing.T) {
	t.Parallel()

	flaky := newFakeTracker("flaky")
	flaky.uploadErr = errkind.New(errkind.KindNetworkTransient, "connection reset")
	steady := newFakeTracker("steady")
	env := setupEnv(t, "auto", steady, flaky)
	ctx := context.Background()

	_, err := env.pipeline.Process(ctx, env.entry.ID)
	require.Error(t, err)
	require.Len(t, steady.uploads, 1)

	// Second attempt: the settled tracker is not re-uploaded.
	flaky.uploadErr = nil
	got, err := env.pipeline.Process(ctx, env.entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusUploaded, got.Status)
	assert.Len(t, steady.uploads, 1)
	assert.Len(t, flaky.uploads, 2)
}

func TestPipeline_ResolutionQualifiedCategory(t *testing.T) {
	t.Parallel()

	trk := newFakeTracker("trk1")
	trk.schema.Categories = map[string]string{"movie": "1", "movie_1080p": "19"}
	env := setupEnv(t, "auto", trk)

	_, err := env.pipeline.Process(context.Background(), env.entry.ID)
	require.NoError(t, err)

	require.Len(t, trk.uploads, 1)
	assert.Equal(t, "19", trk.uploads[0]["category"])
}

func TestMoveFile_TargetAlreadyPresent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dst := filepath.Join(dir, "out", "Movie.mkv")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(dst, []byte("payload"), 0o644))

	// Source gone but target present: a crash landed after the move.
	require.NoError(t, moveFile(filepath.Join(dir, "gone.mkv"), dst))

	// Source and target both missing is an error.
	err := moveFile(filepath.Join(dir, "gone.mkv"), filepath.Join(dir, "out", "other.mkv"))
	require.Error(t, err)
}

func TestPipeline_ScanRejectsOutsidePaths(t *testing.T) {
	t.Parallel()

	env := setupEnv(t, "auto")
	ctx := context.Background()

	outside := filepath.Join(t.TempDir(), "elsewhere.mkv")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
	entry, err := env.entries.Create(ctx, outside)
	require.NoError(t, err)

	_, err = env.pipeline.Process(ctx, entry.ID)
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.KindOf(err))
}
