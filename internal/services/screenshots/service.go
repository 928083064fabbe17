// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package screenshots captures stills from a media file with ffmpeg.
// Capture points are spread across the runtime, skipping the head and tail
// where studio logos and credits live. A missing ffmpeg binary downgrades
// to an empty result so the pipeline can continue without screenshots.
package screenshots

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/errkind"
)

// Service captures screenshots.
type Service struct {
	ffmpegPath string
	count      int
	timeout    time.Duration
}

// NewService creates a Service. count defaults to 4.
func NewService(ffmpegPath string, count int) *Service {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if count <= 0 {
		count = 4
	}
	return &Service{
		ffmpegPath: ffmpegPath,
		count:      count,
		timeout:    5 * time.Minute,
	}
}

// Available reports whether the ffmpeg binary can be found.
func (s *Service) Available() bool {
	_, err := exec.LookPath(s.ffmpegPath)
	return err == nil
}

// Capture writes PNG stills for the media file into outDir and returns
// their paths in timestamp order. durationSecs comes from the mediainfo
// analysis. When ffmpeg is not installed, Capture returns an empty slice.
func (s *Service) Capture(ctx context.Context, mediaPath string, durationSecs float64, outDir string) ([]string, error) {
	if !s.Available() {
		log.Warn().Str("binary", s.ffmpegPath).Msg("screenshots: ffmpeg not found, skipping capture")
		return nil, nil
	}

	if durationSecs <= 0 {
		return nil, errkind.New(errkind.KindValidation, "unknown duration for %s", mediaPath)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))

	paths := make([]string, 0, s.count)
	for i, offset := range s.offsets(durationSecs) {
		outPath := filepath.Join(outDir, fmt.Sprintf("%s.shot%02d.png", base, i+1))
		if err := s.captureOne(ctx, mediaPath, offset, outPath); err != nil {
			return nil, err
		}
		paths = append(paths, outPath)
	}

	return paths, nil
}

// offsets spreads capture points over the middle 80% of the runtime.
func (s *Service) offsets(durationSecs float64) []float64 {
	start := durationSecs * 0.10
	usable := durationSecs * 0.80

	offsets := make([]float64, s.count)
	for i := range offsets {
		offsets[i] = start + usable*float64(i+1)/float64(s.count+1)
	}
	return offsets
}

func (s *Service) captureOne(ctx context.Context, mediaPath string, offsetSecs float64, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// -ss before -i seeks on keyframes, which is fast and fine for stills.
	cmd := exec.CommandContext(ctx, s.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", offsetSecs),
		"-i", mediaPath,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errkind.Wrap(errkind.KindNetworkTransient, ctx.Err(), "ffmpeg timed out")
		}
		return errkind.New(errkind.KindValidation, "ffmpeg failed at %.0fs: %s", offsetSecs, lastLine(stderr.String()))
	}

	log.Debug().Str("file", outPath).Float64("offset", offsetSecs).Dur("duration", time.Since(start)).Msg("screenshots: captured still")
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
