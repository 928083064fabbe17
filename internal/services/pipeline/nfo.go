// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"fmt"
	"strings"

	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/services/mediainfo"
)

// renderNFO produces the plain-text release info file.
func renderNFO(entry *models.FileEntry, meta *Metadata) string {
	var b strings.Builder

	b.WriteString(entry.ReleaseName + "\n")
	b.WriteString(strings.Repeat("=", len(entry.ReleaseName)) + "\n\n")

	if meta.Movie != nil {
		m := meta.Movie
		fmt.Fprintf(&b, "Title....: %s (%d)\n", m.Title, m.Year)
		if m.ImdbID != "" {
			fmt.Fprintf(&b, "IMDB.....: https://www.imdb.com/title/%s/\n", m.ImdbID)
		}
		if m.TmdbID != 0 {
			fmt.Fprintf(&b, "TMDB.....: https://www.themoviedb.org/movie/%d\n", m.TmdbID)
		}
		if m.VoteAverage > 0 {
			fmt.Fprintf(&b, "Rating...: %.1f/10\n", m.VoteAverage)
		}
		b.WriteString("\n")
		if m.Overview != "" {
			b.WriteString(m.Overview + "\n\n")
		}
	}

	if summary := mediaSummary(meta.Info); summary != "" {
		b.WriteString(summary + "\n")
	}

	return b.String()
}

// mediaSummary renders the technical track listing.
func mediaSummary(info *mediainfo.Info) string {
	if info == nil {
		return ""
	}

	var lines []string
	if info.Container != "" {
		lines = append(lines, fmt.Sprintf("Container: %s (%.2f GiB)", info.Container, float64(info.FileSize)/(1<<30)))
	}
	if v := info.Video; v != nil {
		line := fmt.Sprintf("Video....: %s %dx%d", v.Format, v.Width, v.Height)
		if tag := info.HDRTag(); tag != "" {
			line += " " + tag
		}
		lines = append(lines, line)
	}
	for _, a := range info.Audio {
		line := fmt.Sprintf("Audio....: %s %s", a.Format, a.Language)
		lines = append(lines, strings.TrimSpace(line))
	}
	for _, t := range info.Text {
		lines = append(lines, fmt.Sprintf("Subs.....: %s", t.Language))
	}
	return strings.Join(lines, "\n")
}

// buildDescription renders the BBCode body trackers show on the torrent
// page.
func buildDescription(entry *models.FileEntry, meta *Metadata) string {
	var b strings.Builder

	if meta.Movie != nil && meta.Movie.Overview != "" {
		b.WriteString(meta.Movie.Overview + "\n\n")
	}

	if len(entry.ScreenshotURLs) > 0 {
		b.WriteString("[center]")
		for _, url := range entry.ScreenshotURLs {
			fmt.Fprintf(&b, "[img]%s[/img]", url)
		}
		b.WriteString("[/center]\n")
	}

	return strings.TrimSpace(b.String())
}
