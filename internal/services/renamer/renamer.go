// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package renamer builds scene-style release names from the verified
// metadata: TMDB supplies the canonical title and year, mediainfo the
// technical tags, and the original file name the source and group. The
// layout is Title.Year.Language.Resolution.Source.HDR.Audio.Video-Team.
package renamer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/moistari/rls"

	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/services/mediainfo"
	"github.com/seedarr/seedarr/internal/services/tmdb"
)

// Input carries everything the name is derived from.
type Input struct {
	// OriginalName is the current file name, parsed for source and group.
	OriginalName string
	Movie        *tmdb.Movie
	Info         *mediainfo.Info
	// Team overrides the release group when the original name has none.
	Team string
}

// Result is the derived name plus the parsed intermediate values, kept
// for the metadata blob.
type Result struct {
	ReleaseName string `json:"releaseName"`
	Source      string `json:"source"`
	Group       string `json:"group"`
	Language    string `json:"language,omitempty"`
}

var nonTitleChars = regexp.MustCompile(`[^A-Za-z0-9\- ]+`)

// languageNames maps ISO 639-1 audio languages to release tokens.
var languageNames = map[string]string{
	"fr": "FRENCH",
	"de": "GERMAN",
	"es": "SPANISH",
	"it": "ITALIAN",
	"pt": "PORTUGUESE",
	"nl": "DUTCH",
	"ru": "RUSSIAN",
	"ja": "JAPANESE",
	"ko": "KOREAN",
	"zh": "CHINESE",
	"hi": "HINDI",
	"sv": "SWEDISH",
	"no": "NORWEGIAN",
	"da": "DANISH",
	"fi": "FINNISH",
	"pl": "POLISH",
}

// ReleaseName derives the release name. The original name must parse to
// a usable source; everything else comes from the verified metadata.
func ReleaseName(in Input) (*Result, error) {
	if in.Movie == nil || in.Movie.Title == "" {
		return nil, errkind.New(errkind.KindValidation, "release name requires tmdb metadata")
	}
	if in.Info == nil || in.Info.Video == nil {
		return nil, errkind.New(errkind.KindValidation, "release name requires mediainfo analysis")
	}

	parsed := rls.ParseString(in.OriginalName)

	result := &Result{
		Source:   sourceToken(&parsed, in.Info),
		Group:    groupToken(&parsed, in.Team),
		Language: languageToken(in.Info),
	}

	tokens := []string{dotted(in.Movie.Title)}
	if in.Movie.Year > 0 {
		tokens = append(tokens, strconv.Itoa(in.Movie.Year))
	}
	if result.Language != "" {
		tokens = append(tokens, result.Language)
	}
	if res := in.Info.Resolution(); res != "" {
		tokens = append(tokens, res)
	}
	if result.Source != "" {
		tokens = append(tokens, result.Source)
	}
	if hdr := in.Info.HDRTag(); hdr != "" {
		tokens = append(tokens, hdr)
	}
	if audio := in.Info.AudioTag(); audio != "" {
		tokens = append(tokens, audio)
	}
	if video := in.Info.VideoCodecTag(); video != "" {
		tokens = append(tokens, video)
	}

	result.ReleaseName = strings.Join(tokens, ".") + "-" + result.Group
	return result, nil
}

// dotted sanitizes a title into dot-separated tokens.
func dotted(title string) string {
	clean := nonTitleChars.ReplaceAllString(title, "")
	clean = strings.Join(strings.Fields(clean), ".")
	return strings.Trim(clean, ".")
}

// sourceToken normalizes the parsed source. An untouched disc stream gets
// the REMUX marker.
func sourceToken(parsed *rls.Release, info *mediainfo.Info) string {
	source := strings.ToLower(parsed.Source)

	var token string
	switch {
	case strings.Contains(source, "blu"), strings.Contains(source, "bd"):
		token = "BluRay"
	case source == "web-dl", source == "webdl", source == "web":
		token = "WEB-DL"
	case strings.Contains(source, "webrip"):
		token = "WEBRip"
	case strings.Contains(source, "hdtv"):
		token = "HDTV"
	case strings.Contains(source, "dvd"):
		token = "DVDRip"
	case source == "uhd.bluray", strings.Contains(source, "uhd"):
		token = "BluRay"
	default:
		// Guess from the stream when the name carries no source: lossless
		// audio plus an untouched codec only occurs on disc content.
		if info.Video.Encoder == "" && len(info.Audio) > 0 {
			token = "BluRay"
		}
	}

	if token == "BluRay" && isRemux(parsed, info) {
		token = "BluRay.REMUX"
	}
	return token
}

func isRemux(parsed *rls.Release, info *mediainfo.Info) bool {
	if strings.Contains(strings.ToLower(parsed.Title), "remux") {
		return true
	}
	for _, other := range parsed.Other {
		if strings.EqualFold(other, "remux") {
			return true
		}
	}
	// Disc bitrates with no encoding library point at a remux.
	return info.Video.Encoder == "" && info.FileSize > 20*1024*1024*1024
}

// languageToken derives the audio language marker: MULTi for dual audio
// including the original language, the language name for a single
// non-English dub, nothing for plain English.
func languageToken(info *mediainfo.Info) string {
	langs := info.Languages()
	if len(langs) == 0 {
		return ""
	}

	hasEnglish := false
	for _, l := range langs {
		if l == "en" {
			hasEnglish = true
		}
	}

	if len(langs) > 1 {
		if hasEnglish {
			return "MULTi"
		}
		return "MULTi." + languageName(langs[0])
	}

	if hasEnglish {
		return ""
	}
	return languageName(langs[0])
}

func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return strings.ToUpper(code)
}

func groupToken(parsed *rls.Release, fallback string) string {
	if parsed.Group != "" {
		return parsed.Group
	}
	if fallback != "" {
		return fallback
	}
	return "NOGRP"
}
