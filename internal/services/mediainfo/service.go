// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package mediainfo extracts technical metadata from media files by
// shelling out to the mediainfo CLI and parsing its JSON output. The
// Analyzer interface lets the pipeline run against a fake in tests.
package mediainfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/errkind"
)

// Analyzer produces technical metadata for a media file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*Info, error)
}

// VideoTrack is the first video stream.
type VideoTrack struct {
	Format       string  `json:"format,omitempty"`
	CodecID      string  `json:"codecId,omitempty"`
	Encoder      string  `json:"encoder,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	BitDepth     int     `json:"bitDepth,omitempty"`
	HDRFormat    string  `json:"hdrFormat,omitempty"`
	FrameRate    string  `json:"frameRate,omitempty"`
	ScanType     string  `json:"scanType,omitempty"`
	DurationSecs float64 `json:"durationSecs,omitempty"`
}

// AudioTrack is one audio stream.
type AudioTrack struct {
	Format         string `json:"format,omitempty"`
	CommercialName string `json:"commercialName,omitempty"`
	Channels       int    `json:"channels,omitempty"`
	Language       string `json:"language,omitempty"`
}

// TextTrack is one subtitle stream.
type TextTrack struct {
	Language string `json:"language,omitempty"`
	Forced   bool   `json:"forced,omitempty"`
}

// Info is the parsed analysis result.
type Info struct {
	FileName     string       `json:"fileName,omitempty"`
	FileSize     int64        `json:"fileSize,omitempty"`
	Container    string       `json:"container,omitempty"`
	DurationSecs float64      `json:"durationSecs,omitempty"`
	Video        *VideoTrack  `json:"video,omitempty"`
	Audio        []AudioTrack `json:"audio,omitempty"`
	Text         []TextTrack  `json:"text,omitempty"`
	Raw          string       `json:"-"`
}

// Resolution maps the video dimensions to the usual release tag.
func (i *Info) Resolution() string {
	if i.Video == nil {
		return ""
	}
	h, w := i.Video.Height, i.Video.Width
	switch {
	case h > 1440 || w > 2560:
		return "2160p"
	case h > 720 || w > 1280:
		return "1080p"
	case h > 576 || w > 1024:
		return "720p"
	case h > 480:
		return "576p"
	case h > 0:
		return "480p"
	default:
		return ""
	}
}

// IsHDR reports whether the video stream carries HDR metadata.
func (i *Info) IsHDR() bool {
	return i.Video != nil && i.Video.HDRFormat != ""
}

// HDRTag returns the release-name HDR token, or "".
func (i *Info) HDRTag() string {
	if i.Video == nil || i.Video.HDRFormat == "" {
		return ""
	}
	format := strings.ToLower(i.Video.HDRFormat)
	switch {
	case strings.Contains(format, "dolby vision"):
		return "DV"
	case strings.Contains(format, "hdr10+"):
		return "HDR10Plus"
	case strings.Contains(format, "hdr10") || strings.Contains(format, "smpte st 2086"):
		return "HDR"
	default:
		return "HDR"
	}
}

// VideoCodecTag maps the video format to a release-name token. Encoded
// streams (x264/x265) are distinguished from untouched ones (AVC/HEVC) by
// the writing-library hint.
func (i *Info) VideoCodecTag() string {
	if i.Video == nil {
		return ""
	}

	encoded := strings.Contains(strings.ToLower(i.Video.Encoder), "x264") ||
		strings.Contains(strings.ToLower(i.Video.Encoder), "x265")

	switch strings.ToUpper(i.Video.Format) {
	case "HEVC":
		if encoded {
			return "x265"
		}
		return "HEVC"
	case "AVC":
		if encoded {
			return "x264"
		}
		return "AVC"
	case "AV1":
		return "AV1"
	case "VC-1":
		return "VC-1"
	case "MPEG VIDEO":
		return "MPEG-2"
	default:
		return i.Video.Format
	}
}

// AudioTag maps the primary audio stream to a release-name token like
// "DTS-HD.MA.5.1" or "DDP.5.1".
func (i *Info) AudioTag() string {
	if len(i.Audio) == 0 {
		return ""
	}
	a := i.Audio[0]

	var codec string
	name := strings.ToLower(a.CommercialName)
	format := strings.ToLower(a.Format)
	switch {
	case strings.Contains(name, "dts-hd master audio") || strings.Contains(name, "dts-hd ma"):
		codec = "DTS-HD.MA"
	case strings.Contains(name, "dts-hd high resolution"):
		codec = "DTS-HD.HRA"
	case strings.Contains(name, "dts:x"):
		codec = "DTS-X"
	case format == "dts":
		codec = "DTS"
	case strings.Contains(name, "atmos"):
		codec = "TrueHD.Atmos"
	case format == "mlp fba" || strings.Contains(name, "truehd"):
		codec = "TrueHD"
	case format == "e-ac-3":
		codec = "DDP"
	case format == "ac-3":
		codec = "DD"
	case format == "aac":
		codec = "AAC"
	case format == "flac":
		codec = "FLAC"
	case format == "opus":
		codec = "OPUS"
	default:
		codec = strings.ToUpper(a.Format)
	}

	if layout := channelLayout(a.Channels); layout != "" {
		return codec + "." + layout
	}
	return codec
}

// Languages returns the distinct audio languages in stream order.
func (i *Info) Languages() []string {
	var langs []string
	seen := make(map[string]bool)
	for _, a := range i.Audio {
		lang := strings.ToLower(a.Language)
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		langs = append(langs, lang)
	}
	return langs
}

func channelLayout(channels int) string {
	switch channels {
	case 8:
		return "7.1"
	case 7:
		return "6.1"
	case 6:
		return "5.1"
	case 3:
		return "2.1"
	case 2:
		return "2.0"
	case 1:
		return "1.0"
	default:
		return ""
	}
}

// Service runs the mediainfo binary.
type Service struct {
	binaryPath string
	timeout    time.Duration
}

var _ Analyzer = (*Service)(nil)

// NewService creates a Service. binaryPath defaults to "mediainfo" on PATH.
func NewService(binaryPath string) *Service {
	if binaryPath == "" {
		binaryPath = "mediainfo"
	}
	return &Service{
		binaryPath: binaryPath,
		timeout:    2 * time.Minute,
	}
}

// mediainfo's JSON output is all strings; track dispatch is on @type.
type rawOutput struct {
	Media struct {
		Track []map[string]any `json:"track"`
	} `json:"media"`
}

// Analyze runs mediainfo on path and parses the result.
func (s *Service) Analyze(ctx context.Context, path string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.binaryPath, "--Output=JSON", path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errkind.Wrap(errkind.KindNetworkTransient, ctx.Err(), "mediainfo timed out")
		}
		if _, ok := err.(*exec.ExitError); ok {
			return nil, errkind.New(errkind.KindValidation, "mediainfo failed on %s: %s", path, strings.TrimSpace(stderr.String()))
		}
		return nil, errkind.Wrap(errkind.KindValidation, err, "mediainfo binary %q not runnable", s.binaryPath)
	}

	log.Debug().Str("file", path).Dur("duration", time.Since(start)).Msg("mediainfo: analyzed file")

	info, err := parse(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	return info, nil
}

func parse(data []byte) (*Info, error) {
	var raw rawOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode mediainfo output: %w", err)
	}

	info := &Info{Raw: string(data)}

	for _, track := range raw.Media.Track {
		switch str(track["@type"]) {
		case "General":
			info.FileName = str(track["FileNameExtension"])
			if info.FileName == "" {
				info.FileName = str(track["CompleteName"])
			}
			info.FileSize = i64(track["FileSize"])
			info.Container = str(track["Format"])
			info.DurationSecs = f64(track["Duration"])
		case "Video":
			if info.Video != nil {
				continue
			}
			info.Video = &VideoTrack{
				Format:       str(track["Format"]),
				CodecID:      str(track["CodecID"]),
				Encoder:      str(track["Encoded_Library"]),
				Width:        num(track["Width"]),
				Height:       num(track["Height"]),
				BitDepth:     num(track["BitDepth"]),
				HDRFormat:    str(track["HDR_Format"]),
				FrameRate:    str(track["FrameRate"]),
				ScanType:     str(track["ScanType"]),
				DurationSecs: f64(track["Duration"]),
			}
		case "Audio":
			info.Audio = append(info.Audio, AudioTrack{
				Format:         str(track["Format"]),
				CommercialName: str(track["Format_Commercial_IfAny"]),
				Channels:       num(track["Channels"]),
				Language:       str(track["Language"]),
			})
		case "Text":
			info.Text = append(info.Text, TextTrack{
				Language: str(track["Language"]),
				Forced:   strings.EqualFold(str(track["Forced"]), "yes"),
			})
		}
	}

	if info.Video == nil {
		return nil, errkind.New(errkind.KindValidation, "no video track found")
	}
	return info, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int {
	n, _ := strconv.Atoi(str(v))
	return n
}

func i64(v any) int64 {
	n, _ := strconv.ParseInt(str(v), 10, 64)
	return n
}

func f64(v any) float64 {
	f, _ := strconv.ParseFloat(str(v), 64)
	return f
}
