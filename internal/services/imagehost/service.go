// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package imagehost uploads screenshots to an image hosting service and
// returns public URLs for NFO/description embedding. Chevereto-style hosts
// and ptpimg are supported.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/registry"
)

// Service uploads images.
type Service struct {
	cfg        domain.ImageHostConfig
	httpClient *http.Client
	guards     *registry.Registry
}

// NewService creates a Service.
func NewService(cfg domain.ImageHostConfig, guards *registry.Registry) *Service {
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		guards:     guards,
	}
}

// Enabled reports whether an image host is configured.
func (s *Service) Enabled() bool {
	return s.cfg.URL != "" && s.cfg.APIKey != ""
}

// UploadAll uploads the given image files in order and returns their
// public URLs. Order is preserved so screenshots stay sorted by timestamp.
func (s *Service) UploadAll(ctx context.Context, paths []string) ([]string, error) {
	urls := make([]string, 0, len(paths))
	for _, path := range paths {
		u, err := s.Upload(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// Upload uploads one image file and returns its public URL.
func (s *Service) Upload(ctx context.Context, path string) (string, error) {
	if !s.Enabled() {
		return "", errkind.New(errkind.KindValidation, "image host is not configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errkind.Wrap(errkind.KindValidation, err, "read screenshot %s", path)
	}

	var resultURL string
	err = s.guards.Call(ctx, "imagehost", "", func(ctx context.Context) error {
		var innerErr error
		switch strings.ToLower(s.cfg.Provider) {
		case "ptpimg":
			resultURL, innerErr = s.uploadPtpimg(ctx, filepath.Base(path), data)
		default:
			resultURL, innerErr = s.uploadChevereto(ctx, filepath.Base(path), data)
		}
		return innerErr
	})
	if err != nil {
		return "", err
	}

	log.Debug().Str("file", filepath.Base(path)).Str("url", resultURL).Msg("imagehost: uploaded screenshot")
	return resultURL, nil
}

func (s *Service) uploadChevereto(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("source", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.WriteField("key", s.cfg.APIKey); err != nil {
		return "", err
	}
	if err := w.WriteField("format", "json"); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(s.cfg.URL, "/") + "/api/1/upload"
	body, err := s.post(ctx, endpoint, w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var out struct {
		StatusCode int `json:"status_code"`
		Image      struct {
			URL string `json:"url"`
		} `json:"image"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode image host response: %w", err)
	}
	if out.Image.URL == "" {
		return "", errkind.New(errkind.KindExternalUnavailable, "image host rejected upload: %s", out.Error.Message)
	}
	return out.Image.URL, nil
}

func (s *Service) uploadPtpimg(ctx context.Context, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file-upload[0]", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.WriteField("api_key", s.cfg.APIKey); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	base := s.cfg.URL
	if base == "" {
		base = "https://ptpimg.me"
	}
	body, err := s.post(ctx, strings.TrimRight(base, "/")+"/upload.php", w.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var out []struct {
		Code string `json:"code"`
		Ext  string `json:"ext"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode ptpimg response: %w", err)
	}
	if len(out) == 0 || out[0].Code == "" {
		return "", errkind.New(errkind.KindExternalUnavailable, "ptpimg returned no image code")
	}
	return fmt.Sprintf("https://ptpimg.me/%s.%s", out[0].Code, out[0].Ext), nil
}

func (s *Service) post(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build image host request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errkind.FromTransportErr(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.FromTransportErr(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errkind.FromHTTPStatus(resp.StatusCode, 0, string(raw))
	}
	return raw, nil
}
