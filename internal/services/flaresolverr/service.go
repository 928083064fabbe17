// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package flaresolverr drives a FlareSolverr instance to pass Cloudflare
// challenges in front of tracker sites. Browser sessions are expensive, so
// one session is kept and reused until its TTL expires. The shared circuit
// breaker keeps the pipeline from hammering a dead solver.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/registry"
)

// Cookie is one cookie from a solved challenge.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Solution is the solved request outcome: the page body plus the cookies
// and user agent subsequent direct requests must present.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies"`
	UserAgent string   `json:"userAgent"`
}

// Service manages the FlareSolverr session and request commands.
type Service struct {
	cfg        domain.FlareSolverrConfig
	httpClient *http.Client
	guards     *registry.Registry

	mu             sync.Mutex
	sessionID      string
	sessionCreated time.Time
}

// NewService creates a Service.
func NewService(cfg domain.FlareSolverrConfig, guards *registry.Registry) *Service {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Service{
		cfg: cfg,
		// The solver itself waits on the challenge, so the client timeout
		// sits above the solver's maxTimeout.
		httpClient: &http.Client{Timeout: timeout + 15*time.Second},
		guards:     guards,
	}
}

// Enabled reports whether a solver is configured.
func (s *Service) Enabled() bool {
	return s.cfg.URL != ""
}

func (s *Service) sessionTTL() time.Duration {
	minutes := s.cfg.SessionTTLMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return time.Duration(minutes) * time.Minute
}

type command struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url,omitempty"`
	Session    string `json:"session,omitempty"`
	MaxTimeout int    `json:"maxTimeout,omitempty"`
}

type response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Session  string   `json:"session"`
	Solution Solution `json:"solution"`
}

// Get solves a GET request against targetURL through the shared session.
func (s *Service) Get(ctx context.Context, targetURL string) (*Solution, error) {
	if !s.Enabled() {
		return nil, errkind.New(errkind.KindValidation, "flaresolverr is not configured")
	}

	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	maxTimeout := s.cfg.TimeoutSeconds
	if maxTimeout <= 0 {
		maxTimeout = 60
	}

	resp, err := s.send(ctx, command{
		Cmd:        "request.get",
		URL:        targetURL,
		Session:    session,
		MaxTimeout: maxTimeout * 1000,
	})
	if err != nil {
		// A dead session is not the caller's problem; drop it so the next
		// attempt creates a fresh one.
		s.dropSession()
		return nil, err
	}

	return &resp.Solution, nil
}

// session returns the shared session id, creating one when absent or past
// its TTL.
func (s *Service) session(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID != "" && time.Since(s.sessionCreated) < s.sessionTTL() {
		return s.sessionID, nil
	}

	if s.sessionID != "" {
		s.destroyLocked(ctx, s.sessionID)
	}

	id := uuid.New().String()
	if _, err := s.send(ctx, command{Cmd: "sessions.create", Session: id}); err != nil {
		return "", err
	}

	s.sessionID = id
	s.sessionCreated = time.Now()
	log.Debug().Str("session", id).Msg("flaresolverr: created session")
	return id, nil
}

func (s *Service) dropSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
}

// Close destroys the active session, if any.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID != "" {
		s.destroyLocked(ctx, s.sessionID)
		s.sessionID = ""
	}
}

func (s *Service) destroyLocked(ctx context.Context, id string) {
	if _, err := s.send(ctx, command{Cmd: "sessions.destroy", Session: id}); err != nil {
		log.Warn().Err(err).Str("session", id).Msg("flaresolverr: could not destroy session")
	}
}

func (s *Service) send(ctx context.Context, cmd command) (*response, error) {
	var out *response

	err := s.guards.Call(ctx, "flaresolverr", "", func(ctx context.Context) error {
		payload, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("encode flaresolverr command: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+"/v1", bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build flaresolverr request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return errkind.FromTransportErr(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return errkind.FromHTTPStatus(resp.StatusCode, 0, string(body))
		}

		var r response
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			return fmt.Errorf("decode flaresolverr response: %w", err)
		}
		if r.Status != "ok" {
			return errkind.New(errkind.KindExternalUnavailable, "flaresolverr %s failed: %s", cmd.Cmd, r.Message)
		}

		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
