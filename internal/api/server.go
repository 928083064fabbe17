// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api exposes the HTTP control surface: file entries, queue and
// batch management, tracker configuration, and health.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/api/handlers"
	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/registry"
	"github.com/seedarr/seedarr/internal/services/pipeline"
	"github.com/seedarr/seedarr/internal/services/queue"
	"github.com/seedarr/seedarr/internal/services/trackersvc"
)

// Deps are the collaborators the server exposes.
type Deps struct {
	Config   *domain.Config
	Entries  *models.FileEntryStore
	Trackers *models.TrackerStore
	Pipeline *pipeline.Pipeline
	Queue    *queue.Service
	Registry *trackersvc.Service
	Guards   *registry.Registry
}

// Server is the HTTP API server.
type Server struct {
	cfg    *domain.Config
	router chi.Router
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		handlers.NewHealthHandler(deps.Config.Version, deps.Guards.Breakers).Routes(r)
		handlers.NewFilesHandler(deps.Entries, deps.Pipeline, deps.Queue).Routes(r)
		handlers.NewQueueHandler(deps.Queue).Routes(r)
		handlers.NewTrackersHandler(deps.Trackers, deps.Registry).Routes(r)
	})

	return &Server{cfg: deps.Config, router: r}
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the server until ctx is cancelled, then drains in-flight
// requests. It blocks.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	log.Info().Str("addr", addr).Msg("api: server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger writes one debug line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("api: request")
	})
}
