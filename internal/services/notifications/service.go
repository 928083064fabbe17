// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package notifications fans pipeline lifecycle events out to configured
// sinks. Publishing never blocks the pipeline: events queue into a bounded
// channel and are dropped with a warning when the queue is full.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultQueueSize = 100
	defaultWorkers   = 2
)

// Publisher is the producer-side interface the pipeline and queue use.
type Publisher interface {
	Publish(event Event)
}

// Sink receives dispatched events.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Service queues events and dispatches them to every sink.
type Service struct {
	sinks     []Sink
	queue     chan Event
	startOnce sync.Once
}

// NewService creates the event service with the given sinks.
func NewService(sinks ...Sink) *Service {
	return &Service{
		sinks: sinks,
		queue: make(chan Event, defaultQueueSize),
	}
}

// Start launches the dispatch workers. Safe to call once; subsequent calls
// are no-ops.
func (s *Service) Start(ctx context.Context) {
	if s == nil {
		return
	}

	s.startOnce.Do(func() {
		for range defaultWorkers {
			go s.worker(ctx)
		}
	})
}

// Publish enqueues an event. A nil service is a valid no-op publisher.
func (s *Service) Publish(event Event) {
	if s == nil {
		return
	}

	select {
	case s.queue <- event:
	default:
		log.Warn().Str("event", string(event.Type)).Msg("notifications: queue full, dropping event")
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.queue:
			s.dispatch(ctx, event)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, event Event) {
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, event); err != nil {
			log.Error().Err(err).Str("sink", sink.Name()).Str("event", string(event.Type)).
				Msg("notifications: send failed")
		}
	}
}

// LogSink writes events to the application log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(_ context.Context, event Event) error {
	level := zerolog.InfoLevel
	if event.Type == EventFileFailed {
		level = zerolog.WarnLevel
	}

	e := log.WithLevel(level).Str("event", string(event.Type))
	if event.FileEntryID != 0 {
		e = e.Int64("fileEntryId", event.FileEntryID)
	}
	if event.ReleaseName != "" {
		e = e.Str("release", event.ReleaseName)
	}
	if event.Stage != "" {
		e = e.Str("stage", event.Stage)
	}
	if event.Tracker != "" {
		e = e.Str("tracker", event.Tracker)
	}
	if event.BatchID != 0 {
		e = e.Int64("batchId", event.BatchID)
	}
	if event.ErrorKind != "" {
		e = e.Str("errorKind", event.ErrorKind)
	}
	e.Msg(event.Message)
	return nil
}

// WebhookSink posts events as JSON to a configured URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook sink for url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
