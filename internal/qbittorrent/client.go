// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent wraps the go-qbittorrent client for post-upload
// seeding: after a tracker accepts a release, the generated torrent is
// injected so the uploader seeds from the original payload.
package qbittorrent

import (
	"context"
	"sync"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/registry"
)

// Client wraps the qBittorrent Web API client.
type Client struct {
	*qbt.Client

	cfg    domain.QBittorrentConfig
	guards *registry.Registry

	mu              sync.RWMutex
	lastHealthCheck time.Time
	isHealthy       bool
}

// NewClient creates a Client. The connection is verified lazily on first
// use so startup does not depend on the seeding client being up.
func NewClient(cfg domain.QBittorrentConfig, guards *registry.Registry) *Client {
	return &Client{
		Client: qbt.NewClient(qbt.Config{
			Host:     cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  30,
		}),
		cfg:    cfg,
		guards: guards,
	}
}

// Enabled reports whether a qBittorrent instance is configured.
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

// HealthCheck verifies connectivity, caching the result briefly so the
// pipeline does not ping the Web API on every job.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Enabled() {
		return errkind.New(errkind.KindValidation, "qbittorrent is not configured")
	}

	c.mu.RLock()
	if c.isHealthy && time.Since(c.lastHealthCheck) < 30*time.Second {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	err := c.guards.Call(ctx, "qbittorrent", "", func(ctx context.Context) error {
		if err := c.LoginCtx(ctx); err != nil {
			return errkind.Wrap(errkind.KindExternalUnavailable, err, "qbittorrent login failed")
		}
		return nil
	})

	c.mu.Lock()
	c.lastHealthCheck = time.Now()
	c.isHealthy = err == nil
	c.mu.Unlock()

	return err
}

// Seed injects a generated torrent and starts seeding it against the
// already-present payload. The save path must point at the directory
// containing the uploaded file so no re-download happens.
func (c *Client) Seed(ctx context.Context, torrentData []byte, savePath string) error {
	if !c.Enabled() {
		log.Debug().Msg("qbittorrent: not configured, skipping seeding")
		return nil
	}

	if err := c.HealthCheck(ctx); err != nil {
		return err
	}

	options := map[string]string{
		"savepath":      savePath,
		"skip_checking": "false",
		"paused":        "false",
		"autoTMM":       "false",
		"contentLayout": "Original",
	}
	if c.cfg.Category != "" {
		options["category"] = c.cfg.Category
	}

	return c.guards.Call(ctx, "qbittorrent", "", func(ctx context.Context) error {
		if err := c.AddTorrentFromMemoryCtx(ctx, torrentData, options); err != nil {
			return errkind.Wrap(errkind.KindExternalUnavailable, err, "add torrent for seeding")
		}
		log.Info().Str("savePath", savePath).Msg("qbittorrent: seeding injected torrent")
		return nil
	})
}
