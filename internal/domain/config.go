// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`
	DatabasePath  string `toml:"databasePath" mapstructure:"databasePath"`

	// EncryptionSecret protects tracker credentials at rest. Generated on
	// first run when absent.
	EncryptionSecret string `toml:"encryptionSecret" mapstructure:"encryptionSecret"`

	// ScanDirs are the library roots watched for new media files.
	ScanDirs        []string `toml:"scanDirs" mapstructure:"scanDirs"`
	// OutputDir receives generated artifacts: torrents, NFOs, screenshots.
	OutputDir       string   `toml:"outputDir" mapstructure:"outputDir"`
	VideoExtensions []string `toml:"videoExtensions" mapstructure:"videoExtensions"`
	WatchEnabled    bool     `toml:"watchEnabled" mapstructure:"watchEnabled"`

	// ApprovePolicy decides whether analyzed entries continue automatically
	// ("auto") or wait for an operator ("manual").
	ApprovePolicy string `toml:"approvePolicy" mapstructure:"approvePolicy"`

	WorkerCount          int    `toml:"workerCount" mapstructure:"workerCount"`
	StaleJobGraceMinutes int    `toml:"staleJobGraceMinutes" mapstructure:"staleJobGraceMinutes"`
	ReleaseTeam          string `toml:"releaseTeam" mapstructure:"releaseTeam"`
	TrackerSchemaDir     string `toml:"trackerSchemaDir" mapstructure:"trackerSchemaDir"`

	Notifications NotificationsConfig `toml:"notifications" mapstructure:"notifications"`

	TMDB         TMDBConfig         `toml:"tmdb" mapstructure:"tmdb"`
	FlareSolverr FlareSolverrConfig `toml:"flaresolverr" mapstructure:"flaresolverr"`
	ImageHost    ImageHostConfig    `toml:"imageHost" mapstructure:"imageHost"`
	QBittorrent  QBittorrentConfig  `toml:"qbittorrent" mapstructure:"qbittorrent"`
	Prowlarr     ProwlarrConfig     `toml:"prowlarr" mapstructure:"prowlarr"`
	MediaTools   MediaToolsConfig   `toml:"mediaTools" mapstructure:"mediaTools"`
	Retry        RetryConfig        `toml:"retry" mapstructure:"retry"`
	Breaker      BreakerConfig      `toml:"breaker" mapstructure:"breaker"`

	// RateLimits overrides the built-in per-service token bucket defaults.
	// Keys are "service" or "service:action".
	RateLimits map[string]RateLimitConfig `toml:"rateLimits" mapstructure:"rateLimits"`
}

// NotificationsConfig configures outbound event delivery.
type NotificationsConfig struct {
	// WebhookURL receives every pipeline event as a JSON POST when set.
	WebhookURL string `toml:"webhookUrl" mapstructure:"webhookUrl"`
}

// TMDBConfig configures metadata lookups.
type TMDBConfig struct {
	APIKey       string `toml:"apiKey" mapstructure:"apiKey"`
	BaseURL      string `toml:"baseUrl" mapstructure:"baseUrl"`
	CacheTTLDays int    `toml:"cacheTtlDays" mapstructure:"cacheTtlDays"`
}

// CacheTTL returns the metadata cache lifetime.
func (c TMDBConfig) CacheTTL() time.Duration {
	days := c.CacheTTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// FlareSolverrConfig configures the Cloudflare challenge solver.
type FlareSolverrConfig struct {
	URL               string `toml:"url" mapstructure:"url"`
	SessionTTLMinutes int    `toml:"sessionTtlMinutes" mapstructure:"sessionTtlMinutes"`
	TimeoutSeconds    int    `toml:"timeoutSeconds" mapstructure:"timeoutSeconds"`
}

// ImageHostConfig configures screenshot uploads.
type ImageHostConfig struct {
	Provider string `toml:"provider" mapstructure:"provider"`
	URL      string `toml:"url" mapstructure:"url"`
	APIKey   string `toml:"apiKey" mapstructure:"apiKey"`
}

// QBittorrentConfig configures the seeding client.
type QBittorrentConfig struct {
	URL      string `toml:"url" mapstructure:"url"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	Category string `toml:"category" mapstructure:"category"`
}

// ProwlarrConfig configures indexer-assisted duplicate searches.
type ProwlarrConfig struct {
	URL    string `toml:"url" mapstructure:"url"`
	APIKey string `toml:"apiKey" mapstructure:"apiKey"`
}

// MediaToolsConfig locates the external analysis binaries.
type MediaToolsConfig struct {
	FfmpegPath      string `toml:"ffmpegPath" mapstructure:"ffmpegPath"`
	MediainfoPath   string `toml:"mediainfoPath" mapstructure:"mediainfoPath"`
	ScreenshotCount int    `toml:"screenshotCount" mapstructure:"screenshotCount"`
}

// RetryConfig tunes the retry wrapper around external calls.
type RetryConfig struct {
	MaxAttempts      int `toml:"maxAttempts" mapstructure:"maxAttempts"`
	BaseDelaySeconds int `toml:"baseDelaySeconds" mapstructure:"baseDelaySeconds"`
	MaxDelaySeconds  int `toml:"maxDelaySeconds" mapstructure:"maxDelaySeconds"`
}

// BreakerConfig tunes the per-service circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `toml:"failureThreshold" mapstructure:"failureThreshold"`
	WindowSeconds    int `toml:"windowSeconds" mapstructure:"windowSeconds"`
	OpenSeconds      int `toml:"openSeconds" mapstructure:"openSeconds"`
}

// RateLimitConfig is one token bucket override.
type RateLimitConfig struct {
	Capacity   float64 `toml:"capacity" mapstructure:"capacity"`
	RefillRate float64 `toml:"refillRate" mapstructure:"refillRate"`
}

// StaleJobGrace returns how long a running job may sit without progress
// before startup recovery requeues it.
func (c *Config) StaleJobGrace() time.Duration {
	minutes := c.StaleJobGraceMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

// Validate checks the fields that have no safe fallback.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	switch c.ApprovePolicy {
	case "auto", "manual":
	default:
		return fmt.Errorf("invalid approvePolicy %q (want auto or manual)", c.ApprovePolicy)
	}

	if c.WorkerCount < 1 {
		return errors.New("workerCount must be at least 1")
	}

	if len(c.EncryptionSecret) < 32 {
		return errors.New("encryptionSecret must be at least 32 characters")
	}

	return nil
}
