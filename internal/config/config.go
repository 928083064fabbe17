// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the TOML configuration file, applies defaults and
// SEEDARR__ environment overrides, and watches the file for runtime
// changes to the log level.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/seedarr/seedarr/internal/domain"
)

const configTemplate = `# config.toml (generated)

# Hostname / IP for the API server.
#
host = "{{ .host }}"

# Port for the API server.
#
port = 7733

# Base URL when served behind a reverse proxy under a subpath.
#
#baseUrl = "/seedarr/"

# Log level. Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE".
#
logLevel = "DEBUG"

# Log path. Leave empty to log only to stdout.
#
#logPath = ""

# Secret used to encrypt tracker credentials at rest. Generated on first
# run; keep it stable or stored credentials become unreadable.
#
encryptionSecret = "{{ .encryptionSecret }}"

# Directories scanned for new media files.
#
#scanDirs = ["/data/media"]

# Directory for generated artifacts (torrents, NFOs, screenshots).
# Defaults to <dataDir>/output.
#
#outputDir = ""

# Watch scanDirs for new files and enqueue them automatically.
#
watchEnabled = false

# Pipeline approval: "auto" continues past analysis without operator
# input, "manual" parks entries at analyzed until approved.
#
approvePolicy = "auto"

# Number of concurrent pipeline workers.
#
workerCount = 2

# Release group tag appended to generated release names.
#
#releaseTeam = "NOGRP"

[notifications]
# Webhook receiving pipeline events as JSON POSTs.
#webhookUrl = ""

[tmdb]
#apiKey = ""
cacheTtlDays = 30

[flaresolverr]
#url = "http://localhost:8191"
sessionTtlMinutes = 30

[imageHost]
#provider = "chevereto"
#url = ""
#apiKey = ""

[qbittorrent]
#url = "http://localhost:8080"
#username = ""
#password = ""

[prowlarr]
#url = ""
#apiKey = ""

[mediaTools]
screenshotCount = 4
`

// AppConfig wraps the loaded configuration and its viper instance.
type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex

	viper      *viper.Viper
	configPath string
}

// New loads configuration from the given path (a directory or a
// config.toml file), creating a default file when none exists.
func New(configPath, version string) (*AppConfig, error) {
	c := &AppConfig{
		viper: viper.New(),
		Config: &domain.Config{
			Version: version,
		},
	}

	c.defaults()

	if err := c.load(configPath); err != nil {
		return nil, err
	}

	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 7733)
	c.viper.SetDefault("logLevel", "DEBUG")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("watchEnabled", false)
	c.viper.SetDefault("approvePolicy", "auto")
	c.viper.SetDefault("workerCount", 2)
	c.viper.SetDefault("staleJobGraceMinutes", 5)
	c.viper.SetDefault("videoExtensions", []string{".mkv", ".mp4", ".avi", ".ts", ".m2ts"})
	c.viper.SetDefault("tmdb.baseUrl", "https://api.themoviedb.org/3")
	c.viper.SetDefault("tmdb.cacheTtlDays", 30)
	c.viper.SetDefault("flaresolverr.sessionTtlMinutes", 30)
	c.viper.SetDefault("flaresolverr.timeoutSeconds", 60)
	c.viper.SetDefault("mediaTools.ffmpegPath", "ffmpeg")
	c.viper.SetDefault("mediaTools.mediainfoPath", "mediainfo")
	c.viper.SetDefault("mediaTools.screenshotCount", 4)
	c.viper.SetDefault("retry.maxAttempts", 5)
	c.viper.SetDefault("retry.baseDelaySeconds", 1)
	c.viper.SetDefault("retry.maxDelaySeconds", 30)
	c.viper.SetDefault("breaker.failureThreshold", 3)
	c.viper.SetDefault("breaker.windowSeconds", 60)
	c.viper.SetDefault("breaker.openSeconds", 60)
}

func (c *AppConfig) load(configPath string) error {
	c.viper.SetConfigType("toml")

	configPath = os.ExpandEnv(configPath)
	if configPath == "" {
		configPath = "."
	}

	info, err := os.Stat(configPath)
	switch {
	case err == nil && info.IsDir():
		c.configPath = filepath.Join(configPath, "config.toml")
	case err == nil:
		c.configPath = configPath
	default:
		if strings.HasSuffix(configPath, ".toml") {
			c.configPath = configPath
		} else {
			c.configPath = filepath.Join(configPath, "config.toml")
		}
	}

	if _, err := os.Stat(c.configPath); os.IsNotExist(err) {
		if err := c.writeDefaultConfig(); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}

	c.viper.SetConfigFile(c.configPath)
	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", c.configPath, err)
	}

	c.loadEnvOverrides()

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if c.Config.DataDir == "" {
		c.Config.DataDir = filepath.Dir(c.configPath)
	}
	if c.Config.DatabasePath == "" {
		c.Config.DatabasePath = filepath.Join(c.Config.DataDir, "seedarr.db")
	}
	if c.Config.OutputDir == "" {
		c.Config.OutputDir = filepath.Join(c.Config.DataDir, "output")
	}

	return nil
}

// loadEnvOverrides maps SEEDARR__SECTION_KEY variables onto viper keys.
func (c *AppConfig) loadEnvOverrides() {
	c.viper.SetEnvPrefix("SEEDARR_")
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	// Explicit bindings so nested keys resolve without a config entry.
	for _, key := range []string{
		"host", "port", "baseUrl", "logLevel", "logPath", "dataDir",
		"databasePath", "encryptionSecret", "approvePolicy", "workerCount",
		"releaseTeam", "watchEnabled", "outputDir",
		"tmdb.apiKey", "flaresolverr.url", "imageHost.apiKey", "imageHost.url",
		"qbittorrent.url", "qbittorrent.username", "qbittorrent.password",
		"prowlarr.url", "prowlarr.apiKey", "notifications.webhookUrl",
	} {
		env := "SEEDARR__" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := c.viper.BindEnv(key, env); err != nil {
			log.Error().Err(err).Str("key", key).Msg("config: could not bind env var")
		}
	}
}

func (c *AppConfig) writeDefaultConfig() error {
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o755); err != nil {
		return err
	}

	host := "localhost"
	if _, err := os.Stat("/.dockerenv"); err == nil {
		host = "0.0.0.0"
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	content := strings.NewReplacer(
		"{{ .host }}", host,
		"{{ .encryptionSecret }}", secret,
	).Replace(configTemplate)

	log.Info().Str("path", c.configPath).Msg("config: writing default config file")
	return os.WriteFile(c.configPath, []byte(content), 0o600)
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// EncryptionKey derives the 32-byte AES key from the configured secret.
func (c *AppConfig) EncryptionKey() []byte {
	sum := sha256.Sum256([]byte(c.Config.EncryptionSecret))
	return sum[:]
}

// DynamicReload watches the config file and applies log level changes
// without a restart.
func (c *AppConfig) DynamicReload() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		logLevel := c.viper.GetString("logLevel")
		c.Config.LogLevel = logLevel
		if level, err := zerolog.ParseLevel(strings.ToLower(logLevel)); err == nil {
			zerolog.SetGlobalLevel(level)
		}

		log.Debug().Msg("config: reloaded")
	})
	c.viper.WatchConfig()
}
