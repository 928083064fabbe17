// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seedarr/seedarr/internal/api"
	"github.com/seedarr/seedarr/internal/config"
	"github.com/seedarr/seedarr/internal/database"
	"github.com/seedarr/seedarr/internal/logger"
	"github.com/seedarr/seedarr/internal/models"
	"github.com/seedarr/seedarr/internal/qbittorrent"
	"github.com/seedarr/seedarr/internal/registry"
	"github.com/seedarr/seedarr/internal/services/dupes"
	"github.com/seedarr/seedarr/internal/services/flaresolverr"
	"github.com/seedarr/seedarr/internal/services/imagehost"
	"github.com/seedarr/seedarr/internal/services/mediainfo"
	"github.com/seedarr/seedarr/internal/services/notifications"
	"github.com/seedarr/seedarr/internal/services/pipeline"
	"github.com/seedarr/seedarr/internal/services/queue"
	"github.com/seedarr/seedarr/internal/services/screenshots"
	"github.com/seedarr/seedarr/internal/services/tmdb"
	"github.com/seedarr/seedarr/internal/services/trackersvc"
	"github.com/seedarr/seedarr/internal/services/watcher"
	"github.com/seedarr/seedarr/pkg/prowlarr"
)

var (
	version = "dev"
	commit  = ""
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "seedarr",
		Short: "seedarr is an automated release publisher for private trackers",
		Long: `seedarr watches media libraries, analyzes new files, generates
per-tracker torrents and metadata, and publishes releases through
config-driven tracker adapters.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file or directory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the server, workers and watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	dbCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configPath, version)
			if err != nil {
				return err
			}
			logger.Init(cfg.Config)

			db, err := database.New(cfg.Config.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			log.Info().Str("path", cfg.Config.DatabasePath).Msg("database migrated")
			return nil
		},
	})
	rootCmd.AddCommand(dbCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("seedarr %s", version)
			if commit != "" {
				fmt.Printf(" (%s)", commit)
			}
			fmt.Println()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.New(configPath, version)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	entries := models.NewFileEntryStore(db)
	jobs := models.NewQueueStore(db)
	batches := models.NewBatchStore(db)
	trackers, err := models.NewTrackerStore(db, cfg.EncryptionKey())
	if err != nil {
		return fmt.Errorf("tracker store: %w", err)
	}

	guards := registry.New(cfg.Config)

	// External collaborators. Each degrades gracefully when unconfigured.
	var prowlarrClient *prowlarr.Client
	if cfg.Config.Prowlarr.URL != "" {
		prowlarrClient = prowlarr.NewClient(prowlarr.Config{
			Host:      cfg.Config.Prowlarr.URL,
			APIKey:    cfg.Config.Prowlarr.APIKey,
			UserAgent: "seedarr",
			Version:   version,
		})
	}

	flare := flaresolverr.NewService(cfg.Config.FlareSolverr, guards)
	defer flare.Close(context.Background())

	trackerSvc := trackersvc.New(trackers, guards, trackersvc.SolverFor(flare))
	if err := trackerSvc.SyncSchemas(ctx, cfg.Config.TrackerSchemaDir); err != nil {
		return fmt.Errorf("sync tracker schemas: %w", err)
	}

	sinks := []notifications.Sink{notifications.LogSink{}}
	if url := cfg.Config.Notifications.WebhookURL; url != "" {
		sinks = append(sinks, notifications.NewWebhookSink(url))
	}
	events := notifications.NewService(sinks...)
	events.Start(ctx)

	pipe := pipeline.New(
		pipeline.Config{
			ApprovePolicy: cfg.Config.ApprovePolicy,
			ScanDirs:      cfg.Config.ScanDirs,
			OutputDir:     cfg.Config.OutputDir,
			ReleaseTeam:   cfg.Config.ReleaseTeam,
		},
		entries,
		mediainfo.NewService(cfg.Config.MediaTools.MediainfoPath),
		tmdb.NewService(cfg.Config.TMDB, models.NewTmdbCacheStore(db), guards),
		screenshots.NewService(cfg.Config.MediaTools.FfmpegPath, cfg.Config.MediaTools.ScreenshotCount),
		imagehost.NewService(cfg.Config.ImageHost, guards),
		trackerSvc,
		dupes.NewService(prowlarrClient),
		qbittorrent.NewClient(cfg.Config.QBittorrent, guards),
		events,
	)

	queueSvc := queue.NewService(queue.Options{
		WorkerCount: cfg.Config.WorkerCount,
		StaleGrace:  cfg.Config.StaleJobGrace(),
	}, jobs, batches, entries, pipe, events)

	server := api.NewServer(api.Deps{
		Config:   cfg.Config,
		Entries:  entries,
		Trackers: trackers,
		Pipeline: pipe,
		Queue:    queueSvc,
		Registry: trackerSvc,
		Guards:   guards,
	})

	log.Info().Str("version", version).Int("workers", cfg.Config.WorkerCount).
		Str("approvePolicy", cfg.Config.ApprovePolicy).Msg("seedarr starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(ctx) })
	g.Go(func() error { return queueSvc.Start(ctx) })
	if cfg.Config.WatchEnabled {
		w := watcher.NewService(watcher.Options{
			ScanDirs:        cfg.Config.ScanDirs,
			VideoExtensions: cfg.Config.VideoExtensions,
		}, entries, queueSvc)
		g.Go(func() error { return w.Start(ctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("seedarr stopped")
	return nil
}
