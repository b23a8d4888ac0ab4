package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mkline/granary/internal/api"
	"github.com/mkline/granary/internal/audit"
	"github.com/mkline/granary/internal/config"
	"github.com/mkline/granary/internal/convert"
	"github.com/mkline/granary/internal/load"
	"github.com/mkline/granary/internal/logger"
	"github.com/mkline/granary/internal/notify"
	"github.com/mkline/granary/internal/pipeline"
	"github.com/mkline/granary/internal/repository"
	"github.com/mkline/granary/internal/schema"
	"github.com/mkline/granary/internal/storage"
	"github.com/mkline/granary/internal/validate"
	"github.com/mkline/granary/internal/watch"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "granary-watcher",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if *logLevel != "info" {
		appLogger = logger.New(&logger.Config{
			Level:       *logLevel,
			Format:      "json",
			ServiceName: "granary-watcher",
		})
		logger.SetDefaultLogger(appLogger)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Schema and column spec are static; a bad one aborts startup before
	// any watching begins.
	def, err := schema.LoadDefinition(&cfg.Dataset)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid dataset schema")
	}
	colSpec, err := schema.LoadColumnSpec(&cfg.Table)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid table column spec")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader := load.NewLoader(db, colSpec)
	if err := loader.EnsureTable(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure destination table")
	}

	auditLog, err := audit.Open(cfg.Audit.Path, cfg.Audit.Recent)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open audit log")
	}
	defer auditLog.Close()

	var archive storage.ArchiveStore
	if cfg.Archive.Enabled {
		archive, err = storage.NewArchiveStore(&cfg.Archive)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize archive storage")
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure archive bucket")
		}
	}

	if err := os.MkdirAll(cfg.Watch.InputDir, 0o755); err != nil {
		appLogger.WithError(err).Fatal("Failed to create input directory")
	}

	files := repository.NewProcessedFileRepository(db)

	loop := pipeline.New(pipeline.Options{
		Definition:    def,
		Validator:     validate.New(def),
		Converter:     convert.NewConverter(def, cfg.Routes.ConvertedDir),
		Loader:        loader,
		Files:         files,
		Audit:         auditLog,
		Webhook:       notify.NewWebhook(cfg.Alerts.WebhookURL, cfg.Alerts.Timeout, appLogger),
		Logger:        appLogger,
		QuarantineDir: cfg.Routes.QuarantineDir,
		ConvertedDir:  cfg.Routes.ConvertedDir,
		Archive:       archive,
		ArchivePrefix: cfg.Archive.Prefix,
		RetryInterval: cfg.Watch.PollInterval,
	})

	appLogger.WithFields(logger.Fields{
		logger.FieldDataset: def.Dataset,
		"input_dir":         cfg.Watch.InputDir,
		"table":             colSpec.Table,
	}).Info("Starting watcher")

	// Retry loads for artifacts converted before a previous shutdown.
	if err := loop.Recover(ctx); err != nil {
		appLogger.WithError(err).Warn("Startup recovery failed")
	}

	events := make(chan watch.Event, 16)
	var detectors sync.WaitGroup

	scanner := watch.NewScanner(cfg.Watch.InputDir, cfg.Watch.Pattern, cfg.Watch.PollInterval, cfg.Watch.Settle, appLogger)
	detectors.Add(1)
	go func() {
		defer detectors.Done()
		scanner.Run(ctx, events)
	}()

	if cfg.Watch.UseNotify {
		notifier := watch.NewNotifier(cfg.Watch.InputDir, cfg.Watch.Pattern, cfg.Watch.Settle, appLogger)
		detectors.Add(1)
		go func() {
			defer detectors.Done()
			if err := notifier.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
				appLogger.WithError(err).Warn("Push notifier stopped; poll scanning continues")
			}
		}()
	}

	var server *http.Server
	if cfg.Server.Enabled {
		router := api.SetupRouter(loop, auditLog, files, appLogger, cfg.Server.Mode)
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: router,
		}
		go func() {
			appLogger.WithField("port", cfg.Server.Port).Info("Status server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.WithError(err).Error("Status server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		appLogger.WithField("signal", sig.String()).Info("Received shutdown signal")
		cancel()
	}()

	if err := loop.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.WithError(err).Error("Ingest loop exited with error")
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}
	detectors.Wait()

	appLogger.Info("Watcher stopped")
}
