package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/hotspot-etl-service/internal/adapter/colspec"
	"github.com/couchcryptid/hotspot-etl-service/internal/adapter/file"
	"github.com/couchcryptid/hotspot-etl-service/internal/adapter/firms"
	httpadapter "github.com/couchcryptid/hotspot-etl-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hotspot-etl-service/internal/adapter/kafka"
	"github.com/couchcryptid/hotspot-etl-service/internal/config"
	"github.com/couchcryptid/hotspot-etl-service/internal/observability"
	"github.com/couchcryptid/hotspot-etl-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// An unwritable destination is a deployment error; fail before the first fetch.
	writer := file.NewWriter(cfg.DestinationPath, logger)
	if err := writer.EnsureDir(); err != nil {
		logger.Error("destination not writable", "path", cfg.DestinationPath, "error", err)
		os.Exit(1)
	}

	client, err := firms.NewClient(firms.Options{
		URL:      cfg.SourceURL,
		Headers:  cfg.SourceHeaders,
		Timeout:  cfg.FetchTimeout,
		MaxBytes: cfg.SourceMaxBytes,
		Encoding: cfg.SourceEncoding,
	}, logger)
	if err != nil {
		logger.Error("invalid source", "error", err)
		os.Exit(1)
	}

	specs := colspec.Static(cfg.ColumnSpec)
	if cfg.ColumnSpecFile != "" {
		specs, err = colspec.Open(cfg.ColumnSpecFile, metrics, logger)
		if err != nil {
			logger.Error("failed to load column spec", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("column spec loaded", "columns", specs.ColumnSpec().String())

	schedule, err := pipeline.NewSchedule(cfg.FetchInterval, cfg.FetchSchedule)
	if err != nil {
		logger.Error("invalid schedule", "error", err)
		os.Exit(1)
	}

	opts := pipeline.Options{
		Source:       client.Source(),
		Destination:  writer.Path(),
		Delimiter:    cfg.SourceDelimiter,
		Schedule:     schedule,
		FetchTimeout: cfg.FetchTimeout,
		FetchOnStart: cfg.FetchOnStart,
		StaleAfter:   cfg.ReadyStaleAfter,
	}

	var events *kafkaadapter.Writer
	if cfg.EventsEnabled() {
		events = kafkaadapter.NewWriter(cfg, logger)
		opts.Events = events
		logger.Info("cycle events enabled", "brokers", cfg.EventsKafkaBrokers, "topic", cfg.EventsKafkaTopic)
	}

	p := pipeline.New(client, specs, writer, logger, metrics, opts)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Watch the column spec file, if any.
	go func() {
		if err := specs.Watch(ctx); err != nil {
			logger.Error("column spec watcher stopped", "error", err)
		}
	}()

	// Start the fetch loop.
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		logger.Warn("fetch loop did not stop before shutdown timeout")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if events != nil {
		if err := events.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
