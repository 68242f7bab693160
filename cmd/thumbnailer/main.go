package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IdoEfroni/Grocery/internal/config"
	"github.com/IdoEfroni/Grocery/internal/metrics"
	"github.com/IdoEfroni/Grocery/internal/mq"
	"github.com/IdoEfroni/Grocery/internal/processor"
	"github.com/IdoEfroni/Grocery/internal/worker"
	pkglog "github.com/IdoEfroni/Grocery/pkg/log"
	pkgstorage "github.com/IdoEfroni/Grocery/pkg/storage"
)

func main() {
	// Load .env if present; deployments set the environment directly.
	_ = godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialise structured logger.
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "thumbnail-service",
	})
	l := pkglog.L()
	l.Info().Msg("thumbnail-service starting")

	// Initialise the storage backend holding originals and thumbnails.
	var store pkgstorage.Storage
	switch cfg.Storage.Type {
	case "s3":
		store, err = pkgstorage.NewS3Storage(context.Background(), cfg.Storage.S3)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to init s3 storage")
		}
		l.Info().
			Str("endpoint", cfg.Storage.S3.Endpoint).
			Str("bucket", cfg.Storage.S3.Bucket).
			Msg("s3 storage initialised")
	default:
		localSt, lerr := pkgstorage.NewLocalStorage(cfg.Storage.Local)
		if lerr != nil {
			l.Fatal().Err(lerr).Msg("failed to init local storage")
		}
		store = localSt
		l.Info().Str("path", cfg.Storage.Local.BasePath).Msg("local storage initialised")
	}

	// Metrics registry, instrumented storage and HTTP endpoint.
	registry := prometheus.NewRegistry()
	rec := metrics.NewRecorder(registry)
	store = metrics.InstrumentStorage(store, rec)

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		opts := metrics.NewOptions()
		opts.Path = cfg.Metrics.Path
		opts.Port = cfg.Metrics.Port
		metricsSrv, err = metrics.Start(opts, registry)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to start metrics server")
		}
		l.Info().Str("addr", metricsSrv.Addr()).Msg("metrics server started")
	}

	// Initialise the thumbnail consumer (implements mq.RequestHandler).
	gen := processor.NewWebPGenerator(processor.Policy{
		Width:   cfg.Thumbnail.Width,
		Height:  cfg.Thumbnail.Height,
		Quality: cfg.Thumbnail.Quality,
	})
	handler := worker.NewConsumer(store, gen, rec)

	// Initialise the RabbitMQ consumer.
	consumer, err := mq.NewRabbitConsumer(cfg.Rabbit, handler)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to init rabbitmq consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := consumer.Start(ctx); err != nil {
		l.Fatal().Err(err).Msg("failed to start consumer")
	}

	go pollQueueDepth(ctx, consumer, rec, cfg.Metrics.DepthInterval)

	// Block until SIGINT / SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	l.Info().Msg("shutting down: waiting for in-flight requests to complete")
	cancel() // stop the worker pool from picking up new deliveries

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if err := consumer.Close(); err != nil { // waits for in-flight handlers to finish
			l.Error().Err(err).Msg("failed to close consumer")
		}
		if metricsSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				l.Error().Err(err).Msg("failed to shut down metrics server")
			}
			shutdownCancel()
		}
	}()

	select {
	case <-shutdownDone:
		l.Info().Msg("shutdown complete")
	case <-time.After(30 * time.Second):
		l.Warn().Msg("shutdown timed out after 30s")
	}
}

// pollQueueDepth samples the work queue backlog until ctx is cancelled.
func pollQueueDepth(ctx context.Context, consumer *mq.RabbitConsumer, rec *metrics.Recorder, interval time.Duration) {
	if interval <= 0 {
		return
	}
	l := pkglog.L()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := consumer.Depth(ctx)
			if err != nil {
				l.Warn().Err(err).Msg("failed to poll queue depth")
				continue
			}
			rec.SetQueueDepth(depth)
		}
	}
}
