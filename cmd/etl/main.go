package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/nwis-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nwis-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/nwis-data-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/nwis-data-etl/internal/adapter/postgres"
	"github.com/couchcryptid/nwis-data-etl/internal/config"
	"github.com/couchcryptid/nwis-data-etl/internal/domain"
	"github.com/couchcryptid/nwis-data-etl/internal/observability"
	"github.com/couchcryptid/nwis-data-etl/internal/pipeline"
	"github.com/couchcryptid/nwis-data-etl/nwis"
)

type sink interface {
	pipeline.BatchLoader
	io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := nwis.NewClient(
		nwis.WithRoot(cfg.NWISBaseURL),
		nwis.WithTimeout(cfg.NWISTimeout),
		nwis.WithLogger(logger),
		nwis.WithObserver(metrics.ObserveNWISRequest),
	)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		mb := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		cached, err := mapbox.NewCachedGeocoder(mb, cfg.MapboxCacheSize, metrics)
		if err != nil {
			logger.Error("failed to create geocoder", "error", err)
			os.Exit(1)
		}
		geocoder = cached
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	loader, err := openSink(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open sink", "sink", cfg.Sink, "error", err)
		os.Exit(1)
	}

	source := pipeline.NewNWISSource(client, cfg, metrics, logger)
	transformer := pipeline.NewTransformer(geocoder, metrics, logger)
	p := pipeline.New(source, transformer, loader, logger, metrics, cfg.PollInterval)

	ready := httpadapter.AllReady{p}
	if store, ok := loader.(*postgres.Store); ok {
		ready = append(ready, store)
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the poll loop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if err := loader.Close(); err != nil {
		logger.Error("sink close error", "sink", cfg.Sink, "error", err)
	}

	logger.Info("shutdown complete")
}

func openSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sink, error) {
	switch cfg.Sink {
	case config.SinkPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("postgres sink ready")
		return store, nil
	default:
		logger.Info("kafka sink ready", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
		return kafkaadapter.NewWriter(cfg, logger), nil
	}
}
