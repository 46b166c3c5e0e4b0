package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fibermap/core-go/internal/config"
	"fibermap/core-go/internal/db"
	"fibermap/core-go/internal/editor"
	"fibermap/core-go/internal/events"
	"fibermap/core-go/internal/httpapi"
	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/storage"
	"fibermap/core-go/internal/workspace"
)

func main() {
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := httpapi.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("failed to open storage")
	}
	defer closeStore()

	m := metrics.New()
	hub := events.NewHub(logger)
	publisher := events.Multi{hub}
	if cfg.MQTTBroker != "" {
		mp, err := events.NewMQTTPublisher(events.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
		}, logger)
		if err != nil {
			logger.Error().Err(err).Str("broker", cfg.MQTTBroker).Msg("mqtt unavailable; continuing without it")
		} else {
			defer mp.Close()
			publisher = append(publisher, mp)
		}
	}

	features := editor.Features{
		RatioLimits: cfg.FeatureRatioLimits,
		LineNaming:  cfg.FeatureLineNaming,
		Polygons:    cfg.FeaturePolygons,
	}
	registry := workspace.NewRegistry(logger, kv, publisher, workspace.Options{
		Editor: editor.Options{
			Features:           features,
			SnapRadiusMeters:   cfg.SnapRadiusMeters,
			PolygonCloseMeters: cfg.PolygonCloseMeters,
		},
		IdleTTL: cfg.WorkspaceIdleTTL,
	}, m)

	janitor := workspace.NewJanitor(logger, registry, cfg.WorkspaceJanitorInterval)
	go janitor.Run(ctx)

	h := httpapi.NewHandler(logger, registry, httpapi.Options{
		MapsAPIKey: cfg.MapsAPIKey,
		Features:   features,
		Hub:        hub,
		Metrics:    m,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("storage", cfg.StorageDriver).Msg("core-go listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config) (storage.KV, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverSQLite:
		sqlDB, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		kv, err := storage.NewSQLite(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return kv, func() { _ = sqlDB.Close() }, nil
	case config.DriverPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return storage.NewPostgres(pool.Queries()).WithPinger(pool), pool.Close, nil
	default:
		return storage.NewMemory(), func() {}, nil
	}
}
