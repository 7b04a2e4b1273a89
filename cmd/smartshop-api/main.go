// Package main provides the SmartShop API server entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spherical-ai/smartshop-engine/internal/app"
	"github.com/spherical-ai/smartshop-engine/internal/config"
	"github.com/spherical-ai/smartshop-engine/internal/negotiation"
	"github.com/spherical-ai/smartshop-engine/internal/observability"
)

func main() {
	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("catalog", cfg.Catalog.Source).
		Str("cache", cfg.Cache.Driver).
		Str("dialogue", cfg.Dialogue.Provider).
		Msg("Starting SmartShop API")

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	engines, err := app.New(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize engines")
	}
	defer engines.Close()

	appCfg := &AppConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultK:       cfg.Recommendation.DefaultK,
		MaxK:           cfg.Recommendation.MaxK,
		MaxListLimit:   DefaultAppConfig().MaxListLimit,
		CacheResults:   cfg.Recommendation.CacheResults,
		CacheTTL:       cfg.Cache.TTL,
	}

	router := NewRouter(logger, &Services{
		Catalog:      engines.Catalog,
		Features:     engines.Features,
		Recommender:  engines.Recommender,
		Negotiations: engines.Negotiations,
		Renderer:     engines.Renderer,
		Cache:        engines.Cache,
	}, appCfg)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go runJanitor(janitorCtx, logger, engines.Negotiations, cfg.Negotiation.JanitorInterval, cfg.Negotiation.IdleTimeout)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	// Wait for interrupt or error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown
	stopJanitor()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
}

// runJanitor expires idle negotiation sessions until ctx is cancelled.
func runJanitor(ctx context.Context, logger *observability.Logger, store *negotiation.Store, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.ExpireIdle(ctx, idle); n > 0 {
				logger.Info().Int("expired", n).Msg("Expired idle negotiations")
			}
		}
	}
}
