package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"quotesheet/internal/backend"
	"quotesheet/internal/cache"
	"quotesheet/internal/cli"
	apphttp "quotesheet/internal/http"
	"quotesheet/internal/log"
	"quotesheet/internal/session"
	"quotesheet/internal/variant"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
	ctx = log.NewContext(ctx, logger)

	sheetVariant, err := variant.Load(cfg.SheetVariant)
	if err != nil {
		logger.Error("Failed to load sheet variant", log.FieldError, err, log.FieldVariant, cfg.SheetVariant)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup == nil {
			return
		}
		if err := result.Cleanup(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	registry := session.NewRegistry(result.Backend, sheetVariant, session.Options{
		MaxSessions: cfg.MaxSessions,
		TTL:         cfg.SessionTTL,
		Notifier:    result.Notifier,
		Logger:      logger,
	})

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Registry:           registry,
		Pinger:             result.Backend,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	sweeper := cache.NewManager(registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting quotesheet server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			log.FieldVariant, sheetVariant.Name,
			"change_feed", cfg.AMQPEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
