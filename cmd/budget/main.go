package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budget/internal/backend"
	"budget/internal/budget"
	"budget/internal/cli"
	apphttp "budget/internal/http"
	"budget/internal/log"
	"budget/internal/repository"
	"budget/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg, cli.InstanceName("api"))
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	repos := repository.New(res.Gateway)
	recorder := services.NewHistoryRecorder(repos.History)
	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Gateway:       res.Gateway,
		Repos:         repos,
		Months:        services.NewMonthInitializer(repos),
		Holdings:      services.NewHoldingService(repos.Holdings, recorder),
		History:       recorder,
		Engine:        budget.NewEngine(repos),
		Pinger:        res.Pinger,
		Logger:        logger,
		ViewCacheSize: cfg.ViewCacheSize,
		ViewCacheTTL:  cfg.ViewCacheTTL,
	})

	// No write timeout: /api/events responses stay open.
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
		if res.Bridge != nil {
			res.Bridge.Wait()
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting budget server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
