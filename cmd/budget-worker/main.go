package main

import (
	"context"
	"os"
	"time"

	"budget/internal/backend"
	"budget/internal/budget"
	"budget/internal/cli"
	"budget/internal/export"
	"budget/internal/log"
	"budget/internal/repository"
	"budget/internal/services"
	"budget/internal/session"
	"budget/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting budget-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg, cli.InstanceName("worker"))
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if res.Bridge == nil {
		logger.Warn("AMQP disabled - only changes made by this process trigger exports")
	}

	repos := repository.New(res.Gateway)
	months := services.NewMonthInitializer(repos)

	rollover := services.NewMonthRollover(months, services.RolloverConfig{
		Interval:  cfg.RolloverInterval,
		Lookahead: 24 * time.Hour,
	})
	if err := rollover.Start(ctx); err != nil {
		logger.Error("Failed to start month rollover", log.FieldError, err)
		os.Exit(1)
	}

	var sheetsSync *worker.SheetsSync
	if cfg.GoogleSpreadsheetID != "" {
		exporter, err := export.NewSheetsExporter(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err)
			os.Exit(1)
		}
		sess := session.New(session.Dependencies{
			Gateway: res.Gateway,
			Repos:   repos,
			Months:  months,
			Engine:  budget.NewEngine(repos),
		}, cfg.CoalesceWindow)
		sheetsSync = worker.NewSheetsSync(sess, exporter, cfg.CoalesceWindow, logger)
		if err := sheetsSync.Start(ctx); err != nil {
			logger.Warn("Sheets sync is waiting for the current month", log.FieldError, err)
		}
		go sheetsSync.Run(ctx, cfg.RolloverInterval)
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		logger.Info("Shutting down worker...")
		if err := rollover.Stop(ctx); err != nil {
			logger.Warn("Month rollover did not stop cleanly", log.FieldError, err)
		}
		if sheetsSync != nil {
			sheetsSync.Stop()
		}
		cancel()
		if res.Bridge != nil {
			res.Bridge.Wait()
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker stopped")
}
