package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)
	logger.Info("Starting fintrack-worker")

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export backend configuration", "error", err)
		os.Exit(1)
	}
	if backendCfg.Type == backend.NoneBackend {
		logger.Info("No export backend configured - nothing to do", "export_backend", cfg.ExportBackend)
		return
	}

	result, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize export backend", "error", err, "backend", backendCfg.Type.String())
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	repo := cli.InitSQLite(ctx, logger, cfg)
	defer repo.Close()

	exportWorker := worker.NewExportWorker(repo, result.Exporter, cfg.SyncBatchSize, cfg.SyncInterval).
		WithLogger(logger.WithComponent(applog.ComponentWorker))

	// Catch up on transactions changed while the worker was down.
	logger.Info("Performing startup sync check...")
	if err := exportWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := exportWorker.Start(ctx); err != nil {
		logger.Error("Failed to start export worker", "error", err)
		os.Exit(1)
	}

	if cfg.EventsEnabled() {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			if err := amqpClient.ConsumeWithRetry(ctx, exportWorker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
				cancel()
			}
		}()
		logger.Info("Consuming change events", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("No AMQP_URL provided - relying on periodic sweeps", "interval", cfg.SyncInterval)
	}

	<-ctx.Done()

	logger.Info("Shutting down worker...")
	shutdownCtx, shutdownCancel := cli.ShutdownContext(30 * time.Second)
	defer shutdownCancel()
	if err := exportWorker.Stop(shutdownCtx); err != nil {
		logger.Warn("Worker shutdown incomplete", "error", err)
		return
	}
	logger.Info("Worker shutdown complete")
}
