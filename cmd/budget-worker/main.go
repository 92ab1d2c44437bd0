package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetcards/internal/backend"
	"budgetcards/internal/cli"
	applog "budgetcards/internal/log"
	"budgetcards/internal/worker"
)

func main() {
	logger, cfg := cli.Bootstrap()
	logger.Info("Starting budget-worker")

	if !backend.BackendType(cfg.DataBackend).Shared() {
		logger.Error("The worker needs a shared backend",
			"backend", cfg.DataBackend,
			"supported", "sqlite, postgrest")
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg)
	defer res.Close()
	if res.Publisher == nil {
		logger.Error("Failed to connect to the message broker", "exchange", cfg.AMQPExchange)
		os.Exit(1)
	}

	classifier, closeClassifier := cli.NewClassifier(ctx, logger, cfg, cli.NewChatClient(cfg))
	defer closeClassifier()
	if !classifier.Enabled() {
		logger.Warn("No classification provider configured, rows will be labelled with the fallback icon")
	}

	w := worker.NewClassifyWorker(res.Store, classifier, cfg.SyncBatchSize)

	// Rows saved while the worker was down have no message waiting.
	logger.Info("Performing startup classification check...")
	if _, err := w.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup classification check", applog.FieldError, err)
	}

	go func() {
		if err := res.Publisher.ConsumeClassify(ctx, w.HandleClassifyMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
			cancel()
		}
	}()
	go w.Run(ctx, cfg.SyncInterval)

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		logger.Info("Shutting down worker...")
		cancel()
	})
	select {
	case <-shutdownCtx.Done():
		<-done
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}
	logger.Info("Worker stopped")
}
