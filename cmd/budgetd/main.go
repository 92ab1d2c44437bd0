package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetcards/internal/cache"
	"budgetcards/internal/cli"
	apphttp "budgetcards/internal/http"
	applog "budgetcards/internal/log"
	"budgetcards/internal/services"
	"budgetcards/internal/store"
)

func main() {
	logger, cfg := cli.Bootstrap()
	ctx := context.Background()

	res := cli.InitBackend(ctx, logger, cfg)

	// A nil *amqp.Client must not reach the interface.
	var publisher services.ClassifyPublisher
	if res.Publisher != nil {
		publisher = res.Publisher
	}

	chat := cli.NewChatClient(cfg)
	classifier, closeClassifier := cli.NewClassifier(ctx, logger, cfg, chat)

	syncer := services.NewSynchronizer(res.Store, publisher, services.SyncConfig{
		Debounce:    cfg.SaveDebounce,
		MinInterval: cfg.SaveMinInterval,
		Concurrency: cfg.SaveConcurrency,
	}, logger.WithComponent(applog.ComponentSync))

	views := cache.NewLRUCache[services.MonthView](100, 5*time.Minute)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache))
	caches.Register(views)
	caches.StartCleanup(10 * time.Minute)

	board := services.NewBoardService(res.Store, syncer, classifier,
		services.WithViewCache(views),
		services.WithSummarizer(services.NewSummarizer(chat)),
		services.WithLogger(logger.WithComponent(applog.ComponentBoard)))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Board:      board,
		Classifier: classifier,
		Relay:      chat,
		Views:      views,
		Caches:     caches,
		Ready:      readiness(res.Store),
		Logger:     logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		// Pending autosaves are written before the store goes away.
		board.Close()
		closeClassifier()
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting budget server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"ai_provider", cfg.AIProvider,
		"classify_queue", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		board.Close()
		_ = res.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// readiness pings the store when it can, otherwise lists its rows.
func readiness(st store.Store) func(context.Context) error {
	if p, ok := st.(interface{ Ping(context.Context) error }); ok {
		return p.Ping
	}
	return func(ctx context.Context) error {
		_, err := st.ListRows(ctx)
		return err
	}
}
