// Package cli holds the process bootstrap shared by cmd/budgetd,
// cmd/budget-worker and cmd/budgetctl.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budgetcards/internal/ai"
	"budgetcards/internal/backend"
	"budgetcards/internal/classify"
	"budgetcards/internal/config"
	applog "budgetcards/internal/log"

	"github.com/joho/godotenv"
)

// SetupLogger installs a text slog handler at level as the process default
// and returns the application logger.
func SetupLogger(level string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// Bootstrap runs the steps every command starts with: .env, logger, config.
func Bootstrap() (*applog.Logger, *config.Config) {
	LoadEnvFile()
	logger := SetupLogger(os.Getenv("LOG_LEVEL"))
	return logger, LoadAndValidateConfig(logger)
}

// InitBackend creates the configured store. Exits the process on failure.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// NewChatClient returns the OpenAI-compatible client used by the relay and
// the summarizer. AI_MODEL applies to it only when the chat provider is
// selected.
func NewChatClient(cfg *config.Config) *ai.ChatClient {
	model := ""
	if cfg.AIProvider == classify.KindChat {
		model = cfg.AIModel
	}
	return ai.NewChatClient(cfg.AIEndpoint, cfg.AIAPIKey, model, ai.WithTemperature(cfg.AITemperature))
}

// NewClassifier builds the classification gateway. A provider that cannot
// be built is logged and replaced by the fallback label, so startup never
// fails on AI settings. The returned func releases provider resources.
func NewClassifier(ctx context.Context, logger *applog.Logger, cfg *config.Config, chat *ai.ChatClient) (*classify.Gateway, func()) {
	s := classify.Settings{
		Kind:         cfg.AIProvider,
		AnthropicKey: cfg.AnthropicAPIKey,
		GeminiKey:    cfg.GeminiAPIKey,
	}
	if cfg.AIProvider != classify.KindChat {
		s.Model = cfg.AIModel
	}
	if cfg.AIAPIKey != "" {
		s.Chat = chat
	}

	p, err := classify.NewProvider(ctx, s)
	if err != nil {
		logger.Warn("Classification provider unavailable, using fallback label",
			applog.FieldError, err,
			applog.FieldProvider, cfg.AIProvider)
		p = nil
	}
	if p == nil {
		logger.Info("Classification disabled", applog.FieldProvider, cfg.AIProvider)
	} else {
		logger.Info("Classification enabled", applog.FieldProvider, p.Name())
	}

	gw := classify.NewGateway(p, cfg.ClassifyTimeout, logger.WithComponent(applog.ComponentClassify))
	cleanup := func() {}
	if c, ok := p.(io.Closer); ok {
		cleanup = func() {
			if err := c.Close(); err != nil {
				logger.Warn("Failed to close classification provider", applog.FieldError, err)
			}
		}
	}
	return gw, cleanup
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM, after
// cleanup has run or timeout has passed.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		cancel()
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

