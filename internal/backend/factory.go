package backend

import (
	"context"
	"fmt"

	"budgetcards/internal/amqp"
	applog "budgetcards/internal/log"
	"budgetcards/internal/storage"
	"budgetcards/internal/store/memory"
	"budgetcards/internal/store/postgrest"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case PostgRESTBackend:
		res, err = f.createPostgRESTBackend(config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachPublisher(ctx, config, res)
	return res, nil
}

// attachPublisher connects the optional AMQP publisher. Failure is logged
// and the backend keeps working without backfill.
func (f *DefaultFactory) attachPublisher(ctx context.Context, config Config, res *BackendResult) {
	if config.AMQPURL == "" {
		return
	}
	if !config.Type.Shared() {
		f.logger.WarnContext(ctx, "AMQP ignored: the worker cannot see rows of a memory backend")
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without classification backfill",
			applog.FieldError, err)
		return
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	res.Publisher = client
	storeCleanup := res.Cleanup
	res.Cleanup = func() error {
		perr := client.Close()
		if storeCleanup != nil {
			if err := storeCleanup(); err != nil {
				return err
			}
		}
		return perr
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgRESTBackend(config Config) (*BackendResult, error) {
	client, err := postgrest.New(config.PostgRESTURL, config.PostgRESTKey, config.PostgRESTTable)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgREST client: %w", err)
	}
	f.logger.Info("Initialized PostgREST backend", "table", config.PostgRESTTable)
	return &BackendResult{Store: client}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	if config.MemorySeedFile == "" {
		f.logger.Info("Initialized memory backend")
		return &BackendResult{Store: memory.New()}, nil
	}
	st, err := memory.NewFromFile(config.MemorySeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory seed file: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)
	return &BackendResult{Store: st}, nil
}
