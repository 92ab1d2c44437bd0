package backend

import (
	"context"

	"budgetcards/internal/amqp"
	"budgetcards/internal/store"
)

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// BackendResult contains the row store, the optional classification
// publisher and a cleanup function.
type BackendResult struct {
	Store store.Store
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Close runs Cleanup if set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific; an empty path starts with no rows.
	MemorySeedFile string

	// PostgREST specific
	PostgRESTURL   string
	PostgRESTKey   string
	PostgRESTTable string

	// Classification backfill, optional for shared backends
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	SQLiteBackend    BackendType = "sqlite"
	PostgRESTBackend BackendType = "postgrest"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgRESTBackend:
		return true
	default:
		return false
	}
}

// Shared reports whether other processes see the same rows, which the
// classification worker relies on.
func (bt BackendType) Shared() bool {
	return bt == SQLiteBackend || bt == PostgRESTBackend
}
