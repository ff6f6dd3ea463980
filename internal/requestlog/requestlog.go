// Package requestlog records per-request metadata for the gateway.
//
// Entries capture routing metadata only: endpoint, provider, model, status,
// timing. Request and response bodies are never stored (the gateway keeps
// no conversation state) and credentials never appear in an entry.
package requestlog

import (
	"context"
	"fmt"
	"time"

	"modelgate/internal/storage"
)

// Entry is one logged request.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	DurationNs int64     `json:"duration_ns"`
	Endpoint   string    `json:"endpoint"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	Stream     bool      `json:"stream"`
	ErrorType  string    `json:"error_type,omitempty"`
}

// Config holds request logging configuration.
type Config struct {
	Enabled       bool
	BufferSize    int
	FlushInterval time.Duration
	// RetentionDays prunes entries older than this; 0 disables pruning.
	RetentionDays int
}

// LogStore persists batches of entries. Implementations must be safe for
// concurrent use.
type LogStore interface {
	WriteBatch(ctx context.Context, entries []*Entry) error
	Flush(ctx context.Context) error
	Close() error
}

// New builds a logger over the given storage connection. When logging is
// disabled, a no-op logger is returned and the storage is left untouched.
func New(cfg Config, st storage.Storage) (LoggerInterface, error) {
	if !cfg.Enabled {
		return &NoopLogger{}, nil
	}
	if st == nil {
		return nil, fmt.Errorf("request logging enabled but no storage configured")
	}

	store, err := newStore(st, cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	return NewLogger(store, cfg), nil
}

// newStore selects the store implementation matching the storage backend.
func newStore(st storage.Storage, retentionDays int) (LogStore, error) {
	switch st.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(st.SQLiteDB(), retentionDays)
	case storage.TypePostgreSQL:
		return NewPostgreSQLStore(st, retentionDays)
	case storage.TypeMongoDB:
		return NewMongoDBStore(st, retentionDays)
	default:
		return nil, fmt.Errorf("unsupported storage type for request log: %s", st.Type())
	}
}
