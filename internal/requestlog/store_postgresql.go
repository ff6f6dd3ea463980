package requestlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"modelgate/internal/storage"
)

// PostgreSQLStore persists entries to a PostgreSQL database.
type PostgreSQLStore struct {
	pool    *pgxpool.Pool
	cleanup *cleanupLoop
}

// NewPostgreSQLStore creates the store and ensures its schema exists.
func NewPostgreSQLStore(st storage.Storage, retentionDays int) (*PostgreSQLStore, error) {
	pool, ok := st.PostgreSQLPool().(*pgxpool.Pool)
	if !ok || pool == nil {
		return nil, fmt.Errorf("postgresql pool is required")
	}

	schema := `
	CREATE TABLE IF NOT EXISTS request_log (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		duration_ns BIGINT NOT NULL,
		endpoint TEXT NOT NULL,
		provider TEXT,
		model TEXT,
		status_code INT NOT NULL,
		request_id TEXT,
		client_ip TEXT,
		stream BOOLEAN NOT NULL DEFAULT FALSE,
		error_type TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_request_log_timestamp ON request_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_request_log_provider ON request_log(provider);
	`
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create request_log schema: %w", err)
	}

	s := &PostgreSQLStore{pool: pool}
	s.cleanup = startCleanup(s.prune, retentionDays)
	return s, nil
}

// WriteBatch inserts entries using a pipelined batch.
func (s *PostgreSQLStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO request_log
			(id, timestamp, duration_ns, endpoint, provider, model, status_code, request_id, client_ip, stream, error_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.Timestamp.UTC(), e.DurationNs, e.Endpoint,
			e.Provider, e.Model, e.StatusCode, e.RequestID,
			e.ClientIP, e.Stream, e.ErrorType,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close() //nolint:errcheck

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert request log batch: %w", err)
		}
	}
	return nil
}

// Flush is a no-op; writes are committed per batch.
func (s *PostgreSQLStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup loop. The pool is owned by the storage layer.
func (s *PostgreSQLStore) Close() error {
	s.cleanup.stop()
	return nil
}

func (s *PostgreSQLStore) prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM request_log WHERE timestamp < $1", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
