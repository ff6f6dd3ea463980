package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// sqliteMaxBatchRows keeps each INSERT under SQLite's bound-parameter limit.
const sqliteMaxBatchRows = 80

// SQLiteStore persists entries to a SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	cleanup *cleanupLoop
}

// NewSQLiteStore creates the store and ensures its schema exists.
func NewSQLiteStore(db *sql.DB, retentionDays int) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite database is required")
	}

	schema := `
	CREATE TABLE IF NOT EXISTS request_log (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		duration_ns INTEGER NOT NULL,
		endpoint TEXT NOT NULL,
		provider TEXT,
		model TEXT,
		status_code INTEGER NOT NULL,
		request_id TEXT,
		client_ip TEXT,
		stream INTEGER NOT NULL DEFAULT 0,
		error_type TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_request_log_timestamp ON request_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_request_log_provider ON request_log(provider);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create request_log schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.cleanup = startCleanup(s.prune, retentionDays)
	return s, nil
}

// WriteBatch inserts entries in chunks so a single statement never exceeds
// the driver's parameter limit.
func (s *SQLiteStore) WriteBatch(ctx context.Context, entries []*Entry) error {
	for len(entries) > 0 {
		chunk := entries
		if len(chunk) > sqliteMaxBatchRows {
			chunk = chunk[:sqliteMaxBatchRows]
		}
		entries = entries[len(chunk):]

		if err := s.writeChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) writeChunk(ctx context.Context, chunk []*Entry) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO request_log
		(id, timestamp, duration_ns, endpoint, provider, model, status_code, request_id, client_ip, stream, error_type)
		VALUES `)

	args := make([]interface{}, 0, len(chunk)*11)
	for i, e := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			e.ID, e.Timestamp.UTC(), e.DurationNs, e.Endpoint,
			e.Provider, e.Model, e.StatusCode, e.RequestID,
			e.ClientIP, e.Stream, e.ErrorType,
		)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert request log batch: %w", err)
	}
	return nil
}

// Flush is a no-op; writes are committed per batch.
func (s *SQLiteStore) Flush(_ context.Context) error {
	return nil
}

// Close stops the cleanup loop. The underlying database is owned by the
// storage layer and closed there.
func (s *SQLiteStore) Close() error {
	s.cleanup.stop()
	return nil
}

func (s *SQLiteStore) prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM request_log WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
