package requestlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// flushBatchSize is the batch size that triggers an immediate flush.
const flushBatchSize = 100

// Logger provides async buffered logging with batch writes. Entries are
// collected on a channel and flushed to the store when the batch fills or
// on a timer.
type Logger struct {
	store         LogStore
	config        Config
	buffer        chan *Entry
	done          chan struct{}
	wg            sync.WaitGroup
	flushInterval time.Duration
}

// NewLogger creates an async buffered Logger and starts its flush loop.
func NewLogger(store LogStore, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		store:         store,
		config:        cfg,
		buffer:        make(chan *Entry, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues an entry without blocking. If the buffer is full the entry
// is dropped and a warning is logged; request handling never waits on the
// log.
func (l *Logger) Write(entry *Entry) {
	if entry == nil {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		slog.Warn("request log buffer full, dropping entry",
			"request_id", entry.RequestID,
			"endpoint", entry.Endpoint,
		)
	}
}

// Close stops the logger and flushes remaining entries. Called during
// graceful shutdown.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.store.Close()
}

// flushLoop runs in the background and periodically flushes the buffer.
func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Entry, 0, flushBatchSize)

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= flushBatchSize {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, flushBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flushBatch(batch)
				batch = make([]*Entry, 0, flushBatchSize)
			}

		case <-l.done:
			// Drain whatever is still queued, then flush the store.
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			if len(batch) > 0 {
				l.flushBatch(batch)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush request log store", "error", err)
			}
			cancel()
			return
		}
	}
}

// flushBatch writes a batch of entries to the store.
func (l *Logger) flushBatch(batch []*Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write request log batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger is used when request logging is disabled.
type NoopLogger struct{}

// Write does nothing.
func (l *NoopLogger) Write(_ *Entry) {}

// Close does nothing.
func (l *NoopLogger) Close() error {
	return nil
}

// LoggerInterface is implemented by both the real and the no-op logger.
type LoggerInterface interface {
	Write(entry *Entry)
	Close() error
}
