// Package catalog caches per-provider model lists with time-based expiry.
// Supports an in-memory backend and a Redis backend for multi-instance
// deployments.
package catalog

import (
	"context"
	"time"
)

// DefaultTTL is how long a fetched model list stays valid.
const DefaultTTL = 300 * time.Second

// Store is the model catalog cache. Implementations must be safe for
// concurrent use; expiry is purely time-based and independent per provider.
type Store interface {
	// Get returns the cached model list for a provider. A miss or an
	// expired entry returns ok=false; an expired entry is evicted on
	// detection.
	Get(ctx context.Context, provider string) (models []string, ok bool, err error)

	// Put overwrites the provider's entry unconditionally, stamping the
	// current time.
	Put(ctx context.Context, provider string, models []string) error

	// Snapshot returns all live entries keyed by provider.
	Snapshot(ctx context.Context) (map[string][]string, error)

	// Close releases any resources held by the store.
	Close() error
}
