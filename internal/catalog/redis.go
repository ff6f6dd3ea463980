package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"modelgate/internal/core"
)

// defaultRedisKeyPrefix namespaces catalog entries in a shared Redis.
const defaultRedisKeyPrefix = "modelgate:models:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g. "redis://localhost:6379" or
	// "redis://:password@host:6379/0").
	URL string

	// KeyPrefix namespaces catalog keys (defaults to "modelgate:models:").
	KeyPrefix string

	// TTL is the time-to-live for cached entries (defaults to DefaultTTL).
	TTL time.Duration
}

// RedisStore implements Store using Redis, letting multiple gateway
// instances behind a load balancer share one catalog cache. Expiry is
// delegated to Redis key TTLs, so an expired entry is simply gone.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed catalog store and verifies the
// connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	slog.Info("redis catalog store connected", "prefix", prefix, "ttl", ttl)

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

// Get retrieves the provider's cached model list from Redis.
func (s *RedisStore) Get(ctx context.Context, provider string) ([]string, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+provider).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get catalog from redis: %w", err)
	}

	var models []string
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, false, fmt.Errorf("failed to parse catalog from redis: %w", err)
	}
	return models, true, nil
}

// Put stores the provider's model list with the configured TTL.
func (s *RedisStore) Put(ctx context.Context, provider string, models []string) error {
	data, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+provider, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set catalog in redis: %w", err)
	}
	return nil
}

// Snapshot returns live entries for every supported provider.
func (s *RedisStore) Snapshot(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, provider := range core.SupportedProviders() {
		models, ok, err := s.Get(ctx, provider)
		if err != nil {
			return nil, err
		}
		if ok {
			out[provider] = models
		}
	}
	return out, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
