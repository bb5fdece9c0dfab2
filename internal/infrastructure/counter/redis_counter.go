package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerflow/numbering/internal/domain/numbering"
	"github.com/redis/go-redis/v9"
)

// counterKeyPrefix scopes all fallback counter keys
const counterKeyPrefix = "invoice_counter:"

// counterTTL keeps day-scoped counters around long enough to survive clock
// skew and late traffic, then lets Redis reclaim them.
const counterTTL = 48 * time.Hour

// RedisCounter implements numbering.FallbackCounter on Redis INCRBY. It is
// the secondary authority used when the sequence authority's circuit is
// open: atomic, distributed, but day-scoped, so collisions with
// primary-issued numbers are possible and resolved by the reservation
// store's uniqueness constraint.
type RedisCounter struct {
	client *redis.Client
}

// Config holds Redis connection configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisCounter creates a counter backed by a new Redis connection
func NewRedisCounter(cfg Config) (*RedisCounter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCounter{client: client}, nil
}

// NewRedisCounterFromConfig creates a counter without verifying the
// connection. go-redis reconnects lazily, so a counter built this way heals
// once the server comes back.
func NewRedisCounterFromConfig(cfg Config) *RedisCounter {
	return &RedisCounter{client: redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

// NewRedisCounterWithClient creates a counter sharing an existing client.
// Useful for testing or when sharing a client across components.
func NewRedisCounterWithClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Increment atomically advances the counter at key by delta and returns the
// new value. The key is namespaced under the counter prefix and the TTL is
// refreshed on every call.
func (c *RedisCounter) Increment(ctx context.Context, key string, delta int) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.IncrBy(ctx, counterKeyPrefix+key, int64(delta))
	pipe.Expire(ctx, counterKeyPrefix+key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, numbering.MarkTransient(fmt.Errorf("redis increment failed: %w", err))
	}
	return incr.Val(), nil
}

// Ping checks the Redis connection
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// Ensure RedisCounter implements the fallback counter interface
var _ numbering.FallbackCounter = (*RedisCounter)(nil)
