// Package redis provides a Redis implementation of the arbitration status
// cache.
//
// Only positive statuses are cached. An arbitration, once made, is
// immutable on the ledger, so a cached "decided" never goes stale; the
// absence of a key just means the ledger has to be asked.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/escrow-research/oracle-engine/internal/ports/outbound"
)

// Compile-time check that StatusCache implements outbound.ArbitrationStatusCache
var _ outbound.ArbitrationStatusCache = (*StatusCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long cached statuses live before expiring
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       24 * time.Hour,
		KeyPrefix: "oracle",
	}
}

// StatusCache is a Redis implementation of the arbitration status cache.
type StatusCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewStatusCache creates a new Redis status cache.
func NewStatusCache(cfg Config, logger *slog.Logger) (*StatusCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redis-status-cache")

	return &StatusCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Ping checks the Redis connection.
func (c *StatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *StatusCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:arbitrated:oracle:uid
func (c *StatusCache) key(uid common.Hash, oracle common.Address) string {
	return fmt.Sprintf("%s:arbitrated:%s:%s", c.keyPrefix, oracle.Hex(), uid.Hex())
}

// Get reports whether a decision for the attestation is cached. known is
// false on a cache miss; the caller falls through to the ledger.
func (c *StatusCache) Get(ctx context.Context, uid common.Hash, oracle common.Address) (bool, bool, error) {
	err := c.client.Get(ctx, c.key(uid, oracle)).Err()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read status cache: %w", err)
	}
	return true, true, nil
}

// Set marks the attestation as arbitrated by the oracle.
func (c *StatusCache) Set(ctx context.Context, uid common.Hash, oracle common.Address) error {
	if err := c.client.Set(ctx, c.key(uid, oracle), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write status cache: %w", err)
	}
	return nil
}
