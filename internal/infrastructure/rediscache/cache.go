package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/localtuya-core/internal/infrastructure/config"
)

const (
	defaultPingTimeout = 5 * time.Second
	stateKeyPart       = "device:state:"
	scanBatch          = 100
)

// Sentinel errors.
var (
	ErrDisabled         = errors.New("rediscache: disabled in configuration")
	ErrConnectionFailed = errors.New("rediscache: connection failed")
)

// StateCache stores one JSON document per device.
// Safe for concurrent use.
type StateCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// Connect dials Redis, verifies it with PING and returns a cache.
//
// Returns:
//   - *StateCache: ready cache
//   - error: ErrDisabled, or wrapping ErrConnectionFailed
func Connect(ctx context.Context, cfg config.RedisConfig) (*StateCache, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return New(rdb, cfg.KeyPrefix, time.Duration(cfg.TTL)*time.Second), nil
}

// New wraps an existing client. ttl <= 0 stores keys without expiry.
func New(rdb *redis.Client, prefix string, ttl time.Duration) *StateCache {
	return &StateCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key holding a device's state.
func (c *StateCache) Key(deviceID string) string {
	return c.prefix + stateKeyPart + deviceID
}

// Set stores stateJSON for deviceID.
func (c *StateCache) Set(ctx context.Context, deviceID string, stateJSON []byte) error {
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, c.Key(deviceID), stateJSON, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %s: %w", deviceID, err)
	}
	return nil
}

// Get returns the stored document, or nil when none exists.
func (c *StateCache) Get(ctx context.Context, deviceID string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, c.Key(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rediscache: get %s: %w", deviceID, err)
	}
	return b, nil
}

// Delete removes a device's document.
func (c *StateCache) Delete(ctx context.Context, deviceID string) error {
	return c.rdb.Del(ctx, c.Key(deviceID)).Err()
}

// RemoveAllExcept deletes the documents of every device not in keepIDs
// and returns the removed ids. Used at startup to drop devices that left
// the device file.
func (c *StateCache) RemoveAllExcept(ctx context.Context, keepIDs []string) ([]string, error) {
	keep := make(map[string]struct{}, len(keepIDs))
	for _, id := range keepIDs {
		if id != "" {
			keep[id] = struct{}{}
		}
	}

	base := c.prefix + stateKeyPart
	iter := c.rdb.Scan(ctx, 0, base+"*", scanBatch).Iterator()

	var removed []string
	for iter.Next(ctx) {
		id, ok := strings.CutPrefix(iter.Val(), base)
		if !ok {
			continue
		}
		if _, kept := keep[id]; kept {
			continue
		}
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, iter.Err()
}

// HealthCheck pings Redis.
func (c *StateCache) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *StateCache) Close() error {
	return c.rdb.Close()
}
