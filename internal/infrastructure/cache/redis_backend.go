package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/commute-approvals/internal/application/session"
)

// DefaultPrefix namespaces session keys in a shared Redis
const DefaultPrefix = "commute:session:"

// maxUpdateAttempts bounds optimistic retries when another writer touches the key mid-update
const maxUpdateAttempts = 10

// RedisBackend stores sessions in Redis. Update uses WATCH/MULTI so merges
// stay atomic across processes sharing the same Redis.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// RedisOption configures a RedisBackend
type RedisOption func(*RedisBackend)

// WithPrefix overrides DefaultPrefix
func WithPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) {
		b.prefix = prefix
	}
}

// WithTTL expires sessions ttl after their last write. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) {
		b.ttl = ttl
	}
}

// NewRedisBackend creates a session backend on client
func NewRedisBackend(client *redis.Client, logger *zap.Logger, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{
		client: client,
		prefix: DefaultPrefix,
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get implements session.Backend
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		b.logger.Error("Failed to read session", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	return data, true, nil
}

// Set implements session.Backend
func (b *RedisBackend) Set(ctx context.Context, key string, data []byte) error {
	if err := b.client.Set(ctx, b.prefix+key, data, b.ttl).Err(); err != nil {
		b.logger.Error("Failed to write session", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Delete implements session.Backend
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key).Err(); err != nil {
		b.logger.Error("Failed to delete session", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Update implements session.AtomicBackend
func (b *RedisBackend) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	full := b.prefix + key

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, full).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, next, b.ttl)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := b.client.Watch(ctx, txf, full)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		b.logger.Debug("Session changed during update, retrying",
			zap.String("key", key),
			zap.Int("attempt", attempt))
	}
	return fmt.Errorf("session %s kept changing after %d attempts", key, maxUpdateAttempts)
}

// Ping reports whether Redis is reachable
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Verify interface compliance
var _ session.AtomicBackend = (*RedisBackend)(nil)
