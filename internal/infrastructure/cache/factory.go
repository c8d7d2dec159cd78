package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/elyphant/backend/internal/domain/shared"
	"github.com/elyphant/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the coordination primitives used by reconciliation
type Stores struct {
	Idempotency shared.IdempotencyStore
	RunLock     shared.RunLock
	client      *redis.Client
}

// Close releases the stores and the Redis client if one was opened
func (s *Stores) Close() error {
	if s.Idempotency != nil {
		_ = s.Idempotency.Close()
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Distributed reports whether the stores are backed by Redis
func (s *Stores) Distributed() bool {
	return s.client != nil
}

// NewRedisClient opens a Redis client and verifies it with a ping
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewStores returns Redis-backed stores when Redis is configured and reachable,
// otherwise in-process stores. Outside development an unreachable Redis is an error.
func NewStores(ctx context.Context, cfg config.RedisConfig, env string, logger *zap.Logger) (*Stores, error) {
	if !cfg.Enabled() {
		logger.Info("Redis not configured, using in-memory locks and idempotency store")
		return inMemoryStores(), nil
	}

	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		if env == "production" {
			return nil, err
		}
		logger.Warn("Redis unavailable, falling back to in-memory stores", zap.Error(err))
		return inMemoryStores(), nil
	}

	logger.Info("Using Redis for locks and idempotency", zap.String("addr", cfg.Addr()))
	return &Stores{
		Idempotency: NewRedisIdempotencyStore(client, ""),
		RunLock:     NewRedisRunLock(client, ""),
		client:      client,
	}, nil
}

func inMemoryStores() *Stores {
	return &Stores{
		Idempotency: NewInMemoryIdempotencyStore(),
		RunLock:     NewInMemoryRunLock(),
	}
}
