// Package redisbackend adapts github.com/redis/go-redis/v9 to the
// cache.Cache contract, for deployments that need the context cache
// shared across multiple orchestrator replicas instead of scoped to a
// single process's memory.
package redisbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragifylabs/ragify/internal/apierrors"
	"github.com/ragifylabs/ragify/internal/model"
)

// Cache implements cache.Cache over a Redis key namespace.
type Cache struct {
	client *redis.Client
	prefix string
}

// Config configures a Cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces keys so multiple ragify deployments can share
	// one Redis instance without colliding.
	KeyPrefix string
}

// New builds a Cache backed by the given Redis instance.
func New(cfg Config) *Cache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ragify:cache:"
	}
	return &Cache{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
	}
}

func (c *Cache) key(fingerprint string) string {
	return c.prefix + fingerprint
}

func (c *Cache) Get(ctx context.Context, fingerprint string) (model.ContextResponse, bool, error) {
	raw, err := c.client.Get(ctx, c.key(fingerprint)).Bytes()
	if err == redis.Nil {
		return model.ContextResponse{}, false, nil
	}
	if err != nil {
		return model.ContextResponse{}, false, apierrors.NewCacheError("get", err)
	}

	var resp model.ContextResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.ContextResponse{}, false, apierrors.NewCacheError("get", fmt.Errorf("decode: %w", err))
	}
	return resp, true, nil
}

func (c *Cache) Set(ctx context.Context, fingerprint string, resp model.ContextResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return apierrors.NewCacheError("set", fmt.Errorf("encode: %w", err))
	}
	if err := c.client.Set(ctx, c.key(fingerprint), raw, ttl).Err(); err != nil {
		return apierrors.NewCacheError("set", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, fingerprint string) error {
	if err := c.client.Del(ctx, c.key(fingerprint)).Err(); err != nil {
		return apierrors.NewCacheError("delete", err)
	}
	return nil
}

func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return apierrors.NewCacheError("clear", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return apierrors.NewCacheError("clear", err)
	}
	return nil
}

func (c *Cache) Stats(ctx context.Context) map[string]any {
	stats := map[string]any{"backend": "redis"}
	if info, err := c.client.Info(ctx, "stats").Result(); err == nil {
		stats["info"] = info
	}
	return stats
}

func (c *Cache) Close() error {
	return c.client.Close()
}
