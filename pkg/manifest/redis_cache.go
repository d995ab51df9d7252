// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig configures the shared manifest cache.
type RedisCacheConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	PoolSize  int           `mapstructure:"pool_size"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"` // 0 keeps entries until evicted
}

// DefaultRedisCacheConfig returns sensible defaults.
func DefaultRedisCacheConfig() RedisCacheConfig {
	return RedisCacheConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "zapartifact:manifest:",
		TTL:       24 * time.Hour,
	}
}

// RedisCache shares manifests between processes through Redis.
// Redis failures degrade to cache misses; the backends still hold every manifest.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisCacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisCacheFromClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) key(artifactID string) string {
	return r.prefix + artifactID
}

func (r *RedisCache) Get(ctx context.Context, artifactID string) (*types.ArtifactManifest, bool) {
	data, err := r.client.Get(ctx, r.key(artifactID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", artifactID).Msg("redis manifest cache get failed")
		}
		return nil, false
	}

	var m types.ArtifactManifest
	if err := json.Unmarshal(data, &m); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", artifactID).Msg("dropping undecodable cached manifest")
		r.client.Del(ctx, r.key(artifactID))
		return nil, false
	}
	return &m, true
}

func (r *RedisCache) Put(ctx context.Context, m *types.ArtifactManifest) {
	data, err := json.Marshal(m)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", m.ArtifactID).Msg("encode manifest for redis cache")
		return
	}
	if err := r.client.Set(ctx, r.key(m.ArtifactID), data, r.ttl).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", m.ArtifactID).Msg("redis manifest cache put failed")
	}
}

func (r *RedisCache) Evict(ctx context.Context, artifactID string) {
	if err := r.client.Del(ctx, r.key(artifactID)).Err(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", artifactID).Msg("redis manifest cache evict failed")
	}
}

// Range scans every key under the prefix. Entries that expire mid-scan are
// skipped and keys SCAN returns twice are visited once.
func (r *RedisCache) Range(ctx context.Context, fn func(m *types.ArtifactManifest) bool) error {
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}

		if len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("redis mget: %w", err)
			}
			for _, v := range values {
				s, ok := v.(string)
				if !ok {
					continue
				}
				var m types.ArtifactManifest
				if err := json.Unmarshal([]byte(s), &m); err != nil {
					continue
				}
				if _, dup := seen[m.ArtifactID]; dup {
					continue
				}
				seen[m.ArtifactID] = struct{}{}
				if !fn(&m) {
					return nil
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the underlying client
func (r *RedisCache) Close() error {
	return r.client.Close()
}
