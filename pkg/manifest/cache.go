// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/cache"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

// Cache holds manifests in front of the backends. The backends remain the
// source of truth, so any implementation may drop entries at any time.
type Cache interface {
	Get(ctx context.Context, artifactID string) (*types.ArtifactManifest, bool)
	Put(ctx context.Context, m *types.ArtifactManifest)
	Evict(ctx context.Context, artifactID string)

	// Range calls fn for every cached manifest until fn returns false
	Range(ctx context.Context, fn func(m *types.ArtifactManifest) bool) error
}

// LocalCache is an in-process Cache with optional LRU capacity and TTL
type LocalCache struct {
	c *cache.Cache[string, *types.ArtifactManifest]
}

// NewLocalCache creates a local cache. maxEntries <= 0 means unbounded and
// ttl <= 0 disables expiry.
func NewLocalCache(ctx context.Context, maxEntries int, ttl time.Duration) *LocalCache {
	var opts []cache.Option[string, *types.ArtifactManifest]
	if maxEntries > 0 {
		opts = append(opts, cache.WithMaxSize[string, *types.ArtifactManifest](maxEntries))
	}
	if ttl > 0 {
		opts = append(opts, cache.WithExpiry[string, *types.ArtifactManifest](ttl))
	}
	return &LocalCache{c: cache.New(ctx, opts...)}
}

func (l *LocalCache) Get(_ context.Context, artifactID string) (*types.ArtifactManifest, bool) {
	m, ok := l.c.Get(artifactID)
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (l *LocalCache) Put(_ context.Context, m *types.ArtifactManifest) {
	l.c.Set(m.ArtifactID, m.Clone())
}

func (l *LocalCache) Evict(_ context.Context, artifactID string) {
	l.c.Delete(artifactID)
}

func (l *LocalCache) Range(_ context.Context, fn func(m *types.ArtifactManifest) bool) error {
	for _, m := range l.c.Iter() {
		if !fn(m.Clone()) {
			break
		}
	}
	return nil
}

// Len returns the number of cached manifests
func (l *LocalCache) Len() int {
	return l.c.Size()
}

// Stop releases the expiry timer
func (l *LocalCache) Stop() {
	l.c.Stop()
}
