// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides a generic in-process cache with optional LRU
// capacity, access based expiry and coalesced loading on miss.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// entry wraps a value with its access time for LRU eviction and TTL expiry
type entry[K comparable, V any] struct {
	key        K
	value      V
	lastAccess time.Time
}

// Cache is a concurrent cache.
//
// Usage:
//
//	// Bounded cache
//	c := cache.New[string, *types.ArtifactManifest](ctx, cache.WithMaxSize[string, *types.ArtifactManifest](10000))
//
//	// Cache with TTL expiry
//	c := cache.New[string, Token](ctx, cache.WithExpiry[string, Token](5*time.Minute))
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]*list.Element
	lru   *list.List // front is most recently used

	loadFunc func(ctx context.Context, key K) (V, error)
	loads    singleflight.Group

	maxSize int           // 0 = unlimited
	expiry  time.Duration // 0 = no expiry

	cleanupMu    sync.Mutex
	cleanupTimer *time.Timer
	stopped      bool
}

// Option configures a Cache
type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxSize sets the maximum number of entries. When capacity is reached
// the least recently accessed entry is evicted.
func WithMaxSize[K comparable, V any](maxSize int) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.maxSize = maxSize
	}
}

// WithExpiry sets the TTL for cache entries. An entry not accessed for this
// long is no longer returned and is removed by a periodic cleanup.
func WithExpiry[K comparable, V any](expiry time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.expiry = expiry
	}
}

// WithLoadFunc sets the function GetOrLoad calls on a miss.
// Concurrent misses for the same key share one call.
func WithLoadFunc[K comparable, V any](loadFunc func(ctx context.Context, key K) (V, error)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.loadFunc = loadFunc
	}
}

// New creates a Cache. The cleanup timer stops when ctx is done or Stop is called.
func New[K comparable, V any](ctx context.Context, opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		items: make(map[K]*list.Element),
		lru:   list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.expiry > 0 {
		c.cleanupTimer = time.AfterFunc(c.expiry, c.runCleanup)
		if ctx != nil && ctx.Done() != nil {
			context.AfterFunc(ctx, c.Stop)
		}
	}
	return c
}

func (c *Cache[K, V]) runCleanup() {
	c.removeExpired(time.Now())

	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	if !c.stopped {
		c.cleanupTimer.Reset(c.expiry)
	}
}

// removeExpired walks from the least recently used end and stops at the
// first live entry.
func (c *Cache[K, V]) removeExpired(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.lru.Back(); el != nil; {
		e := el.Value.(*entry[K, V])
		if now.Sub(e.lastAccess) <= c.expiry {
			return
		}
		prev := el.Prev()
		c.lru.Remove(el)
		delete(c.items, e.key)
		el = prev
	}
}

// Stop stops the cleanup timer. Safe to call more than once.
func (c *Cache[K, V]) Stop() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	if c.cleanupTimer != nil && !c.stopped {
		c.stopped = true
		c.cleanupTimer.Stop()
	}
}

func (c *Cache[K, V]) expired(e *entry[K, V], now time.Time) bool {
	return c.expiry > 0 && now.Sub(e.lastAccess) > c.expiry
}

// Get returns the value for key if present and not expired.
// A hit refreshes the entry's access time.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	now := time.Now()
	if c.expired(e, now) {
		var zero V
		return zero, false
	}
	e.lastAccess = now
	c.lru.MoveToFront(el)
	return e.value, true
}

// GetOrLoad returns the cached value or calls the load function and caches
// its result. Load errors are not cached.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}
	if c.loadFunc == nil {
		var zero V
		return zero, fmt.Errorf("cache: no load function configured")
	}

	v, err, _ := c.loads.Do(fmt.Sprint(key), func() (any, error) {
		if val, ok := c.Get(key); ok {
			return val, nil
		}
		val, err := c.loadFunc(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Set(key, val)
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Set adds or replaces a value.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.lastAccess = now
		c.lru.MoveToFront(el)
		return
	}

	if c.maxSize > 0 {
		for c.lru.Len() >= c.maxSize {
			oldest := c.lru.Back()
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*entry[K, V]).key)
		}
	}
	c.items[key] = c.lru.PushFront(&entry[K, V]{key: key, value: value, lastAccess: now})
}

// Delete removes a key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.lru.Remove(el)
	delete(c.items, key)
	return true
}

// Size returns the number of stored entries, including expired entries not
// yet cleaned up.
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.lru.Init()
}

// Iter returns an iterator over a snapshot of the live entries, most
// recently used first. Iterating does not refresh access times.
func (c *Cache[K, V]) Iter() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		c.mu.Lock()
		now := time.Now()
		snapshot := make([]*entry[K, V], 0, c.lru.Len())
		for el := c.lru.Front(); el != nil; el = el.Next() {
			e := el.Value.(*entry[K, V])
			if !c.expired(e, now) {
				snapshot = append(snapshot, &entry[K, V]{key: e.key, value: e.value})
			}
		}
		c.mu.Unlock()

		for _, e := range snapshot {
			if !yield(e.key, e.value) {
				return
			}
		}
	}
}
