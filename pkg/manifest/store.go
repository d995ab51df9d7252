// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest persists artifact manifests next to their shards and
// keeps a cache and a catalog in front of them.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/index"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

var (
	// ErrNotFound is returned when no backend holds a manifest for the id
	ErrNotFound = errors.New("manifest not found")

	// ErrInvalid is returned for a stored manifest that cannot be decoded or
	// violates the manifest invariants
	ErrInvalid = errors.New("invalid manifest")

	// ErrBackendNotRegistered is returned when a manifest names a backend the
	// process does not have
	ErrBackendNotRegistered = errors.New("storage backend not registered")
)

// Store reads and writes manifests through the backend manager.
type Store struct {
	backends       *backend.Manager
	cache          Cache
	catalog        Catalog
	defaultBackend func() string
}

// Option configures a Store
type Option func(*Store)

// WithCache replaces the default unbounded local cache
func WithCache(c Cache) Option {
	return func(s *Store) {
		s.cache = c
	}
}

// WithCatalog replaces the default in-memory catalog
func WithCatalog(c Catalog) Option {
	return func(s *Store) {
		s.catalog = c
	}
}

// WithDefaultBackend sets the function returning the backend id probed first
// on a catalog miss. It is called per lookup so configuration changes apply.
func WithDefaultBackend(f func() string) Option {
	return func(s *Store) {
		s.defaultBackend = f
	}
}

// NewStore creates a manifest store.
func NewStore(backends *backend.Manager, opts ...Option) *Store {
	s := &Store{
		backends:       backends,
		defaultBackend: func() string { return types.DefaultBackendID },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewLocalCache(context.Background(), 0, 0)
	}
	if s.catalog == nil {
		s.catalog = NewMemoryCatalog()
	}
	return s
}

// Get returns the manifest for artifactID. Lookup order is the cache, the
// backend recorded in the catalog, then the default backend followed by every
// other registered backend.
func (s *Store) Get(ctx context.Context, artifactID string) (*types.ArtifactManifest, error) {
	if m, ok := s.cache.Get(ctx, artifactID); ok {
		cacheLookups.WithLabelValues("hit").Inc()
		return m, nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	m, err := s.load(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	s.cache.Put(ctx, m)
	return m, nil
}

func (s *Store) load(ctx context.Context, artifactID string) (*types.ArtifactManifest, error) {
	entry, err := s.catalog.Get(artifactID)
	switch {
	case err == nil:
		m, err := s.loadFrom(ctx, entry.Backend, artifactID)
		if errors.Is(err, ErrNotFound) {
			// Stale entry, e.g. the manifest was removed by another process
			logger.Ctx(ctx).Debug().Str("artifact_id", artifactID).Str("backend_id", entry.Backend).Msg("catalog entry without manifest")
			_ = s.catalog.Delete(artifactID)
		}
		return m, err
	case !errors.Is(err, index.ErrNotFound):
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", artifactID).Msg("catalog lookup failed, probing backends")
	}

	m, err := s.probe(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.Put(artifactID, entryFor(m)); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", artifactID).Msg("catalog update failed")
	}
	return m, nil
}

// probe tries the default backend first, then the rest in id order.
// A backend error is only reported if no backend has the manifest.
func (s *Store) probe(ctx context.Context, artifactID string) (*types.ArtifactManifest, error) {
	ids := s.backends.List()
	if def := s.defaultBackend(); def != "" {
		ordered := make([]string, 0, len(ids))
		ordered = append(ordered, def)
		for _, id := range ids {
			if id != def {
				ordered = append(ordered, id)
			}
		}
		ids = ordered
	}

	var errs []error
	for _, id := range ids {
		m, err := s.loadFrom(ctx, id, artifactID)
		if err == nil {
			return m, nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrBackendNotRegistered) {
			continue
		}
		if errors.Is(err, ErrInvalid) || ctx.Err() != nil {
			return nil, err
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, artifactID)
}

func (s *Store) loadFrom(ctx context.Context, backendID, artifactID string) (*types.ArtifactManifest, error) {
	b, ok := s.backends.Get(backendID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, backendID)
	}

	rc, err := b.Read(ctx, types.ManifestPath(artifactID))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			backendLoads.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, artifactID)
		}
		backendLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read manifest from %s: %w", backendID, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		backendLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read manifest from %s: %w", backendID, err)
	}

	var m types.ArtifactManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalid, artifactID, err)
	}
	if m.ArtifactID != artifactID {
		return nil, fmt.Errorf("%w: %s holds manifest for %q", ErrInvalid, types.ManifestPath(artifactID), m.ArtifactID)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	backendLoads.WithLabelValues("found").Inc()
	return &m, nil
}

// Save writes the manifest to the backend it records, then updates the
// catalog and the cache. Nothing is cached if the write fails.
func (s *Store) Save(ctx context.Context, m *types.ArtifactManifest) error {
	b, ok := s.backends.Get(m.StorageBackend)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBackendNotRegistered, m.StorageBackend)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := b.Write(ctx, types.ManifestPath(m.ArtifactID), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if err := s.catalog.PutSync(m.ArtifactID, entryFor(m)); err != nil {
		// The manifest is durable; a missing entry only costs a probe later
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", m.ArtifactID).Msg("catalog update failed")
	}
	s.cache.Put(ctx, m)
	return nil
}

// Delete removes the manifest object, its catalog entry and its cache entry.
// A manifest object that is already gone is not an error.
func (s *Store) Delete(ctx context.Context, m *types.ArtifactManifest) error {
	s.cache.Evict(ctx, m.ArtifactID)

	b, ok := s.backends.Get(m.StorageBackend)
	if !ok {
		return fmt.Errorf("%w: %q", ErrBackendNotRegistered, m.StorageBackend)
	}
	if err := b.Delete(ctx, types.ManifestPath(m.ArtifactID)); err != nil {
		return fmt.Errorf("delete manifest: %w", err)
	}
	if err := s.catalog.DeleteSync(m.ArtifactID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", m.ArtifactID).Msg("catalog delete failed")
	}
	return nil
}

// Evict drops the cached copy only. The next Get reloads from the backend.
func (s *Store) Evict(ctx context.Context, artifactID string) {
	s.cache.Evict(ctx, artifactID)
}

// Range calls fn for every manifest currently cached.
func (s *Store) Range(ctx context.Context, fn func(m *types.ArtifactManifest) bool) error {
	return s.cache.Range(ctx, fn)
}

// Warm loads every catalogued manifest into the cache and returns how many
// were loaded. Entries whose manifest is missing are dropped from the catalog.
func (s *Store) Warm(ctx context.Context) (int, error) {
	type target struct{ id, backend string }
	var targets []target
	if err := s.catalog.Iterate(func(id string, e CatalogEntry) error {
		targets = append(targets, target{id, e.Backend})
		return ctx.Err()
	}); err != nil {
		return 0, fmt.Errorf("iterate catalog: %w", err)
	}

	loaded := 0
	for _, t := range targets {
		m, err := s.loadFrom(ctx, t.backend, t.id)
		switch {
		case err == nil:
			s.cache.Put(ctx, m)
			loaded++
		case errors.Is(err, ErrNotFound):
			_ = s.catalog.Delete(t.id)
		case ctx.Err() != nil:
			return loaded, ctx.Err()
		default:
			logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", t.id).Str("backend_id", t.backend).Msg("skipping manifest during warm")
		}
	}
	return loaded, nil
}

// Close closes the catalog
func (s *Store) Close() error {
	return s.catalog.Close()
}
