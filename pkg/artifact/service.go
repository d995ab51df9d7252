// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact splits artifacts into checksummed shards, persists their
// manifests and reads them back with verification.
//
// Usage:
//
//	mgr := backend.NewManager()
//	mgr.Add("local", types.BackendConfig{Type: types.StorageTypeLocal, Path: "/var/lib/zapartifact"})
//
//	svc, err := artifact.NewService(mgr, types.DefaultShardingConfig())
//	res, err := svc.Shard(ctx, data, "dataset-42", nil)
//	data, err = svc.Reassemble(ctx, "dataset-42")
package artifact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/compression"
	zctx "github.com/LeeDigitalWorks/zapartifact/pkg/context"
	"github.com/LeeDigitalWorks/zapartifact/pkg/encryption"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/manifest"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/getsentry/sentry-go"
)

// Service is the artifact lifecycle API. It is safe for concurrent use.
type Service struct {
	backends  *backend.Manager
	manifests *manifest.Store
	sealer    *encryption.Sealer
	orphans   OrphanQueue
	writes    *writeGuard
	now       func() time.Time

	mu  sync.RWMutex
	cfg types.ShardingConfig
}

// Option configures a Service
type Option func(*serviceOptions)

type serviceOptions struct {
	manifestOpts []manifest.Option
	sealer       *encryption.Sealer
	orphans      OrphanQueue
	now          func() time.Time
}

// OrphanQueue records shard objects that could not be removed so they can
// be retried later (see pkg/storage/gc).
type OrphanQueue interface {
	Enqueue(backendID, artifactID string, paths ...string) error
}

// WithManifestOptions configures the manifest store (cache, catalog)
func WithManifestOptions(opts ...manifest.Option) Option {
	return func(o *serviceOptions) {
		o.manifestOpts = append(o.manifestOpts, opts...)
	}
}

// WithSealer enables shard encryption support
func WithSealer(s *encryption.Sealer) Option {
	return func(o *serviceOptions) {
		o.sealer = s
	}
}

// WithOrphanQueue hands shard objects that cleanup or Delete could not
// remove to q
func WithOrphanQueue(q OrphanQueue) Option {
	return func(o *serviceOptions) {
		o.orphans = q
	}
}

// WithClock overrides the time source for manifest timestamps
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		o.now = now
	}
}

// NewService creates a service writing through backends. The configured
// storage backend must already be registered.
func NewService(backends *backend.Manager, cfg types.ShardingConfig, opts ...Option) (*Service, error) {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		backends: backends,
		sealer:   o.sealer,
		orphans:  o.orphans,
		writes:   newWriteGuard(),
		now:      o.now,
	}
	if err := s.validate(cfg); err != nil {
		return nil, err
	}
	s.cfg = cfg

	// The default backend is read per lookup so UpdateConfig applies to probing
	mopts := append([]manifest.Option{manifest.WithDefaultBackend(func() string {
		return s.Config().StorageBackend
	})}, o.manifestOpts...)
	s.manifests = manifest.NewStore(backends, mopts...)
	return s, nil
}

// Manifests exposes the manifest store
func (s *Service) Manifests() *manifest.Store {
	return s.manifests
}

// Close releases the manifest catalog. Backends are owned by the caller.
func (s *Service) Close() error {
	return s.manifests.Close()
}

// GetManifest returns the manifest for artifactID.
func (s *Service) GetManifest(ctx context.Context, artifactID string) (*types.ArtifactManifest, error) {
	m, err := s.manifests.Get(ctx, artifactID)
	if err != nil {
		return nil, manifestError(artifactID, err)
	}
	return m, nil
}

// manifestError maps manifest store failures onto error kinds.
func manifestError(artifactID string, err error) error {
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		return newError(ArtifactNotFound, artifactID, err)
	case errors.Is(err, manifest.ErrInvalid):
		return newError(ArtifactCorrupted, artifactID, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return newError(BackendUnavailable, artifactID, err)
	}
}

// References reports whether the current manifest of artifactID lists path
// as one of its shards. An unknown artifact references nothing.
func (s *Service) References(ctx context.Context, artifactID, path string) (bool, error) {
	m, err := s.GetManifest(ctx, artifactID)
	if errors.Is(err, ErrArtifactNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, sh := range m.Shards {
		if sh.Path == path {
			return true, nil
		}
	}
	return false, nil
}

// queueOrphans hands paths to the orphan queue, if one is configured.
func (s *Service) queueOrphans(ctx context.Context, backendID, artifactID string, paths []string) {
	if s.orphans == nil || len(paths) == 0 {
		return
	}
	if err := s.orphans.Enqueue(backendID, artifactID, paths...); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("backend_id", backendID).Int("paths", len(paths)).Msg("failed to queue orphaned shards")
	}
}

// backendFor resolves the backend recorded in the manifest, never the
// current default.
func (s *Service) backendFor(m *types.ArtifactManifest) (types.BackendStorage, error) {
	b, ok := s.backends.Get(m.StorageBackend)
	if !ok {
		return nil, newError(BackendUnavailable, m.ArtifactID,
			fmt.Errorf("%w: %q", manifest.ErrBackendNotRegistered, m.StorageBackend))
	}
	return b, nil
}

// encodeShard turns original shard bytes into the stored form:
// compressed first, then sealed.
func (s *Service) encodeShard(artifactID string, index int, algo compression.Algorithm, encrypt bool, payload []byte) ([]byte, error) {
	out, err := compression.Compress(algo, payload)
	if err != nil {
		return nil, err
	}
	if encrypt {
		return s.sealer.Seal(artifactID, index, out)
	}
	return out, nil
}

// decodeShard reverses encodeShard using the settings recorded in m.
func (s *Service) decodeShard(m *types.ArtifactManifest, index int, stored []byte) ([]byte, error) {
	if m.Encrypted {
		if s.sealer == nil {
			return nil, newError(InvalidConfig, m.ArtifactID, errors.New("artifact is encrypted but no encryption key is configured"))
		}
		opened, err := s.sealer.Open(m.ArtifactID, index, stored)
		if err != nil {
			return nil, shardError(ShardCorrupted, m.ArtifactID, index, err)
		}
		stored = opened
	}

	algo, err := compression.ParseAlgorithm(m.Compression)
	if err != nil {
		return nil, newError(ArtifactCorrupted, m.ArtifactID, err)
	}
	out, err := compression.Decompress(algo, stored)
	if err != nil {
		return nil, shardError(ShardCorrupted, m.ArtifactID, index, err)
	}
	return out, nil
}

// reportIntegrity sends integrity failures to Sentry. Without a configured
// client this is a no-op.
func reportIntegrity(ctx context.Context, err error) {
	kind := KindOf(err)
	if kind != ShardCorrupted && kind != ArtifactCorrupted {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		var e *Error
		if errors.As(err, &e) {
			scope.SetTag("artifact_id", e.ArtifactID)
			scope.SetTag("kind", e.Kind.String())
		}
		if id := zctx.OperationID(ctx); id != "" {
			scope.SetTag("op_id", id)
		}
		hub.CaptureException(err)
	})
}
