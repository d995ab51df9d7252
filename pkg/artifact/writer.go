// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/checksum"
	"github.com/LeeDigitalWorks/zapartifact/pkg/compression"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/sharding"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// validateID rejects ids that would not map to exactly one directory on
// every backend.
func validateID(artifactID string) error {
	switch {
	case artifactID == "":
		return errors.New("artifact id is required")
	case artifactID == "." || artifactID == "..":
		return fmt.Errorf("invalid artifact id %q", artifactID)
	case strings.ContainsAny(artifactID, "/\\"):
		return fmt.Errorf("artifact id %q must not contain path separators", artifactID)
	}
	return nil
}

// Shard splits data according to the current configuration, writes every
// shard and then the manifest. On failure the result has Success=false and
// the same *Error is returned; no manifest referencing a failed shard is
// ever persisted. Shards already written by a failed call are removed on a
// best-effort basis.
func (s *Service) Shard(ctx context.Context, data []byte, artifactID string, opts *types.ShardOptions) (*types.ShardUploadResult, error) {
	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("shard").Observe(time.Since(start).Seconds())
	}()

	result := &types.ShardUploadResult{ArtifactID: artifactID}
	fail := func(err error) (*types.ShardUploadResult, error) {
		recordFailure("shard", err)
		result.Success = false
		result.Manifest = nil
		result.Error = err
		return result, err
	}

	if err := validateID(artifactID); err != nil {
		return fail(newError(ShardWriteFailed, artifactID, err))
	}

	defer s.writes.beginWrite(artifactID)()

	cfg := s.Config()
	b, ok := s.backends.Get(cfg.StorageBackend)
	if !ok {
		return fail(newError(ShardWriteFailed, artifactID, fmt.Errorf("storage backend %q is not registered", cfg.StorageBackend)))
	}

	ctx = logger.WithArtifact(ctx, artifactID)
	size := int64(len(data))
	sharded := sharding.ShouldShard(size, cfg)
	result.Sharded = sharded

	var ranges []sharding.Range
	shardSize := size
	if sharded {
		shardSize = cfg.ShardSize
		ranges = sharding.Ranges(size, shardSize)
	} else {
		ranges = []sharding.Range{{Index: 0, Offset: 0, Length: size}}
	}

	algo := compressionFor(cfg)
	encrypt := cfg.EncryptionEnabled && s.sealer != nil
	now := s.now().UTC()

	m := &types.ArtifactManifest{
		ArtifactID:     artifactID,
		OriginalSize:   size,
		ShardSize:      shardSize,
		TotalShards:    len(ranges),
		Shards:         make([]types.ShardMetadata, len(ranges)),
		Checksum:       checksum.Digest(data),
		StorageBackend: cfg.StorageBackend,
		Sharded:        sharded,
		Encrypted:      encrypt,
		CreatedAt:      now,
	}
	if algo != compression.None {
		m.Compression = algo.String()
	}
	if opts != nil {
		m.OriginalName = opts.OriginalName
		m.MimeType = opts.MimeType
		m.CreatedBy = opts.CreatedBy
		m.Metadata = opts.Metadata
	}

	var (
		writtenMu sync.Mutex
		written   []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.WriteConcurrency)
	for _, r := range ranges {
		path := types.ShardPath(artifactID, r.Index)
		if !sharded {
			path = types.UnshardedPath(artifactID)
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return shardError(ShardWriteFailed, artifactID, r.Index, err)
			}

			payload := data[r.Offset:r.End()]
			stored, err := s.encodeShard(artifactID, r.Index, algo, encrypt, payload)
			if err != nil {
				return shardError(ShardWriteFailed, artifactID, r.Index, fmt.Errorf("encode: %w", err))
			}

			if err := b.Write(gctx, path, bytes.NewReader(stored), int64(len(stored))); err != nil {
				return shardError(ShardWriteFailed, artifactID, r.Index, err)
			}

			writtenMu.Lock()
			written = append(written, path)
			writtenMu.Unlock()

			m.Shards[r.Index] = types.ShardMetadata{
				ShardID:    uuid.NewString(),
				Index:      r.Index,
				Size:       r.Length,
				StoredSize: int64(len(stored)),
				Checksum:   checksum.Digest(payload),
				Path:       path,
				CreatedAt:  s.now().UTC(),
			}
			ShardsWritten.Inc()
			logger.Ctx(gctx).Debug().Int("shard_index", r.Index).Str("size", humanize.IBytes(uint64(r.Length))).Msg("shard written")
			return nil
		})
	}

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = newError(ShardWriteFailed, artifactID, ctx.Err())
	}
	if err == nil {
		if serr := s.manifests.Save(ctx, m); serr != nil {
			err = newError(ShardWriteFailed, artifactID, fmt.Errorf("persist manifest: %w", serr))
		}
	}
	if err != nil {
		s.cleanup(ctx, cfg.StorageBackend, artifactID, b, written)
		logger.Ctx(ctx).Error().Err(err).Str("backend_id", cfg.StorageBackend).Msg("shard failed")
		return fail(err)
	}

	layout := "unsharded"
	if sharded {
		layout = "sharded"
	}
	ArtifactsWritten.WithLabelValues(layout).Inc()
	BytesWritten.WithLabelValues("original").Add(float64(size))
	BytesWritten.WithLabelValues("stored").Add(float64(m.StoredBytes()))

	logger.Ctx(ctx).Info().
		Str("backend_id", cfg.StorageBackend).
		Str("size", humanize.IBytes(uint64(size))).
		Int("total_shards", m.TotalShards).
		Bool("sharded", sharded).
		Msg("artifact stored")

	result.Success = true
	result.Manifest = m.Clone()
	return result, nil
}

// cleanup removes shard objects written by a failed Shard call. It runs even
// when ctx is canceled; objects it cannot remove go to the orphan queue.
func (s *Service) cleanup(ctx context.Context, backendID, artifactID string, b types.BackendStorage, paths []string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var left []string
	for _, p := range paths {
		if err := b.Delete(cctx, p); err != nil {
			left = append(left, p)
			logger.Ctx(ctx).Warn().Err(err).Str("path", p).Msg("cleanup of partial shard failed")
		}
	}
	s.queueOrphans(cctx, backendID, artifactID, left)
}
