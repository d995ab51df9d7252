// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
)

// Delete removes every shard of an artifact and then its manifest. It
// reports whether a manifest was found; deleting an unknown id returns
// (false, nil). A manifest whose recorded backend is not registered is
// reported as found and left in place with a BackendUnavailable error.
//
// Shard deletions are best effort: a failure is logged, counted in
// DeleteSkipped and handed to the orphan queue, and the remaining shards and
// the manifest are still removed.
func (s *Service) Delete(ctx context.Context, artifactID string) (bool, error) {
	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	}()

	m, err := s.GetManifest(ctx, artifactID)
	if errors.Is(err, ErrArtifactNotFound) {
		return false, nil
	}
	if err != nil {
		recordFailure("delete", err)
		return false, err
	}

	b, err := s.backendFor(m)
	if err != nil {
		recordFailure("delete", err)
		return true, err
	}

	ctx = logger.WithArtifact(ctx, artifactID)
	var skipped []string
	for _, sh := range m.Shards {
		if err := b.Delete(ctx, sh.Path); err != nil {
			skipped = append(skipped, sh.Path)
			DeleteSkipped.Inc()
			logger.Ctx(ctx).Warn().Err(err).Int("shard_index", sh.Index).Str("path", sh.Path).Msg("shard delete failed, skipping")
		}
	}

	if err := s.manifests.Delete(ctx, m); err != nil {
		err = newError(BackendUnavailable, artifactID, err)
		recordFailure("delete", err)
		return true, err
	}

	s.queueOrphans(ctx, m.StorageBackend, artifactID, skipped)

	logger.Ctx(ctx).Info().
		Str("backend_id", m.StorageBackend).
		Int("total_shards", m.TotalShards).
		Int("skipped", len(skipped)).
		Msg("artifact deleted")
	return true, nil
}
