// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/checksum"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

// Reassemble reads every shard in index order, verifies each one and the
// whole artifact, and returns the original bytes. Nothing is returned unless
// every check passes.
func (s *Service) Reassemble(ctx context.Context, artifactID string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.ReassembleTo(ctx, artifactID, &buf); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return []byte{}, nil
	}
	return buf.Bytes(), nil
}

// ReassembleTo is Reassemble writing verified shards to w as it goes, so at
// most one shard is held in memory. Because the whole-artifact checksum can
// only be checked at the end, w may have received data when an
// ArtifactCorrupted error is returned; callers must discard it.
func (s *Service) ReassembleTo(ctx context.Context, artifactID string, w io.Writer) (int64, error) {
	start := time.Now()
	n, err := s.reassembleTo(ctx, artifactID, w)
	OperationDuration.WithLabelValues("reassemble").Observe(time.Since(start).Seconds())
	if err != nil {
		recordFailure("reassemble", err)
		reportIntegrity(ctx, err)
		logger.Ctx(ctx).Warn().Err(err).Str("artifact_id", artifactID).Msg("reassemble failed")
	}
	return n, err
}

func (s *Service) reassembleTo(ctx context.Context, artifactID string, w io.Writer) (int64, error) {
	m, err := s.GetManifest(ctx, artifactID)
	if err != nil {
		return 0, err
	}
	b, err := s.backendFor(m)
	if err != nil {
		return 0, err
	}

	hasher := checksum.NewHasher()
	defer hasher.Release()

	var written int64
	for _, sh := range orderedShards(m) {
		payload, err := s.readShard(ctx, b, m, sh)
		if err != nil {
			return written, err
		}
		if !checksum.Verify(payload, sh.Checksum) {
			return written, shardError(ShardCorrupted, artifactID, sh.Index, errors.New("checksum mismatch"))
		}

		hasher.Write(payload)
		n, err := w.Write(payload)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("artifact %s: write output: %w", artifactID, err)
		}
	}

	if got := hasher.Sum(); got != m.Checksum {
		return written, newError(ArtifactCorrupted, artifactID,
			fmt.Errorf("artifact checksum mismatch: manifest %s, computed %s", m.Checksum, got))
	}
	return written, nil
}

// orderedShards returns the manifest's shards by ascending index, regardless
// of the order they are listed in.
func orderedShards(m *types.ArtifactManifest) []types.ShardMetadata {
	return slices.SortedFunc(slices.Values(m.Shards), func(a, b types.ShardMetadata) int {
		return cmp.Compare(a.Index, b.Index)
	})
}

// readShard fetches and decodes one shard. A missing object or an
// undecodable payload is ShardCorrupted for that index; any other backend
// error is BackendUnavailable. Cancellation is returned as is.
func (s *Service) readShard(ctx context.Context, b types.BackendStorage, m *types.ArtifactManifest, sh types.ShardMetadata) ([]byte, error) {
	rc, err := b.Read(ctx, sh.Path)
	if err != nil {
		return nil, readError(ctx, m.ArtifactID, sh.Index, err)
	}
	defer rc.Close()

	stored, err := io.ReadAll(rc)
	if err != nil {
		return nil, readError(ctx, m.ArtifactID, sh.Index, err)
	}
	return s.decodeShard(m, sh.Index, stored)
}

func readError(ctx context.Context, artifactID string, index int, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("artifact %s: %w", artifactID, ctx.Err())
	case errors.Is(err, backend.ErrNotFound):
		return shardError(ShardCorrupted, artifactID, index, err)
	default:
		return shardError(BackendUnavailable, artifactID, index, err)
	}
}
