// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"

	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

// StreamChunk is one shard delivered by a ShardStream.
type StreamChunk struct {
	Index    int
	Total    int
	Data     []byte
	Checksum string // Recorded shard digest, not verified by the stream
}

// ShardStream delivers an artifact's shards in ascending index order.
//
// Chunks are NOT checksum verified; callers that need integrity must check
// each chunk against StreamChunk.Checksum (checksum.Verify) or use
// Reassemble. The channel is unbuffered, so the producer holds at most one
// shard while the consumer processes the previous one.
//
// A stream is consumed once. After the channel closes, ranging over it again
// yields nothing; call Stream again to start over.
type ShardStream struct {
	Manifest *types.ArtifactManifest

	ch     chan StreamChunk
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// Stream resolves the manifest and starts producing shards. Errors resolving
// the manifest or its backend are returned directly; errors while reading
// shards end the stream and are reported by Err.
func (s *Service) Stream(ctx context.Context, artifactID string) (*ShardStream, error) {
	m, err := s.GetManifest(ctx, artifactID)
	if err != nil {
		recordFailure("stream", err)
		return nil, err
	}
	b, err := s.backendFor(m)
	if err != nil {
		recordFailure("stream", err)
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	st := &ShardStream{
		Manifest: m,
		ch:       make(chan StreamChunk),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		defer close(st.done)
		defer close(st.ch)

		shards := orderedShards(m)
		for _, sh := range shards {
			if err := sctx.Err(); err != nil {
				st.err = err
				return
			}
			data, err := s.readShard(sctx, b, m, sh)
			if err != nil {
				st.err = err
				recordFailure("stream", err)
				logger.Ctx(sctx).Warn().Err(err).Str("artifact_id", artifactID).Int("shard_index", sh.Index).Msg("stream aborted")
				return
			}

			select {
			case st.ch <- StreamChunk{Index: sh.Index, Total: len(shards), Data: data, Checksum: sh.Checksum}:
			case <-sctx.Done():
				st.err = sctx.Err()
				return
			}
		}
	}()

	return st, nil
}

// C returns the chunk channel. It is closed after the last shard or on error.
func (st *ShardStream) C() <-chan StreamChunk {
	return st.ch
}

// Err returns the error that ended the stream, or nil if every shard was
// delivered. It waits for the producer to exit, so call it after C is closed
// or after Close.
func (st *ShardStream) Err() error {
	<-st.done
	return st.err
}

// Close abandons the stream and waits for the producer to exit.
// It is safe to call after the stream has finished.
func (st *ShardStream) Close() {
	st.cancel()
	<-st.done
}
