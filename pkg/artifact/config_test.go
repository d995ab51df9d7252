// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Configuration
// ============================================================================

func TestNewService_InvalidConfig(t *testing.T) {
	t.Parallel()

	mgr := backend.NewManager()
	require.NoError(t, mgr.AddMemory("mem"))
	t.Cleanup(func() { mgr.Close() })

	tests := []struct {
		name   string
		mutate func(c *types.ShardingConfig)
	}{
		{"zero shard size", func(c *types.ShardingConfig) { c.ShardSize = 0 }},
		{"negative threshold", func(c *types.ShardingConfig) { c.MinSizeForSharding = -1 }},
		{"unknown backend", func(c *types.ShardingConfig) { c.StorageBackend = "nowhere" }},
		{"unknown compression", func(c *types.ShardingConfig) {
			c.CompressionEnabled = true
			c.CompressionAlgorithm = "brotli"
		}},
		{"compression without algorithm", func(c *types.ShardingConfig) {
			c.CompressionEnabled = true
			c.CompressionAlgorithm = "none"
		}},
		{"encryption without key", func(c *types.ShardingConfig) { c.EncryptionEnabled = true }},
		{"zero concurrency", func(c *types.ShardingConfig) { c.WriteConcurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(&cfg)

			svc, err := NewService(mgr, cfg)
			assert.Nil(t, svc)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestUpdateConfig(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, testConfig(), []string{"other"})

	cfg, err := svc.UpdateConfig(types.ShardingConfigUpdate{
		ShardSize:            ptr(int64(10)),
		StorageBackend:       ptr("other"),
		CompressionEnabled:   ptr(true),
		CompressionAlgorithm: ptr("s2"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), cfg.ShardSize)
	assert.Equal(t, "other", cfg.StorageBackend)
	assert.Equal(t, int64(testThreshold), cfg.MinSizeForSharding)
	assert.Equal(t, cfg, svc.Config())
}

func TestUpdateConfig_InvalidLeavesConfigUnchanged(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, testConfig(), nil)
	before := svc.Config()

	updates := []types.ShardingConfigUpdate{
		{ShardSize: ptr(int64(-5))},
		{MinSizeForSharding: ptr(int64(-1))},
		{StorageBackend: ptr("missing")},
		{CompressionEnabled: ptr(true), CompressionAlgorithm: ptr("gzip")},
		{EncryptionEnabled: ptr(true)},
		{ShardSize: ptr(int64(20)), StorageBackend: ptr("missing")},
	}
	for i, u := range updates {
		got, err := svc.UpdateConfig(u)
		assert.ErrorIs(t, err, ErrInvalidConfig, "update %d", i)
		assert.Equal(t, before, got)
		assert.Equal(t, before, svc.Config())
	}
}

func TestUpdateConfig_AppliesToNextShard(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, testConfig(), nil)
	ctx := context.Background()

	res, err := svc.Shard(ctx, payload(100), "before", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Manifest.TotalShards)

	_, err = svc.UpdateConfig(types.ShardingConfigUpdate{ShardSize: ptr(int64(25))})
	require.NoError(t, err)

	res, err = svc.Shard(ctx, payload(100), "after", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Manifest.TotalShards)

	// Existing manifests keep their recorded shard size
	m, err := svc.GetManifest(ctx, "before")
	require.NoError(t, err)
	assert.Equal(t, int64(testShardSize), m.ShardSize)
	got, err := svc.Reassemble(ctx, "before")
	require.NoError(t, err)
	assert.Equal(t, payload(100), got)
}

func TestUpdateConfig_Concurrent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, testConfig(), nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 50 {
			_, _ = svc.UpdateConfig(types.ShardingConfigUpdate{ShardSize: ptr(int64(25 + i%2*25))})
		}
	}()

	for i := range 20 {
		id := fmt.Sprintf("c%d", i)
		data := payload(160 + i)
		_, err := svc.Shard(ctx, data, id, nil)
		require.NoError(t, err)
		got, err := svc.Reassemble(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
	<-done
}

// ============================================================================
// Errors
// ============================================================================

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := shardError(ShardCorrupted, "art", 3, cause)

	assert.Equal(t, "artifact art: shard_corrupted (shard 3): boom", err.Error())
	assert.ErrorIs(t, err, ErrShardCorrupted)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrArtifactCorrupted)
	assert.ErrorIs(t, err, &Error{Kind: ShardCorrupted, ArtifactID: "art"})
	assert.NotErrorIs(t, err, &Error{Kind: ShardCorrupted, ArtifactID: "other"})

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, ShardCorrupted, KindOf(wrapped))
	assert.Equal(t, KindUnknown, KindOf(cause))
	assert.Equal(t, KindUnknown, KindOf(nil))

	assert.Equal(t, "invalid_config", newError(InvalidConfig, "", nil).Error())
	assert.Equal(t, "artifact x: artifact_not_found", newError(ArtifactNotFound, "x", nil).Error())
}

func TestKindString(t *testing.T) {
	t.Parallel()

	kinds := map[Kind]string{
		KindUnknown:        "unknown",
		ShardWriteFailed:   "shard_write_failed",
		ArtifactNotFound:   "artifact_not_found",
		ShardCorrupted:     "shard_corrupted",
		ArtifactCorrupted:  "artifact_corrupted",
		BackendUnavailable: "backend_unavailable",
		InvalidConfig:      "invalid_config",
	}
	for k, want := range kinds {
		assert.Equal(t, want, k.String())
	}
}

func TestManifestError(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, manifestError("a", context.Canceled), context.Canceled)
	assert.Equal(t, KindUnknown, KindOf(manifestError("a", context.DeadlineExceeded)))
	assert.Equal(t, BackendUnavailable, KindOf(manifestError("a", errors.New("connection refused"))))
}
