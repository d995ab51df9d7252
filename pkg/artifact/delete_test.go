// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"testing"

	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Delete
// ============================================================================

func TestDelete(t *testing.T) {
	t.Parallel()

	svc, mgr := newTestService(t, testConfig(), nil)
	ctx := context.Background()

	_, err := svc.Shard(ctx, payload(260), "doomed", nil)
	require.NoError(t, err)
	_, err = svc.Shard(ctx, payload(30), "kept", nil)
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, "doomed")
	require.NoError(t, err)
	assert.True(t, deleted)

	mem := memOf(t, mgr, "mem")
	assert.Empty(t, mem.Keys("doomed/"))
	assert.NotEmpty(t, mem.Keys("kept/"))

	_, err = svc.GetManifest(ctx, "doomed")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	_, err = svc.Reassemble(ctx, "doomed")
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	deleted, err = svc.Delete(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDelete_Unknown(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, testConfig(), nil)

	deleted, err := svc.Delete(context.Background(), "never-stored")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDelete_ShardFailureSkipped(t *testing.T) {
	t.Parallel()

	svc, mgr := newTestService(t, testConfig(), nil)
	faulty := newFaultyBackend()
	mgr.AddStorage("faulty", faulty)
	_, err := svc.UpdateConfig(types.ShardingConfigUpdate{StorageBackend: ptr("faulty")})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Shard(ctx, payload(200), "sticky", nil)
	require.NoError(t, err)

	faulty.mu.Lock()
	faulty.failDelete[types.ShardPath("sticky", 1)] = true
	faulty.mu.Unlock()

	before := counterValue(t, DeleteSkipped)
	deleted, err := svc.Delete(ctx, "sticky")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.GreaterOrEqual(t, counterValue(t, DeleteSkipped)-before, 1.0)

	assert.Equal(t, []string{types.ShardPath("sticky", 1)}, faulty.keys("sticky/"))

	deleted, err = svc.Delete(ctx, "sticky")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDelete_ManifestFailure(t *testing.T) {
	t.Parallel()

	svc, mgr := newTestService(t, testConfig(), nil)
	faulty := newFaultyBackend()
	mgr.AddStorage("faulty", faulty)
	_, err := svc.UpdateConfig(types.ShardingConfigUpdate{StorageBackend: ptr("faulty")})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Shard(ctx, payload(120), "pinned", nil)
	require.NoError(t, err)

	faulty.mu.Lock()
	faulty.failDelete[types.ManifestPath("pinned")] = true
	faulty.mu.Unlock()

	deleted, err := svc.Delete(ctx, "pinned")
	assert.True(t, deleted)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, errInjected)
}

func TestDelete_RecordedBackendUnregistered(t *testing.T) {
	t.Parallel()

	svc, mgr := newTestService(t, testConfig(), []string{"old"})
	ctx := context.Background()

	_, err := svc.UpdateConfig(types.ShardingConfigUpdate{StorageBackend: ptr("old")})
	require.NoError(t, err)
	_, err = svc.Shard(ctx, payload(10), "stranded", nil)
	require.NoError(t, err)
	_, err = svc.UpdateConfig(types.ShardingConfigUpdate{StorageBackend: ptr("mem")})
	require.NoError(t, err)
	require.NoError(t, mgr.Remove("old"))

	deleted, err := svc.Delete(ctx, "stranded")
	assert.True(t, deleted, "the manifest was found even though its backend is gone")
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	m, err := svc.GetManifest(ctx, "stranded")
	require.NoError(t, err, "nothing is removed when the backend is unavailable")
	assert.Equal(t, "old", m.StorageBackend)
}

// ============================================================================
// Stats
// ============================================================================

func TestStats(t *testing.T) {
	t.Parallel()

	const unit = 1024
	cfg := testConfig()
	cfg.MinSizeForSharding = 100 * unit
	cfg.ShardSize = 50 * unit
	svc, _ := newTestService(t, cfg, nil)
	ctx := context.Background()

	for i, size := range []int{10 * unit, 150 * unit, 300 * unit} {
		_, err := svc.Shard(ctx, payload(size), string(rune('a'+i)), nil)
		require.NoError(t, err)
	}

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Stats{
		TotalArtifacts:           3,
		TotalShards:              10,
		TotalSizeBytes:           460 * unit,
		AverageShardsPerArtifact: 10.0 / 3.0,
	}, st)

	deleted, err := svc.Delete(ctx, "c")
	require.NoError(t, err)
	require.True(t, deleted)

	st, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalArtifacts)
	assert.Equal(t, 4, st.TotalShards)
	assert.InDelta(t, 2.0, st.AverageShardsPerArtifact, 1e-9)
}

func TestStats_Empty(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, testConfig(), nil)

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Stats{}, st)
}

func TestStats_AfterWarm(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, testConfig(), nil)
	ctx := context.Background()

	for _, id := range []string{"x", "y"} {
		_, err := svc.Shard(ctx, payload(150), id, nil)
		require.NoError(t, err)
	}
	for _, id := range []string{"x", "y"} {
		svc.Manifests().Evict(ctx, id)
	}

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.TotalArtifacts)

	n, err := svc.Manifests().Warm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalArtifacts)
	assert.Equal(t, 6, st.TotalShards)
}
