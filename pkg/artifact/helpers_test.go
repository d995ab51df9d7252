// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// Sizes in tests are small so boundaries are easy to reason about:
// shards of 50 bytes, sharding from 100 bytes.
const (
	testShardSize = 50
	testThreshold = 100
)

func testConfig() types.ShardingConfig {
	cfg := types.DefaultShardingConfig()
	cfg.ShardSize = testShardSize
	cfg.MinSizeForSharding = testThreshold
	cfg.StorageBackend = "mem"
	return cfg
}

// newTestService returns a service writing to a memory backend named "mem".
// extra names additional memory backends to register.
func newTestService(t *testing.T, cfg types.ShardingConfig, extra []string, opts ...Option) (*Service, *backend.Manager) {
	t.Helper()

	mgr := backend.NewManager()
	require.NoError(t, mgr.AddMemory("mem"))
	for _, id := range extra {
		require.NoError(t, mgr.AddMemory(id))
	}

	svc, err := NewService(mgr, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		svc.Close()
		mgr.Close()
	})
	return svc, mgr
}

func memOf(t *testing.T, mgr *backend.Manager, id string) *backend.MemoryStorage {
	t.Helper()
	b, ok := mgr.Get(id)
	require.True(t, ok)
	mem, ok := b.(*backend.MemoryStorage)
	require.True(t, ok)
	return mem
}

// payload returns n deterministic, poorly compressible bytes.
func payload(n int) []byte {
	data := make([]byte, n)
	x := uint32(2463534242)
	for i := range data {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		data[i] = byte(x)
	}
	return data
}

func readRaw(t *testing.T, b types.BackendStorage, key string) []byte {
	t.Helper()
	rc, err := b.Read(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

var errInjected = errors.New("injected failure")

// faultyBackend fails writes or deletes of selected keys. writeGate, when
// set, runs before every write.
type faultyBackend struct {
	types.BackendStorage

	mu         sync.Mutex
	failWrite  map[string]bool
	failDelete map[string]bool
	failReads  bool
	writeGate  func(key string)
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{
		BackendStorage: backend.NewMemoryStorage(),
		failWrite:      map[string]bool{},
		failDelete:     map[string]bool{},
	}
}

func (f *faultyBackend) Write(ctx context.Context, key string, data io.Reader, size int64) error {
	f.mu.Lock()
	fail := f.failWrite[key]
	gate := f.writeGate
	f.mu.Unlock()
	if gate != nil {
		gate(key)
	}
	if fail {
		return errInjected
	}
	return f.BackendStorage.Write(ctx, key, data, size)
}

func (f *faultyBackend) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.BackendStorage.Read(ctx, key)
}

func (f *faultyBackend) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failDelete[key]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.BackendStorage.Delete(ctx, key)
}

func (f *faultyBackend) keys(prefix string) []string {
	return f.BackendStorage.(*backend.MemoryStorage).Keys(prefix)
}
