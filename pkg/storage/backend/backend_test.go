// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Registry Tests
// ============================================================================

func TestRegister_CustomType(t *testing.T) {
	t.Parallel()

	customType := types.StorageType("test-custom")

	Register(customType, func(cfg types.BackendConfig) (types.BackendStorage, error) {
		return NewMemoryStorage(), nil
	})

	backend, err := New(types.BackendConfig{Type: customType})
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.Equal(t, StorageTypeMemory, backend.Type())
}

func TestNew_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := New(types.BackendConfig{Type: "unknown-type"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}

func TestNew_ObjectStoresRequireBucket(t *testing.T) {
	t.Parallel()

	for _, st := range []types.StorageType{types.StorageTypeS3, types.StorageTypeGCS, types.StorageTypeAzure} {
		_, err := New(types.BackendConfig{Type: st})
		require.Error(t, err, "type %s", st)
		assert.Contains(t, err.Error(), "required", "type %s", st)
	}
}

func TestNew_AzureRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := New(types.BackendConfig{Type: types.StorageTypeAzure, Bucket: "artifacts"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account name and key")
}

func TestNew_S3WithStaticCredentials(t *testing.T) {
	t.Parallel()

	backend, err := New(types.BackendConfig{
		Type:      types.StorageTypeS3,
		Bucket:    "artifacts",
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	defer backend.Close()
	assert.Equal(t, types.StorageTypeS3, backend.Type())
}

func TestCleanKey(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"a1/shard_0000":     "a1/shard_0000",
		"/a1/manifest.json": "a1/manifest.json",
		"a1/data":           "a1/data",
	}
	for in, want := range valid {
		got, err := cleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "/", "../escape", "a/../../b", "a//b", "a/./b", `a\b`} {
		_, err := cleanKey(in)
		assert.ErrorIs(t, err, ErrInvalidKey, "key %q", in)
	}
}

// ============================================================================
// Manager Tests
// ============================================================================

func TestManager_Add_Memory(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	require.NoError(t, mgr.AddMemory("test-mem"))

	backend, ok := mgr.Get("test-mem")
	assert.True(t, ok)
	require.NotNil(t, backend)
	assert.Equal(t, StorageTypeMemory, backend.Type())

	cfg, ok := mgr.Config("test-mem")
	assert.True(t, ok)
	assert.Equal(t, StorageTypeMemory, cfg.Type)
}

func TestManager_Add_UnknownType(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	err := mgr.Add("test", types.BackendConfig{Type: "invalid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}

func TestManager_Add_ReplacesExisting(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	require.NoError(t, mgr.AddMemory("test"))

	backend1, ok := mgr.Get("test")
	require.True(t, ok)
	require.NoError(t, backend1.Write(context.Background(), "key1", strings.NewReader("data1"), 5))

	require.NoError(t, mgr.AddMemory("test"))

	backend2, ok := mgr.Get("test")
	require.True(t, ok)
	exists, err := backend2.Exists(context.Background(), "key1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManager_AddStorage(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	mem := NewMemoryStorage()
	mgr.AddStorage("shared", mem)

	got, ok := mgr.Get("shared")
	require.True(t, ok)
	assert.Same(t, mem, got)
}

func TestManager_RemoveAndList(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	for _, id := range []string{"gcs", "azure", "local"} {
		require.NoError(t, mgr.AddMemory(id))
	}
	assert.Equal(t, []string{"azure", "gcs", "local"}, mgr.List())

	require.NoError(t, mgr.Remove("gcs"))
	require.NoError(t, mgr.Remove("missing"))
	assert.Equal(t, []string{"azure", "local"}, mgr.List())

	_, ok := mgr.Get("gcs")
	assert.False(t, ok)

	require.NoError(t, mgr.Close())
	assert.Empty(t, mgr.List())
}

func TestManager_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("backend-%d", i%5)
			_ = mgr.AddMemory(id)
			mgr.Get(id)
			mgr.List()
		}(i)
	}
	wg.Wait()

	assert.Len(t, mgr.List(), 5)
}

// ============================================================================
// Contract Tests (every backend type; object stores run against in-process servers)
// ============================================================================

func contractBackends(t *testing.T) map[string]types.BackendStorage {
	t.Helper()

	local, err := NewLocal(types.BackendConfig{Path: t.TempDir()})
	require.NoError(t, err)

	return map[string]types.BackendStorage{
		"memory": NewMemoryStorage(),
		"local":  local,
		"s3":     newFakeS3Backend(t),
		"gcs":    newFakeGCSBackend(t),
		"azure":  newFakeAzureBackend(t),
	}
}

func TestContract_WriteReadDelete(t *testing.T) {
	t.Parallel()

	for name, backend := range contractBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("shard payload")

			require.NoError(t, backend.Write(ctx, "art-1/shard_0000", bytes.NewReader(data), int64(len(data))))

			rc, err := backend.Read(ctx, "art-1/shard_0000")
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Equal(t, data, got)

			size, err := backend.Size(ctx, "art-1/shard_0000")
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), size)

			exists, err := backend.Exists(ctx, "art-1/shard_0000")
			require.NoError(t, err)
			assert.True(t, exists)

			require.NoError(t, backend.Delete(ctx, "art-1/shard_0000"))
			require.NoError(t, backend.Delete(ctx, "art-1/shard_0000"), "deleting a missing key is not an error")

			exists, err = backend.Exists(ctx, "art-1/shard_0000")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestContract_NotFound(t *testing.T) {
	t.Parallel()

	for name, backend := range contractBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := backend.Read(ctx, "missing/data")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = backend.ReadRange(ctx, "missing/data", 0, 10)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = backend.Size(ctx, "missing/data")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestContract_ReadRange(t *testing.T) {
	t.Parallel()

	for name, backend := range contractBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("0123456789")
			require.NoError(t, backend.Write(ctx, "r/data", bytes.NewReader(data), int64(len(data))))

			rc, err := backend.ReadRange(ctx, "r/data", 2, 5)
			require.NoError(t, err)
			got, _ := io.ReadAll(rc)
			rc.Close()
			assert.Equal(t, []byte("23456"), got)

			rc, err = backend.ReadRange(ctx, "r/data", 7, 0)
			require.NoError(t, err)
			got, _ = io.ReadAll(rc)
			rc.Close()
			assert.Equal(t, []byte("789"), got, "zero length reads to the end")
		})
	}
}

func TestContract_Overwrite(t *testing.T) {
	t.Parallel()

	for name, backend := range contractBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, backend.Write(ctx, "o/manifest.json", strings.NewReader("first version, longer"), 21))
			require.NoError(t, backend.Write(ctx, "o/manifest.json", strings.NewReader("second"), 6))

			rc, err := backend.Read(ctx, "o/manifest.json")
			require.NoError(t, err)
			got, _ := io.ReadAll(rc)
			rc.Close()
			assert.Equal(t, "second", string(got))
		})
	}
}

func TestContract_EmptyObject(t *testing.T) {
	t.Parallel()

	for name, backend := range contractBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, backend.Write(ctx, "empty/data", bytes.NewReader(nil), 0))

			rc, err := backend.Read(ctx, "empty/data")
			require.NoError(t, err)
			got, _ := io.ReadAll(rc)
			rc.Close()
			assert.Empty(t, got)
		})
	}
}

func TestContract_InvalidKey(t *testing.T) {
	t.Parallel()

	for name, backend := range contractBackends(t) {
		t.Run(name, func(t *testing.T) {
			err := backend.Write(context.Background(), "../escape", strings.NewReader("x"), 1)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestContract_CanceledWrite(t *testing.T) {
	t.Parallel()

	for name, backend := range contractBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := backend.Write(ctx, "c/data", strings.NewReader("x"), 1)
			require.Error(t, err)
			switch backend.Type() {
			case StorageTypeMemory, types.StorageTypeLocal:
				assert.ErrorIs(t, err, context.Canceled)
			}

			exists, err := backend.Exists(context.Background(), "c/data")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

// ============================================================================
// Local Storage Tests
// ============================================================================

func TestLocal_NewLocal_NoPath(t *testing.T) {
	t.Parallel()

	_, err := NewLocal(types.BackendConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path required")
}

func TestLocal_LayoutOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b, err := NewLocal(types.BackendConfig{Path: dir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "art/shard_0001", strings.NewReader("abc"), 3))

	content, err := os.ReadFile(filepath.Join(dir, "art", "shard_0001"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(content))

	entries, err := os.ReadDir(filepath.Join(dir, "art"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files left behind")
}

func TestLocal_DeleteRemovesEmptyArtifactDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b, err := NewLocal(types.BackendConfig{Path: dir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "art/shard_0000", strings.NewReader("a"), 1))
	require.NoError(t, b.Write(ctx, "art/shard_0001", strings.NewReader("b"), 1))

	require.NoError(t, b.Delete(ctx, "art/shard_0000"))
	_, err = os.Stat(filepath.Join(dir, "art"))
	require.NoError(t, err, "directory still holds a shard")

	require.NoError(t, b.Delete(ctx, "art/shard_0001"))
	_, err = os.Stat(filepath.Join(dir, "art"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(dir)
	assert.NoError(t, err, "base path is never removed")
}

func TestLocal_ShortWriteAfterPreallocation(t *testing.T) {
	t.Parallel()

	b, err := NewLocal(types.BackendConfig{Path: t.TempDir()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "p/data", strings.NewReader("abc"), 100))

	size, err := b.Size(ctx, "p/data")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestLocal_FailedWriteLeavesNoObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b, err := NewLocal(types.BackendConfig{Path: dir})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "f/data", strings.NewReader("original"), 8))

	err = b.Write(ctx, "f/data", failingReader{}, 10)
	require.Error(t, err)

	rc, err := b.Read(ctx, "f/data")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "original", string(got), "failed write keeps the previous object")

	entries, err := os.ReadDir(filepath.Join(dir, "f"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// ============================================================================
// Memory Storage Tests
// ============================================================================

func TestMemoryStorage_KeysAndCorrupt(t *testing.T) {
	t.Parallel()

	m := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, m.Write(ctx, "b/shard_0001", strings.NewReader("xy"), 2))
	require.NoError(t, m.Write(ctx, "b/shard_0000", strings.NewReader("ab"), 2))
	require.NoError(t, m.Write(ctx, "c/data", strings.NewReader("z"), 1))

	assert.Equal(t, []string{"b/shard_0000", "b/shard_0001"}, m.Keys("b/"))

	assert.True(t, m.Corrupt("b/shard_0000", 1))
	assert.False(t, m.Corrupt("b/shard_0000", 5))
	assert.False(t, m.Corrupt("missing", 0))

	rc, err := m.Read(ctx, "b/shard_0000")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, []byte{'a', 'b' ^ 0xFF}, got)
}
