// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend provides storage backend implementations.
// All backends implement types.BackendStorage interface.
package backend

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

var (
	// ErrNotFound is wrapped by every backend when a key does not exist
	ErrNotFound = errors.New("key not found")

	// ErrInvalidKey is returned for keys that are empty or escape the backend root
	ErrInvalidKey = errors.New("invalid key")
)

// Registry holds registered backend factories
var (
	registryMu sync.RWMutex
	registry   = make(map[types.StorageType]Factory)
)

// Factory creates a BackendStorage from config
type Factory func(cfg types.BackendConfig) (types.BackendStorage, error)

// Register adds a factory for a storage type
func Register(t types.StorageType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// New creates a BackendStorage from config
func New(cfg types.BackendConfig) (types.BackendStorage, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
	return f(cfg)
}

// notFound wraps ErrNotFound with the key
func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

// cleanKey normalizes a slash separated key and rejects keys that would
// resolve outside the backend root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// Manager tracks multiple backends by ID
type Manager struct {
	mu       sync.RWMutex
	backends map[string]types.BackendStorage
	configs  map[string]types.BackendConfig
}

// NewManager creates a backend manager
func NewManager() *Manager {
	return &Manager{
		backends: make(map[string]types.BackendStorage),
		configs:  make(map[string]types.BackendConfig),
	}
}

// Add creates and registers a backend
func (m *Manager) Add(id string, cfg types.BackendConfig) error {
	storage, err := New(cfg)
	if err != nil {
		return fmt.Errorf("create backend %s: %w", id, err)
	}

	m.put(id, storage, cfg)
	return nil
}

// AddStorage registers an already constructed backend
func (m *Manager) AddStorage(id string, storage types.BackendStorage) {
	m.put(id, storage, types.BackendConfig{Type: storage.Type()})
}

func (m *Manager) put(id string, storage types.BackendStorage, cfg types.BackendConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.backends[id]; exists {
		old.Close()
	}

	m.backends[id] = storage
	m.configs[id] = cfg
}

// Get retrieves a backend by ID
func (m *Manager) Get(id string) (types.BackendStorage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.backends[id]
	return b, ok
}

// Config returns the configuration a backend was created with
func (m *Manager) Config(id string) (types.BackendConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[id]
	return cfg, ok
}

// Remove closes and removes a backend
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.backends[id]; ok {
		b.Close()
		delete(m.backends, id)
		delete(m.configs, id)
	}
	return nil
}

// List returns all backend IDs in sorted order
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.backends))
	for id := range m.backends {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close closes all backends
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, b := range m.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend %s: %w", id, err))
		}
	}
	m.backends = make(map[string]types.BackendStorage)
	m.configs = make(map[string]types.BackendConfig)
	return errors.Join(errs...)
}
