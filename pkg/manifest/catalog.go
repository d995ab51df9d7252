// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/index"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

// CatalogEntry records where an artifact's manifest lives. The catalog lets
// a cache miss go straight to the right backend and lets Warm find every
// manifest without listing buckets.
type CatalogEntry struct {
	Backend      string
	OriginalSize int64
	TotalShards  int
	CreatedAt    time.Time
}

// Catalog maps artifact ids to catalog entries
type Catalog = index.Indexer[string, CatalogEntry]

// OpenCatalog opens a persistent leveldb catalog in dir
func OpenCatalog(dir string) (Catalog, error) {
	return index.NewStringLevelDBIndexer[CatalogEntry](dir)
}

// NewMemoryCatalog returns a catalog that lives only as long as the process
func NewMemoryCatalog() Catalog {
	return index.NewMemoryIndexer[string, CatalogEntry]()
}

func entryFor(m *types.ArtifactManifest) CatalogEntry {
	return CatalogEntry{
		Backend:      m.StorageBackend,
		OriginalSize: m.OriginalSize,
		TotalShards:  m.TotalShards,
		CreatedAt:    m.CreatedAt,
	}
}
