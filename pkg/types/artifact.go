// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

const (
	// ManifestFileName is the object name of a serialized manifest inside an artifact's directory
	ManifestFileName = "manifest.json"

	// UnshardedFileName is the object name used when an artifact is stored as a single blob
	UnshardedFileName = "data"
)

// ArtifactManifest is the authoritative description of how one artifact is stored.
// A manifest is written once, after every shard it references has been durably
// written, and is never updated afterwards.
type ArtifactManifest struct {
	ArtifactID     string            `json:"artifactId"`
	OriginalName   string            `json:"originalName,omitempty"`
	MimeType       string            `json:"mimeType,omitempty"`
	OriginalSize   int64             `json:"originalSize"`
	ShardSize      int64             `json:"shardSize"`
	TotalShards    int               `json:"totalShards"`
	Shards         []ShardMetadata   `json:"shards"`
	Checksum       string            `json:"checksum"`
	StorageBackend string            `json:"storageBackend"`
	Sharded        bool              `json:"sharded"`
	Compression    string            `json:"compression,omitempty"` // Applied to every stored shard ("none" if empty)
	Encrypted      bool              `json:"encrypted,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	CreatedBy      string            `json:"createdBy,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// ShardMetadata describes one physical chunk of an artifact.
type ShardMetadata struct {
	ShardID    string    `json:"shardId"`
	Index      int       `json:"index"`
	Size       int64     `json:"size"`                 // Original (decoded) byte length
	StoredSize int64     `json:"storedSize,omitempty"` // Bytes on the backend after compression/encryption
	Checksum   string    `json:"checksum"`
	Path       string    `json:"path"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ShardPath returns the backend key for shard index of an artifact.
func ShardPath(artifactID string, index int) string {
	return fmt.Sprintf("%s/shard_%04d", artifactID, index)
}

// UnshardedPath returns the backend key for an artifact stored as a single blob.
func UnshardedPath(artifactID string) string {
	return artifactID + "/" + UnshardedFileName
}

// ManifestPath returns the backend key of the serialized manifest.
func ManifestPath(artifactID string) string {
	return artifactID + "/" + ManifestFileName
}

// Clone returns a deep copy so cached manifests cannot be mutated by callers.
func (m *ArtifactManifest) Clone() *ArtifactManifest {
	if m == nil {
		return nil
	}
	c := *m
	c.Shards = slices.Clone(m.Shards)
	c.Metadata = maps.Clone(m.Metadata)
	return &c
}

// StoredBytes returns the number of bytes the artifact occupies on its backend.
func (m *ArtifactManifest) StoredBytes() int64 {
	var total int64
	for _, s := range m.Shards {
		if s.StoredSize > 0 {
			total += s.StoredSize
		} else {
			total += s.Size
		}
	}
	return total
}

// Validate checks the structural invariants of a manifest: contiguous shard
// indices, sizes summing to OriginalSize, every shard but the last exactly
// ShardSize long, and a shard count that matches the recorded split.
func (m *ArtifactManifest) Validate() error {
	if m.ArtifactID == "" {
		return fmt.Errorf("manifest has empty artifact id")
	}
	if m.TotalShards != len(m.Shards) {
		return fmt.Errorf("manifest %s: totalShards=%d but %d shard entries", m.ArtifactID, m.TotalShards, len(m.Shards))
	}
	if m.TotalShards < 1 {
		return fmt.Errorf("manifest %s: no shards", m.ArtifactID)
	}

	seen := make([]bool, len(m.Shards))
	var sum int64
	for _, s := range m.Shards {
		if s.Index < 0 || s.Index >= len(m.Shards) {
			return fmt.Errorf("manifest %s: shard index %d out of range", m.ArtifactID, s.Index)
		}
		if seen[s.Index] {
			return fmt.Errorf("manifest %s: duplicate shard index %d", m.ArtifactID, s.Index)
		}
		seen[s.Index] = true
		if s.Size > m.ShardSize {
			return fmt.Errorf("manifest %s: shard %d size %d exceeds shard size %d", m.ArtifactID, s.Index, s.Size, m.ShardSize)
		}
		if s.Index < m.TotalShards-1 && s.Size != m.ShardSize {
			return fmt.Errorf("manifest %s: shard %d size %d, only the last shard may be shorter than %d", m.ArtifactID, s.Index, s.Size, m.ShardSize)
		}
		sum += s.Size
	}
	if sum != m.OriginalSize {
		return fmt.Errorf("manifest %s: shard sizes sum to %d, original size is %d", m.ArtifactID, sum, m.OriginalSize)
	}
	if want := expectedShards(m.OriginalSize, m.ShardSize); m.TotalShards != want {
		return fmt.Errorf("manifest %s: %d shards, a %d byte split at %d needs %d", m.ArtifactID, m.TotalShards, m.OriginalSize, m.ShardSize, want)
	}
	return nil
}

// expectedShards is ceil(size/shardSize), with empty artifacts stored as one
// empty shard.
func expectedShards(size, shardSize int64) int {
	if size <= 0 || shardSize <= 0 {
		return 1
	}
	return int((size + shardSize - 1) / shardSize)
}

// ShardOptions carries optional descriptive metadata for a new artifact.
type ShardOptions struct {
	OriginalName string
	MimeType     string
	CreatedBy    string
	Metadata     map[string]string
}

// ShardUploadResult is the outcome of a shard operation.
type ShardUploadResult struct {
	Success    bool              `json:"success"`
	ArtifactID string            `json:"artifactId"`
	Manifest   *ArtifactManifest `json:"manifest,omitempty"`
	Sharded    bool              `json:"sharded"`
	Error      error             `json:"-"`
}

// Stats aggregates the manifests currently known to the manifest cache.
type Stats struct {
	TotalArtifacts           int     `json:"totalArtifacts"`
	TotalShards              int     `json:"totalShards"`
	TotalSizeBytes           int64   `json:"totalSizeBytes"`
	AverageShardsPerArtifact float64 `json:"averageShardsPerArtifact"`
}
