// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
)

const (
	// DefaultShardSize is the nominal shard size (50MiB)
	DefaultShardSize int64 = 50 * 1024 * 1024

	// DefaultMinSizeForSharding is the size at which artifacts start being split (100MiB)
	DefaultMinSizeForSharding int64 = 100 * 1024 * 1024

	// DefaultBackendID is the backend selected when none is configured
	DefaultBackendID = "local"
)

// ShardingConfig holds the runtime-adjustable sharding settings.
type ShardingConfig struct {
	Enabled              bool   `json:"enabled" mapstructure:"sharding_enabled"`
	ShardSize            int64  `json:"shardSize" mapstructure:"shard_size"`
	MinSizeForSharding   int64  `json:"minSizeForSharding" mapstructure:"min_size_for_sharding"`
	StorageBackend       string `json:"storageBackend" mapstructure:"storage_backend"` // Backend manager ID new artifacts are written to
	CompressionEnabled   bool   `json:"compressionEnabled" mapstructure:"compression_enabled"`
	CompressionAlgorithm string `json:"compressionAlgorithm,omitempty" mapstructure:"compression_algorithm"`
	EncryptionEnabled    bool   `json:"encryptionEnabled" mapstructure:"encryption_enabled"`

	// WriteConcurrency bounds parallel shard writes within one artifact.
	// 1 writes shards sequentially.
	WriteConcurrency int `json:"writeConcurrency" mapstructure:"write_concurrency"`
}

// DefaultShardingConfig returns the process-wide defaults.
func DefaultShardingConfig() ShardingConfig {
	return ShardingConfig{
		Enabled:              true,
		ShardSize:            DefaultShardSize,
		MinSizeForSharding:   DefaultMinSizeForSharding,
		StorageBackend:       DefaultBackendID,
		CompressionAlgorithm: "zstd",
		WriteConcurrency:     1,
	}
}

// Validate checks values that do not depend on other components.
func (c ShardingConfig) Validate() error {
	if c.ShardSize <= 0 {
		return fmt.Errorf("shard size must be positive, got %d", c.ShardSize)
	}
	if c.MinSizeForSharding < 0 {
		return fmt.Errorf("min size for sharding must not be negative, got %d", c.MinSizeForSharding)
	}
	if c.StorageBackend == "" {
		return fmt.Errorf("storage backend is required")
	}
	if c.WriteConcurrency < 1 {
		return fmt.Errorf("write concurrency must be at least 1, got %d", c.WriteConcurrency)
	}
	return nil
}

// ShardingConfigUpdate is a partial update; nil fields are left unchanged.
type ShardingConfigUpdate struct {
	Enabled              *bool
	ShardSize            *int64
	MinSizeForSharding   *int64
	StorageBackend       *string
	CompressionEnabled   *bool
	CompressionAlgorithm *string
	EncryptionEnabled    *bool
	WriteConcurrency     *int
}

// Apply returns a copy of c with the non-nil fields of u applied.
func (u ShardingConfigUpdate) Apply(c ShardingConfig) ShardingConfig {
	if u.Enabled != nil {
		c.Enabled = *u.Enabled
	}
	if u.ShardSize != nil {
		c.ShardSize = *u.ShardSize
	}
	if u.MinSizeForSharding != nil {
		c.MinSizeForSharding = *u.MinSizeForSharding
	}
	if u.StorageBackend != nil {
		c.StorageBackend = *u.StorageBackend
	}
	if u.CompressionEnabled != nil {
		c.CompressionEnabled = *u.CompressionEnabled
	}
	if u.CompressionAlgorithm != nil {
		c.CompressionAlgorithm = *u.CompressionAlgorithm
	}
	if u.EncryptionEnabled != nil {
		c.EncryptionEnabled = *u.EncryptionEnabled
	}
	if u.WriteConcurrency != nil {
		c.WriteConcurrency = *u.WriteConcurrency
	}
	return c
}
