// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/zapartifact/pkg/compression"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

// Config returns a snapshot of the current configuration.
func (s *Service) Config() types.ShardingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UpdateConfig applies a partial update and returns the resulting
// configuration. An invalid update leaves the configuration unchanged.
// Operations already running keep the snapshot they started with.
func (s *Service) UpdateConfig(u types.ShardingConfigUpdate) (types.ShardingConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := u.Apply(s.cfg)
	if err := s.validate(next); err != nil {
		return s.cfg, err
	}
	s.cfg = next

	logger.Info().
		Bool("enabled", next.Enabled).
		Int64("shard_size", next.ShardSize).
		Int64("min_size_for_sharding", next.MinSizeForSharding).
		Str("storage_backend", next.StorageBackend).
		Bool("compression", next.CompressionEnabled).
		Bool("encryption", next.EncryptionEnabled).
		Msg("sharding configuration updated")
	return next, nil
}

func (s *Service) validate(cfg types.ShardingConfig) error {
	if err := cfg.Validate(); err != nil {
		return newError(InvalidConfig, "", err)
	}
	if _, ok := s.backends.Get(cfg.StorageBackend); !ok {
		return newError(InvalidConfig, "", fmt.Errorf("storage backend %q is not registered", cfg.StorageBackend))
	}
	if cfg.CompressionEnabled {
		algo, err := compression.ParseAlgorithm(cfg.CompressionAlgorithm)
		if err != nil {
			return newError(InvalidConfig, "", err)
		}
		if algo == compression.None {
			return newError(InvalidConfig, "", errors.New("compression enabled without an algorithm"))
		}
	}
	if cfg.EncryptionEnabled && s.sealer == nil {
		return newError(InvalidConfig, "", errors.New("encryption enabled without an encryption key"))
	}
	return nil
}

// compressionFor returns the algorithm new artifacts are written with.
func compressionFor(cfg types.ShardingConfig) compression.Algorithm {
	if !cfg.CompressionEnabled {
		return compression.None
	}
	algo, err := compression.ParseAlgorithm(cfg.CompressionAlgorithm)
	if err != nil {
		return compression.None
	}
	return algo
}
