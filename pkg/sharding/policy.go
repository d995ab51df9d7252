// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package sharding decides whether an artifact is split and how.
// Every function is pure so a split can be validated without I/O.
package sharding

import (
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

// Range is a contiguous byte range [Offset, Offset+Length) of an artifact
type Range struct {
	Index  int
	Offset int64
	Length int64
}

// End returns the exclusive end offset
func (r Range) End() int64 {
	return r.Offset + r.Length
}

// ShouldShard returns true iff sharding is enabled and size reaches the threshold.
func ShouldShard(size int64, cfg types.ShardingConfig) bool {
	return cfg.Enabled && size >= cfg.MinSizeForSharding
}

// PlanShards returns ceil(size/shardSize), minimum 1.
// A non-positive shardSize yields a single shard.
func PlanShards(size, shardSize int64) int {
	if size <= 0 || shardSize <= 0 {
		return 1
	}
	return int((size + shardSize - 1) / shardSize)
}

// Ranges splits size bytes into PlanShards(size, shardSize) ranges. All ranges
// have length shardSize except possibly the last, which holds the remainder.
func Ranges(size, shardSize int64) []Range {
	n := PlanShards(size, shardSize)
	if shardSize <= 0 {
		shardSize = size
	}

	ranges := make([]Range, n)
	for i := range n {
		off := int64(i) * shardSize
		length := min(shardSize, size-off)
		if length < 0 {
			length = 0
		}
		ranges[i] = Range{Index: i, Offset: off, Length: length}
	}
	return ranges
}

// LastShardSize returns the size of the final shard of a sharded artifact:
// size - shardSize*(totalShards-1).
func LastShardSize(size, shardSize int64) int64 {
	n := PlanShards(size, shardSize)
	if shardSize <= 0 {
		return size
	}
	return size - shardSize*int64(n-1)
}
