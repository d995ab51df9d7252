// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package compression encodes shard payloads before they reach a backend.
// Every shard of an artifact uses the algorithm recorded in its manifest.
package compression

import "fmt"

// Algorithm represents a compression algorithm
type Algorithm string

const (
	// None stores shard bytes as-is
	None Algorithm = "none"
	// LZ4 is fast with a moderate ratio
	LZ4 Algorithm = "lz4"
	// ZSTD balances speed and ratio
	ZSTD Algorithm = "zstd"
	// S2 is klauspost's Snappy successor
	S2 Algorithm = "s2"
)

// IsValid returns true if the algorithm is recognized
func (a Algorithm) IsValid() bool {
	switch a {
	case None, LZ4, ZSTD, S2:
		return true
	default:
		return false
	}
}

func (a Algorithm) String() string {
	return string(a)
}

// ParseAlgorithm parses a configured or recorded algorithm name.
// The empty string means None. Unknown names are an error so that a manifest
// written by a newer build is never decoded with the wrong codec.
func ParseAlgorithm(s string) (Algorithm, error) {
	if s == "" {
		return None, nil
	}
	algo := Algorithm(s)
	if !algo.IsValid() {
		return None, fmt.Errorf("unknown compression algorithm %q", s)
	}
	return algo, nil
}
