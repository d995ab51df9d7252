// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"fmt"
	"time"
)

// Compress encodes data with algo and records metrics.
// None returns data unchanged.
func Compress(algo Algorithm, data []byte) ([]byte, error) {
	if algo == None || algo == "" {
		return data, nil
	}

	start := time.Now()
	var (
		out []byte
		err error
	)
	switch algo {
	case LZ4:
		out, err = compressLZ4(data)
	case ZSTD:
		out, err = compressZSTD(data)
	case S2:
		out, err = compressS2(data)
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algo)
	}
	if err != nil {
		return nil, err
	}

	durationSeconds.WithLabelValues(algo.String(), "compress").Observe(time.Since(start).Seconds())
	recordCompression(algo, len(data), len(out))
	return out, nil
}

// Decompress reverses Compress. None returns data unchanged.
func Decompress(algo Algorithm, data []byte) ([]byte, error) {
	if algo == None || algo == "" {
		return data, nil
	}

	start := time.Now()
	var (
		out []byte
		err error
	)
	switch algo {
	case LZ4:
		out, err = decompressLZ4(data)
	case ZSTD:
		out, err = decompressZSTD(data)
	case S2:
		out, err = decompressS2(data)
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algo)
	}
	if err != nil {
		return nil, err
	}

	durationSeconds.WithLabelValues(algo.String(), "decompress").Observe(time.Since(start).Seconds())
	recordDecompression(algo, len(data), len(out))
	return out, nil
}

// Ratio calculates original / compressed.
// Returns 1.0 if compressed size is zero or not smaller than original.
func Ratio(originalSize, compressedSize int) float64 {
	if compressedSize <= 0 || compressedSize >= originalSize {
		return 1.0
	}
	return float64(originalSize) / float64(compressedSize)
}
