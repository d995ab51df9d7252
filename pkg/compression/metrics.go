// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"github.com/LeeDigitalWorks/zapartifact/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ratioHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zapartifact",
			Subsystem: "compression",
			Name:      "ratio",
			Help:      "Shard compression ratio (original_size / compressed_size)",
			Buckets:   []float64{1.0, 1.25, 1.5, 2.0, 3.0, 4.0, 5.0, 10.0},
		},
		[]string{"algorithm"},
	)

	durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zapartifact",
			Subsystem: "compression",
			Name:      "duration_seconds",
			Help:      "Time spent compressing/decompressing shard payloads",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"algorithm", "operation"}, // operation: compress, decompress
	)

	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapartifact",
			Subsystem: "compression",
			Name:      "bytes_total",
			Help:      "Bytes passed through the shard codecs",
		},
		[]string{"algorithm", "direction"}, // direction: original, stored
	)
)

func init() {
	debug.Registry().MustRegister(ratioHist, durationSeconds, bytesTotal)
}

func recordCompression(algo Algorithm, originalSize, compressedSize int) {
	a := algo.String()
	bytesTotal.WithLabelValues(a, "original").Add(float64(originalSize))
	bytesTotal.WithLabelValues(a, "stored").Add(float64(compressedSize))
	ratioHist.WithLabelValues(a).Observe(Ratio(originalSize, compressedSize))
}

func recordDecompression(algo Algorithm, compressedSize, originalSize int) {
	a := algo.String()
	bytesTotal.WithLabelValues(a, "stored").Add(float64(compressedSize))
	bytesTotal.WithLabelValues(a, "original").Add(float64(originalSize))
}
