// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"github.com/LeeDigitalWorks/zapartifact/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ArtifactsWritten counts successful shard operations
	ArtifactsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "artifact",
		Name:      "written_total",
		Help:      "Artifacts written, by layout",
	}, []string{"layout"}) // layout: sharded, unsharded

	// ShardsWritten counts shard objects written
	ShardsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "artifact",
		Name:      "shards_written_total",
		Help:      "Shard objects written to storage backends",
	})

	// BytesWritten counts bytes by form
	BytesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "artifact",
		Name:      "bytes_written_total",
		Help:      "Artifact bytes written",
	}, []string{"form"}) // form: original, stored

	// OperationFailures counts failed operations by operation and error kind
	OperationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "artifact",
		Name:      "failures_total",
		Help:      "Failed artifact operations",
	}, []string{"operation", "kind"})

	// DeleteSkipped counts shard objects a delete could not remove
	DeleteSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "artifact",
		Name:      "delete_skipped_total",
		Help:      "Shard deletions that failed and were skipped",
	})

	// OperationDuration tracks latency per operation
	OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapartifact",
		Subsystem: "artifact",
		Name:      "operation_duration_seconds",
		Help:      "Artifact operation latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"operation"})
)

func init() {
	debug.Registry().MustRegister(
		ArtifactsWritten,
		ShardsWritten,
		BytesWritten,
		OperationFailures,
		DeleteSkipped,
		OperationDuration,
	)
}

func recordFailure(operation string, err error) {
	OperationFailures.WithLabelValues(operation, KindOf(err).String()).Inc()
}
