// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"github.com/LeeDigitalWorks/zapartifact/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapartifact",
			Subsystem: "manifest",
			Name:      "cache_lookups_total",
			Help:      "Manifest cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	backendLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapartifact",
			Subsystem: "manifest",
			Name:      "backend_loads_total",
			Help:      "Manifest loads from storage backends by result",
		},
		[]string{"result"}, // found, not_found, error
	)
)

func init() {
	debug.Registry().MustRegister(cacheLookups, backendLoads)
}
