// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"

	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
)

// Stats aggregates the manifests currently held by the manifest cache.
// Artifacts that were never loaded in this process (or were evicted) are not
// counted; Manifests().Warm fills the cache from the catalog.
func (s *Service) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := s.manifests.Range(ctx, func(m *types.ArtifactManifest) bool {
		st.TotalArtifacts++
		st.TotalShards += m.TotalShards
		st.TotalSizeBytes += m.OriginalSize
		return true
	})
	if err != nil {
		return types.Stats{}, newError(BackendUnavailable, "", err)
	}

	if st.TotalArtifacts > 0 {
		st.AverageShardsPerArtifact = float64(st.TotalShards) / float64(st.TotalArtifacts)
	}
	return st, nil
}
