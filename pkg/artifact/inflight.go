// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import "sync"

// writeGuard keeps Shard calls and orphan sweeps of the same artifact id
// apart. Shard objects written before the manifest is saved are referenced
// by nothing yet, so a sweep must not delete paths of an id while a write of
// that id is in progress, and a write must not start while a sweep of that
// id is deleting.
type writeGuard struct {
	mu       sync.Mutex
	cond     *sync.Cond
	writing  map[string]int
	sweeping map[string]int
}

func newWriteGuard() *writeGuard {
	g := &writeGuard{
		writing:  make(map[string]int),
		sweeping: make(map[string]int),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// beginWrite waits for sweeps of artifactID to finish and registers a
// write. The returned func ends it.
func (g *writeGuard) beginWrite(artifactID string) func() {
	g.mu.Lock()
	for g.sweeping[artifactID] > 0 {
		g.cond.Wait()
	}
	g.writing[artifactID]++
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.writing[artifactID]--; g.writing[artifactID] <= 0 {
			delete(g.writing, artifactID)
		}
	}
}

// trySweep registers a sweep unless a write of artifactID is in progress.
func (g *writeGuard) trySweep(artifactID string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writing[artifactID] > 0 {
		return nil, false
	}
	g.sweeping[artifactID]++

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.sweeping[artifactID]--; g.sweeping[artifactID] <= 0 {
				delete(g.sweeping, artifactID)
			}
			g.cond.Broadcast()
		})
	}, true
}

// ReserveForSweep lets the orphan sweeper delete objects of artifactID. It
// reports false while a Shard call for that id is in progress; otherwise new
// Shard calls for the id wait until release is called.
func (s *Service) ReserveForSweep(artifactID string) (release func(), ok bool) {
	return s.writes.trySweep(artifactID)
}
