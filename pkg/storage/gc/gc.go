// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package gc retries removal of shard objects that no manifest references:
// shards a failed write could not clean up and shards a delete skipped.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/debug"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/index"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var (
	gcObjectsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "gc",
		Name:      "objects_deleted_total",
		Help:      "Orphaned shard objects removed by GC",
	})

	gcObjectsKept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "gc",
		Name:      "objects_kept_total",
		Help:      "Queued objects dropped from the queue because a manifest references them again",
	})

	gcDeleteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "gc",
		Name:      "delete_failures_total",
		Help:      "Orphan deletions that failed and will be retried",
	})

	gcRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapartifact",
		Subsystem: "gc",
		Name:      "runs_total",
		Help:      "Total number of GC runs",
	})
)

func init() {
	debug.Registry().MustRegister(
		gcObjectsDeleted,
		gcObjectsKept,
		gcDeleteFailures,
		gcRunsTotal,
	)
}

// DefaultGracePeriod is how long an orphan waits before its first deletion attempt
const DefaultGracePeriod = 5 * time.Minute

// Orphan is a stored object that no manifest should reference
type Orphan struct {
	BackendID  string
	ArtifactID string
	Path       string
	Since      time.Time
	Attempts   int
	LastError  string
}

func orphanKey(backendID, path string) string {
	return backendID + "\x00" + path
}

// ReferenceFunc reports whether artifactID's current manifest references
// path. Referenced objects are never deleted.
type ReferenceFunc func(ctx context.Context, artifactID, path string) (bool, error)

// GuardFunc reserves artifactID for a sweep. It reports false while a write
// of that artifact is in progress; release ends the reservation.
type GuardFunc func(artifactID string) (release func(), ok bool)

// Config holds configuration for a Sweeper
type Config struct {
	Index       index.Indexer[string, Orphan]
	Manager     *backend.Manager
	Referenced  ReferenceFunc // Optional; without it every queued object is deleted
	Guard       GuardFunc     // Optional; skips artifacts with a write in progress
	Interval    time.Duration // 0 disables the background loop
	GracePeriod time.Duration // 0 deletes on the first pass
	Concurrency int           // 0 means 5
	RateLimit   int           // Backend deletes per second; 0 is unlimited
	Now         func() time.Time
}

// Sweeper queues orphaned objects and deletes them in periodic passes
type Sweeper struct {
	idx         index.Indexer[string, Orphan]
	manager     *backend.Manager
	referenced  ReferenceFunc
	guard       GuardFunc
	interval    time.Duration
	gracePeriod time.Duration
	concurrency int
	limiter     *rate.Limiter
	now         func() time.Time

	mu       sync.Mutex // Serializes Enqueue's read-modify-write
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a sweeper. The index is owned by the caller.
func NewSweeper(cfg Config) *Sweeper {
	concurrency := cfg.Concurrency
	if concurrency == 0 {
		concurrency = 5
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	return &Sweeper{
		idx:         cfg.Index,
		manager:     cfg.Manager,
		referenced:  cfg.Referenced,
		guard:       cfg.Guard,
		interval:    cfg.Interval,
		gracePeriod: max(cfg.GracePeriod, 0),
		concurrency: concurrency,
		limiter:     limiter,
		now:         now,
		stopCh:      make(chan struct{}),
	}
}

// SetReferenceFunc sets the reference check. It must be called before Start.
func (s *Sweeper) SetReferenceFunc(f ReferenceFunc) {
	s.referenced = f
}

// SetGuardFunc sets the write guard. It must be called before Start.
func (s *Sweeper) SetGuardFunc(f GuardFunc) {
	s.guard = f
}

// Enqueue records paths on backendID as orphans of artifactID. Re-queuing a
// known path keeps its original timestamp.
func (s *Sweeper) Enqueue(backendID, artifactID string, paths ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, p := range paths {
		key := orphanKey(backendID, p)
		if _, err := s.idx.Get(key); err == nil {
			continue
		} else if !errors.Is(err, index.ErrNotFound) {
			errs = append(errs, err)
			continue
		}

		o := Orphan{BackendID: backendID, ArtifactID: artifactID, Path: p, Since: s.now()}
		if err := s.idx.PutSync(key, o); err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Pending returns the queued orphans
func (s *Sweeper) Pending() ([]Orphan, error) {
	var out []Orphan
	err := s.idx.Iterate(func(_ string, o Orphan) error {
		out = append(out, o)
		return nil
	})
	return out, err
}

// Start runs the GC loop in a goroutine
func (s *Sweeper) Start() {
	if s.interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Run(context.Background())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop ends the GC loop and waits for a pass in progress. Safe to call more than once.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Result summarizes one pass
type Result struct {
	Deleted int64 // Removed from the backend and the queue
	Kept    int64 // Referenced again, dropped from the queue without deleting
	Waiting int64 // Inside the grace period, or the artifact is being written
	Failed  int64 // Left queued for the next pass
}

// Run performs a single GC pass
func (s *Sweeper) Run(ctx context.Context) Result {
	return s.RunWithGracePeriod(ctx, s.gracePeriod)
}

// RunWithGracePeriod performs a single GC pass with a specific grace period.
// Use gracePeriod=0 to skip the grace period check (force immediate deletion).
func (s *Sweeper) RunWithGracePeriod(ctx context.Context, gracePeriod time.Duration) Result {
	gcRunsTotal.Inc()
	now := s.now()

	orphans, err := s.Pending()
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("gc: failed to read orphan queue")
		return Result{}
	}

	var (
		wg                            sync.WaitGroup
		deleted, kept, waiting, fails atomic.Int64
	)
	sem := make(chan struct{}, s.concurrency)

	for _, o := range orphans {
		if ctx.Err() != nil {
			break
		}
		if gracePeriod > 0 && now.Sub(o.Since) < gracePeriod {
			waiting.Add(1)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			switch err := s.sweep(ctx, o); {
			case err == nil:
				deleted.Add(1)
			case errors.Is(err, errReferenced):
				kept.Add(1)
			case errors.Is(err, errWriteInProgress):
				waiting.Add(1)
			default:
				fails.Add(1)
				s.recordFailure(o, err)
				logger.Ctx(ctx).Warn().Err(err).Str("backend_id", o.BackendID).Str("path", o.Path).Msg("gc: failed to delete orphan")
			}
		}()
	}
	wg.Wait()

	res := Result{Deleted: deleted.Load(), Kept: kept.Load(), Waiting: waiting.Load(), Failed: fails.Load()}
	if res != (Result{}) {
		logger.Ctx(ctx).Info().
			Int64("deleted", res.Deleted).
			Int64("kept", res.Kept).
			Int64("waiting_grace_period", res.Waiting).
			Int64("failed", res.Failed).
			Dur("grace_period", gracePeriod).
			Msg("GC pass completed")
	}
	return res
}

var (
	errReferenced      = errors.New("gc: object is referenced")
	errWriteInProgress = errors.New("gc: artifact write in progress")
)

// sweep removes one orphan, or drops it from the queue when a manifest
// references the path again (the artifact was rewritten under the same id).
func (s *Sweeper) sweep(ctx context.Context, o Orphan) error {
	key := orphanKey(o.BackendID, o.Path)

	// Held across the reference check and the delete so a rewrite of the
	// same id cannot start writing shards in between.
	if s.guard != nil && o.ArtifactID != "" {
		release, ok := s.guard(o.ArtifactID)
		if !ok {
			return errWriteInProgress
		}
		defer release()
	}

	if s.referenced != nil && o.ArtifactID != "" {
		ok, err := s.referenced(ctx, o.ArtifactID, o.Path)
		if err != nil {
			return fmt.Errorf("reference check: %w", err)
		}
		if ok {
			gcObjectsKept.Inc()
			_ = s.idx.Delete(key)
			return errReferenced
		}
	}

	store, ok := s.manager.Get(o.BackendID)
	if !ok {
		return fmt.Errorf("backend %s not registered", o.BackendID)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	dctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.Delete(dctx, o.Path); err != nil {
		return err
	}

	if err := s.idx.Delete(key); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("path", o.Path).Msg("gc: failed to remove queue entry")
	}
	gcObjectsDeleted.Inc()
	return nil
}

func (s *Sweeper) recordFailure(o Orphan, err error) {
	gcDeleteFailures.Inc()
	o.Attempts++
	o.LastError = err.Error()
	_ = s.idx.Put(orphanKey(o.BackendID, o.Path), o)
}
