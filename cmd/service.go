// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/zapartifact/pkg/artifact"
	"github.com/LeeDigitalWorks/zapartifact/pkg/encryption"
	"github.com/LeeDigitalWorks/zapartifact/pkg/logger"
	"github.com/LeeDigitalWorks/zapartifact/pkg/manifest"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/gc"
	"github.com/LeeDigitalWorks/zapartifact/pkg/storage/index"
	"github.com/LeeDigitalWorks/zapartifact/pkg/types"
	"github.com/LeeDigitalWorks/zapartifact/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ArtifactOpts holds everything needed to build an artifact service
type ArtifactOpts struct {
	Sharding      types.ShardingConfig
	EncryptionKey string // Hex master key, required when encryption is enabled
	Backends      []BackendOpts

	// Manifest store
	CatalogPath     string // Empty keeps the catalog in memory
	CacheMaxEntries int
	CacheTTL        time.Duration
	Redis           manifest.RedisCacheConfig // Used instead of the local cache when Addr is set

	// Orphan GC
	OrphanIndexPath string // Empty keeps the queue in memory
	GCInterval      time.Duration
	GCGracePeriod   time.Duration
	GCRateLimit     int

	DebugAddr string
}

// BackendOpts holds configuration for a storage backend
type BackendOpts struct {
	ID     string
	Config types.BackendConfig
}

func registerArtifactFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()

	// Sharding
	f.Bool("sharding_enabled", true, "Split artifacts at or above min_size_for_sharding")
	f.String("shard_size", "50MiB", "Nominal shard size (bytes or humanized, e.g. 50MiB)")
	f.String("min_size_for_sharding", "100MiB", "Smallest artifact that is sharded")
	f.String("storage_backend", types.DefaultBackendID, "Backend id new artifacts are written to")
	f.Bool("compression_enabled", false, "Compress shards before storing them")
	f.String("compression_algorithm", "zstd", "Shard compression: lz4, zstd or s2")
	f.Bool("encryption_enabled", false, "Encrypt shards with XChaCha20-Poly1305")
	f.String("encryption_key", "", "Hex-encoded 32 byte master key (or set ZAPARTIFACT_ENCRYPTION_KEY)")
	f.Int("write_concurrency", 4, "Parallel shard writes per artifact")

	// Built-in backends; [backends.<id>] config sections add more
	f.String("local_path", "./data", "Base directory of the \"local\" backend (empty disables it)")
	f.Bool("direct_io", false, "Skip the page cache after local writes (Linux only)")
	f.String("s3_bucket", "", "Bucket of the \"s3\" backend (empty disables it)")
	f.String("s3_endpoint", "", "S3-compatible endpoint URL")
	f.String("s3_region", "us-east-1", "S3 region")
	f.String("s3_prefix", "", "Key prefix inside the S3 bucket")
	f.String("s3_access_key", "", "S3 access key (default credential chain if empty)")
	f.String("s3_secret_key", "", "S3 secret key")
	f.String("gcs_bucket", "", "Bucket of the \"gcs\" backend (empty disables it)")
	f.String("gcs_prefix", "", "Object prefix inside the GCS bucket")
	f.String("gcs_endpoint", "", "GCS endpoint override")
	f.String("azure_container", "", "Container of the \"azure\" backend (empty disables it)")
	f.String("azure_account", "", "Azure storage account name")
	f.String("azure_key", "", "Azure storage account key")
	f.String("azure_endpoint", "", "Azure blob endpoint override")
	f.String("azure_prefix", "", "Blob prefix inside the Azure container")

	// Manifest store
	f.String("catalog_path", "", "Directory of the persistent manifest catalog (empty keeps it in memory)")
	f.Int("cache_max_entries", 10000, "Local manifest cache capacity (0 is unbounded)")
	f.Duration("cache_ttl", time.Hour, "Local manifest cache TTL (0 disables expiry)")
	f.String("redis_addr", "", "Share the manifest cache through Redis at this address")
	f.String("redis_password", "", "Redis password")
	f.Int("redis_db", 0, "Redis database")
	f.Duration("redis_ttl", 24*time.Hour, "TTL of manifests cached in Redis")

	// Orphan GC
	f.String("orphan_index_path", "", "Directory of the persistent orphan queue (empty keeps it in memory)")
	f.Duration("gc_interval", 10*time.Minute, "Interval between orphan GC passes in serve (0 disables them)")
	f.Duration("gc_grace_period", gc.DefaultGracePeriod, "Minimum age of a queued orphan before it is deleted")
	f.Int("gc_rate_limit", 0, "Orphan deletions per second (0 is unlimited)")

	f.String("debug_addr", ":8010", "Debug/metrics HTTP address used by serve")
}

func loadArtifactOpts(cmd *cobra.Command) (ArtifactOpts, error) {
	f := NewFlagLoader(cmd)

	shardSize, err := f.Bytes("shard_size")
	if err != nil {
		return ArtifactOpts{}, err
	}
	minSize, err := f.Bytes("min_size_for_sharding")
	if err != nil {
		return ArtifactOpts{}, err
	}

	redis := manifest.DefaultRedisCacheConfig()
	redis.Addr = f.String("redis_addr")
	redis.Password = f.String("redis_password")
	redis.DB = f.Int("redis_db")
	redis.TTL = f.Duration("redis_ttl")

	return ArtifactOpts{
		Sharding: types.ShardingConfig{
			Enabled:              f.Bool("sharding_enabled"),
			ShardSize:            shardSize,
			MinSizeForSharding:   minSize,
			StorageBackend:       f.String("storage_backend"),
			CompressionEnabled:   f.Bool("compression_enabled"),
			CompressionAlgorithm: f.String("compression_algorithm"),
			EncryptionEnabled:    f.Bool("encryption_enabled"),
			WriteConcurrency:     f.Int("write_concurrency"),
		},
		EncryptionKey:   f.String("encryption_key"),
		Backends:        loadBackendOpts(f),
		CatalogPath:     utils.ResolvePath(f.String("catalog_path")),
		CacheMaxEntries: f.Int("cache_max_entries"),
		CacheTTL:        f.Duration("cache_ttl"),
		Redis:           redis,
		OrphanIndexPath: utils.ResolvePath(f.String("orphan_index_path")),
		GCInterval:      f.Duration("gc_interval"),
		GCGracePeriod:   f.Duration("gc_grace_period"),
		GCRateLimit:     f.Int("gc_rate_limit"),
		DebugAddr:       f.String("debug_addr"),
	}, nil
}

// loadBackendOpts returns the built-in backends enabled by flags followed by
// any [backends.<id>] sections. A section reusing a built-in id replaces it.
func loadBackendOpts(f *FlagLoader) []BackendOpts {
	var backends []BackendOpts
	add := func(id string, cfg types.BackendConfig) {
		for i := range backends {
			if backends[i].ID == id {
				backends[i].Config = cfg
				return
			}
		}
		backends = append(backends, BackendOpts{ID: id, Config: cfg})
	}

	if path := f.String("local_path"); path != "" {
		add("local", types.BackendConfig{
			Type:     types.StorageTypeLocal,
			Path:     utils.ResolvePath(path),
			DirectIO: f.Bool("direct_io"),
		})
	}
	if bucket := f.String("s3_bucket"); bucket != "" {
		add("s3", types.BackendConfig{
			Type:      types.StorageTypeS3,
			Bucket:    bucket,
			Endpoint:  f.String("s3_endpoint"),
			Region:    f.String("s3_region"),
			Prefix:    f.String("s3_prefix"),
			AccessKey: f.String("s3_access_key"),
			SecretKey: f.String("s3_secret_key"),
		})
	}
	if bucket := f.String("gcs_bucket"); bucket != "" {
		add("gcs", types.BackendConfig{
			Type:     types.StorageTypeGCS,
			Bucket:   bucket,
			Prefix:   f.String("gcs_prefix"),
			Endpoint: f.String("gcs_endpoint"),
		})
	}
	if container := f.String("azure_container"); container != "" {
		add("azure", types.BackendConfig{
			Type:      types.StorageTypeAzure,
			Bucket:    container,
			Prefix:    f.String("azure_prefix"),
			Endpoint:  f.String("azure_endpoint"),
			AccessKey: f.String("azure_account"),
			SecretKey: f.String("azure_key"),
		})
	}

	for id := range viper.GetStringMap("backends") {
		var cfg types.BackendConfig
		if err := viper.UnmarshalKey("backends."+id, &cfg); err != nil {
			logger.Warn().Err(err).Str("backend_id", id).Msg("Skipping unreadable backend configuration")
			continue
		}
		if cfg.Type == "" {
			cfg.Type = types.StorageTypeLocal
		}
		add(id, cfg)
		logger.Debug().Str("backend_id", id).Str("type", cfg.Type.String()).Msg("Loaded backend configuration")
	}
	return backends
}

// artifactRuntime is a configured service and its orphan sweeper
type artifactRuntime struct {
	svc     *artifact.Service
	sweeper *gc.Sweeper
	close   func()
}

// newArtifactRuntime builds the backends, the manifest store, the orphan
// sweeper and the service. rt.close releases all of them.
func newArtifactRuntime(ctx context.Context, opts ArtifactOpts) (*artifactRuntime, error) {
	mgr := backend.NewManager()
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn().Err(err).Msg("close failed")
			}
		}
	}
	closers = append(closers, mgr.Close)

	for _, b := range opts.Backends {
		if err := mgr.Add(b.ID, b.Config); err != nil {
			closeAll()
			return nil, fmt.Errorf("backend %s: %w", b.ID, err)
		}
		logger.Debug().Str("backend_id", b.ID).Str("type", b.Config.Type.String()).Msg("Configured storage backend")
	}

	var svcOpts []artifact.Option
	if opts.EncryptionKey != "" {
		key, err := encryption.ParseKey(opts.EncryptionKey)
		if err != nil {
			closeAll()
			return nil, err
		}
		sealer, err := encryption.NewSealer(key)
		if err != nil {
			closeAll()
			return nil, err
		}
		svcOpts = append(svcOpts, artifact.WithSealer(sealer))
	}

	var mopts []manifest.Option
	if opts.CatalogPath != "" {
		catalog, err := manifest.OpenCatalog(opts.CatalogPath)
		if err != nil {
			closeAll()
			return nil, err
		}
		// Closing the catalog is all Service.Close does
		closers = append(closers, catalog.Close)
		mopts = append(mopts, manifest.WithCatalog(catalog))
	}
	if opts.Redis.Addr != "" {
		rc, err := manifest.NewRedisCache(ctx, opts.Redis)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, rc.Close)
		mopts = append(mopts, manifest.WithCache(rc))
	} else {
		lc := manifest.NewLocalCache(ctx, opts.CacheMaxEntries, opts.CacheTTL)
		closers = append(closers, func() error { lc.Stop(); return nil })
		mopts = append(mopts, manifest.WithCache(lc))
	}
	svcOpts = append(svcOpts, artifact.WithManifestOptions(mopts...))

	var orphanIdx index.Indexer[string, gc.Orphan]
	if opts.OrphanIndexPath != "" {
		idx, err := index.NewStringLevelDBIndexer[gc.Orphan](opts.OrphanIndexPath)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open orphan index: %w", err)
		}
		orphanIdx = idx
	} else {
		orphanIdx = index.NewMemoryIndexer[string, gc.Orphan]()
	}
	closers = append(closers, orphanIdx.Close)

	sweeper := gc.NewSweeper(gc.Config{
		Index:       orphanIdx,
		Manager:     mgr,
		Interval:    opts.GCInterval,
		GracePeriod: opts.GCGracePeriod,
		RateLimit:   opts.GCRateLimit,
	})
	closers = append(closers, func() error { sweeper.Stop(); return nil })
	svcOpts = append(svcOpts, artifact.WithOrphanQueue(sweeper))

	svc, err := artifact.NewService(mgr, opts.Sharding, svcOpts...)
	if err != nil {
		ids := mgr.List()
		closeAll()
		return nil, fmt.Errorf("%w (configured backends: %v)", err, ids)
	}
	sweeper.SetReferenceFunc(svc.References)
	sweeper.SetGuardFunc(svc.ReserveForSweep)

	return &artifactRuntime{svc: svc, sweeper: sweeper, close: closeAll}, nil
}
