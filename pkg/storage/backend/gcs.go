// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

func init() {
	Register(types.StorageTypeGCS, NewGCS)
}

// GCS implements BackendStorage for Google Cloud Storage
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates a GCS backend. Credentials come from Application Default
// Credentials unless Options["credentials_file"] is set; Options["anonymous"]
// disables authentication for emulators.
func NewGCS(cfg types.BackendConfig) (types.BackendStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required for GCS backend")
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	if file := cfg.Options["credentials_file"]; file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	if cfg.Options["anonymous"] == "true" {
		opts = append(opts, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCS{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (g *GCS) Type() types.StorageType {
	return types.StorageTypeGCS
}

func (g *GCS) object(key string) (*storage.ObjectHandle, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	return g.client.Bucket(g.bucket).Object(g.prefix + cleaned), nil
}

func (g *GCS) Write(ctx context.Context, key string, data io.Reader, size int64) error {
	obj, err := g.object(key)
	if err != nil {
		return err
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"

	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close: %w", err)
	}
	return nil
}

func (g *GCS) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	return g.ReadRange(ctx, key, 0, -1)
}

func (g *GCS) ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	obj, err := g.object(key)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		length = -1 // Read to the end
	}
	r, err := obj.NewRangeReader(ctx, offset, length)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("gcs read: %w", err)
	}
	return r, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	obj, err := g.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete: %w", err)
	}
	return nil
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.Size(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (g *GCS) Size(ctx context.Context, key string) (int64, error) {
	obj, err := g.object(key)
	if err != nil {
		return 0, err
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return 0, notFound(key)
		}
		return 0, fmt.Errorf("gcs attrs: %w", err)
	}
	return attrs.Size, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
