// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
	"io"
)

// StorageType identifies the backend storage implementation
type StorageType string

const (
	StorageTypeLocal StorageType = "local" // Local filesystem
	StorageTypeS3    StorageType = "s3"    // S3-compatible
	StorageTypeGCS   StorageType = "gcs"   // Google Cloud Storage
	StorageTypeAzure StorageType = "azure" // Azure Blob Storage
)

// IsValid returns true for the storage types that can be selected in configuration
func (t StorageType) IsValid() bool {
	switch t {
	case StorageTypeLocal, StorageTypeS3, StorageTypeGCS, StorageTypeAzure:
		return true
	default:
		return false
	}
}

func (t StorageType) String() string {
	return string(t)
}

// BackendStorage is the interface for reading/writing data to a backend.
// Every implementation must report missing keys with an error wrapping
// backend.ErrNotFound and treat Delete of a missing key as success.
type BackendStorage interface {
	// Type returns the storage type
	Type() StorageType

	// Write stores data under key, replacing any existing object
	Write(ctx context.Context, key string, data io.Reader, size int64) error

	// Read reads data from the backend
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// ReadRange reads a byte range from the backend
	ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Delete removes data from the backend
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns the size of the stored data
	Size(ctx context.Context, key string) (int64, error)

	// Close releases any resources
	Close() error
}

// BackendConfig contains configuration for creating a backend storage instance
type BackendConfig struct {
	Type      StorageType       `json:"type" mapstructure:"type"`
	Endpoint  string            `json:"endpoint,omitempty" mapstructure:"endpoint"`
	Bucket    string            `json:"bucket,omitempty" mapstructure:"bucket"` // S3/GCS bucket or Azure container
	Path      string            `json:"path,omitempty" mapstructure:"path"`
	Prefix    string            `json:"prefix,omitempty" mapstructure:"prefix"` // Key prefix for object stores
	Region    string            `json:"region,omitempty" mapstructure:"region"`
	AccessKey string            `json:"access_key,omitempty" mapstructure:"access_key"` // S3 access key or Azure account name
	SecretKey string            `json:"secret_key,omitempty" mapstructure:"secret_key"` // S3 secret key or Azure account key
	Options   map[string]string `json:"options,omitempty" mapstructure:"options"`

	// DirectIO skips the page cache after local writes (Linux only).
	DirectIO bool `json:"direct_io,omitempty" mapstructure:"direct_io"`
}
