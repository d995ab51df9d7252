// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

func init() {
	Register(types.StorageTypeAzure, NewAzure)
}

// Azure implements BackendStorage for Azure Blob Storage. Bucket names the
// container; AccessKey/SecretKey are the account name and key unless
// Options["connection_string"] is set (Azurite).
type Azure struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzure creates an Azure Blob backend
func NewAzure(cfg types.BackendConfig) (types.BackendStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("container (bucket) required for Azure backend")
	}

	var (
		client *azblob.Client
		err    error
	)
	if cs := cfg.Options["connection_string"]; cs != "" {
		client, err = azblob.NewClientFromConnectionString(cs, nil)
	} else {
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return nil, fmt.Errorf("account name and key required for Azure backend")
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccessKey)
		}
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccessKey, cfg.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create Azure client: %w", err)
	}

	return &Azure{
		client:    client,
		container: cfg.Bucket,
		prefix:    cfg.Prefix,
	}, nil
}

func (a *Azure) Type() types.StorageType {
	return types.StorageTypeAzure
}

func (a *Azure) blobName(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return a.prefix + cleaned, nil
}

func isAzureNotFound(err error) bool {
	return bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound)
}

func (a *Azure) Write(ctx context.Context, key string, data io.Reader, size int64) error {
	name, err := a.blobName(key)
	if err != nil {
		return err
	}
	if _, err := a.client.UploadStream(ctx, a.container, name, data, nil); err != nil {
		return fmt.Errorf("azure upload: %w", err)
	}
	return nil
}

func (a *Azure) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.ReadRange(ctx, key, 0, 0)
}

func (a *Azure) ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	name, err := a.blobName(key)
	if err != nil {
		return nil, err
	}

	var opts *azblob.DownloadStreamOptions
	if offset > 0 || length > 0 {
		opts = &azblob.DownloadStreamOptions{
			Range: azblob.HTTPRange{Offset: offset, Count: max(length, 0)},
		}
	}

	resp, err := a.client.DownloadStream(ctx, a.container, name, opts)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("azure download: %w", err)
	}
	return resp.Body, nil
}

func (a *Azure) Delete(ctx context.Context, key string) error {
	name, err := a.blobName(key)
	if err != nil {
		return err
	}
	if _, err := a.client.DeleteBlob(ctx, a.container, name, nil); err != nil && !isAzureNotFound(err) {
		return fmt.Errorf("azure delete: %w", err)
	}
	return nil
}

func (a *Azure) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.Size(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (a *Azure) Size(ctx context.Context, key string) (int64, error) {
	name, err := a.blobName(key)
	if err != nil {
		return 0, err
	}
	props, err := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return 0, notFound(key)
		}
		return 0, fmt.Errorf("azure properties: %w", err)
	}
	if props.ContentLength == nil {
		return 0, nil
	}
	return *props.ContentLength, nil
}

func (a *Azure) Close() error {
	return nil
}
