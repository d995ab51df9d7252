// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/LeeDigitalWorks/zapartifact/pkg/types"

	"github.com/stretchr/testify/require"
)

// In-process object store servers speaking just enough of the S3, GCS and
// Azure Blob wire protocols for the real SDK clients to run the contract
// suite against them.

const (
	fakeBucket       = "artifacts"
	azuriteAccount   = "devstoreaccount1"
	azuriteAccessKey = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) put(key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
}

func (f *fakeObjects) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *fakeObjects) delete(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	delete(f.objects, key)
	return ok
}

// serveObject writes data honoring a "bytes=a-b" or "bytes=a-" range.
func serveObject(w http.ResponseWriter, r *http.Request, data []byte, rangeHeader string) {
	start, end := 0, len(data)
	status := http.StatusOK
	if byteRange, ok := strings.CutPrefix(rangeHeader, "bytes="); ok {
		first, last, _ := strings.Cut(byteRange, "-")
		start, _ = strconv.Atoi(first)
		start = min(start, len(data))
		if last != "" {
			if n, err := strconv.Atoi(last); err == nil {
				end = min(n+1, len(data))
			}
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, len(data)))
		status = http.StatusPartialContent
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(end-start))
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data[start:end])
	}
}

func startFakeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func closeOnCleanup(t *testing.T, b types.BackendStorage) types.BackendStorage {
	t.Helper()
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// ============================================================================
// S3 (path-style)
// ============================================================================

func newFakeS3Backend(t *testing.T) types.BackendStorage {
	t.Helper()

	store := newFakeObjects()
	srv := startFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/")

		switch r.Method {
		case http.MethodPut:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			store.put(key, body)
			w.Header().Set("ETag", `"fake"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet, http.MethodHead:
			data, ok := store.get(key)
			if !ok {
				if r.Method == http.MethodHead {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
					`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
				return
			}
			serveObject(w, r, data, r.Header.Get("Range"))
		case http.MethodDelete:
			store.delete(key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	b, err := NewS3(types.BackendConfig{
		Bucket:    fakeBucket,
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	return closeOnCleanup(t, b)
}

// ============================================================================
// GCS (JSON API for metadata and uploads, XML API for reads)
// ============================================================================

func newFakeGCSBackend(t *testing.T) types.BackendStorage {
	t.Helper()

	store := newFakeObjects()
	objectResource := func(bucket, name string, size int) []byte {
		out, _ := json.Marshal(map[string]string{
			"kind":           "storage#object",
			"bucket":         bucket,
			"name":           name,
			"size":           strconv.Itoa(size),
			"generation":     "1",
			"metageneration": "1",
		})
		return out
	}
	jsonNotFound := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"No such object"}}`)
	}

	srv := startFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case strings.HasPrefix(path, "/upload/storage/v1/b/"):
			bucket, _, _ := strings.Cut(strings.TrimPrefix(path, "/upload/storage/v1/b/"), "/")
			if r.URL.Query().Get("uploadType") != "multipart" {
				w.WriteHeader(http.StatusNotImplemented)
				return
			}
			_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mr := multipart.NewReader(r.Body, params["boundary"])
			metaPart, err := mr.NextPart()
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var meta struct {
				Name string `json:"name"`
			}
			_ = json.NewDecoder(metaPart).Decode(&meta)
			mediaPart, err := mr.NextPart()
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			data, err := io.ReadAll(mediaPart)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			name := r.URL.Query().Get("name")
			if name == "" {
				name = meta.Name
			}
			store.put(bucket+"/"+name, data)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(objectResource(bucket, name, len(data)))

		case strings.HasPrefix(path, "/storage/v1/b/"):
			bucket, name, ok := strings.Cut(strings.TrimPrefix(path, "/storage/v1/b/"), "/o/")
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			key := bucket + "/" + name
			switch r.Method {
			case http.MethodGet:
				data, ok := store.get(key)
				if !ok {
					jsonNotFound(w)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(objectResource(bucket, name, len(data)))
			case http.MethodDelete:
				if !store.delete(key) {
					jsonNotFound(w)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}

		default:
			key := strings.TrimPrefix(path, "/")
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			data, ok := store.get(key)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Header().Set("X-Goog-Generation", "1")
			serveObject(w, r, data, r.Header.Get("Range"))
		}
	})

	b, err := NewGCS(types.BackendConfig{
		Bucket:   fakeBucket,
		Endpoint: srv.URL + "/storage/v1/",
		Options:  map[string]string{"anonymous": "true"},
	})
	require.NoError(t, err)
	return closeOnCleanup(t, b)
}

// ============================================================================
// Azure Blob (single-shot block blob uploads)
// ============================================================================

func newFakeAzureBackend(t *testing.T) types.BackendStorage {
	t.Helper()

	store := newFakeObjects()
	blobNotFound := func(w http.ResponseWriter) {
		w.Header().Set("x-ms-error-code", "BlobNotFound")
		w.WriteHeader(http.StatusNotFound)
	}

	srv := startFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/"+azuriteAccount+"/")

		switch r.Method {
		case http.MethodPut:
			if r.URL.Query().Get("comp") != "" {
				w.WriteHeader(http.StatusNotImplemented)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			store.put(key, body)
			w.Header().Set("ETag", `"0x1"`)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet, http.MethodHead:
			data, ok := store.get(key)
			if !ok {
				blobNotFound(w)
				return
			}
			rangeHeader := r.Header.Get("x-ms-range")
			if rangeHeader == "" {
				rangeHeader = r.Header.Get("Range")
			}
			if r.Method == http.MethodHead {
				rangeHeader = ""
			}
			w.Header().Set("x-ms-blob-type", "BlockBlob")
			serveObject(w, r, data, rangeHeader)
		case http.MethodDelete:
			if !store.delete(key) {
				blobNotFound(w)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	b, err := NewAzure(types.BackendConfig{
		Bucket:    fakeBucket,
		Endpoint:  srv.URL + "/" + azuriteAccount + "/",
		AccessKey: azuriteAccount,
		SecretKey: azuriteAccessKey,
	})
	require.NoError(t, err)
	return closeOnCleanup(t, b)
}
