// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package index provides small persistent key/value indexes.
// The manifest store keeps its artifact catalog in one.
package index

import (
	"errors"
	"io"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("index: key not found")

// ErrStop can be returned from an Iterate callback to end iteration early
// without an error.
var ErrStop = errors.New("index: stop iteration")

type Indexer[K comparable, V any] interface {
	io.Closer
	Put(key K, value V) error
	Get(key K) (V, error)
	Delete(key K) error
	Iterate(func(key K, value V) error) error

	// Destroy closes the index and removes its files
	Destroy() error

	// PutSync writes with immediate fsync
	PutSync(key K, value V) error

	// DeleteSync deletes with immediate fsync
	DeleteSync(key K) error
}

// StringKey converts string keys for byte oriented stores
func StringKey(k string) []byte { return []byte(k) }

// ParseStringKey is the inverse of StringKey
func ParseStringKey(b []byte) (string, error) { return string(b), nil }
