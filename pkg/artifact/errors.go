// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can branch without parsing messages
type Kind int

const (
	KindUnknown Kind = iota

	// ShardWriteFailed means a write failed and no manifest was persisted
	ShardWriteFailed

	// ArtifactNotFound means no manifest could be resolved for the id
	ArtifactNotFound

	// ShardCorrupted means one shard failed verification; Error.Index names it
	ShardCorrupted

	// ArtifactCorrupted means every shard verified but the whole-artifact
	// checksum did not
	ArtifactCorrupted

	// BackendUnavailable means the storage backend could not be reached or
	// is not registered in this process
	BackendUnavailable

	// InvalidConfig means a configuration value was rejected
	InvalidConfig
)

func (k Kind) String() string {
	switch k {
	case ShardWriteFailed:
		return "shard_write_failed"
	case ArtifactNotFound:
		return "artifact_not_found"
	case ShardCorrupted:
		return "shard_corrupted"
	case ArtifactCorrupted:
		return "artifact_corrupted"
	case BackendUnavailable:
		return "backend_unavailable"
	case InvalidConfig:
		return "invalid_config"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrShardWriteFailed   = &Error{Kind: ShardWriteFailed, Index: -1}
	ErrArtifactNotFound   = &Error{Kind: ArtifactNotFound, Index: -1}
	ErrShardCorrupted     = &Error{Kind: ShardCorrupted, Index: -1}
	ErrArtifactCorrupted  = &Error{Kind: ArtifactCorrupted, Index: -1}
	ErrBackendUnavailable = &Error{Kind: BackendUnavailable, Index: -1}
	ErrInvalidConfig      = &Error{Kind: InvalidConfig, Index: -1}
)

// Error is the structured error returned by Service operations.
type Error struct {
	Kind       Kind
	ArtifactID string
	Index      int // Shard index, -1 when the error is not about one shard
	Err        error
}

func newError(kind Kind, artifactID string, err error) *Error {
	return &Error{Kind: kind, ArtifactID: artifactID, Index: -1, Err: err}
}

func shardError(kind Kind, artifactID string, index int, err error) *Error {
	return &Error{Kind: kind, ArtifactID: artifactID, Index: index, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.ArtifactID != "" {
		msg = fmt.Sprintf("artifact %s: %s", e.ArtifactID, msg)
	}
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s (shard %d)", msg, e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.ArtifactID == "" || t.ArtifactID == e.ArtifactID)
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
