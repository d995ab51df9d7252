// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum computes the content digests used to verify shards and
// whole artifacts. The algorithm is fixed (SHA-256, hex encoded); changing it
// invalidates every existing manifest.
package checksum

import (
	"crypto/subtle"
	"encoding/hex"
	"hash"

	"github.com/LeeDigitalWorks/zapartifact/pkg/utils"
)

// Size is the length of a hex encoded digest
const Size = 64

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	h := utils.Sha256PoolGetHasher()
	h.Write(data)
	sum := h.Sum(nil)
	utils.Sha256PoolPutHasher(h)
	return hex.EncodeToString(sum)
}

// Verify reports whether data hashes to want.
func Verify(data []byte, want string) bool {
	got := Digest(data)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Hasher computes a digest incrementally. It produces the same value as
// Digest over the concatenation of everything written to it.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a Hasher backed by a pooled SHA-256 state.
// Call Sum exactly once; the hasher is returned to the pool afterwards.
func NewHasher() *Hasher {
	return &Hasher{h: utils.Sha256PoolGetHasher()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the hex digest and releases the underlying state.
func (h *Hasher) Sum() string {
	sum := hex.EncodeToString(h.h.Sum(nil))
	utils.Sha256PoolPutHasher(h.h)
	h.h = nil
	return sum
}

// Release returns the state to the pool without computing a digest.
// It is a no-op after Sum, so it can be deferred.
func (h *Hasher) Release() {
	if h.h != nil {
		utils.Sha256PoolPutHasher(h.h)
		h.h = nil
	}
}
