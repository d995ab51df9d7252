// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package encryption seals shard payloads at rest with XChaCha20-Poly1305.
//
// Each artifact gets its own key, derived from the master key with
// HKDF-SHA256 over the artifact ID. The stored blob layout is:
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
//
// The version byte, artifact ID and shard index are authenticated as
// additional data, so a shard copied to another position or artifact
// fails to open.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of the master key and every derived key
const KeySize = chacha20poly1305.KeySize

// BlobVersion is the first byte of every sealed shard
const BlobVersion byte = 0x01

// Overhead is the number of bytes Seal adds to a payload
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var hkdfInfoArtifact = []byte("zapartifact.shard.v1")

// ErrOpen is returned when a sealed blob fails authentication
var ErrOpen = errors.New("shard decryption failed")

// Sealer encrypts and decrypts shard payloads under one master key
type Sealer struct {
	masterKey []byte
}

// NewSealer creates a sealer. The key must be KeySize bytes and is copied.
func NewSealer(masterKey []byte) (*Sealer, error) {
	if len(masterKey) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(masterKey))
	}
	key := make([]byte, KeySize)
	copy(key, masterKey)
	return &Sealer{masterKey: key}, nil
}

// ParseKey decodes a hex encoded master key as found in configuration
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes (%d hex chars), got %d bytes", KeySize, KeySize*2, len(key))
	}
	return key, nil
}

// GenerateKey returns a new random master key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func (s *Sealer) artifactKey(artifactID string) ([]byte, error) {
	info := make([]byte, 0, len(hkdfInfoArtifact)+len(artifactID))
	info = append(info, hkdfInfoArtifact...)
	info = append(info, artifactID...)

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.masterKey, nil, info), key); err != nil {
		return nil, fmt.Errorf("derive artifact key: %w", err)
	}
	return key, nil
}

func buildAAD(version byte, artifactID string, index int) []byte {
	aad := make([]byte, 0, 1+8+len(artifactID))
	aad = append(aad, version)
	aad = binary.BigEndian.AppendUint64(aad, uint64(index))
	return append(aad, artifactID...)
}

// Seal encrypts the payload of shard index of an artifact
func (s *Sealer) Seal(artifactID string, index int, plaintext []byte) ([]byte, error) {
	key, err := s.artifactKey(artifactID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = BlobVersion
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(out, out[1:], plaintext, buildAAD(BlobVersion, artifactID, index)), nil
}

// Open decrypts a blob produced by Seal for the same artifact and index.
// Authentication failures wrap ErrOpen.
func (s *Sealer) Open(artifactID string, index int, blob []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrOpen, len(blob), Overhead)
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: unsupported blob version %d", ErrOpen, blob[0])
	}

	key, err := s.artifactKey(artifactID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := blob[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, blob[1+aead.NonceSize():], buildAAD(blob[0], artifactID, index))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return plaintext, nil
}
