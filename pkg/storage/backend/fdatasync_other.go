// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package backend

import "os"

// fdatasync falls back to standard Sync on non-Linux platforms.
func fdatasync(f *os.File) error {
	return f.Sync()
}

// fadviseDontNeed is a no-op on non-Linux platforms.
func fadviseDontNeed(f *os.File) error {
	return nil
}

// fallocate is a no-op on non-Linux platforms.
func fallocate(f *os.File, size int64) error {
	return nil
}
