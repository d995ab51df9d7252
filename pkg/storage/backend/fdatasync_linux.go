// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package backend

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync syncs file data to disk without flushing unnecessary metadata.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

// fadviseDontNeed lets the kernel drop the page cache for a file that was just
// written and will not be re-read soon.
func fadviseDontNeed(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}

// fallocate preallocates disk space for a file so a shard write fails early
// instead of running out of space midway. Unsupported filesystems return an
// error that callers may ignore.
func fallocate(f *os.File, size int64) error {
	return unix.Fallocate(int(f.Fd()), 0, 0, size)
}
