// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap provides read-only memory maps of whole files.
package mmap

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrEmpty is returned by Open for zero-length files, which can't be mapped.
var ErrEmpty = errors.New("empty file")

// ReaderAt is a read-only view of a file's contents.  The returned slices
// must never be written to.
type ReaderAt struct {
	data     []byte
	isClosed atomic.Bool
}

// Open maps the file at path into memory, hinting to the kernel that
// access will be random.
func Open(path string) (*ReaderAt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	// the mapping stays valid after the descriptor is closed
	defer func() {
		_ = f.Close()
	}()

	stats, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat(%s): %w", path, err)
	}
	size := stats.Size()
	if size == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("%s: file too large to map (%d bytes)", path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("unix.Mmap(%s): %w", path, err)
	}
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("madvise: %w", err)
	}

	return &ReaderAt{data: data}, nil
}

// Data returns the mapped bytes.
func (r *ReaderAt) Data() []byte {
	return r.data
}

// Len returns the length of the mapping in bytes.
func (r *ReaderAt) Len() int {
	return len(r.data)
}

// Close unmaps the file.  It is safe to call multiple times.
func (r *ReaderAt) Close() error {
	if r.isClosed.Swap(true) {
		return nil
	}
	data := r.data
	r.data = nil
	return unix.Munmap(data)
}
