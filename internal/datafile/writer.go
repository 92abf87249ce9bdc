// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

const (
	defaultBufferSize = 1024 * 1024
)

type nopWriter struct{}

func (nopWriter) Write([]byte) (int, error) {
	return 0, io.EOF
}

// Writer appends records to a data file, tracking the offset of each
// record and the SHA-1 of every byte written, starting with the version
// header.
type Writer struct {
	w        *bufio.Writer
	h        hash.Hash
	off      uint64
	finished bool
}

// NewWriter writes the version header to f and returns a Writer ready to
// append records after it.
func NewWriter(f io.Writer, version uint8) (*Writer, error) {
	if version != Version1 {
		return nil, fmt.Errorf("can't write version %d data files", version)
	}
	w := &Writer{
		w: bufio.NewWriterSize(f, defaultBufferSize),
		h: sha1.New(),
	}

	if _, err := w.write([]byte{version}); err != nil {
		return nil, fmt.Errorf("write version: %w", err)
	}

	// try to expose errors when writing to the backing file early
	if err := w.w.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	return w, nil
}

func (w *Writer) write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	// hash.Hash never returns an error
	_, _ = w.h.Write(p[:n])
	w.off += uint64(n)
	return n, err
}

// Write appends a serialized record, returning the offset it starts at.
func (w *Writer) Write(record []byte) (off uint64, err error) {
	if w.finished {
		return 0, fmt.Errorf("write after Finish")
	}
	off = w.off
	if _, err := w.write(record); err != nil {
		return 0, fmt.Errorf("bufio.Write: %w", err)
	}
	return off, nil
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() uint64 {
	return w.off
}

// Flush pushes buffered bytes down to the underlying file, so that reads
// through another handle see everything written.
func (w *Writer) Flush() error {
	if w.finished {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("bufio.Flush: %w", err)
	}
	return nil
}

// Finish flushes the remaining buffered bytes and returns the hex-encoded
// SHA-1 of the whole file.  No writes are allowed afterward.
func (w *Writer) Finish() (string, error) {
	if !w.finished {
		if err := w.Flush(); err != nil {
			return "", err
		}
		w.finished = true
		w.w.Reset(nopWriter{})
	}
	return hex.EncodeToString(w.h.Sum(nil)), nil
}
