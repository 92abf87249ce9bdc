// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (s *safeBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]byte(nil), s.buf...)
}

func (s *safeBuffer) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

type testWriter struct {
	writeShouldError bool
}

func (c *testWriter) Write(p []byte) (n int, err error) {
	if c.writeShouldError {
		return 0, errors.New("write failed")
	}
	return len(p), nil
}

func testRecord(i int) Record {
	path := []byte("dir/file" + strconv.Itoa(i))
	r := Record{
		Path: path,
		ID:   sha1.Sum(path),
		Data: bytes.Repeat([]byte{byte(i)}, i*10),
	}
	if i > 0 {
		r.Base = sha1.Sum([]byte("dir/file" + strconv.Itoa(i-1)))
	}
	if i%2 == 0 {
		flags := uint32(i)
		size := uint64(len(r.Data))
		r.Meta = Metadata{Flags: &flags, Size: &size}
	}
	return r
}

func TestNewWriter_Errors(t *testing.T) {
	_, err := NewWriter(&testWriter{writeShouldError: true}, Version1)
	assert.Error(t, err)

	var fileBytes safeBuffer
	_, err = NewWriter(&fileBytes, Version0)
	assert.Error(t, err)
	assert.Empty(t, fileBytes.Bytes())
}

func TestWriter_RoundTrip(t *testing.T) {
	var fileBytes safeBuffer

	w, err := NewWriter(&fileBytes, Version1)
	require.NoError(t, err)
	// the version header is flushed eagerly
	assert.Equal(t, []byte{Version1}, fileBytes.Bytes())
	assert.Equal(t, uint64(1), w.Offset())

	var offsets []uint64
	var record []byte
	for i := 0; i < 100; i++ {
		record, err = AppendRecord(record[:0], testRecord(i), Version1)
		require.NoError(t, err)
		off, err := w.Write(record)
		require.NoError(t, err)
		offsets = append(offsets, off)
	}

	digest, err := w.Finish()
	require.NoError(t, err)
	// multiple finishes should be fine
	digest2, err := w.Finish()
	require.NoError(t, err)
	assert.Equal(t, digest, digest2)

	_, err = w.Write([]byte("more"))
	assert.Error(t, err)

	contents := fileBytes.Bytes()
	sum := sha1.Sum(contents)
	assert.Equal(t, hex.EncodeToString(sum[:]), digest)
	assert.Equal(t, uint64(len(contents)), w.Offset())

	off := uint64(1)
	for i := 0; i < 100; i++ {
		expected := testRecord(i)
		require.Equal(t, offsets[i], off)

		e, err := ParseEntry(contents, off, Version1)
		require.NoError(t, err)
		assert.Equal(t, expected.Path, e.Path())
		assert.Equal(t, expected.ID, e.ID())
		base, ok := e.Base()
		assert.Equal(t, i > 0, ok)
		assert.Equal(t, expected.Base, base)
		assert.Equal(t, expected.Meta, e.Metadata())

		data, err := e.Data()
		require.NoError(t, err)
		assert.Equal(t, expected.Data, data)

		off = e.NextOffset()
		if i+1 < 100 {
			assert.Equal(t, offsets[i+1]-offsets[i], e.Size())
		}
	}
	assert.Equal(t, uint64(len(contents)), off)
}

func TestWriter_FlushMakesWritesVisible(t *testing.T) {
	var fileBytes safeBuffer

	w, err := NewWriter(&fileBytes, Version1)
	require.NoError(t, err)

	record, err := AppendRecord(nil, testRecord(3), Version1)
	require.NoError(t, err)
	_, err = w.Write(record)
	require.NoError(t, err)
	// still buffered
	assert.Equal(t, 1, len(fileBytes.Bytes()))

	require.NoError(t, w.Flush())
	assert.Equal(t, 1+len(record), len(fileBytes.Bytes()))
}
