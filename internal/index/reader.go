// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/bpowers/datapack/internal/mmap"
)

var (
	// ErrNotFound is returned by Lookup for ids not in the index.
	ErrNotFound = errors.New("not found in index")
	// ErrCorrupt is returned for index files with an impossible shape.
	ErrCorrupt = errors.New("corrupt index")
)

// uint32Slice is a read-only view into a byte array as if it was []uint32
type uint32Slice []byte

func (s uint32Slice) Get(off int) uint32 {
	return binary.BigEndian.Uint32(s[off*4 : off*4+4])
}

// Index is a read-only view of an index file, backed by an mmap'd file.
// It is safe for concurrent use.
type Index struct {
	m       *mmap.ReaderAt
	fanout  uint32Slice
	entries []byte
	len     int
}

// Open maps the index file at path.
func Open(path string) (*Index, error) {
	m, err := mmap.Open(path)
	if errors.Is(err, mmap.ErrEmpty) {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorrupt, path)
	} else if err != nil {
		return nil, err
	}

	idx, err := newIndex(m.Data())
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	idx.m = m
	return idx, nil
}

func newIndex(data []byte) (*Index, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: too short for header (%d bytes)", ErrCorrupt, len(data))
	}
	if version := data[0]; version > Version {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorrupt, version)
	}
	fanoutLen := smallFanoutLen
	if data[1]&configLargeFanout != 0 {
		fanoutLen = largeFanoutLen
	}

	rest := data[headerSize:]
	if len(rest) < fanoutLen*4 {
		return nil, fmt.Errorf("%w: too short for fanout table (%d bytes)", ErrCorrupt, len(rest))
	}
	fanout := uint32Slice(rest[:fanoutLen*4])
	entries := rest[fanoutLen*4:]
	if len(entries)%entrySize != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after entries", ErrCorrupt, len(entries)%entrySize)
	}

	return &Index{
		fanout:  fanout,
		entries: entries,
		len:     len(entries) / entrySize,
	}, nil
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int {
	return idx.len
}

func (idx *Index) fanoutLen() int {
	return len(idx.fanout) / 4
}

// Entry returns the entry at position pos.
func (idx *Index) Entry(pos int) (Entry, error) {
	if pos < 0 || pos >= idx.len {
		return Entry{}, fmt.Errorf("%w: position %d out of range (len %d)", ErrCorrupt, pos, idx.len)
	}
	var e Entry
	e.unmarshalBytes(idx.entries[pos*entrySize : (pos+1)*entrySize])
	return e, nil
}

func (idx *Index) idAt(pos int) []byte {
	return idx.entries[pos*entrySize : pos*entrySize+len(ID{})]
}

// bounds returns the range of positions that can contain ids in the
// given fanout bucket.
func (idx *Index) bounds(b int) (start, end int, err error) {
	start = int(idx.fanout.Get(b))
	end = idx.len
	if b+1 < idx.fanoutLen() {
		end = int(idx.fanout.Get(b + 1))
	}
	if start > end || end > idx.len {
		return 0, 0, fmt.Errorf("%w: fanout bucket %d spans [%d, %d) of %d entries", ErrCorrupt, b, start, end, idx.len)
	}
	return start, end, nil
}

// Lookup finds the entry for id, returning it along with its position.
func (idx *Index) Lookup(id ID) (Entry, int, error) {
	start, end, err := idx.bounds(bucket(id, idx.fanoutLen()))
	if err != nil {
		return Entry{}, -1, err
	}

	i := start + sort.Search(end-start, func(i int) bool {
		return bytes.Compare(idx.idAt(start+i), id[:]) >= 0
	})
	if i >= end || !bytes.Equal(idx.idAt(i), id[:]) {
		return Entry{}, -1, ErrNotFound
	}

	e, err := idx.Entry(i)
	return e, i, err
}

// Contains reports whether id is in the index.
func (idx *Index) Contains(id ID) bool {
	_, _, err := idx.Lookup(id)
	return err == nil
}

// Close unmaps the index file.
func (idx *Index) Close() error {
	if idx.m == nil {
		return nil
	}
	return idx.m.Close()
}
