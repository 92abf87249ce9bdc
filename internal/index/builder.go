// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package index builds and reads datapack index files: a fanout table
// followed by fixed-size entries sorted by content id.
//
//	index      = <version: u8> <config: u8> <fanout> <entry>...
//	fanout     = <first entry position: u32>...  (2^16 buckets, or 2^8)
//	entry      = <id: 20 bytes> <delta base position: i32>
//	             <pack offset: u64> <pack size: u64>
//
// Multi-byte integers are big-endian.  Fanout slot b holds the position
// of the first entry whose id prefix is >= b, so bucket b spans
// [fanout[b], fanout[b+1]).
package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/bpowers/datapack/internal/datafile"
)

const (
	// Version is the index format version written by Write.
	Version = 1

	// configLargeFanout selects 2^16 fanout buckets instead of 2^8.
	configLargeFanout = 0x80

	smallFanoutLen = 1 << 8
	largeFanoutLen = 1 << 16

	headerSize = 2
	entrySize  = datafile.IDLen + 4 + 8 + 8

	maxIndexEntries = math.MaxInt32
)

// ErrEmpty is returned when asked to build an index with no entries.
var ErrEmpty = errors.New("no entries to index")

// ID is a content id.
type ID = [datafile.IDLen]byte

// Location records where a delta lives in a data file.
type Location struct {
	// DeltaBase is meaningful only when HasDeltaBase is set.
	DeltaBase    ID
	HasDeltaBase bool
	Offset       uint64
	Size         uint64
}

// Entry is a single index record.
type Entry struct {
	ID ID
	// DeltaBasePos is the position of the delta base within the same
	// index, or -1 if it is a full text or lives in a different pack.
	DeltaBasePos int32
	Offset       uint64
	Size         uint64
}

// Build sorts locations by id and resolves delta bases to positions.
func Build(locations map[ID]Location) ([]Entry, error) {
	if len(locations) == 0 {
		return nil, ErrEmpty
	}
	if len(locations) > maxIndexEntries {
		return nil, fmt.Errorf("too many entries -- we only support %d in an index (%d asked for)", maxIndexEntries, len(locations))
	}

	entries := make([]Entry, 0, len(locations))
	for id, loc := range locations {
		entries = append(entries, Entry{
			ID:           id,
			DeltaBasePos: -1,
			Offset:       loc.Offset,
			Size:         loc.Size,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].ID[:], entries[j].ID[:]) < 0
	})

	positions := make(map[ID]int32, len(entries))
	for i, e := range entries {
		positions[e.ID] = int32(i)
	}
	for i := range entries {
		loc := locations[entries[i].ID]
		if !loc.HasDeltaBase {
			continue
		}
		if pos, ok := positions[loc.DeltaBase]; ok {
			entries[i].DeltaBasePos = pos
		}
	}

	return entries, nil
}

func bucket(id ID, fanoutLen int) int {
	if fanoutLen == largeFanoutLen {
		return int(binary.BigEndian.Uint16(id[:2]))
	}
	return int(id[0])
}

// Write writes sorted entries, as returned by Build, in index file format.
func Write(w io.Writer, entries []Entry) error {
	if len(entries) == 0 {
		return ErrEmpty
	}

	bw := bufio.NewWriterSize(w, 1024*1024)

	if _, err := bw.Write([]byte{Version, configLargeFanout}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	// count the entries in each bucket, then turn the counts into
	// starting positions
	fanout := make([]uint32, largeFanoutLen)
	for _, e := range entries {
		fanout[bucket(e.ID, largeFanoutLen)]++
	}
	var start uint32
	for b, n := range fanout {
		fanout[b] = start
		start += n
	}

	var buf [entrySize]byte
	for _, pos := range fanout {
		binary.BigEndian.PutUint32(buf[:4], pos)
		if _, err := bw.Write(buf[:4]); err != nil {
			return fmt.Errorf("write fanout: %w", err)
		}
	}

	for _, e := range entries {
		e.marshalTo(buf[:])
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("bufio.Flush: %w", err)
	}
	return nil
}

func (e *Entry) marshalTo(buf []byte) {
	_ = buf[entrySize-1]
	copy(buf[:datafile.IDLen], e.ID[:])
	off := datafile.IDLen
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(e.DeltaBasePos))
	off += 4
	binary.BigEndian.PutUint64(buf[off:off+8], e.Offset)
	off += 8
	binary.BigEndian.PutUint64(buf[off:off+8], e.Size)
}

func (e *Entry) unmarshalBytes(buf []byte) {
	_ = buf[entrySize-1]
	copy(e.ID[:], buf[:datafile.IDLen])
	off := datafile.IDLen
	e.DeltaBasePos = int32(binary.BigEndian.Uint32(buf[off : off+4]))
	off += 4
	e.Offset = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	e.Size = binary.BigEndian.Uint64(buf[off : off+8])
}
