// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/bpowers/datapack/internal/codec"
)

const (
	// IDLen is the width of content ids stored in records.
	IDLen = 20

	// MaxPathLen is the longest path a record can hold.
	MaxPathLen = math.MaxUint16

	// Version0 records have no metadata block.  They can be read but
	// never written.
	Version0 = 0
	// Version1 records end with a metadata block.
	Version1 = 1

	pathLenSize = 2
	dataLenSize = 8
)

var (
	// ErrCorrupt is returned when a record's declared lengths don't fit in
	// the buffer it is parsed from.
	ErrCorrupt = errors.New("corrupt datapack record")

	errPathTooLong = errors.New("path too long")
)

// Record is the uncompressed form of a single data file entry.
type Record struct {
	Path []byte
	ID   [IDLen]byte
	// Base is all zeroes for full texts.
	Base [IDLen]byte
	Data []byte
	Meta Metadata
}

// AppendRecord compresses r.Data and appends the serialized record to dst.
func AppendRecord(dst []byte, r Record, version uint8) ([]byte, error) {
	if len(r.Path) > MaxPathLen {
		return nil, fmt.Errorf("%w: %d bytes", errPathTooLong, len(r.Path))
	}
	if version != Version1 {
		return nil, fmt.Errorf("can't write version %d records", version)
	}

	compressed, err := codec.Compress(r.Data)
	if err != nil {
		return nil, fmt.Errorf("codec.Compress: %w", err)
	}

	dst = binary.BigEndian.AppendUint16(dst, uint16(len(r.Path)))
	dst = append(dst, r.Path...)
	dst = append(dst, r.ID[:]...)
	dst = append(dst, r.Base[:]...)
	dst = binary.BigEndian.AppendUint64(dst, uint64(len(compressed)))
	dst = append(dst, compressed...)
	dst = r.Meta.AppendTo(dst)

	return dst, nil
}

// IsPathTooLong reports whether err was caused by an oversized path.
func IsPathTooLong(err error) bool {
	return errors.Is(err, errPathTooLong)
}

// Entry is a record parsed in place: Path and the compressed payload
// refer to the buffer the entry was parsed from.  The payload is
// decompressed on first access to Data and cached for the life of the
// entry; Entry is safe for concurrent use.
type Entry struct {
	offset     uint64
	next       uint64
	path       []byte
	id         [IDLen]byte
	base       [IDLen]byte
	compressed []byte
	meta       Metadata

	once sync.Once
	data []byte
	err  error
}

// ParseEntry parses the record starting at off in buf.
func ParseEntry(buf []byte, off uint64, version uint8) (*Entry, error) {
	bufLen := uint64(len(buf))
	pos := off

	need := func(n uint64, what string) error {
		if pos > bufLen || n > bufLen-pos {
			return fmt.Errorf("%w: off %d: %s (%d bytes) beyond bounds (%d)", ErrCorrupt, off, what, n, bufLen)
		}
		return nil
	}

	if err := need(pathLenSize, "path length"); err != nil {
		return nil, err
	}
	pathLen := uint64(binary.BigEndian.Uint16(buf[pos:]))
	pos += pathLenSize

	if err := need(pathLen, "path"); err != nil {
		return nil, err
	}
	e := &Entry{offset: off}
	e.path = buf[pos : pos+pathLen : pos+pathLen]
	pos += pathLen

	if err := need(2*IDLen, "ids"); err != nil {
		return nil, err
	}
	copy(e.id[:], buf[pos:pos+IDLen])
	pos += IDLen
	copy(e.base[:], buf[pos:pos+IDLen])
	pos += IDLen

	if err := need(dataLenSize, "data length"); err != nil {
		return nil, err
	}
	dataLen := binary.BigEndian.Uint64(buf[pos:])
	pos += dataLenSize

	if err := need(dataLen, "data"); err != nil {
		return nil, err
	}
	e.compressed = buf[pos : pos+dataLen : pos+dataLen]
	pos += dataLen

	if version != Version0 {
		n, err := e.meta.parse(buf[pos:])
		if err != nil {
			return nil, fmt.Errorf("off %d: %w", off, err)
		}
		pos += uint64(n)
	}

	e.next = pos
	return e, nil
}

// Offset is where the record starts.
func (e *Entry) Offset() uint64 { return e.offset }

// NextOffset is where the following record starts.
func (e *Entry) NextOffset() uint64 { return e.next }

// Size is the serialized length of the record.
func (e *Entry) Size() uint64 { return e.next - e.offset }

// Path returns the record's path.  It must not be modified.
func (e *Entry) Path() []byte { return e.path }

// ID returns the content id of this record.
func (e *Entry) ID() [IDLen]byte { return e.id }

// Base returns the id of the delta base and whether there is one.
func (e *Entry) Base() ([IDLen]byte, bool) {
	return e.base, e.base != [IDLen]byte{}
}

// Metadata returns the record's metadata.
func (e *Entry) Metadata() Metadata { return e.meta }

// Data returns the decompressed payload.
func (e *Entry) Data() ([]byte, error) {
	e.once.Do(func() {
		e.data, e.err = codec.Decompress(e.compressed)
		if e.err != nil {
			e.err = fmt.Errorf("%w: off %d: %v", ErrCorrupt, e.offset, e.err)
		}
	})
	return e.data, e.err
}
