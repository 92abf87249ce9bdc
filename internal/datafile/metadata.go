// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datafile

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	metaKeyFlags = 'f'
	metaKeySize  = 's'

	metaLenSize     = 4
	metaItemHdrSize = 1 + 2
)

// Metadata holds optional facts about a stored delta.  A nil field is
// absent, which is distinct from a present zero.
type Metadata struct {
	Flags *uint32
	Size  *uint64
}

// AppendTo appends the serialized metadata block to dst.
func (m Metadata) AppendTo(dst []byte) []byte {
	var items []byte
	if m.Flags != nil {
		items = append(items, metaKeyFlags)
		items = binary.BigEndian.AppendUint16(items, 4)
		items = binary.BigEndian.AppendUint32(items, *m.Flags)
	}
	if m.Size != nil {
		items = append(items, metaKeySize)
		items = binary.BigEndian.AppendUint16(items, 8)
		items = binary.BigEndian.AppendUint64(items, *m.Size)
	}

	dst = binary.BigEndian.AppendUint32(dst, uint32(len(items)))
	return append(dst, items...)
}

// parse reads a metadata block from the start of buf, returning the
// number of bytes consumed.  Unknown keys are skipped.
func (m *Metadata) parse(buf []byte) (int, error) {
	if len(buf) < metaLenSize {
		return 0, fmt.Errorf("%w: metadata length beyond bounds (%d)", ErrCorrupt, len(buf))
	}
	listLen := uint64(binary.BigEndian.Uint32(buf))
	if listLen > uint64(len(buf)-metaLenSize) {
		return 0, fmt.Errorf("%w: metadata list (%d bytes) beyond bounds (%d)", ErrCorrupt, listLen, len(buf)-metaLenSize)
	}
	list := buf[metaLenSize : metaLenSize+listLen]

	*m = Metadata{}
	for len(list) > 0 {
		if len(list) < metaItemHdrSize {
			return 0, fmt.Errorf("%w: truncated metadata item", ErrCorrupt)
		}
		key := list[0]
		valueLen := int(binary.BigEndian.Uint16(list[1:3]))
		list = list[metaItemHdrSize:]
		if valueLen > len(list) {
			return 0, fmt.Errorf("%w: metadata value (%d bytes) beyond bounds (%d)", ErrCorrupt, valueLen, len(list))
		}
		value := list[:valueLen]
		list = list[valueLen:]

		switch key {
		case metaKeyFlags:
			v, err := readUint(value, math.MaxUint32)
			if err != nil {
				return 0, fmt.Errorf("flags: %w", err)
			}
			flags := uint32(v)
			m.Flags = &flags
		case metaKeySize:
			v, err := readUint(value, math.MaxUint64)
			if err != nil {
				return 0, fmt.Errorf("size: %w", err)
			}
			m.Size = &v
		}
	}

	return metaLenSize + int(listLen), nil
}

// readUint decodes a big-endian unsigned integer of up to 8 bytes.
func readUint(b []byte, max uint64) (uint64, error) {
	if len(b) > 8 {
		return 0, fmt.Errorf("%w: %d byte integer", ErrCorrupt, len(b))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	if v > max {
		return 0, fmt.Errorf("%w: %d out of range", ErrCorrupt, v)
	}
	return v, nil
}
