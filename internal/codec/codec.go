// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package codec compresses delta payloads.  A compressed payload is a
// 4-byte little-endian uncompressed length followed by a single raw LZ4
// block.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pierrec/lz4/v4"
)

const (
	headerSize = 4

	// LZ4 can't expand data by more than a factor of 255 per literal run,
	// anything claiming more than that is a corrupted header.
	maxRatio = 255
)

// ErrCorrupt is returned when a compressed payload can't be decoded.
var ErrCorrupt = errors.New("corrupt compressed payload")

// Compress returns data in compressed form.  It never returns nil.
func Compress(data []byte) ([]byte, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("payload of %d bytes too large to compress", len(data))
	}

	// with a destination of at least CompressBlockBound, incompressible
	// input is stored as literals rather than rejected
	out := make([]byte, headerSize+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(out[:headerSize], uint32(len(data)))
	if len(data) == 0 {
		return out[:headerSize], nil
	}

	n, err := lz4.CompressBlock(data, out[headerSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 {
		return nil, errors.New("lz4 compress: no output")
	}
	return out[:headerSize+n], nil
}

// Decompress returns the original form of a payload produced by Compress.
// The returned slice never aliases src.
func Decompress(src []byte) ([]byte, error) {
	if len(src) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the size header", ErrCorrupt, len(src))
	}
	size := uint64(binary.LittleEndian.Uint32(src[:headerSize]))
	block := src[headerSize:]
	if size == 0 {
		return []byte{}, nil
	}
	if size > uint64(len(block))*maxRatio {
		return nil, fmt.Errorf("%w: header claims %d bytes from a %d byte block", ErrCorrupt, size, len(block))
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(block, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4 decompress: %v", ErrCorrupt, err)
	}
	if uint64(n) != size {
		return nil, fmt.Errorf("%w: lz4 decompress: got %d bytes, expected %d", ErrCorrupt, n, size)
	}
	return dst, nil
}
