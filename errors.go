// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datapack

import (
	"errors"
	"fmt"

	"github.com/bpowers/datapack/internal/datafile"
)

var (
	ErrInvalidDirectory   = errors.New("not a directory")
	ErrUnsupportedVersion = errors.New("unsupported datapack version")
	ErrPathTooLong        = errors.New("delta path is longer than 2^16-1 bytes")
	ErrEmptyPack          = errors.New("empty datapack")
	ErrClosed             = errors.New("datapack closed")
	// ErrUnsupported is returned by Get: packs only hold deltas, so raw
	// full-content reads aren't meaningful.
	ErrUnsupported = errors.New("datapack doesn't support raw Get, only GetDeltaChain")
	// ErrCorrupt is returned when a pack's contents can't be parsed.
	ErrCorrupt = datafile.ErrCorrupt
)

// ChainError is returned by GetDeltaChain when reading a delta fails after
// at least one delta of the chain was read.  The partial chain is
// returned alongside it, so callers can decide whether to continue in
// another store or treat the failure as fatal.
type ChainError struct {
	// Key is the delta that couldn't be read.
	Key Key
	Err error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("delta chain broken at %s: %s", e.Key, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}
