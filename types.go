// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datapack

import (
	"encoding/hex"
	"fmt"

	"github.com/bpowers/datapack/internal/datafile"
)

const (
	// DataExt is the file extension of pack data files.
	DataExt = "datapack"
	// IndexExt is the file extension of pack index files.
	IndexExt = "dataidx"

	// MaxPathLen is the longest path that can be stored in a pack.
	MaxPathLen = datafile.MaxPathLen
)

// Version is a data file format version.
type Version uint8

const (
	// Version0 packs have no per-delta metadata.  They can be read, but
	// new packs can't be created in this format.
	Version0 Version = datafile.Version0
	// Version1 packs store metadata alongside each delta.
	Version1 Version = datafile.Version1
)

// HgID is a content id: a fixed-width digest identifying one revision of
// a path's content.
type HgID [datafile.IDLen]byte

// NullID is the all-zero id, used as the delta base of full texts.
var NullID HgID

// ParseHgID decodes a hex-encoded id.
func ParseHgID(s string) (HgID, error) {
	var id HgID
	if hex.DecodedLen(len(s)) != len(id) {
		return id, fmt.Errorf("hgid %q: want %d hex digits, got %d", s, 2*len(id), len(s))
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("hgid %q: %w", s, err)
	}
	return id, nil
}

// IsNull reports whether id is NullID.
func (id HgID) IsNull() bool {
	return id == NullID
}

func (id HgID) String() string {
	return hex.EncodeToString(id[:])
}

// Key identifies one versioned content unit.
type Key struct {
	Path string
	ID   HgID
}

// NewKey returns a key for the given path and id.
func NewKey(path string, id HgID) Key {
	return Key{Path: path, ID: id}
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.Path, k.ID)
}

// Delta is a stored payload: either a full text, or a diff against the
// revision named by Base.
type Delta struct {
	Key Key
	// Base is nil for full texts.
	Base *Key
	Data []byte
}

// IsFullText reports whether d has no delta base.
func (d *Delta) IsFullText() bool {
	return d.Base == nil || d.Base.ID.IsNull()
}

// Metadata holds optional facts about a stored delta: Flags and the
// uncompressed Size.  Nil fields are absent; the zero value has no
// fields set.
type Metadata = datafile.Metadata
