// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datapack

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bpowers/datapack/internal/datafile"
	"github.com/bpowers/datapack/internal/index"
	"github.com/bpowers/datapack/internal/mmap"
)

// Pack is a published, immutable pack, read through a memory map.  It is
// safe for concurrent use.
type Pack struct {
	base    string
	version Version
	data    *mmap.ReaderAt
	idx     *index.Index
	logger  *slog.Logger
}

var _ DeltaStore = &Pack{}

// Open opens the pack with the given base path: the path of the data file
// with or without its extension.
func Open(base string, opts ...Option) (*Pack, error) {
	options := buildOptions(opts)

	base = strings.TrimSuffix(base, "."+DataExt)
	dataPath := base + "." + DataExt

	data, err := mmap.Open(dataPath)
	if errors.Is(err, mmap.ErrEmpty) {
		return nil, fmt.Errorf("%w: %s is invalid", ErrEmptyPack, dataPath)
	} else if err != nil {
		return nil, err
	}

	version := Version(data.Data()[0])
	if version != Version0 && version != Version1 {
		_ = data.Close()
		return nil, fmt.Errorf("%w: %s is v%d", ErrUnsupportedVersion, dataPath, version)
	}

	idx, err := index.Open(base + "." + IndexExt)
	if err != nil {
		_ = data.Close()
		return nil, fmt.Errorf("index.Open: %w", err)
	}

	options.logger.Debug("opened datapack", "path", base, "version", version, "entries", idx.Len())

	return &Pack{
		base:    base,
		version: version,
		data:    data,
		idx:     idx,
		logger:  options.logger,
	}, nil
}

// Path returns the pack's base path.
func (p *Pack) Path() string {
	return p.base
}

// Version returns the format version of the pack's data file.
func (p *Pack) Version() Version {
	return p.version
}

// Len returns the number of distinct deltas in the pack.
func (p *Pack) Len() int {
	return p.idx.Len()
}

// Close unmaps the pack's files.
func (p *Pack) Close() error {
	return errors.Join(p.data.Close(), p.idx.Close())
}

// readEntry parses the record at off in the data file.
func (p *Pack) readEntry(off uint64) (*datafile.Entry, error) {
	return datafile.ParseEntry(p.data.Data(), off, uint8(p.version))
}

// readIndexed reads the record an index entry points at, checking that
// they agree on the id.
func (p *Pack) readIndexed(ie index.Entry) (*datafile.Entry, error) {
	e, err := p.readEntry(ie.Offset)
	if err != nil {
		return nil, err
	}
	if e.ID() != ie.ID {
		return nil, fmt.Errorf("%w: index entry %s points at record for %s", ErrCorrupt, HgID(ie.ID), HgID(e.ID()))
	}
	return e, nil
}

func (p *Pack) lookup(id HgID) (*datafile.Entry, error) {
	ie, _, err := p.idx.Lookup(id)
	if errors.Is(err, index.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return p.readIndexed(ie)
}

// Get is not supported: packs hold deltas, use GetDeltaChain.
func (p *Pack) Get(Key) ([]byte, error) {
	return nil, ErrUnsupported
}

// GetDelta returns the delta stored for key.
func (p *Pack) GetDelta(key Key) (Delta, bool, error) {
	e, err := p.lookup(key.ID)
	if err != nil || e == nil {
		return Delta{}, false, err
	}
	d, err := deltaFromEntry(e)
	if err != nil {
		return Delta{}, false, err
	}
	return d, true, nil
}

// GetDeltaChain returns the delta for key followed by its bases, ending
// at a full text or at the first base not in this pack.  It returns nil
// if key isn't in the pack.
func (p *Pack) GetDeltaChain(key Key) ([]Delta, error) {
	ie, _, err := p.idx.Lookup(key.ID)
	if errors.Is(err, index.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var chain []Delta
	current := key
	for {
		var d Delta
		e, err := p.readIndexed(ie)
		if err == nil {
			d, err = deltaFromEntry(e)
		}
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			return chain, &ChainError{Key: current, Err: err}
		}
		chain = append(chain, d)

		if d.Base == nil {
			return chain, nil
		}
		current = *d.Base

		if ie.DeltaBasePos >= 0 {
			ie, err = p.idx.Entry(int(ie.DeltaBasePos))
			if err == nil && ie.ID != current.ID {
				err = fmt.Errorf("%w: delta base position points at %s, not %s", ErrCorrupt, HgID(ie.ID), current.ID)
			}
		} else {
			ie, _, err = p.idx.Lookup(current.ID)
		}
		if errors.Is(err, index.ErrNotFound) {
			// the rest of the chain lives in another store
			return chain, nil
		} else if err != nil {
			return chain, &ChainError{Key: current, Err: err}
		}
		// a chain can visit each entry at most once
		if len(chain) >= p.idx.Len() {
			return chain, &ChainError{Key: current, Err: fmt.Errorf("%w: delta chain cycle", ErrCorrupt)}
		}
	}
}

// GetMeta returns the metadata stored for key.
func (p *Pack) GetMeta(key Key) (Metadata, bool, error) {
	e, err := p.lookup(key.ID)
	if err != nil || e == nil {
		return Metadata{}, false, err
	}
	return e.Metadata(), true, nil
}

// GetMissing returns the keys that aren't in the pack.
func (p *Pack) GetMissing(keys []Key) ([]Key, error) {
	var missing []Key
	for _, k := range keys {
		if !p.idx.Contains(k.ID) {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// ForEach calls fn for every record in the data file, in the order they
// were written.  Keys added more than once are visited once per copy.
func (p *Pack) ForEach(fn func(Delta, Metadata) error) error {
	data := p.data.Data()
	for off := uint64(1); off < uint64(len(data)); {
		e, err := p.readEntry(off)
		if err != nil {
			return err
		}
		d, err := deltaFromEntry(e)
		if err != nil {
			return err
		}
		if err := fn(d, e.Metadata()); err != nil {
			return err
		}
		off = e.NextOffset()
	}
	return nil
}
