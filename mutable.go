// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datapack

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/bpowers/datapack/internal/datafile"
	"github.com/bpowers/datapack/internal/index"
)

const (
	dataStagingPattern  = ".tmp-datapack.*"
	indexStagingPattern = ".tmp-dataidx.*"
)

// MutablePack accumulates deltas in a staging file inside a directory,
// and publishes them as an immutable pack named by the SHA-1 of its data
// file.  It is safe for concurrent use.
//
// Staging files are only ever visible under a temporary name: a pack
// that is closed (or garbage collected) without being published leaves
// nothing behind.
type MutablePack struct {
	dir     string
	version Version
	logger  *slog.Logger

	mu    sync.Mutex
	state *mutableState // nil after Close
}

// mutableState is everything a single pack-in-progress owns.  It is
// replaced wholesale on Publish.
type mutableState struct {
	dir       string
	version   Version
	f         *os.File
	w         *datafile.Writer
	locations map[index.ID]index.Location
	buf       []byte
}

var _ DeltaStore = &MutablePack{}

// NewMutablePack creates a MutablePack staging new packs in dir.  Only
// Version1 packs can be created.
func NewMutablePack(dir string, version Version, opts ...Option) (*MutablePack, error) {
	options := buildOptions(opts)

	if fi, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidDirectory, dir, err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirectory, dir)
	}
	if version != Version1 {
		return nil, fmt.Errorf("%w: can't create a v%d datapack", ErrUnsupportedVersion, version)
	}

	state, err := newMutableState(dir, version)
	if err != nil {
		return nil, err
	}
	options.logger.Debug("created datapack staging file", "path", state.f.Name())

	return &MutablePack{
		dir:     dir,
		version: version,
		logger:  options.logger,
		state:   state,
	}, nil
}

func newMutableState(dir string, version Version) (*mutableState, error) {
	f, err := os.CreateTemp(dir, dataStagingPattern)
	if err != nil {
		return nil, fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}
	w, err := datafile.NewWriter(f, uint8(version))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("datafile.NewWriter: %w", err)
	}

	s := &mutableState{
		dir:       dir,
		version:   version,
		f:         f,
		w:         w,
		locations: make(map[index.ID]index.Location),
	}
	// an unreachable, unpublished state must not leave its staging file
	// behind
	runtime.SetFinalizer(s, (*mutableState).discard)
	return s, nil
}

// discard closes and removes the staging file.
func (s *mutableState) discard() error {
	runtime.SetFinalizer(s, nil)
	if s.f == nil {
		return nil
	}
	name := s.f.Name()
	closeErr := s.f.Close()
	s.f = nil
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("os.Remove: %w", err)
	}
	return closeErr
}

func (s *mutableState) add(delta *Delta, meta Metadata) error {
	if s.f == nil {
		return ErrClosed
	}
	if len(delta.Key.Path) > MaxPathLen {
		return fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(delta.Key.Path))
	}

	r := datafile.Record{
		Path: []byte(delta.Key.Path),
		ID:   delta.Key.ID,
		Data: delta.Data,
		Meta: meta,
	}
	hasBase := !delta.IsFullText()
	if hasBase {
		r.Base = delta.Base.ID
	}

	record, err := datafile.AppendRecord(s.buf[:0], r, uint8(s.version))
	if err != nil {
		return fmt.Errorf("datafile.AppendRecord: %w", err)
	}
	s.buf = record

	off, err := s.w.Write(record)
	if err != nil {
		return fmt.Errorf("write %s: %w", delta.Key, err)
	}

	s.locations[delta.Key.ID] = index.Location{
		DeltaBase:    r.Base,
		HasDeltaBase: hasBase,
		Offset:       off,
		Size:         uint64(len(record)),
	}
	return nil
}

func (s *mutableState) readEntry(key Key) (*datafile.Entry, error) {
	loc, ok := s.locations[key.ID]
	if !ok {
		return nil, nil
	}

	// make sure buffered records are in the file, so the read below is
	// consistent with what was written
	if err := s.w.Flush(); err != nil {
		return nil, err
	}

	buf := make([]byte, loc.Size)
	n, err := s.f.ReadAt(buf, int64(loc.Offset))
	if err != nil {
		return nil, fmt.Errorf("f.ReadAt(%d, len: %d): %w", loc.Offset, loc.Size, err)
	} else if uint64(n) != loc.Size {
		return nil, fmt.Errorf("short read of %d ReadAt(%d, len: %d)", n, loc.Offset, loc.Size)
	}

	return datafile.ParseEntry(buf, 0, uint8(s.version))
}

// build finalizes the staging file and writes the index next to it,
// returning the staged index file name and the pack's content hash.
func (s *mutableState) build() (indexName, digest string, err error) {
	if len(s.locations) == 0 {
		return "", "", ErrEmptyPack
	}

	digest, err = s.w.Finish()
	if err != nil {
		return "", "", err
	}
	if err := s.f.Sync(); err != nil {
		return "", "", fmt.Errorf("f.Sync: %w", err)
	}

	entries, err := index.Build(s.locations)
	if err != nil {
		return "", "", fmt.Errorf("index.Build: %w", err)
	}

	f, err := os.CreateTemp(s.dir, indexStagingPattern)
	if err != nil {
		return "", "", fmt.Errorf("os.CreateTemp: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	if err := index.Write(f, entries); err != nil {
		cleanup()
		return "", "", fmt.Errorf("index.Write: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return "", "", fmt.Errorf("f.Sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", "", fmt.Errorf("f.Close: %w", err)
	}

	return f.Name(), digest, nil
}

// publish builds the pack files and renames them into place, returning
// the pack's base path.  The state is consumed whether or not publishing
// succeeds.
func (s *mutableState) publish() (string, error) {
	defer func() {
		_ = s.discard()
	}()

	indexName, digest, err := s.build()
	if err != nil {
		return "", err
	}

	base := filepath.Join(s.dir, digest)
	dataPath := base + "." + DataExt
	indexPath := base + "." + IndexExt

	// make the files read-only
	for _, name := range []string{indexName, s.f.Name()} {
		if err := os.Chmod(name, 0444); err != nil {
			_ = os.Remove(indexName)
			return "", fmt.Errorf("os.Chmod(0444): %w", err)
		}
	}

	// the index goes first: once the data file exists under its final
	// name, the pack is complete
	if err := os.Rename(indexName, indexPath); err != nil {
		_ = os.Remove(indexName)
		return "", fmt.Errorf("os.Rename: %w", err)
	}
	if err := os.Rename(s.f.Name(), dataPath); err != nil {
		_ = os.Remove(indexPath)
		return "", fmt.Errorf("os.Rename: %w", err)
	}
	// published: nothing left for discard to remove
	_ = s.f.Close()
	s.f = nil

	return base, nil
}

// Add appends delta to the pack.  Adding the same key more than once is
// allowed; lookups see the most recent copy.
func (mp *MutablePack) Add(delta Delta, meta Metadata) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.state == nil {
		return ErrClosed
	}
	return mp.state.add(&delta, meta)
}

// Publish writes everything added so far out as an immutable pack and
// returns its base path (without extension), or "" if nothing was added.
// Adds that happen after Publish begins go into the next pack.
func (mp *MutablePack) Publish() (string, error) {
	mp.mu.Lock()
	if mp.state == nil {
		mp.mu.Unlock()
		return "", ErrClosed
	}
	fresh, err := newMutableState(mp.dir, mp.version)
	if err != nil {
		mp.mu.Unlock()
		return "", err
	}
	old := mp.state
	mp.state = fresh
	mp.mu.Unlock()

	entryCount, size := len(old.locations), old.w.Offset()
	base, err := old.publish()
	if errors.Is(err, ErrEmptyPack) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("publish datapack: %w", err)
	}

	mp.logger.Info("published datapack", "path", base, "entries", entryCount, "bytes", size)
	return base, nil
}

// Close discards anything added since the last Publish.
func (mp *MutablePack) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.state == nil {
		return nil
	}
	mp.logger.Debug("discarding datapack staging file", "path", mp.state.f.Name(), "entries", len(mp.state.locations))
	err := mp.state.discard()
	mp.state = nil
	return err
}

func (mp *MutablePack) readEntryLocked(key Key) (*datafile.Entry, error) {
	if mp.state == nil {
		return nil, ErrClosed
	}
	return mp.state.readEntry(key)
}

// Get is not supported: packs hold deltas, use GetDeltaChain.
func (mp *MutablePack) Get(Key) ([]byte, error) {
	return nil, ErrUnsupported
}

// GetDelta returns the delta stored for key.
func (mp *MutablePack) GetDelta(key Key) (Delta, bool, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	e, err := mp.readEntryLocked(key)
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
func (mp *MutablePack) GetDeltaChain(key Key) ([]Delta, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var chain []Delta
	next := &key
	for next != nil {
		e, err := mp.readEntryLocked(*next)
		if err == nil && e == nil {
			break
		}
		var d Delta
		if err == nil {
			d, err = deltaFromEntry(e)
		}
		if err != nil {
			if len(chain) == 0 {
				return nil, err
			}
			return chain, &ChainError{Key: *next, Err: err}
		}
		chain = append(chain, d)
		if len(chain) > len(mp.state.locations) {
			return chain, &ChainError{Key: *next, Err: fmt.Errorf("%w: delta chain cycle", ErrCorrupt)}
		}
		next = d.Base
	}

	return chain, nil
}

// GetMeta returns the metadata stored for key.
func (mp *MutablePack) GetMeta(key Key) (Metadata, bool, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	e, err := mp.readEntryLocked(key)
	if err != nil || e == nil {
		return Metadata{}, false, err
	}
	return e.Metadata(), true, nil
}

// GetMissing returns the keys that aren't in the pack.
func (mp *MutablePack) GetMissing(keys []Key) ([]Key, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.state == nil {
		return nil, ErrClosed
	}
	var missing []Key
	for _, k := range keys {
		if _, ok := mp.state.locations[k.ID]; !ok {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// deltaFromEntry copies e out of the buffer it was parsed from.  Base
// keys share the entry's path: the format doesn't record the base's.
func deltaFromEntry(e *datafile.Entry) (Delta, error) {
	data, err := e.Data()
	if err != nil {
		return Delta{}, err
	}
	path := string(e.Path())
	d := Delta{
		Key:  Key{Path: path, ID: e.ID()},
		Data: data,
	}
	if base, ok := e.Base(); ok {
		d.Base = &Key{Path: path, ID: base}
	}
	return d, nil
}
