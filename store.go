// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datapack

import (
	"errors"
)

// DeltaStore is implemented by both MutablePack and Pack, so callers can
// treat packs that are still being written and published packs alike.
//
// Absence is not an error: lookups of unknown keys report found == false
// or a nil chain.
type DeltaStore interface {
	// Get returns the full content for key.  Packs return ErrUnsupported.
	Get(key Key) ([]byte, error)
	GetDelta(key Key) (Delta, bool, error)
	// GetDeltaChain returns the delta for key followed by as many of its
	// bases as the store holds.  If reading fails after at least one
	// delta was read, the partial chain is returned with a *ChainError.
	GetDeltaChain(key Key) ([]Delta, error)
	GetMeta(key Key) (Metadata, bool, error)
	GetMissing(keys []Key) ([]Key, error)
}

// IsCompleteChain reports whether chain ends in a full text.
func IsCompleteChain(chain []Delta) bool {
	return len(chain) > 0 && chain[len(chain)-1].IsFullText()
}

// UnionStore layers DeltaStores in priority order.  Delta chains that end
// early in one store are continued in the others.
type UnionStore struct {
	stores []DeltaStore
}

var _ DeltaStore = &UnionStore{}

// NewUnionStore returns a store that consults stores in order.
func NewUnionStore(stores ...DeltaStore) *UnionStore {
	return &UnionStore{stores: stores}
}

// Get returns the content from the first store that supports raw reads
// and has key.
func (u *UnionStore) Get(key Key) ([]byte, error) {
	for _, s := range u.stores {
		data, err := s.Get(key)
		if errors.Is(err, ErrUnsupported) {
			continue
		} else if err != nil {
			return nil, err
		}
		if data != nil {
			return data, nil
		}
	}
	return nil, ErrUnsupported
}

// GetDelta returns the delta for key from the first store that has it.
func (u *UnionStore) GetDelta(key Key) (Delta, bool, error) {
	for _, s := range u.stores {
		d, ok, err := s.GetDelta(key)
		if err != nil || ok {
			return d, ok, err
		}
	}
	return Delta{}, false, nil
}

// GetDeltaChain stitches together the chain for key across stores.  The
// result may still be incomplete if no store holds the last base; use
// IsCompleteChain when a full text is required.
func (u *UnionStore) GetDeltaChain(key Key) ([]Delta, error) {
	var chain []Delta
	next := key
	for _, s := range u.stores {
		part, err := s.GetDeltaChain(next)
		if err != nil {
			chain = append(chain, part...)
			if len(chain) == 0 {
				return nil, err
			}
			var chainErr *ChainError
			if !errors.As(err, &chainErr) {
				err = &ChainError{Key: next, Err: err}
			}
			return chain, err
		}
		if len(part) == 0 {
			continue
		}
		chain = append(chain, part...)
		last := part[len(part)-1]
		if last.IsFullText() {
			return chain, nil
		}
		next = *last.Base
	}
	return chain, nil
}

// GetMeta returns the metadata for key from the first store that has it.
func (u *UnionStore) GetMeta(key Key) (Metadata, bool, error) {
	for _, s := range u.stores {
		m, ok, err := s.GetMeta(key)
		if err != nil || ok {
			return m, ok, err
		}
	}
	return Metadata{}, false, nil
}

// GetMissing returns the keys that no store has.
func (u *UnionStore) GetMissing(keys []Key) ([]Key, error) {
	missing := keys
	for _, s := range u.stores {
		if len(missing) == 0 {
			break
		}
		var err error
		if missing, err = s.GetMissing(missing); err != nil {
			return nil, err
		}
	}
	return missing, nil
}
