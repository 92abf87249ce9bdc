// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package derived records which content has already had derived data
// computed for it, so repeated requests don't redo the work.
package derived

import (
	"context"
	"sync"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/datapack"
)

// Mapping stores derived values keyed by content id.
type Mapping[V any] interface {
	// Get returns the values known for ids.  Ids with no value are
	// absent from the result.
	Get(ctx context.Context, ids []datapack.HgID) (map[datapack.HgID]V, error)
	Put(ctx context.Context, id datapack.HgID, value V) error
}

const shardCount = 64

type shard[V any] struct {
	mu     sync.RWMutex
	values map[datapack.HgID]V
}

// MemoryMapping is a Mapping held in memory.  The zero value is not
// usable; call NewMemoryMapping.
type MemoryMapping[V any] struct {
	shards [shardCount]shard[V]
}

var _ Mapping[int] = &MemoryMapping[int]{}

// NewMemoryMapping returns an empty MemoryMapping.
func NewMemoryMapping[V any]() *MemoryMapping[V] {
	m := &MemoryMapping[V]{}
	for i := range m.shards {
		m.shards[i].values = make(map[datapack.HgID]V)
	}
	return m
}

// shard hashes the whole id: ids aren't always digests (synthetic ids in
// tools and tests often share a prefix), so leading bytes alone can pile
// every key into one shard.
func (m *MemoryMapping[V]) shard(id datapack.HgID) *shard[V] {
	return &m.shards[farm.Hash64(id[:])%shardCount]
}

func (m *MemoryMapping[V]) Get(_ context.Context, ids []datapack.HgID) (map[datapack.HgID]V, error) {
	result := make(map[datapack.HgID]V, len(ids))
	for _, id := range ids {
		s := m.shard(id)
		s.mu.RLock()
		v, ok := s.values[id]
		s.mu.RUnlock()
		if ok {
			result[id] = v
		}
	}
	return result, nil
}

func (m *MemoryMapping[V]) Put(_ context.Context, id datapack.HgID, value V) error {
	s := m.shard(id)
	s.mu.Lock()
	s.values[id] = value
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored values.
func (m *MemoryMapping[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.values)
		s.mu.RUnlock()
	}
	return n
}

// RegenerateMapping wraps a Mapping, hiding the values of selected ids
// until they are Put again.  It is used to re-derive data that already
// exists.
type RegenerateMapping[V any] struct {
	base Mapping[V]

	mu         sync.Mutex
	regenerate map[datapack.HgID]struct{}
}

var _ Mapping[int] = &RegenerateMapping[int]{}

func NewRegenerateMapping[V any](base Mapping[V]) *RegenerateMapping[V] {
	return &RegenerateMapping[V]{
		base:       base,
		regenerate: make(map[datapack.HgID]struct{}),
	}
}

// Regenerate hides the existing values for ids.
func (m *RegenerateMapping[V]) Regenerate(ids ...datapack.HgID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.regenerate[id] = struct{}{}
	}
}

func (m *RegenerateMapping[V]) Get(ctx context.Context, ids []datapack.HgID) (map[datapack.HgID]V, error) {
	m.mu.Lock()
	visible := make([]datapack.HgID, 0, len(ids))
	for _, id := range ids {
		if _, ok := m.regenerate[id]; !ok {
			visible = append(visible, id)
		}
	}
	m.mu.Unlock()

	return m.base.Get(ctx, visible)
}

func (m *RegenerateMapping[V]) Put(ctx context.Context, id datapack.HgID, value V) error {
	m.mu.Lock()
	delete(m.regenerate, id)
	m.mu.Unlock()

	return m.base.Put(ctx, id, value)
}
