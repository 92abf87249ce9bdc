// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package derived

import (
	"context"
	"fmt"

	"github.com/bpowers/datapack"
)

// Deriver computes the derived value for a single id.  Implementations
// may consult mapping for the values of the id's dependencies, and are
// responsible for persisting anything besides the value itself.
type Deriver[V any] interface {
	Derive(ctx context.Context, id datapack.HgID, mapping Mapping[V]) (V, error)
}

// BatchDeriver is implemented by Derivers that have a faster way to
// derive many ids at once than one at a time.
type BatchDeriver[V any] interface {
	Deriver[V]
	DeriveBatch(ctx context.Context, ids []datapack.HgID, mapping Mapping[V]) (map[datapack.HgID]V, error)
}

// Derive returns the value for id, deriving and recording it in mapping
// if it isn't there yet.
func Derive[V any](ctx context.Context, d Deriver[V], mapping Mapping[V], id datapack.HgID) (V, error) {
	var zero V

	known, err := mapping.Get(ctx, []datapack.HgID{id})
	if err != nil {
		return zero, fmt.Errorf("mapping.Get(%s): %w", id, err)
	}
	if v, ok := known[id]; ok {
		return v, nil
	}

	v, err := d.Derive(ctx, id, mapping)
	if err != nil {
		return zero, fmt.Errorf("derive %s: %w", id, err)
	}
	if err := mapping.Put(ctx, id, v); err != nil {
		return zero, fmt.Errorf("mapping.Put(%s): %w", id, err)
	}
	return v, nil
}

// DeriveBatch derives values for ids, which should be in dependency order.
// Unless d is a BatchDeriver, ids are derived strictly one after another:
// ids that depend on each other would otherwise each re-derive their
// shared ancestors, which is quadratic in the length of the batch.
func DeriveBatch[V any](ctx context.Context, d Deriver[V], mapping Mapping[V], ids []datapack.HgID) (map[datapack.HgID]V, error) {
	if bd, ok := d.(BatchDeriver[V]); ok {
		return bd.DeriveBatch(ctx, ids, mapping)
	}

	result := make(map[datapack.HgID]V, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := Derive(ctx, d, mapping, id)
		if err != nil {
			return nil, err
		}
		result[id] = v
	}
	return result, nil
}
