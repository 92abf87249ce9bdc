// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datapack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// OpenDir opens every published pack in dir, most recently written
// first.  Packs that fail to open are logged and skipped.
func OpenDir(dir string, opts ...Option) ([]*Pack, error) {
	options := buildOptions(opts)

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("os.ReadDir: %w", err)
	}

	type candidate struct {
		base    string
		modTime time.Time
	}
	var candidates []candidate
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != "."+DataExt {
			continue
		}
		info, err := de.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		candidates = append(candidates, candidate{
			base:    filepath.Join(dir, strings.TrimSuffix(name, "."+DataExt)),
			modTime: info.ModTime(),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	packs := make([]*Pack, 0, len(candidates))
	for _, c := range candidates {
		p, err := Open(c.base, opts...)
		if err != nil {
			options.logger.Warn("skipping unreadable datapack", "path", c.base, "error", err)
			continue
		}
		packs = append(packs, p)
	}
	return packs, nil
}

// Stores converts packs for use with NewUnionStore.
func Stores(packs []*Pack) []DeltaStore {
	stores := make([]DeltaStore, len(packs))
	for i, p := range packs {
		stores[i] = p
	}
	return stores
}
