// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package datapack

import (
	"crypto/sha1"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func testID(s string) HgID {
	return HgID(sha1.Sum([]byte(s)))
}

func key(path, id string) Key {
	return NewKey(path, testID(id))
}

func fullText(k Key, data string) Delta {
	return Delta{Key: k, Data: []byte(data)}
}

func deltaOf(k, base Key, data string) Delta {
	return Delta{Key: k, Base: &base, Data: []byte(data)}
}

func flagsPtr(v uint32) *uint32 { return &v }
func sizePtr(v uint64) *uint64  { return &v }

func listDir(t testing.TB, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

type testRevision struct {
	delta Delta
	meta  Metadata
}

// publishPack adds revisions to a fresh MutablePack in dir and opens
// the resulting pack.
func publishPack(t testing.TB, dir string, revisions []testRevision) *Pack {
	t.Helper()

	mp, err := NewMutablePack(dir, Version1)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, mp.Close())
	}()

	for _, r := range revisions {
		require.NoError(t, mp.Add(r.delta, r.meta))
	}
	base, err := mp.Publish()
	require.NoError(t, err)
	require.NotEmpty(t, base)

	p, err := Open(base)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}
