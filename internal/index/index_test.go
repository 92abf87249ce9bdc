// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package index

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID(s string) ID {
	return sha1.Sum([]byte(s))
}

func writeIndex(t testing.TB, locations map[ID]Location) *Index {
	t.Helper()

	entries, err := Build(locations)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "test.dataidx")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, Write(f, entries))
	require.NoError(t, f.Close())

	idx, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = idx.Close()
	})
	return idx
}

func TestBuild(t *testing.T) {
	t.Parallel()

	a, b, c, outside := testID("a"), testID("b"), testID("c"), testID("outside")
	entries, err := Build(map[ID]Location{
		a: {Offset: 1, Size: 10},
		b: {Offset: 11, Size: 20, DeltaBase: a, HasDeltaBase: true},
		c: {Offset: 31, Size: 30, DeltaBase: outside, HasDeltaBase: true},
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	positions := make(map[ID]int32)
	for i, e := range entries {
		if i > 0 {
			require.Equal(t, -1, bytes.Compare(entries[i-1].ID[:], e.ID[:]))
		}
		positions[e.ID] = int32(i)
	}

	for _, e := range entries {
		switch e.ID {
		case a:
			assert.Equal(t, int32(-1), e.DeltaBasePos)
			assert.Equal(t, uint64(1), e.Offset)
			assert.Equal(t, uint64(10), e.Size)
		case b:
			assert.Equal(t, positions[a], e.DeltaBasePos)
		case c:
			// bases that live in a different pack aren't resolved
			assert.Equal(t, int32(-1), e.DeltaBasePos)
		}
	}

	_, err = Build(nil)
	assert.True(t, errors.Is(err, ErrEmpty))
	assert.True(t, errors.Is(Write(&bytes.Buffer{}, nil), ErrEmpty))
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	locations := make(map[ID]Location)
	var prev ID
	for i := 0; i < 5000; i++ {
		id := testID(strconv.Itoa(i))
		loc := Location{Offset: uint64(i) * 100, Size: uint64(i)}
		if i%3 != 0 {
			loc.DeltaBase = prev
			loc.HasDeltaBase = true
		}
		locations[id] = loc
		prev = id
	}

	idx := writeIndex(t, locations)
	require.Equal(t, len(locations), idx.Len())

	for id, loc := range locations {
		e, pos, err := idx.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, id, e.ID)
		assert.Equal(t, loc.Offset, e.Offset)
		assert.Equal(t, loc.Size, e.Size)

		byPos, err := idx.Entry(pos)
		require.NoError(t, err)
		assert.Equal(t, e, byPos)

		if loc.HasDeltaBase {
			base, err := idx.Entry(int(e.DeltaBasePos))
			require.NoError(t, err)
			assert.Equal(t, loc.DeltaBase, base.ID)
		} else {
			assert.Equal(t, int32(-1), e.DeltaBasePos)
		}
	}

	for _, negative := range []string{"", "doesn't exist", "5000"} {
		_, _, err := idx.Lookup(testID(negative))
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.False(t, idx.Contains(testID(negative)))
	}

	_, err := idx.Entry(-1)
	assert.Error(t, err)
	_, err = idx.Entry(idx.Len())
	assert.Error(t, err)
}

func TestLookup_BucketEdges(t *testing.T) {
	t.Parallel()

	var first, second, last, lastButOne ID
	second[1] = 1
	for i := range last {
		last[i] = 0xff
	}
	lastButOne = last
	lastButOne[19] = 0xfe
	// shares first's bucket
	var firstSibling ID
	firstSibling[19] = 1

	idx := writeIndex(t, map[ID]Location{
		first:        {Offset: 1},
		firstSibling: {Offset: 2},
		second:       {Offset: 3},
		lastButOne:   {Offset: 4},
		last:         {Offset: 5},
	})

	for id, offset := range map[ID]uint64{first: 1, firstSibling: 2, second: 3, lastButOne: 4, last: 5} {
		e, _, err := idx.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, offset, e.Offset)
	}

	var missing ID
	missing[0] = 0x80
	_, _, err := idx.Lookup(missing)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSmallFanout(t *testing.T) {
	t.Parallel()

	ids := []ID{testID("x"), testID("y"), testID("z")}
	entries, err := Build(map[ID]Location{
		ids[0]: {Offset: 10},
		ids[1]: {Offset: 20},
		ids[2]: {Offset: 30},
	})
	require.NoError(t, err)

	// hand-assemble an index with a 2^8 entry fanout keyed by the first byte
	data := []byte{Version, 0}
	fanout := make([]uint32, smallFanoutLen)
	for _, e := range entries {
		fanout[e.ID[0]]++
	}
	var start uint32
	for _, n := range fanout {
		data = binary.BigEndian.AppendUint32(data, start)
		start += n
	}
	for _, e := range entries {
		var buf [entrySize]byte
		e.marshalTo(buf[:])
		data = append(data, buf[:]...)
	}

	idx, err := newIndex(data)
	require.NoError(t, err)
	assert.Equal(t, smallFanoutLen, idx.fanoutLen())
	for _, e := range entries {
		found, _, err := idx.Lookup(e.ID)
		require.NoError(t, err)
		assert.Equal(t, e, found)
	}
}

func TestOpen_Corrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for name, contents := range map[string][]byte{
		"empty":     nil,
		"header":    {Version},
		"version":   append([]byte{Version + 1, configLargeFanout}, make([]byte, largeFanoutLen*4)...),
		"fanout":    {Version, configLargeFanout, 0, 0, 0, 0},
		"truncated": append([]byte{Version, configLargeFanout}, make([]byte, largeFanoutLen*4+entrySize-1)...),
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, contents, 0644))
		_, err := Open(path)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrCorrupt), name)
	}

	_, err := Open(filepath.Join(dir, "doesnt-exist"))
	assert.Error(t, err)
}

func TestLookup_CorruptFanout(t *testing.T) {
	t.Parallel()

	data := append([]byte{Version, configLargeFanout}, make([]byte, largeFanoutLen*4)...)
	// bucket 0 claims to start past the end of the (empty) entry list
	binary.BigEndian.PutUint32(data[2:6], 7)
	idx, err := newIndex(data)
	require.NoError(t, err)

	_, _, err = idx.Lookup(ID{})
	assert.True(t, errors.Is(err, ErrCorrupt))
}
