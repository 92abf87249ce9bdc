// Copyright 2026 The datapack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "contents")
	require.NoError(t, os.WriteFile(path, []byte("hello, mmap"), 0644))

	r, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 11, r.Len())
	assert.Equal(t, "hello, mmap", string(r.Data()))

	require.NoError(t, r.Close())
	// multiple closes should be fine
	require.NoError(t, r.Close())
	assert.Nil(t, r.Data())
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	_, err := Open("/doesnt/exist")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmpty))
}
