// ABOUTME: Tests for the bbolt Backend
// ABOUTME: Verifies durability across reopen and that returned slices are detached copies

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltBackend_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv", "data.bolt")
	ctx := context.Background()

	b, err := NewBoltBackend(path, nil)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, "user@example.com", []byte("record")))
	require.NoError(t, b.Close())

	b, err = NewBoltBackend(path, nil)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "record", string(got))
}

func TestBoltBackend_GetReturnsCopy(t *testing.T) {
	b, err := NewBoltBackend(filepath.Join(t.TempDir(), "data.bolt"), nil)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "k", []byte("abc")))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
