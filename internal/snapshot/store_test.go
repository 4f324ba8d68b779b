package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveLoad(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)
	defer store.Close()

	blob := []byte(`{"version":2}`)
	require.NoError(t, store.Save("spawns", blob))

	got, err := store.Load("spawns")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	// Overwrite wins.
	require.NoError(t, store.Save("spawns", []byte("v2")))
	got, err = store.Load("spawns")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Save("spawns", []byte("persisted")))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Load("spawns")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
