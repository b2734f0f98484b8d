package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore_StoreAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	require.NoError(t, err)

	err = store.Store("7_0_front.png", strings.NewReader("image-bytes"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "7_0_front.png"))
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(data))
	assert.Equal(t, filepath.Join(dir, "7_0_front.png"), store.Path("7_0_front.png"))

	require.NoError(t, store.Delete("7_0_front.png"))
	_, err = os.Stat(filepath.Join(dir, "7_0_front.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestDiskStore_DeleteMissing(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Delete("missing.png"))
}

func TestNewDiskStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	_, err := NewDiskStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
