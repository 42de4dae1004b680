package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "Items.txt"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	content := "\ufeffhttps://example.com/itm/1\r\n\nhttps://example.com/itm/2\n  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Contains("https://example.com/itm/1"))
	assert.True(t, s.Contains("https://example.com/itm/2"))
}

func TestLoadUnreadablePath(t *testing.T) {
	// a directory cannot be scanned as a file
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestDiffAndAddPreservesOrderAndIsMonotonic(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "items.txt"))
	require.NoError(t, err)

	first := s.DiffAndAdd([]string{"c", "a", "b"})
	assert.Equal(t, []string{"c", "a", "b"}, first)

	second := s.DiffAndAdd([]string{"d", "a", "e", "c"})
	assert.Equal(t, []string{"d", "e"}, second)

	assert.Empty(t, s.DiffAndAdd([]string{"a", "b", "c", "d", "e"}))
	assert.Equal(t, 5, s.Len())
}

func TestDiffAndAddDuplicateCandidates(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "items.txt"))
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y"}, s.DiffAndAdd([]string{"x", "y", "x"}))
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	s, err := Load(path)
	require.NoError(t, err)

	batch1 := s.DiffAndAdd([]string{"u1", "u2"})
	require.NoError(t, s.Persist(batch1))
	batch2 := s.DiffAndAdd([]string{"u2", "u3"})
	require.NoError(t, s.Persist(batch2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "u1\nu2\nu3\n", string(data))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.DiffAndAdd([]string{"u1", "u2", "u3"}))
}

func TestPersistNothingDoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	s, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, s.Persist(nil))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestPersistFailsForMissingDirectory(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing", "items.txt"))
	require.NoError(t, err)

	assert.Error(t, s.Persist([]string{"u1"}))
}
