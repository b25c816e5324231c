package docstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "q.py")
	require.NoError(t, os.WriteFile(path, []byte("q = 'SELECT 1'\n"), 0o600))

	s := New()
	text, err := s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "q = 'SELECT 1'\n", text)

	require.NoError(t, s.Write(path, "q = 'SELECT 2'\n"))
	text, err = s.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "q = 'SELECT 2'\n", text)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestStore_WriteNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.py")
	require.NoError(t, New().Write(path, "x"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestStore_Errors(t *testing.T) {
	s := New()
	_, err := s.Read(filepath.Join(t.TempDir(), "missing.py"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	err = s.Write(filepath.Join(t.TempDir(), "no", "such", "dir.py"), "x")
	assert.Error(t, err)
}
