package bddconv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	dir, base, ext, err := splitPath(filepath.Join("a", "b", "img1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("a", "b"), dir)
	assert.Equal(t, "img1", base)
	assert.Equal(t, "jpg", ext)

	_, base, ext, err = splitPath("a.b.png")
	require.NoError(t, err)
	assert.Equal(t, "a.b", base)
	assert.Equal(t, "png", ext)

	_, _, _, err = splitPath("noext")
	assert.Error(t, err)
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	require.NoError(t, ensureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Existing directories are fine.
	require.NoError(t, ensureDir(dir))
}

func TestReadLines(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "lines.txt", "one\ntwo\n\nfour")
	lines, err := readLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "", "four"}, lines)
}
