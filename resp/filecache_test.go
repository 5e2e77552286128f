package resp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCacheCacheable(t *testing.T) {
	fc := NewFileCache(1<<20, []string{".html", ".CSS"})
	defer fc.Close()

	assert.True(t, fc.Cacheable("/www/index.html"))
	assert.True(t, fc.Cacheable("/www/style.css"))
	assert.False(t, fc.Cacheable("/www/app.js"))
}

func TestFileCachePutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")
	body := []byte("<html></html>")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	fi, err := os.Stat(path)
	require.NoError(t, err)

	fc := NewFileCache(1<<20, []string{".html"})
	defer fc.Close()

	_, ok := fc.Get(path, fi)
	assert.False(t, ok)

	fc.Put(path, fi, body)
	got, ok := fc.Get(path, fi)
	require.True(t, ok)
	assert.Equal(t, body, got)
}

func TestFileCacheMissOnSizeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	fi, err := os.Stat(path)
	require.NoError(t, err)

	fc := NewFileCache(1<<20, []string{".html"})
	defer fc.Close()
	fc.Put(path, fi, []byte("abc"))

	require.NoError(t, os.WriteFile(path, []byte("abcdef"), 0o644))
	fi2, err := os.Stat(path)
	require.NoError(t, err)

	_, ok := fc.Get(path, fi2)
	assert.False(t, ok)
}
