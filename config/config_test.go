package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "absent.config"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", store.String("address", ""))
	assert.Equal(t, 8080, store.Int("port", 0))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rosetta.config")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 9090
provide-server-info = true
static-response-headers = "X-A: 1|X-B: 2"
`), 0o600))

	store, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, store.Int("port", 0))
	assert.True(t, store.Bool("provide-server-info", false))
	assert.Equal(t, []string{"X-A: 1", "X-B: 2"}, store.StringList("static-response-headers"))
}

func TestGenerateDefaultWritesServerSalt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rosetta.config")
	require.NoError(t, GenerateDefault(path))

	store, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, store.String("server-salt", ""))
}

func TestGenerateDefaultDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rosetta.config")
	require.NoError(t, GenerateDefault(path))
	store1, _ := Load(path)
	salt1 := store1.String("server-salt", "")

	require.NoError(t, GenerateDefault(path))
	store2, _ := Load(path)
	assert.Equal(t, salt1, store2.String("server-salt", ""))
}

func TestHandlerAndMIMEAccessors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rosetta.config")
	require.NoError(t, os.WriteFile(path, []byte(`
"handler.html" = "get-file-handler"
"mime.html" = "text/html; charset=utf-8"
`), 0o600))

	store, err := Load(path)
	require.NoError(t, err)

	v, ok := store.Handler(".html")
	assert.True(t, ok)
	assert.Equal(t, "get-file-handler", v)

	m, ok := store.MIME("html")
	assert.True(t, ok)
	assert.Equal(t, "text/html; charset=utf-8", m)
}
