package authz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kallhaugen/rosettad/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
}

func mustWriteFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestBuildAndAuthorizeDefaultPolicy(t *testing.T) {
	root := t.TempDir()
	mustMkdir(t, filepath.Join(root, "public"))

	tree, err := Build(root)
	require.NoError(t, err)

	assert.True(t, tree.Authorize(envelope.Ticket{}, filepath.Join(root, "public", "x.html"), "GET"))
	assert.False(t, tree.Authorize(envelope.Ticket{}, filepath.Join(root, "public", "x.html"), "PUT"))
}

func TestAuthorizeWithAuthFile(t *testing.T) {
	root := t.TempDir()
	private := filepath.Join(root, "private")
	mustMkdir(t, private)
	mustWriteFile(t, filepath.Join(private, ".auth"), "GET:editor|viewer\nPUT:editor\n")

	tree, err := Build(root)
	require.NoError(t, err)

	target := filepath.Join(private, "doc.html")
	assert.True(t, tree.Authorize(envelope.Ticket{Role: "viewer"}, target, "GET"))
	assert.False(t, tree.Authorize(envelope.Ticket{Role: "viewer"}, target, "PUT"))
	assert.True(t, tree.Authorize(envelope.Ticket{Role: "editor"}, target, "PUT"))
	assert.False(t, tree.Authorize(envelope.Ticket{}, target, "GET"))
}

func TestAuthorizeRootShortCircuits(t *testing.T) {
	root := t.TempDir()
	private := filepath.Join(root, "private")
	mustMkdir(t, private)
	mustWriteFile(t, filepath.Join(private, ".auth"), "GET:editor\n")

	tree, err := Build(root)
	require.NoError(t, err)

	assert.True(t, tree.Authorize(envelope.Ticket{Role: "root"}, filepath.Join(private, "doc.html"), "DELETE"))
}

func TestAuthorizeRecursesToParent(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, ".auth"), "PUT:editor\n")
	nested := filepath.Join(root, "a", "b")
	mustMkdir(t, nested)

	tree, err := Build(root)
	require.NoError(t, err)

	assert.True(t, tree.Authorize(envelope.Ticket{Role: "editor"}, filepath.Join(nested, "file.txt"), "PUT"))
	assert.False(t, tree.Authorize(envelope.Ticket{Role: "viewer"}, filepath.Join(nested, "file.txt"), "PUT"))
}

func TestAuthorizeWildcardRole(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, ".auth"), "GET:*\n")

	tree, err := Build(root)
	require.NoError(t, err)

	assert.True(t, tree.Authorize(envelope.Ticket{Role: "anyone"}, filepath.Join(root, "x.html"), "GET"))
}
