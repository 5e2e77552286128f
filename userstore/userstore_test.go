package userstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUsersFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".users")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAndAuthenticate(t *testing.T) {
	salt := "pepper"
	hash := hashFor(t, "secret", salt)
	path := writeUsersFile(t, "alice:"+hash+":editor\n")

	store, err := Load(path, salt)
	require.NoError(t, err)

	ticket, ok := store.Authenticate("alice", "secret")
	assert.True(t, ok)
	assert.Equal(t, "alice", ticket.Username)
	assert.Equal(t, "editor", ticket.Role)

	_, ok = store.Authenticate("alice", "wrong")
	assert.False(t, ok)

	_, ok = store.Authenticate("bob", "secret")
	assert.False(t, ok)
}

func TestLoadRejectsDuplicateUsernames(t *testing.T) {
	path := writeUsersFile(t, "alice:x:editor\nalice:y:root\n")
	_, err := Load(path, "pepper")
	assert.Error(t, err)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeUsersFile(t, "not-a-valid-line\n")
	_, err := Load(path, "pepper")
	assert.Error(t, err)
}

func TestCreateChangeDeleteUser(t *testing.T) {
	path := writeUsersFile(t, "root:x:root\n")
	store, err := Load(path, "pepper")
	require.NoError(t, err)

	require.NoError(t, store.CreateUser("bob", "pw1", "viewer"))
	_, ok := store.Role("bob")
	assert.True(t, ok)

	err = store.CreateUser("bob", "pw2", "viewer")
	assert.Error(t, err)

	require.NoError(t, store.ChangeRole("bob", "editor"))
	role, _ := store.Role("bob")
	assert.Equal(t, "editor", role)

	require.NoError(t, store.ChangePassword("bob", "pw3"))
	_, ok = store.Authenticate("bob", "pw3")
	assert.True(t, ok)

	require.NoError(t, store.DeleteUser("bob"))
	err = store.DeleteUser("bob")
	assert.Error(t, err)
}

// hashFor mirrors Store.hashPassword without needing an instance.
func hashFor(t *testing.T, password, salt string) string {
	t.Helper()
	tmp := writeUsersFile(t, "placeholder:x:root\n")
	store, err := Load(tmp, salt)
	require.NoError(t, err)
	return store.hashPassword(password)
}
