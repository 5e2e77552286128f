package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstringListMatches(t *testing.T) {
	assert.True(t, substringListMatches("curl|wget", "curl/7.68.0"))
	assert.False(t, substringListMatches("curl|wget", "Mozilla/5.0"))
	assert.False(t, substringListMatches("", "anything"))
}

func TestParentDir(t *testing.T) {
	assert.Equal(t, "/a/b", parentDir("/a/b/c.txt"))
	assert.Equal(t, "/", parentDir("/c.txt"))
}
