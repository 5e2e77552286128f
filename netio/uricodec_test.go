package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	v, err := Decode("hello+world")
	assert.NoError(t, err)
	assert.Equal(t, "hello world", v)

	v, err = Decode("a%20b%2Fc")
	assert.NoError(t, err)
	assert.Equal(t, "a b/c", v)

	_, err = Decode("bad%")
	assert.Error(t, err)

	_, err = Decode("bad%zz")
	assert.Error(t, err)
}

func TestDecodeRejectsNonPrintable(t *testing.T) {
	_, err := Decode("%01")
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, s := range []string{"hello world", "a/b?c=d", "!@#$%^&*()", "plain"} {
		encoded := Encode(s)
		for _, c := range encoded {
			assert.True(t, c < 128)
		}
		decoded, err := Decode(encoded)
		assert.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}

func TestPathSafe(t *testing.T) {
	assert.True(t, PathSafe("/a/b/c"))
	assert.False(t, PathSafe("/a/../b"))
	assert.False(t, PathSafe("/a/./b"))
	assert.False(t, PathSafe("/~root"))
}
