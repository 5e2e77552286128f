package httperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	assert.Equal(t, 414, URITooLong().Status)
	assert.Equal(t, 413, HeaderTooLong().Status)
	assert.Equal(t, 413, TooManyHeaders().Status)
	assert.Equal(t, 400, BadRequest("x").Status)
	assert.Equal(t, 404, NotFound().Status)
	assert.Equal(t, 405, MethodNotAllowed().Status)
	assert.Equal(t, 500, ContentTooLarge().Status)
}

func TestUnauthorizedAllowAuthenticate(t *testing.T) {
	e := Unauthorized(true)
	assert.Equal(t, 401, e.Status)
	assert.True(t, e.AllowAuthenticate)
	assert.False(t, e.Close)

	e = Unauthorized(false)
	assert.False(t, e.AllowAuthenticate)
}

func TestWrapNilCause(t *testing.T) {
	assert.Nil(t, Wrap(500, "op", nil))
}

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(500, "read", cause)
	assert.Contains(t, e.Error(), "read")
	assert.Contains(t, e.Error(), "boom")
	assert.Equal(t, cause, e.Unwrap())
}

func TestIsMatchesByStatus(t *testing.T) {
	a := BadRequest("one")
	b := BadRequest("two")
	assert.True(t, errors.Is(a, b))
}
