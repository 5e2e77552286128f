package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinifyStripsWhitespaceForKnownType(t *testing.T) {
	m := NewMinifier()
	out := m.Minify("text/html; charset=utf-8", []byte("<html>   <body>   hi   </body>   </html>"))
	assert.Less(t, len(out), len("<html>   <body>   hi   </body>   </html>"))
}

func TestMinifyPassesThroughUnknownType(t *testing.T) {
	m := NewMinifier()
	body := []byte("binary-ish content")
	out := m.Minify("application/octet-stream", body)
	assert.Equal(t, body, out)
}
