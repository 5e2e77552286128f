package conn

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolWriterRoundTrip(t *testing.T) {
	p := NewPool(16)

	var buf bytes.Buffer
	w := p.Writer(&buf)
	_, err := w.WriteString("hello")
	require.NoError(t, err)
	p.PutWriter(w)

	assert.Equal(t, "hello", buf.String())
}

func TestPoolReusesWriter(t *testing.T) {
	p := NewPool(16)

	var buf1 bytes.Buffer
	w1 := p.Writer(&buf1)
	p.PutWriter(w1)

	var buf2 bytes.Buffer
	w2 := p.Writer(&buf2)
	_, err := w2.WriteString("reused")
	require.NoError(t, err)
	p.PutWriter(w2)

	assert.Equal(t, "reused", buf2.String())
	assert.Equal(t, 0, buf1.Len())
}
