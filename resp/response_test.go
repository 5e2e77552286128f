package resp

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasonKnownAndUnknownCodes(t *testing.T) {
	assert.Equal(t, "OK", Reason(200))
	assert.Equal(t, "Not Found", Reason(404))
	assert.Equal(t, "Client Error", Reason(499))
	assert.Equal(t, "Server Error", Reason(599))
}

func TestBuilderWritesEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	b := NewBuilder(200, StandardHeaders{ProvideServerInfo: true, ProductName: "rosettad"})
	b.Header("Content-Type", "text/plain")
	require.NoError(t, b.WriteEnvelope(w))
	require.NoError(t, w.Flush())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, out, "Content-Type: text/plain\r\n")
	assert.Contains(t, out, "Server: rosettad\r\n")
	assert.Contains(t, out, "Date: ")
	assert.True(t, strings.HasSuffix(out, "\r\n\r\n"))
}

func TestBuilderOmitsServerHeaderWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	b := NewBuilder(404, StandardHeaders{})
	require.NoError(t, b.WriteEnvelope(w))
	require.NoError(t, w.Flush())

	assert.NotContains(t, buf.String(), "Server:")
	assert.True(t, strings.HasPrefix(buf.String(), "HTTP/1.1 404 Not Found\r\n"))
}

func TestParseStaticResponseHeaders(t *testing.T) {
	assert.Equal(t, []string{"X-A: 1", "X-B: 2"}, ParseStaticResponseHeaders("X-A: 1|X-B: 2"))
	assert.Nil(t, ParseStaticResponseHeaders(""))
}

func TestStreamBytes(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	body := bytes.Repeat([]byte("x"), 20000)

	require.NoError(t, StreamBytes(w, body))
	require.NoError(t, w.Flush())
	assert.Equal(t, body, buf.Bytes())
}
