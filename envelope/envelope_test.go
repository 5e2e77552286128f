package envelope

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpts() Options {
	return Options{
		Limits: Limits{MaxURILength: 4096, MaxHeaderLength: 8192, MaxHeaderCount: 25},
		WWWRoot:         "/srv/www-root",
		DefaultDocument: "index.html",
	}
}

func parseString(t *testing.T, raw string) *Envelope {
	t.Helper()
	env, err := Parse(bufio.NewReader(strings.NewReader(raw)), testOpts())
	require.NoError(t, err)
	return env
}

func TestParseBasicGet(t *testing.T) {
	env := parseString(t, "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")
	assert.Equal(t, "GET", env.Method)
	assert.Equal(t, "/index.html", env.URI)
	assert.Equal(t, "HTTP/1.1", env.HTTPVersion)
	assert.False(t, env.IsFolderRequest)
	assert.Equal(t, "/srv/www-root/index.html", env.ResolvedPath)
	host, ok := env.Headers.Get("Host")
	assert.True(t, ok)
	assert.Equal(t, "example.com", host)
}

func TestParseDefaultVersion(t *testing.T) {
	env := parseString(t, "GET /x\r\nHost: x\r\n\r\n")
	assert.Equal(t, "HTTP/1.1", env.HTTPVersion)
}

func TestParseTrailingSlashAppendsDefaultDocument(t *testing.T) {
	env := parseString(t, "GET / HTTP/1.1\r\n\r\n")
	assert.False(t, env.IsFolderRequest)
	assert.Equal(t, "/srv/www-root/index.html", env.ResolvedPath)
}

func TestParseFolderRequestWithListParameter(t *testing.T) {
	env := parseString(t, "GET /assets/?list HTTP/1.1\r\n\r\n")
	assert.True(t, env.IsFolderRequest)
	assert.Equal(t, "/srv/www-root/assets", env.ResolvedPath)
}

func TestParseFolderRequestForNonGETMethod(t *testing.T) {
	env := parseString(t, "PUT /newdir/ HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	assert.True(t, env.IsFolderRequest)
	assert.Equal(t, "/srv/www-root/newdir", env.ResolvedPath)
}

func TestParseQueryParameters(t *testing.T) {
	env := parseString(t, "GET /x?a=1&b=hi+there HTTP/1.1\r\n\r\n")
	v, ok := env.Parameters.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	v, ok = env.Parameters.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "hi there", v)
}

func TestParseHeaderContinuation(t *testing.T) {
	env := parseString(t, "GET /x HTTP/1.1\r\nX-Thing: one\r\n two\r\n\r\n")
	v, ok := env.Headers.Get("X-Thing")
	assert.True(t, ok)
	assert.Equal(t, "one two", v)
}

func TestParseHeaderCapitalization(t *testing.T) {
	env := parseString(t, "GET /x HTTP/1.1\r\ncontent-type: text/plain\r\n\r\n")
	v, ok := env.Headers.Get("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)
}

func TestParseURITooLong(t *testing.T) {
	_, err := Parse(bufio.NewReader(strings.NewReader("GET /"+strings.Repeat("a", 5000)+" HTTP/1.1\r\n\r\n")), Options{
		Limits: Limits{MaxURILength: 100, MaxHeaderLength: 8192, MaxHeaderCount: 25},
		WWWRoot: "/srv/www-root",
	})
	require.Error(t, err)
}

func TestParseTooManyHeaders(t *testing.T) {
	var b strings.Builder
	b.WriteString("GET /x HTTP/1.1\r\n")
	for i := 0; i < 30; i++ {
		b.WriteString("X-Test: v\r\n")
	}
	b.WriteString("\r\n")

	_, err := Parse(bufio.NewReader(strings.NewReader(b.String())), Options{
		Limits: Limits{MaxURILength: 4096, MaxHeaderLength: 8192, MaxHeaderCount: 25},
		WWWRoot: "/srv/www-root",
	})
	require.Error(t, err)
}

type fakeAuth struct{}

func (fakeAuth) Authenticate(username, password string) (Ticket, bool) {
	if username == "alice" && password == "secret" {
		return Ticket{Username: "alice", Role: "editor"}, true
	}
	return Ticket{}, false
}

func TestParseBasicAuth(t *testing.T) {
	opts := testOpts()
	opts.Authenticator = fakeAuth{}
	env, err := Parse(bufio.NewReader(strings.NewReader(
		"GET /private/ HTTP/1.1\r\nAuthorization: Basic YWxpY2U6c2VjcmV0\r\n\r\n",
	)), opts)
	require.NoError(t, err)
	assert.True(t, env.Ticket.Authenticated())
	assert.Equal(t, "alice", env.Ticket.Username)
	assert.Equal(t, "editor", env.Ticket.Role)
}

func TestParseBasicAuthFailure(t *testing.T) {
	opts := testOpts()
	opts.Authenticator = fakeAuth{}
	_, err := Parse(bufio.NewReader(strings.NewReader(
		"GET /private/ HTTP/1.1\r\nAuthorization: Basic d3Jvbmc6Y3JlZHM=\r\n\r\n",
	)), opts)
	require.Error(t, err)
}
