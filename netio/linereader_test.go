package netio

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBoundedLineExactlyAtLimit(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("12345\r\nrest"))
	line, overflow, err := ReadBoundedLine(r, 5)
	require.NoError(t, err)
	assert.False(t, overflow)
	assert.Equal(t, "12345", string(line))
}

func TestReadBoundedLineOneByteOverLimit(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("123456\r\nrest"))
	_, overflow, err := ReadBoundedLine(r, 5)
	require.NoError(t, err)
	assert.True(t, overflow)
}

func TestReadBoundedLineDrainsRemainderOnOverflow(t *testing.T) {
	// A small internal buffer forces bufio.Reader.ReadLine to report
	// isPrefix=true partway through the physical line, exercising the
	// drain loop rather than the single-chunk overflow path.
	r := bufio.NewReaderSize(strings.NewReader("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\r\nGET / HTTP/1.1\r\n"), 8)
	_, overflow, err := ReadBoundedLine(r, 4)
	require.NoError(t, err)
	assert.True(t, overflow)

	next, overflow2, err := ReadBoundedLine(r, 4096)
	require.NoError(t, err)
	assert.False(t, overflow2)
	assert.Equal(t, "GET / HTTP/1.1", string(next))
}

func TestReadBoundedLineEOFWithoutTerminator(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("noterminator"))
	line, overflow, err := ReadBoundedLine(r, 64)
	require.NoError(t, err)
	assert.False(t, overflow)
	assert.Equal(t, "noterminator", string(line))
}
