// Package netio implements the socket abstraction (spec §4.A), the bounded
// line reader (§4.B), and the URI codec (§4.C) — the three leaf components
// every other layer of rosettad is built on.
package netio

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/kallhaugen/rosettad/httperr"
)

// Socket is the polymorphic endpoint described in spec §4.A: callers never
// see whether they're talking to a plain or TLS connection except through
// IsSecure.
type Socket interface {
	// ReadLine reads one CRLF-terminated line (see ReadBoundedLine for
	// the exact contract), capped at max bytes.
	ReadLine(max int) (line []byte, overflow bool, err error)
	// ReadExact reads exactly n bytes.
	ReadExact(n int64) ([]byte, error)
	// WriteAll writes b in full.
	WriteAll(b []byte) error
	// Close shuts down and closes the underlying connection.
	Close() error
	// IsSecure reports whether this socket is a TLS socket.
	IsSecure() bool
	// RemoteIP returns the peer's IP address (no port).
	RemoteIP() string
	// SetDeadline sets the read/write deadline on the underlying conn.
	SetDeadline(t time.Time) error
	// Reader exposes the socket's own buffered reader so that higher
	// layers (the envelope parser) can read directly off the same
	// buffer instead of double-buffering.
	Reader() *bufio.Reader
}

type socket struct {
	conn   net.Conn
	reader *bufio.Reader
	secure bool
}

// NewPlain wraps conn (the result of a plain TCP accept) as a Socket.
func NewPlain(conn net.Conn) Socket {
	return &socket{conn: conn, reader: bufio.NewReaderSize(conn, 4096)}
}

// NewTLS wraps conn (already a *tls.Conn, handshake performed separately
// via Handshake) as a Socket.
func NewTLS(conn *tls.Conn) Socket {
	return &socket{conn: conn, reader: bufio.NewReaderSize(conn, 4096), secure: true}
}

// Handshake performs the TLS handshake on conn with a hard deadline,
// matching spec §4.G: "on timeout, shutdown the socket. If the handshake
// completes after the timer fires (race), the connection still closes."
//
// Grounded on go-rawhttp/pkg/tlsconfig's handshake-with-timeout shape,
// reimplemented here over context instead of a bespoke timer struct.
func Handshake(ctx context.Context, conn *tls.Conn, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- conn.HandshakeContext(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			return httperr.Wrap(0, "handshake", err)
		}
		return nil
	case <-ctx.Done():
		conn.Close()
		return httperr.Wrap(0, "handshake", ctx.Err())
	}
}

func (s *socket) ReadLine(max int) ([]byte, bool, error) {
	return ReadBoundedLine(s.reader, max)
}

func (s *socket) ReadExact(n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := readFull(s.reader, buf); err != nil {
		return nil, httperr.Wrap(0, "read", err)
	}
	return buf, nil
}

func (s *socket) WriteAll(b []byte) error {
	off := 0
	for off < len(b) {
		n, err := s.conn.Write(b[off:])
		if err != nil {
			return httperr.Wrap(0, "write", err)
		}
		off += n
	}
	return nil
}

func (s *socket) Close() error {
	if tc, ok := s.conn.(interface{ CloseWrite() error }); ok {
		tc.CloseWrite()
	}
	return s.conn.Close()
}

func (s *socket) Reader() *bufio.Reader { return s.reader }

func (s *socket) IsSecure() bool { return s.secure }

func (s *socket) RemoteIP() string {
	host, _, err := net.SplitHostPort(s.conn.RemoteAddr().String())
	if err != nil {
		return s.conn.RemoteAddr().String()
	}
	return host
}

func (s *socket) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ApplyKeepAlive sets TCP keep-alive on a freshly accepted TCP connection,
// grounded on the teacher's listener.go Accept (SetKeepAlive/
// SetKeepAlivePeriod), minus the PROXY-protocol wrapping that file also
// performed — no analogue for that exists in this spec.
func ApplyKeepAlive(conn net.Conn, period time.Duration) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(period)
}
