// Package conn implements the per-connection state machine described in
// spec §4.G: Accepted -> (handshake) -> Ready -> Reading -> Dispatching ->
// Ready|Closing -> Terminal.
//
// Grounded on the teacher's listener.go Accept loop and air.go's
// per-connection goroutine (serveHTTP / the net/http path), reworked from
// http.Handler-shaped dispatch into the blocking read-parse-dispatch loop
// spec §5 describes: one goroutine per connection, suspension points at
// every socket read/write, no pipelining.
package conn

import (
	"context"
	"sync"
	"time"

	"github.com/kallhaugen/rosettad/envelope"
	"github.com/kallhaugen/rosettad/netio"
)

// Registry is the server's per-IP connection set (spec §4.H / §5's
// "per-IP connection set... mutated only by the serialized accept/remove
// operations").
type Registry interface {
	Remove(remoteIP string, c *Connection)
}

// Handler dispatches one parsed envelope and writes its response onto
// sock. It returns keepAlive=false to force the connection closed
// (Connection: close, or any handler/dispatch error already reported).
type Handler func(ctx context.Context, env *envelope.Envelope, sock netio.Socket) (keepAlive bool)

// Connection is one accepted socket and its state-machine bookkeeping.
type Connection struct {
	sock     netio.Socket
	registry Registry
	remoteIP string

	keepAliveTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// New constructs a Connection in the [Accepted] state.
func New(sock netio.Socket, registry Registry, keepAliveTimeout time.Duration) *Connection {
	return &Connection{
		sock:             sock,
		registry:         registry,
		remoteIP:         sock.RemoteIP(),
		keepAliveTimeout: keepAliveTimeout,
	}
}

// Serve runs the [Ready] <-> [Reading] <-> [Dispatching] cycle until the
// connection transitions to [Closing], per spec §4.G. envOpts configures
// the envelope parser (limits, www-root, authenticator); handle performs
// dispatch for one parsed envelope; onParseError renders the error-page
// response for a malformed envelope (414/413/400, per spec §4.D's failure
// modes) before the connection is torn down.
//
// Exactly one request is in flight at a time: Serve does not start
// reading the next envelope until handle has returned, matching "no
// pipelining" in spec §4.G/§5.
func (c *Connection) Serve(ctx context.Context, envOpts envelope.Options, handle Handler, onParseError func(err error, sock netio.Socket)) {
	defer c.close()

	for {
		if c.keepAliveTimeout > 0 {
			c.sock.SetDeadline(time.Now().Add(c.keepAliveTimeout))
		}

		env, err := envelope.Parse(c.sock.Reader(), envOpts)
		if err != nil {
			if onParseError != nil {
				onParseError(err, c.sock)
			}
			return
		}

		// Parsing succeeded: clear the keep-alive timer (spec: "envelope
		// parsed --> [Dispatching] (timer cleared)") by disabling the
		// deadline until the next cycle begins.
		c.sock.SetDeadline(time.Time{})

		keepAlive := handle(ctx, env, c.sock)
		if connectionHeader, ok := env.Headers.Get("Connection"); ok && equalFoldASCII(connectionHeader, "close") {
			keepAlive = false
		}
		if !keepAlive {
			return
		}
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.sock.Close()
	if c.registry != nil {
		c.registry.Remove(c.remoteIP, c)
	}
}

// RemoteIP returns the peer address the connection was registered under.
func (c *Connection) RemoteIP() string { return c.remoteIP }

// Close forces the connection into [Closing] from the outside (signal
// handling).
func (c *Connection) Close() { c.close() }

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
