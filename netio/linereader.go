package netio

import (
	"bufio"
	"io"
)

// ReadBoundedLine reads one CRLF-terminated line from r, capped at max
// bytes, per spec §4.B. bufio.Reader.ReadLine already strips a trailing
// "\r\n" or a bare "\n", so unlike the original match_condition (which
// hands the caller the raw bytes up to and including the LF for the
// caller to verify the preceding CR), the terminator never reaches the
// returned line here.
//
// The original match_condition is specified to be "copyable/clonable so
// that the overflow flag survives being moved into the async runtime's
// internal state" — an artifact of a callback-continuation architecture
// that reads a socket in non-blocking chunks. rosettad serves each
// connection from its own goroutine with ordinary blocking reads (the
// idiomatic Go equivalent of that continuation chain — see conn.Connection),
// so there is no state to clone: this function runs to completion on the
// calling goroutine and returns the line or the overflow flag directly.
func ReadBoundedLine(r *bufio.Reader, max int) (line []byte, overflow bool, err error) {
	buf := make([]byte, 0, 256)
	for {
		chunk, isPrefix, rerr := r.ReadLine()
		if len(chunk) > 0 {
			if len(buf)+len(chunk) > max {
				room := max - len(buf)
				if room > 0 {
					buf = append(buf, chunk[:room]...)
				}
				overflow = true
			} else {
				buf = append(buf, chunk...)
			}
		}
		if rerr != nil {
			if rerr == io.EOF && len(buf) > 0 {
				return buf, overflow, nil
			}
			return buf, overflow, rerr
		}
		if !isPrefix {
			return buf, overflow, nil
		}
		if len(buf) >= max {
			overflow = true
			// Drain the remainder of the physical line so the stream
			// stays framed for whatever comes next (or for the close
			// that the overflow will trigger).
			for isPrefix {
				_, isPrefix, rerr = r.ReadLine()
				if rerr != nil {
					break
				}
			}
			return buf, overflow, nil
		}
	}
}
