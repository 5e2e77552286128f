package resp

import (
	"bufio"
	"io"
	"os"

	"github.com/kallhaugen/rosettad/httperr"
)

// chunkSize is spec §4.K's BUFFER_SIZE.
const chunkSize = 8192

// StreamFile writes f's contents to w in chunkSize chunks, keeping the
// open file handle alive for the whole transfer and never holding more
// than one chunk in memory. Any read or write error aborts the transfer;
// the caller is responsible for closing the connection, per spec §4.K
// ("any socket error terminates with a close").
func StreamFile(w *bufio.Writer, f *os.File) error {
	buf := make([]byte, chunkSize)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return httperr.Wrap(0, "write", werr)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return httperr.Wrap(0, "read", rerr)
		}
	}
}

// StreamBytes writes b to w in chunkSize chunks. Used for cached small
// files (resp/filecache.go) where the bytes already live in memory but
// the spec's constant-chunk emission discipline is still honored.
func StreamBytes(w *bufio.Writer, b []byte) error {
	for off := 0; off < len(b); off += chunkSize {
		end := off + chunkSize
		if end > len(b) {
			end = len(b)
		}
		if _, err := w.Write(b[off:end]); err != nil {
			return httperr.Wrap(0, "write", err)
		}
	}
	return nil
}
