package conn

import (
	"bufio"
	"sync"
)

// Pool recycles the per-response bufio.Writer so that a busy server does
// not allocate a fresh one per request. Adapted from the teacher's
// pool.go (one sync.Pool per recycled type, bundled behind a single Pool
// struct with typed Get/Put accessors), narrowed from the pools
// air.go carried (Context/Request/Response/Header/URI/Cookie) down to
// the one buffer kind rosettad's response path reuses — the per-connection
// read buffer lives for the connection's whole lifetime (see
// netio.Socket.Reader) rather than being taken and returned per request,
// so it has no pool of its own.
type Pool struct {
	writers *sync.Pool
}

// NewPool constructs a Pool whose writers are sized bufSize bytes.
func NewPool(bufSize int) *Pool {
	return &Pool{
		writers: &sync.Pool{
			New: func() interface{} { return bufio.NewWriterSize(nil, bufSize) },
		},
	}
}

// Writer returns a *bufio.Writer reset onto w.
func (p *Pool) Writer(w interface{ Write([]byte) (int, error) }) *bufio.Writer {
	bw := p.writers.Get().(*bufio.Writer)
	bw.Reset(w)
	return bw
}

// PutWriter flushes and returns bw to the pool.
func (p *Pool) PutWriter(bw *bufio.Writer) {
	bw.Flush()
	bw.Reset(nil)
	p.writers.Put(bw)
}
