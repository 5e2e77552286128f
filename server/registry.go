package server

import (
	"sync"

	"github.com/kallhaugen/rosettad/conn"
)

// registry is the server's per-IP connection set (spec §4.H): accept
// consults it for the per-IP quota, and every connection removes itself
// on close. Mutations are serialized through a single mutex, matching
// spec §5's "connection registry mutations... are serialized through a
// per-server synchronization primitive."
type registry struct {
	maxPerIP int

	mu    sync.Mutex
	byIP  map[string]map[*conn.Connection]bool
	total int
}

func newRegistry(maxPerIP int) *registry {
	return &registry{maxPerIP: maxPerIP, byIP: make(map[string]map[*conn.Connection]bool)}
}

// TryAdd inserts c under ip if doing so would not exceed maxPerIP. It
// reports false if the quota is already met, in which case the caller
// must refuse (shut down) the new connection per spec §4.H.
func (r *registry) TryAdd(ip string, c *conn.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byIP[ip]
	if len(set) >= r.maxPerIP {
		return false
	}
	if set == nil {
		set = make(map[*conn.Connection]bool)
		r.byIP[ip] = set
	}
	set[c] = true
	r.total++
	return true
}

// Remove implements conn.Registry.
func (r *registry) Remove(ip string, c *conn.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.byIP[ip]
	if !ok {
		return
	}
	if _, present := set[c]; !present {
		return
	}
	delete(set, c)
	r.total--
	if len(set) == 0 {
		delete(r.byIP, ip)
	}
}

// CloseAll forcibly closes every registered connection, used for
// SIGINT/SIGTERM/SIGQUIT shutdown (spec §4.H).
func (r *registry) CloseAll() {
	r.mu.Lock()
	var all []*conn.Connection
	for _, set := range r.byIP {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}
