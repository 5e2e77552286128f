// Package userstore implements the user store described in spec §4.E: an
// in-memory username -> (password hash, role) map with reader/writer
// synchronization and a deferred, coalesced disk-save protocol.
//
// Grounded on spec §4.E and §9's restatement of the deferred-save
// protocol; the save-in-progress flag and shared/exclusive lock split are
// modeled on the teacher's coffer.go in-memory-cache-plus-fsnotify shape,
// adapted here from a read cache to a read/write store. Live-reload of the
// backing .users file is adapted from the same fsnotify idea (SPEC_FULL
// §4.E extended).
package userstore

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kallhaugen/rosettad/envelope"
	"github.com/kallhaugen/rosettad/httperr"
)

type account struct {
	passwordHashB64 string
	role            string
}

// Store is the username -> account map plus its deferred-save state. The
// zero value is not usable; construct with Load.
type Store struct {
	path string
	salt string

	mu   sync.RWMutex
	accs map[string]account

	saveMu          sync.Mutex
	saveInProgress  bool

	watcher *fsnotify.Watcher
}

// Load reads path (the .users file) and builds a Store salted with salt.
// A missing file, a malformed line, or a duplicate username is a fatal
// startup error per spec §4.E / §6.
func Load(path, salt string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("userstore: opening %s: %w", path, err)
	}
	defer f.Close()

	accs := make(map[string]account)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("userstore: malformed line in %s: %q", path, line)
		}
		username := parts[0]
		if _, dup := accs[username]; dup {
			return nil, fmt.Errorf("userstore: duplicate username %q in %s", username, path)
		}
		accs[username] = account{passwordHashB64: parts[1], role: parts[2]}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("userstore: reading %s: %w", path, err)
	}

	return &Store{path: path, salt: salt, accs: accs}, nil
}

// hashPassword implements spec §4.E: base64(sha1(password || salt)).
func (s *Store) hashPassword(password string) string {
	sum := sha1.Sum([]byte(password + s.salt))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Authenticate implements spec §4.E authenticate(user, pw), under a shared
// lock. It satisfies envelope.Authenticator so the envelope parser can
// resolve a Ticket without importing this package.
func (s *Store) Authenticate(username, password string) (envelope.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accs[username]
	if !ok {
		return envelope.Ticket{}, false
	}
	if acc.passwordHashB64 != s.hashPassword(password) {
		return envelope.Ticket{}, false
	}
	return envelope.Ticket{Username: username, Role: acc.role}, true
}

// Role returns the role of username and whether it exists, under a shared
// lock.
func (s *Store) Role(username string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accs[username]
	return acc.role, ok
}

// ChangePassword implements spec §4.E change_password: exclusive lock,
// mutate, schedule save.
func (s *Store) ChangePassword(username, newPassword string) error {
	s.mu.Lock()
	acc, ok := s.accs[username]
	if !ok {
		s.mu.Unlock()
		return httperr.BadRequest("unknown user")
	}
	acc.passwordHashB64 = s.hashPassword(newPassword)
	s.accs[username] = acc
	s.mu.Unlock()

	s.scheduleSave()
	return nil
}

// ChangeRole implements spec §4.E change_role.
func (s *Store) ChangeRole(username, role string) error {
	s.mu.Lock()
	acc, ok := s.accs[username]
	if !ok {
		s.mu.Unlock()
		return httperr.BadRequest("unknown user")
	}
	acc.role = role
	s.accs[username] = acc
	s.mu.Unlock()

	s.scheduleSave()
	return nil
}

// CreateUser implements spec §4.E create_user: fails if the username
// already exists.
func (s *Store) CreateUser(username, password, role string) error {
	s.mu.Lock()
	if _, exists := s.accs[username]; exists {
		s.mu.Unlock()
		return httperr.BadRequest("user already exists")
	}
	s.accs[username] = account{passwordHashB64: s.hashPassword(password), role: role}
	s.mu.Unlock()

	s.scheduleSave()
	return nil
}

// DeleteUser implements spec §4.E delete_user: fails if the username is
// absent.
func (s *Store) DeleteUser(username string) error {
	s.mu.Lock()
	if _, exists := s.accs[username]; !exists {
		s.mu.Unlock()
		return httperr.BadRequest("unknown user")
	}
	delete(s.accs, username)
	s.mu.Unlock()

	s.scheduleSave()
	return nil
}

// scheduleSave implements the deferred-save protocol in spec §4.E / §9:
// coalesce bursts of mutations into a single disk write. The snapshot is
// taken under a shared lock and the file is written with no lock held, so
// concurrent authenticate() calls are never blocked by disk I/O.
func (s *Store) scheduleSave() {
	s.saveMu.Lock()
	if s.saveInProgress {
		s.saveMu.Unlock()
		return
	}
	s.saveInProgress = true
	s.saveMu.Unlock()

	go s.save()
}

func (s *Store) save() {
	defer func() {
		s.saveMu.Lock()
		s.saveInProgress = false
		s.saveMu.Unlock()
	}()

	s.mu.RLock()
	var b strings.Builder
	for username, acc := range s.accs {
		fmt.Fprintf(&b, "%s:%s:%s\n", username, acc.passwordHashB64, acc.role)
	}
	s.mu.RUnlock()

	tmp := s.path + ".partial"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o600); err != nil {
		return
	}
	os.Rename(tmp, s.path)
}

// Watch starts an fsnotify watch on the backing .users file so external
// edits (an operator hand-editing the file) are picked up without a
// restart. This has no analogue in the original source; it mirrors the
// teacher's coffer.go watch loop, repurposed from invalidating a file
// cache to reloading account records. Every write or create event
// triggers a reload, including those caused by this process's own save;
// such a reload re-reads the file the save just produced.
func (s *Store) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.path); err != nil {
		w.Close()
		return err
	}
	s.watcher = w

	go func() {
		for event := range w.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.reload()
			}
		}
	}()
	return nil
}

func (s *Store) reload() {
	fresh, err := Load(s.path, s.salt)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.accs = fresh.accs
	s.mu.Unlock()
}

// Close stops the live-reload watcher, if any.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
