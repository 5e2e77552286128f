// Package authz implements the hierarchical authorization tree described
// in spec §4.F: a directory-indexed mapping, built once from `.auth`
// files at startup, that yields the allowed roles per HTTP verb and is
// consulted recursively from a target path toward www-root.
//
// Grounded on spec §4.F; the recursive parent-directory walk and the
// root-role short-circuit follow original_source's authorization tree
// exactly (resolved as an Open Question in DESIGN.md regarding the
// unimplemented .auth-update POST path, not the read-side logic used
// here, which the spec states plainly).
package authz

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kallhaugen/rosettad/envelope"
)

const fileName = ".auth"

// node is one directory's verb -> role-set mapping.
type node map[string]map[string]bool

// Tree is the read-only-after-build authorization tree.
type Tree struct {
	wwwRoot string

	mu    sync.RWMutex
	nodes map[string]node

	watcher *fsnotify.Watcher
}

// Build walks wwwRoot recursively (spec §4.F "Build") and parses every
// .auth file it finds into the tree.
func Build(wwwRoot string) (*Tree, error) {
	abs, err := filepath.Abs(wwwRoot)
	if err != nil {
		return nil, err
	}
	t := &Tree{wwwRoot: abs, nodes: make(map[string]node)}
	if err := t.scan(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) scan() error {
	nodes := make(map[string]node)
	err := filepath.Walk(t.wwwRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.Name() != fileName {
			return nil
		}
		dir := filepath.Dir(p)
		n, perr := parseAuthFile(p)
		if perr != nil {
			return perr
		}
		nodes[dir] = n
		return nil
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.nodes = nodes
	t.mu.Unlock()
	return nil
}

// parseAuthFile implements spec §4.F: lines of the form
// "verb:role1|role2|...", verbs uppercased, "*" denotes any role. A
// malformed line is a fatal startup error per spec §7.
func parseAuthFile(path string) (node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := make(node)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return nil, &authFileError{path: path, line: line}
		}
		verb := strings.ToUpper(strings.TrimSpace(line[:i]))
		roles := make(map[string]bool)
		for _, r := range strings.Split(line[i+1:], "|") {
			r = strings.TrimSpace(r)
			if r != "" {
				roles[r] = true
			}
		}
		n[verb] = roles
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return n, nil
}

type authFileError struct {
	path string
	line string
}

func (e *authFileError) Error() string {
	return "authz: malformed .auth line in " + e.path + ": " + e.line
}

// Authorize implements spec §4.F's authorize(ticket, path, verb) query.
func (t *Tree) Authorize(ticket envelope.Ticket, path, verb string) bool {
	if ticket.Role == "root" {
		return true
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	dir := path
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		dir = filepath.Dir(path)
	}

	for {
		if n, ok := t.nodes[dir]; ok {
			if roles, hasVerb := n[verb]; hasVerb {
				return roles["*"] || roles[ticket.Role]
			}
		}
		if dir == t.wwwRoot {
			return verb == "GET"
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return verb == "GET"
		}
		dir = parent
	}
}

// Watch starts an fsnotify watch over wwwRoot so that adding, editing, or
// removing a .auth file triggers a full rebuild, matching the live-reload
// treatment SPEC_FULL.md extends to every on-disk control file (adapted
// from the teacher's coffer.go watch loop, same as userstore.Watch).
func (t *Tree) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = filepath.Walk(t.wwwRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.Add(p)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	t.watcher = w
	go func() {
		for event := range w.Events {
			if filepath.Base(event.Name) == fileName {
				t.scan()
			}
		}
	}()
	return nil
}

// Close stops the live-reload watcher, if any.
func (t *Tree) Close() error {
	if t.watcher != nil {
		return t.watcher.Close()
	}
	return nil
}
