package server

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kallhaugen/rosettad/envelope"
	"github.com/kallhaugen/rosettad/httperr"
	"github.com/kallhaugen/rosettad/netio"
)

const bodyChunkSize = 8192

// undoGuard implements spec §9's scope-guarded close-on-failure pattern
// for body intake: armed on creation, it deletes path unless Release is
// called on the happy path.
type undoGuard struct {
	path     string
	released bool
}

func (g *undoGuard) Release() { g.released = true }

func (g *undoGuard) run() {
	if !g.released {
		os.Remove(g.path)
	}
}

// readExactWithDeadline reads exactly n bytes from sock, enforcing
// timeout as a read deadline, per spec §4.L.
func readExactWithDeadline(sock netio.Socket, n int64, timeout time.Duration) ([]byte, error) {
	sock.SetDeadline(time.Now().Add(timeout))
	defer sock.SetDeadline(time.Time{})
	return sock.ReadExact(n)
}

// contentLength parses the Content-Length header, returning ok=false if
// absent or malformed.
func contentLength(env *envelope.Envelope) (int64, bool) {
	v := env.Headers.First("Content-Length")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// putHandler implements spec §4.I's PUT routing: folder creation or the
// atomic-rename file write, both gated by parent-exists.
func (s *Server) putHandler(ctx context.Context, env *envelope.Envelope, sock netio.Socket) bool {
	parent := parentDir(env.ResolvedPath)
	if fi, err := os.Stat(parent); err != nil || !fi.IsDir() {
		return s.errorHandler(sock, 404)
	}

	if env.IsFolderRequest {
		return s.putFolderHandler(env, sock)
	}
	return s.putFileHandler(ctx, env, sock)
}

func parentDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// putFolderHandler implements spec §4.I's PUT-folder contract: 500 if
// the directory already exists, otherwise create it.
func (s *Server) putFolderHandler(env *envelope.Envelope, sock netio.Socket) bool {
	if _, err := os.Stat(env.ResolvedPath); err == nil {
		return s.errorHandler(sock, 500)
	}
	if err := os.Mkdir(env.ResolvedPath, 0o755); err != nil {
		return s.errorHandler(sock, 500)
	}
	return s.okEmptyHandler(sock)
}

// putFileHandler implements spec §4.I/§4.L's PUT-file contract: stream
// the body to <path>.partial in bodyChunkSize chunks, then atomically
// rename on success; delete the partial on any failure.
func (s *Server) putFileHandler(ctx context.Context, env *envelope.Envelope, sock netio.Socket) bool {
	length, ok := contentLength(env)
	if !ok {
		return s.errorHandler(sock, 500)
	}
	maxLen := int64(s.cfg.Int("max-request-content-length", 4194304))
	if length > maxLen {
		return s.errorHandler(sock, 500)
	}

	partialPath := env.ResolvedPath + ".partial"
	f, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return s.errorHandler(sock, 500)
	}
	guard := &undoGuard{path: partialPath}
	defer func() {
		f.Close()
		guard.run()
	}()

	timeout := s.cfg.Seconds("request-content-read-timeout", 300*time.Second)
	var remaining = length
	for remaining > 0 {
		chunkLen := int64(bodyChunkSize)
		if remaining < chunkLen {
			chunkLen = remaining
		}
		chunk, err := readExactWithDeadline(sock, chunkLen, timeout)
		if err != nil {
			if !httperr.IsTimeout(err) {
				s.log.ErrorF(map[string]interface{}{"path": env.ResolvedPath, "error": err.Error()}, "server: put body read failed")
			}
			return s.errorHandler(sock, 500)
		}
		if _, err := f.Write(chunk); err != nil {
			return s.errorHandler(sock, 500)
		}
		remaining -= chunkLen
	}
	if err := f.Close(); err != nil {
		return s.errorHandler(sock, 500)
	}
	if err := os.Rename(partialPath, env.ResolvedPath); err != nil {
		return s.errorHandler(sock, 500)
	}
	guard.Release()

	return s.okEmptyHandler(sock)
}

// postHandler implements spec §4.I's POST routing: content-type and
// content-length preconditions, then the users or authorization handler
// chosen by the target filename.
func (s *Server) postHandler(ctx context.Context, env *envelope.Envelope, sock netio.Socket) bool {
	ct := env.Headers.First("Content-Type")
	if !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		return s.errorHandler(sock, 400)
	}
	length, ok := contentLength(env)
	if !ok {
		return s.errorHandler(sock, 400)
	}
	maxLen := int64(s.cfg.Int("max-request-content-length", 4194304))
	if length > maxLen {
		return s.errorHandler(sock, 500)
	}

	timeout := s.cfg.Seconds("request-post-content-read-timeout", 30*time.Second)
	raw, err := readExactWithDeadline(sock, length, timeout)
	if err != nil {
		return s.errorHandler(sock, 500)
	}
	form, err := parseFormBody(string(raw))
	if err != nil {
		return s.errorHandler(sock, 400)
	}

	switch {
	case env.URI == "/.users":
		return s.postUsersHandler(env, form, sock)
	case strings.HasSuffix(env.URI, "/.auth") || env.URI == "/.auth":
		return s.postAuthHandler(env, form, sock)
	default:
		return s.errorHandler(sock, 404)
	}
}

func parseFormBody(raw string) (envelope.Params, error) {
	var params envelope.Params
	for _, kv := range strings.Split(raw, "&") {
		if kv == "" {
			continue
		}
		name, value := kv, ""
		if i := strings.IndexByte(kv, '='); i >= 0 {
			name, value = kv[:i], kv[i+1:]
		}
		dn, err := netio.Decode(name)
		if err != nil {
			return nil, err
		}
		dv, err := netio.Decode(value)
		if err != nil {
			return nil, err
		}
		params = append(params, envelope.Param{Name: dn, Value: dv})
	}
	return params, nil
}

// postUsersHandler implements spec §4.I's POST-users contract.
func (s *Server) postUsersHandler(env *envelope.Envelope, form envelope.Params, sock netio.Socket) bool {
	if !env.Ticket.Authenticated() {
		return s.unauthorizedHandler(sock, true)
	}

	action, ok := form.Get("action")
	if !ok {
		return s.errorHandler(sock, 400)
	}

	isRoot := env.Ticket.Role == "root"

	if !isRoot {
		if action != "change-password" || len(form) != 2 {
			return s.errorHandler(sock, 403)
		}
		password, ok := form.Get("password")
		if !ok {
			return s.errorHandler(sock, 400)
		}
		if err := s.users.ChangePassword(env.Ticket.Username, password); err != nil {
			return s.errorHandler(sock, 400)
		}
		return s.okEmptyHandler(sock)
	}

	switch action {
	case "change-password":
		username, _ := form.Get("username")
		if username == "" {
			username = env.Ticket.Username
		}
		password, ok := form.Get("password")
		if !ok {
			return s.errorHandler(sock, 400)
		}
		if err := s.users.ChangePassword(username, password); err != nil {
			return s.errorHandler(sock, 400)
		}
	case "change-role":
		username, ok1 := form.Get("username")
		role, ok2 := form.Get("role")
		if !ok1 || !ok2 || username == env.Ticket.Username {
			return s.errorHandler(sock, 400)
		}
		if err := s.users.ChangeRole(username, role); err != nil {
			return s.errorHandler(sock, 400)
		}
	case "create-user":
		username, ok1 := form.Get("username")
		password, ok2 := form.Get("password")
		role, ok3 := form.Get("role")
		if !ok1 || !ok2 || !ok3 {
			return s.errorHandler(sock, 400)
		}
		if err := s.users.CreateUser(username, password, role); err != nil {
			return s.errorHandler(sock, 400)
		}
	case "delete-user":
		username, ok := form.Get("username")
		if !ok {
			return s.errorHandler(sock, 400)
		}
		if err := s.users.DeleteUser(username); err != nil {
			return s.errorHandler(sock, 400)
		}
	default:
		return s.errorHandler(sock, 400)
	}

	return s.okEmptyHandler(sock)
}

// postAuthHandler implements spec §4.I's POST-auth contract and §9's
// Open Question resolution: root-only, and the .auth update path is a
// no-op that returns 200 (DESIGN.md records the source basis for this).
func (s *Server) postAuthHandler(env *envelope.Envelope, form envelope.Params, sock netio.Socket) bool {
	if !env.Ticket.Authenticated() || env.Ticket.Role != "root" {
		if !env.Ticket.Authenticated() {
			return s.unauthorizedHandler(sock, true)
		}
		return s.errorHandler(sock, 403)
	}
	if _, ok := form.Get("action"); !ok {
		return s.errorHandler(sock, 400)
	}
	return s.okEmptyHandler(sock)
}
