package server

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kallhaugen/rosettad/envelope"
	"github.com/kallhaugen/rosettad/netio"
)

// sockWriter adapts netio.Socket to io.Writer so the response builder and
// file streamer can write through a *bufio.Writer.
type sockWriter struct{ sock netio.Socket }

func (w sockWriter) Write(p []byte) (int, error) {
	if err := w.sock.WriteAll(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *Server) bufWriter(sock netio.Socket) *bufio.Writer {
	return s.bufPool.Writer(sockWriter{sock: sock})
}

// putWriter flushes w and returns it to the pool. Every handler that
// takes a writer from bufWriter releases it this way instead of calling
// Flush directly, so the buffer is recycled rather than discarded.
func (s *Server) putWriter(w *bufio.Writer) error {
	err := w.Flush()
	s.bufPool.PutWriter(w)
	return err
}

// dispatch implements spec §4.I's ordered checks and verb routing. It
// returns keepAlive: true unless the connection must close (error
// responses, Connection: close, or an I/O failure).
func (s *Server) dispatch(ctx context.Context, env *envelope.Envelope, sock netio.Socket) bool {
	// 1. User-Agent filters.
	ua := env.Headers.First("User-Agent")
	if !s.userAgentAllowed(ua) {
		return s.errorHandler(sock, 403)
	}

	// 3. Insecure-upgrade redirect.
	if !sock.IsSecure() && s.cfg.Bool("upgrade-insecure-requests", true) &&
		env.Headers.First("Upgrade-Insecure-Requests") == "1" && s.hasTLSMaterials() {
		return s.redirectInsecureUpgrade(env, sock)
	}

	// 4. Forced authorize.
	if env.Parameters.Has("authorize") && !env.Ticket.Authenticated() {
		return s.unauthorizedHandler(sock, true)
	}

	switch env.Method {
	case "TRACE":
		if !s.cfg.Bool("trace-allowed", false) {
			return s.errorHandler(sock, 405)
		}
		if !s.authorizeVerb(env, "TRACE") {
			return s.unauthorizedOrForbidden(env, sock)
		}
		return s.traceHandler(env, sock)

	case "HEAD":
		if !s.cfg.Bool("head-allowed", false) {
			return s.errorHandler(sock, 405)
		}
		if !s.authorizeVerb(env, "HEAD") {
			return s.unauthorizedOrForbidden(env, sock)
		}
		if _, err := os.Stat(env.ResolvedPath); err != nil {
			return s.errorHandler(sock, 404)
		}
		return s.fileGetHandler(env, sock, true)

	case "OPTIONS":
		if !s.cfg.Bool("options-allowed", true) {
			return s.errorHandler(sock, 405)
		}
		return s.optionsHandler(env, sock)

	case "GET":
		if !s.authorizeVerb(env, "GET") {
			return s.unauthorizedOrForbidden(env, sock)
		}
		return s.getHandler(env, sock)

	case "PUT":
		if !s.authorizePut(env) {
			return s.unauthorizedOrForbidden(env, sock)
		}
		return s.putHandler(ctx, env, sock)

	case "DELETE":
		if !s.authorizeVerb(env, "DELETE") {
			return s.unauthorizedOrForbidden(env, sock)
		}
		if _, err := os.Stat(env.ResolvedPath); err != nil {
			return s.errorHandler(sock, 404)
		}
		if err := os.RemoveAll(env.ResolvedPath); err != nil {
			return s.errorHandler(sock, 500)
		}
		return s.okEmptyHandler(sock)

	case "POST":
		return s.postHandler(ctx, env, sock)

	default:
		return s.errorHandler(sock, 405)
	}
}

func (s *Server) userAgentAllowed(ua string) bool {
	whitelist := s.cfg.String("user-agent-whitelist", "*")
	blacklist := s.cfg.String("user-agent-blacklist", "")

	if blacklist != "" && substringListMatches(blacklist, ua) {
		return false
	}
	if whitelist == "*" {
		return true
	}
	if whitelist == "" {
		return false
	}
	return substringListMatches(whitelist, ua)
}

func substringListMatches(pipeList, s string) bool {
	for _, part := range strings.Split(pipeList, "|") {
		if part != "" && strings.Contains(s, part) {
			return true
		}
	}
	return false
}

func (s *Server) hasTLSMaterials() bool {
	if _, err := os.Stat(s.certFile); err != nil {
		return false
	}
	if _, err := os.Stat(s.keyFile); err != nil {
		return false
	}
	return true
}

func (s *Server) authorizeVerb(env *envelope.Envelope, verb string) bool {
	return s.authz.Authorize(env.Ticket, env.ResolvedPath, verb)
}

// authorizePut implements spec §4.I's PUT-over-existing-file rule: an
// overwrite additionally requires DELETE authorization (spec §4.F
// "Special case").
func (s *Server) authorizePut(env *envelope.Envelope) bool {
	if !s.authorizeVerb(env, "PUT") {
		return false
	}
	if fi, err := os.Stat(env.ResolvedPath); err == nil && !fi.IsDir() {
		return s.authorizeVerb(env, "DELETE")
	}
	return true
}

func (s *Server) unauthorizedOrForbidden(env *envelope.Envelope, sock netio.Socket) bool {
	if !env.Ticket.Authenticated() {
		return s.unauthorizedHandler(sock, true)
	}
	return s.errorHandler(sock, 403)
}

// allowedVerbs computes the set used by both the OPTIONS handler and the
// testable "OPTIONS == dispatch would not 401/403/405" law in spec §8.
func (s *Server) allowedVerbs(env *envelope.Envelope) []string {
	candidates := []string{"GET", "PUT", "DELETE", "POST"}
	if s.cfg.Bool("head-allowed", false) {
		candidates = append(candidates, "HEAD")
	}
	if s.cfg.Bool("trace-allowed", false) {
		candidates = append(candidates, "TRACE")
	}
	if s.cfg.Bool("options-allowed", true) {
		candidates = append(candidates, "OPTIONS")
	}

	var allowed []string
	for _, v := range candidates {
		ok := false
		switch v {
		case "PUT":
			ok = s.authorizePut(env)
		default:
			ok = s.authorizeVerb(env, v)
		}
		if ok {
			allowed = append(allowed, v)
		}
	}
	sort.Strings(allowed)
	return allowed
}

func childIsServed(cfg interface{ MIME(ext string) (string, bool) }, fi os.FileInfo) bool {
	if fi.IsDir() {
		return true
	}
	if strings.HasPrefix(fi.Name(), ".") {
		return false
	}
	_, ok := cfg.MIME(filepath.Ext(fi.Name()))
	return ok
}
