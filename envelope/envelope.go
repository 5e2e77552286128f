// Package envelope implements the request envelope parser described in
// spec §3 and §4.D: the request line, the header block, query parameters,
// path resolution, and Basic-auth ticket extraction.
//
// Grounded on the teacher's request.go/headers.go for the shape of an
// ordered, case-insensitive header collection, and on
// original_source/http_server/src/connection/request_envelope.cpp for the
// exact field-by-field parsing order this file follows.
package envelope

import (
	"bufio"
	"encoding/base64"
	"path"
	"strings"

	"github.com/kallhaugen/rosettad/httperr"
	"github.com/kallhaugen/rosettad/netio"
)

// Param is one query-string or form-body (name, value) pair, in the order
// received.
type Param struct {
	Name  string
	Value string
}

// Params is an ordered parameter list.
type Params []Param

// Get returns the first value for name and whether it was present.
func (ps Params) Get(name string) (string, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Has reports whether name is present at all (a "list" parameter may carry
// an empty value and still count, per spec §3: "value may be empty").
func (ps Params) Has(name string) bool {
	_, ok := ps.Get(name)
	return ok
}

// Ticket is the (username, role) pair derived from Basic authentication.
// An empty Username means unauthenticated, per spec's Glossary.
type Ticket struct {
	Username string
	Role     string
}

// Authenticated reports whether the ticket carries a username.
func (t Ticket) Authenticated() bool { return t.Username != "" }

// Authenticator resolves a username/password pair to a Ticket. The
// userstore.Store satisfies this without envelope needing to import it.
type Authenticator interface {
	Authenticate(username, password string) (Ticket, bool)
}

// Limits bounds the envelope parser, per spec §6.
type Limits struct {
	MaxURILength    int
	MaxHeaderLength int
	MaxHeaderCount  int
}

// Options configures one Parse call.
type Options struct {
	Limits          Limits
	WWWRoot         string
	DefaultDocument string
	Authenticator   Authenticator
}

// Envelope is the parsed request, per spec §3.
type Envelope struct {
	Method          string
	URI             string
	HTTPVersion     string
	IsFolderRequest bool
	ResolvedPath    string
	Headers         Headers
	Parameters      Params
	Ticket          Ticket
}

// Parse reads one HTTP request envelope from r according to opts. It
// returns an *httperr.Error with the appropriate status for every
// malformed-input case in spec §4.D / §7.
func Parse(r *bufio.Reader, opts Options) (*Envelope, error) {
	line, overflow, err := netio.ReadBoundedLine(r, opts.Limits.MaxURILength)
	if err != nil {
		return nil, httperr.Wrap(0, "read", err)
	}
	if overflow {
		return nil, httperr.URITooLong()
	}

	env := &Envelope{}
	if err := env.parseRequestLine(string(line)); err != nil {
		return nil, err
	}
	if err := env.resolvePath(opts.WWWRoot, opts.DefaultDocument); err != nil {
		return nil, err
	}
	if err := env.readHeaders(r, opts.Limits); err != nil {
		return nil, err
	}
	if err := env.resolveTicket(opts.Authenticator); err != nil {
		return nil, err
	}
	return env, nil
}

// parseRequestLine implements spec §4.D steps 2-3.
func (env *Envelope) parseRequestLine(line string) error {
	parts := splitWhitespace(line)
	if len(parts) < 2 || len(parts) > 3 {
		return httperr.BadRequest("malformed HTTP request line")
	}

	env.Method = strings.ToUpper(parts[0])
	env.HTTPVersion = "HTTP/1.1"
	if len(parts) > 2 {
		env.HTTPVersion = strings.ToUpper(parts[2])
	}

	return env.parseURI(parts[1])
}

func splitWhitespace(s string) []string {
	fields := strings.Fields(s)
	return fields
}

// parseURI implements spec §4.D steps 3-4.
func (env *Envelope) parseURI(raw string) error {
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}

	head := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		head = raw[:i]
		params, err := parseQuery(raw[i+1:])
		if err != nil {
			return err
		}
		env.Parameters = params
	}

	decoded, err := netio.Decode(head)
	if err != nil {
		return err
	}
	env.URI = decoded

	endsWithSlash := strings.HasSuffix(decoded, "/")
	env.IsFolderRequest = endsWithSlash && (env.Parameters.Has("list") || env.Method != "GET")

	return nil
}

func parseQuery(raw string) (Params, error) {
	if raw == "" {
		return nil, nil
	}
	var params Params
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
		params = append(params, Param{Name: dn, Value: dv})
	}
	return params, nil
}

// resolvePath implements spec §4.D step 5 and the resolved_path rule in
// spec §3: "www-root prefix + URI, with default document appended if URI
// ends in / and method is GET" for non-folder GETs, trailing slash
// stripped for folder requests.
func (env *Envelope) resolvePath(wwwRoot, defaultDocument string) error {
	uri := env.URI
	if strings.HasSuffix(uri, "/") {
		if env.IsFolderRequest {
			uri = strings.TrimSuffix(uri, "/")
		} else if env.Method == "GET" {
			uri += defaultDocument
		}
	}

	resolved := path.Join(wwwRoot, uri)
	// path.Join cleans ".." components away silently; spec wants that
	// caught as an error instead of silently normalized, so check the
	// original URI's components, not the cleaned result.
	if !netio.PathSafe(env.URI) {
		return httperr.BadRequest("illegal path component")
	}
	env.ResolvedPath = resolved
	return nil
}

// readHeaders implements spec §4.D steps 6-9.
func (env *Envelope) readHeaders(r *bufio.Reader, limits Limits) error {
	for {
		line, overflow, err := netio.ReadBoundedLine(r, limits.MaxHeaderLength)
		if err != nil {
			return httperr.Wrap(0, "read", err)
		}
		if overflow {
			return httperr.HeaderTooLong()
		}
		if len(line) == 0 {
			return nil
		}
		if len(env.Headers) >= limits.MaxHeaderCount {
			return httperr.TooManyHeaders()
		}

		s := string(line)
		for j := 0; j < len(s); j++ {
			if (s[j] < 32 && s[j] != '\t') || s[j] > 126 {
				return httperr.BadRequest("control character in header")
			}
		}
		if s[0] == ' ' || s[0] == '\t' {
			env.Headers.AppendContinuation(strings.TrimSpace(s))
			continue
		}

		i := strings.IndexByte(s, ':')
		if i < 0 {
			return httperr.BadRequest("malformed header line")
		}
		name := strings.TrimSpace(s[:i])
		value := strings.TrimSpace(s[i+1:])
		env.Headers.Append(name, value)
	}
}

// resolveTicket implements spec §4.D step 9: an Authorization: Basic
// header, if present, is decoded and handed to the Authenticator.
func (env *Envelope) resolveTicket(auth Authenticator) error {
	value, ok := env.Headers.Get("Authorization")
	if !ok {
		return nil
	}

	const prefix = "Basic "
	if !strings.HasPrefix(value, prefix) {
		return nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return httperr.Unauthorized(false)
	}

	i := strings.IndexByte(string(decoded), ':')
	if i < 0 {
		return httperr.Unauthorized(false)
	}
	username, password := string(decoded[:i]), string(decoded[i+1:])

	if auth == nil {
		return nil
	}
	ticket, ok := auth.Authenticate(username, password)
	if !ok {
		return httperr.Unauthorized(true)
	}
	env.Ticket = ticket
	return nil
}
