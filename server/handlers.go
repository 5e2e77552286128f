package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kallhaugen/rosettad/envelope"
	"github.com/kallhaugen/rosettad/httperr"
	"github.com/kallhaugen/rosettad/netio"
	"github.com/kallhaugen/rosettad/resp"
)

// writeParseError renders the error page for an envelope parse failure
// (spec §4.D's failure modes: 414/413/400) before Connection tears the
// socket down.
func (s *Server) writeParseError(err error, sock netio.Socket) {
	herr, ok := err.(*httperr.Error)
	if !ok || herr.Status == 0 {
		return
	}
	s.errorHandler(sock, herr.Status)
}

// errorHandler implements spec §4.I's error handler contract: serve
// error-pages/<code>.html with the given status; always closes.
func (s *Server) errorHandler(sock netio.Socket, status int) bool {
	body := s.errorPageBody(status)

	b := resp.NewBuilder(status, s.std)
	b.Header("Content-Type", "text/html; charset=utf-8")
	b.Header("Content-Length", resp.ContentLengthHeader(int64(len(body))))

	w := s.bufWriter(sock)
	if err := b.WriteEnvelope(w); err == nil {
		resp.StreamBytes(w, body)
	}
	s.putWriter(w)
	return false
}

func (s *Server) errorPageBody(status int) []byte {
	path := filepath.Join(s.errorPagesDir, fmt.Sprintf("%d.html", status))
	if b, err := os.ReadFile(path); err == nil {
		return b
	}
	return []byte(fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", status, resp.Reason(status)))
}

// unauthorizedHandler implements spec §4.I's unauthorized handler: the
// 401 error page, plus WWW-Authenticate when authentication is plausible
// and (the connection is TLS or authenticate-over-non-ssl is set).
func (s *Server) unauthorizedHandler(sock netio.Socket, allowAuthenticate bool) bool {
	body := s.errorPageBody(401)

	b := resp.NewBuilder(401, s.std)
	if allowAuthenticate && (sock.IsSecure() || s.cfg.Bool("authenticate-over-non-ssl", false)) {
		b.Header("WWW-Authenticate", `Basic realm="User Visible Realm"`)
	}
	b.Header("Content-Type", "text/html; charset=utf-8")
	b.Header("Content-Length", resp.ContentLengthHeader(int64(len(body))))

	w := s.bufWriter(sock)
	if err := b.WriteEnvelope(w); err == nil {
		resp.StreamBytes(w, body)
	}
	s.putWriter(w)
	return false
}

// redirectInsecureUpgrade implements spec §4.I step 3.
func (s *Server) redirectInsecureUpgrade(env *envelope.Envelope, sock netio.Socket) bool {
	loc := "https://" + s.address
	if s.sslPort != 443 {
		loc += ":" + strconv.Itoa(s.sslPort)
	}
	segs := strings.Split(env.URI, "/")
	for i, seg := range segs {
		segs[i] = netio.Encode(seg)
	}
	loc += strings.Join(segs, "/")
	if len(env.Parameters) > 0 {
		loc += "?" + encodeParams(env.Parameters)
	}
	return s.redirectHandler(sock, 307, loc, true)
}

func (s *Server) redirectHandler(sock netio.Socket, status int, location string, noStore bool) bool {
	b := resp.NewBuilder(status, s.std)
	b.Header("Location", location)
	if noStore {
		b.Header("Cache-Control", "no-store")
	}
	b.Header("Content-Length", "0")

	w := s.bufWriter(sock)
	b.WriteEnvelope(w)
	s.putWriter(w)
	return false
}

func encodeParams(params envelope.Params) string {
	var parts []string
	for _, p := range params {
		parts = append(parts, netio.Encode(p.Name)+"="+netio.Encode(p.Value))
	}
	return strings.Join(parts, "&")
}

// okEmptyHandler answers 200 with an empty body and keeps the connection
// alive (DELETE, PUT-folder, POST success with no body to return).
func (s *Server) okEmptyHandler(sock netio.Socket) bool {
	b := resp.NewBuilder(200, s.std)
	b.Header("Content-Length", "0")

	w := s.bufWriter(sock)
	b.WriteEnvelope(w)
	s.putWriter(w)
	return true
}

// getHandler implements spec §4.I's GET routing: folder listing vs. file
// serving, chosen by is_folder_request and the target's kind on disk.
func (s *Server) getHandler(env *envelope.Envelope, sock netio.Socket) bool {
	fi, err := os.Stat(env.ResolvedPath)
	if err != nil {
		return s.errorHandler(sock, 404)
	}
	if fi.IsDir() && env.IsFolderRequest {
		return s.folderGetHandler(env, sock, fi)
	}
	if fi.IsDir() {
		return s.errorHandler(sock, 404)
	}
	return s.fileGetHandler(env, sock, false)
}

// fileGetHandler implements spec §4.I's file GET handler contract,
// reused by HEAD (headOnly=true skips the body).
func (s *Server) fileGetHandler(env *envelope.Envelope, sock netio.Socket, headOnly bool) bool {
	fi, err := os.Stat(env.ResolvedPath)
	if err != nil {
		return s.errorHandler(sock, 404)
	}

	ext := filepath.Ext(env.ResolvedPath)
	handlerKey, hasHandler := s.cfg.Handler(ext)
	if !hasHandler || handlerKey != "get-file-handler" {
		return s.errorHandler(sock, 403)
	}
	mimeType, hasMIME := s.cfg.MIME(ext)
	if !hasMIME {
		return s.errorHandler(sock, 403)
	}

	if ims := env.Headers.First("If-Modified-Since"); ims != "" {
		if t, err := time.Parse(resp.HTTPDateFormat, ims); err == nil && !fi.ModTime().After(t) {
			b := resp.NewBuilder(304, s.std)
			b.Header("Vary", "Authorization")
			w := s.bufWriter(sock)
			b.WriteEnvelope(w)
			s.putWriter(w)
			return false
		}
	}

	if s.cache.Cacheable(env.ResolvedPath) {
		return s.serveCachedFile(env.ResolvedPath, fi, mimeType, sock, headOnly)
	}
	return s.serveStreamedFile(env.ResolvedPath, fi, mimeType, sock, headOnly)
}

// serveCachedFile answers a GET/HEAD for an extension eligible for the
// small-file cache (SPEC_FULL.md's extension of §4.K): the whole body is
// read into memory once, optionally minified, cached, and emitted via
// StreamBytes on every subsequent hit.
func (s *Server) serveCachedFile(path string, fi os.FileInfo, mimeType string, sock netio.Socket, headOnly bool) bool {
	body, ok := s.cache.Get(path, fi)
	if !ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return s.errorHandler(sock, 404)
		}
		if s.minify != nil {
			b = s.minify.Minify(mimeType, b)
		}
		s.cache.Put(path, fi, b)
		body = b
	}

	b := resp.NewBuilder(200, s.std)
	b.Header("Content-Type", mimeType)
	b.Header("Content-Length", resp.ContentLengthHeader(int64(len(body))))
	b.Header("Last-Modified", fi.ModTime().UTC().Format(resp.HTTPDateFormat))

	w := s.bufWriter(sock)
	if err := b.WriteEnvelope(w); err != nil {
		return false
	}
	if !headOnly {
		resp.StreamBytes(w, body)
	}
	return s.putWriter(w) == nil
}

// serveStreamedFile answers a GET/HEAD for an extension outside the
// small-file cache by streaming straight off disk in chunkSize-bounded
// reads (spec §4.K), never holding the whole file in memory.
func (s *Server) serveStreamedFile(path string, fi os.FileInfo, mimeType string, sock netio.Socket, headOnly bool) bool {
	f, err := os.Open(path)
	if err != nil {
		return s.errorHandler(sock, 404)
	}
	defer f.Close()

	b := resp.NewBuilder(200, s.std)
	b.Header("Content-Type", mimeType)
	b.Header("Content-Length", resp.ContentLengthHeader(fi.Size()))
	b.Header("Last-Modified", fi.ModTime().UTC().Format(resp.HTTPDateFormat))

	w := s.bufWriter(sock)
	if err := b.WriteEnvelope(w); err != nil {
		return false
	}
	if !headOnly {
		if err := resp.StreamFile(w, f); err != nil {
			s.putWriter(w)
			return false
		}
	}
	return s.putWriter(w) == nil
}

type folderEntry struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    *int64 `json:"size,omitempty"`
	Changed string `json:"changed"`
}

type folderListing struct {
	Content []folderEntry `json:"content"`
}

// folderGetHandler implements spec §4.I's folder GET handler: the
// If-Modified-Since gate uses the directory's own mtime; the body lists
// only entries the server would otherwise serve (resolved per DESIGN.md's
// Open Question decision).
func (s *Server) folderGetHandler(env *envelope.Envelope, sock netio.Socket, dirInfo os.FileInfo) bool {
	if ims := env.Headers.First("If-Modified-Since"); ims != "" {
		if t, err := time.Parse(resp.HTTPDateFormat, ims); err == nil && !dirInfo.ModTime().After(t) {
			b := resp.NewBuilder(304, s.std)
			b.Header("Vary", "Authorization")
			w := s.bufWriter(sock)
			b.WriteEnvelope(w)
			s.putWriter(w)
			return false
		}
	}

	entries, err := os.ReadDir(env.ResolvedPath)
	if err != nil {
		return s.errorHandler(sock, 404)
	}

	listing := folderListing{}
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if !childIsServed(s.cfg, fi) {
			continue
		}
		entry := folderEntry{Name: fi.Name(), Changed: fi.ModTime().UTC().Format(resp.HTTPDateFormat)}
		if fi.IsDir() {
			entry.Type = "directory"
		} else {
			entry.Type = "file"
			size := fi.Size()
			entry.Size = &size
		}
		listing.Content = append(listing.Content, entry)
	}

	body, err := json.Marshal(listing)
	if err != nil {
		return s.errorHandler(sock, 500)
	}

	b := resp.NewBuilder(200, s.std)
	b.Header("Content-Type", "application/json")
	b.Header("Content-Length", resp.ContentLengthHeader(int64(len(body))))
	b.Header("Last-Modified", dirInfo.ModTime().UTC().Format(resp.HTTPDateFormat))

	w := s.bufWriter(sock)
	if err := b.WriteEnvelope(w); err != nil {
		return false
	}
	resp.StreamBytes(w, body)
	return s.putWriter(w) == nil
}

// traceHandler implements spec §4.I's TRACE contract: echo the request
// line and every received header verbatim.
func (s *Server) traceHandler(env *envelope.Envelope, sock netio.Socket) bool {
	var body strings.Builder
	uri := env.URI
	if len(env.Parameters) > 0 {
		uri += "?" + encodeParams(env.Parameters)
	}
	fmt.Fprintf(&body, "%s %s %s\r\n", env.Method, uri, env.HTTPVersion)
	for _, h := range env.Headers {
		fmt.Fprintf(&body, "%s: %s\r\n", h.Name, h.Value)
	}

	bodyBytes := []byte(body.String())
	b := resp.NewBuilder(200, s.std)
	b.Header("Content-Type", "message/http")
	b.Header("Content-Length", resp.ContentLengthHeader(int64(len(bodyBytes))))

	w := s.bufWriter(sock)
	if err := b.WriteEnvelope(w); err != nil {
		return false
	}
	resp.StreamBytes(w, bodyBytes)
	return s.putWriter(w) == nil
}

// optionsHandler implements spec §4.I's OPTIONS contract.
func (s *Server) optionsHandler(env *envelope.Envelope, sock netio.Socket) bool {
	allowed := s.allowedVerbs(env)

	allowHeader := strings.Join(allowed, ", ")
	if len(allowed) == 7 {
		allowHeader = "*"
	}

	b := resp.NewBuilder(200, s.std)
	b.Header("Allow", allowHeader)
	b.Header("Content-Length", "0")

	w := s.bufWriter(sock)
	b.WriteEnvelope(w)
	s.putWriter(w)
	return true
}
