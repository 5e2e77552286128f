// Package config implements the read-only, string-keyed configuration
// store described in spec §3 and §6: a mapping from string key to string
// value, typed access parsed on demand, loaded from a TOML file with
// sensible defaults and a freshly generated server-salt on first run.
//
// Adapted from the teacher's config.go: that file loaded a single JSON
// config keyed by app name; this one loads a flat TOML document (grounded
// on the teacher's own Air.Serve, which supports ".toml" config files via
// BurntSushi/toml) and keeps every value as a string per spec §3, rather
// than binding into a typed struct.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
)

// Store is the read-only-after-startup configuration map.
type Store struct {
	values map[string]string
}

// Defaults mirrors the config-key table in spec §6 plus SPEC_FULL.md §6.
var Defaults = map[string]string{
	"address":                       "localhost",
	"port":                          "8080",
	"ssl-port":                      "8081",
	"ssl-certificate":               "server.crt",
	"ssl-private-key":               "server.key",
	"www-root":                      "www-root",
	"default-document":              "index.html",
	"user-agent-whitelist":          "*",
	"user-agent-blacklist":          "",
	"upgrade-insecure-requests":     "true",
	"trace-allowed":                 "false",
	"head-allowed":                  "false",
	"options-allowed":               "true",
	"authenticate-over-non-ssl":     "false",
	"max-uri-length":                "4096",
	"max-header-length":             "8192",
	"max-header-count":              "25",
	"max-request-content-length":    "4194304",
	"request-content-read-timeout":      "300",
	"request-post-content-read-timeout": "30",
	"connection-ssl-handshake-timeout":  "20",
	"connection-keep-alive-timeout":     "20",
	"max-connections-per-client":    "8",
	"provide-server-info":          "false",
	"static-response-headers":      "",
	"threads":                      "128",
	"file-cache-max-memory-bytes":  "33554432",
	"file-cache-exts":              ".html|.css|.js|.json|.svg|.txt",
	"response-minify-enabled":      "false",
	"acme-enabled":                 "false",
	"acme-cache-dir":               "acme-cache",
	"acme-hosts":                   "",
	"log-format":                   `{"time":"${time}","level":"${level}","message":"${message}"}`,
	"log-level":                    "INFO",

	// Request handlers, by extension.
	"handler.html": "get-file-handler",
	"handler.js":   "get-file-handler",
	"handler.css":  "get-file-handler",
	"handler.png":  "get-file-handler",
	"handler.gif":  "get-file-handler",
	"handler.jpeg": "get-file-handler",
	"handler.jpg":  "get-file-handler",
	"handler.ico":  "get-file-handler",
	"handler.xml":  "get-file-handler",
	"handler.zip":  "get-file-handler",
	"handler.json": "get-file-handler",
	"handler.svg":  "get-file-handler",
	"handler.txt":  "get-file-handler",

	// Common MIME types, by extension.
	"mime.html": "text/html; charset=utf-8",
	"mime.css":  "text/css; charset=utf-8",
	"mime.js":   "application/javascript; charset=utf-8",
	"mime.json": "application/json; charset=utf-8",
	"mime.png":  "image/png",
	"mime.gif":  "image/gif",
	"mime.jpg":  "image/jpeg",
	"mime.jpeg": "image/jpeg",
	"mime.ico":  "image/x-icon",
	"mime.zip":  "application/zip",
	"mime.xml":  "application/rss+xml",
	"mime.svg":  "image/svg+xml",
	"mime.txt":  "text/plain; charset=utf-8",
}

// validationShape exists purely so mapstructure.Decode can surface a type
// mismatch (e.g. port given as a string containing letters) before values
// are flattened to strings; it is never consulted at runtime.
type validationShape struct {
	Address                        *string
	Port                           *int
	SslPort                        *int `mapstructure:"ssl-port"`
	MaxConnectionsPerClient        *int `mapstructure:"max-connections-per-client"`
	MaxRequestContentLength        *int `mapstructure:"max-request-content-length"`
	Threads                        *int
	ProvideServerInfo              *bool `mapstructure:"provide-server-info"`
	TraceAllowed                   *bool `mapstructure:"trace-allowed"`
	HeadAllowed                    *bool `mapstructure:"head-allowed"`
	OptionsAllowed                 *bool `mapstructure:"options-allowed"`
	UpgradeInsecureRequests        *bool `mapstructure:"upgrade-insecure-requests"`
	AuthenticateOverNonSsl         *bool `mapstructure:"authenticate-over-non-ssl"`
	AcmeEnabled                    *bool `mapstructure:"acme-enabled"`
	ResponseMinifyEnabled          *bool `mapstructure:"response-minify-enabled"`
}

// Load reads path (a TOML document), validates its shape, and merges it
// over Defaults. A missing file is not an error; the caller is expected to
// have called GenerateDefault first if one is wanted.
func Load(path string) (*Store, error) {
	values := make(map[string]string, len(Defaults))
	for k, v := range Defaults {
		values[k] = v
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{values: values}, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc map[string]interface{}
	if _, err := toml.Decode(string(raw), &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	var shape validationShape
	if err := mapstructure.Decode(doc, &shape); err != nil {
		return nil, fmt.Errorf("config: invalid value in %s: %w", path, err)
	}

	flatten("", doc, values)

	return &Store{values: values}, nil
}

// flatten walks a TOML-decoded document and writes dotted-key/value pairs
// into out, descending into nested tables (map[string]interface{}) so that
// both bracketed ([mime]\nhtml = "…") and dotted (mime.html = "…") TOML
// forms land on the same flat key, e.g. "mime.html".
func flatten(prefix string, v interface{}, out map[string]string) {
	if m, ok := v.(map[string]interface{}); ok {
		for k, child := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
		return
	}
	out[prefix] = stringify(v)
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// GenerateDefault writes a default TOML config file to path if one does
// not already exist, with a freshly generated random server-salt, matching
// spec §6's "Absent ⇒ default rosetta.config (generated on first run with
// sensible defaults and a randomly-seeded server-salt)".
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	salt, err := randomSalt()
	if err != nil {
		return fmt.Errorf("config: generating server-salt: %w", err)
	}

	values := make(map[string]string, len(Defaults)+1)
	for k, v := range Defaults {
		values[k] = v
	}
	values["server-salt"] = salt

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("# rosettad configuration, generated " + time.Now().Format(time.RFC3339) + "\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%q = %q\n", k, values[k])
	}

	return os.WriteFile(path, []byte(b.String()), 0o600)
}

func randomSalt() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// String returns the raw string value for key, or def if the key is unset.
func (s *Store) String(key, def string) string {
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Int parses key as an integer, returning def on any parse failure.
func (s *Store) Int(key string, def int) int {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool parses key as a boolean, returning def on any parse failure.
func (s *Store) Bool(key string, def bool) bool {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Seconds parses key as an integer count of seconds and returns it as a
// time.Duration, returning def on any parse failure.
func (s *Store) Seconds(key string, def time.Duration) time.Duration {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

// StringList splits key on '|', dropping empty segments, matching spec's
// pipe-separated list convention (user-agent-whitelist, file-cache-exts,
// static-response-headers, ...).
func (s *Store) StringList(key string) []string {
	v, ok := s.values[key]
	if !ok || v == "" {
		return nil
	}
	parts := strings.Split(v, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Handler returns the value of "handler.<ext>", used by GET dispatch to
// decide whether an extension is servable (spec §6, §4.I).
func (s *Store) Handler(ext string) (string, bool) {
	v, ok := s.values["handler."+strings.TrimPrefix(ext, ".")]
	return v, ok
}

// MIME returns the value of "mime.<ext>", used by the file/folder GET
// handlers (spec §4.I).
func (s *Store) MIME(ext string) (string, bool) {
	v, ok := s.values["mime."+strings.TrimPrefix(ext, ".")]
	return v, ok
}
