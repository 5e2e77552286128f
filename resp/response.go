// Package resp implements the response builder (spec §4.J), the
// chunked file-response writer (§4.K), a small-file response cache
// adapted from the teacher's coffer.go (§4.K extended), and optional
// response minification adapted from the teacher's minifier.go
// (§4.J extended).
package resp

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HTTPDateFormat is the wire format for Date/Last-Modified/If-Modified-Since,
// identical to net/http.TimeFormat: RFC 1123 with a literal "GMT" zone
// rather than whatever name the time.Location carries.
const HTTPDateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// reasons mirrors spec §4.J's fixed reason-phrase table.
var reasons = map[int]string{
	200: "OK",
	304: "Not Modified",
	307: "Moved Temporarily",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Request Header Too Long",
	414: "Request-URI Too Long",
	500: "Internal Server Error",
	501: "Not Implemented",
}

// Reason returns the fixed reason phrase for a known status code, or a
// generic one derived from the hundreds digit.
func Reason(status int) string {
	if r, ok := reasons[status]; ok {
		return r
	}
	switch status / 100 {
	case 2:
		return "OK"
	case 3:
		return "Redirection"
	case 4:
		return "Client Error"
	case 5:
		return "Server Error"
	default:
		return "Unknown"
	}
}

// Header is one response header in emission order.
type Header struct {
	Name  string
	Value string
}

// StandardHeaders holds the values spec §4.J always appends near the end
// of every response.
type StandardHeaders struct {
	ProvideServerInfo   bool
	ProductName         string
	StaticResponseLines []string
}

// Builder accumulates a status and headers, then writes the envelope
// (status line, headers, standard headers, terminator) followed by a
// body via Writer or one of the streaming helpers in filewriter.go.
type Builder struct {
	std    StandardHeaders
	status int
	headers []Header
}

// NewBuilder starts a response with the given status and the server's
// standard-header configuration.
func NewBuilder(status int, std StandardHeaders) *Builder {
	return &Builder{status: status, std: std}
}

// Header appends one header in the order handlers supply them, per spec
// §4.J ("each header... in the order the handler supplies them").
func (b *Builder) Header(name, value string) *Builder {
	b.headers = append(b.headers, Header{Name: name, Value: value})
	return b
}

// WriteEnvelope writes the status line, the handler-supplied headers, the
// standard headers, and the terminating blank line to w. Callers write
// any body bytes afterward.
func (b *Builder) WriteEnvelope(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", b.status, Reason(b.status)); err != nil {
		return err
	}
	for _, h := range b.headers {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return err
		}
	}
	if err := b.writeStandardHeaders(w); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

func (b *Builder) writeStandardHeaders(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, "Date: %s\r\n", time.Now().UTC().Format(HTTPDateFormat)); err != nil {
		return err
	}
	if b.std.ProvideServerInfo && b.std.ProductName != "" {
		if _, err := fmt.Fprintf(w, "Server: %s\r\n", b.std.ProductName); err != nil {
			return err
		}
	}
	for _, line := range b.std.StaticResponseLines {
		if line == "" {
			continue
		}
		if _, err := w.WriteString(line + "\r\n"); err != nil {
			return err
		}
	}
	return nil
}

// ParseStaticResponseHeaders splits the pipe-separated
// static-response-headers configuration value into individual lines.
func ParseStaticResponseHeaders(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, "|")
}

// ContentLengthHeader formats n for a Content-Length header value.
func ContentLengthHeader(n int64) string {
	return strconv.FormatInt(n, 10)
}
