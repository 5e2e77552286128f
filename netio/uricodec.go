package netio

import (
	"strings"

	"github.com/kallhaugen/rosettad/httperr"
)

// Decode implements spec §4.C: '+' becomes a space, "%HH" pairs become the
// byte value, any other '%' sequence is an error, and every decoded byte
// must be printable ASCII (32..126) or the whole decode fails.
//
// net/url.QueryUnescape was deliberately not reused here: it tolerates a
// trailing '%' or a short/non-hex escape by returning an error that
// doesn't match spec's message, and it does not enforce the
// printable-ASCII-after-decode invariant at all (spec §8's round-trip law
// and §1's invariant I1 both depend on that check happening here).
func Decode(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 >= len(s) {
				return "", httperr.BadRequest("truncated percent-escape in URI")
			}
			hi, ok1 := hexVal(s[i+1])
			lo, ok2 := hexVal(s[i+2])
			if !ok1 || !ok2 {
				return "", httperr.BadRequest("invalid percent-escape in URI")
			}
			b.WriteByte(byte(hi<<4 | lo))
			i += 2
		default:
			b.WriteByte(c)
		}
	}

	out := b.String()
	for i := 0; i < len(out); i++ {
		if out[i] < 32 || out[i] > 126 {
			return "", httperr.BadRequest("non-printable byte in decoded URI")
		}
	}
	return out, nil
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

const unreservedBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789._~-"

// Encode is the inverse of Decode: unreserved bytes pass through, a space
// becomes '+', everything else becomes "%HH" with lowercase hex, per spec
// §4.C and the round-trip law in §8.
func Encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case strings.IndexByte(unreservedBytes, c) >= 0:
			b.WriteByte(c)
		default:
			const hex = "0123456789abcdef"
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

// PathSafe implements spec §4.C / invariant I2: no path component may
// equal "..", start with "~", or equal "." after resolution.
func PathSafe(p string) bool {
	for _, comp := range strings.Split(p, "/") {
		if comp == ".." || comp == "." || strings.HasPrefix(comp, "~") {
			return false
		}
	}
	return true
}
