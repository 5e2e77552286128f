package envelope

import "strings"

// Header is one (name, value) pair as it appears on the wire, in the order
// it was received — spec §3 models headers as an "ordered sequence", not a
// map, so that re-emission (TRACE) and first-match lookups behave the
// same way the original server's vector<pair<string,string>> did.
type Header struct {
	Name  string
	Value string
}

// Headers is the ordered header list of one request envelope.
type Headers []Header

// Get returns the value of the first header named name (case-insensitive),
// and whether it was present.
func (hs Headers) Get(name string) (string, bool) {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// First is Get without the presence flag; it returns "" if absent.
func (hs Headers) First(name string) string {
	v, _ := hs.Get(name)
	return v
}

// Append adds a (name, value) pair, auto-capitalizing name per spec §4.D
// step 8: the first character and any character immediately after a '-'
// are uppercased, every other character is lowercased — "content-type"
// becomes "Content-Type", "x-forwarded-for" becomes "X-Forwarded-For".
func (hs *Headers) Append(name, value string) {
	*hs = append(*hs, Header{Name: canonicalHeaderName(name), Value: value})
}

// AppendContinuation implements spec §4.D step 7: a header line starting
// with SP or TAB is a continuation of the previous header's value, joined
// by a single space.
func (hs Headers) AppendContinuation(trimmed string) {
	if len(hs) == 0 {
		return
	}
	last := &hs[len(hs)-1]
	last.Value = last.Value + " " + trimmed
}

func canonicalHeaderName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	upperNext := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '-':
			b.WriteByte(c)
			upperNext = true
		case upperNext:
			b.WriteByte(toUpper(c))
			upperNext = false
		default:
			b.WriteByte(toLower(c))
		}
	}
	return b.String()
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
