package codec

import (
	"net/url"
	"strings"
)

const upperHex = "0123456789ABCDEF"

// escapeName percent-encodes every byte except the unreserved set browsers
// leave alone in encodeURIComponent, so names survive a round trip through
// a URL fragment and never contain the field separator.
func escapeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// unescapeName reverses escapeName. A malformed escape leaves the raw text.
func unescapeName(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
