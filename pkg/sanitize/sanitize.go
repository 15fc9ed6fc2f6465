// Package sanitize maps arbitrary cache keys to portable file names and back.
//
// Remote file systems disagree wildly about which characters a file name may
// contain, whether names are case sensitive, and how Unicode is normalized.
// The encoding here side-steps all of that by projecting every key onto the
// lowercase set [a-z0-9_-] plus percent escapes, which survives every backend
// DriftCache targets, round-trips exactly, and never collides two distinct
// keys.
package sanitize

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// Sanitize encodes an arbitrary key as a file-name-safe string.
//
// Characters in [a-z0-9_-] pass through unchanged. Everything else is
// escaped by UTF-16 code unit:
//   - units up to 0xFF become "%xx" (two lowercase hex digits)
//   - units above 0xFF become "%uxxxx" (four lowercase hex digits)
//
// Code points outside the Basic Multilingual Plane occupy two UTF-16 code
// units and therefore produce two "%uxxxx" escapes in sequence. Uppercase
// ASCII is escaped rather than folded, so "A" and "a" stay distinct on
// case-insensitive file systems.
//
// Example:
//
//	Sanitize("user/7:name")  // "user%2f7%3aname"
//	Sanitize("Grüße")        // "%47r%fc%dfe"
func Sanitize(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if isSafe(r) {
			b.WriteByte(byte(r))
			continue
		}
		if r <= 0xFF {
			fmt.Fprintf(&b, "%%%02x", r)
			continue
		}
		if r <= 0xFFFF {
			fmt.Fprintf(&b, "%%u%04x", r)
			continue
		}
		hi, lo := utf16.EncodeRune(r)
		fmt.Fprintf(&b, "%%u%04x%%u%04x", hi, lo)
	}
	return b.String()
}

// Unsanitize decodes a file name produced by Sanitize back into the
// original key. Adjacent surrogate escapes recombine into one code point.
//
// Unsanitize never fails: malformed escape sequences in foreign file names
// are passed through literally, and stray surrogates decode to U+FFFD. The
// guarantee is only that Unsanitize(Sanitize(key)) == key for every key.
func Unsanitize(name string) string {
	units := make([]uint16, 0, len(name))
	for i := 0; i < len(name); {
		c := name[i]
		if c != '%' {
			units = append(units, uint16(c))
			i++
			continue
		}
		if i+1 < len(name) && name[i+1] == 'u' {
			if v, ok := hex4(name[i+2:]); ok {
				units = append(units, v)
				i += 6
				continue
			}
		}
		if v, ok := hex2(name[i+1:]); ok {
			units = append(units, v)
			i += 3
			continue
		}
		units = append(units, uint16(c))
		i++
	}
	return string(utf16.Decode(units))
}

func isSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

func hex2(s string) (uint16, bool) {
	if len(s) < 2 {
		return 0, false
	}
	hi, ok1 := hexVal(s[0])
	lo, ok2 := hexVal(s[1])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

func hex4(s string) (uint16, bool) {
	if len(s) < 4 {
		return 0, false
	}
	var v uint16
	for j := 0; j < 4; j++ {
		d, ok := hexVal(s[j])
		if !ok {
			return 0, false
		}
		v = v<<4 | d
	}
	return v, true
}

func hexVal(c byte) (uint16, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint16(c - '0'), true
	case c >= 'a' && c <= 'f':
		return uint16(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return uint16(c-'A') + 10, true
	}
	return 0, false
}
