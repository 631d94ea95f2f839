// Package display turns raw CSV strings into metadata for rendering a table:
// shortened headers, estimated column widths, cleaned cell text and simple
// column type hints.
//
// Everything here is pure and safe for concurrent use. Lengths are counted in
// runes, so multi-byte headers are never cut in the middle of a character.
package display

import (
	"strings"
	"unicode"
)

// DefaultHeaderLength is the header length TruncateHeader targets when the
// caller has no layout-specific limit.
const DefaultHeaderLength = 12

// TruncateHeader shortens header to at most maxLength runes, preferring to cut
// at a natural word boundary.
//
// Break points are tried in order: the last '_' at or before maxLength-1 that
// lies past maxLength/2, then the last space under the same rule, then the
// first lower-to-upper camelCase transition at or after maxLength/2. The
// header is cut just after the break point. Without one, the first maxLength
// runes are kept.
func TruncateHeader(header string, maxLength int) string {
	if maxLength < 1 {
		return ""
	}
	runes := []rune(header)
	if len(runes) <= maxLength {
		return header
	}

	if bp := breakPoint(runes, maxLength); bp >= 0 && bp < maxLength-1 {
		return string(runes[:bp+1])
	}
	return string(runes[:maxLength])
}

// breakPoint returns the index of the best break character, or -1.
func breakPoint(runes []rune, maxLength int) int {
	half := maxLength / 2

	for _, sep := range []rune{'_', ' '} {
		if i := lastIndexAtOrBefore(runes, sep, maxLength-1); i > half {
			return i
		}
	}

	for i := half; i < maxLength-1 && i < len(runes)-1; i++ {
		if unicode.IsLower(runes[i]) && unicode.IsUpper(runes[i+1]) {
			return i
		}
	}
	return -1
}

func lastIndexAtOrBefore(runes []rune, r rune, limit int) int {
	if limit >= len(runes) {
		limit = len(runes) - 1
	}
	for i := limit; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// FormatCell cleans content for single-line display: surrounding whitespace
// is trimmed, CR, LF and tab become spaces, and runs of spaces collapse to one.
func FormatCell(content string) string {
	s := strings.TrimSpace(content)
	if s == "" {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		switch r {
		case '\r', '\n', '\t':
			r = ' '
		}
		if r == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeHeaderName trims header and replaces every rune that is not a
// letter, digit, underscore or space with '_'. A blank header becomes "Column".
func SanitizeHeaderName(header string) string {
	s := strings.TrimSpace(header)
	if s == "" {
		return "Column"
	}

	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == ' ' {
			return r
		}
		return '_'
	}, s)
}
