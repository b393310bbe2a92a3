package selector

import (
	"fmt"
	"strings"
)

// EscapeIdent escapes a string for use as a CSS identifier, following
// the serialization rules of CSSOM's CSS.escape. Ids and class names on
// arbitrary pages routinely contain colons, slashes or leading digits
// (utility-class frameworks especially), so every generated selector
// passes through here.
func EscapeIdent(ident string) string {
	if ident == "" {
		return ident
	}

	var b strings.Builder
	runes := []rune(ident)

	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('�')
		case r >= '0' && r <= '9' && (i == 0 || (i == 1 && runes[0] == '-')):
			// A leading digit (or digit after a leading hyphen) must
			// be written as a code point escape.
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString("\\-")
		case isIdentChar(r):
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, "\\%x ", r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isIdentChar(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		r >= 0x80
}
