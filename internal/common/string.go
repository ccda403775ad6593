//nolint:revive // common is an appropriate name for shared utilities package
package common

import (
	"fmt"
	"strings"
	"unicode"
)

// EscapeControlChars escapes control characters and spaces in a string for safe display.
// This ensures terminal control characters don't corrupt the output.
//
// Uses unicode.IsControl to detect control characters, then escapes them using
// standard escape sequences (\n, \t, etc.) for common ones, or \xNN for others.
// Spaces are also escaped as \x20 for clarity in parameter display.
// Regular printable characters (except spaces) are left unchanged for readability.
func EscapeControlChars(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r != ' ' && !unicode.IsControl(r) {
			// Not a space or a control character - output as-is
			result.WriteRune(r)
			continue
		}

		// Use standard escape sequences for common control characters
		switch r {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		case '\t':
			result.WriteString("\\t")
		case '\b':
			result.WriteString("\\b")
		case '\f':
			result.WriteString("\\f")
		case '\v':
			result.WriteString("\\v")
		case '\a':
			result.WriteString("\\a")
		default:
			// For space character and other control characters, use \xNN notation
			fmt.Fprintf(&result, "\\x%02x", r)
		}
	}
	return result.String()
}

// ContainsControlChars reports whether s contains any control character,
// including NUL, newlines, and escape sequences.
func ContainsControlChars(s string) bool {
	return strings.ContainsFunc(s, unicode.IsControl)
}
