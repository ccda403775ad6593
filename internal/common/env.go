//nolint:revive // common is an appropriate name for shared utilities package
package common

import "strings"

// ParseEnvVariable parses an environment variable string in "KEY=VALUE" format.
// Returns the key, value, and a boolean indicating successful parsing.
// If the string is not in the correct format or key is empty, returns empty strings and false.
//
// Edge cases:
//   - "=VALUE" (empty key): returns key="", value="", ok=false (invalid)
//   - "KEY=" (empty value): returns key="KEY", value="", ok=true (valid)
//   - "KEY" (no equals): returns key="", value="", ok=false (invalid)
//   - "" (empty string): returns key="", value="", ok=false (invalid)
func ParseEnvVariable(env string) (key, value string, ok bool) {
	key, value, found := strings.Cut(env, "=")
	if !found || key == "" {
		return "", "", false
	}
	return key, value, true
}

// IsValidEnvName reports whether name is an acceptable environment variable
// name for a child process: a non-empty sequence of upper-case ASCII letters,
// digits, and underscores that does not start with a digit.
func IsValidEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
