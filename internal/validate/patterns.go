package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/privgate/privgate/internal/common"
)

// shellMetacharacters are characters that change how a shell would parse the
// argument. The executor never invokes a shell, but privileged helpers
// (sudo's askpass chain, pkexec) may, so any occurrence rejects the command.
var shellMetacharacters = []string{
	";", "&", "|",
	"$", "`",
	"(", ")", "{", "}",
	"<", ">",
}

// globCharacters expand to unrelated paths when an argument reaches a shell
// or a tool that performs its own globbing.
var globCharacters = []string{"*", "?", "["}

// restrictedPathPrefixes are kernel-backed trees that no managed tool has a
// reason to receive as an argument.
var restrictedPathPrefixes = []string{"/proc/", "/dev/", "/sys/"}

// Encoded escapes are rejected because a later decoding layer could turn
// them back into blocked characters.
var (
	hexEscapePattern = regexp.MustCompile(`\\x[0-9A-Fa-f]{2}`)
	urlEscapePattern = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
)

// checkArgumentText scans a single argument against the injection-pattern
// blocklist. It returns nil when the argument is safe to pass through to an
// allowlisted binary, or an error wrapping ErrDangerousArgument naming the
// matched pattern.
func checkArgumentText(arg string) error {
	if strings.TrimSpace(arg) == "" {
		return fmt.Errorf("%w: empty or whitespace-only argument", ErrDangerousArgument)
	}

	if common.ContainsControlChars(arg) {
		return fmt.Errorf("%w: control character in %q", ErrDangerousArgument, common.EscapeControlChars(arg))
	}

	for _, meta := range shellMetacharacters {
		if strings.Contains(arg, meta) {
			return fmt.Errorf("%w: shell metacharacter %q in %q", ErrDangerousArgument, meta, arg)
		}
	}

	for _, glob := range globCharacters {
		if strings.Contains(arg, glob) {
			return fmt.Errorf("%w: glob wildcard %q in %q", ErrDangerousArgument, glob, arg)
		}
	}

	if common.ContainsPathTraversalSegment(arg) {
		return fmt.Errorf("%w: path traversal in %q", ErrDangerousArgument, arg)
	}

	for _, prefix := range restrictedPathPrefixes {
		trimmed := strings.TrimSuffix(prefix, "/")
		if strings.Contains(arg, prefix) || arg == trimmed {
			return fmt.Errorf("%w: restricted path %q in %q", ErrDangerousArgument, trimmed, arg)
		}
	}

	if hexEscapePattern.MatchString(arg) {
		return fmt.Errorf("%w: hex escape in %q", ErrDangerousArgument, arg)
	}
	if urlEscapePattern.MatchString(arg) {
		return fmt.Errorf("%w: URL escape in %q", ErrDangerousArgument, arg)
	}

	return nil
}
