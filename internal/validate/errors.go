package validate

import "errors"

// Error definitions
var (
	// ErrEmptyCommand is returned when validation is requested for an empty
	// argument vector
	ErrEmptyCommand = errors.New("empty command")

	// ErrUnauthorizedExecutable is returned when the program path, after
	// symlink resolution, does not exactly match an allowlisted binary
	ErrUnauthorizedExecutable = errors.New("unauthorized executable")

	// ErrSymlinkDepthExceeded is returned when resolving the program path
	// follows more than MaxSymlinkDepth links
	ErrSymlinkDepthExceeded = errors.New("symbolic link depth exceeded")

	// ErrDangerousArgument is returned when an argument matches the
	// injection-pattern blocklist (shell metacharacters, traversal
	// sequences, encoded escapes, glob wildcards, control characters)
	ErrDangerousArgument = errors.New("dangerous argument")

	// ErrUnknownFlag is returned when an argument looks like a flag but is
	// not present in the tool's flag allowlist
	ErrUnknownFlag = errors.New("flag not allowed")

	// ErrUnknownSubcommand is returned when the first positional argument is
	// not in the tool's subcommand allowlist
	ErrUnknownSubcommand = errors.New("subcommand not allowed")

	// ErrFlagValueNotAllowed is returned when a flag value fails its closed
	// set or shape rule
	ErrFlagValueNotAllowed = errors.New("flag value not allowed")

	// ErrMissingFlagValue is returned when a flag that requires a value is
	// the last argument or is followed by another flag
	ErrMissingFlagValue = errors.New("flag requires a value")

	// ErrUnexpectedArgument is returned when a positional argument appears
	// for a tool whose profile does not accept positional arguments
	ErrUnexpectedArgument = errors.New("unexpected positional argument")

	// ErrInvalidAllowlistEntry is returned at construction when a configured
	// allowlist path is not absolute or not clean
	ErrInvalidAllowlistEntry = errors.New("invalid allowlist entry")
)
