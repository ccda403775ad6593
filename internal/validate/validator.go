// Package validate decides whether a proposed privileged command may reach
// the executor. It resolves the program path through symlinks and compares
// it against a fixed allowlist of absolute binary paths, enforces per-tool
// subcommand and flag profiles, and scans every argument against an
// injection-pattern blocklist. Validation is deterministic, has no side
// effects, and a Validator is safe for concurrent use: all state is compiled
// at construction and read-only afterwards.
package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/privgate/privgate/internal/common"
)

// Constants for validator configuration
const (
	// MaxSymlinkDepth bounds program path resolution.
	// SYMLOOP_MAX is typically 40 on Linux systems (POSIX.1-2008 minimum: 8)
	// This value matches what Go's filepath.EvalSymlinks uses internally
	MaxSymlinkDepth = 40

	// DefaultMaxArguments is the default limit on argument count
	DefaultMaxArguments = 64

	// DefaultMaxArgLength is the default limit on a single argument's length
	DefaultMaxArgLength = 4096
)

// Config holds validator configuration.
type Config struct {
	// AllowedBinaries is the fixed set of absolute binary paths a command's
	// program may resolve to. Matching is by exact string after symlink
	// resolution, never by prefix or pattern.
	AllowedBinaries []string
	// MaxArguments limits the argument count per command (0 = default)
	MaxArguments int
	// MaxArgLength limits a single argument's byte length (0 = default)
	MaxArgLength int
}

// DefaultConfig returns the validator configuration covering the managed
// tools at their known install locations, split-usr and merged-usr both.
func DefaultConfig() *Config {
	return &Config{
		AllowedBinaries: []string{
			"/usr/bin/rkhunter", "/usr/local/bin/rkhunter",
			"/usr/sbin/chkrootkit", "/usr/bin/chkrootkit",
			"/usr/bin/clamscan", "/usr/local/bin/clamscan",
			"/usr/bin/freshclam", "/usr/local/bin/freshclam",
			"/bin/systemctl", "/usr/bin/systemctl",
			"/bin/kill", "/usr/bin/kill",
		},
		MaxArguments: DefaultMaxArguments,
		MaxArgLength: DefaultMaxArgLength,
	}
}

// Verdict is the outcome of validating one proposed command. It is produced
// once per command and never mutated.
type Verdict struct {
	// Admitted reports whether the command may be executed.
	Admitted bool
	// Reason is a short, non-sensitive diagnostic when Admitted is false.
	Reason string
}

func rejected(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Command is an admitted command. It is constructed only by
// Validator.Validate and immutable afterwards; accessors return copies.
type Command struct {
	program  string
	resolved string
	args     []string
}

// Program returns the program path as supplied by the caller.
func (c *Command) Program() string { return c.program }

// ResolvedPath returns the allowlisted path the program resolved to.
func (c *Command) ResolvedPath() string { return c.resolved }

// Args returns a copy of the command's arguments.
func (c *Command) Args() []string { return common.CloneOrEmpty(c.args) }

// Argv returns the full argument vector for execution. The first element is
// the resolved path, not the supplied one, so the binary that was checked is
// the binary that runs even if the original symlink is repointed later.
func (c *Command) Argv() []string {
	argv := make([]string, 0, len(c.args)+1)
	argv = append(argv, c.resolved)
	argv = append(argv, c.args...)
	return argv
}

// Validator checks proposed commands against the allowlist, the per-tool
// profiles, and the injection blocklist.
type Validator struct {
	config          *Config
	fs              common.FileSystem
	allowedBinaries map[string]struct{}
	profiles        map[string]ToolProfile
}

// NewValidator creates a validator with the given configuration.
// If config is nil, DefaultConfig() will be used.
func NewValidator(config *Config) (*Validator, error) {
	return NewValidatorWithFS(config, common.NewDefaultFileSystem())
}

// NewValidatorWithFS creates a validator with the given configuration and
// FileSystem. If config is nil, DefaultConfig() will be used.
// Returns an error if any allowlist entry is not a clean absolute path.
func NewValidatorWithFS(config *Config, fs common.FileSystem) (*Validator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxArguments <= 0 {
		config.MaxArguments = DefaultMaxArguments
	}
	if config.MaxArgLength <= 0 {
		config.MaxArgLength = DefaultMaxArgLength
	}

	for _, entry := range config.AllowedBinaries {
		if !filepath.IsAbs(entry) {
			return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidAllowlistEntry, entry)
		}
		if entry != filepath.Clean(entry) {
			return nil, fmt.Errorf("%w: %q is not clean", ErrInvalidAllowlistEntry, entry)
		}
	}

	return &Validator{
		config:          config,
		fs:              fs,
		allowedBinaries: common.SliceToSet(config.AllowedBinaries),
		profiles:        builtinProfiles(),
	}, nil
}

// Validate decides admit/reject for the proposed argument vector. On
// admission it returns the immutable Command to hand to the executor; on
// rejection the Command is nil and the Verdict carries the reason. Validate
// performs read-only filesystem lookups for symlink resolution and is safe
// to call concurrently.
func (v *Validator) Validate(argv []string) (*Command, Verdict) {
	if len(argv) == 0 {
		return nil, rejected("%s", ErrEmptyCommand)
	}

	program := argv[0]
	if strings.TrimSpace(program) == "" || common.ContainsControlChars(program) {
		return nil, rejected("%s: malformed program path", ErrUnauthorizedExecutable)
	}
	if !filepath.IsAbs(program) {
		return nil, rejected("%s: %q is not an absolute path", ErrUnauthorizedExecutable, program)
	}

	resolved, err := v.resolveExecutable(program)
	if err != nil {
		return nil, rejected("%s: resolving %q", err, program)
	}
	if _, ok := v.allowedBinaries[resolved]; !ok {
		return nil, rejected("%s: %q resolves to %q which is not allowlisted",
			ErrUnauthorizedExecutable, program, resolved)
	}

	args := argv[1:]
	if len(args) > v.config.MaxArguments {
		return nil, rejected("%s: %d arguments exceeds limit %d",
			ErrDangerousArgument, len(args), v.config.MaxArguments)
	}
	for i, arg := range args {
		if len(arg) > v.config.MaxArgLength {
			return nil, rejected("%s: argument %d exceeds %d bytes",
				ErrDangerousArgument, i+1, v.config.MaxArgLength)
		}
		if err := checkArgumentText(arg); err != nil {
			return nil, rejected("argument %d: %s", i+1, err)
		}
	}

	if profile, ok := v.profiles[filepath.Base(resolved)]; ok {
		if err := enforceProfile(profile, args); err != nil {
			return nil, rejected("%s", err)
		}
	}

	cmd := &Command{
		program:  program,
		resolved: resolved,
		args:     common.CloneOrEmpty(args),
	}
	return cmd, Verdict{Admitted: true}
}

// resolveExecutable follows symlinks from the cleaned program path up to
// MaxSymlinkDepth. Paths that cannot be inspected are returned as-is and
// left to the allowlist match; only a too-deep link chain is an error.
func (v *Validator) resolveExecutable(program string) (string, error) {
	current := filepath.Clean(program)
	for depth := 0; depth < MaxSymlinkDepth; depth++ {
		info, err := v.fs.Lstat(current)
		if err != nil {
			return current, nil
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current, nil
		}
		target, err := v.fs.Readlink(current)
		if err != nil {
			return current, nil
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = filepath.Clean(target)
	}
	return "", ErrSymlinkDepthExceeded
}

// enforceProfile walks the arguments against the tool's second allowlist
// layer: subcommand set, flag rules (inline "=" and next-argument values
// both), and positional shape. Unknown flags reject the whole command,
// never get dropped.
func enforceProfile(profile ToolProfile, args []string) error {
	subcommandSeen := len(profile.subcommands) == 0
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") {
			name, inline, hasInline := strings.Cut(arg, "=")
			rule, ok := profile.flags[name]
			if !ok {
				return fmt.Errorf("%w: %q", ErrUnknownFlag, name)
			}
			if !rule.takesValue() {
				if hasInline {
					return fmt.Errorf("%w: flag %q takes no value", ErrFlagValueNotAllowed, name)
				}
				continue
			}
			value := inline
			if !hasInline {
				if i+1 >= len(args) || strings.HasPrefix(args[i+1], "-") {
					return fmt.Errorf("%w: %q", ErrMissingFlagValue, name)
				}
				i++
				value = args[i]
			}
			if err := checkValue(rule.Shape, rule, value); err != nil {
				return fmt.Errorf("flag %q: %w", name, err)
			}
			continue
		}

		if !subcommandSeen {
			if _, ok := profile.subcommands[arg]; !ok {
				return fmt.Errorf("%w: %q", ErrUnknownSubcommand, arg)
			}
			subcommandSeen = true
			continue
		}

		if profile.positional == ShapeNone {
			return fmt.Errorf("%w: %q", ErrUnexpectedArgument, arg)
		}
		if err := checkValue(profile.positional, FlagRule{}, arg); err != nil {
			return err
		}
	}
	return nil
}
