package validate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/privgate/privgate/internal/common"
)

// ValueShape classifies how a flag value or positional argument is checked
// once the injection scan has already passed.
type ValueShape int

const (
	// ShapeNone means the flag takes no value, or the tool accepts no
	// positional arguments.
	ShapeNone ValueShape = iota
	// ShapeEnum restricts the value to the rule's closed set.
	ShapeEnum
	// ShapePath requires a clean absolute path outside restricted trees.
	ShapePath
	// ShapeUnitName requires a systemd unit name.
	ShapeUnitName
	// ShapePID requires a decimal process id.
	ShapePID
)

var (
	unitNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.@\-]*$`)
	pidPattern      = regexp.MustCompile(`^[0-9]+$`)
)

// FlagRule describes one allowed flag of a tool profile.
type FlagRule struct {
	// Shape selects the value check. ShapeNone rejects any inline value.
	Shape ValueShape
	// Values is the closed set for ShapeEnum.
	Values []string
	// CommaList splits a ShapeEnum value on commas and checks each element
	// (rkhunter --enable/--disable style lists).
	CommaList bool
}

func (r FlagRule) takesValue() bool {
	return r.Shape != ShapeNone
}

// ToolProfile is the second allowlist layer for one managed binary: which
// subcommands, flags, and positional arguments may follow it.
type ToolProfile struct {
	// subcommands, when non-empty, requires the first positional argument
	// to be one of these words.
	subcommands map[string]struct{}
	// flags maps each allowed flag name to its value rule.
	flags map[string]FlagRule
	// positional is the shape applied to positional arguments after the
	// subcommand; ShapeNone rejects them.
	positional ValueShape
}

// newToolProfile builds a profile from plain slices so the built-in table
// below stays readable.
func newToolProfile(subcommands []string, flags map[string]FlagRule, positional ValueShape) ToolProfile {
	return ToolProfile{
		subcommands: common.SliceToSet(subcommands),
		flags:       flags,
		positional:  positional,
	}
}

// checkValue validates a flag value or positional argument against a shape.
func checkValue(shape ValueShape, rule FlagRule, value string) error {
	switch shape {
	case ShapeEnum:
		elems := []string{value}
		if rule.CommaList {
			elems = strings.Split(value, ",")
		}
		for _, elem := range elems {
			if !slices.Contains(rule.Values, elem) {
				return fmt.Errorf("%w: %q is not in the allowed set", ErrFlagValueNotAllowed, elem)
			}
		}
		return nil
	case ShapePath:
		if !filepath.IsAbs(value) {
			return fmt.Errorf("%w: %q must be an absolute path", ErrFlagValueNotAllowed, value)
		}
		if value != filepath.Clean(value) {
			return fmt.Errorf("%w: %q is not a clean path", ErrFlagValueNotAllowed, value)
		}
		return nil
	case ShapeUnitName:
		if !unitNamePattern.MatchString(value) {
			return fmt.Errorf("%w: %q is not a valid unit name", ErrFlagValueNotAllowed, value)
		}
		return nil
	case ShapePID:
		if !pidPattern.MatchString(value) {
			return fmt.Errorf("%w: %q is not a process id", ErrFlagValueNotAllowed, value)
		}
		return nil
	case ShapeNone:
		return fmt.Errorf("%w: no value expected, got %q", ErrFlagValueNotAllowed, value)
	default:
		return fmt.Errorf("%w: unsupported value shape %d", ErrFlagValueNotAllowed, shape)
	}
}

// rkhunterTestCategories is the closed set accepted by --enable/--disable.
var rkhunterTestCategories = []string{
	"all", "none",
	"additional_rkts", "attributes", "deleted_files", "filesystem",
	"group_accounts", "group_changes", "hashes", "hidden_ports",
	"hidden_procs", "immutable", "known_rkts", "local_host",
	"loaded_modules", "malware", "network", "os_specific",
	"packet_cap_apps", "passwd_changes", "ports", "possible_rkt_files",
	"possible_rkt_strings", "promisc", "properties", "rootkits",
	"running_procs", "scripts", "shared_libs", "startup_files",
	"startup_malware", "strings", "suspscan", "system_commands",
	"system_configs", "trojans",
}

// systemctlVerbs is the closed set of service-control subcommands the
// subsystem issues; anything beyond unit lifecycle is rejected.
var systemctlVerbs = []string{
	"start", "stop", "restart", "reload",
	"enable", "disable",
	"status", "is-active", "is-enabled",
	"daemon-reload",
}

// killSignals is the closed set accepted by kill -s.
var killSignals = []string{"TERM", "KILL", "INT", "HUP"}

// builtinProfiles returns the per-tool flag and subcommand allowlists for
// the managed binaries, keyed by the binary's base name so both merged-usr
// and split-usr install locations share one profile.
func builtinProfiles() map[string]ToolProfile {
	noValue := FlagRule{Shape: ShapeNone}
	pathValue := FlagRule{Shape: ShapePath}

	return map[string]ToolProfile{
		"rkhunter": newToolProfile(nil, map[string]FlagRule{
			"--check": noValue, "-c": noValue,
			"--update":       noValue,
			"--propupd":      noValue,
			"--versioncheck": noValue,
			"--sk":           noValue,
			"--nocolors":     noValue,
			"--quiet":        noValue, "-q": noValue,
			"--report-warnings-only": noValue, "--rwo": noValue,
			"--no-mail-on-warning": noValue,
			"--cronjob":            noValue,
			"--verbose-logging":    noValue,
			"--configfile":         pathValue,
			"--tmpdir":             pathValue,
			"--logfile":            pathValue,
			"--enable":             {Shape: ShapeEnum, Values: rkhunterTestCategories, CommaList: true},
			"--disable":            {Shape: ShapeEnum, Values: rkhunterTestCategories, CommaList: true},
			"--pkgmgr":             {Shape: ShapeEnum, Values: []string{"RPM", "DPKG", "BSD", "NONE"}},
		}, ShapeNone),

		"chkrootkit": newToolProfile(nil, map[string]FlagRule{
			"-q": noValue,
			"-n": noValue,
			"-x": noValue,
			"-r": pathValue,
		}, ShapeNone),

		"clamscan": newToolProfile(nil, map[string]FlagRule{
			"--infected": noValue, "-i": noValue,
			"--recursive": noValue, "-r": noValue,
			"--bell":                noValue,
			"--no-summary":          noValue,
			"--stdout":              noValue,
			"--quiet":               noValue,
			"--suppress-ok-results": noValue,
			"--remove":              noValue,
			"--log": pathValue, "-l": pathValue,
			"--database": pathValue, "-d": pathValue,
			"--move": pathValue,
			"--copy": pathValue,
		}, ShapePath),

		"freshclam": newToolProfile(nil, map[string]FlagRule{
			"--quiet":   noValue,
			"--verbose": noValue, "-v": noValue,
			"--stdout":        noValue,
			"--show-progress": noValue,
			"--config-file":   pathValue,
			"--datadir":       pathValue,
			"--log":           pathValue, "-l": pathValue,
		}, ShapeNone),

		"systemctl": newToolProfile(systemctlVerbs, map[string]FlagRule{
			"--no-pager": noValue,
			"--quiet":    noValue,
			"--now":      noValue,
			"--system":   noValue,
		}, ShapeUnitName),

		"kill": newToolProfile(nil, map[string]FlagRule{
			"-TERM": noValue,
			"-KILL": noValue,
			"-INT":  noValue,
			"-HUP":  noValue,
			"-15":   noValue,
			"-9":    noValue,
			"-s":    {Shape: ShapeEnum, Values: killSignals},
		}, ShapePID),
	}
}
