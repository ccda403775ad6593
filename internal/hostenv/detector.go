// Package hostenv probes the host environment that privilege escalation
// decisions depend on: terminal and display availability, CI detection,
// system load, and the deployment's high-security marker. All probes go
// through injectable seams so policy code can be tested without a desktop.
package hostenv

import (
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// ciEnvVars contains common CI environment variables
var ciEnvVars = []string{
	"CI",                     // Generic CI indicator
	"CONTINUOUS_INTEGRATION", // Generic CI indicator
	"GITHUB_ACTIONS",         // GitHub Actions
	"TRAVIS",                 // Travis CI
	"CIRCLECI",               // Circle CI
	"JENKINS_URL",            // Jenkins
	"BUILD_NUMBER",           // Jenkins/TeamCity/etc
	"GITLAB_CI",              // GitLab CI
	"BUILDKITE",              // Buildkite
	"DRONE",                  // Drone CI
	"TF_BUILD",               // Azure DevOps
}

// DetectorOptions contains options for controlling interactive detection
type DetectorOptions struct {
	ForceInteractive    bool // Force interactive mode regardless of environment
	ForceNonInteractive bool // Force non-interactive mode regardless of environment
}

// Detector reports what kind of user-facing prompting the host can support.
type Detector interface {
	// IsInteractive reports whether prompting a human is appropriate at all
	IsInteractive() bool
	// IsTerminal reports whether stdout and stderr are attached to a TTY
	IsTerminal() bool
	// IsCIEnvironment reports whether the process runs under a CI system
	IsCIEnvironment() bool
	// HasGraphicalDisplay reports whether a graphical session is reachable
	HasGraphicalDisplay() bool
	// LookupHelper resolves an executable name to an absolute path
	LookupHelper(name string) (string, error)
}

// DefaultDetector implements Detector against the real host.
type DefaultDetector struct {
	options DetectorOptions
	getenv  func(string) string
}

// NewDetector creates a new detector with the given options
func NewDetector(options DetectorOptions) *DefaultDetector {
	return &DefaultDetector{
		options: options,
		getenv:  os.Getenv,
	}
}

// IsInteractive returns true if the current environment is interactive
func (d *DefaultDetector) IsInteractive() bool {
	// Priority 1: explicit overrides (highest priority)
	if d.options.ForceInteractive {
		return true
	}
	if d.options.ForceNonInteractive {
		return false
	}

	// Priority 2: CI environment detection
	if d.IsCIEnvironment() {
		return false
	}

	// Priority 3: a terminal or a graphical session makes prompting possible
	return d.IsTerminal() || d.HasGraphicalDisplay()
}

// IsTerminal checks if stdout and stderr are connected to a terminal
func (d *DefaultDetector) IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// IsCIEnvironment checks if the current environment is a CI/CD system
func (d *DefaultDetector) IsCIEnvironment() bool {
	for _, envVar := range ciEnvVars {
		if value := d.getenv(envVar); value != "" {
			// Special handling for CI variable - should be truthy
			if envVar == "CI" {
				return isCITruthy(value)
			}
			// For other CI variables, presence indicates CI environment
			return true
		}
	}

	return false
}

// HasGraphicalDisplay reports whether an X11 or Wayland session is reachable,
// which GUI prompt helpers (askpass dialogs, policy-kit agents) require.
func (d *DefaultDetector) HasGraphicalDisplay() bool {
	return d.getenv("DISPLAY") != "" || d.getenv("WAYLAND_DISPLAY") != ""
}

// LookupHelper resolves an executable name to an absolute path using PATH
func (d *DefaultDetector) LookupHelper(name string) (string, error) {
	return exec.LookPath(name)
}

// isCITruthy checks if a CI environment variable value should be considered "true"
// CI=false or CI=0 should not be considered a CI environment
func isCITruthy(value string) bool {
	lower := strings.ToLower(strings.TrimSpace(value))
	return lower != "false" && lower != "0" && lower != "no"
}
