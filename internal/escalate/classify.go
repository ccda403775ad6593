package escalate

import (
	"strings"

	"github.com/privgate/privgate/internal/execute"
)

// policyDenialMarkers appear on stderr when the OS policy refuses the user
// outright. Prompting again cannot help, so these end the strategy walk.
var policyDenialMarkers = []string{
	"is not in the sudoers file",
	"is not allowed to execute",
	"may not run sudo",
}

// promptDenialMarkers appear when an interactive prompt ran and the user
// declined it or failed authentication. Per the never-auto-retry rule these
// are final as well.
var promptDenialMarkers = []string{
	"incorrect password attempt",
	"sorry, try again",
	"no password was provided",
	"a password is required",
	"authentication failed",
	"not authorized",
	"request dismissed",
}

// helperFaultMarkers appear when sudo could not drive its askpass helper at
// all. The mechanism is broken, not the authorization, so the walk continues
// with the next strategy. Kept narrow: broader sudo "unable to run" messages
// also cover the target command and must stay command failures.
var helperFaultMarkers = []string{
	"no askpass program specified",
}

func containsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// isPolicyDenial reports whether the result carries an OS-level refusal.
func isPolicyDenial(res *execute.Result) bool {
	return containsAny(res.Stderr, policyDenialMarkers)
}

// isPromptDenial reports whether the result carries an interactive refusal.
func isPromptDenial(res *execute.Result) bool {
	return containsAny(res.Stderr, promptDenialMarkers)
}

// isHelperFault reports whether the prompt machinery itself failed.
func isHelperFault(res *execute.Result) bool {
	return containsAny(res.Stderr, helperFaultMarkers)
}

// classifyPromptRun reads the outcome of an interactive sudo run. Timeouts
// and cancellations pass through as command outcomes: once the prompt budget
// is folded into the run timeout there is no cheap way to tell a slow command
// from an unanswered dialog, and an honest timeout is retryable by policy.
func classifyPromptRun(res *execute.Result) verdict {
	switch res.Status {
	case execute.StatusSucceeded:
		return verdictSuccess
	case execute.StatusTimeout, execute.StatusCancelled:
		return verdictCommandFailure
	}
	if isHelperFault(res) {
		return verdictMechanismFailure
	}
	if isPolicyDenial(res) || isPromptDenial(res) {
		return verdictDenied
	}
	return verdictCommandFailure
}

// classifyProbe reads the outcome of a non-interactive credential probe.
// "password required" is the expected cold-cache answer and falls through to
// interactive prompting; an OS policy refusal is final.
func classifyProbe(res *execute.Result) verdict {
	switch res.Status {
	case execute.StatusSucceeded:
		return verdictSuccess
	case execute.StatusCancelled:
		return verdictCommandFailure
	}
	if isPolicyDenial(res) {
		return verdictDenied
	}
	return verdictMechanismFailure
}

// classifyNoninteractiveRun reads the outcome of the real command under
// sudo -n. The probe just validated the credential cache, so a non-zero exit
// here is normally the command's own; the rare cache expiry between probe and
// run shows up as the password-required message and falls through.
func classifyNoninteractiveRun(res *execute.Result) verdict {
	switch res.Status {
	case execute.StatusSucceeded:
		return verdictSuccess
	case execute.StatusTimeout, execute.StatusCancelled:
		return verdictCommandFailure
	}
	if isPolicyDenial(res) {
		return verdictDenied
	}
	if containsAny(res.Stderr, []string{"a password is required"}) {
		return verdictMechanismFailure
	}
	return verdictCommandFailure
}

// pkexec reserves these exit codes for authorization outcomes; the wrapped
// scanners exit with small codes well below them.
const (
	pkexecExitDismissed     = 126
	pkexecExitNotAuthorized = 127
)

// classifyPolicyKitRun reads the outcome of a pkexec run.
func classifyPolicyKitRun(res *execute.Result) verdict {
	switch res.Status {
	case execute.StatusSucceeded:
		return verdictSuccess
	case execute.StatusTimeout, execute.StatusCancelled:
		return verdictCommandFailure
	}
	if res.ExitCode == pkexecExitDismissed || res.ExitCode == pkexecExitNotAuthorized {
		return verdictDenied
	}
	if isPolicyDenial(res) || isPromptDenial(res) {
		return verdictDenied
	}
	return verdictCommandFailure
}
