package execute

import "time"

// ExitCodeUnknown is reported when the child produced no process state
// (start failure, or killed before exec).
const ExitCodeUnknown = -1

// Status classifies how an elevation or execution ended. Every outcome is a
// value on the Result; the subsystem never panics or exits the host process
// for a failed command.
type Status string

const (
	// StatusSucceeded means the command ran and exited zero.
	StatusSucceeded Status = "succeeded"
	// StatusExecutionFailed means the command ran and exited non-zero, or
	// could not be started.
	StatusExecutionFailed Status = "execution_failed"
	// StatusTimeout means the supplied timeout elapsed and the child was
	// killed. Distinct from a generic non-zero exit.
	StatusTimeout Status = "timeout"
	// StatusCancelled means the caller's context was cancelled while the
	// child ran. Distinct from StatusTimeout.
	StatusCancelled Status = "cancelled"
	// StatusValidationRejected means the command never reached execution.
	StatusValidationRejected Status = "validation_rejected"
	// StatusAuthorizationDenied means the user declined or the OS refused
	// the escalation.
	StatusAuthorizationDenied Status = "authorization_denied"
	// StatusHelperUnavailable means no escalation mechanism could be found
	// on this host.
	StatusHelperUnavailable Status = "helper_unavailable"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Retryable reports whether a single same-call retry is permitted for this
// status. Timeouts and execution failures may be transient (network-backed
// update commands); authorization denials and unsupported hosts never are.
func (s Status) Retryable() bool {
	return s == StatusTimeout || s == StatusExecutionFailed
}

// Attempt records one escalation strategy try for diagnostics and audit.
type Attempt struct {
	Strategy string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Result contains the outcome of a command execution or an orchestrated
// elevation. Denials and helper exhaustion are represented here as synthetic
// results, never as Go errors.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Status   Status
	Duration time.Duration

	// Truncated is set when captured output hit the configured size limit.
	Truncated bool

	// Diagnostic is a short, non-sensitive description of a failure. Empty
	// on success.
	Diagnostic string

	// Attempts lists the escalation strategies tried for this call, in
	// order, when the result came from an orchestrated elevation.
	Attempts []Attempt
}

// Succeeded reports whether the command ran to completion with exit code 0.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}
