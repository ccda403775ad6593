// Package execute runs admitted commands in a controlled manner: the child
// environment is replaced wholesale, every run carries a hard timeout, output
// is captured up to a size limit, and a process that is already root is
// refused unless the caller explicitly permits it. Callers are expected to
// admit commands through the validate package first; this package only
// re-checks structure, not policy.
package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/privgate/privgate/internal/common"
)

// Error definitions. These mark API misuse; execution outcomes, including
// failures, are values on Result.
var (
	ErrEmptyCommand          = errors.New("command cannot be empty")
	ErrInvalidPath           = errors.New("invalid command path")
	ErrNilCallback           = errors.New("line callback cannot be nil")
	ErrRefusingRootExecution = errors.New("refusing to run as root: process already has superuser identity and AllowPrivileged is not set")
)

// childWaitDelay bounds how long Wait blocks on a cancelled child whose
// termination sequence did not get it to exit.
const childWaitDelay = 10 * time.Second

// ChildTerminator routes a cancelled child's shutdown through the
// termination escalation sequence instead of a bare kill.
type ChildTerminator interface {
	TerminateChild(pid int) error
}

// Config holds policy-level executor settings. Per-call options override
// these through the usual resolution hierarchy.
type Config struct {
	// PolicyTimeout is the deployment's execution timeout in seconds
	// (nil = built-in default, 0 = unlimited).
	PolicyTimeout *int
	// OutputLimit caps captured stdout/stderr per stream.
	OutputLimit common.OutputLimit
	// ExtraEnv is merged into every child environment, subject to the
	// admission rules in BuildEnvironment.
	ExtraEnv map[string]string
}

// RunOptions carries per-call execution options.
type RunOptions struct {
	// Timeout is the per-call timeout in seconds (nil = inherit,
	// 0 = unlimited).
	Timeout *int
	// ProfileTimeout is the admitted tool's own timeout (scans run far
	// longer than control commands). Consulted when Timeout is nil.
	ProfileTimeout *int
	// AllowPrivileged permits execution while the calling process already
	// has superuser identity.
	AllowPrivileged bool
	// OutputLimit overrides the policy capture limit for this call.
	OutputLimit common.OutputLimit
	// ExtraEnv is merged after the policy extras; same admission rules.
	ExtraEnv map[string]string
	// Stdin, when non-nil, is connected to the child's standard input.
	// Escalation helpers that read a credential from stdin use this; the
	// content is never captured or logged.
	Stdin io.Reader
}

// Executor runs commands with a sanitized environment and bounded capture.
// It is stateless apart from wiring and safe for concurrent use.
type Executor struct {
	config     Config
	geteuid    func() int
	terminator ChildTerminator
}

// NewExecutor creates an executor with the given policy configuration.
func NewExecutor(config Config) *Executor {
	return &Executor{
		config:  config,
		geteuid: os.Geteuid,
	}
}

// SetChildTerminator wires the termination sequence used when a streaming
// execution is cancelled. Call during wiring, before the first Run.
func (e *Executor) SetChildTerminator(t ChildTerminator) {
	e.terminator = t
}

// Run executes argv to completion and returns the captured outcome.
// The returned error marks API misuse only; execution failures, timeouts,
// and cancellations are reported through Result.Status.
func (e *Executor) Run(ctx context.Context, argv []string, opts RunOptions) (*Result, error) {
	return e.run(ctx, argv, opts, nil)
}

// RunStreaming executes argv, delivering each output line to onLine as it is
// produced while still capturing the full (capped) output and enforcing the
// overall timeout. Lines from stdout and stderr are delivered serially.
func (e *Executor) RunStreaming(ctx context.Context, argv []string, onLine func(string), opts RunOptions) (*Result, error) {
	if onLine == nil {
		return nil, ErrNilCallback
	}
	return e.run(ctx, argv, opts, onLine)
}

// validateArgv re-checks command structure. Policy admission happened in the
// validate package; this guards against executor misuse from internal code.
func validateArgv(argv []string) error {
	if len(argv) == 0 || argv[0] == "" {
		return ErrEmptyCommand
	}
	if !filepath.IsAbs(argv[0]) {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, argv[0])
	}
	if filepath.Clean(argv[0]) != argv[0] {
		return fmt.Errorf("%w: %q contains relative components", ErrInvalidPath, argv[0])
	}
	return nil
}

func (e *Executor) run(parent context.Context, argv []string, opts RunOptions, onLine func(string)) (*Result, error) {
	if err := validateArgv(argv); err != nil {
		return nil, err
	}
	if e.geteuid() == 0 && !opts.AllowPrivileged {
		return nil, ErrRefusingRootExecution
	}

	seconds := common.ResolveTimeout(opts.Timeout, opts.ProfileTimeout, e.config.PolicyTimeout)
	runCtx := parent
	if !common.IsUnlimitedTimeout(seconds) {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(parent, common.TimeoutDuration(seconds))
		defer cancel()
	}

	// #nosec G204 -- argv passed policy validation before reaching here
	execCmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	execCmd.Env = BuildEnvironment(e.config.ExtraEnv, opts.ExtraEnv)
	execCmd.Stdin = opts.Stdin

	var emit func(string)
	if onLine != nil {
		var emitMu sync.Mutex
		emit = func(line string) {
			emitMu.Lock()
			defer emitMu.Unlock()
			onLine(line)
		}
	}

	limit := common.ResolveOutputLimit(opts.OutputLimit, e.config.OutputLimit)
	stdout := newOutputWrapper(limit, emit)
	stderr := newOutputWrapper(limit, emit)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	// External cancellation goes through the termination sequence so a
	// privileged child gets TERM before KILL; our own timeout kills
	// directly.
	execCmd.Cancel = func() error {
		if e.terminator != nil && parent.Err() != nil && execCmd.Process != nil {
			return e.terminator.TerminateChild(execCmd.Process.Pid)
		}
		if execCmd.Process != nil {
			return execCmd.Process.Kill()
		}
		return nil
	}
	execCmd.WaitDelay = childWaitDelay

	start := time.Now()
	runErr := execCmd.Run()
	duration := time.Since(start)

	stdout.flush()
	stderr.flush()

	stdoutText, stdoutTruncated := stdout.contents()
	stderrText, stderrTruncated := stderr.contents()

	result := &Result{
		Stdout:    stdoutText,
		Stderr:    stderrText,
		Truncated: stdoutTruncated || stderrTruncated,
		Duration:  duration,
	}
	if execCmd.ProcessState != nil {
		result.ExitCode = execCmd.ProcessState.ExitCode()
	} else {
		result.ExitCode = ExitCodeUnknown
	}

	switch {
	case runErr == nil:
		result.Status = StatusSucceeded
	case errors.Is(parent.Err(), context.Canceled):
		result.Status = StatusCancelled
		result.Diagnostic = "execution cancelled by caller"
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(parent.Err(), context.DeadlineExceeded):
		result.Status = StatusTimeout
		result.Diagnostic = fmt.Sprintf("timed out after %ds", seconds)
	default:
		result.Status = StatusExecutionFailed
		result.Diagnostic = runErr.Error()
	}

	return result, nil
}

// outputWrapper captures one output stream up to a byte limit and, when an
// emit function is set, delivers completed lines through it.
type outputWrapper struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int64
	unlimited bool
	truncated bool
	emit      func(string)
	remainder bytes.Buffer
}

func newOutputWrapper(limit common.OutputLimit, emit func(string)) *outputWrapper {
	w := &outputWrapper{emit: emit}
	if limit.IsUnlimited() {
		w.unlimited = true
	} else {
		w.limit = limit.Value()
	}
	return w
}

// Write never returns an error: a full capture buffer truncates instead of
// killing the child mid-run.
func (w *outputWrapper) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.unlimited:
		w.buf.Write(p)
	case int64(w.buf.Len()) < w.limit:
		room := w.limit - int64(w.buf.Len())
		if int64(len(p)) <= room {
			w.buf.Write(p)
		} else {
			w.buf.Write(p[:room])
			w.truncated = true
		}
	case len(p) > 0:
		w.truncated = true
	}

	if w.emit != nil {
		w.remainder.Write(p)
		for {
			line, err := w.remainder.ReadString('\n')
			if err != nil {
				// Incomplete line; keep it for the next write.
				w.remainder.WriteString(line)
				break
			}
			w.emit(strings.TrimRight(line, "\r\n"))
		}
	}

	return len(p), nil
}

// flush emits any trailing output that did not end in a newline.
func (w *outputWrapper) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.emit != nil && w.remainder.Len() > 0 {
		w.emit(strings.TrimRight(w.remainder.String(), "\r\n"))
		w.remainder.Reset()
	}
}

func (w *outputWrapper) contents() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String(), w.truncated
}
