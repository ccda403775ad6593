// Package terminate shuts down child processes that may be running with
// elevated privileges. Termination escalates in stages: a direct graceful
// signal, a privileged signal when permission is denied, and a forceful kill
// when the process ignores the grace given to it. Outcomes are reported as
// values; a vanished process counts as success.
package terminate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"syscall"
	"time"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/escalate"
	"github.com/privgate/privgate/internal/execute"
)

// PidMax mirrors the kernel's largest possible pid on 64-bit hosts. Anything
// above it is a garbage value, not a process.
const PidMax = 4194304

// Attempt labels, in the order they can occur.
const (
	AttemptSignalTerm          = "signal_term"
	AttemptSignalTermEscalated = "signal_term_escalated"
	AttemptSignalKill          = "signal_kill"
	AttemptSignalKillEscalated = "signal_kill_escalated"
)

// Defaults for the graceful-exit wait.
const (
	DefaultWaitTimeout   = 3 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultKillPath      = "/bin/kill"
	DefaultSignalTimeout = 10 // seconds, for one escalated signal delivery
)

// Elevator delivers a privileged signal when the direct one is denied.
// *escalate.Orchestrator satisfies it.
type Elevator interface {
	Elevate(ctx context.Context, argv []string, opts escalate.Options) (*execute.Result, error)
}

// Result is the immutable outcome of one termination request.
type Result struct {
	// Success reports the process is gone, or was never there, or the user
	// declined an escalated termination (a soft success: the process will
	// exit on its own).
	Success bool
	// Escalated reports that privileged signal delivery was used.
	Escalated bool
	// Attempts lists every signal attempt in order, regardless of outcome.
	Attempts []string
	// Err carries a short diagnostic when Success is false.
	Err string
}

// Config holds termination tuning.
type Config struct {
	// WaitTimeout bounds the graceful-exit wait after TERM.
	WaitTimeout time.Duration
	// PollInterval is how often the wait loop re-checks the process.
	PollInterval time.Duration
	// KillPath is the signal-delivery binary used for escalated sends.
	KillPath string
	// SignalTimeout bounds one escalated signal delivery, in seconds.
	SignalTimeout int
}

// Controller runs the termination sequence. Stateless apart from wiring and
// safe for concurrent use.
type Controller struct {
	config   Config
	elevator Elevator
	logger   *slog.Logger
	kill     func(pid int, sig syscall.Signal) error
}

// NewController creates a termination controller. A nil elevator disables
// escalated delivery (denied signals become hard failures); zero config
// fields take their defaults.
func NewController(elevator Elevator, config Config, logger *slog.Logger) *Controller {
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = DefaultWaitTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.KillPath == "" {
		config.KillPath = DefaultKillPath
	}
	if config.SignalTimeout <= 0 {
		config.SignalTimeout = DefaultSignalTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		config:   config,
		elevator: elevator,
		logger:   logger,
		kill:     syscall.Kill,
	}
}

// Terminate runs the termination sequence against pid: graceful signal,
// escalated delivery if the direct one is denied and escalateIfDenied is set,
// bounded wait, then a forceful kill. Calling it on a pid that no longer
// exists succeeds without side effects.
func (c *Controller) Terminate(ctx context.Context, pid int, escalateIfDenied bool) Result {
	if pid <= 0 || pid > PidMax {
		return Result{Err: fmt.Sprintf("pid %d out of range (1..%d)", pid, PidMax)}
	}
	if !c.processExists(pid) {
		return Result{Success: true}
	}

	res := Result{}
	err := c.kill(pid, syscall.SIGTERM)
	switch {
	case err == nil:
		res.Attempts = append(res.Attempts, AttemptSignalTerm)
		c.logger.Info("Sent graceful termination signal", "pid", pid)
		if c.waitForExit(ctx, pid) {
			res.Success = true
			return res
		}
		return c.forceKillDirect(pid, res)

	case errors.Is(err, syscall.ESRCH):
		res.Attempts = append(res.Attempts, AttemptSignalTerm)
		res.Success = true
		return res

	case errors.Is(err, syscall.EPERM):
		res.Attempts = append(res.Attempts, AttemptSignalTerm)
		if !escalateIfDenied || c.elevator == nil {
			res.Err = fmt.Sprintf("permission denied signalling pid %d", pid)
			return res
		}
		c.logger.Info("Direct signal denied, escalating termination", "pid", pid)
		return c.escalatedSequence(ctx, pid, res)

	default:
		res.Attempts = append(res.Attempts, AttemptSignalTerm)
		res.Err = fmt.Sprintf("signalling pid %d: %v", pid, err)
		return res
	}
}

// forceKillDirect sends SIGKILL after the graceful wait lapsed. No wait
// follows: SIGKILL cannot be ignored.
func (c *Controller) forceKillDirect(pid int, res Result) Result {
	res.Attempts = append(res.Attempts, AttemptSignalKill)
	c.logger.Warn("Process survived graceful wait, sending kill", "pid", pid)

	err := c.kill(pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		res.Success = true
		return res
	}
	res.Err = fmt.Sprintf("kill signal for pid %d: %v", pid, err)
	return res
}

// escalatedSequence delivers TERM and, if needed, KILL through the privilege
// escalation orchestrator. A user-declined escalation is a soft success.
func (c *Controller) escalatedSequence(ctx context.Context, pid int, res Result) Result {
	res.Escalated = true

	res.Attempts = append(res.Attempts, AttemptSignalTermEscalated)
	outcome, diag := c.escalatedSignal(ctx, pid, "-TERM")
	switch outcome {
	case escalationDeclined:
		c.logger.Info("Escalated termination declined by user, treating as soft success", "pid", pid)
		res.Success = true
		return res
	case escalationFailed:
		res.Err = diag
		return res
	}

	if c.waitForExit(ctx, pid) {
		res.Success = true
		return res
	}

	res.Attempts = append(res.Attempts, AttemptSignalKillEscalated)
	c.logger.Warn("Process survived escalated graceful wait, sending escalated kill", "pid", pid)
	outcome, diag = c.escalatedSignal(ctx, pid, "-KILL")
	switch outcome {
	case escalationDeclined:
		res.Success = true
		return res
	case escalationFailed:
		res.Err = diag
		return res
	}

	res.Success = true
	return res
}

type escalationOutcome int

const (
	escalationDelivered escalationOutcome = iota
	escalationDeclined
	escalationFailed
)

// escalatedSignal routes one signal through the orchestrator as a privileged
// kill command.
func (c *Controller) escalatedSignal(ctx context.Context, pid int, sig string) (escalationOutcome, string) {
	argv := []string{c.config.KillPath, sig, strconv.Itoa(pid)}
	res, err := c.elevator.Elevate(ctx, argv, escalate.Options{
		Timeout: common.IntPtr(c.config.SignalTimeout),
	})
	if err != nil {
		return escalationFailed, fmt.Sprintf("escalated %s for pid %d: %v", sig, pid, err)
	}
	switch {
	case res.Succeeded():
		return escalationDelivered, ""
	case res.Status == execute.StatusAuthorizationDenied:
		return escalationDeclined, ""
	default:
		return escalationFailed, fmt.Sprintf("escalated %s for pid %d: %s", sig, pid, res.Diagnostic)
	}
}

// TerminateChild satisfies execute.ChildTerminator so the executor can hand
// timed-out children to the full termination sequence.
func (c *Controller) TerminateChild(pid int) error {
	res := c.Terminate(context.Background(), pid, true)
	if !res.Success {
		return errors.New(res.Err)
	}
	return nil
}

// processExists reports whether pid is alive. EPERM means alive but owned by
// someone else.
func (c *Controller) processExists(pid int) bool {
	err := c.kill(pid, 0)
	if err == nil {
		return true
	}
	return !errors.Is(err, syscall.ESRCH)
}

// waitForExit polls until the process is gone, the wait budget lapses, or the
// caller's context ends.
func (c *Controller) waitForExit(ctx context.Context, pid int) bool {
	deadline := time.Now().Add(c.config.WaitTimeout)
	for time.Now().Before(deadline) {
		if !c.processExists(pid) {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		time.Sleep(c.config.PollInterval)
	}
	return !c.processExists(pid)
}
