package privgate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/config"
	"github.com/privgate/privgate/internal/escalate"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/grace"
	"github.com/privgate/privgate/internal/hostenv"
	"github.com/privgate/privgate/internal/logging"
	"github.com/privgate/privgate/internal/session"
	"github.com/privgate/privgate/internal/terminate"
	"github.com/privgate/privgate/internal/validate"
)

// ElevateOptions carries per-call elevation parameters.
type ElevateOptions struct {
	// SessionKey scopes the authentication session; empty means the global
	// session.
	SessionKey string
	// Timeout is the command timeout in seconds (nil = policy default,
	// 0 = unlimited).
	Timeout *int
	// OutputLimit overrides the capture limit for this call.
	OutputLimit common.OutputLimit
	// ExtraEnv is merged into the child environment, subject to the usual
	// admission rules.
	ExtraEnv map[string]string
	// AllowUnprivilegedFallback permits running without elevation when every
	// escalation mechanism is unavailable.
	AllowUnprivilegedFallback bool
	// Retry re-runs the escalation walk on transient failures.
	Retry escalate.RetryPolicy
}

// Manager is the subsystem facade: validation, escalation, session and
// grace-window bookkeeping, termination, and the audit trail behind one
// surface. Safe for concurrent use.
type Manager struct {
	logger       *slog.Logger
	audit        *logging.AuditLogger
	validator    *validate.Validator
	executor     *execute.Executor
	sessions     *session.Store
	orchestrator *escalate.Orchestrator
	gracePolicy  *grace.Policy
	terminator   *terminate.Controller

	mu      sync.Mutex
	windows map[string]*grace.Window
}

// markerHost reads grace-tuning inputs from the live host: the operator's
// high-security marker file and the 1-minute load average.
type markerHost struct {
	sys    *hostenv.SysInfo
	marker string
}

func (h *markerHost) HighSecurityMode() bool        { return h.sys.MarkerFilePresent(h.marker) }
func (h *markerHost) LoadAverage() (float64, error) { return h.sys.LoadAverage() }

// New creates a Manager with the given customizations; anything not supplied
// is built from the policy configuration (or its defaults).
func New(options ...Option) (*Manager, error) {
	opts := &managerOptions{}
	for _, option := range options {
		option(opts)
	}

	spec := opts.spec
	if spec == nil {
		spec = &config.Spec{}
	}
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}
	fs := opts.fs
	if fs == nil {
		fs = common.NewDefaultFileSystem()
	}
	detector := opts.detector
	if detector == nil {
		detector = hostenv.NewDetector(hostenv.DetectorOptions{})
	}
	sessions := opts.sessions
	if sessions == nil {
		sessions = session.NewStore(spec.SessionTTL())
	}
	validator := opts.validator
	if validator == nil {
		var err error
		validator, err = validate.NewValidatorWithFS(spec.ValidatorConfig(), fs)
		if err != nil {
			return nil, fmt.Errorf("failed to create command validator: %w", err)
		}
	}
	executor := opts.executor
	if executor == nil {
		executor = execute.NewExecutor(spec.ExecutorConfig())
	}
	auditLogger := opts.audit
	if auditLogger == nil {
		auditLogger = logging.NewAuditLogger(logger)
	}
	host := opts.host
	if host == nil {
		marker := spec.Grace.HighSecurityMarker
		if marker == "" {
			marker = hostenv.DefaultHighSecurityMarker
		}
		host = &markerHost{sys: hostenv.NewSysInfo(fs), marker: marker}
	}

	m := &Manager{
		logger:    logger,
		audit:     auditLogger,
		validator: validator,
		executor:  executor,
		sessions:  sessions,
		windows:   make(map[string]*grace.Window),
	}

	escalationConfig := spec.EscalationConfig()
	escalationConfig.WithinGrace = m.graceCovers
	m.orchestrator = escalate.NewOrchestratorWithFS(executor, sessions, detector, fs, escalationConfig, logger)
	m.gracePolicy = grace.NewPolicy(spec.GraceConfig(), host, logger)
	m.terminator = terminate.NewController(m.orchestrator, spec.TerminateConfig(), logger)

	// Children that outlive their timeout get the full termination sequence,
	// privileged delivery included.
	executor.SetChildTerminator(m.terminator)

	return m, nil
}

// Elevate validates argv and runs it with the least intrusive escalation the
// host supports. Denials and helper exhaustion come back as values on the
// Result; the error return is reserved for API misuse.
func (m *Manager) Elevate(ctx context.Context, argv []string, opts ElevateOptions) (*execute.Result, error) {
	return m.elevate(ctx, argv, nil, opts)
}

// ElevateStreaming is Elevate with each output line delivered through onLine
// as it is produced. The full capture still arrives on the Result.
func (m *Manager) ElevateStreaming(ctx context.Context, argv []string, onLine func(string), opts ElevateOptions) (*execute.Result, error) {
	if onLine == nil {
		return nil, execute.ErrNilCallback
	}
	return m.elevate(ctx, argv, onLine, opts)
}

func (m *Manager) elevate(ctx context.Context, argv []string, onLine func(string), opts ElevateOptions) (*execute.Result, error) {
	if len(argv) == 0 {
		return nil, execute.ErrEmptyCommand
	}

	operationID := newOperationID()

	cmd, verdict := m.validator.Validate(argv)
	if !verdict.Admitted {
		m.logger.Warn("Command rejected by validator",
			"operation_id", operationID,
			"program", argv[0],
			"reason", verdict.Reason)
		m.audit.LogSecurityEvent(ctx, "command_rejected", "high", verdict.Reason, map[string]any{
			"operation_id": operationID,
			"program":      argv[0],
		})
		return &execute.Result{
			ExitCode:   1,
			Status:     execute.StatusValidationRejected,
			Diagnostic: verdict.Reason,
		}, nil
	}

	res, err := m.orchestrator.Elevate(ctx, cmd.Argv(), escalate.Options{
		Timeout:                   opts.Timeout,
		SessionKey:                opts.SessionKey,
		OutputLimit:               opts.OutputLimit,
		ExtraEnv:                  opts.ExtraEnv,
		OnLine:                    onLine,
		AllowUnprivilegedFallback: opts.AllowUnprivilegedFallback,
		Retry:                     opts.Retry,
	})
	if err != nil {
		return nil, err
	}

	m.auditElevation(ctx, operationID, cmd, res)
	return res, nil
}

// auditElevation writes the audit records for one orchestrated call: every
// strategy attempt, then the overall outcome.
func (m *Manager) auditElevation(ctx context.Context, operationID string, cmd *validate.Command, res *execute.Result) {
	for _, attempt := range res.Attempts {
		m.audit.LogEscalationAttempt(ctx, operationID, attempt.Strategy,
			helperForStrategy(attempt.Strategy), attempt.ExitCode == 0,
			firstLine(attempt.Stderr), attempt.Duration)
	}

	switch res.Status {
	case execute.StatusAuthorizationDenied:
		m.audit.LogSecurityEvent(ctx, "escalation_denied", "medium", res.Diagnostic, map[string]any{
			"operation_id": operationID,
			"program":      cmd.ResolvedPath(),
		})
	case execute.StatusHelperUnavailable:
		m.audit.LogSecurityEvent(ctx, "escalation_unavailable", "medium", res.Diagnostic, map[string]any{
			"operation_id": operationID,
			"program":      cmd.ResolvedPath(),
		})
	default:
		strategy := ""
		if n := len(res.Attempts); n > 0 {
			strategy = res.Attempts[n-1].Strategy
		}
		m.audit.LogPrivilegedExecution(ctx, operationID, cmd.ResolvedPath(), cmd.Args(),
			strategy, res.ExitCode, res.Stderr, res.Duration)
	}
}

// Terminate runs the safe termination sequence against pid, escalating signal
// delivery when the direct send is denied.
func (m *Manager) Terminate(ctx context.Context, pid int) terminate.Result {
	start := time.Now()
	res := m.terminator.Terminate(ctx, pid, true)
	m.audit.LogTermination(ctx, pid, res.Success, res.Escalated, res.Attempts, time.Since(start))
	return res
}

// OpenGraceWindow opens a tuned grace window for operationID. An existing
// window under the same ID is closed and replaced; the fresh authentication
// that preceded this call supersedes it.
func (m *Manager) OpenGraceWindow(operationID string, base time.Duration) (*grace.Window, error) {
	window, err := m.gracePolicy.Open(operationID, base)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	previous := m.windows[operationID]
	m.windows[operationID] = window
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return window, nil
}

// CloseGraceWindow closes the window registered under operationID. Closing an
// unknown or already-closed ID is a no-op.
func (m *Manager) CloseGraceWindow(operationID string) {
	m.mu.Lock()
	window, ok := m.windows[operationID]
	delete(m.windows, operationID)
	m.mu.Unlock()

	if ok {
		window.Close()
	}
}

// Sessions exposes the session store for diagnostics (the CLI status view).
func (m *Manager) Sessions() *session.Store {
	return m.sessions
}

// Close releases the manager's state: every grace window is closed and every
// authentication session ended. The manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	windows := m.windows
	m.windows = make(map[string]*grace.Window)
	m.mu.Unlock()

	for _, window := range windows {
		window.Close()
	}
	for _, info := range m.sessions.Snapshot() {
		m.sessions.End(info.Key)
	}
	m.logger.Info("Privilege manager closed")
}

// graceCovers reports whether an open grace window covers the given session
// key. A query past the window's initial span consumes one extension, which
// is exactly the accounting the grace policy wants for sub-operations.
func (m *Manager) graceCovers(key string) bool {
	m.mu.Lock()
	window, ok := m.windows[key]
	m.mu.Unlock()

	if !ok {
		return false
	}
	return window.IsWithin()
}

// newOperationID returns a sortable identifier correlating the audit records
// of one orchestrated call.
func newOperationID() string {
	return ulid.Make().String()
}

// helperForStrategy names the helper binary a strategy drives, for audit
// records.
func helperForStrategy(name string) string {
	switch name {
	case escalate.StrategyCachedPrivileged, escalate.StrategyInteractivePrompt, escalate.StrategyAlternatePromptTool:
		return "sudo"
	case escalate.StrategyPolicyKitPrompt:
		return "pkexec"
	default:
		return ""
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
