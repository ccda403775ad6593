package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/hostenv"
	"github.com/privgate/privgate/internal/session"
)

// Default escalation timeouts in seconds.
const (
	// DefaultProbeTimeout bounds the non-interactive credential probe; sudo
	// answers instantly when credentials are not cached, so this only guards
	// against a wedged sudo.
	DefaultProbeTimeout = 30

	// DefaultPromptTimeout is how long a human gets to answer a credential
	// prompt before the attempt is abandoned.
	DefaultPromptTimeout = 60
)

// RetryPolicy controls re-running the whole strategy walk after a transient
// failure. Callers supply it for network-dependent commands (signature
// updates); authorization denials are never retried regardless.
type RetryPolicy struct {
	MaxRetries int
}

// Options carries per-call elevation parameters.
type Options struct {
	// Timeout is the command timeout in seconds (nil = executor default,
	// 0 = unlimited). Interactive strategies add their prompt budget on top.
	Timeout *int
	// SessionKey scopes the authentication session; empty means the global
	// session.
	SessionKey string
	// OutputLimit overrides the capture limit for this call.
	OutputLimit common.OutputLimit
	// ExtraEnv is merged into the child environment, subject to the usual
	// admission rules.
	ExtraEnv map[string]string
	// OnLine, when set, streams each output line as it is produced.
	OnLine func(string)
	// AllowUnprivilegedFallback permits running without elevation when every
	// escalation mechanism is unavailable.
	AllowUnprivilegedFallback bool
	// Retry re-runs the strategy walk on transient failures.
	Retry RetryPolicy
}

// Config holds orchestrator-level settings.
type Config struct {
	// ProbeTimeout bounds the cached-credential probe, in seconds.
	ProbeTimeout int
	// PromptTimeout is the human response budget for interactive prompts,
	// in seconds.
	PromptTimeout int
	// AskpassPath overrides askpass helper discovery.
	AskpassPath string
	// DisabledStrategies removes strategies from the walk by name.
	DisabledStrategies []string
	// WithinGrace reports whether an active grace window covers the given
	// session key, letting sub-operations reach the cached probe without a
	// store entry.
	WithinGrace func(key string) bool
	// Geteuid overrides effective-uid lookup (nil = os.Geteuid).
	Geteuid func() int
}

// Orchestrator walks the escalation strategies in priority order,
// short-circuiting on the first success or final outcome. Safe for
// concurrent use; the session store is the only shared state it touches.
type Orchestrator struct {
	strategies []strategy
	sessions   *session.Store
	runner     Runner
	logger     *slog.Logger
	geteuid    func() int
}

// NewOrchestrator wires the strategy chain: cached probe, askpass prompt,
// desktop dialog, policy-kit prompt, then the opt-in unprivileged fallback.
// Zero config fields take their defaults; a nil logger falls back to
// slog.Default().
func NewOrchestrator(runner Runner, sessions *session.Store, detector hostenv.Detector, config Config, logger *slog.Logger) *Orchestrator {
	return NewOrchestratorWithFS(runner, sessions, detector, common.NewDefaultFileSystem(), config, logger)
}

// NewOrchestratorWithFS is NewOrchestrator with an injected filesystem,
// used by askpass helper discovery.
func NewOrchestratorWithFS(runner Runner, sessions *session.Store, detector hostenv.Detector, fs common.FileSystem, config Config, logger *slog.Logger) *Orchestrator {
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}
	if config.PromptTimeout <= 0 {
		config.PromptTimeout = DefaultPromptTimeout
	}
	withinGrace := config.WithinGrace
	if withinGrace == nil {
		withinGrace = func(string) bool { return false }
	}
	geteuid := config.Geteuid
	if geteuid == nil {
		geteuid = os.Geteuid
	}
	if logger == nil {
		logger = slog.Default()
	}

	ordered := []strategy{
		newCachedPrivileged(runner, detector, sessions, withinGrace, config.ProbeTimeout),
		newInteractivePrompt(runner, detector, fs, config.AskpassPath, config.PromptTimeout, os.Getenv),
		newAlternatePromptTool(runner, detector, config.PromptTimeout, os.Getenv),
		newPolicyKitPrompt(runner, detector, config.PromptTimeout, os.Getenv),
		newDirectUnprivileged(runner),
	}

	disabled := common.SliceToSet(config.DisabledStrategies)
	strategies := make([]strategy, 0, len(ordered))
	for _, s := range ordered {
		if _, off := disabled[s.Name()]; off {
			logger.Info("Escalation strategy disabled by configuration", "strategy", s.Name())
			continue
		}
		strategies = append(strategies, s)
	}

	return &Orchestrator{
		strategies: strategies,
		sessions:   sessions,
		runner:     runner,
		logger:     logger,
		geteuid:    geteuid,
	}
}

// StrategyNames returns the enabled strategies in walk order.
func (o *Orchestrator) StrategyNames() []string {
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Elevate runs argv with privilege, walking the strategy chain. "Could not
// elevate" is a normal outcome reported through Result.Status; the returned
// error marks API misuse only.
func (o *Orchestrator) Elevate(ctx context.Context, argv []string, opts Options) (*execute.Result, error) {
	if len(argv) == 0 {
		return nil, execute.ErrEmptyCommand
	}
	key := opts.SessionKey
	if key == "" {
		key = session.SessionGlobal
	}

	result, err := o.elevateOnce(ctx, argv, key, opts)
	if err != nil {
		return nil, err
	}

	retries := opts.Retry.MaxRetries
	for retries > 0 && ctx.Err() == nil && !result.Succeeded() && result.Status.Retryable() {
		o.logger.Info("Retrying elevation after transient failure",
			"status", result.Status.String(),
			"retries_left", retries)
		prior := result.Attempts
		result, err = o.elevateOnce(ctx, argv, key, opts)
		if err != nil {
			return nil, err
		}
		result.Attempts = append(prior, result.Attempts...)
		retries--
	}
	return result, nil
}

// elevateOnce performs a single walk over the strategy chain.
func (o *Orchestrator) elevateOnce(ctx context.Context, argv []string, key string, opts Options) (*execute.Result, error) {
	req := runRequest{
		sessionKey:                key,
		timeout:                   opts.Timeout,
		outputLimit:               opts.OutputLimit,
		extraEnv:                  opts.ExtraEnv,
		onLine:                    opts.OnLine,
		allowUnprivilegedFallback: opts.AllowUnprivilegedFallback,
	}

	// Already privileged: nothing to escalate, run directly.
	if o.geteuid() == 0 {
		res, err := runCommand(ctx, o.runner, argv, req, execute.RunOptions{
			Timeout:         req.timeout,
			AllowPrivileged: true,
			OutputLimit:     req.outputLimit,
			ExtraEnv:        req.extraEnv,
		})
		if err != nil {
			return nil, err
		}
		res.Attempts = []execute.Attempt{newAttempt(StrategyDirectPrivileged, res)}
		return res, nil
	}

	var attempts []execute.Attempt
	var unavailable []string

	for _, s := range o.strategies {
		ok, reason := s.Available(req)
		if !ok {
			unavailable = append(unavailable, s.Name()+": "+reason)
			o.logger.Debug("Escalation strategy unavailable",
				"strategy", s.Name(),
				"reason", reason)
			continue
		}

		res, v, err := s.Execute(ctx, argv, req)
		if err != nil {
			unavailable = append(unavailable, s.Name()+": "+err.Error())
			o.logger.Warn("Escalation strategy errored",
				"strategy", s.Name(),
				"error", err)
			continue
		}

		attempts = append(attempts, newAttempt(s.Name(), res))
		o.logger.Info("Escalation strategy finished",
			"strategy", s.Name(),
			"verdict", v.String(),
			"exit_code", res.ExitCode,
			"status", res.Status.String())

		o.bookkeepSession(s.Name(), v, key)

		switch v {
		case verdictSuccess, verdictCommandFailure:
			res.Attempts = attempts
			return res, nil
		case verdictDenied:
			res.Attempts = attempts
			res.Status = execute.StatusAuthorizationDenied
			if res.Diagnostic == "" {
				res.Diagnostic = "authorization denied (" + s.Name() + ")"
			}
			return res, nil
		}
	}

	return o.exhaustedResult(attempts, unavailable), nil
}

// bookkeepSession applies the session lifecycle rules: an interactive success
// opens trust, a cached success renews it, and a failed probe closes it so a
// dead session is not retried.
func (o *Orchestrator) bookkeepSession(strategyName string, v verdict, key string) {
	switch {
	case strategyName == StrategyCachedPrivileged && v == verdictSuccess:
		o.sessions.Refresh(key)
	case strategyName == StrategyCachedPrivileged && (v == verdictMechanismFailure || v == verdictDenied):
		o.sessions.End(key)
		o.logger.Info("Authentication session invalidated after failed probe",
			"session_key", key)
	case v == verdictSuccess && interactiveStrategy(strategyName):
		o.sessions.Start(key)
	}
}

func interactiveStrategy(name string) bool {
	switch name {
	case StrategyInteractivePrompt, StrategyAlternatePromptTool, StrategyPolicyKitPrompt:
		return true
	}
	return false
}

// exhaustedResult synthesizes the terminal failure when no strategy produced
// a final outcome.
func (o *Orchestrator) exhaustedResult(attempts []execute.Attempt, unavailable []string) *execute.Result {
	var b strings.Builder
	b.WriteString("no escalation strategy succeeded")
	if len(attempts) > 0 {
		last := attempts[len(attempts)-1]
		fmt.Fprintf(&b, "; last attempt %s exited %d", last.Strategy, last.ExitCode)
	}
	if len(unavailable) > 0 {
		b.WriteString("; unavailable: ")
		b.WriteString(strings.Join(unavailable, ", "))
	}

	var total time.Duration
	for _, a := range attempts {
		total += a.Duration
	}

	o.logger.Warn("Privilege escalation exhausted",
		"attempts", len(attempts),
		"unavailable", len(unavailable))

	return &execute.Result{
		ExitCode:   1,
		Status:     execute.StatusHelperUnavailable,
		Duration:   total,
		Diagnostic: b.String(),
		Attempts:   attempts,
	}
}

func newAttempt(strategyName string, res *execute.Result) execute.Attempt {
	return execute.Attempt{
		Strategy: strategyName,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}
}
