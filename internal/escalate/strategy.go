// Package escalate turns "run this command with privilege" into an ordered
// walk over escalation strategies: a cached non-interactive probe first, then
// interactive prompting through whatever the host offers, each strategy
// probed for availability at call time. Escalation outcomes are values on the
// execution result; the package never raises for "could not elevate".
package escalate

import (
	"context"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/execute"
)

// Strategy labels recorded in attempt lists and audit logs.
const (
	StrategyCachedPrivileged    = "cached_privileged"
	StrategyInteractivePrompt   = "interactive_prompt"
	StrategyAlternatePromptTool = "alternate_prompt_tool"
	StrategyPolicyKitPrompt     = "policykit_prompt"
	StrategyDirectUnprivileged  = "direct_unprivileged"
	StrategyDirectPrivileged    = "direct_privileged"
)

// Runner executes a prepared command line. *execute.Executor satisfies it;
// tests substitute a scripted fake.
type Runner interface {
	Run(ctx context.Context, argv []string, opts execute.RunOptions) (*execute.Result, error)
	RunStreaming(ctx context.Context, argv []string, onLine func(string), opts execute.RunOptions) (*execute.Result, error)
}

// verdict is a strategy's reading of its own outcome. Success and denial are
// final; a command failure is final too (the escalation worked, the command
// did not); only a mechanism failure falls through to the next strategy.
type verdict int

const (
	verdictSuccess verdict = iota
	verdictDenied
	verdictCommandFailure
	verdictMechanismFailure
)

func (v verdict) String() string {
	switch v {
	case verdictSuccess:
		return "success"
	case verdictDenied:
		return "denied"
	case verdictCommandFailure:
		return "command_failure"
	default:
		return "mechanism_failure"
	}
}

// runRequest carries the per-call parameters strategies need to build their
// execution options.
type runRequest struct {
	sessionKey                string
	timeout                   *int
	outputLimit               common.OutputLimit
	extraEnv                  map[string]string
	onLine                    func(string)
	allowUnprivilegedFallback bool
}

// strategy is one escalation mechanism. Available is consulted once per
// orchestrated call, immediately before Execute.
type strategy interface {
	Name() string
	Available(req runRequest) (bool, string)
	Execute(ctx context.Context, argv []string, req runRequest) (*execute.Result, verdict, error)
}

// runCommand dispatches to the streaming or blocking runner call depending on
// whether the caller wants lines.
func runCommand(ctx context.Context, runner Runner, argv []string, req runRequest, opts execute.RunOptions) (*execute.Result, error) {
	if req.onLine != nil {
		return runner.RunStreaming(ctx, argv, req.onLine, opts)
	}
	return runner.Run(ctx, argv, opts)
}

// promptSessionVars names the environment variables a graphical prompt helper
// needs to reach the user's session. Values pass the usual admission rules in
// execute.BuildEnvironment.
var promptSessionVars = []string{
	"DISPLAY",
	"WAYLAND_DISPLAY",
	"XAUTHORITY",
	"DBUS_SESSION_BUS_ADDRESS",
	"XDG_RUNTIME_DIR",
}

// promptEnv collects the session variables present in the caller's
// environment so a dialog can appear on the user's display. Callers overlay
// their own extras and any strategy-specific variables on top.
func promptEnv(getenv func(string) string) map[string]string {
	env := make(map[string]string, len(promptSessionVars))
	for _, name := range promptSessionVars {
		if value := getenv(name); value != "" {
			env[name] = value
		}
	}
	return env
}

// promptRunTimeout stretches the caller's command timeout by the prompt
// budget, since a human answers the credential dialog before the command even
// starts. An explicit zero (unlimited) stays unlimited.
func promptRunTimeout(timeout *int, promptTimeout int) *int {
	if timeout != nil {
		if *timeout == 0 {
			return timeout
		}
		return common.IntPtr(*timeout + promptTimeout)
	}
	return common.IntPtr(common.DefaultTimeout + promptTimeout)
}
