package privgate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/escalate"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/grace"
	"github.com/privgate/privgate/internal/session"
	"github.com/privgate/privgate/internal/terminate"
)

const scanTool = "/usr/bin/rkhunter"

// fakeDetector reports a scripted host environment.
type fakeDetector struct {
	interactive bool
	display     bool
	helpers     map[string]string
}

func (d *fakeDetector) IsInteractive() bool       { return d.interactive }
func (d *fakeDetector) IsTerminal() bool          { return d.interactive }
func (d *fakeDetector) IsCIEnvironment() bool     { return false }
func (d *fakeDetector) HasGraphicalDisplay() bool { return d.display }

func (d *fakeDetector) LookupHelper(name string) (string, error) {
	if path, ok := d.helpers[name]; ok {
		return path, nil
	}
	return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
}

func desktopDetector() *fakeDetector {
	return &fakeDetector{
		interactive: true,
		display:     true,
		helpers: map[string]string{
			"sudo":        "/usr/bin/sudo",
			"ssh-askpass": "/usr/bin/ssh-askpass",
			"zenity":      "/usr/bin/zenity",
			"kdialog":     "/usr/bin/kdialog",
			"pkexec":      "/usr/bin/pkexec",
		},
	}
}

// fakeHost reports scripted grace-tuning inputs.
type fakeHost struct {
	highSecurity bool
	load         float64
}

func (h *fakeHost) HighSecurityMode() bool        { return h.highSecurity }
func (h *fakeHost) LoadAverage() (float64, error) { return h.load, nil }

type runnerCall struct {
	argv   []string
	opts   execute.RunOptions
	stream bool
}

// fakeRunner records every call and answers through a scripted handler.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []runnerCall
	handle func(argv []string, opts execute.RunOptions) (*execute.Result, error)
}

func (r *fakeRunner) record(call runnerCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRunner) Run(_ context.Context, argv []string, opts execute.RunOptions) (*execute.Result, error) {
	r.record(runnerCall{argv: argv, opts: opts})
	return r.handle(argv, opts)
}

func (r *fakeRunner) RunStreaming(_ context.Context, argv []string, onLine func(string), opts execute.RunOptions) (*execute.Result, error) {
	r.record(runnerCall{argv: argv, opts: opts, stream: true})
	res, err := r.handle(argv, opts)
	if err == nil && onLine != nil && res.Stdout != "" {
		for _, line := range strings.Split(strings.TrimRight(res.Stdout, "\n"), "\n") {
			onLine(line)
		}
	}
	return res, err
}

func okResult(stdout string) *execute.Result {
	return &execute.Result{ExitCode: 0, Stdout: stdout, Status: execute.StatusSucceeded, Duration: 5 * time.Millisecond}
}

func failResult(exitCode int, stderr string) *execute.Result {
	return &execute.Result{ExitCode: exitCode, Stderr: stderr, Status: execute.StatusExecutionFailed, Duration: 5 * time.Millisecond}
}

func isProbe(argv []string) bool {
	return len(argv) == 3 && strings.HasSuffix(argv[0], "sudo") && argv[1] == "-n" && argv[2] == "-v"
}

// newTestManager builds a manager whose escalation walks a scripted runner
// instead of the real executor. The returned buffer collects every log and
// audit record the manager writes.
func newTestManager(t *testing.T, handle func(argv []string, opts execute.RunOptions) (*execute.Result, error)) (*Manager, *fakeRunner, *bytes.Buffer) {
	t.Helper()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	fs := common.NewMockFileSystem()
	detector := desktopDetector()
	runner := &fakeRunner{handle: handle}

	m, err := New(
		WithLogger(logger),
		WithFileSystem(fs),
		WithDetector(detector),
		WithHostState(&fakeHost{}),
	)
	require.NoError(t, err)

	escalationConfig := escalate.Config{
		WithinGrace: m.graceCovers,
		Geteuid:     func() int { return 1000 },
	}
	m.orchestrator = escalate.NewOrchestratorWithFS(runner, m.sessions, detector, fs, escalationConfig, logger)
	m.terminator = terminate.NewController(m.orchestrator, terminate.Config{
		WaitTimeout:  20 * time.Millisecond,
		PollInterval: time.Millisecond,
	}, logger)

	return m, runner, &logs
}

func TestNew_Defaults(t *testing.T) {
	m, err := New(
		WithFileSystem(common.NewMockFileSystem()),
		WithDetector(desktopDetector()),
		WithHostState(&fakeHost{}),
	)
	require.NoError(t, err)

	assert.NotNil(t, m.validator)
	assert.NotNil(t, m.executor)
	assert.NotNil(t, m.sessions)
	assert.NotNil(t, m.orchestrator)
	assert.NotNil(t, m.gracePolicy)
	assert.NotNil(t, m.terminator)
}

func TestElevate_EmptyCommand(t *testing.T) {
	m, _, _ := newTestManager(t, func([]string, execute.RunOptions) (*execute.Result, error) {
		t.Fatal("runner must not be reached")
		return nil, nil
	})

	res, err := m.Elevate(context.Background(), nil, ElevateOptions{})
	require.ErrorIs(t, err, execute.ErrEmptyCommand)
	assert.Nil(t, res)
}

func TestElevate_RejectsUnlistedBinary(t *testing.T) {
	m, runner, logs := newTestManager(t, func([]string, execute.RunOptions) (*execute.Result, error) {
		t.Fatal("rejected command must not reach the runner")
		return nil, nil
	})

	res, err := m.Elevate(context.Background(), []string{"/usr/bin/vim", "/etc/shadow"}, ElevateOptions{})
	require.NoError(t, err)

	assert.Equal(t, execute.StatusValidationRejected, res.Status)
	assert.Equal(t, 1, res.ExitCode)
	assert.NotEmpty(t, res.Diagnostic)
	assert.Empty(t, runner.calls)
	assert.Contains(t, logs.String(), "audit_type=security_event")
	assert.Contains(t, logs.String(), "event_type=command_rejected")
}

func TestElevate_RejectsInjectionAttempt(t *testing.T) {
	m, runner, _ := newTestManager(t, func([]string, execute.RunOptions) (*execute.Result, error) {
		t.Fatal("rejected command must not reach the runner")
		return nil, nil
	})

	res, err := m.Elevate(context.Background(), []string{scanTool, "--check; rm -rf /"}, ElevateOptions{})
	require.NoError(t, err)

	assert.Equal(t, execute.StatusValidationRejected, res.Status)
	assert.Empty(t, runner.calls)
}

func TestElevate_RunsValidatedCommand(t *testing.T) {
	m, runner, logs := newTestManager(t, func(argv []string, _ execute.RunOptions) (*execute.Result, error) {
		return okResult("clean"), nil
	})
	m.sessions.Start(session.SessionGlobal)

	res, err := m.Elevate(context.Background(), []string{scanTool, "--check"}, ElevateOptions{})
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	// Probe, then the real command under non-interactive sudo with the
	// resolved binary path.
	require.Len(t, runner.calls, 2)
	assert.True(t, isProbe(runner.calls[0].argv))
	assert.Equal(t, []string{"/usr/bin/sudo", "-n", "--", scanTool, "--check"}, runner.calls[1].argv)

	assert.Contains(t, logs.String(), "audit_type=escalation_attempt")
	assert.Contains(t, logs.String(), "audit_type=privileged_execution")
	assert.Contains(t, logs.String(), "operation_id=")
}

func TestElevate_DeniedWritesSecurityEvent(t *testing.T) {
	m, _, logs := newTestManager(t, func(argv []string, _ execute.RunOptions) (*execute.Result, error) {
		return failResult(1, "sudo: sorry, try again"), nil
	})

	res, err := m.Elevate(context.Background(), []string{scanTool, "--check"}, ElevateOptions{})
	require.NoError(t, err)

	assert.Equal(t, execute.StatusAuthorizationDenied, res.Status)
	assert.Contains(t, logs.String(), "event_type=escalation_denied")
}

func TestElevateStreaming_NilCallback(t *testing.T) {
	m, _, _ := newTestManager(t, func([]string, execute.RunOptions) (*execute.Result, error) {
		return okResult(""), nil
	})

	res, err := m.ElevateStreaming(context.Background(), []string{scanTool, "--check"}, nil, ElevateOptions{})
	require.ErrorIs(t, err, execute.ErrNilCallback)
	assert.Nil(t, res)
}

func TestElevateStreaming_DeliversLines(t *testing.T) {
	m, runner, _ := newTestManager(t, func(argv []string, _ execute.RunOptions) (*execute.Result, error) {
		if isProbe(argv) {
			return okResult(""), nil
		}
		return okResult("checking rootkits\nno warnings\n"), nil
	})
	m.sessions.Start(session.SessionGlobal)

	var lines []string
	res, err := m.ElevateStreaming(context.Background(), []string{scanTool, "--check"},
		func(line string) { lines = append(lines, line) }, ElevateOptions{})
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	assert.Equal(t, []string{"checking rootkits", "no warnings"}, lines)
	require.Len(t, runner.calls, 2)
	assert.False(t, runner.calls[0].stream)
	assert.True(t, runner.calls[1].stream)
}

func TestGraceWindowLifecycle(t *testing.T) {
	m, _, _ := newTestManager(t, func([]string, execute.RunOptions) (*execute.Result, error) {
		return okResult(""), nil
	})

	_, err := m.OpenGraceWindow("", time.Minute)
	require.ErrorIs(t, err, grace.ErrEmptyOperationID)

	window, err := m.OpenGraceWindow("disk_scan", 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, window)
	assert.True(t, m.graceCovers("disk_scan"))
	assert.False(t, m.graceCovers("other_op"))

	m.CloseGraceWindow("disk_scan")
	assert.False(t, m.graceCovers("disk_scan"))

	// Closing again is a no-op.
	m.CloseGraceWindow("disk_scan")
}

func TestOpenGraceWindow_ReplacesExisting(t *testing.T) {
	m, _, _ := newTestManager(t, func([]string, execute.RunOptions) (*execute.Result, error) {
		return okResult(""), nil
	})

	first, err := m.OpenGraceWindow("maintenance", time.Minute)
	require.NoError(t, err)
	second, err := m.OpenGraceWindow("maintenance", time.Minute)
	require.NoError(t, err)

	assert.False(t, first.IsWithin())
	assert.True(t, second.IsWithin())
}

func TestGraceWindowFeedsEscalation(t *testing.T) {
	m, runner, _ := newTestManager(t, func(argv []string, _ execute.RunOptions) (*execute.Result, error) {
		return okResult(""), nil
	})

	_, err := m.OpenGraceWindow("maintenance", 10*time.Minute)
	require.NoError(t, err)

	// No session entry: only the grace window lets this reach the cached
	// probe instead of prompting.
	res, err := m.Elevate(context.Background(), []string{scanTool, "--check"},
		ElevateOptions{SessionKey: "maintenance"})
	require.NoError(t, err)
	require.True(t, res.Succeeded())

	require.NotEmpty(t, runner.calls)
	assert.True(t, isProbe(runner.calls[0].argv))
}

func TestTerminate_WritesAuditRecord(t *testing.T) {
	m, _, logs := newTestManager(t, func(argv []string, _ execute.RunOptions) (*execute.Result, error) {
		return okResult(""), nil
	})

	res := m.Terminate(context.Background(), -1)
	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "out of range")
	assert.Contains(t, logs.String(), "audit_type=process_termination")
}

func TestClose_ReleasesState(t *testing.T) {
	m, _, _ := newTestManager(t, func([]string, execute.RunOptions) (*execute.Result, error) {
		return okResult(""), nil
	})

	m.sessions.Start("policy_install")
	_, err := m.OpenGraceWindow("disk_scan", time.Minute)
	require.NoError(t, err)

	m.Close()

	assert.Empty(t, m.sessions.Snapshot())
	assert.False(t, m.graceCovers("disk_scan"))
}

func TestHelperForStrategy(t *testing.T) {
	assert.Equal(t, "sudo", helperForStrategy(escalate.StrategyCachedPrivileged))
	assert.Equal(t, "sudo", helperForStrategy(escalate.StrategyInteractivePrompt))
	assert.Equal(t, "sudo", helperForStrategy(escalate.StrategyAlternatePromptTool))
	assert.Equal(t, "pkexec", helperForStrategy(escalate.StrategyPolicyKitPrompt))
	assert.Equal(t, "", helperForStrategy(escalate.StrategyDirectUnprivileged))
}
