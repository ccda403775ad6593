package terminate

import (
	"context"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privgate/privgate/internal/escalate"
	"github.com/privgate/privgate/internal/execute"
)

const testPid = 4242

// fakeProcess stands in for a child process and answers signal delivery.
type fakeProcess struct {
	mu            sync.Mutex
	alive         bool
	owned         bool
	dieOnTerm     bool
	dieOnKill     bool
	dieAfterPolls int
	polls         int
	signals       []syscall.Signal
}

func (p *fakeProcess) kill(_ int, sig syscall.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sig != 0 {
		p.signals = append(p.signals, sig)
	}
	if !p.alive {
		return syscall.ESRCH
	}
	if sig == 0 {
		p.polls++
		if p.dieAfterPolls > 0 && p.polls >= p.dieAfterPolls {
			p.alive = false
		}
		return nil
	}
	if !p.owned {
		return syscall.EPERM
	}
	switch sig {
	case syscall.SIGTERM:
		if p.dieOnTerm {
			p.alive = false
		}
	case syscall.SIGKILL:
		if p.dieOnKill {
			p.alive = false
		}
	}
	return nil
}

func (p *fakeProcess) die() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
}

func (p *fakeProcess) isAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakeProcess) sentSignals() []syscall.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]syscall.Signal, len(p.signals))
	copy(out, p.signals)
	return out
}

type elevateCall struct {
	argv []string
	opts escalate.Options
}

// fakeElevator records privileged signal requests and answers through a
// scripted handler.
type fakeElevator struct {
	mu     sync.Mutex
	calls  []elevateCall
	handle func(argv []string) (*execute.Result, error)
}

func (e *fakeElevator) Elevate(_ context.Context, argv []string, opts escalate.Options) (*execute.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, elevateCall{argv: argv, opts: opts})
	e.mu.Unlock()
	return e.handle(argv)
}

func (e *fakeElevator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func deliveredResult() *execute.Result {
	return &execute.Result{ExitCode: 0, Status: execute.StatusSucceeded, Duration: 5 * time.Millisecond}
}

func declinedResult() *execute.Result {
	return &execute.Result{ExitCode: 1, Status: execute.StatusAuthorizationDenied, Diagnostic: "authorization denied (interactive_prompt)"}
}

func testConfig() Config {
	return Config{
		WaitTimeout:   20 * time.Millisecond,
		PollInterval:  time.Millisecond,
		KillPath:      "/bin/kill",
		SignalTimeout: 5,
	}
}

func newTestController(proc *fakeProcess, elevator Elevator) *Controller {
	c := NewController(elevator, testConfig(), nil)
	c.kill = proc.kill
	return c
}

func TestNewController_Defaults(t *testing.T) {
	c := NewController(nil, Config{}, nil)

	assert.Equal(t, DefaultWaitTimeout, c.config.WaitTimeout)
	assert.Equal(t, DefaultPollInterval, c.config.PollInterval)
	assert.Equal(t, DefaultKillPath, c.config.KillPath)
	assert.Equal(t, DefaultSignalTimeout, c.config.SignalTimeout)
	assert.NotNil(t, c.kill)
	assert.NotNil(t, c.logger)
}

func TestTerminate_RejectsBadPid(t *testing.T) {
	tests := []struct {
		name string
		pid  int
	}{
		{name: "zero", pid: 0},
		{name: "negative", pid: -7},
		{name: "above ceiling", pid: PidMax + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcess{alive: true, owned: true}
			c := newTestController(proc, nil)

			res := c.Terminate(context.Background(), tt.pid, true)

			assert.False(t, res.Success)
			assert.Contains(t, res.Err, "out of range")
			assert.Empty(t, res.Attempts)
			assert.Empty(t, proc.sentSignals())
		})
	}
}

func TestTerminate_GonePidSucceedsWithoutSideEffects(t *testing.T) {
	proc := &fakeProcess{alive: false}
	c := newTestController(proc, nil)

	res := c.Terminate(context.Background(), testPid, true)

	assert.True(t, res.Success)
	assert.False(t, res.Escalated)
	assert.Empty(t, res.Attempts)
	assert.Empty(t, res.Err)
	assert.Empty(t, proc.sentSignals())
}

func TestTerminate_GracefulExit(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: true, dieOnTerm: true}
	c := newTestController(proc, nil)

	res := c.Terminate(context.Background(), testPid, false)

	assert.True(t, res.Success)
	assert.False(t, res.Escalated)
	assert.Equal(t, []string{AttemptSignalTerm}, res.Attempts)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM}, proc.sentSignals())
}

func TestTerminate_SlowExitWithinWait(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: true, dieAfterPolls: 4}
	c := newTestController(proc, nil)

	res := c.Terminate(context.Background(), testPid, false)

	assert.True(t, res.Success)
	assert.Equal(t, []string{AttemptSignalTerm}, res.Attempts)
	assert.NotContains(t, proc.sentSignals(), syscall.SIGKILL)
}

func TestTerminate_StubbornProcessGetsKilled(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: true, dieOnKill: true}
	c := newTestController(proc, nil)

	res := c.Terminate(context.Background(), testPid, false)

	assert.True(t, res.Success)
	assert.Equal(t, []string{AttemptSignalTerm, AttemptSignalKill}, res.Attempts)
	assert.Equal(t, []syscall.Signal{syscall.SIGTERM, syscall.SIGKILL}, proc.sentSignals())
	assert.False(t, proc.isAlive())
}

func TestTerminate_ProcessVanishesBeforeSignal(t *testing.T) {
	// The first existence poll is the last time the process is seen alive.
	proc := &fakeProcess{alive: true, owned: true, dieAfterPolls: 1}
	c := newTestController(proc, nil)

	res := c.Terminate(context.Background(), testPid, false)

	assert.True(t, res.Success)
	assert.Equal(t, []string{AttemptSignalTerm}, res.Attempts)
}

func TestTerminate_PermissionDeniedWithoutEscalation(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: false}
	c := newTestController(proc, nil)

	res := c.Terminate(context.Background(), testPid, false)

	assert.False(t, res.Success)
	assert.False(t, res.Escalated)
	assert.Equal(t, []string{AttemptSignalTerm}, res.Attempts)
	assert.Contains(t, res.Err, "permission denied")
	assert.True(t, proc.isAlive())
}

func TestTerminate_PermissionDeniedNilElevator(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: false}
	c := newTestController(proc, nil)

	res := c.Terminate(context.Background(), testPid, true)

	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "permission denied")
}

func TestTerminate_EscalatedGracefulExit(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: false}
	elevator := &fakeElevator{}
	elevator.handle = func(argv []string) (*execute.Result, error) {
		proc.die()
		return deliveredResult(), nil
	}
	c := newTestController(proc, elevator)

	res := c.Terminate(context.Background(), testPid, true)

	assert.True(t, res.Success)
	assert.True(t, res.Escalated)
	assert.Equal(t, []string{AttemptSignalTerm, AttemptSignalTermEscalated}, res.Attempts)

	require.Equal(t, 1, elevator.callCount())
	call := elevator.calls[0]
	assert.Equal(t, []string{"/bin/kill", "-TERM", strconv.Itoa(testPid)}, call.argv)
	require.NotNil(t, call.opts.Timeout)
	assert.Equal(t, 5, *call.opts.Timeout)
}

func TestTerminate_UserDeclineIsSoftSuccess(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: false}
	elevator := &fakeElevator{
		handle: func([]string) (*execute.Result, error) { return declinedResult(), nil },
	}
	c := newTestController(proc, elevator)

	res := c.Terminate(context.Background(), testPid, true)

	assert.True(t, res.Success)
	assert.True(t, res.Escalated)
	assert.Empty(t, res.Err)
	assert.Equal(t, []string{AttemptSignalTerm, AttemptSignalTermEscalated}, res.Attempts)
	assert.Equal(t, 1, elevator.callCount())
	assert.True(t, proc.isAlive())
}

func TestTerminate_EscalatedDeliveryFailure(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: false}
	elevator := &fakeElevator{
		handle: func([]string) (*execute.Result, error) {
			return &execute.Result{ExitCode: 1, Status: execute.StatusExecutionFailed, Diagnostic: "kill: cannot find process"}, nil
		},
	}
	c := newTestController(proc, elevator)

	res := c.Terminate(context.Background(), testPid, true)

	assert.False(t, res.Success)
	assert.True(t, res.Escalated)
	assert.Contains(t, res.Err, "kill: cannot find process")
	assert.Equal(t, []string{AttemptSignalTerm, AttemptSignalTermEscalated}, res.Attempts)
	assert.Equal(t, 1, elevator.callCount())
}

func TestTerminate_EscalatedKillAfterStubbornTerm(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: false}
	elevator := &fakeElevator{}
	elevator.handle = func(argv []string) (*execute.Result, error) {
		if argv[1] == "-KILL" {
			proc.die()
		}
		return deliveredResult(), nil
	}
	c := newTestController(proc, elevator)

	res := c.Terminate(context.Background(), testPid, true)

	assert.True(t, res.Success)
	assert.True(t, res.Escalated)
	assert.Equal(t, []string{AttemptSignalTerm, AttemptSignalTermEscalated, AttemptSignalKillEscalated}, res.Attempts)

	require.Equal(t, 2, elevator.callCount())
	assert.Equal(t, "-TERM", elevator.calls[0].argv[1])
	assert.Equal(t, "-KILL", elevator.calls[1].argv[1])
	assert.False(t, proc.isAlive())
}

func TestTerminate_EscalatedKillDeclineIsSoftSuccess(t *testing.T) {
	proc := &fakeProcess{alive: true, owned: false}
	elevator := &fakeElevator{}
	elevator.handle = func(argv []string) (*execute.Result, error) {
		if argv[1] == "-KILL" {
			return declinedResult(), nil
		}
		return deliveredResult(), nil
	}
	c := newTestController(proc, elevator)

	res := c.Terminate(context.Background(), testPid, true)

	assert.True(t, res.Success)
	assert.Empty(t, res.Err)
	assert.Equal(t, []string{AttemptSignalTerm, AttemptSignalTermEscalated, AttemptSignalKillEscalated}, res.Attempts)
}

func TestTerminate_CancelledContextSkipsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	proc := &fakeProcess{alive: true, owned: true, dieOnKill: true}
	c := newTestController(proc, nil)

	res := c.Terminate(ctx, testPid, false)

	assert.True(t, res.Success)
	assert.Equal(t, []string{AttemptSignalTerm, AttemptSignalKill}, res.Attempts)
}

func TestTerminateChild(t *testing.T) {
	t.Run("success maps to nil error", func(t *testing.T) {
		proc := &fakeProcess{alive: true, owned: true, dieOnTerm: true}
		c := newTestController(proc, nil)

		require.NoError(t, c.TerminateChild(testPid))
	})

	t.Run("failure surfaces the diagnostic", func(t *testing.T) {
		proc := &fakeProcess{alive: true, owned: false}
		c := newTestController(proc, nil)

		err := c.TerminateChild(testPid)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission denied")
	})
}
