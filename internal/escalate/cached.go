package escalate

import (
	"context"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/hostenv"
	"github.com/privgate/privgate/internal/session"
)

// cachedPrivileged runs the command non-interactively under sudo after a
// short credential probe. It is only eligible while an authentication session
// (or an active grace window) vouches for the caller; the probe then verifies
// the OS still honors the cached credentials before the real command runs
// with its full timeout.
type cachedPrivileged struct {
	runner       Runner
	detector     hostenv.Detector
	sessions     *session.Store
	withinGrace  func(key string) bool
	probeTimeout int
}

func newCachedPrivileged(runner Runner, detector hostenv.Detector, sessions *session.Store, withinGrace func(string) bool, probeTimeout int) *cachedPrivileged {
	return &cachedPrivileged{
		runner:       runner,
		detector:     detector,
		sessions:     sessions,
		withinGrace:  withinGrace,
		probeTimeout: probeTimeout,
	}
}

func (s *cachedPrivileged) Name() string { return StrategyCachedPrivileged }

func (s *cachedPrivileged) Available(req runRequest) (bool, string) {
	if !s.sessions.IsValid(req.sessionKey) && !s.withinGrace(req.sessionKey) {
		return false, "no valid authentication session"
	}
	if _, err := s.detector.LookupHelper("sudo"); err != nil {
		return false, "sudo not found"
	}
	return true, ""
}

func (s *cachedPrivileged) Execute(ctx context.Context, argv []string, req runRequest) (*execute.Result, verdict, error) {
	sudoPath, err := s.detector.LookupHelper("sudo")
	if err != nil {
		return nil, verdictMechanismFailure, err
	}

	// Probe first: validate the OS-level credential cache without running
	// the payload, bounded tightly in case sudo itself hangs.
	probeArgv := []string{sudoPath, "-n", "-v"}
	probe, err := s.runner.Run(ctx, probeArgv, execute.RunOptions{
		Timeout:  common.IntPtr(s.probeTimeout),
		ExtraEnv: req.extraEnv,
	})
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	if v := classifyProbe(probe); v != verdictSuccess {
		return probe, v, nil
	}

	runArgv := append([]string{sudoPath, "-n", "--"}, argv...)
	res, err := runCommand(ctx, s.runner, runArgv, req, execute.RunOptions{
		Timeout:     req.timeout,
		OutputLimit: req.outputLimit,
		ExtraEnv:    req.extraEnv,
	})
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	return res, classifyNoninteractiveRun(res), nil
}
