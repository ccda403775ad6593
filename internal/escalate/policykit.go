package escalate

import (
	"context"
	"maps"

	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/hostenv"
)

// policyKitPrompt elevates through pkexec, whose registered authentication
// agent renders the prompt. Last of the interactive mechanisms because agent
// presence cannot be probed cheaply; pkexec reports the outcome through its
// reserved exit codes instead.
type policyKitPrompt struct {
	runner        Runner
	detector      hostenv.Detector
	promptTimeout int
	getenv        func(string) string
}

func newPolicyKitPrompt(runner Runner, detector hostenv.Detector, promptTimeout int, getenv func(string) string) *policyKitPrompt {
	return &policyKitPrompt{
		runner:        runner,
		detector:      detector,
		promptTimeout: promptTimeout,
		getenv:        getenv,
	}
}

func (s *policyKitPrompt) Name() string { return StrategyPolicyKitPrompt }

func (s *policyKitPrompt) Available(_ runRequest) (bool, string) {
	if !s.detector.IsInteractive() {
		return false, "environment is not interactive"
	}
	if _, err := s.detector.LookupHelper("pkexec"); err != nil {
		return false, "pkexec not found"
	}
	return true, ""
}

func (s *policyKitPrompt) Execute(ctx context.Context, argv []string, req runRequest) (*execute.Result, verdict, error) {
	pkexecPath, err := s.detector.LookupHelper("pkexec")
	if err != nil {
		return nil, verdictMechanismFailure, err
	}

	env := promptEnv(s.getenv)
	maps.Copy(env, req.extraEnv)

	runArgv := append([]string{pkexecPath}, argv...)
	res, err := runCommand(ctx, s.runner, runArgv, req, execute.RunOptions{
		Timeout:     promptRunTimeout(req.timeout, s.promptTimeout),
		OutputLimit: req.outputLimit,
		ExtraEnv:    env,
	})
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	return res, classifyPolicyKitRun(res), nil
}
