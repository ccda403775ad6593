package escalate

import (
	"context"

	"github.com/privgate/privgate/internal/execute"
)

// directUnprivileged runs the command as the current user with no elevation
// at all. Opt-in per call; some wrapped tools degrade gracefully without
// root (reduced scan coverage) and callers may prefer that over failing.
type directUnprivileged struct {
	runner Runner
}

func newDirectUnprivileged(runner Runner) *directUnprivileged {
	return &directUnprivileged{runner: runner}
}

func (s *directUnprivileged) Name() string { return StrategyDirectUnprivileged }

func (s *directUnprivileged) Available(req runRequest) (bool, string) {
	if !req.allowUnprivilegedFallback {
		return false, "unprivileged fallback not enabled"
	}
	return true, ""
}

func (s *directUnprivileged) Execute(ctx context.Context, argv []string, req runRequest) (*execute.Result, verdict, error) {
	res, err := runCommand(ctx, s.runner, argv, req, execute.RunOptions{
		Timeout:     req.timeout,
		OutputLimit: req.outputLimit,
		ExtraEnv:    req.extraEnv,
	})
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	if res.Succeeded() {
		return res, verdictSuccess, nil
	}
	return res, verdictCommandFailure, nil
}
