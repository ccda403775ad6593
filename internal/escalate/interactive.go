package escalate

import (
	"context"
	"maps"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/hostenv"
)

// askpassHelperNames are looked up on PATH, preferred order first.
var askpassHelperNames = []string{
	"ssh-askpass",
	"ksshaskpass",
	"lxqt-openssh-askpass",
}

// askpassInstallPaths cover distributions that install the helper outside
// PATH.
var askpassInstallPaths = []string{
	"/usr/bin/ssh-askpass",
	"/usr/lib/ssh/x11-ssh-askpass",
	"/usr/lib/openssh/gnome-ssh-askpass",
	"/usr/libexec/openssh/gnome-ssh-askpass",
	"/usr/libexec/openssh/ssh-askpass",
}

// interactivePrompt asks for credentials through a graphical askpass helper
// driven by sudo -A. This is the preferred interactive mechanism: sudo owns
// the password end to end and this process never sees it.
type interactivePrompt struct {
	runner        Runner
	detector      hostenv.Detector
	fs            common.FileSystem
	askpassPath   string
	promptTimeout int
	getenv        func(string) string
}

func newInteractivePrompt(runner Runner, detector hostenv.Detector, fs common.FileSystem, askpassPath string, promptTimeout int, getenv func(string) string) *interactivePrompt {
	return &interactivePrompt{
		runner:        runner,
		detector:      detector,
		fs:            fs,
		askpassPath:   askpassPath,
		promptTimeout: promptTimeout,
		getenv:        getenv,
	}
}

func (s *interactivePrompt) Name() string { return StrategyInteractivePrompt }

func (s *interactivePrompt) Available(_ runRequest) (bool, string) {
	if !s.detector.IsInteractive() {
		return false, "environment is not interactive"
	}
	if !s.detector.HasGraphicalDisplay() {
		return false, "no graphical display"
	}
	if _, err := s.detector.LookupHelper("sudo"); err != nil {
		return false, "sudo not found"
	}
	if _, ok := s.findAskpass(); !ok {
		return false, "no askpass helper found"
	}
	return true, ""
}

func (s *interactivePrompt) Execute(ctx context.Context, argv []string, req runRequest) (*execute.Result, verdict, error) {
	sudoPath, err := s.detector.LookupHelper("sudo")
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	askpass, ok := s.findAskpass()
	if !ok {
		return nil, verdictMechanismFailure, nil
	}

	env := promptEnv(s.getenv)
	maps.Copy(env, req.extraEnv)
	env["SUDO_ASKPASS"] = askpass

	runArgv := append([]string{sudoPath, "-A", "--"}, argv...)
	res, err := runCommand(ctx, s.runner, runArgv, req, execute.RunOptions{
		Timeout:     promptRunTimeout(req.timeout, s.promptTimeout),
		OutputLimit: req.outputLimit,
		ExtraEnv:    env,
	})
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	return res, classifyPromptRun(res), nil
}

// findAskpass resolves the helper: a configured override wins, then PATH
// lookup, then the known install locations.
func (s *interactivePrompt) findAskpass() (string, bool) {
	if s.askpassPath != "" {
		return s.askpassPath, true
	}
	for _, name := range askpassHelperNames {
		if path, err := s.detector.LookupHelper(name); err == nil {
			return path, true
		}
	}
	for _, path := range askpassInstallPaths {
		if ok, err := s.fs.FileExists(path); err == nil && ok {
			return path, true
		}
	}
	return "", false
}
