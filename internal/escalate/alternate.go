package escalate

import (
	"context"
	"maps"
	"strings"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/hostenv"
)

// dialogTool is a desktop password dialog usable as an alternate prompt.
type dialogTool struct {
	name string
	args []string
}

// dialogTools in preferred order. Both print the entered password to stdout
// and exit non-zero when the user cancels.
var dialogTools = []dialogTool{
	{name: "zenity", args: []string{"--password", "--title", "Administrator privileges required"}},
	{name: "kdialog", args: []string{"--password", "Administrator privileges required"}},
}

// Dialog exit codes that mean the user closed or ignored the prompt rather
// than the tool malfunctioning (zenity: 1 cancel, 5 timeout; kdialog: 1).
func dialogDeclined(exitCode int) bool {
	return exitCode == 1 || exitCode == 5
}

// alternatePromptTool asks for credentials through a desktop dialog and feeds
// the response to sudo -S on stdin. Used when no askpass helper is installed.
// The captured response stays inside this strategy: it is handed to sudo's
// stdin and never appears in results, attempts, or logs.
type alternatePromptTool struct {
	runner        Runner
	detector      hostenv.Detector
	promptTimeout int
	getenv        func(string) string
}

func newAlternatePromptTool(runner Runner, detector hostenv.Detector, promptTimeout int, getenv func(string) string) *alternatePromptTool {
	return &alternatePromptTool{
		runner:        runner,
		detector:      detector,
		promptTimeout: promptTimeout,
		getenv:        getenv,
	}
}

func (s *alternatePromptTool) Name() string { return StrategyAlternatePromptTool }

func (s *alternatePromptTool) Available(_ runRequest) (bool, string) {
	if !s.detector.IsInteractive() {
		return false, "environment is not interactive"
	}
	if !s.detector.HasGraphicalDisplay() {
		return false, "no graphical display"
	}
	if _, err := s.detector.LookupHelper("sudo"); err != nil {
		return false, "sudo not found"
	}
	if _, _, ok := s.findDialog(); !ok {
		return false, "no dialog tool found"
	}
	return true, ""
}

func (s *alternatePromptTool) Execute(ctx context.Context, argv []string, req runRequest) (*execute.Result, verdict, error) {
	sudoPath, err := s.detector.LookupHelper("sudo")
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	dialogPath, dialogArgs, ok := s.findDialog()
	if !ok {
		return nil, verdictMechanismFailure, nil
	}

	env := promptEnv(s.getenv)
	maps.Copy(env, req.extraEnv)

	// Capture the password. Never streamed, never recorded: a failed capture
	// is surfaced with its stdout dropped, and a successful one goes straight
	// into sudo's stdin below.
	capture, err := s.runner.Run(ctx, append([]string{dialogPath}, dialogArgs...), execute.RunOptions{
		Timeout:  common.IntPtr(s.promptTimeout),
		ExtraEnv: env,
	})
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	if capture.Status == execute.StatusTimeout {
		return scrubbedCaptureResult(capture, "password prompt timed out"), verdictDenied, nil
	}
	if capture.Status == execute.StatusCancelled {
		return scrubbedCaptureResult(capture, "password prompt cancelled by caller"), verdictCommandFailure, nil
	}
	if !capture.Succeeded() {
		if dialogDeclined(capture.ExitCode) {
			return scrubbedCaptureResult(capture, "password prompt declined"), verdictDenied, nil
		}
		return scrubbedCaptureResult(capture, "dialog tool failed"), verdictMechanismFailure, nil
	}

	password, _, _ := strings.Cut(capture.Stdout, "\n")
	password = strings.TrimSuffix(password, "\r")

	runArgv := append([]string{sudoPath, "-S", "-p", "", "--"}, argv...)
	res, err := runCommand(ctx, s.runner, runArgv, req, execute.RunOptions{
		Timeout:     req.timeout,
		OutputLimit: req.outputLimit,
		ExtraEnv:    req.extraEnv,
		Stdin:       strings.NewReader(password + "\n"),
	})
	if err != nil {
		return nil, verdictMechanismFailure, err
	}
	return res, classifyPromptRun(res), nil
}

func (s *alternatePromptTool) findDialog() (string, []string, bool) {
	for _, tool := range dialogTools {
		if path, err := s.detector.LookupHelper(tool.name); err == nil {
			return path, tool.args, true
		}
	}
	return "", nil, false
}

// scrubbedCaptureResult rebuilds a dialog capture outcome without its stdout,
// which may contain the typed response.
func scrubbedCaptureResult(res *execute.Result, diagnostic string) *execute.Result {
	return &execute.Result{
		ExitCode:   res.ExitCode,
		Stderr:     res.Stderr,
		Status:     res.Status,
		Duration:   res.Duration,
		Diagnostic: diagnostic,
	}
}
