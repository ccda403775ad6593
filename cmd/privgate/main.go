// Package main provides the privgate operator CLI. It validates policy
// configuration, elevates a single command through the privilege manager,
// terminates stray privileged children, and prints session diagnostics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/privgate/privgate"
	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/config"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/logging"
	"github.com/privgate/privgate/internal/safefileio"
)

// webhookEnvKey names the variable (process environment or -env-file) that
// carries the alerting webhook URL. It is consumed by the logger and never
// forwarded to the child.
const webhookEnvKey = "PRIVGATE_WEBHOOK_URL"

// Error definitions
var (
	ErrCommandRequired    = errors.New("command is required (or use -terminate, -status, or -validate-only)")
	ErrConfigPathRequired = errors.New("-validate-only requires -config")
)

var (
	configPath   = flag.String("config", "", "path to TOML policy file (built-in defaults apply when empty)")
	envFile      = flag.String("env-file", "", "environment file merged into the child environment (default: .env if present)")
	logLevel     = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logDir       = flag.String("log-dir", "", "directory to place per-run JSON log (auto-named)")
	sessionKey   = flag.String("session-key", "", "authentication session scope (empty = global)")
	timeoutSec   = flag.Int("timeout", -1, "command timeout in seconds (0 = unlimited, negative = policy default)")
	stream       = flag.Bool("stream", false, "print child output line by line as it is produced")
	terminatePid = flag.Int("terminate", 0, "terminate the given process instead of running a command")
	showStatus   = flag.Bool("status", false, "print active authentication sessions and exit")
	validateOnly = flag.Bool("validate-only", false, "validate the configuration file and exit")
)

func main() {
	// Generate run ID early so every log record of this invocation shares it
	runID := logging.GenerateRunID()

	code, err := run(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "privgate: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run(runID string) (int, error) {
	flag.Parse()

	// Set up context with cancellation
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	extraEnv, err := loadEnvFile(*envFile)
	if err != nil {
		return 0, err
	}

	// The webhook URL may arrive through the env file or the process
	// environment; either way it belongs to the logger, not the child.
	webhookURL := extraEnv[webhookEnvKey]
	if webhookURL == "" {
		webhookURL = os.Getenv(webhookEnvKey)
	}
	delete(extraEnv, webhookEnvKey)

	var level slog.Level
	invalidLogLevel := level.UnmarshalText([]byte(*logLevel)) != nil
	if invalidLogLevel {
		level = slog.LevelInfo
	}

	// Setup logging system early
	logger, err := logging.SetupLogger(logging.SetupConfig{
		Level:      level,
		LogDir:     *logDir,
		RunID:      runID,
		WebhookURL: webhookURL,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to setup logger: %w", err)
	}
	slog.SetDefault(logger)

	// Warn about invalid log level after the logger is properly set up
	if invalidLogLevel {
		slog.Warn("Invalid log level provided, defaulting to INFO", "provided", *logLevel)
	}

	var spec *config.Spec
	if *configPath != "" {
		spec, err = config.Load(*configPath)
		if err != nil {
			return 0, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// Handle validate command
	if *validateOnly {
		if spec == nil {
			return 0, ErrConfigPathRequired
		}
		fmt.Printf("%s: configuration valid\n", *configPath)
		return 0, nil
	}

	options := []privgate.Option{privgate.WithLogger(logger)}
	if spec != nil {
		options = append(options, privgate.WithConfig(spec))
	}
	mgr, err := privgate.New(options...)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize privilege manager: %w", err)
	}
	defer mgr.Close()

	switch {
	case *showStatus:
		printSessions(mgr)
		return 0, nil
	case *terminatePid != 0:
		return terminateCommand(ctx, mgr, *terminatePid)
	}

	argv := flag.Args()
	if len(argv) == 0 {
		return 0, ErrCommandRequired
	}
	return elevateCommand(ctx, mgr, argv, extraEnv)
}

// elevateCommand runs argv through the manager and relays its output. The
// returned exit code mirrors the child's.
func elevateCommand(ctx context.Context, mgr *privgate.Manager, argv []string, extraEnv map[string]string) (int, error) {
	opts := privgate.ElevateOptions{
		SessionKey: *sessionKey,
		ExtraEnv:   extraEnv,
	}
	if *timeoutSec >= 0 {
		opts.Timeout = common.IntPtr(*timeoutSec)
	}

	var (
		res    *execute.Result
		runErr error
	)
	if *stream {
		res, runErr = mgr.ElevateStreaming(ctx, argv, func(line string) { fmt.Println(line) }, opts)
	} else {
		res, runErr = mgr.Elevate(ctx, argv, opts)
	}
	if runErr != nil {
		return 0, runErr
	}

	if !*stream && res.Stdout != "" {
		fmt.Print(res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprint(os.Stderr, res.Stderr)
	}
	if res.Truncated {
		fmt.Fprintln(os.Stderr, "privgate: output truncated at capture limit")
	}
	if !res.Succeeded() && res.Diagnostic != "" {
		fmt.Fprintf(os.Stderr, "privgate: %s: %s\n", res.Status, res.Diagnostic)
	}
	return exitCode(res), nil
}

// terminateCommand drives the staged termination sequence for one pid.
func terminateCommand(ctx context.Context, mgr *privgate.Manager, pid int) (int, error) {
	res := mgr.Terminate(ctx, pid)
	if !res.Success {
		return 1, errors.New(res.Err)
	}
	if len(res.Attempts) == 0 {
		fmt.Printf("pid %d already gone\n", pid)
		return 0, nil
	}
	fmt.Printf("pid %d terminated (%s)\n", pid, strings.Join(res.Attempts, ", "))
	return 0, nil
}

func printSessions(mgr *privgate.Manager) {
	infos := mgr.Sessions().Snapshot()
	if len(infos) == 0 {
		fmt.Println("no active sessions")
		return
	}
	for _, info := range infos {
		fmt.Printf("%-24s age=%s remaining=%s\n",
			info.Key, info.Age.Round(time.Second), info.Remaining.Round(time.Second))
	}
}

// exitCode mirrors the child's exit code; outcomes without one map to 1.
func exitCode(res *execute.Result) int {
	if res.Succeeded() {
		return 0
	}
	if res.ExitCode > 0 {
		return res.ExitCode
	}
	return 1
}

// loadEnvFile reads extra child environment variables from an env file. An
// explicitly named file must exist; the implicit .env default is optional.
func loadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
	}

	file, err := safefileio.SafeOpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	env, err := godotenv.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
	}
	return env, nil
}
