package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/privgate/privgate/internal/redaction"
)

// SetupConfig holds all configuration for logger setup
type SetupConfig struct {
	Level           slog.Level
	LogDir          string
	RunID           string
	WebhookURL      string    // Slack-compatible webhook for WARN-and-above records
	ConsoleWriter   io.Writer // Writer for console output (stderr by default)
	DisableConsole  bool      // Suppress the console handler (library embedding)
	RedactionConfig *redaction.Config
}

// SetupLogger builds the handler chain used throughout privgate and returns
// the root logger. The chain is:
//
//	RedactingHandler -> MultiHandler -> [console text, per-run JSON file, webhook]
//
// Redaction wraps the fan-out so no sink can observe an unredacted record.
// Call it once during startup; library embedders may instead construct their
// own logger and pass it in through the facade options.
func SetupLogger(config SetupConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	// 1. Console text handler
	if !config.DisableConsole {
		consoleWriter := config.ConsoleWriter
		if consoleWriter == nil {
			consoleWriter = os.Stderr
		}
		handlers = append(handlers, slog.NewTextHandler(consoleWriter, &slog.HandlerOptions{
			Level: config.Level,
		}))
	}

	// 2. Machine-readable log handler (to file, per-run auto-named)
	if config.LogDir != "" {
		if err := ValidateLogDir(config.LogDir); err != nil {
			return nil, fmt.Errorf("invalid log directory: %w", err)
		}

		opener := NewSafeFileOpener()
		logPath := opener.GenerateLogFilename(config.LogDir, config.RunID)
		logF, err := opener.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		jsonHandler := slog.NewJSONHandler(logF, &slog.HandlerOptions{
			Level: config.Level,
		})

		hostname, hostErr := os.Hostname()
		if hostErr != nil {
			hostname = "unknown"
		}

		// Attach common attributes
		enrichedHandler := jsonHandler.WithAttrs([]slog.Attr{
			slog.String("hostname", hostname),
			slog.Int("pid", os.Getpid()),
			slog.Int("schema_version", 1),
			slog.String("run_id", config.RunID),
		})
		handlers = append(handlers, enrichedHandler)
	}

	// 3. Webhook notification handler (optional, WARN and above)
	if config.WebhookURL != "" {
		wh, err := NewWebhookHandler(config.WebhookURL, config.RunID)
		if err != nil {
			return nil, fmt.Errorf("failed to create webhook handler: %w", err)
		}
		handlers = append(handlers, wh)
	}

	if len(handlers) == 0 {
		// Nothing configured: degrade to a discard logger rather than failing,
		// so library use without logging config stays silent but functional.
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	}

	multiHandler := NewMultiHandler(handlers...)
	redactedHandler := redaction.NewRedactingHandler(multiHandler, config.RedactionConfig)

	return slog.New(redactedHandler), nil
}
