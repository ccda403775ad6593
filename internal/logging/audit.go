package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// AuditLogger writes the structured audit trail for privileged activity.
// Every escalation attempt, privileged execution, and termination leaves a
// record carrying enough identity (uid/euid/pid, run ID via handler attrs)
// to reconstruct who did what, when, and through which helper.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger instance
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogEscalationAttempt records a single strategy attempt inside an orchestrated call.
func (a *AuditLogger) LogEscalationAttempt(
	_ context.Context,
	operationID string,
	strategy string,
	helper string,
	success bool,
	detail string,
	duration time.Duration,
) {
	attrs := []slog.Attr{
		slog.String("audit_type", "escalation_attempt"),
		slog.Int64("timestamp", time.Now().Unix()),
		slog.String("operation_id", operationID),
		slog.String("strategy", strategy),
		slog.String("helper", helper),
		slog.Bool("success", success),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.Int("user_id", os.Getuid()),
		slog.Int("process_id", os.Getpid()),
	}
	if detail != "" {
		attrs = append(attrs, slog.String("detail", detail))
	}

	if success {
		a.logger.LogAttrs(context.Background(), slog.LevelInfo, "Escalation attempt succeeded", attrs...)
	} else {
		a.logger.LogAttrs(context.Background(), slog.LevelWarn, "Escalation attempt failed", attrs...)
	}
}

// LogPrivilegedExecution logs the completion of a privileged command with full audit trail
func (a *AuditLogger) LogPrivilegedExecution(
	_ context.Context,
	operationID string,
	program string,
	args []string,
	strategy string,
	exitCode int,
	stderr string,
	duration time.Duration,
) {
	baseAttrs := []slog.Attr{
		slog.String("audit_type", "privileged_execution"),
		slog.Int64("timestamp", time.Now().Unix()),
		slog.String("operation_id", operationID),
		slog.String("command_path", program),
		slog.String("command_args", strings.Join(args, " ")),
		slog.String("strategy", strategy),
		slog.Int("exit_code", exitCode),
		slog.Int64("execution_duration_ms", duration.Milliseconds()),
		slog.Int("user_id", os.Getuid()),
		slog.Int("effective_user_id", os.Geteuid()),
		slog.Int("process_id", os.Getpid()),
	}

	if exitCode == 0 {
		a.logger.LogAttrs(context.Background(), slog.LevelInfo, "Privileged command executed successfully", baseAttrs...)
	} else {
		errorAttrs := make([]slog.Attr, len(baseAttrs), len(baseAttrs)+1)
		copy(errorAttrs, baseAttrs)
		errorAttrs = append(errorAttrs, slog.String("stderr", stderr))
		a.logger.LogAttrs(context.Background(), slog.LevelError, "Privileged command failed", errorAttrs...)
	}
}

// LogTermination logs a process termination attempt and its signal sequence
func (a *AuditLogger) LogTermination(
	_ context.Context,
	pid int,
	success bool,
	escalated bool,
	attempts []string,
	duration time.Duration,
) {
	attrs := []slog.Attr{
		slog.String("audit_type", "process_termination"),
		slog.Int64("timestamp", time.Now().Unix()),
		slog.Int("target_pid", pid),
		slog.Bool("success", success),
		slog.Bool("escalated", escalated),
		slog.String("signal_sequence", strings.Join(attempts, ",")),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.Int("user_id", os.Getuid()),
		slog.Int("process_id", os.Getpid()),
	}

	if success {
		a.logger.LogAttrs(context.Background(), slog.LevelInfo, "Process termination completed", attrs...)
	} else {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "Process termination failed", attrs...)
	}
}

// LogSecurityEvent logs security-related events and potential threats
// (rejected commands, refused root execution, marker file activity).
func (a *AuditLogger) LogSecurityEvent(
	_ context.Context,
	eventType string,
	severity string,
	message string,
	details map[string]any,
) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security_event"),
		slog.Int64("timestamp", time.Now().Unix()),
		slog.String("event_type", eventType),
		slog.String("severity", severity),
		slog.String("message", message),
		slog.Int("user_id", os.Getuid()),
		slog.Int("effective_user_id", os.Geteuid()),
		slog.Int("process_id", os.Getpid()),
	}

	for key, value := range details {
		attrs = append(attrs, slog.Any(key, value))
	}

	switch severity {
	case "critical", "high":
		a.logger.LogAttrs(context.Background(), slog.LevelError, "Security event", attrs...)
	case "medium":
		a.logger.LogAttrs(context.Background(), slog.LevelWarn, "Security event", attrs...)
	default:
		a.logger.LogAttrs(context.Background(), slog.LevelInfo, "Security event", attrs...)
	}
}
