package privgate

import (
	"log/slog"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/config"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/grace"
	"github.com/privgate/privgate/internal/hostenv"
	"github.com/privgate/privgate/internal/logging"
	"github.com/privgate/privgate/internal/session"
	"github.com/privgate/privgate/internal/validate"
)

// Option is a function type for configuring Manager instances
type Option func(*managerOptions)

// managerOptions holds all configuration options for creating a Manager
type managerOptions struct {
	spec      *config.Spec
	logger    *slog.Logger
	fs        common.FileSystem
	detector  hostenv.Detector
	sessions  *session.Store
	validator *validate.Validator
	executor  *execute.Executor
	audit     *logging.AuditLogger
	host      grace.Host
}

// WithConfig supplies a loaded policy configuration; without it every
// subsystem runs on its defaults.
func WithConfig(spec *config.Spec) Option {
	return func(opts *managerOptions) {
		opts.spec = spec
	}
}

// WithLogger sets the logger shared by all subsystems
func WithLogger(logger *slog.Logger) Option {
	return func(opts *managerOptions) {
		opts.logger = logger
	}
}

// WithFileSystem sets a custom FileSystem for helper discovery and host probes
func WithFileSystem(fs common.FileSystem) Option {
	return func(opts *managerOptions) {
		opts.fs = fs
	}
}

// WithDetector sets a custom host environment detector
func WithDetector(detector hostenv.Detector) Option {
	return func(opts *managerOptions) {
		opts.detector = detector
	}
}

// WithSessionStore injects the authentication session store. Callers that
// share one store across managers construct it themselves.
func WithSessionStore(store *session.Store) Option {
	return func(opts *managerOptions) {
		opts.sessions = store
	}
}

// WithValidator sets a custom command validator
func WithValidator(validator *validate.Validator) Option {
	return func(opts *managerOptions) {
		opts.validator = validator
	}
}

// WithExecutor sets a custom command executor
func WithExecutor(executor *execute.Executor) Option {
	return func(opts *managerOptions) {
		opts.executor = executor
	}
}

// WithAuditLogger sets a custom audit logger
func WithAuditLogger(audit *logging.AuditLogger) Option {
	return func(opts *managerOptions) {
		opts.audit = audit
	}
}

// WithHostState sets the host-state source consulted by grace-period tuning
func WithHostState(host grace.Host) Option {
	return func(opts *managerOptions) {
		opts.host = host
	}
}
