// Package config loads privgate deployment settings from TOML. A Spec maps
// one-to-one onto the subsystem configurations and materializes them through
// typed accessors; zero values always mean "use the subsystem default" so an
// empty document is a valid deployment.
package config

import (
	"slices"
	"time"

	"github.com/privgate/privgate/internal/common"
	"github.com/privgate/privgate/internal/escalate"
	"github.com/privgate/privgate/internal/execute"
	"github.com/privgate/privgate/internal/grace"
	"github.com/privgate/privgate/internal/terminate"
	"github.com/privgate/privgate/internal/validate"
)

// Spec is the parsed configuration document.
type Spec struct {
	Session    SessionSpec    `toml:"session"`
	Validator  ValidatorSpec  `toml:"validator"`
	Executor   ExecutorSpec   `toml:"executor"`
	Escalation EscalationSpec `toml:"escalation"`
	Grace      GraceSpec      `toml:"grace"`
	Terminate  TerminateSpec  `toml:"terminate"`
}

// SessionSpec tunes the authentication session store.
type SessionSpec struct {
	// TTL is how long an authentication stays valid without a refresh, in
	// seconds (0 = default).
	TTL int32 `toml:"ttl"`
}

// ValidatorSpec extends the command validator.
type ValidatorSpec struct {
	// ExtraBinaries are absolute paths appended to the built-in allowlist.
	// The built-in set is never replaced, only extended.
	ExtraBinaries []string `toml:"extra_binaries"`
	// MaxArguments limits the argument count per command (0 = default).
	MaxArguments int `toml:"max_arguments"`
	// MaxArgLength limits a single argument's byte length (0 = default).
	MaxArgLength int `toml:"max_arg_length"`
}

// ExecutorSpec tunes the secure executor.
type ExecutorSpec struct {
	// Timeout is the deployment execution timeout in seconds
	// (nil = default 60s, 0 = unlimited).
	Timeout *int32 `toml:"timeout"`
	// OutputSizeLimit caps captured output per stream in bytes
	// (nil = default, 0 = unlimited).
	OutputSizeLimit *int64 `toml:"output_size_limit"`
	// Env is merged into every child environment, subject to the sanitizer's
	// admission rules.
	Env map[string]string `toml:"env"`
}

// EscalationSpec tunes the privilege escalation orchestrator.
type EscalationSpec struct {
	// ProbeTimeout bounds the cached-credential probe, in seconds (0 = default).
	ProbeTimeout int32 `toml:"probe_timeout"`
	// PromptTimeout is the human response budget, in seconds (0 = default).
	PromptTimeout int32 `toml:"prompt_timeout"`
	// AskpassPath overrides askpass helper discovery.
	AskpassPath string `toml:"askpass_path"`
	// DisabledStrategies removes strategies from the walk by name.
	DisabledStrategies []string `toml:"disabled_strategies"`
}

// GraceSpec tunes grace-period windows. All durations are in seconds.
type GraceSpec struct {
	// InitialSpan is how long after opening a window queries stay free
	// (0 = default).
	InitialSpan int32 `toml:"initial_span"`
	// BaseDuration is the window length when the caller does not pick one
	// (0 = default).
	BaseDuration int32 `toml:"base_duration"`
	// MaxDuration is the hard ceiling on any window (0 = default).
	MaxDuration int32 `toml:"max_duration"`
	// ExtensionsCap is how many extensions a window allows before forcing
	// re-authentication (0 = default).
	ExtensionsCap int `toml:"extensions_cap"`
	// HighSecurityMarker is the marker file whose presence declares this a
	// hardened host (empty = default).
	HighSecurityMarker string `toml:"high_security_marker"`
	// HighSecurityClamp replaces the duration on hardened hosts (0 = default).
	HighSecurityClamp int32 `toml:"high_security_clamp"`
	// LoadThreshold is the one-minute load average at which windows stretch
	// (0 = default).
	LoadThreshold float64 `toml:"load_threshold"`
	// LoadMultiplier stretches the window on busy hosts; must be at least 1
	// when set (0 = default).
	LoadMultiplier float64 `toml:"load_multiplier"`
}

// TerminateSpec tunes the safe termination controller.
type TerminateSpec struct {
	// WaitTimeout bounds the graceful-exit wait in seconds (0 = default).
	WaitTimeout int32 `toml:"wait_timeout"`
	// KillPath is the signal-delivery binary for escalated sends.
	KillPath string `toml:"kill_path"`
	// SignalTimeout bounds one escalated signal delivery, in seconds
	// (0 = default).
	SignalTimeout int32 `toml:"signal_timeout"`
}

// SessionTTL returns the configured session lifetime; zero selects the store
// default.
func (s *Spec) SessionTTL() time.Duration {
	return time.Duration(s.Session.TTL) * time.Second
}

// ValidatorConfig materializes the validator configuration: the built-in
// allowlist extended with the configured binaries.
func (s *Spec) ValidatorConfig() *validate.Config {
	cfg := validate.DefaultConfig()
	cfg.AllowedBinaries = append(cfg.AllowedBinaries, s.Validator.ExtraBinaries...)
	if s.Validator.MaxArguments > 0 {
		cfg.MaxArguments = s.Validator.MaxArguments
	}
	if s.Validator.MaxArgLength > 0 {
		cfg.MaxArgLength = s.Validator.MaxArgLength
	}
	return cfg
}

// ExecutorConfig materializes the executor configuration.
func (s *Spec) ExecutorConfig() execute.Config {
	cfg := execute.Config{
		OutputLimit: common.OutputLimit{OptionalValue: common.NewOptionalValueFromPtr(s.Executor.OutputSizeLimit)},
	}
	if s.Executor.Timeout != nil {
		cfg.PolicyTimeout = common.IntPtr(int(*s.Executor.Timeout))
	}
	if len(s.Executor.Env) > 0 {
		cfg.ExtraEnv = make(map[string]string, len(s.Executor.Env))
		for k, v := range s.Executor.Env {
			cfg.ExtraEnv[k] = v
		}
	}
	return cfg
}

// EscalationConfig materializes the orchestrator configuration. The grace
// window hook is wired by the caller, not the file.
func (s *Spec) EscalationConfig() escalate.Config {
	return escalate.Config{
		ProbeTimeout:       int(s.Escalation.ProbeTimeout),
		PromptTimeout:      int(s.Escalation.PromptTimeout),
		AskpassPath:        s.Escalation.AskpassPath,
		DisabledStrategies: slices.Clone(s.Escalation.DisabledStrategies),
	}
}

// GraceConfig materializes the grace-period policy configuration.
func (s *Spec) GraceConfig() grace.Config {
	return grace.Config{
		InitialSpan:       time.Duration(s.Grace.InitialSpan) * time.Second,
		BaseDuration:      time.Duration(s.Grace.BaseDuration) * time.Second,
		MaxDuration:       time.Duration(s.Grace.MaxDuration) * time.Second,
		ExtensionsCap:     s.Grace.ExtensionsCap,
		HighSecurityClamp: time.Duration(s.Grace.HighSecurityClamp) * time.Second,
		LoadThreshold:     s.Grace.LoadThreshold,
		LoadMultiplier:    s.Grace.LoadMultiplier,
	}
}

// TerminateConfig materializes the termination controller configuration.
func (s *Spec) TerminateConfig() terminate.Config {
	return terminate.Config{
		WaitTimeout:   time.Duration(s.Terminate.WaitTimeout) * time.Second,
		KillPath:      s.Terminate.KillPath,
		SignalTimeout: int(s.Terminate.SignalTimeout),
	}
}
