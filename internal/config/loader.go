package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/privgate/privgate/internal/escalate"
	"github.com/privgate/privgate/internal/safefileio"
)

// MaxConfigFileSize bounds how much of a config file is read. A privgate
// deployment file is a handful of small sections; anything larger is a
// mistake or an attack.
const MaxConfigFileSize = 1 << 20

// Error definitions for the config package
var (
	// ErrInvalidConfigPath is returned when the config file path is invalid
	ErrInvalidConfigPath = errors.New("invalid config file path")
	// ErrConfigTooLarge is returned when the config file exceeds MaxConfigFileSize
	ErrConfigTooLarge = errors.New("config file too large")
	// ErrNegativeValue is returned when a numeric setting is negative
	ErrNegativeValue = errors.New("configuration value must not be negative")
	// ErrRelativePath is returned when a path setting is not absolute
	ErrRelativePath = errors.New("configuration path must be absolute")
	// ErrUnknownStrategy is returned for an unrecognized escalation strategy name
	ErrUnknownStrategy = errors.New("unknown escalation strategy")
	// ErrGraceBounds is returned when grace window durations contradict each other
	ErrGraceBounds = errors.New("grace window bounds are inconsistent")
	// ErrLoadMultiplier is returned when the load multiplier would shrink windows
	ErrLoadMultiplier = errors.New("load multiplier must be at least 1")
)

// knownStrategies are the names accepted in escalation.disabled_strategies.
var knownStrategies = map[string]struct{}{
	escalate.StrategyCachedPrivileged:    {},
	escalate.StrategyInteractivePrompt:   {},
	escalate.StrategyAlternatePromptTool: {},
	escalate.StrategyPolicyKitPrompt:     {},
	escalate.StrategyDirectUnprivileged:  {},
}

// Load reads, parses, and validates the configuration at path. The file is
// opened through the symlink-refusing file layer.
func Load(path string) (*Spec, error) {
	if path == "" {
		return nil, ErrInvalidConfigPath
	}

	file, err := safefileio.SafeOpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, MaxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if len(content) > MaxConfigFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrConfigTooLarge, path, MaxConfigFileSize)
	}

	return Parse(content)
}

// Parse unmarshals and validates a configuration document. An empty document
// is valid and materializes every subsystem default.
func Parse(content []byte) (*Spec, error) {
	var spec Spec
	if err := toml.Unmarshal(content, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the document for values the subsystems would misbehave on.
func (s *Spec) Validate() error {
	if err := s.validateSession(); err != nil {
		return err
	}
	if err := s.validateValidator(); err != nil {
		return err
	}
	if err := s.validateExecutor(); err != nil {
		return err
	}
	if err := s.validateEscalation(); err != nil {
		return err
	}
	if err := s.validateGrace(); err != nil {
		return err
	}
	return s.validateTerminate()
}

func (s *Spec) validateSession() error {
	if s.Session.TTL < 0 {
		return fmt.Errorf("%w: session.ttl", ErrNegativeValue)
	}
	return nil
}

func (s *Spec) validateValidator() error {
	if s.Validator.MaxArguments < 0 {
		return fmt.Errorf("%w: validator.max_arguments", ErrNegativeValue)
	}
	if s.Validator.MaxArgLength < 0 {
		return fmt.Errorf("%w: validator.max_arg_length", ErrNegativeValue)
	}
	for _, path := range s.Validator.ExtraBinaries {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("%w: validator.extra_binaries entry %q", ErrRelativePath, path)
		}
	}
	return nil
}

func (s *Spec) validateExecutor() error {
	if s.Executor.Timeout != nil && *s.Executor.Timeout < 0 {
		return fmt.Errorf("%w: executor.timeout", ErrNegativeValue)
	}
	if s.Executor.OutputSizeLimit != nil && *s.Executor.OutputSizeLimit < 0 {
		return fmt.Errorf("%w: executor.output_size_limit", ErrNegativeValue)
	}
	return nil
}

func (s *Spec) validateEscalation() error {
	if s.Escalation.ProbeTimeout < 0 {
		return fmt.Errorf("%w: escalation.probe_timeout", ErrNegativeValue)
	}
	if s.Escalation.PromptTimeout < 0 {
		return fmt.Errorf("%w: escalation.prompt_timeout", ErrNegativeValue)
	}
	if s.Escalation.AskpassPath != "" && !filepath.IsAbs(s.Escalation.AskpassPath) {
		return fmt.Errorf("%w: escalation.askpass_path %q", ErrRelativePath, s.Escalation.AskpassPath)
	}
	for _, name := range s.Escalation.DisabledStrategies {
		if _, ok := knownStrategies[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
	}
	return nil
}

func (s *Spec) validateGrace() error {
	g := s.Grace
	switch {
	case g.InitialSpan < 0:
		return fmt.Errorf("%w: grace.initial_span", ErrNegativeValue)
	case g.BaseDuration < 0:
		return fmt.Errorf("%w: grace.base_duration", ErrNegativeValue)
	case g.MaxDuration < 0:
		return fmt.Errorf("%w: grace.max_duration", ErrNegativeValue)
	case g.ExtensionsCap < 0:
		return fmt.Errorf("%w: grace.extensions_cap", ErrNegativeValue)
	case g.HighSecurityClamp < 0:
		return fmt.Errorf("%w: grace.high_security_clamp", ErrNegativeValue)
	case g.LoadThreshold < 0:
		return fmt.Errorf("%w: grace.load_threshold", ErrNegativeValue)
	}
	if g.LoadMultiplier != 0 && g.LoadMultiplier < 1 {
		return fmt.Errorf("%w: got %v", ErrLoadMultiplier, g.LoadMultiplier)
	}
	if g.HighSecurityMarker != "" && !filepath.IsAbs(g.HighSecurityMarker) {
		return fmt.Errorf("%w: grace.high_security_marker %q", ErrRelativePath, g.HighSecurityMarker)
	}
	if g.MaxDuration > 0 && g.BaseDuration > 0 && g.MaxDuration < g.BaseDuration {
		return fmt.Errorf("%w: max_duration %ds below base_duration %ds", ErrGraceBounds, g.MaxDuration, g.BaseDuration)
	}
	if g.HighSecurityClamp > 0 && g.BaseDuration > 0 && g.HighSecurityClamp > g.BaseDuration {
		return fmt.Errorf("%w: high_security_clamp %ds above base_duration %ds", ErrGraceBounds, g.HighSecurityClamp, g.BaseDuration)
	}
	return nil
}

func (s *Spec) validateTerminate() error {
	if s.Terminate.WaitTimeout < 0 {
		return fmt.Errorf("%w: terminate.wait_timeout", ErrNegativeValue)
	}
	if s.Terminate.SignalTimeout < 0 {
		return fmt.Errorf("%w: terminate.signal_timeout", ErrNegativeValue)
	}
	if s.Terminate.KillPath != "" && !filepath.IsAbs(s.Terminate.KillPath) {
		return fmt.Errorf("%w: terminate.kill_path %q", ErrRelativePath, s.Terminate.KillPath)
	}
	return nil
}
