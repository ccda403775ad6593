// Package grace bounds how long a long-running privileged operation may keep
// spawning sub-operations without re-prompting for credentials. A window is
// opened when the operation starts, consulted by every sub-operation it
// spawns, and closed when the operation ends. Repeated consultation past the
// initial span counts as an extension; a small cap on extensions keeps a
// single authenticated grant from being stretched indefinitely.
package grace

import (
	"errors"
	"log/slog"
	"time"
)

// Default policy values. The durations are tuned for scan-style operations
// that routinely run for tens of minutes.
const (
	// DefaultInitialSpan is how long a window covers sub-operations without
	// counting extensions.
	DefaultInitialSpan = 30 * time.Second

	// DefaultBaseDuration is the window length used when the caller does not
	// supply one.
	DefaultBaseDuration = 30 * time.Minute

	// DefaultMaxDuration is the hard ceiling no window may exceed, tuning
	// included.
	DefaultMaxDuration = 60 * time.Minute

	// DefaultExtensionsCap is the number of extensions granted before a
	// window stops answering true.
	DefaultExtensionsCap = 3

	// DefaultHighSecurityClamp replaces the window length on hosts that carry
	// the high security marker.
	DefaultHighSecurityClamp = 5 * time.Minute

	// DefaultLoadThreshold is the one-minute load average at or above which a
	// host counts as busy.
	DefaultLoadThreshold = 4.0

	// DefaultLoadMultiplier stretches the window length on busy hosts, since
	// operations legitimately take longer there.
	DefaultLoadMultiplier = 1.5
)

// ErrEmptyOperationID is returned when a window is opened without an
// operation ID.
var ErrEmptyOperationID = errors.New("operation ID must not be empty")

// Host reports the environment signals consulted once when a window opens.
// The production implementation reads a marker file and /proc/loadavg; tests
// substitute fixed values.
type Host interface {
	// HighSecurityMode reports whether the host carries the high security
	// marker.
	HighSecurityMode() bool

	// LoadAverage returns the one-minute system load average.
	LoadAverage() (float64, error)
}

// Config holds the policy knobs. The values are deployment-specific, so they
// are configuration rather than constants; zero fields fall back to the
// defaults above.
type Config struct {
	// InitialSpan is the free period before consultations count as
	// extensions.
	InitialSpan time.Duration

	// BaseDuration is the window length when the caller supplies none.
	BaseDuration time.Duration

	// MaxDuration caps every window length, tuning included.
	MaxDuration time.Duration

	// ExtensionsCap is the number of extensions granted per window.
	ExtensionsCap int

	// HighSecurityClamp is the ceiling applied on high security hosts.
	HighSecurityClamp time.Duration

	// LoadThreshold is the load average at or above which the host counts as
	// busy.
	LoadThreshold float64

	// LoadMultiplier stretches the window length on busy hosts.
	LoadMultiplier float64
}

// DefaultConfig returns the policy configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		InitialSpan:       DefaultInitialSpan,
		BaseDuration:      DefaultBaseDuration,
		MaxDuration:       DefaultMaxDuration,
		ExtensionsCap:     DefaultExtensionsCap,
		HighSecurityClamp: DefaultHighSecurityClamp,
		LoadThreshold:     DefaultLoadThreshold,
		LoadMultiplier:    DefaultLoadMultiplier,
	}
}

// Policy opens grace windows. Environment-sensitive tuning happens once per
// Open call; an open window never changes length afterwards.
type Policy struct {
	config Config
	host   Host
	logger *slog.Logger
	now    func() time.Time
}

// NewPolicy creates a grace-period policy. Zero config fields take their
// defaults. A nil host skips environment tuning entirely; a nil logger falls
// back to slog.Default().
func NewPolicy(config Config, host Host, logger *slog.Logger) *Policy {
	if config.InitialSpan <= 0 {
		config.InitialSpan = DefaultInitialSpan
	}
	if config.BaseDuration <= 0 {
		config.BaseDuration = DefaultBaseDuration
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = DefaultMaxDuration
	}
	if config.ExtensionsCap <= 0 {
		config.ExtensionsCap = DefaultExtensionsCap
	}
	if config.HighSecurityClamp <= 0 {
		config.HighSecurityClamp = DefaultHighSecurityClamp
	}
	if config.LoadThreshold <= 0 {
		config.LoadThreshold = DefaultLoadThreshold
	}
	if config.LoadMultiplier <= 1 {
		config.LoadMultiplier = DefaultLoadMultiplier
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{
		config: config,
		host:   host,
		logger: logger,
		now:    time.Now,
	}
}

// Open creates a window for one logical operation. A non-positive base falls
// back to the configured base duration, and any requested length is capped at
// the configured maximum before tuning.
//
// Tuning consults the host exactly once: on a high security host the length
// is clamped to the configured ceiling, otherwise a busy host stretches it by
// the configured multiplier (still capped at the maximum). A load reading
// failure leaves the length untouched.
func (p *Policy) Open(operationID string, base time.Duration) (*Window, error) {
	if operationID == "" {
		return nil, ErrEmptyOperationID
	}

	duration := base
	if duration <= 0 {
		duration = p.config.BaseDuration
	}
	if duration > p.config.MaxDuration {
		duration = p.config.MaxDuration
	}

	switch {
	case p.host == nil:
	case p.host.HighSecurityMode():
		if duration > p.config.HighSecurityClamp {
			duration = p.config.HighSecurityClamp
		}
		p.logger.Info("Grace window clamped for high security host",
			"operation_id", operationID,
			"duration", duration)
	default:
		load, err := p.host.LoadAverage()
		if err != nil {
			p.logger.Warn("Load average unavailable, skipping grace window tuning",
				"operation_id", operationID,
				"error", err)
			break
		}
		if load >= p.config.LoadThreshold {
			duration = time.Duration(float64(duration) * p.config.LoadMultiplier)
			if duration > p.config.MaxDuration {
				duration = p.config.MaxDuration
			}
			p.logger.Info("Grace window extended for busy host",
				"operation_id", operationID,
				"load_average", load,
				"duration", duration)
		}
	}

	w := &Window{
		operationID:   operationID,
		openedAt:      p.now(),
		initialSpan:   p.config.InitialSpan,
		duration:      duration,
		extensionsCap: p.config.ExtensionsCap,
		logger:        p.logger,
		now:           p.now,
	}

	p.logger.Info("Grace window opened",
		"operation_id", operationID,
		"duration", duration,
		"extensions_cap", p.config.ExtensionsCap)

	return w, nil
}
