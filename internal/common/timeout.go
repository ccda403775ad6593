// Package common provides shared data types and constants used throughout privgate.
//
//nolint:revive // "common" is an appropriate name for shared utilities package
package common

import (
	"fmt"
	"time"
)

// ErrInvalidTimeout is returned when an invalid timeout value is encountered
type ErrInvalidTimeout struct {
	Value   any
	Context string
}

func (e ErrInvalidTimeout) Error() string {
	return fmt.Sprintf("invalid timeout value %v in %s", e.Value, e.Context)
}

const (
	// DefaultTimeout is used when no timeout is explicitly set
	DefaultTimeout = 60 // seconds

	// MaxTimeout defines the maximum allowed timeout value (24 hours).
	// Long-running full-system scans stay well under this.
	MaxTimeout = 86400 // 24 hours in seconds
)

// ResolveTimeout resolves the effective execution timeout from the hierarchy.
// It follows the precedence: per-call > tool profile > policy > default.
//
// Parameters:
// - callTimeout: per-invocation timeout (highest priority)
// - profileTimeout: timeout from the admitted tool's profile (scans run long)
// - policyTimeout: deployment policy timeout (lowest explicit priority)
//
// Returns the resolved timeout in seconds. A value of 0 means unlimited
// execution; a positive value means timeout after N seconds.
func ResolveTimeout(callTimeout, profileTimeout, policyTimeout *int) int {
	switch {
	case callTimeout != nil:
		return *callTimeout
	case profileTimeout != nil:
		return *profileTimeout
	case policyTimeout != nil:
		return *policyTimeout
	default:
		return DefaultTimeout
	}
}

// IsUnlimitedTimeout returns true if the given timeout value represents unlimited execution.
// A timeout value of 0 means unlimited execution.
func IsUnlimitedTimeout(timeout int) bool {
	return timeout == 0
}

// ValidateTimeout validates a timeout configuration value.
// - nil: valid (unset, will use default)
// - *0: valid (unlimited execution)
// - *N (N>0 && N<=MaxTimeout): valid (N seconds timeout)
// - *N (N<0 || N>MaxTimeout): invalid
func ValidateTimeout(timeout *int, context string) error {
	if timeout == nil {
		return nil
	}

	value := *timeout

	if value < 0 {
		return ErrInvalidTimeout{
			Value:   value,
			Context: context + " (negative timeouts not allowed)",
		}
	}
	if value > MaxTimeout {
		return ErrInvalidTimeout{
			Value:   value,
			Context: context + " (exceeds maximum allowed value)",
		}
	}
	return nil
}

// TimeoutDuration converts a resolved timeout in seconds to a time.Duration.
// An unlimited timeout (0) converts to 0, which callers must treat as "no deadline".
func TimeoutDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
