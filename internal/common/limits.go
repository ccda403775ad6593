// Package common provides shared data types and constants used throughout privgate.
//
//nolint:revive // "common" is an appropriate name for shared utilities package
package common

import "fmt"

// Numeric is a constraint for numeric types that can be used with OptionalValue.
type Numeric interface {
	~int | ~int64
}

// OptionalValue represents an optional configuration value that can be:
// - Unset (nil) - use default or inherit from the policy level
// - Zero (0) - explicitly set to unlimited/disabled
// - Positive value - explicitly set to a specific value
//
// This type provides type safety and explicit semantics compared to using *T directly.
type OptionalValue[T Numeric] struct {
	value *T
}

// NewOptionalValueFromPtr creates an OptionalValue from an existing pointer.
func NewOptionalValueFromPtr[T Numeric](ptr *T) OptionalValue[T] {
	return OptionalValue[T]{value: ptr}
}

// NewUnsetOptionalValue creates an unset OptionalValue (will use default or inherit).
func NewUnsetOptionalValue[T Numeric]() OptionalValue[T] {
	return OptionalValue[T]{value: nil}
}

// NewOptionalValue creates an OptionalValue with the specified value.
func NewOptionalValue[T Numeric](value T) OptionalValue[T] {
	return OptionalValue[T]{value: &value}
}

// IsSet returns true if the value has been explicitly set (non-nil).
func (o OptionalValue[T]) IsSet() bool {
	return o.value != nil
}

// IsUnlimited returns true if the value is explicitly set to unlimited/disabled (0).
// Returns false if the value is unset (nil).
func (o OptionalValue[T]) IsUnlimited() bool {
	return o.value != nil && *o.value == 0
}

// Value returns the value.
// Panics if the value is not set (IsSet() == false).
// Callers must check IsSet() before calling Value().
func (o OptionalValue[T]) Value() T {
	if o.value == nil {
		panic("OptionalValue.Value() called on unset value: use IsSet() to check if the value is set before calling Value()")
	}
	return *o.value
}

// ErrInvalidOutputLimit is returned when an invalid output limit value is encountered
type ErrInvalidOutputLimit struct {
	Value   any
	Context string
}

func (e ErrInvalidOutputLimit) Error() string {
	return fmt.Sprintf("invalid output limit value %v in %s", e.Value, e.Context)
}

// DefaultOutputLimit is how much captured child output is retained when no
// limit is configured (1MB). Scan tools can be chatty; anything beyond this
// is truncated, not buffered.
const DefaultOutputLimit = 1 * 1024 * 1024

// OutputLimit represents a captured-output size limit.
// It distinguishes between three states:
// - Unset (use the policy default)
// - Zero (unlimited capture)
// - Positive value (limit in bytes)
type OutputLimit struct {
	OptionalValue[int64]
}

// NewUnsetOutputLimit creates an unset OutputLimit (the policy default applies).
func NewUnsetOutputLimit() OutputLimit {
	return OutputLimit{NewUnsetOptionalValue[int64]()}
}

// NewOutputLimit creates an OutputLimit with the specified size in bytes.
// Returns error if bytes is negative.
func NewOutputLimit(bytes int64) (OutputLimit, error) {
	if bytes < 0 {
		return OutputLimit{}, ErrInvalidOutputLimit{
			Value:   bytes,
			Context: "output limit cannot be negative",
		}
	}
	return OutputLimit{NewOptionalValue(bytes)}, nil
}

// ResolveOutputLimit resolves the effective output limit following the hierarchy:
// 1. Per-call limit (if set; 0 means unlimited)
// 2. Policy-level limit (if set; 0 means unlimited)
// 3. DefaultOutputLimit
func ResolveOutputLimit(callLimit, policyLimit OutputLimit) OutputLimit {
	if callLimit.IsSet() {
		return callLimit
	}
	if policyLimit.IsSet() {
		return policyLimit
	}
	limit, _ := NewOutputLimit(DefaultOutputLimit)
	return limit
}
