package grace

import (
	"log/slog"
	"sync"
	"time"
)

// Window tracks one logical operation's grace period. Its length is fixed at
// open time; only the extension count and the closed flag change afterwards.
// Safe for concurrent use.
type Window struct {
	operationID   string
	openedAt      time.Time
	initialSpan   time.Duration
	duration      time.Duration
	extensionsCap int
	logger        *slog.Logger
	now           func() time.Time

	mu             sync.Mutex
	extensionsUsed int
	exhausted      bool
	closed         bool
}

// OperationID returns the identifier the window was opened under.
func (w *Window) OperationID() string {
	return w.operationID
}

// Duration returns the tuned window length decided at open time.
func (w *Window) Duration() time.Duration {
	return w.duration
}

// ExtensionsUsed returns how many extensions the window has granted so far.
func (w *Window) ExtensionsUsed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.extensionsUsed
}

// IsWithin reports whether a sub-operation may still run under this window
// without re-prompting. Consultations within the initial span are free; each
// one past it counts as an extension. Once the extension cap is exceeded the
// window answers false for good, even if its duration has not elapsed.
func (w *Window) IsWithin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.exhausted {
		return false
	}

	elapsed := w.now().Sub(w.openedAt)
	if elapsed >= w.duration {
		return false
	}
	if elapsed <= w.initialSpan {
		return true
	}

	w.extensionsUsed++
	if w.extensionsUsed > w.extensionsCap {
		w.exhausted = true
		w.logger.Warn("Grace window extension cap exceeded, re-authentication required",
			"operation_id", w.operationID,
			"extensions_used", w.extensionsUsed,
			"extensions_cap", w.extensionsCap)
		return false
	}

	w.logger.Info("Grace window extended",
		"operation_id", w.operationID,
		"elapsed", elapsed,
		"extensions_used", w.extensionsUsed,
		"extensions_cap", w.extensionsCap)

	return true
}

// Close marks the window finished. Idempotent and safe to call on a window
// that already expired or exhausted its extensions.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	w.logger.Info("Grace window closed",
		"operation_id", w.operationID,
		"extensions_used", w.extensionsUsed)
}
