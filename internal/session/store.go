// Package session keeps the in-memory record of successful interactive
// authentications so subsequent privileged calls within the TTL can skip
// re-prompting. The store is the only shared mutable state in the subsystem:
// a single mutex serializes every access. Nothing is persisted; a restarted
// process must not inherit a stale trust decision, so the store always
// starts empty.
package session

import (
	"sort"
	"sync"
	"time"
)

// SessionGlobal is the key for the process-wide session used to avoid
// redundant non-interactive privilege probes. Operation-specific callers use
// their own tags (e.g. "policy_install") with independent timestamps.
const SessionGlobal = "global"

// DefaultTTL is how long an authentication stays valid without a refresh.
const DefaultTTL = 5 * time.Minute

type entry struct {
	authenticatedAt time.Time
	ttl             time.Duration
}

// Info describes one live session for diagnostics. Ages only; timestamps
// stay inside the store.
type Info struct {
	Key       string
	Age       time.Duration
	Remaining time.Duration
}

// Store is a thread-safe map from session key to authenticated-at timestamp.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates an empty store. ttl <= 0 selects DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Start records a successful interactive authentication under key with the
// store's default TTL. An existing entry is overwritten. Empty keys are
// ignored so a buggy caller cannot accidentally extend global trust.
func (s *Store) Start(key string) {
	s.StartWithTTL(key, 0)
}

// StartWithTTL is Start with a per-key TTL override (0 = store default).
func (s *Store) StartWithTTL(key string, ttl time.Duration) {
	if key == "" {
		return
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{authenticatedAt: s.now(), ttl: ttl}
}

// Refresh bumps the timestamp of an existing session, extending it by its
// own TTL. Returns false when no live session exists under key; callers
// then need Start, not Refresh.
func (s *Store) Refresh(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		delete(s.entries, key)
		return false
	}
	e.authenticatedAt = s.now()
	s.entries[key] = e
	return true
}

// End deletes the session under key. Idempotent: ending an absent or
// already-expired session is not an error.
func (s *Store) End(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// IsValid reports whether a live session exists under key. Expired entries
// are swept opportunistically first, so a true result always means
// now - authenticated_at < ttl.
func (s *Store) IsValid(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	_, ok := s.entries[key]
	return ok
}

// SweepExpired removes every expired entry and returns how many were
// removed. Idempotent.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked()
}

// Snapshot lists live sessions (after a sweep) sorted by key, for the
// operator status surface.
func (s *Store) Snapshot() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	now := s.now()

	infos := make([]Info, 0, len(s.entries))
	for key, e := range s.entries {
		age := now.Sub(e.authenticatedAt)
		infos = append(infos, Info{
			Key:       key,
			Age:       age,
			Remaining: e.ttl - age,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

func (s *Store) sweepLocked() int {
	removed := 0
	for key, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *Store) expired(e entry) bool {
	return s.now().Sub(e.authenticatedAt) >= e.ttl
}
