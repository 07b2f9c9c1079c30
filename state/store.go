// Package state implements the authorization-flow state store (C7): the
// single-use (state, nonce, code_verifier) tuples that bind a callback
// request back to the login attempt that started it.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/oidcware/rp/errs"
)

// Entry is the tuple recorded for one in-flight authorization request.
type Entry struct {
	Nonce        string
	CodeVerifier string
	CreatedAt    time.Time
}

// Store generates and consumes per-login state. Implementations must make
// AddState/GetStateEntry/RemoveState safe for concurrent use — a browser can
// race its own callback against a tab the user abandoned.
type Store interface {
	// AddState records a new tuple under state. It fails with
	// errs.StateCollision if state is already present — colliding on a
	// ≥128-bit random value indicates either a broken RNG or a replay.
	AddState(ctx context.Context, state, nonce, codeVerifier string) error
	// GetStateEntry is a read-only lookup; it does not consume the entry.
	GetStateEntry(ctx context.Context, state string) (Entry, bool)
	// RemoveState consumes (deletes) the entry. Called once per callback,
	// whether or not the callback ultimately succeeds, so the tuple can
	// never be replayed.
	RemoveState(ctx context.Context, state string)
}

// MemoryStore is the default in-process Store, backed by a map with an
// optional periodic sweep of stale entries.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryStore constructs a MemoryStore. Entries older than ttl are
// dropped by the background sweep; ttl <= 0 disables the sweep (entries are
// only ever removed by RemoveState).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweepLoop()
	}
	return s
}

// Close stops the background sweep goroutine, if running.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) AddState(_ context.Context, state, nonce, codeVerifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[state]; exists {
		return errs.New(errs.StateCollision, "state already in use")
	}
	s.entries[state] = Entry{
		Nonce:        nonce,
		CodeVerifier: codeVerifier,
		CreatedAt:    time.Now(),
	}
	return nil
}

func (s *MemoryStore) GetStateEntry(_ context.Context, state string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[state]
	return e, ok
}

func (s *MemoryStore) RemoveState(_ context.Context, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, state)
}

func (s *MemoryStore) sweepLoop() {
	interval := s.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
