// Package session implements the session store (C9): server-side session
// data keyed by an opaque sid, plus a cookie transport that carries the sid
// to the browser.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oidcware/rp/errs"
	"github.com/oidcware/rp/token"
)

// User is the authenticated identity bound to a session: the subject plus
// whatever standard OIDC profile claims the provider included in the
// id_token.
type User struct {
	Subject string
	Claims  map[string]any
}

// FlowState is the (code_verifier, nonce) tuple recorded for one in-flight
// authorization attempt, keyed by its state value. This mirrors state.Entry
// but lives inside session Data per the data model's flow_states field —
// some deployments keep per-session flow state instead of (or alongside) a
// shared state.Store.
type FlowState struct {
	CodeVerifier string
	Nonce        string
	CreatedAt    time.Time
}

// Data is everything a session carries.
type Data struct {
	TokenSet   *token.TokenSet
	User       *User
	FlowStates map[string]FlowState
	CSRFToken  string
}

// Store is the C9 abstract session interface.
type Store interface {
	// Set persists data under a newly generated sid and returns it.
	Set(ctx context.Context, data *Data, ttl time.Duration) (sid string, err error)
	// Get returns the session's data, or errs.SessionNotFound.
	Get(ctx context.Context, sid string) (*Data, error)
	// Destroy erases the session.
	Destroy(ctx context.Context, sid string) error
	// Touch resets the session's expiry. It replaces the stored payload
	// with data if data is non-nil and leaves the payload unchanged
	// otherwise.
	Touch(ctx context.Context, sid string, data *Data, ttl time.Duration) error
}

type entry struct {
	data      *Data
	expiresAt time.Time
}

// MemoryStore is the default in-process Store: a map guarded by a read/write
// lock, per §5's resource model.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryStore constructs a MemoryStore with a background sweep of
// expired sessions every sweepInterval (defaults to a minute if <= 0).
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &MemoryStore{
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop(sweepInterval)
	return s
}

// Close stops the background sweep goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryStore) Set(_ context.Context, data *Data, ttl time.Duration) (string, error) {
	sid := uuid.New().String()
	s.mu.Lock()
	s.entries[sid] = entry{data: data, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return sid, nil
}

func (s *MemoryStore) Get(_ context.Context, sid string) (*Data, error) {
	s.mu.RLock()
	e, ok := s.entries[sid]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.SessionNotFound, "session not found")
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, sid)
		s.mu.Unlock()
		return nil, errs.New(errs.SessionNotFound, "session expired")
	}
	return e.data, nil
}

func (s *MemoryStore) Destroy(_ context.Context, sid string) error {
	s.mu.Lock()
	delete(s.entries, sid)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, sid string, data *Data, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sid]
	if !ok {
		return errs.New(errs.SessionNotFound, "session not found")
	}
	if data != nil {
		e.data = data
	}
	e.expiresAt = time.Now().Add(ttl)
	s.entries[sid] = e
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
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
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, sid)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
