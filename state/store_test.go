package state

import (
	"sync"
	"testing"
	"time"

	"github.com/oidcware/rp/errs"
)

func TestAddStateAndGetStateEntry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()

	if err := s.AddState(t.Context(), "state-1", "nonce-1", "verifier-1"); err != nil {
		t.Fatalf("AddState: %v", err)
	}
	e, ok := s.GetStateEntry(t.Context(), "state-1")
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if e.Nonce != "nonce-1" || e.CodeVerifier != "verifier-1" {
		t.Errorf("entry = %+v", e)
	}
}

func TestAddStateRejectsCollision(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()

	if err := s.AddState(t.Context(), "dup", "n1", "v1"); err != nil {
		t.Fatalf("AddState: %v", err)
	}
	err := s.AddState(t.Context(), "dup", "n2", "v2")
	if !errs.Is(err, errs.StateCollision) {
		t.Fatalf("err = %v, want STATE_COLLISION", err)
	}
}

func TestRemoveStateConsumesEntryOnce(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()

	if err := s.AddState(t.Context(), "state-1", "nonce-1", "verifier-1"); err != nil {
		t.Fatalf("AddState: %v", err)
	}
	s.RemoveState(t.Context(), "state-1")

	if _, ok := s.GetStateEntry(t.Context(), "state-1"); ok {
		t.Error("expected entry to be gone after RemoveState")
	}

	// Consuming again is a no-op, not an error.
	s.RemoveState(t.Context(), "state-1")
}

func TestGetStateEntryMissingReturnsFalse(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()

	if _, ok := s.GetStateEntry(t.Context(), "never-added"); ok {
		t.Error("expected missing state to report not found")
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%26))
			_ = s.AddState(t.Context(), key, "n", "v")
			s.GetStateEntry(t.Context(), key)
			s.RemoveState(t.Context(), key)
		}(i)
	}
	wg.Wait()
}
