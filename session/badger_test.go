package session

import (
	"testing"
	"time"

	"github.com/oidcware/rp/errs"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStoreSetGet(t *testing.T) {
	s := newTestBadgerStore(t)

	sid, err := s.Set(t.Context(), &Data{User: &User{Subject: "user-1"}}, time.Hour)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, err := s.Get(t.Context(), sid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if data.User.Subject != "user-1" {
		t.Errorf("Subject = %q", data.User.Subject)
	}
}

func TestBadgerStoreGetMissing(t *testing.T) {
	s := newTestBadgerStore(t)

	_, err := s.Get(t.Context(), "nonexistent")
	if !errs.Is(err, errs.SessionNotFound) {
		t.Fatalf("err = %v, want SESSION_NOT_FOUND", err)
	}
}

func TestBadgerStoreDestroy(t *testing.T) {
	s := newTestBadgerStore(t)

	sid, _ := s.Set(t.Context(), &Data{}, time.Hour)
	if err := s.Destroy(t.Context(), sid); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := s.Get(t.Context(), sid); !errs.Is(err, errs.SessionNotFound) {
		t.Fatalf("err = %v, want SESSION_NOT_FOUND after Destroy", err)
	}
}

func TestBadgerStoreTouchPreservesPayloadWhenNil(t *testing.T) {
	s := newTestBadgerStore(t)

	sid, _ := s.Set(t.Context(), &Data{User: &User{Subject: "user-1"}}, time.Hour)
	if err := s.Touch(t.Context(), sid, nil, 2*time.Hour); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	data, err := s.Get(t.Context(), sid)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if data.User.Subject != "user-1" {
		t.Errorf("Subject = %q, want unchanged", data.User.Subject)
	}
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	sid, err := store.Set(t.Context(), &Data{User: &User{Subject: "user-1"}}, time.Hour)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewBadgerStore(dir)
	if err != nil {
		t.Fatalf("reopen NewBadgerStore: %v", err)
	}
	defer reopened.Close()

	data, err := reopened.Get(t.Context(), sid)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if data.User.Subject != "user-1" {
		t.Errorf("Subject = %q after reopen", data.User.Subject)
	}
}
