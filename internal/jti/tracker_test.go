package jti

import (
	"testing"
	"time"

	"github.com/oidcware/rp/errs"
)

func TestCheckAndStoreAllowsFirstUse(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	defer tr.Close()

	if err := tr.CheckAndStore(t.Context(), "jti-1", "https://issuer.example", "user-1", time.Hour); err != nil {
		t.Fatalf("CheckAndStore: %v", err)
	}
}

func TestCheckAndStoreRejectsReplay(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	defer tr.Close()

	if err := tr.CheckAndStore(t.Context(), "jti-1", "https://issuer.example", "user-1", time.Hour); err != nil {
		t.Fatalf("first CheckAndStore: %v", err)
	}
	err := tr.CheckAndStore(t.Context(), "jti-1", "https://issuer.example", "user-1", time.Hour)
	if !errs.Is(err, errs.ReplayDetected) {
		t.Fatalf("err = %v, want REPLAY_DETECTED", err)
	}
}

func TestCheckAndStoreAllowsReuseAfterExpiry(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	defer tr.Close()

	if err := tr.CheckAndStore(t.Context(), "jti-1", "https://issuer.example", "user-1", -time.Second); err != nil {
		t.Fatalf("first CheckAndStore: %v", err)
	}
	if err := tr.CheckAndStore(t.Context(), "jti-1", "https://issuer.example", "user-1", time.Hour); err != nil {
		t.Fatalf("second CheckAndStore after expiry: %v", err)
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	tr := NewMemoryTracker(time.Minute)
	defer tr.Close()

	_ = tr.CheckAndStore(t.Context(), "jti-1", "https://issuer.example", "user-1", -time.Second)
	tr.sweep()

	tr.mu.Lock()
	n := len(tr.entries)
	tr.mu.Unlock()
	if n != 0 {
		t.Errorf("entries after sweep = %d, want 0", n)
	}
}

func TestCloseStopsSweepLoop(t *testing.T) {
	tr := NewMemoryTracker(time.Millisecond)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// second Close must not panic (sync.Once guards the channel close)
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
