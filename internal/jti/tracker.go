// Package jti tracks the jti (JWT ID) claims of back-channel logout tokens
// to prevent replay: OIDC Back-Channel Logout 1.0 §2.6 requires the relying
// party to reject a logout token whose jti it has already processed.
package jti

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oidcware/rp/errs"
)

var (
	checkTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oidcrp",
		Subsystem: "jti",
		Name:      "check_total",
		Help:      "JTI replay checks by outcome.",
	}, []string{"outcome"})

	replayTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oidcrp",
		Subsystem: "jti",
		Name:      "replay_total",
		Help:      "Back-channel logout tokens rejected as replays.",
	})

	trackedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oidcrp",
		Subsystem: "jti",
		Name:      "tracked",
		Help:      "Current number of JTIs held for replay detection.",
	})
)

// Entry is one tracked back-channel logout token.
type Entry struct {
	JTI       string
	Issuer    string
	Subject   string
	FirstSeen time.Time
	ExpiresAt time.Time
}

// Tracker records jti values and rejects ones already seen within their
// lifetime.
type Tracker interface {
	// CheckAndStore atomically checks jti against the store and records it
	// with the given ttl. Returns errs.ReplayDetected if jti is already
	// tracked and not yet expired.
	CheckAndStore(ctx context.Context, jti, issuer, subject string, ttl time.Duration) error
	Close() error
}

// MemoryTracker is an in-process Tracker with a background sweep of
// expired entries.
type MemoryTracker struct {
	mu      sync.Mutex
	entries map[string]Entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMemoryTracker constructs a MemoryTracker, sweeping expired entries
// every sweepInterval (defaults to a minute if <= 0).
func NewMemoryTracker(sweepInterval time.Duration) *MemoryTracker {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	t := &MemoryTracker{
		entries: make(map[string]Entry),
		stopCh:  make(chan struct{}),
	}
	go t.sweepLoop(sweepInterval)
	return t
}

func (t *MemoryTracker) CheckAndStore(_ context.Context, jti, issuer, subject string, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if existing, ok := t.entries[jti]; ok && now.Before(existing.ExpiresAt) {
		checkTotal.WithLabelValues("replay_detected").Inc()
		replayTotal.Inc()
		return errs.New(errs.ReplayDetected, "back-channel logout token jti already processed")
	}

	t.entries[jti] = Entry{
		JTI:       jti,
		Issuer:    issuer,
		Subject:   subject,
		FirstSeen: now,
		ExpiresAt: now.Add(ttl),
	}
	checkTotal.WithLabelValues("stored").Inc()
	trackedGauge.Set(float64(len(t.entries)))
	return nil
}

func (t *MemoryTracker) Close() error {
	t.stopOnce.Do(func() { close(t.stopCh) })
	return nil
}

func (t *MemoryTracker) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *MemoryTracker) sweep() {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for jti, e := range t.entries {
		if now.After(e.ExpiresAt) {
			delete(t.entries, jti)
		}
	}
	trackedGauge.Set(float64(len(t.entries)))
}

var _ Tracker = (*MemoryTracker)(nil)
