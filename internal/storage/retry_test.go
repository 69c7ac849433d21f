package storage

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStore struct {
	calls    atomic.Int64
	failures int64
	url      string
	err      error
}

func (f *fakeStore) Store(_ context.Context, _ []byte, _, _ string) (string, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return "", f.err
	}
	return f.url, nil
}

func TestLinearBackOffDelays(t *testing.T) {
	b := &linearBackOff{interval: time.Second}

	for i, want := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second} {
		if got := b.NextBackOff(); got != want {
			t.Errorf("Delay before retry %d: expected %v, got %v", i+1, want, got)
		}
	}

	b.Reset()
	if got := b.NextBackOff(); got != time.Second {
		t.Errorf("Expected reset back-off to restart at %v, got %v", time.Second, got)
	}
}

func TestRetryingStoreSucceedsAfterTransientFailures(t *testing.T) {
	inner := &fakeStore{failures: 2, url: "https://ucarecdn.com/abc/", err: errors.New("transient")}
	store := NewRetrying(inner, RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond})

	url, err := store.Store(context.Background(), []byte("payload"), "file.txt", "text/plain")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if url != inner.url {
		t.Errorf("Expected URL %q, got %q", inner.url, url)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestRetryingStoreExhaustsAttempts(t *testing.T) {
	inner := &fakeStore{failures: 100, err: errors.New("backend down")}
	store := NewRetrying(inner, RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond})

	_, err := store.Store(context.Background(), []byte("payload"), "file.txt", "text/plain")
	if err == nil {
		t.Fatal("Expected an error after exhausting attempts")
	}
	if !errors.Is(err, inner.err) {
		t.Errorf("Expected final error to wrap the last failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "5 attempts") {
		t.Errorf("Expected error to mention the attempt budget, got %q", err.Error())
	}
	if got := inner.calls.Load(); got != 5 {
		t.Errorf("Expected exactly 5 attempts, got %d", got)
	}
}

func TestRetryingStoreStopsOnCancelledContext(t *testing.T) {
	inner := &fakeStore{failures: 100, err: errors.New("backend down")}
	store := NewRetrying(inner, RetryPolicy{MaxAttempts: 5, Interval: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Store(ctx, []byte("payload"), "file.txt", "text/plain"); err == nil {
		t.Fatal("Expected an error for cancelled context")
	}
	if got := inner.calls.Load(); got > 1 {
		t.Errorf("Expected at most one attempt after cancellation, got %d", got)
	}
}

func TestNewRetryingAppliesDefaults(t *testing.T) {
	store := NewRetrying(&fakeStore{}, RetryPolicy{})
	def := DefaultRetryPolicy()
	if store.policy.MaxAttempts != def.MaxAttempts {
		t.Errorf("Expected default max attempts %d, got %d", def.MaxAttempts, store.policy.MaxAttempts)
	}
	if store.policy.Interval != def.Interval {
		t.Errorf("Expected default interval %v, got %v", def.Interval, store.policy.Interval)
	}
}
