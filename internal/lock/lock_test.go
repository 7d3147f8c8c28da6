package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func withLocker(t *testing.T, ttl time.Duration) (*Locker, *Locker) {
	t.Helper()
	url := os.Getenv("SPHINXFIX_TEST_REDIS_URL")
	if url == "" {
		url = "redis://127.0.0.1:6379/15"
	}
	key := "sphinxfix:test:" + uuid.NewString()

	a, err := New(url, key, ttl)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		t.Skipf("redis unavailable for lock tests: %v", err)
	}

	b, err := New(url, key, ttl)
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return a, b
}

func TestAcquireIsExclusive(t *testing.T) {
	a, b := withLocker(t, time.Minute)
	ctx := context.Background()

	release, ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := b.Acquire(ctx); err != nil || ok {
		t.Fatalf("expected second acquire to be refused, got ok=%v err=%v", ok, err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	releaseB, ok, err := b.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, got ok=%v err=%v", ok, err)
	}
	_ = releaseB(ctx)
}

func TestStaleReleaseKeepsNewHolder(t *testing.T) {
	a, b := withLocker(t, 200*time.Millisecond)
	ctx := context.Background()

	releaseA, ok, err := a.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire a: ok=%v err=%v", ok, err)
	}
	time.Sleep(400 * time.Millisecond)

	releaseB, ok, err := b.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected expired lock to be taken over, got ok=%v err=%v", ok, err)
	}
	defer releaseB(ctx)

	if err := releaseA(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, ok, _ := a.Acquire(ctx); ok {
		t.Fatalf("expected stale release to leave b's lock in place")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New("redis://127.0.0.1:6379/0", "", time.Minute); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := New("redis://127.0.0.1:6379/0", "k", 0); err == nil {
		t.Fatalf("expected ttl error")
	}
	if _, err := New("not a url", "k", time.Minute); err == nil {
		t.Fatalf("expected url parse error")
	}
}
