package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemStore_SetGetRoundTrip(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	type payload struct {
		Sequence string `json:"sequence"`
	}
	if err := m.Set(ctx, "k1", payload{Sequence: "42"}, SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got payload
	if err := m.Get(ctx, "k1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Sequence != "42" {
		t.Fatalf("expected sequence 42, got %q", got.Sequence)
	}
}

func TestMemStore_GetMissingKeyReturnsErrNotFound(t *testing.T) {
	m := NewMemStore()
	var out any
	err := m.Get(context.Background(), "missing", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_SetWithTTLExpires(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	if err := m.Set(ctx, "k1", "v", SetOptions{TTL: 10 * time.Millisecond}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err := m.Exists(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("expected key to exist immediately after Set, got ok=%v err=%v", ok, err)
	}

	time.Sleep(20 * time.Millisecond)

	ok, err = m.Exists(ctx, "k1")
	if err != nil || ok {
		t.Fatalf("expected key to have expired, got ok=%v err=%v", ok, err)
	}

	var out string
	if err := m.Get(ctx, "k1", &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired key, got %v", err)
	}
}

func TestMemStore_Del(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	_ = m.Set(ctx, "k1", "v", SetOptions{})
	if err := m.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	ok, err := m.Exists(ctx, "k1")
	if err != nil || ok {
		t.Fatalf("expected key gone after Del, got ok=%v err=%v", ok, err)
	}
}

func TestMemStore_ListKeysFiltersByPrefixAndExpiry(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	_ = m.Set(ctx, "p:a", "1", SetOptions{})
	_ = m.Set(ctx, "p:b", "2", SetOptions{})
	_ = m.Set(ctx, "q:c", "3", SetOptions{})
	_ = m.Set(ctx, "p:d", "4", SetOptions{TTL: time.Millisecond})

	time.Sleep(5 * time.Millisecond)

	keys, err := m.ListKeys(ctx, "p:")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "p:a" || keys[1] != "p:b" {
		t.Fatalf("expected [p:a p:b], got %v", keys)
	}
}

func TestMemStore_WithLock_SerializesAgainstConcurrentHolder(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = m.WithLock(ctx, "channel:p1", LockOptions{TTL: time.Second}, func(ctx context.Context) (any, error) {
			close(entered)
			<-release
			return nil, nil
		})
	}()
	<-entered

	_, err := m.WithLock(ctx, "channel:p1", LockOptions{TTL: time.Second, OnBusy: OnBusyThrow}, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy while held, got %v", err)
	}

	out, err := m.WithLock(ctx, "channel:p1", LockOptions{TTL: time.Second, OnBusy: OnBusySkip}, func(ctx context.Context) (any, error) {
		return "ran", nil
	})
	if err != nil || out != nil {
		t.Fatalf("expected OnBusySkip to return (nil, nil), got %v, %v", out, err)
	}

	close(release)
}

func TestMemStore_WithLock_ReleasesAfterFn(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	out, err := m.WithLock(ctx, "channel:p1", LockOptions{TTL: time.Second}, func(ctx context.Context) (any, error) {
		return "done", nil
	})
	if err != nil || out != "done" {
		t.Fatalf("expected (done, nil), got %v, %v", out, err)
	}

	// Lock must be released even though the key itself was deleted on release.
	out2, err := m.WithLock(ctx, "channel:p1", LockOptions{TTL: time.Second}, func(ctx context.Context) (any, error) {
		return "again", nil
	})
	if err != nil || out2 != "again" {
		t.Fatalf("expected lock to be reacquirable after release, got %v, %v", out2, err)
	}
}

func TestMemStore_WithLock_ReclaimsExpiredLock(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	entered := make(chan struct{})
	go func() {
		_, _ = m.WithLock(ctx, "channel:p1", LockOptions{TTL: time.Millisecond}, func(ctx context.Context) (any, error) {
			close(entered)
			time.Sleep(20 * time.Millisecond)
			return nil, nil
		})
	}()
	<-entered
	time.Sleep(10 * time.Millisecond) // let the TTL lapse while the first holder is still "working"

	out, err := m.WithLock(ctx, "channel:p1", LockOptions{TTL: time.Second, OnBusy: OnBusyThrow}, func(ctx context.Context) (any, error) {
		return "reclaimed", nil
	})
	if err != nil || out != "reclaimed" {
		t.Fatalf("expected the expired lock to be reclaimable, got %v, %v", out, err)
	}
}
