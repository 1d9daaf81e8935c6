package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestThreadStore(t *testing.T, ttl time.Duration) (*ThreadStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewThreadStore(client, ttl), mr
}

func TestThreadStoreMissReturnsEmpty(t *testing.T) {
	store, _ := newTestThreadStore(t, time.Hour)

	threadID, err := store.Lookup(context.Background(), "15551234567")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if threadID != "" {
		t.Fatalf("expected miss, got %q", threadID)
	}
}

func TestThreadStoreSaveAndLookup(t *testing.T) {
	store, mr := newTestThreadStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Save(ctx, "15551234567", "thread_abc"); err != nil {
		t.Fatalf("save: %v", err)
	}

	threadID, err := store.Lookup(ctx, "15551234567")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if threadID != "thread_abc" {
		t.Fatalf("expected thread_abc, got %q", threadID)
	}

	ttl := mr.TTL("thread:wa:15551234567")
	if ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
}

func TestThreadStoreExpiry(t *testing.T) {
	store, mr := newTestThreadStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, "15551234567", "thread_abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	threadID, err := store.Lookup(ctx, "15551234567")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if threadID != "" {
		t.Fatalf("expected expired entry, got %q", threadID)
	}
}

func TestThreadStoreNilClient(t *testing.T) {
	if store := NewThreadStore(nil, time.Hour); store != nil {
		t.Fatal("nil client should yield nil store")
	}

	var store *ThreadStore
	threadID, err := store.Lookup(context.Background(), "15551234567")
	if err != nil || threadID != "" {
		t.Fatalf("nil store lookup should be a silent miss, got %q, %v", threadID, err)
	}
	if err := store.Save(context.Background(), "15551234567", "thread_abc"); err != nil {
		t.Fatalf("nil store save should be a no-op, got %v", err)
	}
}
