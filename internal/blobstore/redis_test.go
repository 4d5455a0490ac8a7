package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client)
}

func TestRedisStorePing(t *testing.T) {
	s := newTestRedisStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestRedisStoreFetchNotFound(t *testing.T) {
	s := newTestRedisStore(t)
	_, err := s.Fetch(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	want := []byte{1, 2, 3, 4, 5}

	if err := s.Store(ctx, "key", want); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := s.Fetch(ctx, "key")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRedisStoreOverwrite(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	if err := s.Store(ctx, "key", []byte("first")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := s.Store(ctx, "key", []byte("second")); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := s.Fetch(ctx, "key")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}

func TestNewRedisStoreWithConfigRejectsMissingAddr(t *testing.T) {
	_, err := NewRedisStoreWithConfig(DefaultRedisConfig())
	if err == nil {
		t.Fatal("expected error for missing addr")
	}
}

func TestRedisStoreCloseStopsFurtherUse(t *testing.T) {
	s := newTestRedisStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail against a closed client")
	}
}
