package blobstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreFetchNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Fetch(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
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

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore()
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

func TestMemoryStoreIndependentCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	original := []byte{1, 2, 3}
	if err := s.Store(ctx, "key", original); err != nil {
		t.Fatalf("store: %v", err)
	}
	original[0] = 99

	got, err := s.Fetch(ctx, "key")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got[0] != 1 {
		t.Fatalf("mutation of caller's slice leaked into store: got %v", got)
	}
}
