// Package blobstore defines the external key->bytes service the pipeline
// engine reads remote FilePath endpoints from and writes them back to.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Fetch when the key does not exist.
var ErrNotFound = errors.New("blobstore: key not found")

// Store is the two-method contract the engine depends on. It is
// deliberately narrow: the core never needs more than fetch and store, and
// any backend (Redis, filesystem, in-memory) that implements these two
// methods can be dropped in without touching the engine.
type Store interface {
	// Fetch returns the bytes stored under key, or ErrNotFound.
	Fetch(ctx context.Context, key string) ([]byte, error)
	// Store persists bytes under key, overwriting any previous value.
	Store(ctx context.Context, key string, data []byte) error
}
