// Package ledger defines the key-value contract the exchange core runs
// against: get/put/delete/exists plus a selector-based secondary-index query,
// grouped into per-invocation transactions. Every public exchange operation
// executes inside exactly one Tx so the backing store can detect stale writes
// and commit or reject the invocation as a whole.
package ledger

import "context"

type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

type Tx interface {
	// Get returns the stored document bytes, or ErrNotFound.
	Get(ctx context.Context, id string) ([]byte, error)
	// Put stores doc under id, overwriting any existing document.
	Put(ctx context.Context, id string, doc []byte) error
	// Delete removes the document, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	// Query evaluates a selector against the store's secondary index.
	// Stores without indexing capability return ErrQueryUnsupported.
	Query(ctx context.Context, sel Selector) (Iterator, error)
	// Commit applies all writes atomically; it returns ErrConflict when a
	// document read or written in this Tx changed under a concurrent commit.
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Iterator interface {
	Next() bool
	Doc() []byte
	Err() error
	Close()
}
