// Package kv defines the persistent key-value engine contract the
// Version Chain Store depends on (spec.md section 6): two named stores,
// "chains" and "records", string keys, opaque structured values, and a
// scoped transaction abstraction that the Store uses to make every
// operation atomic.
package kv

import (
	"context"
	"errors"
)

// ErrTxClosed is returned by any Txn method called after Commit or
// Rollback has already run.
var ErrTxClosed = errors.New("kv: transaction already closed")

// Engine is the pluggable persistent store the core depends on. A
// concrete Engine owns exactly one database; concurrent Engine values
// pointed at the same underlying database are unsupported (spec.md
// section 5: the Store assumes exclusive ownership of its namespaces).
type Engine interface {
	// Get returns the value at (store, key), or nil with ok=false if the
	// key does not exist. The returned slice is owned by the caller.
	Get(ctx context.Context, store, key string) (val []byte, ok bool, err error)
	// Put writes value at (store, key). The engine must isolate the
	// stored bytes from later mutation of val by the caller.
	Put(ctx context.Context, store, key string, val []byte) error
	// Remove deletes (store, key). Removing an absent key is not an
	// error.
	Remove(ctx context.Context, store, key string) error
	// Keys returns every key currently present in store.
	Keys(ctx context.Context, store string) ([]string, error)
	// Transaction opens a scope holding an exclusive lock across the
	// named stores until Commit or Rollback is called.
	Transaction(ctx context.Context, stores ...string) (Txn, error)
}

// Txn exposes the same read/write surface as Engine, scoped to one
// in-flight transaction. Every Store Push, Commit and Abandon performs
// exactly one Transaction call and either Commits (persisting every write
// made through it) or Rollbacks (discarding them) before returning; Fetch
// and Inspect read through Engine.Get without a Transaction.
type Txn interface {
	Get(ctx context.Context, store, key string) (val []byte, ok bool, err error)
	Put(ctx context.Context, store, key string, val []byte) error
	Remove(ctx context.Context, store, key string) error
	Keys(ctx context.Context, store string) ([]string, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Stores lists the two object stores the core reads and writes.
var Stores = []string{"chains", "records"}
