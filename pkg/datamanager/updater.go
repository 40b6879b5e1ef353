package datamanager

import (
	"context"

	"tactical/pkg/chainkey"
	"tactical/pkg/store"
	"tactical/pkg/version"
)

// Updater is a mutable handle on one observed record. Application code
// edits Value in place and calls Commit to layer it onto the chain as a
// new local mutation; the Store then emits the PendingMutation that the
// Data Manager's own background loop forwards to the Backend (spec.md
// section 2's mutation-path diagram), so Commit itself never talks to
// the backend directly.
type Updater struct {
	// Value is the mutated payload to commit. Callers mutate this field
	// directly before calling Commit.
	Value any
	// Version is the version this Updater was derived from (the commit
	// target Store.Commit will be called with).
	Version version.Version

	key   chainkey.ChainKey
	store *store.Store
}

// Commit layers u.Value onto the chain as a new pending mutation. On
// success the mutation flows through the Store's Pending stream and is
// forwarded to the backend asynchronously.
func (u *Updater) Commit(ctx context.Context) error {
	return u.store.Commit(ctx, u.key, u.Version, u.Value, map[string]any{})
}
