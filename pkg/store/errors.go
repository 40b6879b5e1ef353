package store

import (
	"fmt"

	"tactical/pkg/chainkey"
	"tactical/pkg/version"
)

// KeyNotFoundError is returned by Commit and Abandon when the chain has
// no persisted ChainState yet, and by Commit also when the ChainState has
// no current version (Abandon then returns nil instead).
type KeyNotFoundError struct {
	Key chainkey.ChainKey
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("store: key not found: %s", e.Key.Serial())
}

// OutdatedTargetVersionError is returned by Commit when target does not
// match the chain's current version. It carries everything the caller
// submitted so the application can retry the commit against the real
// current version.
type OutdatedTargetVersionError struct {
	Key      chainkey.ChainKey
	Current  version.Version
	Target   version.Version
	Mutation any
	Context  map[string]any
}

func (e *OutdatedTargetVersionError) Error() string {
	return fmt.Sprintf("store: outdated target version for %s: target=%s current=%s",
		e.Key.Serial(), e.Target, e.Current)
}

// InvalidInitialTargetVersionError is returned by Abandon when target is
// an initial version (sub == 0): initial records can never be abandoned,
// only superseded by a push.
type InvalidInitialTargetVersionError struct {
	Key    chainkey.ChainKey
	Target version.Version
}

func (e *InvalidInitialTargetVersionError) Error() string {
	return fmt.Sprintf("store: cannot abandon initial version %s for %s", e.Target, e.Key.Serial())
}
