package store

import (
	"tactical/pkg/chainkey"
	"tactical/pkg/version"
)

// OutdatedMutation is emitted on the Outdated stream when a backend push
// supersedes a pending local mutation that was not the push's resolved
// target (spec.md section 4.2, state machine transition
// Pending(v) -> Clean(pushV), Outdated += [v]).
type OutdatedMutation struct {
	Key      chainkey.ChainKey
	Current  version.Record
	Mutation version.Record
	Initial  version.Record
}

// PendingMutation is emitted on the Pending stream every time Commit
// successfully layers a new local mutation on a chain.
type PendingMutation struct {
	Key      chainkey.ChainKey
	Mutation version.Record
}
