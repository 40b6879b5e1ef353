// Package store implements the Version Chain Store: spec.md section
// 4.2's transactional state machine over per-chain version history, its
// two hot-multicast event streams, and the five operations
// (Fetch, Push, Commit, Abandon, Inspect) applications drive it through.
//
// Grounded on the teacher's pkg/cowbtree.CowVersionedStore /
// pkg/mvcc.VersionedStore shape (a struct wrapping a transaction
// manager plus per-key chain state, exposing Begin/Commit/Rollback-style
// operations that return sentinel or typed errors) generalized from
// MVCC snapshot isolation to the spec's explicit current/outdated chain
// model.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"tactical/internal/config"
	"tactical/internal/telemetry"
	"tactical/pkg/broadcast"
	"tactical/pkg/chainkey"
	"tactical/pkg/kv"
	"tactical/pkg/version"
)

const (
	chainsStore  = "chains"
	recordsStore = "records"
)

// Store is the Version Chain Store. One Store owns one kv.Engine
// exclusively (spec.md section 5).
type Store struct {
	engine kv.Engine
	cfg    config.Config
	log    telemetry.Logger

	outdated *broadcast.Broadcaster[OutdatedMutation]
	pending  *broadcast.Broadcaster[PendingMutation]

	gcCount int
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the Store's logger (defaults to a no-op logger).
func WithLogger(log telemetry.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithConfig applies explicit config.Config settings instead of
// config.Default().
func WithConfig(cfg config.Config) Option {
	return func(s *Store) { s.cfg = cfg }
}

// New creates a Store over engine.
func New(engine kv.Engine, opts ...Option) *Store {
	s := &Store{
		engine:   engine,
		cfg:      config.Default(),
		log:      telemetry.NewNop(),
		outdated: broadcast.New[OutdatedMutation](),
		pending:  broadcast.New[PendingMutation](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "store")
	return s
}

// Outdated subscribes to the stream of OutdatedMutation events. It has
// no replay: a subscriber only sees events emitted after it subscribes.
func (s *Store) Outdated() (<-chan OutdatedMutation, func()) {
	return s.outdated.Subscribe()
}

// Pending subscribes to the stream of PendingMutation events, with the
// same no-replay semantics as Outdated.
func (s *Store) Pending() (<-chan PendingMutation, func()) {
	return s.pending.Subscribe()
}

func recordKeySerial(key chainkey.ChainKey, v version.Version) string {
	return version.RecordKey{Chain: key, Version: v}.Serial()
}

func encodeChainState(cs version.ChainState) ([]byte, error) {
	return json.Marshal(cs)
}

func decodeChainState(b []byte) (version.ChainState, error) {
	var cs version.ChainState
	if err := json.Unmarshal(b, &cs); err != nil {
		return version.ChainState{}, fmt.Errorf("store: decode chain state: %w", err)
	}
	return cs, nil
}

func encodeEntry(e version.Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(b []byte) (version.Entry, error) {
	var e version.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return version.Entry{}, fmt.Errorf("store: decode entry: %w", err)
	}
	return e, nil
}

// Fetch returns the record for key. If ver is non-nil it is read
// directly (ChainState is never touched); otherwise the chain's current
// head is read. Returns (nil, nil) when the record does not exist.
func (s *Store) Fetch(ctx context.Context, key chainkey.ChainKey, ver *version.Version) (*version.Record, error) {
	if ver != nil {
		return s.fetchAt(ctx, key, *ver)
	}

	raw, ok, err := s.engine.Get(ctx, chainsStore, key.Serial())
	if err != nil {
		return nil, fmt.Errorf("store: fetch chain state: %w", err)
	}
	if !ok {
		return nil, nil
	}
	state, err := decodeChainState(raw)
	if err != nil {
		return nil, err
	}
	return s.fetchAt(ctx, key, state.Current)
}

// readRecord reads back a just-written record through txn rather than
// trusting the caller-supplied value/context that produced it, so events
// built from it are defensive copies of what was actually persisted
// (spec.md section 3: Ownership) instead of aliases into memory the
// caller is free to keep mutating after the call returns.
func (s *Store) readRecord(ctx context.Context, txn kv.Txn, key chainkey.ChainKey, v version.Version) (version.Record, error) {
	raw, ok, err := txn.Get(ctx, recordsStore, recordKeySerial(key, v))
	if err != nil {
		return version.Record{}, fmt.Errorf("store: read record %s: %w", v, err)
	}
	if !ok {
		return version.Record{}, fmt.Errorf("store: read record %s: not found", v)
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return version.Record{}, err
	}
	return version.Record{Version: v, Value: entry.Value, Context: entry.Context}, nil
}

func (s *Store) fetchAt(ctx context.Context, key chainkey.ChainKey, v version.Version) (*version.Record, error) {
	raw, ok, err := s.engine.Get(ctx, recordsStore, recordKeySerial(key, v))
	if err != nil {
		return nil, fmt.Errorf("store: fetch record: %w", err)
	}
	if !ok {
		return nil, nil
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return nil, err
	}
	return &version.Record{Version: v, Value: entry.Value, Context: entry.Context}, nil
}

// Inspect returns a read-only snapshot of a chain's persisted metadata
// without mutating any state or touching the record store (SPEC_FULL.md
// section 3's supplemented diagnostics operation).
func (s *Store) Inspect(ctx context.Context, key chainkey.ChainKey) (version.ChainState, bool, error) {
	raw, ok, err := s.engine.Get(ctx, chainsStore, key.Serial())
	if err != nil {
		return version.ChainState{}, false, fmt.Errorf("store: inspect: %w", err)
	}
	if !ok {
		return version.ChainState{}, false, nil
	}
	state, err := decodeChainState(raw)
	if err != nil {
		return version.ChainState{}, false, err
	}
	return state, true, nil
}

// withTxn runs fn inside a single kv.Txn over {chains, records}; fn
// returning a non-nil error rolls the transaction back and the error
// propagates to the caller untouched. fn must not perform any further KV
// calls after returning.
func (s *Store) withTxn(ctx context.Context, fn func(kv.Txn) error) error {
	txn, err := s.engine.Transaction(ctx, chainsStore, recordsStore)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	if err := fn(txn); err != nil {
		if rbErr := txn.Rollback(ctx); rbErr != nil {
			s.log.With("error", rbErr).Warn("rollback after failed operation also failed")
		}
		return err
	}
	if err := txn.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

// Push ingests a server-authoritative version, per spec.md section 4.2.
func (s *Store) Push(ctx context.Context, key chainkey.ChainKey, base string, value any, resolves *version.Version) error {
	pushV := version.Version{Base: base, Sub: 0}
	var toEmit *OutdatedMutation

	err := s.withTxn(ctx, func(txn kv.Txn) error {
		raw, ok, err := txn.Get(ctx, chainsStore, key.Serial())
		if err != nil {
			return fmt.Errorf("store: push read chain state: %w", err)
		}

		if !ok {
			state := version.ChainState{Current: pushV}
			if err := s.writeChainState(ctx, txn, key, state); err != nil {
				return err
			}
			return s.writeRecord(ctx, txn, key, pushV, value, map[string]any{})
		}

		state, err := decodeChainState(raw)
		if err != nil {
			return err
		}
		prev := state.Current
		isOutdated := prev.Sub > 0
		isResolved := resolves != nil && prev.Equal(*resolves)

		state.Current = pushV
		if isOutdated && !isResolved {
			state.Outdated = append(state.Outdated, prev)
		}
		if err := s.writeChainState(ctx, txn, key, state); err != nil {
			return err
		}
		if err := s.writeRecord(ctx, txn, key, pushV, value, map[string]any{}); err != nil {
			return err
		}

		if prev.Equal(pushV) {
			return nil
		}

		if prev.IsInitial() || isResolved {
			if err := s.removeRecord(ctx, txn, key, prev); err != nil {
				return err
			}
			if !prev.IsInitial() {
				if err := s.removeRecord(ctx, txn, key, prev.Initial()); err != nil {
					return err
				}
			}
			return nil
		}

		// Outdated mutation retained: gather the records needed for the
		// event before anything else touches them.
		mutationRaw, ok, err := txn.Get(ctx, recordsStore, recordKeySerial(key, prev))
		if err != nil || !ok {
			return fmt.Errorf("store: push: missing pending mutation record for %s: %w", prev, err)
		}
		mutationEntry, err := decodeEntry(mutationRaw)
		if err != nil {
			return err
		}
		initialRaw, ok, err := txn.Get(ctx, recordsStore, recordKeySerial(key, prev.Initial()))
		if err != nil || !ok {
			return fmt.Errorf("store: push: missing initial record for %s: %w", prev.Initial(), err)
		}
		initialEntry, err := decodeEntry(initialRaw)
		if err != nil {
			return err
		}

		currentRec, err := s.readRecord(ctx, txn, key, pushV)
		if err != nil {
			return err
		}

		toEmit = &OutdatedMutation{
			Key:      key,
			Current:  currentRec,
			Mutation: version.Record{Version: prev, Value: mutationEntry.Value, Context: mutationEntry.Context},
			Initial:  version.Record{Version: prev.Initial(), Value: initialEntry.Value, Context: initialEntry.Context},
		}
		return nil
	})
	if err != nil {
		return err
	}

	if toEmit != nil {
		s.log.With("chain", key.Serial()).Warn("push superseded a pending mutation")
		s.outdated.Publish(*toEmit)
	} else {
		s.log.With("chain", key.Serial()).Debug("push applied")
	}
	return nil
}

// Commit layers a local mutation on top of the chain's current version,
// per spec.md section 4.2.
func (s *Store) Commit(ctx context.Context, key chainkey.ChainKey, target version.Version, mutation any, mutContext map[string]any) error {
	var toEmit *PendingMutation

	err := s.withTxn(ctx, func(txn kv.Txn) error {
		raw, ok, err := txn.Get(ctx, chainsStore, key.Serial())
		if err != nil {
			return fmt.Errorf("store: commit read chain state: %w", err)
		}
		if !ok {
			return &KeyNotFoundError{Key: key}
		}
		state, err := decodeChainState(raw)
		if err != nil {
			return err
		}
		if !state.HasCurrent() {
			return &KeyNotFoundError{Key: key}
		}
		prev := state.Current
		if !target.Equal(prev) {
			return &OutdatedTargetVersionError{Key: key, Current: prev, Target: target, Mutation: mutation, Context: mutContext}
		}

		mutV := version.Version{Base: prev.Base, Sub: version.RandomSub()}
		state.Current = mutV
		if err := s.writeChainState(ctx, txn, key, state); err != nil {
			return err
		}
		if err := s.writeRecord(ctx, txn, key, mutV, mutation, mutContext); err != nil {
			return err
		}
		if prev.Sub != 0 {
			if err := s.removeRecord(ctx, txn, key, prev); err != nil {
				return err
			}
		}
		mutationRec, err := s.readRecord(ctx, txn, key, mutV)
		if err != nil {
			return err
		}
		toEmit = &PendingMutation{Key: key, Mutation: mutationRec}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.With("chain", key.Serial()).Debug("commit applied")
	s.pending.Publish(*toEmit)
	return nil
}

// Abandon discards a pending or outdated mutation, per spec.md section
// 4.2.
func (s *Store) Abandon(ctx context.Context, key chainkey.ChainKey, target version.Version) error {
	return s.withTxn(ctx, func(txn kv.Txn) error {
		raw, ok, err := txn.Get(ctx, chainsStore, key.Serial())
		if err != nil {
			return fmt.Errorf("store: abandon read chain state: %w", err)
		}
		if !ok {
			return &KeyNotFoundError{Key: key}
		}
		state, err := decodeChainState(raw)
		if err != nil {
			return err
		}
		if !state.HasCurrent() {
			return nil
		}
		if target.IsInitial() {
			return &InvalidInitialTargetVersionError{Key: key, Target: target}
		}

		if target.Equal(state.Current) {
			state.Current = target.Initial()
			if err := s.removeRecord(ctx, txn, key, target); err != nil {
				return err
			}
			return s.writeChainState(ctx, txn, key, state)
		}

		newOutdated, found := state.RemoveOutdated(target)
		if !found {
			return nil
		}
		state.Outdated = newOutdated
		if err := s.removeRecord(ctx, txn, key, target); err != nil {
			return err
		}
		if err := s.removeRecord(ctx, txn, key, target.Initial()); err != nil {
			return err
		}
		return s.writeChainState(ctx, txn, key, state)
	})
}

func (s *Store) writeChainState(ctx context.Context, txn kv.Txn, key chainkey.ChainKey, state version.ChainState) error {
	raw, err := encodeChainState(state)
	if err != nil {
		return fmt.Errorf("store: encode chain state: %w", err)
	}
	return txn.Put(ctx, chainsStore, key.Serial(), raw)
}

func (s *Store) writeRecord(ctx context.Context, txn kv.Txn, key chainkey.ChainKey, v version.Version, value any, recordContext map[string]any) error {
	raw, err := encodeEntry(version.Entry{Value: value, Context: recordContext})
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	return txn.Put(ctx, recordsStore, recordKeySerial(key, v), raw)
}

func (s *Store) removeRecord(ctx context.Context, txn kv.Txn, key chainkey.ChainKey, v version.Version) error {
	if err := txn.Remove(ctx, recordsStore, recordKeySerial(key, v)); err != nil {
		return fmt.Errorf("store: remove record %s: %w", v, err)
	}
	s.gcCount++
	if s.cfg.GCLogEvery > 0 && s.gcCount%s.cfg.GCLogEvery == 0 {
		s.log.With("chain", key.Serial()).With("version", v.String()).Debug("garbage collected superseded record")
	}
	return nil
}
