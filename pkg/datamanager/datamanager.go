// Package datamanager implements the Data Manager (spec.md section
// 4.3): a per-key fan-out that joins a Version Chain Store with a
// Backend Channel and exposes per-key value streams and mutation update
// handles to the application.
//
// Grounded on the teacher's pkg/cache.QueryCache per-key lifecycle
// bookkeeping (create on first use, evict on last reference) and the
// ingress-loop shape the retrieval pack's k3s-io/k3s
// pkg/agent/tunnel.watch uses for a long-lived backend connection, here
// split into two independent loops per spec.md section 2's data flow
// diagram: one draining Backend.Data()/Failed() into the Store, one
// forwarding the Store's Pending stream out to Backend.Mutate.
package datamanager

import (
	"context"
	"sync"

	"tactical/internal/telemetry"
	"tactical/pkg/backend"
	"tactical/pkg/broadcast"
	"tactical/pkg/chainkey"
	"tactical/pkg/store"
	"tactical/pkg/version"
)

// versionContextKey is the reserved mutation-context field the Data
// Manager uses to round-trip a committed mutation's Version through the
// backend so an eventual DataFrame.MutationContext can be resolved back
// to the Store.Push call that should carry resolves=that version.
const versionContextKey = "_version"

type keyEntry struct {
	key    chainkey.ChainKey
	stream *broadcast.Broadcaster[version.Record]
	refs   int
}

// DataManager is the Data Manager.
type DataManager struct {
	store   *store.Store
	backend backend.Channel
	log     telemetry.Logger

	mu      sync.Mutex
	perKey  map[string]*keyEntry
	failure *broadcast.Broadcaster[backend.FailureFrame]

	unsubPending func()
	done         chan struct{}
	wg           sync.WaitGroup
}

// New wires a Store and a Backend Channel together and starts the
// background ingress/forwarding loops described in spec.md section 2.
func New(st *store.Store, ch backend.Channel, log telemetry.Logger) *DataManager {
	if log == nil {
		log = telemetry.NewNop()
	}
	dm := &DataManager{
		store:   st,
		backend: ch,
		log:     log.With("component", "datamanager"),
		perKey:  make(map[string]*keyEntry),
		failure: broadcast.New[backend.FailureFrame](),
		done:    make(chan struct{}),
	}

	pendingCh, unsubPending := st.Pending()
	dm.unsubPending = unsubPending

	dm.wg.Add(2)
	go dm.forwardPending(pendingCh)
	go dm.ingressBackend()

	return dm
}

// Close stops the background loops. In-flight application subscriptions
// are unaffected; this only tears down the Store<->Backend wiring.
func (dm *DataManager) Close() {
	close(dm.done)
	dm.unsubPending()
	dm.wg.Wait()
}

// Failures subscribes to backend mutation rejections (spec.md section
// 6: "the application is notified").
func (dm *DataManager) Failures() (<-chan backend.FailureFrame, func()) {
	return dm.failure.Subscribe()
}

func (dm *DataManager) ensureEntry(key chainkey.ChainKey) (*keyEntry, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	serial := key.Serial()
	e, ok := dm.perKey[serial]
	if !ok {
		e = &keyEntry{key: key, stream: broadcast.NewWithReplay[version.Record](), refs: 1}
		dm.perKey[serial] = e
		return e, true
	}
	e.refs++
	return e, false
}

func (dm *DataManager) existingEntry(key chainkey.ChainKey) (*keyEntry, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	e, ok := dm.perKey[key.Serial()]
	return e, ok
}

func (dm *DataManager) release(key chainkey.ChainKey) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	serial := key.Serial()
	e, ok := dm.perKey[serial]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(dm.perKey, serial)
		e.stream.Close()
	}
}

// Request ensures a per-key stream exists for key, issuing a backend
// request and a one-time Store.Fetch the first time the key is seen,
// and returns a view of the stream mapped to each record's value.
func (dm *DataManager) Request(ctx context.Context, key chainkey.ChainKey) (<-chan any, func()) {
	entry, created := dm.ensureEntry(key)
	if created {
		if err := dm.backend.Request(ctx, key.Structured()); err != nil {
			dm.log.With("chain", key.Serial()).With("error", err).Warn("backend request failed")
		}
		if rec, err := dm.store.Fetch(ctx, key, nil); err != nil {
			dm.log.With("chain", key.Serial()).With("error", err).Warn("initial fetch failed")
		} else if rec != nil {
			entry.stream.Publish(*rec)
		}
	}

	recCh, rawUnsub := entry.stream.Subscribe()
	out := make(chan any)
	go func() {
		defer close(out)
		for rec := range recCh {
			out <- rec.Value
		}
	}()
	return out, func() {
		rawUnsub()
		dm.release(key)
	}
}

// BeginUpdate returns a stream of Updater handles, one per record
// observed on key's stream, each pre-loaded with that record's value
// and originating version.
func (dm *DataManager) BeginUpdate(key chainkey.ChainKey) (<-chan *Updater, func()) {
	entry, _ := dm.ensureEntry(key)
	recCh, rawUnsub := entry.stream.Subscribe()
	out := make(chan *Updater)
	go func() {
		defer close(out)
		for rec := range recCh {
			out <- &Updater{
				Value:   rec.Value,
				Version: rec.Version,
				key:     key,
				store:   dm.store,
			}
		}
	}()
	return out, func() {
		rawUnsub()
		dm.release(key)
	}
}

func (dm *DataManager) forwardPending(pendingCh <-chan store.PendingMutation) {
	defer dm.wg.Done()
	for {
		select {
		case <-dm.done:
			return
		case pm, ok := <-pendingCh:
			if !ok {
				return
			}
			mutContext := make(map[string]any, len(pm.Mutation.Context)+1)
			for k, v := range pm.Mutation.Context {
				mutContext[k] = v
			}
			mutContext[versionContextKey] = pm.Mutation.Version.Serial()
			if err := dm.backend.Mutate(context.Background(), pm.Key.Structured(), pm.Mutation.Version.Base, pm.Mutation.Value, mutContext); err != nil {
				dm.log.With("chain", pm.Key.Serial()).With("error", err).Warn("forwarding pending mutation to backend failed")
			}
		}
	}
}

func (dm *DataManager) ingressBackend() {
	defer dm.wg.Done()
	dataCh := dm.backend.Data()
	failedCh := dm.backend.Failed()
	for {
		select {
		case <-dm.done:
			return
		case df, ok := <-dataCh:
			if !ok {
				dataCh = nil
				if failedCh == nil {
					return
				}
				continue
			}
			dm.handleData(df)
		case ff, ok := <-failedCh:
			if !ok {
				failedCh = nil
				if dataCh == nil {
					return
				}
				continue
			}
			dm.failure.Publish(ff)
		}
	}
}

func (dm *DataManager) handleData(df backend.DataFrame) {
	key, err := chainkey.New(df.Key)
	if err != nil {
		dm.log.With("error", err).Warn("dropping data frame with unencodable key")
		return
	}

	var resolves *version.Version
	if df.HasMutationCtx {
		if raw, ok := df.MutationContext[versionContextKey]; ok {
			if s, ok := raw.(string); ok {
				if v, err := version.ParseVersionSerial(s); err == nil {
					resolves = &v
				}
			}
		}
	}

	ctx := context.Background()
	if err := dm.store.Push(ctx, key, df.Version, df.Data, resolves); err != nil {
		dm.log.With("chain", key.Serial()).With("error", err).Warn("pushing backend data frame failed")
		return
	}

	rec, err := dm.store.Fetch(ctx, key, nil)
	if err != nil {
		dm.log.With("chain", key.Serial()).With("error", err).Warn("fetch after push failed")
		return
	}
	if rec == nil {
		return
	}
	if entry, ok := dm.existingEntry(key); ok {
		entry.stream.Publish(*rec)
	}
}
