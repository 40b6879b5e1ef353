// Package memkv provides the in-memory kv.Engine implementation that
// spec.md section 6 requires as the default test backend: every Get and
// Put deep-clones the stored bytes so a caller mutating a slice it
// retrieved or is about to write can never reach persisted state.
//
// Grounded on the teacher's pkg/mvcc.RowVersion.Data()/NewRowVersion
// defensive-copy idiom, generalized from a single row's bytes to a
// two-namespace ("chains", "records") key-value map.
package memkv

import (
	"context"
	"sync"

	"tactical/pkg/kv"
)

// Engine is a single-process, lock-serialized kv.Engine. It does not
// support concurrent Engine instances over shared state (spec.md
// section 5 does not require it to).
type Engine struct {
	mu     sync.Mutex
	stores map[string]map[string][]byte
}

// New creates an empty Engine with the "chains" and "records" stores
// pre-created.
func New() *Engine {
	e := &Engine{stores: make(map[string]map[string][]byte)}
	for _, s := range kv.Stores {
		e.stores[s] = make(map[string][]byte)
	}
	return e
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (e *Engine) bucket(store string) map[string][]byte {
	b, ok := e.stores[store]
	if !ok {
		b = make(map[string][]byte)
		e.stores[store] = b
	}
	return b
}

func (e *Engine) Get(_ context.Context, store, key string) ([]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.bucket(store)[key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (e *Engine) Put(_ context.Context, store, key string, val []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bucket(store)[key] = clone(val)
	return nil
}

func (e *Engine) Remove(_ context.Context, store, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.bucket(store), key)
	return nil
}

func (e *Engine) Keys(_ context.Context, store string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.bucket(store)
	out := make([]string, 0, len(b))
	for k := range b {
		out = append(out, k)
	}
	return out, nil
}

// Transaction locks the engine for the duration of the returned Txn.
// Because the engine already serializes every call behind e.mu, the
// named stores argument only documents intent; the lock scope is the
// whole engine, matching spec.md section 5's assumption of one Store
// owning one database exclusively.
func (e *Engine) Transaction(_ context.Context, stores ...string) (kv.Txn, error) {
	e.mu.Lock()
	return &txn{engine: e}, nil
}

// txn buffers writes in an overlay and only applies them to the engine
// on Commit, so a Rollback after a partial sequence of Put/Remove calls
// genuinely leaves the engine untouched (spec.md section 7: "KV failures
// mid-transaction: the transaction aborts ... No event is emitted").
type txn struct {
	engine  *Engine
	closed  bool
	puts    map[string]map[string][]byte
	deletes map[string]map[string]struct{}
}

func (t *txn) checkOpen() error {
	if t.closed {
		return kv.ErrTxClosed
	}
	return nil
}

func (t *txn) Get(_ context.Context, store, key string) ([]byte, bool, error) {
	if err := t.checkOpen(); err != nil {
		return nil, false, err
	}
	if del, ok := t.deletes[store]; ok {
		if _, deleted := del[key]; deleted {
			return nil, false, nil
		}
	}
	if overlay, ok := t.puts[store]; ok {
		if v, ok := overlay[key]; ok {
			return clone(v), true, nil
		}
	}
	v, ok := t.engine.bucket(store)[key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (t *txn) Put(_ context.Context, store, key string, val []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.puts == nil {
		t.puts = make(map[string]map[string][]byte)
	}
	if t.puts[store] == nil {
		t.puts[store] = make(map[string][]byte)
	}
	t.puts[store][key] = clone(val)
	if del, ok := t.deletes[store]; ok {
		delete(del, key)
	}
	return nil
}

func (t *txn) Remove(_ context.Context, store, key string) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.deletes == nil {
		t.deletes = make(map[string]map[string]struct{})
	}
	if t.deletes[store] == nil {
		t.deletes[store] = make(map[string]struct{})
	}
	t.deletes[store][key] = struct{}{}
	if put, ok := t.puts[store]; ok {
		delete(put, key)
	}
	return nil
}

func (t *txn) Keys(_ context.Context, store string) ([]string, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for k := range t.engine.bucket(store) {
		seen[k] = struct{}{}
	}
	if del, ok := t.deletes[store]; ok {
		for k := range del {
			delete(seen, k)
		}
	}
	if put, ok := t.puts[store]; ok {
		for k := range put {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out, nil
}

func (t *txn) Commit(_ context.Context) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	for store, kvs := range t.puts {
		b := t.engine.bucket(store)
		for k, v := range kvs {
			b[k] = v
		}
	}
	for store, ks := range t.deletes {
		b := t.engine.bucket(store)
		for k := range ks {
			delete(b, k)
		}
	}
	t.closed = true
	t.engine.mu.Unlock()
	return nil
}

func (t *txn) Rollback(_ context.Context) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.closed = true
	t.engine.mu.Unlock()
	return nil
}
