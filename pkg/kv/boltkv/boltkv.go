// Package boltkv is a persistent kv.Engine backed by go.etcd.io/bbolt,
// the embedded B+tree store that backs rancher/kine's etcd-compatible
// datastore in the k3s-io/k3s tree this module's corpus draws from.
//
// One bbolt bucket per kv.Stores entry ("chains", "records"). bbolt's
// own single-writer/multi-reader transaction model already gives the
// exclusivity spec.md section 5 requires, so Transaction maps directly
// onto a single *bbolt.Tx rather than layering an extra lock on top.
package boltkv

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"tactical/internal/telemetry"
	"tactical/pkg/kv"
)

// Engine opens a bbolt database file and exposes it as a kv.Engine.
type Engine struct {
	db  *bolt.DB
	log telemetry.Logger
}

// Open opens (creating if necessary) the bbolt file at path and ensures
// every store in kv.Stores has a backing bucket.
func Open(path string, log telemetry.Logger) (*Engine, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltkv: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, s := range kv.Stores {
			if _, err := tx.CreateBucketIfNotExists([]byte(s)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltkv: init buckets: %w", err)
	}
	if log == nil {
		log = telemetry.NewNop()
	}
	return &Engine{db: db, log: log.With("component", "boltkv")}, nil
}

// Close releases the underlying bbolt file handle.
func (e *Engine) Close() error { return e.db.Close() }

func (e *Engine) Get(_ context.Context, store, key string) ([]byte, bool, error) {
	var out []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(store))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (e *Engine) Put(_ context.Context, store, key string, val []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(store))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), val)
	})
}

func (e *Engine) Remove(_ context.Context, store, key string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(store))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (e *Engine) Keys(_ context.Context, store string) ([]string, error) {
	var out []string
	err := e.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(store))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// Transaction opens a real bbolt read-write transaction, creating a
// bucket for each named store that does not exist yet. The transaction
// sees every bucket in the file, not only the named ones.
func (e *Engine) Transaction(_ context.Context, stores ...string) (kv.Txn, error) {
	tx, err := e.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("boltkv: begin transaction: %w", err)
	}
	for _, s := range stores {
		if _, err := tx.CreateBucketIfNotExists([]byte(s)); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("boltkv: ensure bucket %s: %w", s, err)
		}
	}
	return &txn{tx: tx, log: e.log}, nil
}

type txn struct {
	tx     *bolt.Tx
	log    telemetry.Logger
	closed bool
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
	b := t.tx.Bucket([]byte(store))
	if b == nil {
		return nil, false, nil
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (t *txn) Put(_ context.Context, store, key string, val []byte) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	b, err := t.tx.CreateBucketIfNotExists([]byte(store))
	if err != nil {
		return err
	}
	return b.Put([]byte(key), val)
}

func (t *txn) Remove(_ context.Context, store, key string) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	b := t.tx.Bucket([]byte(store))
	if b == nil {
		return nil
	}
	return b.Delete([]byte(key))
}

func (t *txn) Keys(_ context.Context, store string) ([]string, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	b := t.tx.Bucket([]byte(store))
	if b == nil {
		return nil, nil
	}
	var out []string
	err := b.ForEach(func(k, _ []byte) error {
		out = append(out, string(k))
		return nil
	})
	return out, err
}

func (t *txn) Commit(_ context.Context) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.closed = true
	if err := t.tx.Commit(); err != nil {
		t.log.With("error", err).Warn("bolt transaction commit failed")
		return err
	}
	return nil
}

func (t *txn) Rollback(_ context.Context) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.closed = true
	return t.tx.Rollback()
}
