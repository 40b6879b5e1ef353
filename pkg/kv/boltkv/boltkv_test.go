package boltkv

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestPutGetRoundTrip(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	if err := e.Put(ctx, "chains", "k1", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := e.Get(ctx, "chains", "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get = %q, ok=%v, err=%v", got, ok, err)
	}
}

func TestGetMissingKey(t *testing.T) {
	e := openTestEngine(t)
	_, ok, err := e.Get(context.Background(), "records", "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing key")
	}
}

func TestRemoveDeletesKey(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	if err := e.Put(ctx, "records", "k1", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Remove(ctx, "records", "k1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	_, ok, err := e.Get(ctx, "records", "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("key should be gone after Remove")
	}
}

func TestTransactionCommitPersists(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	txn, err := e.Transaction(ctx, "chains", "records")
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if err := txn.Put(ctx, "chains", "k1", []byte("v1")); err != nil {
		t.Fatalf("txn.Put: %v", err)
	}
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, ok, err := e.Get(ctx, "chains", "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get after commit = %q, ok=%v, err=%v", got, ok, err)
	}
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	if err := e.Put(ctx, "chains", "k1", []byte("before")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	txn, err := e.Transaction(ctx, "chains")
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if err := txn.Put(ctx, "chains", "k1", []byte("after")); err != nil {
		t.Fatalf("txn.Put: %v", err)
	}
	if err := txn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	got, ok, err := e.Get(ctx, "chains", "k1")
	if err != nil || !ok || string(got) != "before" {
		t.Fatalf("Get after rollback = %q, ok=%v, want unchanged", got, ok)
	}
}

func TestTransactionIsolatesFromConcurrentReaders(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	if err := e.Put(ctx, "chains", "k1", []byte("committed")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	txn, err := e.Transaction(ctx, "chains")
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if err := txn.Put(ctx, "chains", "k1", []byte("uncommitted")); err != nil {
		t.Fatalf("txn.Put: %v", err)
	}

	got, ok, err := e.Get(ctx, "chains", "k1")
	if err != nil || !ok || string(got) != "committed" {
		t.Fatalf("reader outside the transaction saw uncommitted data: %q", got)
	}

	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}
