package memkv

import (
	"context"
	"testing"
)

func TestGetPutRoundTrip(t *testing.T) {
	e := New()
	ctx := context.Background()
	if err := e.Put(ctx, "chains", "k1", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := e.Get(ctx, "chains", "k1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get = %q, want v1", got)
	}
}

func TestGetMissingKey(t *testing.T) {
	e := New()
	_, ok, err := e.Get(context.Background(), "chains", "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing key")
	}
}

func TestGetReturnsDefensiveCopy(t *testing.T) {
	e := New()
	ctx := context.Background()
	if err := e.Put(ctx, "records", "k1", []byte("original")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _, _ := e.Get(ctx, "records", "k1")
	got[0] = 'X'

	got2, _, _ := e.Get(ctx, "records", "k1")
	if string(got2) != "original" {
		t.Fatalf("stored value mutated via caller's copy: %q", got2)
	}
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	e := New()
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
	if err := txn.Put(ctx, "chains", "k2", []byte("new")); err != nil {
		t.Fatalf("txn.Put k2: %v", err)
	}
	if err := txn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	got, ok, err := e.Get(ctx, "chains", "k1")
	if err != nil || !ok || string(got) != "before" {
		t.Fatalf("k1 after rollback = %q, ok=%v, want unchanged", got, ok)
	}
	_, ok, _ = e.Get(ctx, "chains", "k2")
	if ok {
		t.Fatal("k2 should not exist after rollback")
	}
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	e := New()
	ctx := context.Background()
	txn, err := e.Transaction(ctx, "chains")
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	defer txn.Rollback(ctx)

	if err := txn.Put(ctx, "chains", "k1", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := txn.Get(ctx, "chains", "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("txn.Get after Put = %q, ok=%v", got, ok)
	}
}

func TestTransactionCommitAppliesWrites(t *testing.T) {
	e := New()
	ctx := context.Background()
	txn, err := e.Transaction(ctx, "chains")
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if err := txn.Put(ctx, "chains", "k1", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := txn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, ok, err := e.Get(ctx, "chains", "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get after commit = %q, ok=%v", got, ok)
	}
}

func TestTransactionIsExclusive(t *testing.T) {
	e := New()
	ctx := context.Background()
	txn, err := e.Transaction(ctx, "chains")
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}

	done := make(chan struct{})
	go func() {
		txn2, err := e.Transaction(ctx, "chains")
		if err != nil {
			t.Errorf("second Transaction: %v", err)
			return
		}
		txn2.Rollback(ctx)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second Transaction should have blocked until first was released")
	default:
	}

	if err := txn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	<-done
}
