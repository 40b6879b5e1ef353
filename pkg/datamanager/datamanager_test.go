package datamanager

import (
	"context"
	"testing"
	"time"

	"tactical/pkg/backend"
	"tactical/pkg/backend/memchannel"
	"tactical/pkg/chainkey"
	"tactical/pkg/kv/memkv"
	"tactical/pkg/store"
)

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		var zero T
		t.Fatal("timed out waiting for value")
		return zero
	}
}

func TestRequestIssuesBackendRequestAndReturnsPushedValue(t *testing.T) {
	st := store.New(memkv.New())
	ch := memchannel.New()
	dm := New(st, ch, nil)
	defer dm.Close()

	key, err := chainkey.New(map[string]any{"id": "d1"})
	if err != nil {
		t.Fatalf("chainkey.New: %v", err)
	}

	valueCh, unsub := dm.Request(context.Background(), key)
	defer unsub()

	if len(ch.Requests()) != 1 {
		t.Fatalf("expected 1 backend request, got %d", len(ch.Requests()))
	}

	ch.Push(backend.DataFrame{Key: map[string]any{"id": "d1"}, Version: "base-1", Data: "hello"})

	got := waitFor(t, valueCh)
	if got != "hello" {
		t.Fatalf("got %v, want hello", got)
	}
}

func TestSecondRequestDoesNotReissueBackendRequest(t *testing.T) {
	st := store.New(memkv.New())
	ch := memchannel.New()
	dm := New(st, ch, nil)
	defer dm.Close()

	key, _ := chainkey.New(map[string]any{"id": "d2"})

	_, unsub1 := dm.Request(context.Background(), key)
	defer unsub1()
	_, unsub2 := dm.Request(context.Background(), key)
	defer unsub2()

	if len(ch.Requests()) != 1 {
		t.Fatalf("expected exactly 1 backend request across two subscribers, got %d", len(ch.Requests()))
	}
}

func TestCommittedMutationIsForwardedToBackend(t *testing.T) {
	st := store.New(memkv.New())
	ch := memchannel.New()
	dm := New(st, ch, nil)
	defer dm.Close()

	key, _ := chainkey.New(map[string]any{"id": "d3"})
	if err := st.Push(context.Background(), key, "base-1", "v0", nil); err != nil {
		t.Fatalf("Push: %v", err)
	}

	valueCh, unsubReq := dm.Request(context.Background(), key)
	defer unsubReq()
	waitFor(t, valueCh)

	updaterCh, unsub := dm.BeginUpdate(key)
	defer unsub()

	u := waitFor(t, updaterCh)
	u.Value = "v1"
	if err := u.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		if len(ch.Mutations()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for mutation to be forwarded to backend")
		case <-time.After(10 * time.Millisecond):
		}
	}

	muts := ch.Mutations()
	if muts[0].Value != "v1" {
		t.Fatalf("forwarded mutation value = %v, want v1", muts[0].Value)
	}
	if _, ok := muts[0].Context[versionContextKey]; !ok {
		t.Fatalf("forwarded mutation context missing %q: %+v", versionContextKey, muts[0].Context)
	}
}

func TestFirstOfTwoSubscribersUnsubscribingLeavesEntryLive(t *testing.T) {
	st := store.New(memkv.New())
	ch := memchannel.New()
	dm := New(st, ch, nil)
	defer dm.Close()

	key, _ := chainkey.New(map[string]any{"id": "d5"})

	valueCh1, unsub1 := dm.Request(context.Background(), key)
	valueCh2, unsub2 := dm.Request(context.Background(), key)
	defer unsub2()

	if len(ch.Requests()) != 1 {
		t.Fatalf("expected exactly 1 backend request across two subscribers, got %d", len(ch.Requests()))
	}

	unsub1()

	select {
	case _, ok := <-valueCh1:
		if ok {
			t.Fatal("unsubscribed subscriber's channel should be closed, not still receiving")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for unsubscribed subscriber's channel to close")
	}

	ch.Push(backend.DataFrame{Key: map[string]any{"id": "d5"}, Version: "base-1", Data: "hello"})

	got := waitFor(t, valueCh2)
	if got != "hello" {
		t.Fatalf("remaining subscriber got %v, want hello (its stream must survive the other's unsubscribe)", got)
	}

	_, unsub3 := dm.Request(context.Background(), key)
	defer unsub3()
	if len(ch.Requests()) != 1 {
		t.Fatalf("expected still exactly 1 backend request (no duplicate entry created), got %d", len(ch.Requests()))
	}
}

func TestFailureFrameIsPublishedToFailuresStream(t *testing.T) {
	st := store.New(memkv.New())
	ch := memchannel.New()
	dm := New(st, ch, nil)
	defer dm.Close()

	failCh, unsub := dm.Failures()
	defer unsub()

	ch.Fail(backend.FailureFrame{Key: map[string]any{"id": "d4"}, Reason: "conflict"})

	got := waitFor(t, failCh)
	if got.Reason != "conflict" {
		t.Fatalf("got %+v", got)
	}
}
