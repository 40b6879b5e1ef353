package memchannel

import (
	"context"
	"testing"

	"tactical/pkg/backend"
)

func TestRequestRecordsKeys(t *testing.T) {
	c := New()
	ctx := context.Background()
	if err := c.Request(ctx, "key1"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := c.Request(ctx, "key2"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	got := c.Requests()
	if len(got) != 2 || got[0] != "key1" || got[1] != "key2" {
		t.Fatalf("Requests() = %v", got)
	}
}

func TestMutateRecordsCalls(t *testing.T) {
	c := New()
	ctx := context.Background()
	if err := c.Mutate(ctx, "key1", "base1", "value1", map[string]any{"a": 1.0}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	got := c.Mutations()
	if len(got) != 1 {
		t.Fatalf("len(Mutations()) = %d, want 1", len(got))
	}
	if got[0].Key != "key1" || got[0].Base != "base1" || got[0].Value != "value1" {
		t.Fatalf("unexpected MutateCall: %+v", got[0])
	}
}

func TestPushDeliversOnDataChannel(t *testing.T) {
	c := New()
	frame := backend.DataFrame{Key: "k", Version: "v1", Data: "payload"}
	c.Push(frame)

	got := <-c.Data()
	if got.Key != "k" || got.Data != "payload" {
		t.Fatalf("got %+v", got)
	}
}

func TestFailDeliversOnFailedChannel(t *testing.T) {
	c := New()
	frame := backend.FailureFrame{Key: "k", Reason: "rejected"}
	c.Fail(frame)

	got := <-c.Failed()
	if got.Reason != "rejected" {
		t.Fatalf("got %+v", got)
	}
}
