// Package memchannel is an in-process backend.Channel fake: Request and
// Mutate calls are recorded for assertions, and tests drive Data/Failed
// frames directly through Push/Fail. It exists purely to make
// datamanager tests deterministic without any real network I/O, playing
// the same role the teacher's in-memory B-tree plays for pkg/mvcc's own
// tests.
package memchannel

import (
	"context"
	"sync"

	"tactical/pkg/backend"
)

const frameBuffer = 32

// Channel is the in-process backend.Channel fake.
type Channel struct {
	mu        sync.Mutex
	requests  []any
	mutations []MutateCall
	data      chan backend.DataFrame
	failed    chan backend.FailureFrame
}

// MutateCall records one Mutate invocation for test assertions.
type MutateCall struct {
	Key     any
	Base    string
	Value   any
	Context map[string]any
}

// New creates an empty Channel.
func New() *Channel {
	return &Channel{
		data:   make(chan backend.DataFrame, frameBuffer),
		failed: make(chan backend.FailureFrame, frameBuffer),
	}
}

func (c *Channel) Request(_ context.Context, key any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, key)
	return nil
}

func (c *Channel) Mutate(_ context.Context, key any, base string, value any, mutContext map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mutations = append(c.mutations, MutateCall{Key: key, Base: base, Value: value, Context: mutContext})
	return nil
}

func (c *Channel) Data() <-chan backend.DataFrame      { return c.data }
func (c *Channel) Failed() <-chan backend.FailureFrame { return c.failed }

// Push delivers a DataFrame as if it arrived from the backend.
func (c *Channel) Push(f backend.DataFrame) { c.data <- f }

// Fail delivers a FailureFrame as if it arrived from the backend.
func (c *Channel) Fail(f backend.FailureFrame) { c.failed <- f }

// Requests returns every key Request has been called with, in order.
func (c *Channel) Requests() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.requests...)
}

// Mutations returns every Mutate call recorded so far, in order.
func (c *Channel) Mutations() []MutateCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]MutateCall(nil), c.mutations...)
}
