// Package backend defines the Backend Channel contract the Data Manager
// depends on (spec.md section 6): outbound Request/Mutate calls, and
// inbound Data/Failed frame streams.
package backend

import "context"

// DataFrame is a backend-authoritative value for a key, optionally
// correlated back to a previously-submitted mutation via
// MutationContext.
type DataFrame struct {
	Key             any
	Version         string
	Data            any
	MutationContext map[string]any
	HasMutationCtx  bool
}

// FailureFrame reports that a previously-submitted mutation was
// rejected for a non-version reason.
type FailureFrame struct {
	Key           any
	BaseVersion   string
	Context       map[string]any
	Reason        string
	DebuggingInfo any
}

// Channel is the bidirectional frame transport between this client and
// the backend. Implementations: backend/memchannel (in-process fake for
// tests) and backend/wschannel (a reference websocket framing).
type Channel interface {
	// Request asks the backend for the latest version of key.
	Request(ctx context.Context, key any) error
	// Mutate submits a local mutation built on base for key.
	Mutate(ctx context.Context, key any, base string, value any, mutContext map[string]any) error
	// Data streams backend-authoritative values as they arrive.
	Data() <-chan DataFrame
	// Failed streams mutation rejections as they arrive.
	Failed() <-chan FailureFrame
}
