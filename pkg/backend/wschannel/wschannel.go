// Package wschannel is a reference backend.Channel implementation that
// frames requests, mutations, data frames, and failure frames as JSON
// messages over a single github.com/gorilla/websocket connection,
// the same library the retrieval pack's k3s-io/k3s tree uses in
// pkg/agent/tunnel for its agent-to-server tunnel.
//
// Outbound Mutate calls are tagged with a github.com/google/uuid
// correlation id (the same library k3s-io/k3s's pkg/etcd/etcd.go uses
// for generating opaque ids) stashed in the mutation context under the
// correlationKey field, so a DataFrame's MutationContext round trip
// can be traced back to the Mutate call that produced it. The Data
// Manager does not read this field; it resolves acknowledgments through
// its own "_version" context field.
package wschannel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tactical/internal/telemetry"
	"tactical/pkg/backend"
)

// correlationKey is the mutation-context field Mutate stamps with a
// fresh uuid so a later DataFrame.MutationContext can be traced back to
// the call that produced it.
const correlationKey = "_correlationID"

const frameBuffer = 64

type wireFrame struct {
	Type            string         `json:"type"`
	Key             any            `json:"key,omitempty"`
	Base            string         `json:"base,omitempty"`
	Value           any            `json:"value,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
	Version         string         `json:"version,omitempty"`
	Data            any            `json:"data,omitempty"`
	MutationContext map[string]any `json:"mutationContext,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	DebuggingInfo   any            `json:"debuggingInfo,omitempty"`
}

// Channel frames backend.Channel traffic over a websocket connection.
type Channel struct {
	conn   *websocket.Conn
	log    telemetry.Logger
	writeM sync.Mutex

	data   chan backend.DataFrame
	failed chan backend.FailureFrame

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps conn and starts the background read loop that demultiplexes
// inbound "data" and "failed" frames onto Data()/Failed().
func New(conn *websocket.Conn, log telemetry.Logger) *Channel {
	if log == nil {
		log = telemetry.NewNop()
	}
	c := &Channel{
		conn:   conn,
		log:    log.With("component", "wschannel"),
		data:   make(chan backend.DataFrame, frameBuffer),
		failed: make(chan backend.FailureFrame, frameBuffer),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	defer close(c.data)
	defer close(c.failed)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.log.With("error", err).Warn("websocket read loop exiting")
			return
		}
		var frame wireFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.With("error", err).Warn("dropping malformed frame")
			continue
		}
		switch frame.Type {
		case "data":
			df := backend.DataFrame{
				Key:     frame.Key,
				Version: frame.Version,
				Data:    frame.Data,
			}
			if frame.MutationContext != nil {
				df.MutationContext = frame.MutationContext
				df.HasMutationCtx = true
			}
			select {
			case c.data <- df:
			case <-c.closed:
				return
			}
		case "failed":
			select {
			case c.failed <- backend.FailureFrame{
				Key:           frame.Key,
				BaseVersion:   frame.Base,
				Context:       frame.Context,
				Reason:        frame.Reason,
				DebuggingInfo: frame.DebuggingInfo,
			}:
			case <-c.closed:
				return
			}
		default:
			c.log.With("frameType", frame.Type).Warn("dropping frame of unknown type")
		}
	}
}

func (c *Channel) send(f wireFrame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("wschannel: encode frame: %w", err)
	}
	c.writeM.Lock()
	defer c.writeM.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Channel) Request(_ context.Context, key any) error {
	return c.send(wireFrame{Type: "request", Key: key})
}

func (c *Channel) Mutate(_ context.Context, key any, base string, value any, mutContext map[string]any) error {
	ctx := make(map[string]any, len(mutContext)+1)
	for k, v := range mutContext {
		ctx[k] = v
	}
	ctx[correlationKey] = uuid.NewString()
	return c.send(wireFrame{Type: "mutate", Key: key, Base: base, Value: value, Context: ctx})
}

func (c *Channel) Data() <-chan backend.DataFrame      { return c.data }
func (c *Channel) Failed() <-chan backend.FailureFrame { return c.failed }

// Close stops the read loop and closes the underlying connection.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}
