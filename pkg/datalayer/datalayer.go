// Package datalayer delivers attribute snapshots and messages to the
// companion device. Delivery is best-effort: Put and Send hand the item off
// and return, and nothing is retried.
package datalayer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Put and Send after Close.
var ErrClosed = errors.New("datalayer: closed")

// ErrBackpressure is returned when the outbound buffer is full and the item
// was dropped.
var ErrBackpressure = errors.New("datalayer: outbound buffer full")

// Sink replaces the data item stored at path. A nil payload is allowed and
// clears the item on the companion side.
type Sink interface {
	Put(ctx context.Context, path string, payload []byte) error
}

// Messenger sends a one-shot message to the companion.
type Messenger interface {
	Send(ctx context.Context, path string, payload []byte) error
}

// Op distinguishes data items from messages on the wire.
type Op string

const (
	OpPut     Op = "put"
	OpMessage Op = "message"
)

// Item is one outbound data item or message.
type Item struct {
	Op      Op     `cbor:"op"`
	Path    string `cbor:"path"`
	Payload []byte `cbor:"payload,omitempty"`
}

// LogSink logs every item instead of delivering it. It is used when no
// companion endpoint is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Put(ctx context.Context, path string, payload []byte) error {
	s.logger().InfoContext(ctx, "data item", "path", path, "bytes", len(payload))
	return nil
}

func (s LogSink) Send(ctx context.Context, path string, payload []byte) error {
	s.logger().InfoContext(ctx, "message", "path", path, "bytes", len(payload))
	return nil
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Recorder keeps every item in memory. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []Item
	err   error
}

// Fail makes subsequent Put and Send calls return err after recording.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Put(_ context.Context, path string, payload []byte) error {
	return r.add(Item{Op: OpPut, Path: path, Payload: payload})
}

func (r *Recorder) Send(_ context.Context, path string, payload []byte) error {
	return r.add(Item{Op: OpMessage, Path: path, Payload: payload})
}

func (r *Recorder) add(it Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, it)
	return r.err
}

// Items returns a copy of everything recorded so far.
func (r *Recorder) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Item, len(r.items))
	copy(out, r.items)
	return out
}

// Paths returns the paths of recorded items with the given op, in order.
func (r *Recorder) Paths(op Op) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, it := range r.items {
		if it.Op == op {
			out = append(out, it.Path)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
