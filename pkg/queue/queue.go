// Package queue holds vehicle commands until the remote session has started.
// Commands submitted while the session is started run immediately; the rest
// wait in FIFO order and run exactly once when the session starts.
package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/germanamz/dronebridge/pkg/command"
)

// Gate reports whether commands may run now.
type Gate interface {
	IsStarted() bool
}

// ExecFunc runs one command. Returned errors are logged and dropped.
type ExecFunc func(ctx context.Context, c command.Command) error

// Queue buffers commands behind a Gate. It is safe for concurrent use.
type Queue struct {
	gate Gate
	exec ExecFunc
	log  *slog.Logger

	mu      sync.Mutex
	pending []command.Command
}

// New creates a Queue. A nil logger uses slog.Default().
func New(gate Gate, exec ExecFunc, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}

	return &Queue{
		gate: gate,
		exec: exec,
		log:  log,
	}
}

// Submit runs c now if the gate is open, otherwise appends it to the pending
// list. It never blocks on the gate. The return value reports whether c was
// queued.
func (q *Queue) Submit(ctx context.Context, c command.Command) bool {
	q.mu.Lock()
	if !q.gate.IsStarted() {
		q.pending = append(q.pending, c)
		n := len(q.pending)
		q.mu.Unlock()

		q.log.DebugContext(ctx, "command queued", "command", c.Kind.String(), "id", c.ID, "pending", n)
		return true
	}
	q.mu.Unlock()

	q.run(ctx, c)
	return false
}

// OnStarted drains the pending list in insertion order and returns how many
// commands ran. Commands submitted while the flush runs are not part of it.
func (q *Queue) OnStarted(ctx context.Context) int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) > 0 {
		q.log.InfoContext(ctx, "flushing queued commands", "count", len(batch))
	}

	for _, c := range batch {
		q.run(ctx, c)
	}

	return len(batch)
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drop discards every pending command and returns how many were dropped.
func (q *Queue) Drop() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	q.pending = nil
	return n
}

func (q *Queue) run(ctx context.Context, c command.Command) {
	if err := q.exec(ctx, c); err != nil {
		q.log.WarnContext(ctx, "command failed", "command", c.Kind.String(), "id", c.ID, "error", err)
		return
	}
	q.log.DebugContext(ctx, "command executed", "command", c.Kind.String(), "id", c.ID)
}
