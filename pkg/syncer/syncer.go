// Package syncer mirrors vehicle attributes to the data layer. Raw session
// events are resolved to attribute keys, the current snapshot for each key is
// read from the session and pushed to the sink as a full replace.
package syncer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/germanamz/dronebridge/pkg/attribute"
	"github.com/germanamz/dronebridge/pkg/datalayer"
	"github.com/germanamz/dronebridge/pkg/session"
)

// DefaultPrefix is the data-layer path prefix for vehicle attributes.
const DefaultPrefix = "/vehicle/data/"

// Source provides encoded attribute snapshots.
type Source interface {
	Attribute(key attribute.Key) []byte
}

// Options configures a Synchronizer.
type Options struct {
	Prefix string // Path prefix (default DefaultPrefix).
	Logger *slog.Logger
}

// Synchronizer pushes attribute snapshots from a Source to a Sink.
type Synchronizer struct {
	src    Source
	sink   datalayer.Sink
	prefix string
	log    *slog.Logger
}

// New creates a Synchronizer.
func New(src Source, sink datalayer.Sink, opts Options) *Synchronizer {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if !strings.HasSuffix(opts.Prefix, "/") {
		opts.Prefix += "/"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Synchronizer{
		src:    src,
		sink:   sink,
		prefix: opts.Prefix,
		log:    opts.Logger,
	}
}

// Path returns the data-layer path for key.
func (s *Synchronizer) Path(key attribute.Key) string {
	return s.prefix + string(key)
}

// OnRawEvent publishes every key the event maps to and returns how many
// snapshots were pushed. Unmapped events are ignored.
func (s *Synchronizer) OnRawEvent(ctx context.Context, ev session.Event) int {
	keys := attribute.Resolve(ev.Name)
	if len(keys) == 0 {
		return 0
	}

	pushed := 0
	for _, k := range keys {
		if s.Publish(ctx, k) {
			pushed++
		}
	}

	return pushed
}

// RefreshAll publishes every known key.
func (s *Synchronizer) RefreshAll(ctx context.Context) int {
	return s.OnRawEvent(ctx, session.Event{Name: attribute.EventConnected})
}

// Publish pushes the current snapshot for key. It reports false, without
// touching the sink, when the session has no value. Sink failures are
// logged and otherwise ignored.
func (s *Synchronizer) Publish(ctx context.Context, key attribute.Key) bool {
	snapshot := s.src.Attribute(key)
	if snapshot == nil {
		return false
	}

	if err := s.sink.Put(ctx, s.Path(key), snapshot); err != nil {
		s.log.WarnContext(ctx, "attribute push failed", "attribute", string(key), "error", err)
	}

	return true
}
