// Package events provides EventSink implementations for record lifecycle
// events: structured logging, Redis Streams publishing, fan-out and an
// in-memory recorder.
//
// Sinks run after the operation that produced the event has finished.
// A failing sink logs and returns; it never reaches back into the record.
package events

import (
	"context"
	"sync"

	"github.com/roach88/revkit/internal/revision"
)

// Nop discards every event.
type Nop struct{}

func (Nop) RecordCreated(context.Context, revision.RecordEvent)     {}
func (Nop) RevisionCommitted(context.Context, revision.RecordEvent) {}
func (Nop) BeforeDelete(context.Context, revision.RecordEvent)      {}
func (Nop) RecordDeleted(context.Context, revision.RecordEvent)     {}

// Multi delivers each event to every sink in order.
type Multi []revision.EventSink

// NewMulti builds a Multi, skipping nil sinks.
func NewMulti(sinks ...revision.EventSink) Multi {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m Multi) RecordCreated(ctx context.Context, ev revision.RecordEvent) {
	for _, s := range m {
		s.RecordCreated(ctx, ev)
	}
}

func (m Multi) RevisionCommitted(ctx context.Context, ev revision.RecordEvent) {
	for _, s := range m {
		s.RevisionCommitted(ctx, ev)
	}
}

func (m Multi) BeforeDelete(ctx context.Context, ev revision.RecordEvent) {
	for _, s := range m {
		s.BeforeDelete(ctx, ev)
	}
}

func (m Multi) RecordDeleted(ctx context.Context, ev revision.RecordEvent) {
	for _, s := range m {
		s.RecordDeleted(ctx, ev)
	}
}

// Recorder keeps every event in memory, in delivery order.
//
// Thread-safety: safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []revision.RecordEvent
}

func (r *Recorder) add(ev revision.RecordEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) RecordCreated(_ context.Context, ev revision.RecordEvent)     { r.add(ev) }
func (r *Recorder) RevisionCommitted(_ context.Context, ev revision.RecordEvent) { r.add(ev) }
func (r *Recorder) BeforeDelete(_ context.Context, ev revision.RecordEvent)      { r.add(ev) }
func (r *Recorder) RecordDeleted(_ context.Context, ev revision.RecordEvent)     { r.add(ev) }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []revision.RecordEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]revision.RecordEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events.
func (r *Recorder) Kinds() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

// Reset drops every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
