package events

import (
	"context"
	"log/slog"

	"github.com/roach88/revkit/internal/revision"
)

// SlogSink writes each event as one structured log line.
type SlogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogSink logs events to logger at level. A nil logger uses slog.Default().
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger, level: level}
}

func (s *SlogSink) log(ctx context.Context, ev revision.RecordEvent) {
	attrs := []slog.Attr{
		slog.String("kind", ev.Kind),
		slog.String("record_type", ev.RecordType),
		slog.Int64("record_id", ev.RecordID),
	}
	if ev.Revision > 0 {
		attrs = append(attrs, slog.Int64("revision", ev.Revision))
	}
	if ev.State != "" {
		attrs = append(attrs, slog.String("state", ev.State))
	}
	if ev.PreviousState != "" && ev.PreviousState != ev.State {
		attrs = append(attrs, slog.String("previous_state", ev.PreviousState))
	}
	if ev.AuthorID != "" {
		attrs = append(attrs, slog.String("author", ev.AuthorID))
	}
	if len(ev.Changed) > 0 {
		attrs = append(attrs, slog.Any("changed", ev.Changed))
	}
	if ev.Structural {
		attrs = append(attrs, slog.Bool("structural", true))
	}
	if !ev.DeleteAfter.IsZero() {
		attrs = append(attrs, slog.Time("delete_after", ev.DeleteAfter))
	}
	s.logger.LogAttrs(ctx, s.level, "record event", attrs...)
}

func (s *SlogSink) RecordCreated(ctx context.Context, ev revision.RecordEvent)     { s.log(ctx, ev) }
func (s *SlogSink) RevisionCommitted(ctx context.Context, ev revision.RecordEvent) { s.log(ctx, ev) }
func (s *SlogSink) BeforeDelete(ctx context.Context, ev revision.RecordEvent)      { s.log(ctx, ev) }
func (s *SlogSink) RecordDeleted(ctx context.Context, ev revision.RecordEvent)     { s.log(ctx, ev) }
