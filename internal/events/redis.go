package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/roach88/revkit/internal/config"
	"github.com/roach88/revkit/internal/revision"
)

// DefaultStream is the Redis stream events are published to when the
// configuration names none.
const DefaultStream = "revkit:events"

// StreamAdder is the part of *redis.Client the sink needs.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink publishes events to a Redis stream with XADD. Each entry has
// the fields type, record_type, record_id, timestamp (unix seconds) and
// data (the event as JSON).
type RedisSink struct {
	client StreamAdder
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewRedisClient creates a client from the events.redis configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return nil
}

// NewRedisSink publishes to stream through client. maxLen > 0 caps the
// stream length approximately.
func NewRedisSink(client StreamAdder, stream string, maxLen int64, logger *slog.Logger) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen, logger: logger}
}

// Publish adds one event to the stream and returns the entry ID.
func (s *RedisSink) Publish(ctx context.Context, ev revision.RecordEvent) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"type":        ev.Kind,
			"record_type": ev.RecordType,
			"record_id":   strconv.FormatInt(ev.RecordID, 10),
			"timestamp":   strconv.FormatInt(ev.At.Unix(), 10),
			"data":        string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return id, nil
}

func (s *RedisSink) publish(ctx context.Context, ev revision.RecordEvent) {
	id, err := s.Publish(ctx, ev)
	if err != nil {
		s.logger.Warn("event publish failed",
			"kind", ev.Kind, "record_id", ev.RecordID, "stream", s.stream, "error", err)
		return
	}
	s.logger.Debug("event published", "kind", ev.Kind, "record_id", ev.RecordID, "id", id)
}

func (s *RedisSink) RecordCreated(ctx context.Context, ev revision.RecordEvent)     { s.publish(ctx, ev) }
func (s *RedisSink) RevisionCommitted(ctx context.Context, ev revision.RecordEvent) { s.publish(ctx, ev) }
func (s *RedisSink) BeforeDelete(ctx context.Context, ev revision.RecordEvent)      { s.publish(ctx, ev) }
func (s *RedisSink) RecordDeleted(ctx context.Context, ev revision.RecordEvent)     { s.publish(ctx, ev) }
