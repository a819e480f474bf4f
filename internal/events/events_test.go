package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revkit/internal/config"
	"github.com/roach88/revkit/internal/revision"
	"github.com/roach88/revkit/internal/testutil"
)

var at = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func committedEvent() revision.RecordEvent {
	return revision.RecordEvent{
		Kind:          revision.EventRevisionCommitted,
		RecordType:    "article",
		RecordID:      7,
		Revision:      3,
		State:         "draft",
		PreviousState: "active",
		AuthorID:      "u2",
		SessionID:     "session-0001",
		Changed:       []string{"content"},
		Structural:    true,
		At:            at,
	}
}

type fakeStream struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	return redis.NewStringResult("1700000000000-0", nil)
}

func TestRedisSink_Publish(t *testing.T) {
	stream := &fakeStream{}
	sink := NewRedisSink(stream, "audit", 1000, slog.New(slog.NewTextHandler(io.Discard, nil)))

	id, err := sink.Publish(context.Background(), committedEvent())
	require.NoError(t, err)
	assert.Equal(t, "1700000000000-0", id)

	require.Len(t, stream.args, 1)
	args := stream.args[0]
	assert.Equal(t, "audit", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values, ok := args.Values.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, revision.EventRevisionCommitted, values["type"])
	assert.Equal(t, "article", values["record_type"])
	assert.Equal(t, "7", values["record_id"])
	assert.Equal(t, "1791970200", values["timestamp"])

	var decoded revision.RecordEvent
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, committedEvent(), decoded)
}

func TestRedisSink_DefaultStream(t *testing.T) {
	stream := &fakeStream{}
	sink := NewRedisSink(stream, "", 0, nil)
	sink.RecordCreated(context.Background(), revision.RecordEvent{Kind: revision.EventRecordCreated, At: at})

	require.Len(t, stream.args, 1)
	assert.Equal(t, DefaultStream, stream.args[0].Stream)
	assert.Zero(t, stream.args[0].MaxLen)
}

func TestRedisSink_FailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	stream := &fakeStream{err: errors.New("connection refused")}
	sink := NewRedisSink(stream, "audit", 0, slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := sink.Publish(context.Background(), committedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xadd audit")

	sink.RevisionCommitted(context.Background(), committedEvent())
	assert.Contains(t, buf.String(), "event publish failed")
	assert.Contains(t, buf.String(), "connection refused")
}

func TestNewRedisClient(t *testing.T) {
	client := NewRedisClient(config.RedisConfig{Addr: "127.0.0.1:1", DB: 3})
	defer client.Close()
	assert.Equal(t, "127.0.0.1:1", client.Options().Addr)
	assert.Equal(t, 3, client.Options().DB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, Ping(ctx, client))
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelInfo)

	sink.RevisionCommitted(context.Background(), committedEvent())

	out := buf.String()
	assert.Contains(t, out, "record event")
	assert.Contains(t, out, "kind=revision.committed")
	assert.Contains(t, out, "record_id=7")
	assert.Contains(t, out, "revision=3")
	assert.Contains(t, out, "previous_state=active")
	assert.Contains(t, out, "structural=true")
}

func TestSlogSink_BelowLevelIsDropped(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelDebug)
	sink.RecordDeleted(context.Background(), revision.RecordEvent{Kind: revision.EventRecordDeleted})
	assert.Empty(t, buf.String())
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := NewMulti(a, nil, b, Nop{})
	require.Len(t, m, 3)

	ctx := context.Background()
	m.RecordCreated(ctx, revision.RecordEvent{Kind: revision.EventRecordCreated})
	m.RevisionCommitted(ctx, revision.RecordEvent{Kind: revision.EventRevisionCommitted})
	m.BeforeDelete(ctx, revision.RecordEvent{Kind: revision.EventBeforeDelete})
	m.RecordDeleted(ctx, revision.RecordEvent{Kind: revision.EventRecordDeleted})

	want := []string{
		revision.EventRecordCreated, revision.EventRevisionCommitted,
		revision.EventBeforeDelete, revision.EventRecordDeleted,
	}
	assert.Equal(t, want, a.Kinds())
	assert.Equal(t, want, b.Kinds())

	a.Reset()
	assert.Empty(t, a.Events())
}

func TestRecorder_WithCollection(t *testing.T) {
	rec := &Recorder{}
	clock := testutil.NewClock()
	coll := revision.NewCollection(testutil.OpenStore(t), testutil.ArticleType(t), revision.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Events: rec,
		Now:    clock.Now,
	})
	ctx := context.Background()

	r, err := coll.CreateNewRecord(ctx, map[string]any{"label": "A"}, "u1", "Ann")
	require.NoError(t, err)
	require.NoError(t, r.StartTransaction(ctx, "u1", "Ann", ""))
	_, err = r.SetString("content", "body")
	require.NoError(t, err)
	_, err = r.EndTransaction(ctx)
	require.NoError(t, err)

	evs := rec.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, revision.EventRecordCreated, evs[0].Kind)
	assert.Equal(t, testutil.Epoch, evs[0].At)
	assert.Equal(t, revision.EventRevisionCommitted, evs[1].Kind)
	assert.True(t, evs[1].Structural)
	assert.Equal(t, []string{"content"}, evs[1].Changed)
}
