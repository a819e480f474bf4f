package revision

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/statemachine"
	"github.com/roach88/revkit/internal/store"
	"github.com/roach88/revkit/internal/testutil"
)

type fixture struct {
	store  *store.Store
	coll   *Collection
	clock  *testutil.Clock
	events *recordingSink
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, typ *schema.Type, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		store:  testutil.OpenStore(t),
		clock:  testutil.NewClock(),
		events: &recordingSink{},
	}
	opts := Options{
		Logger:     quietLogger(),
		Events:     f.events,
		Now:        f.clock.Now,
		SessionIDs: testutil.NewSessionIDs("").Next,
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.coll = NewCollection(f.store, typ, opts)
	return f
}

func articleFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	return newFixture(t, testutil.ArticleType(t), mutate...)
}

// activeFirstType starts records in "active"; content edits send them back
// to "draft".
func activeFirstType(t *testing.T) *schema.Type {
	t.Helper()
	typ, err := schema.Register(schema.EntityType{
		Name:       "page",
		LabelField: "label",
		Fields: []schema.Field{
			{Name: "label"},
			{Name: "content", Structural: true},
		},
		Definition: statemachine.Definition{
			States: []statemachine.State{
				{Name: "active", Initial: true},
				{Name: "draft"},
			},
			Transitions: []statemachine.Transition{
				{From: "active", To: "draft", On: statemachine.OnStructuralChange},
				{From: "draft", To: "active", On: statemachine.OnManual},
			},
		},
	})
	require.NoError(t, err)
	return typ
}

func (f *fixture) create(t *testing.T, fields map[string]any) *Revisionable {
	t.Helper()
	r, err := f.coll.CreateNewRecord(context.Background(), fields, "u1", "Ann")
	require.NoError(t, err)
	return r
}

// edit runs one full session setting fields.
func (f *fixture) edit(t *testing.T, r *Revisionable, fields map[string]any) bool {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.StartTransaction(ctx, "u2", "Bob", "edit"))
	for k, v := range fields {
		_, err := r.SetCustomKey(k, v)
		require.NoError(t, err)
	}
	committed, err := r.EndTransaction(ctx)
	require.NoError(t, err)
	return committed
}

func (f *fixture) pointer(t *testing.T, id int64) int64 {
	t.Helper()
	rev, err := f.coll.CurrentRevision(context.Background(), id)
	require.NoError(t, err)
	return rev
}

func (f *fixture) changelogCount(t *testing.T, id int64) int64 {
	t.Helper()
	n, err := f.coll.Changelog().Count(context.Background(), id)
	require.NoError(t, err)
	return n
}

type recordingSink struct {
	mu     sync.Mutex
	events []RecordEvent
}

func (s *recordingSink) add(ev RecordEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) RecordCreated(_ context.Context, ev RecordEvent)     { s.add(ev) }
func (s *recordingSink) RevisionCommitted(_ context.Context, ev RecordEvent) { s.add(ev) }
func (s *recordingSink) BeforeDelete(_ context.Context, ev RecordEvent)      { s.add(ev) }
func (s *recordingSink) RecordDeleted(_ context.Context, ev RecordEvent)     { s.add(ev) }

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}
