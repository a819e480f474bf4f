package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/revkit/internal/changelog"
	"github.com/roach88/revkit/internal/events"
	"github.com/roach88/revkit/internal/revision"
	"github.com/roach88/revkit/internal/store"
	"github.com/roach88/revkit/internal/testutil"
)

// DefaultAuthor authors steps that name no author.
const DefaultAuthor = "harness"

// Harness executes one scenario against an isolated store.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	coll     *revision.Collection
	clock    *testutil.Clock
	recorder *events.Recorder
	logger   *slog.Logger

	// ids maps scenario aliases to record IDs.
	ids map[string]int64
	// seen is the highest changelog entry ID already traced.
	seen int64
}

// Run executes a scenario and returns its result.
//
// Each run uses a fresh in-memory SQLite store, a deterministic clock
// starting at testutil.Epoch and predictable session IDs, so two runs of
// the same scenario produce identical traces.
//
// An error is returned only when the scenario cannot be executed at all.
// Step failures, unmet expectations and storage property violations are
// reported through Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	typ, err := scenario.resolveType()
	if err != nil {
		return nil, fmt.Errorf("failed to register record type: %w", err)
	}

	st, err := store.OpenSQLite(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		store:    st,
		clock:    testutil.NewClock(),
		recorder: &events.Recorder{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:      make(map[string]int64),
	}
	h.coll = revision.NewCollection(st, typ, revision.Options{
		Logger:        h.logger,
		Events:        h.recorder,
		Now:           h.clock.Now,
		SessionIDs:    testutil.NewSessionIDs("").Next,
		Simulation:    scenario.Simulation,
		DeletionDelay: scenario.deletionDelay(),
	})

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, expected, err := h.execute(ctx, i, step)
		if err != nil {
			ev.Error = errorCode(err)
		}
		h.checkStepError(i, ev, expected, err, result)
		result.Trace = append(result.Trace, ev)
	}

	for _, exp := range scenario.Expect {
		for _, e := range h.checkExpectation(ctx, exp) {
			result.AddError(e.Error())
		}
	}

	violations, err := CheckProperties(ctx, h.coll)
	if err != nil {
		return nil, fmt.Errorf("failed to check storage properties: %w", err)
	}
	for _, v := range violations {
		result.AddError(v)
	}

	result.Events = append(result.Events, h.recorder.Kinds()...)
	for alias, id := range h.ids {
		result.Records[alias] = id
	}
	return result, nil
}

// execute runs one step and returns its trace event and expected error code.
func (h *Harness) execute(ctx context.Context, idx int, step Step) (TraceEvent, string, error) {
	ev := TraceEvent{Step: idx}

	switch {
	case step.Create != nil:
		ev.Op = OpCreate
		ev.Record = step.Create.As
		return ev, step.Create.ExpectError, h.create(ctx, step.Create, &ev)

	case step.Edit != nil:
		ev.Op = OpEdit
		ev.Record = step.Edit.Record
		return ev, step.Edit.ExpectError, h.edit(ctx, step.Edit, &ev)

	case step.Delete != nil:
		ev.Record = step.Delete.Record
		switch {
		case step.Delete.Now:
			ev.Op = OpDestroy
		case step.Delete.Cancel:
			ev.Op = OpCancel
		default:
			ev.Op = OpDelete
		}
		return ev, step.Delete.ExpectError, h.delete(ctx, step.Delete, &ev)

	case step.Advance != "":
		ev.Op = OpAdvance
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return ev, "", err
		}
		h.clock.Advance(d)
		return ev, "", nil

	default:
		ev.Op = OpPurge
		purged, err := h.coll.PurgeExpired(ctx)
		ev.Purged = purged
		return ev, "", err
	}
}

func (h *Harness) create(ctx context.Context, s *CreateStep, ev *TraceEvent) error {
	author := s.Author
	if author == "" {
		author = DefaultAuthor
	}
	r, err := h.coll.CreateNewRecord(ctx, s.Fields, author, s.AuthorName)
	if err != nil {
		return err
	}
	h.ids[s.As] = r.ID()
	h.logger.Info("scenario record created", "alias", s.As, "record_id", r.ID())
	return h.observe(ctx, ev, r.ID())
}

func (h *Harness) edit(ctx context.Context, s *EditStep, ev *TraceEvent) error {
	id, err := h.lookup(s.Record)
	if err != nil {
		return err
	}
	r, err := h.coll.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.Revision > 0 {
		if err := r.SelectRevision(ctx, s.Revision); err != nil {
			return err
		}
	}
	if s.Simulate != nil {
		h.coll.SetSimulation(*s.Simulate)
		defer h.coll.SetSimulation(h.scenario.Simulation)
	}

	author := s.Author
	if author == "" {
		author = DefaultAuthor
	}
	if err := r.StartTransaction(ctx, author, author, s.Comments); err != nil {
		return err
	}

	keys := make([]string, 0, len(s.Set))
	for k := range s.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	err = func() error {
		for _, k := range keys {
			if _, err := r.SetCustomKey(k, s.Set[k]); err != nil {
				return err
			}
		}
		if s.State != "" {
			return r.SetState(s.State)
		}
		return nil
	}()
	if err != nil {
		if rbErr := r.RollBackTransaction(ctx); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
	} else if s.Rollback {
		err = r.RollBackTransaction(ctx)
	} else {
		_, err = r.EndTransaction(ctx)
	}
	ev.Outcome = r.LastOutcome().String()

	if obsErr := h.observe(ctx, ev, id); obsErr != nil && err == nil {
		err = obsErr
	}
	return err
}

func (h *Harness) delete(ctx context.Context, s *DeleteStep, ev *TraceEvent) error {
	id, err := h.lookup(s.Record)
	if err != nil {
		return err
	}
	ev.RecordID = id

	switch {
	case s.Now:
		return h.coll.Destroy(ctx, id)
	case s.Cancel:
		if err := h.coll.CancelDeletion(ctx, id); err != nil {
			return err
		}
	default:
		if _, err := h.coll.ScheduleDeletion(ctx, id); err != nil {
			return err
		}
	}
	ok, err := h.coll.Exists(ctx, id)
	if err != nil || !ok {
		return err
	}
	return h.observe(ctx, ev, id)
}

func (h *Harness) lookup(alias string) (int64, error) {
	id, ok := h.ids[alias]
	if !ok {
		return 0, fmt.Errorf("record %q was not created", alias)
	}
	return id, nil
}

// observe fills ev with the record's current revision and state and the
// changelog entries appended since the previous step.
func (h *Harness) observe(ctx context.Context, ev *TraceEvent, id int64) error {
	ev.RecordID = id
	r, err := h.coll.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ev.Revision = r.Revision()
	ev.State = r.State()

	entries, err := r.Changelog(ctx, changelog.Filter{Ascending: true})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID > h.seen {
			ev.Changes = append(ev.Changes, e)
		}
	}
	for _, e := range ev.Changes {
		if e.ID > h.seen {
			h.seen = e.ID
		}
	}
	return nil
}

func (h *Harness) checkStepError(idx int, ev TraceEvent, expected string, err error, result *Result) {
	switch {
	case err != nil && expected == "":
		result.AddError(fmt.Sprintf("step %d (%s %s): unexpected error: %v", idx, ev.Op, ev.Record, err))
	case err == nil && expected != "":
		result.AddError(fmt.Sprintf("step %d (%s %s): expected error %s, got none", idx, ev.Op, ev.Record, expected))
	case err != nil && ev.Error != expected:
		result.AddError(fmt.Sprintf("step %d (%s %s): expected error %s, got %s: %v", idx, ev.Op, ev.Record, expected, ev.Error, err))
	}
}

// errorCode returns the revision error code of err, or ERROR for
// failures that carry none.
func errorCode(err error) string {
	if code := revision.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}
