package harness

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revkit/internal/revision"
	"github.com/roach88/revkit/internal/testutil"
)

const noteSchema = `
schema:
  name: note
  label_field: label
  fields:
    - {name: label, type: string, required: true}
    - {name: content, type: string, structural: true}
  states:
    - {name: draft, initial: true}
    - {name: active}
  transitions:
    - {from: draft, to: active}
    - {from: active, to: draft, on: structural-change}
`

func parse(t *testing.T, body string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(body))
	require.NoError(t, err)
	return s
}

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/lifecycle.yaml")
	require.NoError(t, err)

	assert.Equal(t, "lifecycle", s.Name)
	require.NotNil(t, s.Schema)
	assert.Equal(t, "article", s.Schema.Name)
	require.Len(t, s.Steps, 6)
	assert.Equal(t, "a", s.Steps[0].Create.As)
	assert.Equal(t, "active", s.Steps[1].Edit.State)
	assert.Equal(t, "73h", s.Steps[4].Advance)
	assert.True(t, s.Steps[5].Purge)
	require.Len(t, s.Expect, 1)
	require.NotNil(t, s.Expect[0].Exists)
	assert.False(t, *s.Expect[0].Exists)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no name", noteSchema + "steps:\n  - purge: true\n", "name is required"},
		{"no schema", "name: x\nsteps:\n  - purge: true\n", "exactly one of schema or schema_file"},
		{"both schemas", "name: x\nschema_file: t.yaml\n" + noteSchema + "steps:\n  - purge: true\n", "exactly one of schema or schema_file"},
		{"no steps", "name: x\n" + noteSchema, "at least one step"},
		{"two operations", "name: x\n" + noteSchema + "steps:\n  - {purge: true, advance: 1h}\n", "exactly one operation"},
		{"unknown record", "name: x\n" + noteSchema + "steps:\n  - edit: {record: ghost}\n", `unknown record "ghost"`},
		{"duplicate alias", "name: x\n" + noteSchema + "steps:\n  - create: {as: a, fields: {label: A}}\n  - create: {as: a, fields: {label: B}}\n", "already defined"},
		{"missing alias", "name: x\n" + noteSchema + "steps:\n  - create: {fields: {label: A}}\n", "create.as is required"},
		{"bad advance", "name: x\n" + noteSchema + "steps:\n  - advance: soon\n", "advance"},
		{"negative advance", "name: x\n" + noteSchema + "steps:\n  - advance: -1h\n", "must not be negative"},
		{"bad delay", "name: x\ndeletion_delay: later\n" + noteSchema + "steps:\n  - purge: true\n", "deletion_delay"},
		{"now and cancel", "name: x\n" + noteSchema + "steps:\n  - create: {as: a, fields: {label: A}}\n  - delete: {record: a, now: true, cancel: true}\n", "both now and cancel"},
		{"expect unknown record", "name: x\n" + noteSchema + "steps:\n  - purge: true\nexpect:\n  - {record: a}\n", `unknown record "a"`},
		{"unknown key", "name: x\n" + noteSchema + "steps:\n  - purge: true\nflow: []\n", "flow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"lifecycle", "sessions"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata/scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_IsDeterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/sessions.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Events, second.Events)
}

func TestRun_SchemaFile(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/select_revision.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, int64(1), result.Records["a"])

	last := result.Trace[3]
	assert.Equal(t, string(revision.ErrCodeRevisionNotFound), last.Error)
	assert.Equal(t, int64(3), result.Trace[2].Revision)
}

func TestRun_ExpectationFailures(t *testing.T) {
	s := parse(t, "name: wrong\n"+noteSchema+`
steps:
  - create: {as: a, fields: {label: "A"}}
expect:
  - record: a
    current_revision: 2
    state: active
    fields: {label: "Z"}
    changelog_count: 5
    revision_exists: [4]
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	all := strings.Join(result.Errors, "\n")
	for _, want := range []string{"current_revision", "state", "field label", "changelog_count", "revision_exists"} {
		assert.Contains(t, all, want)
	}
}

func TestRun_StepErrors(t *testing.T) {
	s := parse(t, "name: step_errors\n"+noteSchema+`
steps:
  - create: {as: a, fields: {label: "A"}}
  - edit: {record: a, set: {nope: 1}}
  - edit: {record: a, set: {label: "B"}, expect_error: UNKNOWN_FIELD}
  - edit: {record: a, state: archived, expect_error: INVALID_TRANSITION}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.Errors[1], "expected error UNKNOWN_FIELD, got none")
	assert.Contains(t, result.Errors[2], "expected error INVALID_TRANSITION, got INVALID_STATE")
}

func TestRun_UncreatedRecord(t *testing.T) {
	s := parse(t, "name: uncreated\n"+noteSchema+`
steps:
  - create: {as: a, fields: {}, expect_error: REQUIRED_FIELD_MISSING}
  - edit: {record: a, set: {label: "B"}}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `record "a" was not created`)
	assert.Equal(t, "ERROR", result.Trace[1].Error)
}

func TestRun_DeletionSteps(t *testing.T) {
	s := parse(t, "name: deletion\ndeletion_delay: 1h\n"+noteSchema+`
steps:
  - create: {as: a, fields: {label: "A"}}
  - create: {as: b, fields: {label: "B"}}
  - create: {as: c, fields: {label: "C"}}
  - delete: {record: a}
  - delete: {record: b}
  - delete: {record: b, cancel: true}
  - delete: {record: c, now: true}
  - advance: 2h
  - purge: true
expect:
  - {record: a, exists: false}
  - {record: b, exists: true, current_revision: 1}
  - {record: c, exists: false}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, OpCancel, result.Trace[5].Op)
	assert.Equal(t, OpDestroy, result.Trace[6].Op)
	assert.Equal(t, []int64{1}, result.Trace[8].Purged)
	assert.Equal(t, []string{
		revision.EventRecordCreated, revision.EventRecordCreated, revision.EventRecordCreated,
		revision.EventBeforeDelete, revision.EventBeforeDelete,
		revision.EventRecordDeleted, revision.EventRecordDeleted,
	}, result.Events)
}

func TestRun_SimulatedScenario(t *testing.T) {
	s := parse(t, "name: simulated\nsimulation: true\n"+noteSchema+`
steps:
  - create: {as: a, fields: {label: "A"}}
  - edit: {record: a, set: {label: "B"}}
  - edit: {record: a, set: {label: "C"}, simulate: false}
expect:
  - {record: a, current_revision: 2, fields: {label: "C"}}
`)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, revision.OutcomeSimulated.String(), result.Trace[1].Outcome)
	assert.Equal(t, revision.OutcomeCommitted.String(), result.Trace[2].Outcome)
}

func TestRun_InvalidSchema(t *testing.T) {
	s := parse(t, `
name: bad_schema
schema:
  name: broken
  fields:
    - {name: revision, type: string}
  states:
    - {name: draft, initial: true, terminal: true}
steps:
  - purge: true
`)
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register record type")
}

func TestCheckProperties(t *testing.T) {
	ctx := context.Background()
	st := testutil.OpenStore(t)
	coll := revision.NewCollection(st, testutil.ArticleType(t), revision.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    testutil.NewClock().Now,
	})

	r, err := coll.CreateNewRecord(ctx, map[string]any{"label": "A"}, "u1", "")
	require.NoError(t, err)

	violations, err := CheckProperties(ctx, coll)
	require.NoError(t, err)
	assert.Empty(t, violations)

	_, err = st.DB().ExecContext(ctx, "DELETE FROM changelog WHERE record_id = ?", r.ID())
	require.NoError(t, err)

	violations, err = CheckProperties(ctx, coll)
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Contains(t, violations[0], "does not start with a created entry")
	assert.Contains(t, violations[1], "revision 1 has no changelog entries")
}

func TestFindScenarios(t *testing.T) {
	all, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata/scenarios", "lifecycle.yaml"),
		filepath.Join("testdata/scenarios", "select_revision.yaml"),
		filepath.Join("testdata/scenarios", "sessions.yaml"),
	}, all)

	some, err := FindScenarios("testdata/scenarios", "s*")
	require.NoError(t, err)
	assert.Len(t, some, 2)

	_, err = FindScenarios("testdata/scenarios", "[")
	require.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	paths = append(paths, filepath.Join(t.TempDir(), "missing.yaml"))

	result := RunSuite(context.Background(), paths)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Errors[0], "failed to load scenario")
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Type: "state", Record: "a", Expected: "active", Actual: "draft"}
	assert.Equal(t, "Assertion failed: state of \"a\"\n  Expected: active\n  Actual: draft", err.Error())
}
