package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/revkit/internal/value"
)

// TraceSnapshot is the part of a result compared against golden files.
// Changelog dates and entry IDs are left out.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	Events       []string     `json:"events"`
}

// Canonical encodes the snapshot as canonical JSON.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"step": ev.Step,
			"op":   ev.Op,
		}
		if ev.Record != "" {
			m["record"] = ev.Record
		}
		if ev.RecordID != 0 {
			m["record_id"] = ev.RecordID
		}
		if ev.Revision != 0 {
			m["revision"] = ev.Revision
		}
		if ev.State != "" {
			m["state"] = ev.State
		}
		if ev.Outcome != "" {
			m["outcome"] = ev.Outcome
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if len(ev.Changes) > 0 {
			changes := make([]any, len(ev.Changes))
			for j, e := range ev.Changes {
				changes[j] = map[string]any{
					"revision":    e.Revision,
					"session_id":  e.SessionID,
					"field":       e.Field,
					"change_type": e.ChangeType,
					"before":      orNull(e.Before),
					"after":       orNull(e.After),
					"author_id":   e.AuthorID,
				}
			}
			m["changes"] = changes
		}
		if ev.Purged != nil {
			purged := make([]any, len(ev.Purged))
			for j, id := range ev.Purged {
				purged[j] = id
			}
			m["purged"] = purged
		}
		trace[i] = m
	}

	kinds := make([]any, len(s.Events))
	for i, k := range s.Events {
		kinds[i] = k
	}

	v, err := value.FromAny(map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"events":        kinds,
	})
	if err != nil {
		return nil, err
	}
	return value.Encode(v)
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against the golden file
// named scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Events:       result.Events,
	}
	data, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}
