package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/revkit/internal/changelog"
	"github.com/roach88/revkit/internal/revision"
)

// CheckProperties verifies the storage properties every record of coll
// must satisfy after any sequence of operations:
//
//   - the current revision pointer references a stored revision
//   - revisions are numbered 1..N without gaps
//   - revision 1 starts with a "created" changelog entry
//   - every revision has at least one changelog entry
//   - every changelog entry references a stored revision
//
// It returns one message per violation.
func CheckProperties(ctx context.Context, coll *revision.Collection) ([]string, error) {
	ids, err := coll.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	var violations []string
	for _, id := range ids {
		r, err := coll.GetByID(ctx, id)
		if err != nil {
			violations = append(violations, fmt.Sprintf("record %d: current revision is not readable: %v", id, err))
			continue
		}

		revs, err := r.Revisions(ctx)
		if err != nil {
			return nil, err
		}
		stored := make(map[int64]bool, len(revs))
		for i, info := range revs {
			stored[info.Revision] = true
			if want := int64(len(revs) - i); info.Revision != want {
				violations = append(violations, fmt.Sprintf("record %d: revision %d found where %d was expected", id, info.Revision, want))
				break
			}
		}

		entries, err := r.Changelog(ctx, changelog.Filter{Ascending: true})
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 || entries[0].Revision != 1 || entries[0].ChangeType != changelog.TypeCreated {
			violations = append(violations, fmt.Sprintf("record %d: changelog does not start with a created entry", id))
		}
		perRevision := make(map[int64]int)
		for _, e := range entries {
			if !stored[e.Revision] {
				violations = append(violations, fmt.Sprintf("record %d: changelog entry %d references missing revision %d", id, e.ID, e.Revision))
				continue
			}
			perRevision[e.Revision]++
		}
		for _, info := range revs {
			if perRevision[info.Revision] == 0 {
				violations = append(violations, fmt.Sprintf("record %d: revision %d has no changelog entries", id, info.Revision))
			}
		}
	}
	return violations, nil
}

// SuiteResult summarizes a run over several scenario files.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one failed scenario of a suite.
type ScenarioFailure struct {
	Name   string   `json:"name,omitempty"`
	Path   string   `json:"path"`
	Errors []string `json:"errors"`
}

// FindScenarios returns the .yaml and .yml files under dir, sorted. A
// non-empty filter is a glob matched against the file name without its
// extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(path), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario file. Load and execution
// failures are counted as failed scenarios.
func RunSuite(ctx context.Context, paths []string) *SuiteResult {
	result := &SuiteResult{Total: len(paths)}
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Path:   path,
				Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
			})
			continue
		}

		run, err := RunContext(ctx, scenario)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Name:   scenario.Name,
				Path:   path,
				Errors: []string{fmt.Sprintf("scenario execution failed: %v", err)},
			})
			continue
		}
		if !run.Pass {
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Name:   scenario.Name,
				Path:   path,
				Errors: run.Errors,
			})
			continue
		}
		result.Passed++
	}
	return result
}
