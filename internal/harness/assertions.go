package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/revkit/internal/value"
)

// AssertionError is returned when an expectation does not hold.
type AssertionError struct {
	Type     string // what was checked: exists, current_revision, field ...
	Record   string // scenario alias
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s of %q\n", e.Type, e.Record)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// checkExpectation compares the final storage of one record with exp.
func (h *Harness) checkExpectation(ctx context.Context, exp Expectation) []error {
	fail := func(typ, expected, actual string) error {
		return &AssertionError{Type: typ, Record: exp.Record, Expected: expected, Actual: actual}
	}

	exists := false
	id, bound := h.ids[exp.Record]
	if bound {
		ok, err := h.coll.Exists(ctx, id)
		if err != nil {
			return []error{fmt.Errorf("expect %q: %w", exp.Record, err)}
		}
		exists = ok
	}

	if exp.Exists != nil {
		if *exp.Exists != exists {
			return []error{fail("exists", fmt.Sprint(*exp.Exists), fmt.Sprint(exists))}
		}
		if !exists {
			return nil
		}
	}
	if !exists {
		return []error{fail("exists", "true", "false")}
	}

	r, err := h.coll.GetByID(ctx, id)
	if err != nil {
		return []error{fmt.Errorf("expect %q: %w", exp.Record, err)}
	}

	var errs []error
	if exp.CurrentRevision != 0 && r.Revision() != exp.CurrentRevision {
		errs = append(errs, fail("current_revision", fmt.Sprint(exp.CurrentRevision), fmt.Sprint(r.Revision())))
	}
	if exp.State != "" && r.State() != exp.State {
		errs = append(errs, fail("state", exp.State, r.State()))
	}

	keys := make([]string, 0, len(exp.Fields))
	for k := range exp.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		want, err := value.FromAny(exp.Fields[k])
		if err != nil {
			errs = append(errs, fmt.Errorf("expect %q: field %s: %w", exp.Record, k, err))
			continue
		}
		got, err := r.Get(k)
		if err != nil {
			errs = append(errs, fmt.Errorf("expect %q: %w", exp.Record, err))
			continue
		}
		if !value.Equal(want, got) {
			errs = append(errs, fail("field "+k, value.Format(want), value.Format(got)))
		}
	}

	if exp.ChangelogCount != nil {
		n, err := h.coll.Changelog().Count(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("expect %q: %w", exp.Record, err))
		} else if n != *exp.ChangelogCount {
			errs = append(errs, fail("changelog_count", fmt.Sprint(*exp.ChangelogCount), fmt.Sprint(n)))
		}
	}

	if len(exp.RevisionExists) > 0 || exp.Revisions != nil {
		revs, err := r.Revisions(ctx)
		if err != nil {
			return append(errs, fmt.Errorf("expect %q: %w", exp.Record, err))
		}
		have := make(map[int64]bool, len(revs))
		for _, info := range revs {
			have[info.Revision] = true
		}
		for _, rev := range exp.RevisionExists {
			if !have[rev] {
				errs = append(errs, fail("revision_exists", fmt.Sprintf("revision %d", rev), "missing"))
			}
		}
		if exp.Revisions != nil && len(revs) != *exp.Revisions {
			errs = append(errs, fail("revisions", fmt.Sprint(*exp.Revisions), fmt.Sprint(len(revs))))
		}
	}
	return errs
}
