package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/revkit/internal/query"
)

func TestFetchRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestRecord(t, s, "article")

	row, err := s.FetchRow(ctx, "revisions", map[string]any{"record_id": id, "revision": int64(1)})
	if err != nil {
		t.Fatalf("FetchRow() failed: %v", err)
	}
	if got := row.Int64("revision"); got != 1 {
		t.Errorf("revision = %d, want 1", got)
	}
	if got := row.String("state"); got != "draft" {
		t.Errorf("state = %q, want draft", got)
	}
	if got := row.String("data"); got != `{"label":"x"}` {
		t.Errorf("data = %q", got)
	}
	if _, ok := row["comments"].(string); !ok {
		t.Errorf("comments scanned as %T, want string", row["comments"])
	}
}

func TestFetchRow_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.FetchRow(context.Background(), "revisions", map[string]any{"record_id": int64(42)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FetchRow() error = %v, want ErrNotFound", err)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false")
	}
}

func TestSelect_OrderAndLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestRecord(t, s, "article")
	insertTestRevision(t, s, id, 2, "active")
	insertTestRevision(t, s, id, 3, "draft")

	rows, err := s.Select(ctx, query.Select{
		From:    "revisions",
		Columns: []string{"revision", "state"},
		Filter:  query.Eq{Field: "record_id", Value: id},
		OrderBy: []query.Order{query.Desc("revision")},
	})
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	for i, want := range []int64{3, 2, 1} {
		if got := rows[i].Int64("revision"); got != want {
			t.Errorf("rows[%d].revision = %d, want %d", i, got, want)
		}
	}

	rows, err = s.Select(ctx, query.Select{
		From:    "revisions",
		Filter:  query.And{query.Eq{Field: "record_id", Value: id}, query.Eq{Field: "state", Value: "draft"}},
		OrderBy: []query.Order{query.Desc("date"), query.Desc("revision")},
		Limit:   1,
	})
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Int64("revision") != 3 {
		t.Errorf("latest draft = %v, want revision 3", rows)
	}
}

func TestSelect_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.Select(context.Background(), query.Select{From: "records"})
	if err != nil {
		t.Fatalf("Select() failed: %v", err)
	}
	if rows == nil {
		t.Error("Select() returned nil, want empty slice")
	}
}

func TestSelect_RejectsBadIdentifier(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Select(context.Background(), query.Select{From: "records; DROP TABLE records"})
	if err == nil {
		t.Fatal("expected invalid identifier error")
	}
}

func TestUpdateRow_RowsAffected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestRecord(t, s, "article")
	insertTestRevision(t, s, id, 2, "draft")

	n, err := s.UpdateRow(ctx, "current_revisions",
		map[string]any{"current_revision": int64(2)},
		map[string]any{"record_id": id})
	if err != nil {
		t.Fatalf("UpdateRow() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}

	n, err = s.UpdateRow(ctx, "current_revisions",
		map[string]any{"current_revision": int64(2)},
		map[string]any{"record_id": id + 100})
	if err != nil {
		t.Fatalf("UpdateRow() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("rows affected = %d, want 0", n)
	}
}

func TestDeleteRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestRecord(t, s, "article")

	if _, err := s.DeleteRows(ctx, "current_revisions", map[string]any{"record_id": id}); err != nil {
		t.Fatalf("delete pointer: %v", err)
	}
	n, err := s.DeleteRows(ctx, "revisions", map[string]any{"record_id": id})
	if err != nil {
		t.Fatalf("delete revisions: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	if _, err := s.DeleteRows(ctx, "revisions", nil); err == nil {
		t.Error("expected unfiltered delete to be rejected")
	}
}

func TestNextValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	next, err := s.NextValue(ctx, "revisions", "revision", map[string]any{"record_id": int64(1)})
	if err != nil {
		t.Fatalf("NextValue() failed: %v", err)
	}
	if next != 1 {
		t.Errorf("NextValue() on empty = %d, want 1", next)
	}

	id := createTestRecord(t, s, "article")
	insertTestRevision(t, s, id, 2, "draft")

	next, err = s.NextValue(ctx, "revisions", "revision", map[string]any{"record_id": id})
	if err != nil {
		t.Fatalf("NextValue() failed: %v", err)
	}
	if next != 3 {
		t.Errorf("NextValue() = %d, want 3", next)
	}
}

func TestCount(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRecord(t, s, "article")
	createTestRecord(t, s, "article")
	createTestRecord(t, s, "page")

	n, err := s.Count(ctx, "records", query.Eq{Field: "record_type", Value: "article"})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestFormatTime_FixedWidth(t *testing.T) {
	a := FormatTime(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	b := FormatTime(time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.FixedZone("x", 3600)))

	if a != "2026-01-02T03:04:05.000000Z" {
		t.Errorf("FormatTime() = %q", a)
	}
	if b != "2026-01-02T02:04:05.123456Z" {
		t.Errorf("FormatTime() = %q, want UTC conversion", b)
	}
	if len(a) != len(b) {
		t.Errorf("widths differ: %q vs %q", a, b)
	}

	parsed, err := ParseTime(b)
	if err != nil {
		t.Fatalf("ParseTime() failed: %v", err)
	}
	if !parsed.Equal(time.Date(2026, 1, 2, 2, 4, 5, 123456000, time.UTC)) {
		t.Errorf("ParseTime() = %v", parsed)
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("expected parse error")
	}
}
