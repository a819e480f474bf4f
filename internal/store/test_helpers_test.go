package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new sqlite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testDate = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

// createTestRecord inserts a record with revision 1 and a pointer to it.
func createTestRecord(t *testing.T, s *Store, recordType string) int64 {
	t.Helper()
	ctx := context.Background()

	id, err := s.InsertRowReturning(ctx, "records", map[string]any{
		"record_type": recordType,
		"created_at":  FormatTime(testDate),
	}, "id")
	if err != nil {
		t.Fatalf("insert record: %v", err)
	}
	insertTestRevision(t, s, id, 1, "draft")
	if err := s.InsertRow(ctx, "current_revisions", map[string]any{
		"record_id":        id,
		"current_revision": int64(1),
	}); err != nil {
		t.Fatalf("insert pointer: %v", err)
	}
	return id
}

func insertTestRevision(t *testing.T, s *Store, recordID, revision int64, state string) {
	t.Helper()
	err := s.InsertRow(context.Background(), "revisions", map[string]any{
		"record_id": recordID,
		"revision":  revision,
		"author_id": "u1",
		"date":      FormatTime(testDate.Add(time.Duration(revision) * time.Minute)),
		"state":     state,
		"data":      `{"label":"x"}`,
	})
	if err != nil {
		t.Fatalf("insert revision %d: %v", revision, err)
	}
}
