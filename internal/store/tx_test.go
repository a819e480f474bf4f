package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/roach88/revkit/internal/query"
	"github.com/roach88/revkit/internal/querysql"
)

func TestBegin_NeverNests(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if s.InTransaction() {
		t.Fatal("InTransaction() = true before Begin")
	}
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	if !s.InTransaction() {
		t.Fatal("InTransaction() = false after Begin")
	}
	if err := s.Begin(ctx); !errors.Is(err, ErrTxActive) {
		t.Errorf("second Begin() error = %v, want ErrTxActive", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if s.InTransaction() {
		t.Error("InTransaction() = true after Commit")
	}
}

func TestCommitRollback_WithoutTransaction(t *testing.T) {
	s := createTestStore(t)

	if err := s.Commit(); !errors.Is(err, ErrNoTx) {
		t.Errorf("Commit() error = %v, want ErrNoTx", err)
	}
	if err := s.Rollback(); !errors.Is(err, ErrNoTx) {
		t.Errorf("Rollback() error = %v, want ErrNoTx", err)
	}
}

func TestRollback_DiscardsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	createTestRecord(t, s, "article")
	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	n, err := s.Count(ctx, "records", nil)
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("records = %d after rollback, want 0", n)
	}
}

func TestCommit_PersistsWrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	id := createTestRecord(t, s, "article")
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	if _, err := s.FetchRow(ctx, "current_revisions", map[string]any{"record_id": id}); err != nil {
		t.Errorf("pointer not visible after commit: %v", err)
	}
}

func TestCommit_FailureClearsTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	defer db.Close()

	s := New(db, querysql.SQLite)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "current_revisions" SET "current_revision" = ? WHERE ("record_id" = ?)`)).
		WithArgs(int64(2), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	n, err := s.UpdateRow(ctx, "current_revisions",
		map[string]any{"current_revision": int64(2)},
		map[string]any{"record_id": int64(7)})
	if err != nil {
		t.Fatalf("UpdateRow() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}

	if err := s.Commit(); err == nil {
		t.Fatal("expected commit error")
	}
	if s.InTransaction() {
		t.Error("InTransaction() = true after failed commit")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_Placeholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	defer db.Close()

	s := New(db, querysql.Postgres)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "records" ("created_at", "record_type") VALUES ($1, $2) RETURNING "id"`)).
		WithArgs("2026-10-14T09:30:00.000000Z", "article").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX("revision") FROM "revisions" WHERE ("record_id" = $1)`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	id, err := s.InsertRowReturning(ctx, "records", map[string]any{
		"record_type": "article",
		"created_at":  FormatTime(testDate),
	}, "id")
	if err != nil {
		t.Fatalf("InsertRowReturning() failed: %v", err)
	}
	if id != 11 {
		t.Errorf("id = %d, want 11", id)
	}

	next, err := s.NextValue(ctx, "revisions", "revision", map[string]any{"record_id": id})
	if err != nil {
		t.Fatalf("NextValue() failed: %v", err)
	}
	if next != 1 {
		t.Errorf("NextValue() = %d, want 1", next)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSelect_DriverErrorWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	defer db.Close()

	s := New(db, querysql.SQLite)
	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT \* FROM "records"`).WillReturnError(boom)

	_, err = s.Select(context.Background(), query.Select{From: "records"})
	if !errors.Is(err, boom) {
		t.Errorf("Select() error = %v, want wrapped %v", err, boom)
	}
}
