package revision

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revkit/internal/querysql"
	"github.com/roach88/revkit/internal/store"
	"github.com/roach88/revkit/internal/testutil"
)

func failChangelogInserts(t *testing.T, st *store.Store) {
	t.Helper()
	_, err := st.DB().Exec(`CREATE TRIGGER fail_changelog BEFORE INSERT ON changelog
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END`)
	require.NoError(t, err)
}

func TestEndTransaction_FailureLeavesPreviousRevision(t *testing.T) {
	f := articleFixture(t)
	ctx := context.Background()
	r := f.create(t, map[string]any{"label": "A"})
	failChangelogInserts(t, f.store)

	require.NoError(t, r.StartTransaction(ctx, "u2", "Bob", ""))
	_, err := r.SetLabel("B")
	require.NoError(t, err)
	committed, err := r.EndTransaction(ctx)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "injected failure")
	assert.False(t, committed)
	assert.Equal(t, OutcomeRolledBack, r.LastOutcome())
	assert.Equal(t, Idle, r.TransactionState())
	assert.Equal(t, "A", r.Label())
	assert.Equal(t, int64(1), r.Revision())
	assert.False(t, f.store.InTransaction())
	assert.Equal(t, int64(1), f.pointer(t, r.ID()))

	revs, err := r.Revisions(ctx)
	require.NoError(t, err)
	assert.Len(t, revs, 1, "revision row rolled back with the changelog")
	assert.Equal(t, []string{EventRecordCreated}, f.events.kinds())

	_, err = f.store.DB().Exec(`DROP TRIGGER fail_changelog`)
	require.NoError(t, err)
	require.True(t, f.edit(t, r, map[string]any{"label": "B"}))
	assert.Equal(t, int64(2), r.Revision(), "number is reused after a failed attempt")
}

func TestCreateNewRecord_FailureWritesNothing(t *testing.T) {
	f := articleFixture(t)
	ctx := context.Background()
	failChangelogInserts(t, f.store)

	_, err := f.coll.CreateNewRecord(ctx, map[string]any{"label": "A"}, "u1", "Ann")
	require.Error(t, err)
	assert.False(t, f.store.InTransaction())

	ids, err := f.coll.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, f.events.kinds())
}

func TestEndTransaction_FailureInsideOuterTransaction(t *testing.T) {
	f := articleFixture(t)
	ctx := context.Background()
	r := f.create(t, map[string]any{"label": "A"})
	failChangelogInserts(t, f.store)

	require.NoError(t, f.store.Begin(ctx))
	require.NoError(t, r.StartTransaction(ctx, "u2", "Bob", ""))
	_, err := r.SetLabel("B")
	require.NoError(t, err)
	_, err = r.EndTransaction(ctx)
	require.Error(t, err)

	assert.True(t, f.store.InTransaction(), "outer transaction is the caller's to end")
	assert.Equal(t, "A", r.Label())
	require.NoError(t, f.store.Rollback())
}

func newMockCollection(t *testing.T) (*Collection, sqlmock.Sqlmock, *recordingSink) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	events := &recordingSink{}
	coll := NewCollection(store.New(db, querysql.SQLite), testutil.ArticleType(t), Options{
		Logger: quietLogger(),
		Events: events,
		Now:    testutil.NewClock().Now,
	})
	return coll, mock, events
}

func TestGetByID_DriverErrorIsWrapped(t *testing.T) {
	coll, mock, _ := newMockCollection(t)
	boom := errors.New("connection reset")
	mock.ExpectQuery(`SELECT \* FROM "current_revisions"`).WillReturnError(boom)

	_, err := coll.GetByID(context.Background(), 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, CodeOf(err), "driver failures are not engine error codes")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNewRecord_CommitFailure(t *testing.T) {
	coll, mock, events := newMockCollection(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(`INSERT INTO "revisions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "revisions"`).
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "revision"}).AddRow(int64(1), int64(1)))
	mock.ExpectExec(`UPDATE "current_revisions"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "current_revisions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "changelog"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	_, err := coll.CreateNewRecord(context.Background(), map[string]any{"label": "A"}, "u1", "Ann")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, events.kinds(), "no event for an uncommitted record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleDeletion_UpdateFailureFiresNoEvent(t *testing.T) {
	coll, mock, events := newMockCollection(t)
	boom := errors.New("database is locked")
	mock.ExpectQuery(`SELECT \* FROM "records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "record_type"}).AddRow(int64(1), "article"))
	mock.ExpectQuery(`SELECT \* FROM "current_revisions"`).
		WillReturnRows(sqlmock.NewRows([]string{"record_id", "current_revision"}).AddRow(int64(1), int64(1)))
	mock.ExpectExec(`UPDATE "current_revisions"`).WillReturnError(boom)

	_, err := coll.ScheduleDeletion(context.Background(), 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, events.kinds(), "no before-delete event for a deletion that was not scheduled")
	assert.NoError(t, mock.ExpectationsWereMet())
}
