package revision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/revkit/internal/changelog"
	"github.com/roach88/revkit/internal/query"
	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/store"
	"github.com/roach88/revkit/internal/value"
)

// DefaultDeletionDelay is the soft-delete window applied when Options
// leaves DeletionDelay unset.
const DefaultDeletionDelay = 72 * time.Hour

// Options configures a Collection.
type Options struct {
	Logger *slog.Logger
	Events EventSink
	Users  UserProvider

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// SessionIDs returns the ID recorded on the changelog entries of one
	// edit session. Defaults to UUIDv7.
	SessionIDs func() string

	// Simulation makes every edit session roll back instead of committing.
	// It does not apply to CreateNewRecord, deletion or purge: records
	// created in simulation mode are committed.
	Simulation bool

	// DeletionDelay is how long ScheduleDeletion waits before a record is
	// purged. Negative means destroy immediately.
	DeletionDelay time.Duration
}

// Collection is the factory and registry of one record type: it owns the
// current-revision pointer of each record and builds bound Revisionables.
type Collection struct {
	typ       *schema.Type
	store     *store.Store
	changelog *changelog.Changelog
	logger    *slog.Logger
	events    EventSink
	users     UserProvider
	now       func() time.Time
	sessionID func() string
	delay     time.Duration

	simulation bool
}

// NewCollection creates a Collection of typ records stored in st.
func NewCollection(st *store.Store, typ *schema.Type, opts Options) *Collection {
	c := &Collection{
		typ:        typ,
		store:      st,
		changelog:  changelog.New(st),
		logger:     opts.Logger,
		events:     opts.Events,
		users:      opts.Users,
		now:        opts.Now,
		sessionID:  opts.SessionIDs,
		delay:      opts.DeletionDelay,
		simulation: opts.Simulation,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("record_type", typ.Name())
	if c.events == nil {
		c.events = nopSink{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sessionID == nil {
		c.sessionID = newSessionID
	}
	if c.delay == 0 {
		c.delay = DefaultDeletionDelay
	}
	return c
}

// Type returns the record type of the collection.
func (c *Collection) Type() *schema.Type { return c.typ }

// Changelog returns the changelog handle shared by the collection's records.
func (c *Collection) Changelog() *changelog.Changelog { return c.changelog }

// SetSimulation toggles simulation mode for subsequent edit sessions.
// Record creation and deletion are never simulated.
func (c *Collection) SetSimulation(on bool) { c.simulation = on }

// Simulation reports whether simulation mode is on.
func (c *Collection) Simulation() bool { return c.simulation }

// begin opens a transaction unless one is already active and reports
// whether the caller owns it.
func (c *Collection) begin(ctx context.Context) (bool, error) {
	if c.store.InTransaction() {
		return false, nil
	}
	if err := c.store.Begin(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collection) rollback(owned bool, cause error) {
	if !owned {
		return
	}
	if err := c.store.Rollback(); err != nil {
		c.logger.Warn("rollback failed", "error", err, "cause", cause)
		return
	}
	c.logger.Warn("rolled back transaction", "cause", cause)
}

// CurrentRevision returns the current revision number of record id.
func (c *Collection) CurrentRevision(ctx context.Context, id int64) (int64, error) {
	row, err := c.store.FetchRow(ctx, tablePointers, map[string]any{schema.ColRecordID: id})
	if isNotFound(err) {
		return 0, &Error{
			Code:       ErrCodeNoCurrentRevision,
			Message:    "no current revision pointer",
			RecordType: c.typ.Name(),
			RecordID:   id,
		}
	}
	if err != nil {
		return 0, fmt.Errorf("current revision of %d: %w", id, err)
	}
	return row.Int64(colCurrentRevision), nil
}

// Exists reports whether record id exists and belongs to this collection.
func (c *Collection) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := c.store.FetchRow(ctx, tableRecords, map[string]any{"id": id, "record_type": c.typ.Name()})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %d: %w", id, err)
	}
	return true, nil
}

// GetByID returns record id bound to its current revision.
func (c *Collection) GetByID(ctx context.Context, id int64) (*Revisionable, error) {
	rev, err := c.CurrentRevision(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := c.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &Error{
			Code:       ErrCodeNoCurrentRevision,
			Message:    "record belongs to another type",
			RecordType: c.typ.Name(),
			RecordID:   id,
		}
	}

	row, err := loadRevision(ctx, c.store, id, rev)
	if isNotFound(err) {
		return nil, &Error{
			Code:       ErrCodeRevisionNotFound,
			Message:    "current revision pointer names a missing revision",
			RecordType: c.typ.Name(),
			RecordID:   id,
			Revision:   rev,
		}
	}
	if err != nil {
		return nil, err
	}
	return newRevisionable(c, id, newStorage(c.typ, row), false), nil
}

// CreateNewRecord allocates a record, writes revision 1 with fields plus
// declared defaults and generators, and points the record at it.
//
// Every field is validated before anything is written. A required field
// with no value, default or generator is an error.
func (c *Collection) CreateNewRecord(ctx context.Context, fields map[string]any, ownerID, ownerName string) (*Revisionable, error) {
	now := c.now()
	data, err := c.initialFields(fields, now, true)
	if err != nil {
		return nil, err
	}

	owned, err := c.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", c.typ.Name(), err)
	}

	r, err := c.createRecord(ctx, data, ownerID, ownerName, now)
	if err != nil {
		c.rollback(owned, err)
		return nil, err
	}
	if owned {
		if err := c.store.Commit(); err != nil {
			return nil, fmt.Errorf("create %s: %w", c.typ.Name(), err)
		}
	}

	c.logger.Info("record created", "record_id", r.id, "state", r.State(), "author", ownerID)
	c.events.RecordCreated(ctx, RecordEvent{
		Kind:       EventRecordCreated,
		RecordType: c.typ.Name(),
		RecordID:   r.id,
		Revision:   1,
		State:      r.State(),
		AuthorID:   ownerID,
		Changed:    data.SortedKeys(),
		At:         now,
	})
	return r, nil
}

func (c *Collection) createRecord(ctx context.Context, data value.Object, ownerID, ownerName string, now time.Time) (*Revisionable, error) {
	date := store.FormatTime(now)
	id, err := c.store.InsertRowReturning(ctx, tableRecords, map[string]any{
		"record_type": c.typ.Name(),
		"created_at":  date,
	}, "id")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", c.typ.Name(), err)
	}

	row := data.Clone()
	row[schema.ColRecordID] = value.Int(id)
	row[schema.ColRevision] = value.Int(1)
	row[schema.ColAuthorID] = value.String(ownerID)
	row[schema.ColAuthorName] = value.String(ownerName)
	row[schema.ColDate] = value.String(date)
	row[schema.ColComments] = value.String("")
	row[schema.ColState] = value.String(c.typ.Machine().Initial())

	if err := persistRow(ctx, c.store, c.typ, row); err != nil {
		return nil, fmt.Errorf("create %s: %w", c.typ.Name(), err)
	}
	if err := c.SetCurrentRevision(ctx, id, 1); err != nil {
		return nil, err
	}
	if _, err := c.changelog.Record(ctx, changelog.Entry{
		RecordID:   id,
		Revision:   1,
		SessionID:  c.sessionID(),
		Field:      "record",
		ChangeType: changelog.TypeCreated,
		Before:     value.Null{},
		After:      data,
		AuthorID:   ownerID,
		Date:       now,
	}); err != nil {
		return nil, err
	}

	return newRevisionable(c, id, newStorage(c.typ, withPretty(row)), false), nil
}

// initialFields validates caller fields and fills defaults and generators.
func (c *Collection) initialFields(fields map[string]any, now time.Time, requireAll bool) (value.Object, error) {
	data := make(value.Object)
	for name, raw := range fields {
		if schema.IsMetaColumn(name) {
			return nil, &Error{Code: ErrCodeReservedKey, Message: "metadata columns are written by the engine", RecordType: c.typ.Name(), Field: name}
		}
		if _, ok := c.typ.Field(name); !ok {
			return nil, newUnknownField(c.typ.Name(), name)
		}
		v, err := c.typ.Coerce(name, raw)
		if err != nil {
			return nil, &Error{Code: ErrCodeInvalidValue, Message: "value does not match the declared field type", RecordType: c.typ.Name(), Field: name, Err: err}
		}
		if !value.IsNull(v) {
			data[name] = v
		}
	}

	for _, f := range c.typ.Fields() {
		if _, ok := data[f.Name]; ok {
			continue
		}
		if v, ok := c.typ.Default(f.Name); ok && !value.IsNull(v) {
			data[f.Name] = v
			continue
		}
		if f.Generator != "" {
			gen, _ := schema.LookupGenerator(f.Generator)
			data[f.Name] = gen(now)
			continue
		}
		if f.Required && requireAll {
			return nil, &Error{
				Code:       ErrCodeRequiredFieldMissing,
				Message:    "required field has no value, default or generator",
				RecordType: c.typ.Name(),
				Field:      f.Name,
			}
		}
	}
	return data, nil
}

// CreateStub returns an unsaved placeholder record filled with defaults and
// generated values. Edit sessions on a stub change it in memory only.
func (c *Collection) CreateStub() (*Revisionable, error) {
	now := c.now()
	data, err := c.initialFields(nil, now, false)
	if err != nil {
		return nil, err
	}
	row := data.Clone()
	row[schema.ColRecordID] = value.Int(0)
	row[schema.ColRevision] = value.Int(0)
	row[schema.ColDate] = value.String(store.FormatTime(now))
	row[schema.ColState] = value.String(c.typ.Machine().Initial())
	return newRevisionable(c, 0, newStorage(c.typ, row), true), nil
}

// SetCurrentRevision points record id at revision rev. It is the only
// writer of the pointer table; the revision must already exist.
func (c *Collection) SetCurrentRevision(ctx context.Context, id, rev int64) error {
	if _, err := c.store.FetchRow(ctx, tableRevisions, map[string]any{schema.ColRecordID: id, schema.ColRevision: rev}); err != nil {
		if isNotFound(err) {
			return &Error{
				Code:       ErrCodeRevisionNotFound,
				Message:    "cannot point at a missing revision",
				RecordType: c.typ.Name(),
				RecordID:   id,
				Revision:   rev,
			}
		}
		return fmt.Errorf("set current revision: %w", err)
	}

	n, err := c.store.UpdateRow(ctx, tablePointers,
		map[string]any{colCurrentRevision: rev},
		map[string]any{schema.ColRecordID: id})
	if err != nil {
		return fmt.Errorf("set current revision: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := c.store.InsertRow(ctx, tablePointers, map[string]any{
		schema.ColRecordID: id,
		colCurrentRevision: rev,
	}); err != nil {
		return fmt.Errorf("set current revision: %w", err)
	}
	return nil
}

// GetLastRevisionByState returns the most recent revision (by date) of
// record id that was in state. ok is false when there is none.
func (c *Collection) GetLastRevisionByState(ctx context.Context, id int64, state string) (rev int64, ok bool, err error) {
	rows, err := c.store.Select(ctx, query.Select{
		From:    tableRevisions,
		Columns: []string{schema.ColRevision},
		Filter: query.And{
			query.Eq{Field: schema.ColRecordID, Value: id},
			query.Eq{Field: schema.ColState, Value: state},
		},
		OrderBy: []query.Order{query.Desc(schema.ColDate), query.Desc(schema.ColRevision)},
		Limit:   1,
	})
	if err != nil {
		return 0, false, fmt.Errorf("last revision by state: %w", err)
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Int64(schema.ColRevision), true, nil
}

// ListIDs returns the IDs of every record of this type in creation order.
func (c *Collection) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := c.store.Select(ctx, query.Select{
		From:    tableRecords,
		Columns: []string{"id"},
		Filter:  query.Eq{Field: "record_type", Value: c.typ.Name()},
		OrderBy: []query.Order{query.Asc("id")},
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.typ.Name(), err)
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.Int64("id")
	}
	return ids, nil
}
