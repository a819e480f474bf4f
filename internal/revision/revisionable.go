package revision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/revkit/internal/changelog"
	"github.com/roach88/revkit/internal/query"
	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/statemachine"
	"github.com/roach88/revkit/internal/store"
	"github.com/roach88/revkit/internal/value"
)

// TxState is the edit-session state of a Revisionable.
type TxState int

const (
	Idle TxState = iota
	InTransaction
)

func (s TxState) String() string {
	if s == InTransaction {
		return "IN_TRANSACTION"
	}
	return "IDLE"
}

// Outcome is how the last edit session ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeNoOp
	OutcomeCommitted
	OutcomeRolledBack
	OutcomeSimulated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoOp:
		return "NO_OP"
	case OutcomeCommitted:
		return "COMMITTED"
	case OutcomeRolledBack:
		return "ROLLED_BACK"
	case OutcomeSimulated:
		return "SIMULATED"
	default:
		return "NONE"
	}
}

// session holds what StartTransaction captured.
type session struct {
	id          string
	ownerID     string
	ownerName   string
	comments    string
	ownsTx      bool
	stateBefore string
	wasStub     bool
	targetState string
}

// Revisionable is one logical record bound to one of its revisions.
//
// Edits go through an edit session:
//
//	r.StartTransaction(ctx, "u1", "Ann", "fix typo")
//	r.SetCustomKey("label", "Draft 2")
//	committed, err := r.EndTransaction(ctx)
//
// A session that changed nothing ends without writing anything. A session
// with changes writes a new revision, its changelog entries and its state,
// then repoints the record; in simulation mode the owned transaction is
// rolled back instead of committed.
type Revisionable struct {
	coll    *Collection
	id      int64
	storage *Storage
	stub    bool

	state   TxState
	session session

	outcome    Outcome
	lastClass  statemachine.Classification
	lastStated bool
}

func newRevisionable(c *Collection, id int64, s *Storage, stub bool) *Revisionable {
	return &Revisionable{coll: c, id: id, storage: s, stub: stub}
}

// ID returns the record ID (0 for stubs).
func (r *Revisionable) ID() int64 { return r.id }

// Type returns the record type.
func (r *Revisionable) Type() *schema.Type { return r.coll.typ }

// Storage returns the storage of the selected revision.
func (r *Revisionable) Storage() *Storage { return r.storage }

// Revision returns the selected revision number.
func (r *Revisionable) Revision() int64 { return r.storage.Revision() }

// State returns the state of the selected revision.
func (r *Revisionable) State() string { return r.storage.State() }

// IsStub reports whether the record is an unsaved placeholder.
func (r *Revisionable) IsStub() bool { return r.stub }

// TransactionState returns the edit-session state.
func (r *Revisionable) TransactionState() TxState { return r.state }

// LastOutcome returns how the last edit session ended.
func (r *Revisionable) LastOutcome() Outcome { return r.outcome }

// Label returns the value of the type's label field.
func (r *Revisionable) Label() string {
	field := r.coll.typ.LabelField()
	if field == "" {
		return ""
	}
	label, _ := r.storage.GetString(field, "")
	return label
}

// IsEditable reports whether the current state allows field edits.
func (r *Revisionable) IsEditable() bool {
	st, err := r.coll.typ.Machine().State(r.State())
	if err != nil {
		return false
	}
	return st.IsEditable()
}

// Get returns a field or metadata value of the selected revision.
func (r *Revisionable) Get(key string) (value.Value, error) { return r.storage.Get(key) }

// GetString returns a field as a string.
func (r *Revisionable) GetString(key, def string) (string, error) { return r.storage.GetString(key, def) }

// GetInt returns a field as an integer.
func (r *Revisionable) GetInt(key string, def int64) (int64, error) { return r.storage.GetInt(key, def) }

// GetBool returns a field as a boolean.
func (r *Revisionable) GetBool(key string, def bool) (bool, error) { return r.storage.GetBool(key, def) }

// GetDate returns a field as a time.
func (r *Revisionable) GetDate(key string, def time.Time) (time.Time, error) {
	return r.storage.GetDate(key, def)
}

// SelectRevision binds the record to revision rev. Only valid while idle.
func (r *Revisionable) SelectRevision(ctx context.Context, rev int64) error {
	if r.state != Idle {
		return newProtocolError(r.coll.typ.Name(), r.id, "cannot select a revision during an edit session")
	}
	row, err := loadRevision(ctx, r.coll.store, r.id, rev)
	if isNotFound(err) {
		return &Error{
			Code:       ErrCodeRevisionNotFound,
			Message:    "revision does not exist for this record",
			RecordType: r.coll.typ.Name(),
			RecordID:   r.id,
			Revision:   rev,
		}
	}
	if err != nil {
		return err
	}
	r.storage = newStorage(r.coll.typ, row)
	return nil
}

// StartTransaction opens an edit session authored by ownerID. If no store
// transaction is active one is opened and owned by this session.
func (r *Revisionable) StartTransaction(ctx context.Context, ownerID, ownerName, comments string) error {
	if r.state == InTransaction {
		return newProtocolError(r.coll.typ.Name(), r.id, "edit session already started")
	}

	owns := false
	if !r.stub {
		var err error
		owns, err = r.coll.begin(ctx)
		if err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}
	}

	r.session = session{
		id:          r.coll.sessionID(),
		ownerID:     ownerID,
		ownerName:   ownerName,
		comments:    comments,
		ownsTx:      owns,
		stateBefore: r.State(),
		wasStub:     r.stub,
	}
	r.state = InTransaction
	r.outcome = OutcomeNone
	r.lastClass = statemachine.None
	r.lastStated = false

	r.coll.logger.Debug("edit session started",
		"record_id", r.id, "revision", r.Revision(), "session", r.session.id, "owns_tx", owns)
	return nil
}

// StartCurrentUserTransaction starts a session authored by the collection's
// current user.
func (r *Revisionable) StartCurrentUserTransaction(ctx context.Context, comments string) error {
	if r.coll.users == nil {
		return newProtocolError(r.coll.typ.Name(), r.id, "no user provider configured")
	}
	u, err := r.coll.users.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("current user: %w", err)
	}
	return r.StartTransaction(ctx, u.ID, u.Name, comments)
}

func (r *Revisionable) requireSession() error {
	if r.state != InTransaction {
		return newProtocolError(r.coll.typ.Name(), r.id, "no edit session in progress")
	}
	return nil
}

// SetCustomKey writes a domain field and reports whether it changed.
func (r *Revisionable) SetCustomKey(key string, raw any) (bool, error) {
	if err := r.requireSession(); err != nil {
		return false, err
	}
	if !r.IsEditable() {
		return false, &Error{
			Code:       ErrCodeNotEditable,
			Message:    "record state does not allow edits",
			RecordType: r.coll.typ.Name(),
			RecordID:   r.id,
			State:      r.State(),
		}
	}
	if f, ok := r.coll.typ.Field(key); ok && f.Static && !r.stub {
		return false, &Error{
			Code:       ErrCodeStaticField,
			Message:    "static fields are fixed at creation",
			RecordType: r.coll.typ.Name(),
			RecordID:   r.id,
			Field:      key,
		}
	}

	changed, err := r.storage.Set(key, raw)
	if err != nil {
		var re *Error
		if errors.As(err, &re) {
			re.RecordID = r.id
		}
		return false, err
	}
	if changed {
		r.coll.logger.Debug("field set", "record_id", r.id, "field", key, "session", r.session.id)
	}
	return changed, nil
}

// SetString writes a string field.
func (r *Revisionable) SetString(key, v string) (bool, error) { return r.SetCustomKey(key, v) }

// SetInt writes an integer field.
func (r *Revisionable) SetInt(key string, v int64) (bool, error) { return r.SetCustomKey(key, v) }

// SetBool writes a boolean field.
func (r *Revisionable) SetBool(key string, v bool) (bool, error) { return r.SetCustomKey(key, v) }

// SetDate writes a date field.
func (r *Revisionable) SetDate(key string, v time.Time) (bool, error) { return r.SetCustomKey(key, v) }

// SetLabel writes the type's label field.
func (r *Revisionable) SetLabel(label string) (bool, error) {
	field := r.coll.typ.LabelField()
	if field == "" {
		return false, &Error{
			Code:       ErrCodeUnknownField,
			Message:    "record type declares no label field",
			RecordType: r.coll.typ.Name(),
			RecordID:   r.id,
		}
	}
	return r.SetCustomKey(field, label)
}

// SetState requests a manual transition to state when the session ends.
func (r *Revisionable) SetState(state string) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	ok, err := r.coll.typ.Machine().CanTransition(r.session.stateBefore, state)
	if err != nil {
		return &Error{
			Code:       ErrCodeInvalidState,
			Message:    "unknown state",
			RecordType: r.coll.typ.Name(),
			RecordID:   r.id,
			State:      state,
			Err:        err,
		}
	}
	if !ok {
		return &Error{
			Code:       ErrCodeInvalidTransition,
			Message:    fmt.Sprintf("no manual transition from %q", r.session.stateBefore),
			RecordType: r.coll.typ.Name(),
			RecordID:   r.id,
			State:      state,
		}
	}
	if state == r.session.stateBefore {
		r.session.targetState = ""
		return nil
	}
	r.session.targetState = state
	return nil
}

// HasChanges reports whether the current session (or the last one, once
// ended) changed any field or the state.
func (r *Revisionable) HasChanges() bool {
	if r.state == InTransaction {
		return r.storage.HasChanges() || r.session.targetState != ""
	}
	return r.lastClass != statemachine.None || r.lastStated
}

// HasStructuralChanges reports whether the change set is structural.
func (r *Revisionable) HasStructuralChanges() bool {
	if r.state == InTransaction {
		return r.classify() == statemachine.Structural
	}
	return r.lastClass == statemachine.Structural
}

func (r *Revisionable) classify() statemachine.Classification {
	return r.coll.typ.Classify(r.storage.Dirty(), r.storage.Fields())
}

// Save ends the edit session. It is the business-layer name of EndTransaction.
func (r *Revisionable) Save(ctx context.Context) (bool, error) {
	return r.EndTransaction(ctx)
}

// EndTransaction ends the edit session and reports whether a new revision
// was committed.
//
// Without changes nothing is written. With changes the next revision is
// copied from the selected one, stored with its new state and changelog
// entries, and the pointer is moved last. Any failure rolls back an owned
// transaction and leaves the record on its previous revision.
func (r *Revisionable) EndTransaction(ctx context.Context) (bool, error) {
	if err := r.requireSession(); err != nil {
		return false, err
	}
	sess := r.session
	changes := r.storage.Changes()
	class := r.classify()
	r.lastClass = class

	if len(changes) == 0 && sess.targetState == "" {
		if err := r.finishOwned(sess); err != nil {
			r.end(OutcomeRolledBack)
			return false, err
		}
		r.end(OutcomeNoOp)
		r.coll.logger.Debug("edit session ended without changes", "record_id", r.id, "session", sess.id)
		return false, nil
	}

	newState, err := r.nextState(sess, class)
	if err != nil {
		r.abort(sess, err)
		return false, err
	}
	r.lastStated = newState != sess.stateBefore

	if sess.wasStub {
		r.storage.row[schema.ColState] = value.String(newState)
		r.storage.markCommitted()
		r.end(OutcomeNoOp)
		return false, nil
	}

	simulate := r.coll.simulation
	if simulate && !sess.ownsTx {
		// An outer transaction cannot be rolled back on its behalf, so
		// the preview is computed without writing.
		if _, err := r.buildRevision(ctx, sess, changes, newState, 0); err != nil {
			r.abort(sess, err)
			return false, err
		}
		r.storage.Revert()
		r.end(OutcomeSimulated)
		r.coll.logger.Warn("simulated edit session discarded", "record_id", r.id, "session", sess.id)
		return false, nil
	}

	row, entries, err := r.write(ctx, sess, changes, newState)
	if err != nil {
		r.abort(sess, err)
		return false, err
	}

	if simulate {
		if err := r.coll.store.Rollback(); err != nil {
			r.storage.Revert()
			r.end(OutcomeRolledBack)
			return false, fmt.Errorf("end transaction: %w", err)
		}
		r.storage.Revert()
		r.end(OutcomeSimulated)
		r.coll.logger.Warn("simulated commit rolled back",
			"record_id", r.id, "revision", intOf(row[schema.ColRevision]), "session", sess.id)
		return false, nil
	}

	if sess.ownsTx {
		if err := r.coll.store.Commit(); err != nil {
			r.storage.Revert()
			r.end(OutcomeRolledBack)
			return false, fmt.Errorf("end transaction: %w", err)
		}
	}

	r.storage = newStorage(r.coll.typ, withPretty(row))
	r.end(OutcomeCommitted)

	rev := intOf(row[schema.ColRevision])
	r.coll.logger.Info("revision committed",
		"record_id", r.id, "revision", rev, "state", newState,
		"changes", len(entries), "structural", class == statemachine.Structural, "session", sess.id)
	r.coll.events.RevisionCommitted(ctx, RecordEvent{
		Kind:          EventRevisionCommitted,
		RecordType:    r.coll.typ.Name(),
		RecordID:      r.id,
		Revision:      rev,
		State:         newState,
		PreviousState: sess.stateBefore,
		AuthorID:      sess.ownerID,
		SessionID:     sess.id,
		Changed:       fieldNames(changes),
		Structural:    class == statemachine.Structural,
		At:            r.coll.now(),
	})
	return true, nil
}

func (r *Revisionable) nextState(sess session, class statemachine.Classification) (string, error) {
	if sess.targetState != "" {
		return sess.targetState, nil
	}
	next, err := r.coll.typ.Machine().NextState(sess.stateBefore, class)
	if err != nil {
		return "", &Error{
			Code:       ErrCodeInvalidState,
			Message:    "persisted state is not part of the state table",
			RecordType: r.coll.typ.Name(),
			RecordID:   r.id,
			State:      sess.stateBefore,
			Err:        err,
		}
	}
	return next, nil
}

// buildRevision copies the selected revision into revision target with the
// session's metadata and field changes applied.
func (r *Revisionable) buildRevision(ctx context.Context, sess session, changes []Change, newState string, target int64) (value.Object, error) {
	source, err := loadRevision(ctx, r.coll.store, r.id, r.Revision())
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	overrides := make(value.Object, len(changes))
	for _, c := range changes {
		overrides[c.Field] = c.After
	}
	static := r.storage.StaticColumns()
	static[schema.ColAuthorID] = value.String(sess.ownerID)
	static[schema.ColAuthorName] = value.String(sess.ownerName)
	static[schema.ColDate] = value.String(store.FormatTime(r.coll.now()))
	static[schema.ColComments] = value.String(sess.comments)
	static[schema.ColState] = value.String(newState)

	row, err := Copy(source, target, overrides, static)
	if err != nil {
		var re *Error
		if errors.As(err, &re) {
			re.RecordType = r.coll.typ.Name()
			re.RecordID = r.id
		}
		return nil, err
	}
	return row, nil
}

// write persists the new revision, its changelog and the pointer.
func (r *Revisionable) write(ctx context.Context, sess session, changes []Change, newState string) (value.Object, []changelog.Entry, error) {
	st := r.coll.store
	rev, err := st.NextValue(ctx, tableRevisions, schema.ColRevision, map[string]any{schema.ColRecordID: r.id})
	if err != nil {
		return nil, nil, fmt.Errorf("allocate revision: %w", err)
	}

	row, err := r.buildRevision(ctx, sess, changes, newState, rev)
	if err != nil {
		return nil, nil, err
	}
	if err := persistRow(ctx, st, r.coll.typ, row); err != nil {
		return nil, nil, fmt.Errorf("write revision %d: %w", rev, err)
	}

	date, _ := store.ParseTime(stringOf(row[schema.ColDate]))
	entries := make([]changelog.Entry, 0, len(changes)+1)
	for _, c := range changes {
		entries = append(entries, changelog.Entry{
			RecordID:   r.id,
			Revision:   rev,
			SessionID:  sess.id,
			Field:      c.Field,
			ChangeType: r.coll.typ.ChangeType(c.Field),
			Before:     c.Before,
			After:      c.After,
			AuthorID:   sess.ownerID,
			Date:       date,
		})
	}
	if newState != sess.stateBefore {
		entries = append(entries, changelog.Entry{
			RecordID:   r.id,
			Revision:   rev,
			SessionID:  sess.id,
			Field:      schema.ColState,
			ChangeType: changelog.TypeState,
			Before:     value.String(sess.stateBefore),
			After:      value.String(newState),
			AuthorID:   sess.ownerID,
			Date:       date,
		})
	}
	stored, err := r.coll.changelog.RecordAll(ctx, entries)
	if err != nil {
		return nil, nil, err
	}

	if err := r.coll.SetCurrentRevision(ctx, r.id, rev); err != nil {
		return nil, nil, err
	}
	return row, stored, nil
}

// RollBackTransaction discards the session's changes.
func (r *Revisionable) RollBackTransaction(ctx context.Context) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	sess := r.session
	r.storage.Revert()
	r.lastClass = statemachine.None
	r.lastStated = false
	r.end(OutcomeRolledBack)

	if sess.ownsTx {
		if err := r.coll.store.Rollback(); err != nil {
			return fmt.Errorf("roll back transaction: %w", err)
		}
	}
	r.coll.logger.Debug("edit session rolled back", "record_id", r.id, "session", sess.id)
	return nil
}

// finishOwned commits an owned transaction the session itself wrote
// nothing to. Sessions nested inside it may have committed revisions.
func (r *Revisionable) finishOwned(sess session) error {
	if !sess.ownsTx {
		return nil
	}
	if err := r.coll.store.Commit(); err != nil {
		return fmt.Errorf("end transaction: %w", err)
	}
	return nil
}

// abort ends a failed session: the owned transaction is rolled back and
// the in-memory record returns to the selected revision.
func (r *Revisionable) abort(sess session, cause error) {
	r.coll.rollback(sess.ownsTx, cause)
	r.storage.Revert()
	r.end(OutcomeRolledBack)
}

func (r *Revisionable) end(o Outcome) {
	r.state = Idle
	r.outcome = o
	r.session = session{}
}

// Changelog returns the record's change history.
func (r *Revisionable) Changelog(ctx context.Context, f changelog.Filter) ([]changelog.Entry, error) {
	if r.stub {
		return []changelog.Entry{}, nil
	}
	return r.coll.changelog.QueryByRecord(ctx, r.id, f)
}

// RevisionInfo is the metadata of one stored revision.
type RevisionInfo struct {
	Revision   int64     `json:"revision"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Date       time.Time `json:"date"`
	Comments   string    `json:"comments"`
	State      string    `json:"state"`
	Pretty     string    `json:"pretty_revision"`
}

// Revisions lists the record's revisions, newest first.
func (r *Revisionable) Revisions(ctx context.Context) ([]RevisionInfo, error) {
	if r.stub {
		return []RevisionInfo{}, nil
	}
	rows, err := r.coll.store.Select(ctx, query.Select{
		From: tableRevisions,
		Columns: []string{
			schema.ColRevision, schema.ColAuthorID, schema.ColAuthorName,
			schema.ColDate, schema.ColComments, schema.ColState,
		},
		Filter:  query.Eq{Field: schema.ColRecordID, Value: r.id},
		OrderBy: []query.Order{query.Desc(schema.ColRevision)},
	})
	if err != nil {
		return nil, fmt.Errorf("revisions of %d: %w", r.id, err)
	}

	out := make([]RevisionInfo, 0, len(rows))
	for _, row := range rows {
		date, err := store.ParseTime(row.String(schema.ColDate))
		if err != nil {
			return nil, err
		}
		out = append(out, RevisionInfo{
			Revision:   row.Int64(schema.ColRevision),
			AuthorID:   row.String(schema.ColAuthorID),
			AuthorName: row.String(schema.ColAuthorName),
			Date:       date,
			Comments:   row.String(schema.ColComments),
			State:      row.String(schema.ColState),
			Pretty:     prettyRevision(row.Int64(schema.ColRevision), row.String(schema.ColDate)),
		})
	}
	return out, nil
}

func fieldNames(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Field
	}
	return out
}

func newSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}
