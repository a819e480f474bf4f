package revision

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/value"
)

// Change is one field whose value differs from the last committed revision.
type Change struct {
	Field  string
	Before value.Value
	After  value.Value
}

// Storage is typed key/value access to exactly one revision row, with
// dirty tracking against the values the row was loaded with.
//
// The row holds the revision metadata columns (record_id, revision,
// author_id, author_name, date, comments, state, pretty_revision) next to
// the declared domain fields of the record type.
type Storage struct {
	typ       *schema.Type
	row       value.Object
	committed value.Object
}

func newStorage(typ *schema.Type, row value.Object) *Storage {
	return &Storage{
		typ:       typ,
		row:       row.Clone(),
		committed: row.Clone(),
	}
}

// RecordID returns the record the revision belongs to (0 for stubs).
func (s *Storage) RecordID() int64 { return intOf(s.row[schema.ColRecordID]) }

// Revision returns the bound revision number (0 for stubs).
func (s *Storage) Revision() int64 { return intOf(s.row[schema.ColRevision]) }

// State returns the state persisted with the revision.
func (s *Storage) State() string { return stringOf(s.row[schema.ColState]) }

func (s *Storage) known(key string) bool {
	if schema.IsMetaColumn(key) {
		return true
	}
	_, ok := s.typ.Field(key)
	return ok
}

// Get returns the value of a declared field or metadata column.
// Absent values read as Null.
func (s *Storage) Get(key string) (value.Value, error) {
	if !s.known(key) {
		return nil, newUnknownField(s.typ.Name(), key)
	}
	v, ok := s.row[key]
	if !ok || v == nil {
		return value.Null{}, nil
	}
	return v, nil
}

// GetString returns key as a string, or def when absent.
// Non-string values are rendered in their canonical form.
func (s *Storage) GetString(key, def string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	if value.IsNull(v) {
		return def, nil
	}
	return value.Format(v), nil
}

// GetInt returns key as an integer, or def when absent or unparsable.
func (s *Storage) GetInt(key string, def int64) (int64, error) {
	v, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case value.Int:
		return int64(x), nil
	case value.String:
		if n, err := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64); err == nil {
			return n, nil
		}
	case value.Bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return def, nil
}

// GetBool returns key as a boolean, or def when absent or unparsable.
func (s *Storage) GetBool(key string, def bool) (bool, error) {
	v, err := s.Get(key)
	if err != nil {
		return false, err
	}
	switch x := v.(type) {
	case value.Bool:
		return bool(x), nil
	case value.Int:
		return x != 0, nil
	case value.String:
		switch strings.ToLower(strings.TrimSpace(string(x))) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	}
	return def, nil
}

// GetDate returns key as a time, or def when absent or unparsable.
func (s *Storage) GetDate(key string, def time.Time) (time.Time, error) {
	v, err := s.Get(key)
	if err != nil {
		return time.Time{}, err
	}
	str, ok := v.(value.String)
	if !ok {
		return def, nil
	}
	ts, err := schema.ParseDate(string(str))
	if err != nil {
		return def, nil
	}
	return ts, nil
}

// Set writes a declared domain field and reports whether the value
// actually changed. Equal values (after normalisation) are not written.
func (s *Storage) Set(key string, raw any) (bool, error) {
	if schema.IsMetaColumn(key) {
		return false, &Error{
			Code:       ErrCodeReservedKey,
			Message:    "metadata columns are written by the engine",
			RecordType: s.typ.Name(),
			Field:      key,
		}
	}
	if _, ok := s.typ.Field(key); !ok {
		return false, newUnknownField(s.typ.Name(), key)
	}

	v, err := s.typ.Coerce(key, raw)
	if err != nil {
		return false, &Error{
			Code:       ErrCodeInvalidValue,
			Message:    "value does not match the declared field type",
			RecordType: s.typ.Name(),
			Field:      key,
			Err:        err,
		}
	}

	if value.Equal(s.current(key), v) {
		return false, nil
	}
	s.row[key] = v
	return true, nil
}

func (s *Storage) current(key string) value.Value {
	if v, ok := s.row[key]; ok && v != nil {
		return v
	}
	return value.Null{}
}

func (s *Storage) committedValue(key string) value.Value {
	if v, ok := s.committed[key]; ok && v != nil {
		return v
	}
	return value.Null{}
}

// Changes lists the domain fields that differ from the committed values,
// in field declaration order. A field set and then set back is not a change.
func (s *Storage) Changes() []Change {
	var out []Change
	for _, f := range s.typ.Fields() {
		before, after := s.committedValue(f.Name), s.current(f.Name)
		if !value.Equal(before, after) {
			out = append(out, Change{Field: f.Name, Before: before, After: after})
		}
	}
	return out
}

// Dirty lists the names of changed fields.
func (s *Storage) Dirty() []string {
	changes := s.Changes()
	names := make([]string, len(changes))
	for i, c := range changes {
		names[i] = c.Field
	}
	return names
}

// HasChanges reports whether any field differs from the committed values.
func (s *Storage) HasChanges() bool {
	return len(s.Changes()) > 0
}

// Revert discards uncommitted writes.
func (s *Storage) Revert() {
	s.row = s.committed.Clone()
}

// markCommitted makes the current values the new baseline.
func (s *Storage) markCommitted() {
	s.committed = s.row.Clone()
}

// StaticColumns returns the columns every new revision inherits verbatim:
// the record ID and the fields declared static.
func (s *Storage) StaticColumns() value.Object {
	out := value.Object{schema.ColRecordID: s.committedValue(schema.ColRecordID)}
	for _, f := range s.typ.Fields() {
		if f.Static {
			out[f.Name] = s.committedValue(f.Name)
		}
	}
	return out
}

// Fields returns the domain field values, without metadata.
func (s *Storage) Fields() value.Object {
	out := make(value.Object)
	for _, f := range s.typ.Fields() {
		if v, ok := s.row[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

// Row returns a copy of the whole bound row.
func (s *Storage) Row() value.Object {
	return s.row.Clone()
}

func intOf(v value.Value) int64 {
	if n, ok := v.(value.Int); ok {
		return int64(n)
	}
	return 0
}

func stringOf(v value.Value) string {
	if str, ok := v.(value.String); ok {
		return string(str)
	}
	return ""
}
