package changelog

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/revkit/internal/query"
	"github.com/roach88/revkit/internal/store"
	"github.com/roach88/revkit/internal/value"
)

const table = "changelog"

// Change types written by the engine itself. Field changes use the
// field's declared change type.
const (
	TypeCreated  = "created"
	TypeState    = "state"
	TypeModified = "modified"
)

// Entry is one field-level change of one revision.
type Entry struct {
	ID         int64       `json:"id"`
	RecordID   int64       `json:"record_id"`
	Revision   int64       `json:"revision"`
	SessionID  string      `json:"session_id"`
	Field      string      `json:"field"`
	ChangeType string      `json:"change_type"`
	Before     value.Value `json:"before"`
	After      value.Value `json:"after"`
	AuthorID   string      `json:"author_id"`
	Date       time.Time   `json:"date"`
}

// Describe renders the entry as one human-readable line.
func (e Entry) Describe() string {
	before, _ := value.EncodeString(orNull(e.Before))
	after, _ := value.EncodeString(orNull(e.After))
	return fmt.Sprintf("r%d %s [%s] %s -> %s by %s at %s",
		e.Revision, e.Field, e.ChangeType, before, after, e.AuthorID, e.Date.UTC().Format(time.RFC3339))
}

// Filter narrows QueryByRecord. Zero values mean "no constraint".
type Filter struct {
	AuthorID   string
	ChangeType string
	Revision   int64
	// Search matches field names and before/after values, case-insensitively.
	Search string
	From   time.Time
	To     time.Time
	// Ascending orders oldest revision first.
	Ascending bool
	Limit     int
}

// Changelog is the append-only history of field changes.
type Changelog struct {
	store *store.Store
}

// New returns a Changelog backed by s.
func New(s *store.Store) *Changelog {
	return &Changelog{store: s}
}

// Record appends one entry and returns it with its assigned ID.
// Callers record only keys whose value actually changed.
func (c *Changelog) Record(ctx context.Context, e Entry) (Entry, error) {
	if err := validate(e); err != nil {
		return Entry{}, err
	}
	before, err := value.EncodeString(orNull(e.Before))
	if err != nil {
		return Entry{}, fmt.Errorf("record changelog: before: %w", err)
	}
	after, err := value.EncodeString(orNull(e.After))
	if err != nil {
		return Entry{}, fmt.Errorf("record changelog: after: %w", err)
	}

	id, err := c.store.InsertRowReturning(ctx, table, map[string]any{
		"record_id":    e.RecordID,
		"revision":     e.Revision,
		"session_id":   e.SessionID,
		"field":        e.Field,
		"change_type":  e.ChangeType,
		"before_value": before,
		"after_value":  after,
		"author_id":    e.AuthorID,
		"date":         store.FormatTime(e.Date),
	}, "id")
	if err != nil {
		return Entry{}, fmt.Errorf("record changelog: %w", err)
	}
	e.ID = id
	return e, nil
}

// RecordAll appends entries in order. It stops at the first failure; the
// caller's transaction decides what survives.
func (c *Changelog) RecordAll(ctx context.Context, entries []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		stored, err := c.Record(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

// QueryByRecord returns the entries of a record, most recent revision first
// unless f.Ascending is set. Entries of the same revision keep insertion order.
func (c *Changelog) QueryByRecord(ctx context.Context, recordID int64, f Filter) ([]Entry, error) {
	filter := query.And{query.Eq{Field: "record_id", Value: recordID}}
	if f.AuthorID != "" {
		filter = append(filter, query.Eq{Field: "author_id", Value: f.AuthorID})
	}
	if f.ChangeType != "" {
		filter = append(filter, query.Eq{Field: "change_type", Value: f.ChangeType})
	}
	if f.Revision > 0 {
		filter = append(filter, query.Eq{Field: "revision", Value: f.Revision})
	}
	if f.Search != "" {
		filter = append(filter, query.Or{
			query.Contains{Field: "field", Text: f.Search},
			query.Contains{Field: "before_value", Text: f.Search},
			query.Contains{Field: "after_value", Text: f.Search},
		})
	}
	if !f.From.IsZero() {
		filter = append(filter, query.Gte{Field: "date", Value: store.FormatTime(f.From)})
	}
	if !f.To.IsZero() {
		filter = append(filter, query.Lte{Field: "date", Value: store.FormatTime(f.To)})
	}

	order := query.Desc("revision")
	if f.Ascending {
		order = query.Asc("revision")
	}

	rows, err := c.store.Select(ctx, query.Select{
		From:    table,
		Filter:  filter,
		OrderBy: []query.Order{order, query.Asc("id")},
		Limit:   f.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query changelog: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := scanEntry(row)
		if err != nil {
			return nil, fmt.Errorf("query changelog: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Count returns how many entries a record has.
func (c *Changelog) Count(ctx context.Context, recordID int64) (int64, error) {
	n, err := c.store.Count(ctx, table, query.Eq{Field: "record_id", Value: recordID})
	if err != nil {
		return 0, fmt.Errorf("count changelog: %w", err)
	}
	return n, nil
}

// DeleteByRecord removes every entry of a record. Only record destruction
// calls it.
func (c *Changelog) DeleteByRecord(ctx context.Context, recordID int64) (int64, error) {
	n, err := c.store.DeleteRows(ctx, table, map[string]any{"record_id": recordID})
	if err != nil {
		return 0, fmt.Errorf("delete changelog: %w", err)
	}
	return n, nil
}

func validate(e Entry) error {
	switch {
	case e.RecordID <= 0:
		return fmt.Errorf("record changelog: invalid record id %d", e.RecordID)
	case e.Revision <= 0:
		return fmt.Errorf("record changelog: invalid revision %d", e.Revision)
	case e.Field == "":
		return fmt.Errorf("record changelog: field is required")
	case e.ChangeType == "":
		return fmt.Errorf("record changelog: change type is required")
	}
	return nil
}

func scanEntry(row store.Row) (Entry, error) {
	before, err := value.Decode([]byte(row.String("before_value")))
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d before: %w", row.Int64("id"), err)
	}
	after, err := value.Decode([]byte(row.String("after_value")))
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d after: %w", row.Int64("id"), err)
	}
	date, err := store.ParseTime(row.String("date"))
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:         row.Int64("id"),
		RecordID:   row.Int64("record_id"),
		Revision:   row.Int64("revision"),
		SessionID:  row.String("session_id"),
		Field:      row.String("field"),
		ChangeType: row.String("change_type"),
		Before:     before,
		After:      after,
		AuthorID:   row.String("author_id"),
		Date:       date,
	}, nil
}

func orNull(v value.Value) value.Value {
	if v == nil {
		return value.Null{}
	}
	return v
}
