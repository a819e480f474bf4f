package revision

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/revkit/internal/schema"
	"github.com/roach88/revkit/internal/store"
	"github.com/roach88/revkit/internal/value"
)

const (
	tableRecords   = "records"
	tableRevisions = "revisions"
	tablePointers  = "current_revisions"

	colData            = "data"
	colCurrentRevision = "current_revision"
	colDeleteAfter     = "delete_after"
)

// loadRevision fetches revision rev of record id as a flattened row:
// metadata columns, decoded domain fields and the pretty_revision label.
// Returns store.ErrNotFound if the revision does not exist.
func loadRevision(ctx context.Context, st *store.Store, id, rev int64) (value.Object, error) {
	row, err := st.FetchRow(ctx, tableRevisions, map[string]any{
		schema.ColRecordID: id,
		schema.ColRevision: rev,
	})
	if err != nil {
		return nil, err
	}
	return flatten(row)
}

func flatten(row store.Row) (value.Object, error) {
	data, err := value.DecodeObject([]byte(row.String(colData)))
	if err != nil {
		return nil, fmt.Errorf("revision %d/%d data: %w", row.Int64(schema.ColRecordID), row.Int64(schema.ColRevision), err)
	}

	out := data.Clone()
	out[schema.ColRecordID] = value.Int(row.Int64(schema.ColRecordID))
	out[schema.ColRevision] = value.Int(row.Int64(schema.ColRevision))
	for _, col := range []string{schema.ColAuthorID, schema.ColAuthorName, schema.ColDate, schema.ColComments, schema.ColState} {
		out[col] = value.String(row.String(col))
	}
	out[schema.ColPrettyRevision] = value.String(prettyRevision(row.Int64(schema.ColRevision), row.String(schema.ColDate)))
	return out, nil
}

// prettyRevision renders "<n> (<date>)" for display.
func prettyRevision(rev int64, date string) string {
	if t, err := store.ParseTime(date); err == nil {
		date = t.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%d (%s)", rev, date)
}

// persistRow splits a flattened row back into revision columns and writes it.
func persistRow(ctx context.Context, st *store.Store, typ *schema.Type, row value.Object) error {
	data := make(value.Object)
	for _, f := range typ.Fields() {
		if v, ok := row[f.Name]; ok && !value.IsNull(v) {
			data[f.Name] = v
		}
	}
	encoded, err := value.EncodeString(data)
	if err != nil {
		return fmt.Errorf("encode revision data: %w", err)
	}

	return st.InsertRow(ctx, tableRevisions, map[string]any{
		schema.ColRecordID:   intOf(row[schema.ColRecordID]),
		schema.ColRevision:   intOf(row[schema.ColRevision]),
		schema.ColAuthorID:   stringOf(row[schema.ColAuthorID]),
		schema.ColAuthorName: stringOf(row[schema.ColAuthorName]),
		schema.ColDate:       stringOf(row[schema.ColDate]),
		schema.ColComments:   stringOf(row[schema.ColComments]),
		schema.ColState:      stringOf(row[schema.ColState]),
		colData:              encoded,
	})
}

// withPretty returns row with its generated label recomputed.
func withPretty(row value.Object) value.Object {
	out := row.Clone()
	out[schema.ColPrettyRevision] = value.String(prettyRevision(intOf(row[schema.ColRevision]), stringOf(row[schema.ColDate])))
	return out
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
