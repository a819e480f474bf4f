package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/revkit/internal/query"
)

// Row is one fetched row keyed by column name. Integer columns scan as
// int64, text columns as string, NULL as nil.
type Row map[string]any

// TimeLayout is the fixed-width UTC layout used for every date column.
// Fixed width keeps lexical and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Int64 returns an integer column, or 0 if it is NULL or not an integer.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// String returns a text column, or "" if it is NULL.
func (r Row) String(col string) string {
	if v, ok := r[col].(string); ok {
		return v
	}
	return ""
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// FetchRow returns the single row of table matching filter.
// Returns ErrNotFound if nothing matches.
func (s *Store) FetchRow(ctx context.Context, table string, filter map[string]any) (Row, error) {
	rows, err := s.Select(ctx, query.Select{
		From:   table,
		Filter: query.Where(filter),
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Select runs a select statement and returns every row.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Select(ctx context.Context, sel query.Select) ([]Row, error) {
	stmt, args, err := s.compiler.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", sel.From, err)
	}

	rows, err := s.conn().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", sel.From, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", sel.From, err)
	}
	return out, nil
}

// InsertRow inserts one row.
func (s *Store) InsertRow(ctx context.Context, table string, values map[string]any) error {
	stmt, args, err := s.compiler.Compile(query.Insert{Table: table, Values: values})
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	if _, err := s.conn().ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// InsertRowReturning inserts one row and returns the generated value of
// column (usually the primary key).
func (s *Store) InsertRowReturning(ctx context.Context, table string, values map[string]any, column string) (int64, error) {
	stmt, args, err := s.compiler.Compile(query.Insert{Table: table, Values: values, Returning: column})
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	var id int64
	if err := s.conn().QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return id, nil
}

// UpdateRow sets columns on the rows matching filter and returns how many
// rows changed.
func (s *Store) UpdateRow(ctx context.Context, table string, set, filter map[string]any) (int64, error) {
	stmt, args, err := s.compiler.Compile(query.Update{Table: table, Set: set, Filter: query.Where(filter)})
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	res, err := s.conn().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return n, nil
}

// DeleteRows removes the rows matching filter and returns how many were removed.
func (s *Store) DeleteRows(ctx context.Context, table string, filter map[string]any) (int64, error) {
	stmt, args, err := s.compiler.Compile(query.Delete{Table: table, Filter: query.Where(filter)})
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	res, err := s.conn().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return n, nil
}

// NextValue returns MAX(column)+1 over the rows matching filter, or 1 when
// no row matches.
func (s *Store) NextValue(ctx context.Context, table, column string, filter map[string]any) (int64, error) {
	stmt, args, err := s.compiler.Compile(query.Max{From: table, Field: column, Filter: query.Where(filter)})
	if err != nil {
		return 0, fmt.Errorf("next %s.%s: %w", table, column, err)
	}
	var last sql.NullInt64
	if err := s.conn().QueryRowContext(ctx, stmt, args...).Scan(&last); err != nil {
		return 0, fmt.Errorf("next %s.%s: %w", table, column, err)
	}
	if !last.Valid {
		return 1, nil
	}
	return last.Int64 + 1, nil
}

// Count returns the number of rows of table matching filter.
func (s *Store) Count(ctx context.Context, table string, filter query.Predicate) (int64, error) {
	stmt, args, err := s.compiler.Compile(query.Count{From: table, Filter: filter})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	var n int64
	if err := s.conn().QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(dest[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

// normalize maps driver-specific scan results onto the Row value set.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case time.Time:
		return FormatTime(x)
	default:
		return v
	}
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
