package querysql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/revkit/internal/query"
)

// Dialect selects placeholder and operator syntax.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite3"
	case Postgres:
		return "postgres"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Compiler compiles query statements to parameterized SQL.
//
// Values are never interpolated: every value becomes a placeholder.
// Identifiers are validated and double-quoted.
type Compiler struct {
	Dialect Dialect
}

// New creates a Compiler for a dialect.
func New(d Dialect) *Compiler {
	return &Compiler{Dialect: d}
}

type builder struct {
	dialect Dialect
	sb      strings.Builder
	params  []any
}

func (b *builder) write(s string) {
	b.sb.WriteString(s)
}

func (b *builder) param(v any) {
	b.params = append(b.params, v)
	if b.dialect == Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.params)))
		return
	}
	b.sb.WriteString("?")
}

func (b *builder) ident(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	b.sb.WriteString(`"` + name + `"`)
	return nil
}

// Compile converts a statement into (sql, params).
func (c *Compiler) Compile(st query.Statement) (string, []any, error) {
	if st == nil {
		return "", nil, fmt.Errorf("cannot compile nil statement")
	}
	b := &builder{dialect: c.Dialect}

	var err error
	switch s := st.(type) {
	case query.Select:
		err = b.compileSelect(s)
	case *query.Select:
		err = b.compileSelect(*s)
	case query.Max:
		err = b.compileMax(s)
	case query.Count:
		err = b.compileCount(s)
	case query.Insert:
		err = b.compileInsert(s)
	case *query.Insert:
		err = b.compileInsert(*s)
	case query.Update:
		err = b.compileUpdate(s)
	case query.Delete:
		err = b.compileDelete(s)
	default:
		err = fmt.Errorf("unsupported statement type: %T", st)
	}
	if err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.params, nil
}

func (b *builder) compileSelect(s query.Select) error {
	b.write("SELECT ")
	if len(s.Columns) == 0 {
		b.write("*")
	}
	for i, col := range s.Columns {
		if i > 0 {
			b.write(", ")
		}
		if err := b.ident(col); err != nil {
			return err
		}
	}

	b.write(" FROM ")
	if err := b.ident(s.From); err != nil {
		return err
	}
	if err := b.where(s.Filter); err != nil {
		return err
	}

	// Every select is ordered so results are deterministic.
	b.write(" ORDER BY ")
	if len(s.OrderBy) == 0 {
		b.write("1")
	}
	for i, o := range s.OrderBy {
		if i > 0 {
			b.write(", ")
		}
		if err := b.ident(o.Field); err != nil {
			return err
		}
		if o.Desc {
			b.write(" DESC")
		} else {
			b.write(" ASC")
		}
	}

	if s.Limit > 0 {
		b.write(" LIMIT " + strconv.Itoa(s.Limit))
	}
	return nil
}

func (b *builder) compileMax(s query.Max) error {
	b.write("SELECT MAX(")
	if err := b.ident(s.Field); err != nil {
		return err
	}
	b.write(") FROM ")
	if err := b.ident(s.From); err != nil {
		return err
	}
	return b.where(s.Filter)
}

func (b *builder) compileCount(s query.Count) error {
	b.write("SELECT COUNT(*) FROM ")
	if err := b.ident(s.From); err != nil {
		return err
	}
	return b.where(s.Filter)
}

func (b *builder) compileInsert(s query.Insert) error {
	if len(s.Values) == 0 {
		return fmt.Errorf("insert into %q: no values", s.Table)
	}
	b.write("INSERT INTO ")
	if err := b.ident(s.Table); err != nil {
		return err
	}

	keys := query.SortedKeys(s.Values)
	b.write(" (")
	for i, k := range keys {
		if i > 0 {
			b.write(", ")
		}
		if err := b.ident(k); err != nil {
			return err
		}
	}
	b.write(") VALUES (")
	for i, k := range keys {
		if i > 0 {
			b.write(", ")
		}
		b.param(s.Values[k])
	}
	b.write(")")

	if s.Returning != "" {
		b.write(" RETURNING ")
		if err := b.ident(s.Returning); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) compileUpdate(s query.Update) error {
	if len(s.Set) == 0 {
		return fmt.Errorf("update %q: no columns to set", s.Table)
	}
	if s.Filter == nil {
		return fmt.Errorf("update %q: filter is required", s.Table)
	}
	b.write("UPDATE ")
	if err := b.ident(s.Table); err != nil {
		return err
	}
	b.write(" SET ")
	for i, k := range query.SortedKeys(s.Set) {
		if i > 0 {
			b.write(", ")
		}
		if err := b.ident(k); err != nil {
			return err
		}
		b.write(" = ")
		b.param(s.Set[k])
	}
	return b.where(s.Filter)
}

func (b *builder) compileDelete(s query.Delete) error {
	if s.Filter == nil {
		return fmt.Errorf("delete from %q: filter is required", s.Table)
	}
	b.write("DELETE FROM ")
	if err := b.ident(s.Table); err != nil {
		return err
	}
	return b.where(s.Filter)
}

func (b *builder) where(p query.Predicate) error {
	if p == nil {
		return nil
	}
	b.write(" WHERE ")
	return b.predicate(p)
}

func (b *builder) predicate(p query.Predicate) error {
	switch pred := p.(type) {
	case nil:
		b.write("1 = 1")
	case query.Eq:
		if pred.Value == nil {
			return b.unary(pred.Field, " IS NULL")
		}
		return b.binary(pred.Field, " = ", pred.Value)
	case query.Ne:
		return b.binary(pred.Field, " <> ", pred.Value)
	case query.Gte:
		return b.binary(pred.Field, " >= ", pred.Value)
	case query.Lte:
		return b.binary(pred.Field, " <= ", pred.Value)
	case query.IsNotNull:
		return b.unary(pred.Field, " IS NOT NULL")
	case query.Contains:
		return b.contains(pred)
	case query.In:
		return b.in(pred)
	case query.And:
		return b.join(pred, " AND ", "1 = 1")
	case query.Or:
		return b.join(pred, " OR ", "1 = 0")
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
	return nil
}

func (b *builder) unary(field, op string) error {
	if err := b.ident(field); err != nil {
		return err
	}
	b.write(op)
	return nil
}

func (b *builder) binary(field, op string, v any) error {
	if err := b.ident(field); err != nil {
		return err
	}
	b.write(op)
	b.param(v)
	return nil
}

func (b *builder) contains(c query.Contains) error {
	pattern := "%" + escapeLike(c.Text) + "%"
	if b.dialect == Postgres {
		if err := b.ident(c.Field); err != nil {
			return err
		}
		b.write(" ILIKE ")
		b.param(pattern)
		b.write(` ESCAPE '\'`)
		return nil
	}
	b.write("LOWER(")
	if err := b.ident(c.Field); err != nil {
		return err
	}
	b.write(") LIKE LOWER(")
	b.param(pattern)
	b.write(`) ESCAPE '\'`)
	return nil
}

func (b *builder) in(in query.In) error {
	if len(in.Values) == 0 {
		b.write("1 = 0")
		return nil
	}
	if err := b.ident(in.Field); err != nil {
		return err
	}
	b.write(" IN (")
	for i, v := range in.Values {
		if i > 0 {
			b.write(", ")
		}
		b.param(v)
	}
	b.write(")")
	return nil
}

func (b *builder) join(preds []query.Predicate, sep, empty string) error {
	if len(preds) == 0 {
		b.write(empty)
		return nil
	}
	b.write("(")
	for i, p := range preds {
		if i > 0 {
			b.write(sep)
		}
		if err := b.predicate(p); err != nil {
			return err
		}
	}
	b.write(")")
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
