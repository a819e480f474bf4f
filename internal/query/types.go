package query

// Statement is a sealed interface over the statements the storage driver
// executes. Only types in this package implement it.
type Statement interface {
	statementNode()
}

// Predicate is a sealed interface over WHERE conditions.
type Predicate interface {
	predicateNode()
}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Asc orders by field ascending.
func Asc(field string) Order { return Order{Field: field} }

// Desc orders by field descending.
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Select reads rows from one table.
//
//	Select{
//	  From:    "revisions",
//	  Filter:  And{Eq{"record_id", 7}, Eq{"state", "draft"}},
//	  OrderBy: []Order{Desc("date"), Desc("revision")},
//	  Limit:   1,
//	}
//
// An empty Columns list selects every column.
type Select struct {
	From    string
	Columns []string
	Filter  Predicate
	OrderBy []Order
	Limit   int
}

func (Select) statementNode() {}

// Max reads MAX(Field) over the filtered rows of a table.
type Max struct {
	From   string
	Field  string
	Filter Predicate
}

func (Max) statementNode() {}

// Count reads COUNT(*) over the filtered rows of a table.
type Count struct {
	From   string
	Filter Predicate
}

func (Count) statementNode() {}

// Insert writes one row. If Returning is set the statement yields the
// named column of the inserted row.
type Insert struct {
	Table     string
	Values    map[string]any
	Returning string
}

func (Insert) statementNode() {}

// Update changes the filtered rows of a table. Filter is mandatory.
type Update struct {
	Table  string
	Set    map[string]any
	Filter Predicate
}

func (Update) statementNode() {}

// Delete removes the filtered rows of a table. Filter is mandatory.
type Delete struct {
	Table  string
	Filter Predicate
}

func (Delete) statementNode() {}

// Eq matches Field = Value. A nil Value matches NULL.
type Eq struct {
	Field string
	Value any
}

func (Eq) predicateNode() {}

// Ne matches Field <> Value.
type Ne struct {
	Field string
	Value any
}

func (Ne) predicateNode() {}

// Gte matches Field >= Value.
type Gte struct {
	Field string
	Value any
}

func (Gte) predicateNode() {}

// Lte matches Field <= Value.
type Lte struct {
	Field string
	Value any
}

func (Lte) predicateNode() {}

// Contains matches rows whose Field contains Text, case-insensitively.
type Contains struct {
	Field string
	Text  string
}

func (Contains) predicateNode() {}

// In matches Field IN (Values...). An empty Values list matches nothing.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// IsNotNull matches Field IS NOT NULL.
type IsNotNull struct {
	Field string
}

func (IsNotNull) predicateNode() {}

// And matches when every predicate matches. An empty And is true.
type And []Predicate

func (And) predicateNode() {}

// Or matches when any predicate matches. An empty Or is false.
type Or []Predicate

func (Or) predicateNode() {}

// Where builds a conjunction of equality predicates from a column map.
// Keys are applied in sorted order.
func Where(filter map[string]any) Predicate {
	if len(filter) == 0 {
		return nil
	}
	and := make(And, 0, len(filter))
	for _, k := range SortedKeys(filter) {
		and = append(and, Eq{Field: k, Value: filter[k]})
	}
	return and
}
