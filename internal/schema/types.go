package schema

import (
	"fmt"
	"regexp"
	"time"

	"github.com/roach88/revkit/internal/statemachine"
	"github.com/roach88/revkit/internal/value"
)

// FieldType is the declared storage type of a field.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeBool   FieldType = "bool"
	TypeDate   FieldType = "date"
	TypeJSON   FieldType = "json"
)

// DefaultChangeType labels changelog entries of fields without their own label.
const DefaultChangeType = "modified"

// Column names of revision metadata. Domain fields may not use them.
const (
	ColRecordID       = "record_id"
	ColRevision       = "revision"
	ColAuthorID       = "author_id"
	ColAuthorName     = "author_name"
	ColDate           = "date"
	ColComments       = "comments"
	ColState          = "state"
	ColPrettyRevision = "pretty_revision"
)

var metaColumns = map[string]bool{
	ColRecordID: true, ColRevision: true, ColAuthorID: true, ColAuthorName: true,
	ColDate: true, ColComments: true, ColState: true, ColPrettyRevision: true,
}

// IsMetaColumn reports whether name is a revision metadata column.
func IsMetaColumn(name string) bool {
	return metaColumns[name]
}

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Field declares one domain field of an entity type.
type Field struct {
	Name       string    `yaml:"name" json:"name"`
	Type       FieldType `yaml:"type" json:"type"`
	Structural bool      `yaml:"structural,omitempty" json:"structural,omitempty"`
	Required   bool      `yaml:"required,omitempty" json:"required,omitempty"`
	// Static fields are fixed at creation and copied verbatim into every revision.
	Static     bool   `yaml:"static,omitempty" json:"static,omitempty"`
	Default    any    `yaml:"default,omitempty" json:"default,omitempty"`
	Generator  string `yaml:"generator,omitempty" json:"generator,omitempty"`
	ChangeType string `yaml:"change_type,omitempty" json:"change_type,omitempty"`
}

// StructuralPredicate decides whether a change set is structural when the
// per-field flag is not enough. changed lists modified field names, after
// holds the post-edit field values.
type StructuralPredicate func(changed []string, after value.Object) bool

// EntityType is the declarative definition of a revisionable record type.
type EntityType struct {
	Name       string  `yaml:"name" json:"name"`
	LabelField string  `yaml:"label_field" json:"label_field"`
	Fields     []Field `yaml:"fields" json:"fields"`

	statemachine.Definition `yaml:",inline"`

	Structurality StructuralPredicate `yaml:"-" json:"-"`
}

// Type is a registered entity type: the definition resolved into lookups.
type Type struct {
	name       string
	labelField string
	fields     []*Field
	byName     map[string]*Field
	defaults   map[string]value.Value
	machine    *statemachine.Machine
	predicate  StructuralPredicate
}

// Register validates def and resolves it into a Type.
func Register(def EntityType) (*Type, error) {
	if !fieldNamePattern.MatchString(def.Name) {
		return nil, &ValidationError{Type: def.Name, Message: "type name must match " + fieldNamePattern.String()}
	}

	t := &Type{
		name:       def.Name,
		labelField: def.LabelField,
		byName:     make(map[string]*Field, len(def.Fields)),
		defaults:   make(map[string]value.Value),
		predicate:  def.Structurality,
	}

	for i := range def.Fields {
		f := def.Fields[i]
		if !fieldNamePattern.MatchString(f.Name) {
			return nil, &ValidationError{Type: def.Name, Field: f.Name, Message: "field name must match " + fieldNamePattern.String()}
		}
		if IsMetaColumn(f.Name) {
			return nil, &ValidationError{Type: def.Name, Field: f.Name, Message: "field name is reserved"}
		}
		if _, dup := t.byName[f.Name]; dup {
			return nil, &ValidationError{Type: def.Name, Field: f.Name, Message: "duplicate field"}
		}
		if f.Type == "" {
			f.Type = TypeString
		}
		switch f.Type {
		case TypeString, TypeInt, TypeBool, TypeDate, TypeJSON:
		default:
			return nil, &ValidationError{Type: def.Name, Field: f.Name, Message: fmt.Sprintf("unknown field type %q", f.Type)}
		}
		if f.ChangeType == "" {
			f.ChangeType = DefaultChangeType
		}
		if f.Generator != "" {
			if _, ok := LookupGenerator(f.Generator); !ok {
				return nil, &ValidationError{Type: def.Name, Field: f.Name, Message: fmt.Sprintf("unknown generator %q", f.Generator)}
			}
		}

		fp := &f
		t.fields = append(t.fields, fp)
		t.byName[f.Name] = fp

		if f.Default != nil {
			v, err := t.Coerce(f.Name, f.Default)
			if err != nil {
				return nil, &ValidationError{Type: def.Name, Field: f.Name, Message: "invalid default: " + err.Error()}
			}
			t.defaults[f.Name] = v
		}
	}

	if def.LabelField != "" {
		if _, ok := t.byName[def.LabelField]; !ok {
			return nil, &ValidationError{Type: def.Name, Field: def.LabelField, Message: "label field is not declared"}
		}
	}

	m, err := statemachine.New(def.Definition)
	if err != nil {
		return nil, &ValidationError{Type: def.Name, Message: err.Error(), Err: err}
	}
	t.machine = m

	return t, nil
}

// Name returns the entity type name.
func (t *Type) Name() string { return t.name }

// LabelField returns the field holding the record label, or "".
func (t *Type) LabelField() string { return t.labelField }

// Machine returns the type's state machine.
func (t *Type) Machine() *statemachine.Machine { return t.machine }

// Field looks up a declared field.
func (t *Type) Field(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// Fields returns the declared fields in declaration order.
func (t *Type) Fields() []*Field {
	out := make([]*Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Default returns the declared default of a field.
func (t *Type) Default(name string) (value.Value, bool) {
	v, ok := t.defaults[name]
	return v, ok
}

// IsStructural reports the per-field structural flag.
func (t *Type) IsStructural(name string) bool {
	f, ok := t.byName[name]
	return ok && f.Structural
}

// ChangeType returns the changelog label for a field.
func (t *Type) ChangeType(name string) string {
	if f, ok := t.byName[name]; ok {
		return f.ChangeType
	}
	return DefaultChangeType
}

// Classify classifies a set of modified fields. A registered structurality
// predicate can promote a change set to Structural on top of the per-field
// flags.
func (t *Type) Classify(changed []string, after value.Object) statemachine.Classification {
	class := statemachine.ClassifyChange(changed, t.IsStructural)
	if class == statemachine.NonStructural && t.predicate != nil && t.predicate(changed, after) {
		return statemachine.Structural
	}
	return class
}

// Coerce converts raw into the declared type of field name.
// Null is accepted for every type.
func (t *Type) Coerce(name string, raw any) (value.Value, error) {
	f, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", name)
	}

	v, err := value.FromAny(raw)
	if err != nil {
		return nil, err
	}
	if value.IsNull(v) {
		return value.Null{}, nil
	}

	switch f.Type {
	case TypeString:
		if _, ok := v.(value.String); !ok {
			return nil, fmt.Errorf("field %q expects string, got %T", name, v)
		}
	case TypeInt:
		if _, ok := v.(value.Int); !ok {
			return nil, fmt.Errorf("field %q expects int, got %T", name, v)
		}
	case TypeBool:
		if _, ok := v.(value.Bool); !ok {
			return nil, fmt.Errorf("field %q expects bool, got %T", name, v)
		}
	case TypeDate:
		s, ok := v.(value.String)
		if !ok {
			return nil, fmt.Errorf("field %q expects date, got %T", name, v)
		}
		ts, err := ParseDate(string(s))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		return value.String(ts.UTC().Format(time.RFC3339Nano)), nil
	case TypeJSON:
	}
	return v, nil
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return ts, nil
}
