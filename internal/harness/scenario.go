package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/revkit/internal/schema"
)

// Scenario is a scripted sequence of record operations with expectations
// about the resulting storage.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema declares the record type inline.
	Schema *schema.EntityType `yaml:"schema,omitempty"`

	// SchemaFile loads the record type from a definition file instead.
	// Relative paths are resolved against the scenario file. Type picks
	// one definition when the file declares several.
	SchemaFile string `yaml:"schema_file,omitempty"`
	Type       string `yaml:"type,omitempty"`

	// Simulation starts the collection in simulation mode.
	Simulation bool `yaml:"simulation,omitempty"`

	// DeletionDelay overrides the soft-delete window ("72h", "-1s").
	DeletionDelay string `yaml:"deletion_delay,omitempty"`

	Steps  []Step        `yaml:"steps"`
	Expect []Expectation `yaml:"expect,omitempty"`

	// dir is the directory the scenario was loaded from.
	dir string
}

// Step is one operation. Exactly one of its members is set.
type Step struct {
	Create  *CreateStep `yaml:"create,omitempty"`
	Edit    *EditStep   `yaml:"edit,omitempty"`
	Delete  *DeleteStep `yaml:"delete,omitempty"`
	Advance string      `yaml:"advance,omitempty"`
	Purge   bool        `yaml:"purge,omitempty"`
}

// CreateStep creates a record and names it As for later steps.
type CreateStep struct {
	As          string         `yaml:"as"`
	Fields      map[string]any `yaml:"fields"`
	Author      string         `yaml:"author,omitempty"`
	AuthorName  string         `yaml:"author_name,omitempty"`
	ExpectError string         `yaml:"expect_error,omitempty"`
}

// EditStep runs one edit session on a record.
type EditStep struct {
	Record string `yaml:"record"`

	// Revision selects an older revision to edit from.
	Revision int64          `yaml:"revision,omitempty"`
	Set      map[string]any `yaml:"set,omitempty"`
	State    string         `yaml:"state,omitempty"`
	Comments string         `yaml:"comments,omitempty"`
	Author   string         `yaml:"author,omitempty"`

	// Rollback ends the session with RollBackTransaction.
	Rollback bool `yaml:"rollback,omitempty"`

	// Simulate overrides the scenario's simulation mode for this step.
	Simulate *bool `yaml:"simulate,omitempty"`

	ExpectError string `yaml:"expect_error,omitempty"`
}

// DeleteStep schedules, cancels or forces the deletion of a record.
type DeleteStep struct {
	Record string `yaml:"record"`
	Now    bool   `yaml:"now,omitempty"`
	Cancel bool   `yaml:"cancel,omitempty"`

	ExpectError string `yaml:"expect_error,omitempty"`
}

// Expectation describes the final storage of one record. Unset members
// are not checked.
type Expectation struct {
	Record          string         `yaml:"record"`
	Exists          *bool          `yaml:"exists,omitempty"`
	CurrentRevision int64          `yaml:"current_revision,omitempty"`
	State           string         `yaml:"state,omitempty"`
	Fields          map[string]any `yaml:"fields,omitempty"`
	ChangelogCount  *int64         `yaml:"changelog_count,omitempty"`
	RevisionExists  []int64        `yaml:"revision_exists,omitempty"`
	Revisions       *int           `yaml:"revisions,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown keys are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if (s.Schema == nil) == (s.SchemaFile == "") {
		return fmt.Errorf("scenario %q: exactly one of schema or schema_file is required", s.Name)
	}
	if s.DeletionDelay != "" {
		if _, err := time.ParseDuration(s.DeletionDelay); err != nil {
			return fmt.Errorf("scenario %q: deletion_delay: %w", s.Name, err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q: at least one step is required", s.Name)
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		n := 0
		if step.Create != nil {
			n++
		}
		if step.Edit != nil {
			n++
		}
		if step.Delete != nil {
			n++
		}
		if step.Advance != "" {
			n++
		}
		if step.Purge {
			n++
		}
		if n != 1 {
			return fmt.Errorf("scenario %q: step %d: exactly one operation is required, got %d", s.Name, i, n)
		}

		switch {
		case step.Create != nil:
			if step.Create.As == "" {
				return fmt.Errorf("scenario %q: step %d: create.as is required", s.Name, i)
			}
			if aliases[step.Create.As] {
				return fmt.Errorf("scenario %q: step %d: record %q is already defined", s.Name, i, step.Create.As)
			}
			aliases[step.Create.As] = true
		case step.Edit != nil:
			if !aliases[step.Edit.Record] {
				return fmt.Errorf("scenario %q: step %d: unknown record %q", s.Name, i, step.Edit.Record)
			}
		case step.Delete != nil:
			if !aliases[step.Delete.Record] {
				return fmt.Errorf("scenario %q: step %d: unknown record %q", s.Name, i, step.Delete.Record)
			}
			if step.Delete.Now && step.Delete.Cancel {
				return fmt.Errorf("scenario %q: step %d: delete cannot be both now and cancel", s.Name, i)
			}
		case step.Advance != "":
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return fmt.Errorf("scenario %q: step %d: advance: %w", s.Name, i, err)
			}
			if d < 0 {
				return fmt.Errorf("scenario %q: step %d: advance must not be negative", s.Name, i)
			}
		}
	}

	for i, exp := range s.Expect {
		if !aliases[exp.Record] {
			return fmt.Errorf("scenario %q: expect %d: unknown record %q", s.Name, i, exp.Record)
		}
	}
	return nil
}

// resolveType registers the scenario's record type.
func (s *Scenario) resolveType() (*schema.Type, error) {
	if s.Schema != nil {
		return schema.Register(*s.Schema)
	}

	path := s.SchemaFile
	if !filepath.IsAbs(path) && s.dir != "" {
		path = filepath.Join(s.dir, path)
	}
	defs, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if s.Type == "" || def.Name == s.Type {
			if s.Type == "" && len(defs) > 1 {
				return nil, fmt.Errorf("%s declares %d types: set type", path, len(defs))
			}
			return schema.Register(def)
		}
	}
	return nil, fmt.Errorf("%s: no type %q", path, s.Type)
}

func (s *Scenario) deletionDelay() time.Duration {
	if s.DeletionDelay == "" {
		return 0
	}
	d, _ := time.ParseDuration(s.DeletionDelay)
	return d
}
