package statemachine

import (
	"fmt"
	"sort"
)

// Classification describes the kind of change an edit session introduced.
type Classification int

const (
	// None means no field changed.
	None Classification = iota
	// NonStructural means fields changed, none of them structural.
	NonStructural
	// Structural means at least one structural field changed.
	Structural
)

func (c Classification) String() string {
	switch c {
	case None:
		return "NONE"
	case NonStructural:
		return "NON_STRUCTURAL"
	case Structural:
		return "STRUCTURAL"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// Events a transition can be taken on.
const (
	OnStructuralChange = "structural-change"
	OnManual           = "manual"
)

// State is one named state of an entity type.
type State struct {
	Name     string `yaml:"name" json:"name"`
	Initial  bool   `yaml:"initial,omitempty" json:"initial,omitempty"`
	Terminal bool   `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	// Editable is a pointer so that an omitted value defaults to true.
	Editable *bool `yaml:"editable,omitempty" json:"editable,omitempty"`
}

// IsEditable reports whether records in this state accept edit sessions.
func (s State) IsEditable() bool {
	return s.Editable == nil || *s.Editable
}

// Transition is a directed edge of the state table.
// On is OnStructuralChange or OnManual; empty means OnManual.
type Transition struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
	On   string `yaml:"on,omitempty" json:"on,omitempty"`
}

// Definition is the declarative state table of an entity type.
type Definition struct {
	States      []State      `yaml:"states" json:"states"`
	Transitions []Transition `yaml:"transitions" json:"transitions"`
}

// Machine decides state transitions for one entity type.
// It is immutable after New and safe for concurrent use.
type Machine struct {
	states     map[string]State
	order      []string
	initial    string
	structural map[string]string
	manual     map[string]map[string]bool
}

// New validates def and builds a Machine.
func New(def Definition) (*Machine, error) {
	m := &Machine{
		states:     make(map[string]State, len(def.States)),
		structural: make(map[string]string),
		manual:     make(map[string]map[string]bool),
	}

	for _, s := range def.States {
		if s.Name == "" {
			return nil, &DefinitionError{Message: "state with empty name"}
		}
		if _, dup := m.states[s.Name]; dup {
			return nil, &DefinitionError{State: s.Name, Message: "duplicate state"}
		}
		m.states[s.Name] = s
		m.order = append(m.order, s.Name)
		if s.Initial {
			if m.initial != "" {
				return nil, &DefinitionError{State: s.Name, Message: fmt.Sprintf("second initial state (already %q)", m.initial)}
			}
			m.initial = s.Name
		}
	}
	if m.initial == "" {
		return nil, &DefinitionError{Message: "no initial state"}
	}

	for _, tr := range def.Transitions {
		if _, ok := m.states[tr.From]; !ok {
			return nil, &DefinitionError{State: tr.From, Message: "transition from unknown state"}
		}
		if _, ok := m.states[tr.To]; !ok {
			return nil, &DefinitionError{State: tr.To, Message: "transition to unknown state"}
		}
		switch tr.On {
		case OnStructuralChange:
			if prev, dup := m.structural[tr.From]; dup {
				return nil, &DefinitionError{State: tr.From, Message: fmt.Sprintf("second structural-change transition (already to %q)", prev)}
			}
			m.structural[tr.From] = tr.To
		case "", OnManual:
			if m.manual[tr.From] == nil {
				m.manual[tr.From] = make(map[string]bool)
			}
			m.manual[tr.From][tr.To] = true
		default:
			return nil, &DefinitionError{State: tr.From, Message: fmt.Sprintf("unknown transition event %q", tr.On)}
		}
	}

	if err := m.validateGraph(); err != nil {
		return nil, err
	}
	return m, nil
}

// validateGraph enforces reachability from the initial state and an
// outgoing edge on every non-terminal state.
func (m *Machine) validateGraph() error {
	reached := map[string]bool{m.initial: true}
	queue := []string{m.initial}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range m.successors(cur) {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, name := range m.order {
		if !reached[name] {
			return &DefinitionError{State: name, Message: "unreachable from initial state"}
		}
		if !m.states[name].Terminal && len(m.successors(name)) == 0 {
			return &DefinitionError{State: name, Message: "no outgoing transition and not terminal"}
		}
	}
	return nil
}

func (m *Machine) successors(name string) []string {
	var out []string
	if to, ok := m.structural[name]; ok {
		out = append(out, to)
	}
	for to := range m.manual[name] {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// Initial returns the name of the initial state.
func (m *Machine) Initial() string {
	return m.initial
}

// States returns state names in declaration order.
func (m *Machine) States() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// State looks up a state by name.
func (m *Machine) State(name string) (State, error) {
	s, ok := m.states[name]
	if !ok {
		return State{}, &InvalidStateError{State: name}
	}
	return s, nil
}

// ClassifyChange classifies a set of modified field names given a
// structurality lookup. Unknown fields count as non-structural.
func ClassifyChange(modified []string, isStructural func(field string) bool) Classification {
	if len(modified) == 0 {
		return None
	}
	for _, f := range modified {
		if isStructural != nil && isStructural(f) {
			return Structural
		}
	}
	return NonStructural
}

// NextState returns the state that follows current under class.
//
// Only Structural changes can move a record: the configured
// structural-change transition is taken if present, otherwise current is
// returned unchanged. An unknown current state is an *InvalidStateError.
func (m *Machine) NextState(current string, class Classification) (string, error) {
	if _, ok := m.states[current]; !ok {
		return "", &InvalidStateError{State: current}
	}
	if class != Structural {
		return current, nil
	}
	if to, ok := m.structural[current]; ok {
		return to, nil
	}
	return current, nil
}

// CanTransition reports whether a manual transition from -> to exists.
// Staying in the same state is always allowed.
func (m *Machine) CanTransition(from, to string) (bool, error) {
	if _, ok := m.states[from]; !ok {
		return false, &InvalidStateError{State: from}
	}
	if _, ok := m.states[to]; !ok {
		return false, &InvalidStateError{State: to}
	}
	if from == to {
		return true, nil
	}
	return m.manual[from][to], nil
}
