package statemachine

import (
	"errors"
	"fmt"
)

// InvalidStateError reports a state name that the machine does not know.
// Persisted rows carrying such a name are corrupt.
type InvalidStateError struct {
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %q", e.State)
}

// IsInvalidState returns true if err is or wraps an *InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}

// DefinitionError reports a malformed state table.
type DefinitionError struct {
	State   string
	Message string
}

func (e *DefinitionError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("state table: %s: %s", e.State, e.Message)
	}
	return fmt.Sprintf("state table: %s", e.Message)
}
