package testutil

import (
	"fmt"
	"sync"
)

// SessionIDs hands out predictable edit-session IDs ("session-0001", ...)
// so golden changelog traces are byte-identical between runs.
//
// Thread-safety: Next is safe for concurrent use.
type SessionIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSessionIDs creates a generator. An empty prefix defaults to "session".
func NewSessionIDs(prefix string) *SessionIDs {
	if prefix == "" {
		prefix = "session"
	}
	return &SessionIDs{prefix: prefix}
}

// Next returns the next session ID.
func (g *SessionIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
