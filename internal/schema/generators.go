package schema

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/revkit/internal/value"
)

// Generator produces a field value at record creation time.
type Generator func(now time.Time) value.Value

var (
	generatorsMu sync.RWMutex
	generators   = map[string]Generator{
		"now": func(now time.Time) value.Value {
			return value.String(now.UTC().Format(time.RFC3339Nano))
		},
		"uuid": func(time.Time) value.Value {
			return value.String(uuid.Must(uuid.NewV7()).String())
		},
	}
)

// RegisterGenerator makes a named generator available to field declarations.
// Must be called before types that reference it are registered.
func RegisterGenerator(name string, g Generator) {
	generatorsMu.Lock()
	defer generatorsMu.Unlock()
	generators[name] = g
}

// LookupGenerator returns the generator registered under name.
func LookupGenerator(name string) (Generator, bool) {
	generatorsMu.RLock()
	defer generatorsMu.RUnlock()
	g, ok := generators[name]
	return g, ok
}
