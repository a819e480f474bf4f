package harness

import "github.com/roach88/revkit/internal/changelog"

// Step operations recorded in the trace.
const (
	OpCreate  = "create"
	OpEdit    = "edit"
	OpDelete  = "delete"
	OpCancel  = "cancel_delete"
	OpDestroy = "destroy"
	OpAdvance = "advance"
	OpPurge   = "purge"
)

// TraceEvent is the observable outcome of one scenario step.
type TraceEvent struct {
	Step     int    `json:"step"`
	Op       string `json:"op"`
	Record   string `json:"record,omitempty"`
	RecordID int64  `json:"record_id,omitempty"`

	// Revision and State are read back after the step.
	Revision int64  `json:"revision,omitempty"`
	State    string `json:"state,omitempty"`

	// Outcome is the edit session outcome ("committed", "no-op", ...).
	Outcome string `json:"outcome,omitempty"`

	// Error is the error code the step produced, if any.
	Error string `json:"error,omitempty"`

	// Changes are the changelog entries the step appended.
	Changes []changelog.Entry `json:"changes,omitempty"`

	// Purged lists the record IDs a purge step destroyed.
	Purged []int64 `json:"purged,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when no step failed unexpectedly and every
	// expectation and storage property held.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Events lists the kinds of record events delivered, in order.
	Events []string `json:"events"`

	// Records maps scenario aliases to record IDs.
	Records map[string]int64 `json:"records,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Events:  []string{},
		Records: make(map[string]int64),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
