package revision

import (
	"context"
	"errors"
	"time"
)

// Event kinds delivered to an EventSink.
const (
	EventRecordCreated     = "record.created"
	EventRevisionCommitted = "revision.committed"
	EventBeforeDelete      = "record.before_delete"
	EventRecordDeleted     = "record.deleted"
)

// RecordEvent describes one lifecycle event of a record.
type RecordEvent struct {
	Kind          string    `json:"kind"`
	RecordType    string    `json:"record_type"`
	RecordID      int64     `json:"record_id"`
	Revision      int64     `json:"revision,omitempty"`
	State         string    `json:"state,omitempty"`
	PreviousState string    `json:"previous_state,omitempty"`
	AuthorID      string    `json:"author_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	Changed       []string  `json:"changed,omitempty"`
	Structural    bool      `json:"structural,omitempty"`
	DeleteAfter   time.Time `json:"delete_after,omitempty"`
	At            time.Time `json:"at"`
}

// EventSink observes record lifecycle events. It is injected through
// Options; events fire after the owning transaction has finished, and a
// sink cannot abort the operation that produced the event.
type EventSink interface {
	RecordCreated(ctx context.Context, ev RecordEvent)
	RevisionCommitted(ctx context.Context, ev RecordEvent)
	BeforeDelete(ctx context.Context, ev RecordEvent)
	RecordDeleted(ctx context.Context, ev RecordEvent)
}

type nopSink struct{}

func (nopSink) RecordCreated(context.Context, RecordEvent)     {}
func (nopSink) RevisionCommitted(context.Context, RecordEvent) {}
func (nopSink) BeforeDelete(context.Context, RecordEvent)      {}
func (nopSink) RecordDeleted(context.Context, RecordEvent)     {}

// User identifies the author of an edit session.
type User struct {
	ID   string
	Name string
}

// UserProvider resolves the user of the current request.
type UserProvider interface {
	CurrentUser(ctx context.Context) (User, error)
}

// StaticUser is a UserProvider that always returns the same user.
type StaticUser User

// CurrentUser implements UserProvider.
func (u StaticUser) CurrentUser(context.Context) (User, error) {
	if u.ID == "" {
		return User{}, errors.New("no current user")
	}
	return User(u), nil
}
