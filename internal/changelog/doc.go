// Package changelog stores the append-only, field-level audit trail of
// revisionable records.
//
// One Entry is written per modified field per committed edit session, plus
// one "state" entry when the session moved the record to another state and
// one "created" entry when the record was created. Before and after values
// are persisted as canonical JSON. Entries are never updated; they are
// removed only when the record itself is destroyed.
package changelog
