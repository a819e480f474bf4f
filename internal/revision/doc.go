// Package revision implements revisionable records: logical records whose
// every committed edit is an immutable, numbered revision row, with one
// current-revision pointer per record and a field-level changelog.
//
// # Model
//
// A Collection serves one registered record type. It creates records
// (revision 1 in the type's initial state), loads them bound to their
// current revision, and is the only writer of the pointer table.
//
// A Revisionable is one record bound to one revision through a Storage.
// Reads never change anything. Writes happen inside an edit session:
//
//	StartTransaction -> SetCustomKey/SetState ... -> EndTransaction | RollBackTransaction
//
// EndTransaction compares the session's values with the bound revision.
// Nothing changed: nothing is written and the call returns false. Otherwise
// the next revision number (MAX+1) is allocated, the bound revision is
// copied with the changes and the new state applied, one changelog entry
// per changed field (plus one for a state change) is appended, and the
// pointer moves last. The state follows the type's state machine: only a
// structural change can take the structural-change transition, and a
// manual SetState target wins over it.
//
// # Transactions
//
// A session opens a store transaction only when none is active and then
// owns it. Sessions inside a caller's transaction never commit or roll it
// back; a failure is returned and the caller decides.
//
// # Simulation
//
// With simulation on, an owned transaction is rolled back where it would
// have been committed and EndTransaction returns false. Without an owned
// transaction the new revision is only computed, never written.
package revision
