// Package store is the relational storage driver behind revisionable records.
//
// It owns four tables:
//   - records: one row per logical record (id, record_type, created_at)
//   - revisions: one immutable row per record revision, primary key (record_id, revision)
//   - current_revisions: the current-revision pointer, one row per record
//   - changelog: append-only field-level change entries
//
// # Contract
//
// Callers never build SQL. Row primitives (FetchRow, Select, InsertRow,
// UpdateRow, DeleteRows, NextValue, Count) take column maps or query IR,
// which internal/querysql compiles to parameterized statements for the
// store's dialect. Every select carries an ORDER BY so results are
// deterministic.
//
// # Transactions
//
// A Store holds at most one open transaction. Begin fails with ErrTxActive
// when one is already open, so an edit session checks InTransaction first
// and only commits or rolls back a transaction it opened itself.
//
// # Database Configuration
//
// SQLite (default, github.com/mattn/go-sqlite3):
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// PostgreSQL via github.com/lib/pq uses the same logical schema with
// $n placeholders; migrations are tracked in a schema_version table
// instead of PRAGMA user_version.
package store
