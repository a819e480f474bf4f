// Package harness runs scripted record scenarios against the revision
// engine and checks the resulting storage.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: edit_moves_to_draft
//	description: "A structural edit of an active record returns it to draft"
//	schema:
//	  name: article
//	  label_field: label
//	  fields:
//	    - {name: label, type: string, required: true}
//	    - {name: content, type: string, structural: true}
//	  states:
//	    - {name: draft, initial: true}
//	    - {name: active}
//	  transitions:
//	    - {from: draft, to: active}
//	    - {from: active, to: draft, on: structural-change}
//	steps:
//	  - create: {as: a, fields: {label: "First"}}
//	  - edit: {record: a, state: active}
//	  - edit: {record: a, set: {content: "body"}}
//	  - delete: {record: a}
//	  - advance: 73h
//	  - purge: true
//	expect:
//	  - {record: a, exists: false}
//
// schema_file may replace schema to load the type from a definition file.
// Every step performs exactly one operation. Edit steps run one edit
// session: fields in set are written in key order, state requests a
// manual transition, and rollback ends the session without saving. A
// step may name the error code it expects with expect_error.
//
// # Checks
//
// After the steps, each expect entry is compared with the record's final
// storage, and CheckProperties verifies the invariants every record must
// satisfy (gapless revision numbers, a pointer to a stored revision, a
// changelog entry behind every revision).
//
// # Deterministic Runs
//
// Every run uses a fresh in-memory SQLite store, testutil.Clock and
// testutil.SessionIDs, so traces are identical across runs and can be
// compared against golden files with RunWithGolden.
package harness
