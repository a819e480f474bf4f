// Package statemachine implements the lifecycle state table of a
// revisionable entity type.
//
// A Definition lists named states (exactly one initial) and directed
// transitions. Transitions fire either on a structural change detected
// during an edit session, or manually when a caller asks for a target
// state. Non-structural changes never move a record.
//
// Validation at New rejects tables with unreachable states, dangling
// edges, or non-terminal states without any outgoing transition.
package statemachine
