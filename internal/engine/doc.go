// Package engine is the fieldflow pipeline façade: it owns the field
// registry and lineage graph, applies user-level edits, and runs documents
// through the graph.
//
// ARCHITECTURE:
//
// Single Writer, Immutable Snapshots:
// Edits are serialized by one mutex. Each edit runs against clones of the
// registry and graph inside a Tx, is validated, and is published as a new
// snapshot with one atomic pointer swap. Readers load the current snapshot
// and never observe a half-applied edit.
//
// Edit Flow:
//  1. Clone the committed registry and graph into a Tx
//  2. Apply the edit's node and edge changes
//  3. Run validate.Validate on the result
//  4. Publish on success; drop the Tx on failure
//
// Execution:
// A Plan is compiled once per snapshot (execution order, resolved paths,
// compiled ops) and shared read-only by every document transform, including
// concurrent batch workers.
//
// CRITICAL PATTERNS:
//
// Deterministic ordering:
// Execution order breaks ties by ascending node id. Batch results keep input
// order regardless of which worker finished first.
//
// Partial failure:
// Value-level errors are collected per document and never abort a run. Only
// a structural failure (no plan) fails a document.
package engine
