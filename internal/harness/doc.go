// Package harness provides conformance testing for fieldflow pipelines.
//
// The harness loads a pipeline, applies edits, runs a batch of documents
// through it and validates the outputs, the field errors and the recorded
// run as executable contract tests.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	pipeline: ../pipelines/people.cue   # or definition: people.json
//	select: people                      # only when the file has several
//	edits:
//	  - edit: transform
//	    field: email
//	    kind: case
//	    options: { case: lower }
//	  - edit: split
//	    field: email
//	    into: [email]
//	    reject: INVALID_EDIT
//	inputs:
//	  - { full_name: "jane doe", email: "JANE@EXAMPLE.COM" }
//	expect:
//	  - output: { first: "Jane", surname: "Doe", email: "jane@example.com" }
//	    errors: 0
//	assertions:
//	  - type: field_error
//	    document: 1
//	    path: full_name
//	    message: non-string
//	  - type: final_state
//	    table: runs
//	    where: { id: "test-run-default" }
//	    expect: { completed: 2 }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - output_contains: a document's output includes the given top-level keys
//   - field_error: a document has a field error at a keypath
//   - error_count: the run has exactly N field errors
//   - field_paths: the live field paths after all edits
//   - final_state: queries a store table (graph_versions, runs, run_errors)
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite store with a fixed
// run id (scenario.run_id, or DefaultRunID). Batch results are kept in input
// order whatever the worker count, so snapshots compare byte for byte
// against golden files.
package harness
