// Package store provides SQLite-backed persistence for pipeline graph
// versions and transform run records.
//
// The store keeps:
//   - Graph versions: every pushed definition of a pipeline, numbered 1, 2, ...
//     per pipeline, stored as canonical JSON with its content hash
//   - Runs: one record per batch transform, tied to the graph hash it ran
//   - Run errors: the field errors of a run, per document
//
// Pushing a definition whose hash equals the pipeline's latest version is a
// no-op, so repeated pushes of an unchanged pipeline do not grow history.
//
// # Deterministic Query Results
//
// Every list query has a total ORDER BY so results are identical across
// runs: versions by number, runs by start time then id, errors by document
// then sequence.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
