package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fieldflow/internal/ir"
)

const selectVersion = `
	SELECT pipeline, version, hash, definition, engine_version, format_version
	FROM graph_versions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (ir.GraphVersion, error) {
	var (
		gv   ir.GraphVersion
		text string
	)
	err := row.Scan(&gv.Pipeline, &gv.Version, &gv.Hash, &text, &gv.EngineVersion, &gv.FormatVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.GraphVersion{}, ErrNotFound
	}
	if err != nil {
		return ir.GraphVersion{}, fmt.Errorf("scan graph version: %w", err)
	}
	if gv.Definition, err = unmarshalDefinition(text); err != nil {
		return ir.GraphVersion{}, err
	}
	return gv, nil
}

// LatestVersion returns the newest version of a pipeline.
// Returns ErrNotFound if the pipeline was never pushed.
func (s *Store) LatestVersion(ctx context.Context, pipeline string) (ir.GraphVersion, error) {
	gv, err := scanVersion(s.db.QueryRowContext(ctx, selectVersion+`
		WHERE pipeline = ?
		ORDER BY version DESC
		LIMIT 1
	`, pipeline))
	if err != nil {
		return ir.GraphVersion{}, fmt.Errorf("latest version of %q: %w", pipeline, err)
	}
	return gv, nil
}

// GetVersion returns one version of a pipeline.
func (s *Store) GetVersion(ctx context.Context, pipeline string, version int64) (ir.GraphVersion, error) {
	gv, err := scanVersion(s.db.QueryRowContext(ctx, selectVersion+`
		WHERE pipeline = ? AND version = ?
	`, pipeline, version))
	if err != nil {
		return ir.GraphVersion{}, fmt.Errorf("version %d of %q: %w", version, pipeline, err)
	}
	return gv, nil
}

// ListVersions returns every version of a pipeline, oldest first.
//
// Returns an empty slice (not nil) if the pipeline was never pushed.
func (s *Store) ListVersions(ctx context.Context, pipeline string) ([]ir.GraphVersion, error) {
	rows, err := s.db.QueryContext(ctx, selectVersion+`
		WHERE pipeline = ?
		ORDER BY version ASC
	`, pipeline)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	versions := []ir.GraphVersion{}
	for rows.Next() {
		gv, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, gv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

// ListPipelines returns the names of all pushed pipelines, sorted.
func (s *Store) ListPipelines(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT pipeline FROM graph_versions
		ORDER BY pipeline COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipelines: %w", err)
	}
	return names, nil
}

const selectRun = `
	SELECT id, pipeline, graph_hash, documents, completed, field_errors, started_at, finished_at
	FROM runs`

func scanRun(row rowScanner) (ir.RunRecord, error) {
	var (
		run              ir.RunRecord
		started, finished string
	)
	err := row.Scan(&run.ID, &run.Pipeline, &run.GraphHash, &run.Documents, &run.Completed, &run.FieldErrors, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.RunRecord{}, ErrNotFound
	}
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return ir.RunRecord{}, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return ir.RunRecord{}, err
	}
	return run, nil
}

// GetRun returns one run record.
func (s *Store) GetRun(ctx context.Context, id string) (ir.RunRecord, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if err != nil {
		return ir.RunRecord{}, fmt.Errorf("run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the runs of a pipeline, oldest first.
func (s *Store) ListRuns(ctx context.Context, pipeline string) ([]ir.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRun+`
		WHERE pipeline = ?
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`, pipeline)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RunErrors returns the field errors of a run by document, then in the
// order they were recorded.
func (s *Store) RunErrors(ctx context.Context, runID string) ([]ir.RunError, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document, node, path, message
		FROM run_errors
		WHERE run_id = ?
		ORDER BY document ASC, seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run errors: %w", err)
	}
	defer rows.Close()

	errs := []ir.RunError{}
	for rows.Next() {
		var (
			e    ir.RunError
			node int64
			path string
		)
		if err := rows.Scan(&e.Document, &node, &path, &e.Message); err != nil {
			return nil, fmt.Errorf("scan run error: %w", err)
		}
		e.Node = ir.NodeID(node)
		if e.Path, err = unmarshalPath(path); err != nil {
			return nil, err
		}
		errs = append(errs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run errors: %w", err)
	}
	return errs, nil
}

// Query runs a read-only SQL query against the store. Used by the
// conformance harness for final-state assertions.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}
