package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fieldflow/internal/ir"
)

// PushVersion stores def as the next version of its pipeline and returns
// the stored record. If def hashes the same as the pipeline's latest
// version, nothing is written and the latest version is returned with
// inserted=false.
func (s *Store) PushVersion(ctx context.Context, def ir.Definition) (gv ir.GraphVersion, inserted bool, err error) {
	if def.Name == "" {
		return ir.GraphVersion{}, false, fmt.Errorf("push version: pipeline has no name")
	}
	hash, err := ir.DefinitionHash(def)
	if err != nil {
		return ir.GraphVersion{}, false, fmt.Errorf("push version: %w", err)
	}
	text, err := marshalDefinition(def)
	if err != nil {
		return ir.GraphVersion{}, false, fmt.Errorf("push version: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.GraphVersion{}, false, fmt.Errorf("push version: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var (
		latest     int64
		latestHash string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT version, hash FROM graph_versions
		WHERE pipeline = ?
		ORDER BY version DESC
		LIMIT 1
	`, def.Name).Scan(&latest, &latestHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return ir.GraphVersion{}, false, fmt.Errorf("push version: select latest: %w", err)
	case latestHash == hash:
		existing, err := scanVersion(tx.QueryRowContext(ctx, selectVersion+`
			WHERE pipeline = ? AND version = ?
		`, def.Name, latest))
		if err != nil {
			return ir.GraphVersion{}, false, fmt.Errorf("push version: %w", err)
		}
		return existing, false, nil
	}

	gv = ir.GraphVersion{
		Pipeline:      def.Name,
		Version:       latest + 1,
		Hash:          hash,
		EngineVersion: ir.EngineVersion,
		FormatVersion: ir.FormatVersion,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO graph_versions
		(pipeline, version, hash, definition, engine_version, format_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		gv.Pipeline,
		gv.Version,
		gv.Hash,
		text,
		gv.EngineVersion,
		gv.FormatVersion,
	)
	if err != nil {
		return ir.GraphVersion{}, false, fmt.Errorf("push version: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ir.GraphVersion{}, false, fmt.Errorf("push version: commit: %w", err)
	}

	gv.Definition, err = unmarshalDefinition(text)
	if err != nil {
		return ir.GraphVersion{}, false, fmt.Errorf("push version: %w", err)
	}
	return gv, true, nil
}

// WriteRun atomically writes a run record and all of its field errors.
// Writing the same run id twice is an error.
func (s *Store) WriteRun(ctx context.Context, run ir.RunRecord, errs []ir.RunError) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, pipeline, graph_hash, documents, completed, field_errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Pipeline,
		run.GraphHash,
		run.Documents,
		run.Completed,
		run.FieldErrors,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("write run: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_errors
		(run_id, document, seq, node, path, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write run: prepare errors: %w", err)
	}
	defer stmt.Close()

	seq := make(map[int]int)
	for _, e := range errs {
		path, err := marshalPath(e.Path)
		if err != nil {
			return fmt.Errorf("write run: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, e.Document, seq[e.Document], int64(e.Node), path, e.Message); err != nil {
			return fmt.Errorf("write run: insert error: %w", err)
		}
		seq[e.Document]++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}
