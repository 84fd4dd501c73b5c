package ir

import "time"

// NOTE: These are store-layer records, not part of the graph model.

// GraphVersion is one pushed definition of a pipeline (store-layer).
type GraphVersion struct {
	Pipeline      string     `json:"pipeline"`
	Version       int64      `json:"version"` // 1, 2, ... per pipeline
	Hash          string     `json:"hash"`    // DefinitionHash
	Definition    Definition `json:"definition"`
	EngineVersion string     `json:"engine_version"`
	FormatVersion string     `json:"format_version"`
}

// RunRecord summarizes one batch transform (store-layer).
type RunRecord struct {
	ID          string    `json:"id"` // UUIDv7
	Pipeline    string    `json:"pipeline"`
	GraphHash   string    `json:"graph_hash"`
	Documents   int       `json:"documents"`
	Completed   int       `json:"completed"`
	FieldErrors int       `json:"field_errors"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RunError is one field error of a run, tied to the input document's
// position in the batch (store-layer).
type RunError struct {
	Document int `json:"document"`
	FieldError
}
