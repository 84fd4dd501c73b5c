package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldflow/internal/ir"
)

const minimalPipeline = `
pipeline: tiny: {
	fields: {
		name: {type: "string"}
	}
	steps: [
		{kind: "case", field: "name", options: {case: "upper"}},
	]
}
`

// writeScenario writes a pipeline and a scenario into a temp dir and
// returns the scenario path.
func writeScenario(t *testing.T, scenario string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tiny.cue"), []byte(minimalPipeline), 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: tiny_upper
description: "Upper-cases the name"
pipeline: tiny.cue
run_id: run-1
workers: 2
edits:
  - edit: transform
    field: name
    kind: append
    options: { text: "!" }
inputs:
  - { name: "ada" }
expect:
  - output: { name: "ADA!" }
    errors: 0
assertions:
  - type: error_count
    count: 0
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "tiny_upper", s.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "tiny.cue"), s.Pipeline)
	assert.Equal(t, "run-1", s.RunID)
	assert.Equal(t, 2, s.Workers)
	require.Len(t, s.Edits, 1)
	assert.Equal(t, ir.KindAppend, s.Edits[0].Kind)
	assert.Equal(t, "!", s.Edits[0].Options.Text)
	require.Len(t, s.Expect, 1)
	require.NotNil(t, s.Expect[0].Errors)
	assert.Equal(t, 0, *s.Expect[0].Errors)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		wantErr  string
	}{
		{
			name: "unknown field",
			scenario: `
name: x
description: d
pipeline: tiny.cue
input: [{}]
`,
			wantErr: "field input not found",
		},
		{
			name: "missing name",
			scenario: `
description: d
pipeline: tiny.cue
inputs: [{}]
assertions: [{type: error_count, count: 0}]
`,
			wantErr: "name is required",
		},
		{
			name: "no pipeline",
			scenario: `
name: x
description: d
inputs: [{}]
assertions: [{type: error_count, count: 0}]
`,
			wantErr: "one of pipeline or definition is required",
		},
		{
			name: "both sources",
			scenario: `
name: x
description: d
pipeline: tiny.cue
definition: tiny.json
inputs: [{}]
assertions: [{type: error_count, count: 0}]
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "missing pipeline file",
			scenario: `
name: x
description: d
pipeline: nope.cue
inputs: [{}]
assertions: [{type: error_count, count: 0}]
`,
			wantErr: "pipeline file not found",
		},
		{
			name: "no inputs",
			scenario: `
name: x
description: d
pipeline: tiny.cue
assertions: [{type: error_count, count: 0}]
`,
			wantErr: "inputs list is required",
		},
		{
			name: "nothing to check",
			scenario: `
name: x
description: d
pipeline: tiny.cue
inputs: [{}]
`,
			wantErr: "at least one expect clause or assertion",
		},
		{
			name: "too many expect clauses",
			scenario: `
name: x
description: d
pipeline: tiny.cue
inputs: [{}]
expect: [{}, {}]
`,
			wantErr: "expect has 2 entries for 1 inputs",
		},
		{
			name: "unknown edit",
			scenario: `
name: x
description: d
pipeline: tiny.cue
edits: [{edit: explode, field: name}]
inputs: [{}]
assertions: [{type: error_count, count: 0}]
`,
			wantErr: `unknown edit "explode"`,
		},
		{
			name: "edit missing argument",
			scenario: `
name: x
description: d
pipeline: tiny.cue
edits: [{edit: split, field: name}]
inputs: [{}]
assertions: [{type: error_count, count: 0}]
`,
			wantErr: "into is required for split",
		},
		{
			name: "unknown assertion",
			scenario: `
name: x
description: d
pipeline: tiny.cue
inputs: [{}]
assertions: [{type: trace_count}]
`,
			wantErr: `unknown assertion type "trace_count"`,
		},
		{
			name: "document out of range",
			scenario: `
name: x
description: d
pipeline: tiny.cue
inputs: [{}]
assertions: [{type: field_error, document: 3, path: name}]
`,
			wantErr: "document 3 out of range",
		},
		{
			name: "final state without expect",
			scenario: `
name: x
description: d
pipeline: tiny.cue
inputs: [{}]
assertions: [{type: final_state, table: runs}]
`,
			wantErr: "expect is required for final_state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.scenario))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	path := writeScenario(t, `
name: x
description: d
pipeline: pipelines/people.cue
select: contacts
inputs: [{ name: "a" }]
assertions: [{type: error_count, count: 0}]
`)

	s, err := LoadScenarioWithBasePath(path, "../../testdata")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("../../testdata", "pipelines/people.cue"), s.Pipeline)
	assert.Equal(t, "contacts", s.Select)
}
