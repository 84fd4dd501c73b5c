package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	single := filepath.Join(t.TempDir(), "single.yaml")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o644))

	paths, err := FindScenarios([]string{dir, single}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		single,
	}, paths)
}

func TestFindScenarios_RelativeToBase(t *testing.T) {
	paths, err := FindScenarios([]string{"scenarios"}, "../../testdata")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("../../testdata/scenarios", "names_edits.yaml"),
		filepath.Join("../../testdata/scenarios", "people_split.yaml"),
	}, paths)
}

func TestFindScenarios_NotFound(t *testing.T) {
	_, err := FindScenarios([]string{"missing.yaml"}, "/nonexistent")
	require.Error(t, err)

	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing.yaml", nf.Path)
	assert.Equal(t, "/nonexistent/missing.yaml", nf.ResolvedPath)
	assert.Contains(t, err.Error(), `scenario "missing.yaml" does not exist`)
}

func TestRunSuite(t *testing.T) {
	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0o644))

	failing := writeScenario(t, `
name: failing
description: "Expects the wrong output"
pipeline: tiny.cue
inputs: [{ name: "ada" }]
expect: [{ output: { name: "ada" } }]
`)

	paths := []string{
		"../../testdata/scenarios/people_split.yaml",
		broken,
		failing,
		"../../testdata/scenarios/names_edits.yaml",
	}
	result, err := RunSuite(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalScenarios)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)

	assert.Equal(t, broken, result.Failures[0].Path)
	assert.Empty(t, result.Failures[0].Scenario)
	assert.Contains(t, result.Failures[0].Errors[0], "failed to load scenario")

	assert.Equal(t, "failing", result.Failures[1].Scenario)
	assert.Contains(t, result.Failures[1].Errors[0], `output = {"name":"ADA"}`)
}

func TestRunSuite_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := RunSuite(ctx, []string{"../../testdata/scenarios/people_split.yaml"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.TotalScenarios)
}
