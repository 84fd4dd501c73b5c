package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldflow/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDefinition(name string, caseMode ir.CaseMode) ir.Definition {
	end := 4
	return ir.Definition{
		Name:      name,
		NextField: 3,
		NextNode:  5,
		Fields: []ir.Field{
			{ID: 1, Path: ir.P("name"), Type: ir.TypeString, Enabled: true},
			{ID: 2, Path: nil, Type: ir.TypeString, Enabled: false},
		},
		Nodes: []ir.Node{
			{ID: 1, Kind: ir.KindOrganic, Field: 1, Path: ir.P("name")},
			{ID: 2, Kind: ir.KindCase, Field: 1, Path: ir.P("name"), Options: ir.Options{Case: caseMode}},
			{ID: 3, Kind: ir.KindOrganic, Field: 2, Path: ir.P("tags", "[]")},
			{ID: 4, Kind: ir.KindSubstring, Field: 2, Path: ir.P("tags", "[]"), Options: ir.Options{End: &end}},
		},
		Edges: []ir.Edge{
			{From: 1, To: 2, Label: ir.LabelSame},
			{From: 3, To: 4, Label: ir.LabelSame},
		},
	}
}

func TestOpenAppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	_, _, err = s1.PushVersion(context.Background(), testDefinition("p", ir.CaseUpper))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	gv, err := s2.LatestVersion(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gv.Version)
}

func TestPushVersionNumbersAndDedups(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	v1, inserted, err := s.PushVersion(ctx, testDefinition("people", ir.CaseUpper))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(1), v1.Version)
	assert.Equal(t, ir.MustDefinitionHash(testDefinition("people", ir.CaseUpper)), v1.Hash)
	assert.Equal(t, ir.EngineVersion, v1.EngineVersion)

	again, inserted, err := s.PushVersion(ctx, testDefinition("people", ir.CaseUpper))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, v1, again)

	v2, inserted, err := s.PushVersion(ctx, testDefinition("people", ir.CaseLower))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(2), v2.Version)

	// Going back to an older graph is a new version, not a dedup.
	v3, inserted, err := s.PushVersion(ctx, testDefinition("people", ir.CaseUpper))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(3), v3.Version)
	assert.Equal(t, v1.Hash, v3.Hash)

	versions, err := s.ListVersions(ctx, "people")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, gv := range versions {
		assert.Equal(t, int64(i+1), gv.Version)
	}
}

func TestPushVersionRoundTripsDefinition(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	def := testDefinition("people", ir.CaseTitle)

	_, _, err := s.PushVersion(ctx, def)
	require.NoError(t, err)

	gv, err := s.GetVersion(ctx, "people", 1)
	require.NoError(t, err)
	assert.Equal(t, def, gv.Definition)
	assert.Equal(t, ir.MustDefinitionHash(def), ir.MustDefinitionHash(gv.Definition))
}

func TestPushVersionRequiresName(t *testing.T) {
	s := createTestStore(t)
	_, _, err := s.PushVersion(context.Background(), testDefinition("", ir.CaseUpper))
	assert.Error(t, err)
}

func TestMissingRecordsAreNotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.LatestVersion(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetVersion(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	versions, err := s.ListVersions(ctx, "nope")
	require.NoError(t, err)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)
}

func TestListPipelines(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "zeta"} {
		_, _, err := s.PushVersion(ctx, testDefinition(name, ir.CaseUpper))
		require.NoError(t, err)
	}

	names, err := s.ListPipelines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestWriteAndReadRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	run := ir.RunRecord{
		ID:          "0190a5b2-0000-7000-8000-000000000001",
		Pipeline:    "people",
		GraphHash:   "abc",
		Documents:   3,
		Completed:   3,
		FieldErrors: 3,
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
	}
	errs := []ir.RunError{
		{Document: 2, FieldError: ir.FieldError{Path: []string{"tags", "1"}, Message: "non-string field", Node: 4}},
		{Document: 0, FieldError: ir.FieldError{Path: []string{"name"}, Message: "non-string field", Node: 2}},
		{Document: 2, FieldError: ir.FieldError{Path: []string{"name"}, Message: "non-string field", Node: 2}},
	}
	require.NoError(t, s.WriteRun(ctx, run, errs))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	stored, err := s.RunErrors(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, []ir.RunError{errs[1], errs[0], errs[2]}, stored)

	runs, err := s.ListRuns(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []ir.RunRecord{run}, runs)

	// Run ids are unique; a rewrite fails and leaves no partial errors.
	assert.Error(t, s.WriteRun(ctx, run, errs))
	stored, err = s.RunErrors(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestListRunsOrdersByStart(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		start := base.Add(time.Duration(2-i) * time.Minute)
		require.NoError(t, s.WriteRun(ctx, ir.RunRecord{ID: id, Pipeline: "p", StartedAt: start, FinishedAt: start}, nil))
	}

	runs, err := s.ListRuns(ctx, "p")
	require.NoError(t, err)
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}
