package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contactsScenario() *Scenario {
	return &Scenario{
		Name:        "contacts_golden",
		Description: "Case transforms on two independent fields",
		Pipeline:    "../../testdata/pipelines/people.cue",
		Select:      "contacts",
		Inputs: []map[string]any{
			{"name": "jane doe", "email": "Jane@Example.COM"},
			{"name": 42, "email": "X@Y.Z"},
		},
		Assertions: []Assertion{
			{Type: AssertErrorCount, Count: 1},
		},
	}
}

func TestRunWithGolden_Contacts(t *testing.T) {
	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_Contacts -update
	result, err := RunWithGolden(t, contactsScenario())
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshotIsDeterministic(t *testing.T) {
	var outputs [][]byte
	for range 3 {
		s := contactsScenario()
		s.Workers = 2
		result, err := Run(s)
		require.NoError(t, err)

		data, err := NewSnapshot(s.Name, result).Canonical()
		require.NoError(t, err)
		outputs = append(outputs, data)
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
}

func TestSnapshotExcludesRunIdentity(t *testing.T) {
	a := contactsScenario()
	a.RunID = "run-a"
	b := contactsScenario()
	b.RunID = "run-b"

	ra, err := Run(a)
	require.NoError(t, err)
	rb, err := Run(b)
	require.NoError(t, err)

	da, err := NewSnapshot("x", ra).Canonical()
	require.NoError(t, err)
	db, err := NewSnapshot("x", rb).Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(da), string(db))
	assert.Equal(t, ra.Hash, rb.Hash)
	assert.NotEmpty(t, ra.Hash)
}
