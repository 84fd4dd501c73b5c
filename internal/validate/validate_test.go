package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldflow/internal/graph"
	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/registry"
)

// fixture is a single field "name" with organic(1) -> case(2).
func fixture(t *testing.T) (*registry.Registry, *graph.Graph) {
	t.Helper()
	reg := registry.New()
	f, err := reg.Allocate(ir.P("name"), ir.TypeString)
	require.NoError(t, err)

	g := graph.New()
	mustAdd(t, g, ir.Node{Kind: ir.KindOrganic, Field: f, Path: ir.P("name")})
	mustAdd(t, g, ir.Node{Kind: ir.KindCase, Field: f, Path: ir.P("name"), Options: ir.Options{Case: ir.CaseTitle}})
	require.NoError(t, g.AddEdge(1, 2, ir.LabelSame))
	return reg, g
}

func mustAdd(t *testing.T, g *graph.Graph, n ir.Node) ir.NodeID {
	t.Helper()
	id, err := g.AddNode(n)
	require.NoError(t, err)
	return id
}

func requireStructural(t *testing.T, err error, code string, invariant int) *ir.StructuralError {
	t.Helper()
	require.Error(t, err)
	se, ok := err.(*ir.StructuralError)
	require.True(t, ok, "want *ir.StructuralError, got %T: %v", err, err)
	assert.Equal(t, code, se.Code, se.Error())
	assert.Equal(t, invariant, se.Invariant, se.Error())
	return se
}

func TestValidGraph(t *testing.T) {
	reg, g := fixture(t)
	assert.NoError(t, Validate(reg, g))
}

func TestValidateIsIdempotent(t *testing.T) {
	reg, g := fixture(t)
	first := Validate(reg, g)
	assert.Equal(t, first, Validate(reg, g))

	mustAdd(t, g, ir.Node{Kind: ir.KindOrganic, Field: 1, Path: ir.P("name")})
	first = Validate(reg, g)
	require.Error(t, first)
	assert.Equal(t, first.Error(), Validate(reg, g).Error())
}

func TestSecondOrganicNodeNamesField(t *testing.T) {
	reg, g := fixture(t)
	mustAdd(t, g, ir.Node{Kind: ir.KindOrganic, Field: 1, Path: ir.P("name")})

	se := requireStructural(t, Validate(reg, g), ir.ErrDuplicateStart, 3)
	assert.Equal(t, ir.FieldID(1), se.Field)
	assert.Contains(t, se.Error(), "field 1")
}

func TestRemovedPathWithoutRemovalNode(t *testing.T) {
	reg, g := fixture(t)
	require.NoError(t, reg.SetPath(1, nil))

	se := requireStructural(t, Validate(reg, g), ir.ErrRemovedNotTerminal, 7)
	assert.Equal(t, ir.FieldID(1), se.Field)
}

func TestRemovedFieldWithRemovalNode(t *testing.T) {
	reg, g := fixture(t)
	require.NoError(t, reg.SetPath(1, nil))
	rm := mustAdd(t, g, ir.Node{Kind: ir.KindRemoval, Field: 1})
	require.NoError(t, g.AddEdge(2, rm, ir.LabelSame))

	assert.NoError(t, Validate(reg, g))
}

func TestMissingStart(t *testing.T) {
	reg, g := fixture(t)
	_, err := reg.Allocate(ir.P("age"), ir.TypeInteger)
	require.NoError(t, err)

	se := requireStructural(t, Validate(reg, g), ir.ErrMissingStart, 3)
	assert.Equal(t, ir.FieldID(2), se.Field)
}

func TestCycle(t *testing.T) {
	reg, g := fixture(t)
	mustAdd(t, g, ir.Node{Kind: ir.KindCase, Field: 1, Path: ir.P("name"), Options: ir.Options{Case: ir.CaseUpper}})
	require.NoError(t, g.AddEdge(2, 3, ir.LabelSame))
	require.NoError(t, g.AddEdge(3, 2, ir.LabelSynthetic))

	se := requireStructural(t, Validate(reg, g), ir.ErrCycle, 1)
	assert.Contains(t, se.Message, "2 -> 3 -> 2")
}

func TestNodeIdentityMismatch(t *testing.T) {
	reg, g := fixture(t)
	n, _ := g.Node(2)
	n.ID = 7
	require.NoError(t, g.SetNode(2, n))

	requireStructural(t, Validate(reg, g), ir.ErrNodeIdentity, 2)
}

func TestInvalidOptions(t *testing.T) {
	reg, g := fixture(t)
	n, _ := g.Node(2)
	n.Options.Case = "sideways"
	require.NoError(t, g.SetNode(2, n))

	requireStructural(t, Validate(reg, g), ir.ErrInvalidNode, 2)
}

func TestUnknownField(t *testing.T) {
	reg, g := fixture(t)
	n, _ := g.Node(2)
	n.Field = 42
	require.NoError(t, g.SetNode(2, n))

	se := requireStructural(t, Validate(reg, g), ir.ErrUnknownField, 2)
	assert.Equal(t, ir.FieldID(42), se.Field)
}

func TestStartWithInboundEdge(t *testing.T) {
	reg, g := fixture(t)
	f2, _ := reg.Allocate(ir.P("age"), ir.TypeInteger)
	o := mustAdd(t, g, ir.Node{Kind: ir.KindOrganic, Field: f2, Path: ir.P("age")})
	require.NoError(t, g.AddEdge(2, o, ir.LabelSynthetic))

	requireStructural(t, Validate(reg, g), ir.ErrStartHasInbound, 4)
}

func TestOrphanSource(t *testing.T) {
	reg, g := fixture(t)
	mustAdd(t, g, ir.Node{Kind: ir.KindCase, Field: 1, Path: ir.P("name"), Options: ir.Options{Case: ir.CaseUpper}})

	se := requireStructural(t, Validate(reg, g), ir.ErrOrphanSource, 4)
	assert.Equal(t, ir.NodeID(3), se.Node)
}

func TestRemovalOfLiveField(t *testing.T) {
	reg, g := fixture(t)
	rm := mustAdd(t, g, ir.Node{Kind: ir.KindRemoval, Field: 1})
	require.NoError(t, g.AddEdge(2, rm, ir.LabelSame))

	requireStructural(t, Validate(reg, g), ir.ErrRemovalOfLive, 5)
}

func TestRemovalWithOutbound(t *testing.T) {
	reg, g := fixture(t)
	require.NoError(t, reg.SetPath(1, nil))
	rm := mustAdd(t, g, ir.Node{Kind: ir.KindRemoval, Field: 1})
	tail := mustAdd(t, g, ir.Node{Kind: ir.KindCase, Field: 1, Path: ir.P("name"), Options: ir.Options{Case: ir.CaseUpper}})
	require.NoError(t, g.AddEdge(2, rm, ir.LabelSame))
	require.NoError(t, g.AddEdge(rm, tail, ir.LabelSame))

	requireStructural(t, Validate(reg, g), ir.ErrRemovalHasOutbound, 5)
}

func TestBranchingLineage(t *testing.T) {
	reg, g := fixture(t)
	a := mustAdd(t, g, ir.Node{Kind: ir.KindCase, Field: 1, Path: ir.P("name"), Options: ir.Options{Case: ir.CaseUpper}})
	b := mustAdd(t, g, ir.Node{Kind: ir.KindCase, Field: 1, Path: ir.P("name"), Options: ir.Options{Case: ir.CaseLower}})
	require.NoError(t, g.AddEdge(2, a, ir.LabelSame))
	require.NoError(t, g.AddEdge(2, b, ir.LabelSame))

	se := requireStructural(t, Validate(reg, g), ir.ErrBranchingLineage, 6)
	assert.Equal(t, ir.FieldID(1), se.Field)
	assert.Equal(t, ir.NodeID(2), se.Node)
}

func TestForeignLineage(t *testing.T) {
	reg, g := fixture(t)
	f2, _ := reg.Allocate(ir.P("age"), ir.TypeInteger)
	o := mustAdd(t, g, ir.Node{Kind: ir.KindOrganic, Field: f2, Path: ir.P("age")})
	stray := mustAdd(t, g, ir.Node{Kind: ir.KindPlus, Field: 1, Path: ir.P("age")})
	require.NoError(t, g.AddEdge(o, stray, ir.LabelSame))

	se := requireStructural(t, Validate(reg, g), ir.ErrForeignLineage, 6)
	assert.Equal(t, f2, se.Field)
}

func TestPathMismatch(t *testing.T) {
	reg, g := fixture(t)
	require.NoError(t, reg.SetPath(1, ir.P("full_name")))

	se := requireStructural(t, Validate(reg, g), ir.ErrPathMismatch, 7)
	assert.Contains(t, se.Message, `"name"`)
}

func TestSplitShapeIsValid(t *testing.T) {
	reg := registry.New()
	full, _ := reg.Allocate(ir.P("full_name"), ir.TypeString)
	first, _ := reg.Allocate(ir.P("first_name"), ir.TypeString)
	last, _ := reg.Allocate(ir.P("last_name"), ir.TypeString)
	require.NoError(t, reg.SetPath(full, nil))

	g := graph.New()
	o := mustAdd(t, g, ir.Node{Kind: ir.KindOrganic, Field: full, Path: ir.P("full_name")})
	s := mustAdd(t, g, ir.Node{Kind: ir.KindSplit, Field: full, Path: ir.P("full_name"),
		Outputs: []ir.FieldID{first, last}, Options: ir.Options{Delimiter: " "}})
	rm := mustAdd(t, g, ir.Node{Kind: ir.KindRemoval, Field: full})
	s1 := mustAdd(t, g, ir.Node{Kind: ir.KindSynthetic, Field: first, Path: ir.P("first_name")})
	s2 := mustAdd(t, g, ir.Node{Kind: ir.KindSynthetic, Field: last, Path: ir.P("last_name")})
	require.NoError(t, g.AddEdge(o, s, ir.LabelSame))
	require.NoError(t, g.AddEdge(s, rm, ir.LabelSame))
	require.NoError(t, g.AddEdge(s, s1, ir.LabelSynthetic))
	require.NoError(t, g.AddEdge(s, s2, ir.LabelSynthetic))

	assert.NoError(t, Validate(reg, g))

	// The same shape with a same-labeled edge into a new field's start is rejected.
	require.NoError(t, g.RemoveEdge(s, s2))
	require.NoError(t, g.AddEdge(s, s2, ir.LabelSame))
	requireStructural(t, Validate(reg, g), ir.ErrStartHasInbound, 4)
}
