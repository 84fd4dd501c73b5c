package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldflow/internal/ir"
)

func TestExecutionOrderTieBreakByID(t *testing.T) {
	g := New()
	// Two independent lineages: 1 -> 4 and 2 -> 3.
	for range 4 {
		_, err := g.AddNode(ir.Node{Kind: ir.KindCase})
		require.NoError(t, err)
	}
	require.NoError(t, g.AddEdge(1, 4, ir.LabelSame))
	require.NoError(t, g.AddEdge(2, 3, ir.LabelSame))

	order, err := ExecutionOrder(g)
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{1, 2, 3, 4}, order)
}

func TestExecutionOrderRespectsSyntheticEdges(t *testing.T) {
	g := New()
	for range 4 {
		_, err := g.AddNode(ir.Node{Kind: ir.KindCase})
		require.NoError(t, err)
	}
	// 3 is split-like: it must run before its synthetic successor 1.
	require.NoError(t, g.AddEdge(4, 3, ir.LabelSame))
	require.NoError(t, g.AddEdge(3, 1, ir.LabelSynthetic))
	require.NoError(t, g.AddEdge(3, 2, ir.LabelSynthetic))

	order, err := ExecutionOrder(g)
	require.NoError(t, err)
	assert.Equal(t, []ir.NodeID{4, 3, 1, 2}, order)
}

func TestExecutionOrderIsDeterministic(t *testing.T) {
	g := chain(t)
	first, err := ExecutionOrder(g)
	require.NoError(t, err)
	for range 10 {
		again, err := ExecutionOrder(g.Clone())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExecutionOrderCycle(t *testing.T) {
	// A -> B -> A
	g := New()
	a, _ := g.AddNode(ir.Node{Kind: ir.KindCase})
	b, _ := g.AddNode(ir.Node{Kind: ir.KindCase})
	require.NoError(t, g.AddEdge(a, b, ir.LabelSame))
	require.NoError(t, g.AddEdge(b, a, ir.LabelSame))

	order, err := ExecutionOrder(g)
	require.Error(t, err)
	assert.Nil(t, order, "no partial order on failure")
	assert.True(t, ir.IsStructural(err))
	assert.Equal(t, ir.ErrExecutionOrder, ir.StructuralCode(err))
	assert.Contains(t, err.Error(), "cycle detected: 1 -> 2 -> 1")
}

func TestExecutionOrderMultipleSameOutbound(t *testing.T) {
	g := chain(t)
	_, _ = g.AddNode(ir.Node{Kind: ir.KindCase, Field: 1})
	require.NoError(t, g.AddEdge(1, 4, ir.LabelSame))

	_, err := ExecutionOrder(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 1 has 2 outbound same edges")
}

func TestExecutionOrderEmpty(t *testing.T) {
	order, err := ExecutionOrder(New())
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestCycles(t *testing.T) {
	g := New()
	for range 5 {
		_, _ = g.AddNode(ir.Node{Kind: ir.KindCase})
	}
	require.NoError(t, g.AddEdge(2, 3, ir.LabelSame))
	require.NoError(t, g.AddEdge(3, 4, ir.LabelSame))
	require.NoError(t, g.AddEdge(4, 2, ir.LabelSynthetic))
	require.NoError(t, g.AddEdge(5, 5, ir.LabelSame))

	assert.Equal(t, [][]ir.NodeID{{2, 3, 4, 2}, {5, 5}}, g.Cycles())
	assert.Equal(t, "2 -> 3 -> 4 -> 2", FormatCycle(g.FindCycle()))
	assert.Nil(t, chain(t).FindCycle())
}
