package graph

import (
	"github.com/roach88/fieldflow/internal/ir"
)

// Walk follows same-labeled edges from start to the terminal of its lineage
// and returns the visited ids, start and terminal included. Synthetic edges
// are not followed.
//
// At most one outbound same edge may exist at every node on the way. The
// walk is capped at the node count, so it terminates even on a cyclic graph.
func (g *Graph) Walk(start ir.NodeID) ([]ir.NodeID, error) {
	if !g.Has(start) {
		return nil, ir.Structuralf(ir.ErrUnknownNode, 0, "unknown node %d", start).WithNode(start)
	}

	path := []ir.NodeID{start}
	cur := start
	for range g.count {
		next := g.OutLabeled(cur, ir.LabelSame)
		switch len(next) {
		case 0:
			return path, nil
		case 1:
			cur = next[0]
			path = append(path, cur)
		default:
			return nil, ir.Structuralf(ir.ErrBranchingLineage, 6,
				"node %d has %d outbound same edges", cur, len(next)).WithNode(cur)
		}
	}
	return nil, ir.Structuralf(ir.ErrUnterminatedWalk, 6,
		"lineage walk from node %d did not reach a terminal within %d steps", start, g.count).WithNode(start)
}

// Terminal returns the last node of start's lineage.
func (g *Graph) Terminal(start ir.NodeID) (ir.NodeID, error) {
	path, err := g.Walk(start)
	if err != nil {
		return 0, err
	}
	return path[len(path)-1], nil
}
