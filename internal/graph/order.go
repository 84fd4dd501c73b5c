package graph

import (
	"slices"

	"github.com/roach88/fieldflow/internal/ir"
)

// ExecutionOrder returns every node id such that each node comes after all of
// its predecessors. Both edge labels are dependencies: a synthetic successor
// still runs after its producer. Ties are broken by ascending node id.
//
// It fails with a structural error, and no partial order, when the graph has
// a cycle or when a node with more than one outbound same edge is reached.
func ExecutionOrder(g *Graph) ([]ir.NodeID, error) {
	indeg := make(map[ir.NodeID]int, g.count)
	var ready []ir.NodeID
	for _, id := range g.IDs() {
		n := len(g.slot(id).in)
		indeg[id] = n
		if n == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]ir.NodeID, 0, g.count)
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]

		s := g.slot(id)
		same := 0
		for _, e := range s.out {
			if e.Label == ir.LabelSame {
				same++
			}
		}
		if same > 1 {
			return nil, ir.Structuralf(ir.ErrExecutionOrder, 8,
				"node %d has %d outbound same edges", id, same).WithNode(id).WithField(s.node.Field)
		}

		order = append(order, id)
		for _, e := range s.out {
			indeg[e.To]--
			if indeg[e.To] == 0 {
				// Insert while keeping ready sorted.
				k, _ := slices.BinarySearch(ready, e.To)
				ready = slices.Insert(ready, k, e.To)
			}
		}
	}

	if len(order) != g.count {
		cycle := g.FindCycle()
		err := ir.Structuralf(ir.ErrExecutionOrder, 8, "cycle detected: %s", FormatCycle(cycle))
		if len(cycle) > 0 {
			err = err.WithNode(cycle[0])
		}
		return nil, err
	}
	return order, nil
}
