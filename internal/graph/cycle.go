package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/fieldflow/internal/ir"
)

// Cycles returns every cycle in the graph as a closed path
// (e.g. [1, 2, 1]), one per strongly connected component. Both edge labels
// count. Each path starts at the component's smallest id. An acyclic graph
// returns nil.
//
// The algorithm:
//  1. Find strongly connected components with Tarjan's algorithm
//  2. Keep components with more than one node, or a self-loop
//  3. Reconstruct one closed path through each kept component
func (g *Graph) Cycles() [][]ir.NodeID {
	var cycles [][]ir.NodeID
	for _, scc := range g.tarjanSCC() {
		if len(scc) > 1 || g.hasSelfLoop(scc[0]) {
			cycles = append(cycles, g.reconstructCyclePath(scc))
		}
	}
	slices.SortFunc(cycles, func(a, b []ir.NodeID) int { return compareID(a[0], b[0]) })
	return cycles
}

// FindCycle returns the cycle with the smallest starting id, or nil.
func (g *Graph) FindCycle() []ir.NodeID {
	cycles := g.Cycles()
	if len(cycles) == 0 {
		return nil
	}
	return cycles[0]
}

// FormatCycle renders a cycle path as "1 -> 2 -> 1".
func FormatCycle(path []ir.NodeID) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, " -> ")
}

func (g *Graph) hasSelfLoop(id ir.NodeID) bool {
	_, ok := g.Edge(id, id)
	return ok
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes and successors are visited in ascending id order.
func (g *Graph) tarjanSCC() [][]ir.NodeID {
	var (
		index   = 0
		stack   []ir.NodeID
		indices = make(map[ir.NodeID]int, g.count)
		lowlink = make(map[ir.NodeID]int, g.count)
		onStack = make(map[ir.NodeID]bool, g.count)
		sccs    [][]ir.NodeID
	)

	var strongConnect func(ir.NodeID)
	strongConnect = func(v ir.NodeID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Successors(v) {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ir.NodeID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, id := range g.IDs() {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}
	return sccs
}

// reconstructCyclePath walks from the smallest member of scc back to itself,
// staying inside the component. scc must be sorted.
func (g *Graph) reconstructCyclePath(scc []ir.NodeID) []ir.NodeID {
	start := scc[0]
	if len(scc) == 1 {
		return []ir.NodeID{start, start}
	}

	member := make(map[ir.NodeID]bool, len(scc))
	for _, id := range scc {
		member[id] = true
	}

	// BFS inside the component for the shortest way back to start.
	prev := map[ir.NodeID]ir.NodeID{}
	queue := []ir.NodeID{start}
	seen := map[ir.NodeID]bool{start: true}
	var last ir.NodeID
	for len(queue) > 0 && last == 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.Successors(cur) {
			if !member[next] {
				continue
			}
			if next == start {
				last = cur
				break
			}
			if !seen[next] {
				seen[next] = true
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}

	path := []ir.NodeID{start}
	for cur := last; cur != start; cur = prev[cur] {
		path = append(path, cur)
	}
	slices.Reverse(path[1:])
	return append(path, start)
}
