package graph

import (
	"slices"

	"github.com/roach88/fieldflow/internal/ir"
)

type slot struct {
	node ir.Node
	in   []ir.Edge // sorted by From
	out  []ir.Edge // sorted by To
}

// Graph is a node-id-indexed arena of nodes and labeled edges.
//
// The zero value is not usable; call New. Graph is not safe for concurrent
// mutation. Published graphs are treated as immutable and edited via Clone.
type Graph struct {
	slots []*slot // index == NodeID; slot 0 is never used
	count int
	edges int
	next  ir.NodeID
}

// New returns an empty graph whose first allocated node id is 1.
func New() *Graph {
	return &Graph{slots: make([]*slot, 1), next: 1}
}

func (g *Graph) slot(id ir.NodeID) *slot {
	if id <= 0 || int(id) >= len(g.slots) {
		return nil
	}
	return g.slots[id]
}

// Has reports whether a node is stored under id.
func (g *Graph) Has(id ir.NodeID) bool {
	return g.slot(id) != nil
}

// AddNode stores n. If n.ID is zero the next free id is assigned.
// Returns the id the node was stored under.
func (g *Graph) AddNode(n ir.Node) (ir.NodeID, error) {
	if n.ID < 0 {
		return 0, ir.Structuralf(ir.ErrInvalidNode, 2, "negative node id %d", n.ID)
	}
	if n.ID == 0 {
		n.ID = g.next
	}
	if g.Has(n.ID) {
		return 0, ir.Structuralf(ir.ErrDuplicateNode, 2, "node %d already exists", n.ID).WithNode(n.ID)
	}
	for int(n.ID) >= len(g.slots) {
		g.slots = append(g.slots, nil)
	}
	g.slots[n.ID] = &slot{node: n.Clone()}
	g.count++
	if n.ID >= g.next {
		g.next = n.ID + 1
	}
	return n.ID, nil
}

// SetNode replaces the record stored under id. The record's own ID is not
// forced to match id; the validator reports a mismatch.
func (g *Graph) SetNode(id ir.NodeID, n ir.Node) error {
	s := g.slot(id)
	if s == nil {
		return ir.Structuralf(ir.ErrUnknownNode, 0, "unknown node %d", id).WithNode(id)
	}
	s.node = n.Clone()
	return nil
}

// RemoveNode deletes a node and every edge incident to it.
func (g *Graph) RemoveNode(id ir.NodeID) error {
	s := g.slot(id)
	if s == nil {
		return ir.Structuralf(ir.ErrUnknownNode, 0, "unknown node %d", id).WithNode(id)
	}
	for _, e := range slices.Clone(s.in) {
		_ = g.RemoveEdge(e.From, e.To)
	}
	for _, e := range slices.Clone(s.out) {
		_ = g.RemoveEdge(e.From, e.To)
	}
	g.slots[id] = nil
	g.count--
	return nil
}

// Node returns a copy of the node stored under id.
func (g *Graph) Node(id ir.NodeID) (ir.Node, bool) {
	s := g.slot(id)
	if s == nil {
		return ir.Node{}, false
	}
	return s.node.Clone(), true
}

// AddEdge connects from -> to. At most one edge may join a pair of nodes.
func (g *Graph) AddEdge(from, to ir.NodeID, label ir.EdgeLabel) error {
	if !label.Valid() {
		return ir.Structuralf(ir.ErrInvalidEdge, 0, "edge %d -> %d: invalid label %q", from, to, label)
	}
	src, dst := g.slot(from), g.slot(to)
	if src == nil {
		return ir.Structuralf(ir.ErrUnknownNode, 0, "edge %d -> %d: unknown node %d", from, to, from).WithNode(from)
	}
	if dst == nil {
		return ir.Structuralf(ir.ErrUnknownNode, 0, "edge %d -> %d: unknown node %d", from, to, to).WithNode(to)
	}

	e := ir.Edge{From: from, To: to, Label: label}
	i, found := slices.BinarySearchFunc(src.out, to, func(x ir.Edge, t ir.NodeID) int { return compareID(x.To, t) })
	if found {
		return ir.Structuralf(ir.ErrInvalidEdge, 0, "edge %d -> %d already exists", from, to).WithNode(from)
	}
	src.out = slices.Insert(src.out, i, e)

	j, _ := slices.BinarySearchFunc(dst.in, from, func(x ir.Edge, f ir.NodeID) int { return compareID(x.From, f) })
	dst.in = slices.Insert(dst.in, j, e)
	g.edges++
	return nil
}

// RemoveEdge disconnects from -> to.
func (g *Graph) RemoveEdge(from, to ir.NodeID) error {
	src, dst := g.slot(from), g.slot(to)
	if src == nil || dst == nil {
		return ir.Structuralf(ir.ErrUnknownNode, 0, "edge %d -> %d: unknown node", from, to)
	}
	i, found := slices.BinarySearchFunc(src.out, to, func(x ir.Edge, t ir.NodeID) int { return compareID(x.To, t) })
	if !found {
		return ir.Structuralf(ir.ErrInvalidEdge, 0, "edge %d -> %d does not exist", from, to)
	}
	src.out = slices.Delete(src.out, i, i+1)

	j, _ := slices.BinarySearchFunc(dst.in, from, func(x ir.Edge, f ir.NodeID) int { return compareID(x.From, f) })
	dst.in = slices.Delete(dst.in, j, j+1)
	g.edges--
	return nil
}

// Edge returns the edge from -> to, if any.
func (g *Graph) Edge(from, to ir.NodeID) (ir.Edge, bool) {
	src := g.slot(from)
	if src == nil {
		return ir.Edge{}, false
	}
	i, found := slices.BinarySearchFunc(src.out, to, func(x ir.Edge, t ir.NodeID) int { return compareID(x.To, t) })
	if !found {
		return ir.Edge{}, false
	}
	return src.out[i], true
}

// In returns the inbound edges of id, ordered by source id.
func (g *Graph) In(id ir.NodeID) []ir.Edge {
	s := g.slot(id)
	if s == nil {
		return nil
	}
	return slices.Clone(s.in)
}

// Out returns the outbound edges of id, ordered by target id.
func (g *Graph) Out(id ir.NodeID) []ir.Edge {
	s := g.slot(id)
	if s == nil {
		return nil
	}
	return slices.Clone(s.out)
}

// OutLabeled returns the targets of id's outbound edges carrying label.
func (g *Graph) OutLabeled(id ir.NodeID, label ir.EdgeLabel) []ir.NodeID {
	s := g.slot(id)
	if s == nil {
		return nil
	}
	var out []ir.NodeID
	for _, e := range s.out {
		if e.Label == label {
			out = append(out, e.To)
		}
	}
	return out
}

// InLabeled returns the sources of id's inbound edges carrying label.
func (g *Graph) InLabeled(id ir.NodeID, label ir.EdgeLabel) []ir.NodeID {
	s := g.slot(id)
	if s == nil {
		return nil
	}
	var in []ir.NodeID
	for _, e := range s.in {
		if e.Label == label {
			in = append(in, e.From)
		}
	}
	return in
}

// Predecessors returns the ids with an edge into id, ascending.
func (g *Graph) Predecessors(id ir.NodeID) []ir.NodeID {
	s := g.slot(id)
	if s == nil {
		return nil
	}
	out := make([]ir.NodeID, len(s.in))
	for i, e := range s.in {
		out[i] = e.From
	}
	return out
}

// Successors returns the ids id has an edge to, ascending.
func (g *Graph) Successors(id ir.NodeID) []ir.NodeID {
	s := g.slot(id)
	if s == nil {
		return nil
	}
	out := make([]ir.NodeID, len(s.out))
	for i, e := range s.out {
		out[i] = e.To
	}
	return out
}

// Sources returns the nodes with no inbound same-labeled edge, ascending.
// Synthetic edges order execution but do not make a node part of another
// field's lineage, so a node reached only by them is still a source.
func (g *Graph) Sources() []ir.NodeID {
	var out []ir.NodeID
	for id, s := range g.slots {
		if s == nil {
			continue
		}
		if !slices.ContainsFunc(s.in, func(e ir.Edge) bool { return e.Label == ir.LabelSame }) {
			out = append(out, ir.NodeID(id))
		}
	}
	return out
}

// Sinks returns the nodes with no outbound edges, ascending.
func (g *Graph) Sinks() []ir.NodeID {
	var out []ir.NodeID
	for id, s := range g.slots {
		if s != nil && len(s.out) == 0 {
			out = append(out, ir.NodeID(id))
		}
	}
	return out
}

// IDs returns every stored node id, ascending.
func (g *Graph) IDs() []ir.NodeID {
	out := make([]ir.NodeID, 0, g.count)
	for id, s := range g.slots {
		if s != nil {
			out = append(out, ir.NodeID(id))
		}
	}
	return out
}

// Nodes returns copies of every node, ordered by slot id.
func (g *Graph) Nodes() []ir.Node {
	out := make([]ir.Node, 0, g.count)
	for _, s := range g.slots {
		if s != nil {
			out = append(out, s.node.Clone())
		}
	}
	return out
}

// Edges returns every edge ordered by (from, to).
func (g *Graph) Edges() []ir.Edge {
	out := make([]ir.Edge, 0, g.edges)
	for _, s := range g.slots {
		if s != nil {
			out = append(out, s.out...)
		}
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return g.count
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return g.edges
}

// NextID returns the id the next AddNode with a zero id will use.
func (g *Graph) NextID() ir.NodeID {
	return g.next
}

// SetNextID raises the next allocated id. It never lowers it, so ids are not
// reused after a node is removed.
func (g *Graph) SetNextID(next ir.NodeID) {
	if next > g.next {
		g.next = next
	}
}

// Clone returns an independent deep copy of the graph.
func (g *Graph) Clone() *Graph {
	cp := &Graph{
		slots: make([]*slot, len(g.slots)),
		count: g.count,
		edges: g.edges,
		next:  g.next,
	}
	for i, s := range g.slots {
		if s == nil {
			continue
		}
		cp.slots[i] = &slot{
			node: s.node.Clone(),
			in:   slices.Clone(s.in),
			out:  slices.Clone(s.out),
		}
	}
	return cp
}

func compareID(a, b ir.NodeID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
