// Package validate checks the structural invariants of a lineage graph
// against the field registry.
//
// Validation is a post-edit gate: it stops at the first violation and
// reports it as an *ir.StructuralError naming the invariant, field and node.
package validate

import (
	"errors"

	"github.com/roach88/fieldflow/internal/catalog"
	"github.com/roach88/fieldflow/internal/graph"
	"github.com/roach88/fieldflow/internal/ir"
)

// Fields is the registry view the validator needs.
type Fields interface {
	IDs() []ir.FieldID
	Has(id ir.FieldID) bool
	IsLive(id ir.FieldID) bool
	Path(id ir.FieldID) (ir.Path, error)
}

// identities accumulates the identity nodes of one field.
type identities struct {
	starts   []ir.NodeID
	removals []ir.NodeID
}

// Validate runs invariants 1-8 in order and returns the first violation, or
// nil. It never mutates its arguments.
//
//  1. acyclic
//  2. node records match their keys and are well-formed
//  3. one organic/synthetic node per live field
//  4. start nodes are the only sources
//  5. removal nodes are sinks and only for removed fields
//  6. one same-labeled walk from each start to a terminal
//  7. terminal path equals the registry path
//  8. execution order can be computed
func Validate(fields Fields, g *graph.Graph) error {
	if cycle := g.FindCycle(); cycle != nil {
		return ir.Structuralf(ir.ErrCycle, 1, "cycle detected: %s", graph.FormatCycle(cycle)).WithNode(cycle[0])
	}

	if err := checkNodes(fields, g); err != nil {
		return err
	}

	acc, err := collectIdentities(fields, g)
	if err != nil {
		return err
	}
	if err := checkSources(g); err != nil {
		return err
	}
	if err := checkRemovals(fields, g, acc); err != nil {
		return err
	}
	if err := checkLineages(fields, g, acc); err != nil {
		return err
	}

	if _, err := graph.ExecutionOrder(g); err != nil {
		return err
	}
	return nil
}

// checkNodes covers invariant 2.
func checkNodes(fields Fields, g *graph.Graph) error {
	for _, id := range g.IDs() {
		n, _ := g.Node(id)
		if n.ID != id {
			return ir.Structuralf(ir.ErrNodeIdentity, 2, "node stored under %d has id %d", id, n.ID).WithNode(id)
		}
		if err := catalog.Check(n); err != nil {
			return err
		}
		if !fields.Has(n.Field) {
			return ir.Structuralf(ir.ErrUnknownField, 2, "%s references unknown field %d", n, n.Field).
				WithNode(id).WithField(n.Field)
		}
		for _, ref := range append(append([]ir.FieldID(nil), n.Inputs...), n.Outputs...) {
			if !fields.Has(ref) {
				return ir.Structuralf(ir.ErrUnknownField, 2, "%s references unknown field %d", n, ref).
					WithNode(id).WithField(ref)
			}
		}
	}
	return nil
}

// collectIdentities covers invariant 3 in one pass over the nodes.
func collectIdentities(fields Fields, g *graph.Graph) (map[ir.FieldID]*identities, error) {
	acc := make(map[ir.FieldID]*identities)
	for _, n := range g.Nodes() {
		if !n.Kind.IsStart() && n.Kind != ir.KindRemoval {
			continue
		}
		ids := acc[n.Field]
		if ids == nil {
			ids = &identities{}
			acc[n.Field] = ids
		}
		if n.Kind.IsStart() {
			ids.starts = append(ids.starts, n.ID)
		} else {
			ids.removals = append(ids.removals, n.ID)
		}
	}

	for _, f := range fields.IDs() {
		ids := acc[f]
		starts := 0
		if ids != nil {
			starts = len(ids.starts)
		}
		switch {
		case starts > 1:
			return nil, ir.Structuralf(ir.ErrDuplicateStart, 3,
				"field has %d organic/synthetic identity nodes %v, want one", starts, ids.starts).
				WithField(f).WithNode(ids.starts[1])
		case starts == 0 && fields.IsLive(f):
			return nil, ir.Structuralf(ir.ErrMissingStart, 3, "live field has no organic/synthetic identity node").WithField(f)
		}
	}
	return acc, nil
}

// checkSources covers invariant 4. A synthetic identity node may be entered
// by synthetic edges from the node that introduces its field; nothing may
// enter an organic node.
func checkSources(g *graph.Graph) error {
	for _, n := range g.Nodes() {
		switch n.Kind {
		case ir.KindOrganic:
			if in := g.Predecessors(n.ID); len(in) > 0 {
				return ir.Structuralf(ir.ErrStartHasInbound, 4, "%s has inbound edges from %v", n, in).
					WithNode(n.ID).WithField(n.Field)
			}
		case ir.KindSynthetic:
			if in := g.InLabeled(n.ID, ir.LabelSame); len(in) > 0 {
				return ir.Structuralf(ir.ErrStartHasInbound, 4, "%s has inbound same edges from %v", n, in).
					WithNode(n.ID).WithField(n.Field)
			}
		}
	}
	for _, id := range g.Sources() {
		n, _ := g.Node(id)
		if !n.Kind.IsStart() {
			return ir.Structuralf(ir.ErrOrphanSource, 4, "%s has no inbound same edge but is not an organic/synthetic node", n).
				WithNode(id).WithField(n.Field)
		}
	}
	return nil
}

// checkRemovals covers invariant 5.
func checkRemovals(fields Fields, g *graph.Graph, acc map[ir.FieldID]*identities) error {
	for _, f := range fields.IDs() {
		ids := acc[f]
		if ids == nil {
			continue
		}
		for _, id := range ids.removals {
			if out := g.Successors(id); len(out) > 0 {
				return ir.Structuralf(ir.ErrRemovalHasOutbound, 5, "removal node has outbound edges to %v", out).
					WithNode(id).WithField(f)
			}
			if fields.IsLive(f) {
				return ir.Structuralf(ir.ErrRemovalOfLive, 5, "removal node for a field that still has an output path").
					WithNode(id).WithField(f)
			}
		}
	}
	return nil
}

// checkLineages covers invariants 6 and 7.
func checkLineages(fields Fields, g *graph.Graph, acc map[ir.FieldID]*identities) error {
	for _, f := range fields.IDs() {
		ids := acc[f]
		if ids == nil || len(ids.starts) == 0 {
			continue
		}

		walk, err := g.Walk(ids.starts[0])
		if err != nil {
			var se *ir.StructuralError
			if errors.As(err, &se) {
				return se.WithField(f)
			}
			return err
		}
		for _, id := range walk[1:] {
			n, _ := g.Node(id)
			if n.Field != f {
				return ir.Structuralf(ir.ErrForeignLineage, 6, "lineage reaches %s of field %d", n, n.Field).
					WithField(f).WithNode(id)
			}
		}

		term, _ := g.Node(walk[len(walk)-1])
		path, _ := fields.Path(f)
		switch {
		case term.Kind == ir.KindRemoval:
		case path == nil:
			return ir.Structuralf(ir.ErrRemovedNotTerminal, 7,
				"field has no output path but its lineage ends at %s, not a removal node", term).
				WithField(f).WithNode(term.ID)
		case !term.Path.Equal(path):
			return ir.Structuralf(ir.ErrPathMismatch, 7, "lineage ends at path %q, registry has %q", term.Path, path).
				WithField(f).WithNode(term.ID)
		}
	}
	return nil
}
