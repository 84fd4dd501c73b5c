package engine

import (
	"fmt"

	"github.com/roach88/fieldflow/internal/graph"
	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/registry"
)

// Tx is one in-flight edit over private copies of the registry and graph.
// Nothing a Tx does is visible until the edit commits.
//
// The raw methods (AddNode, AddEdge, ...) perform no invariant checks; the
// whole Tx is validated once fn returns.
type Tx struct {
	reg *registry.Registry
	g   *graph.Graph
}

// AllocateField registers a field without creating any node for it.
func (tx *Tx) AllocateField(path ir.Path, typ ir.FieldType) (ir.FieldID, error) {
	id, err := tx.reg.Allocate(path, typ)
	if err != nil {
		return 0, invalidEdit(0, "%v", err)
	}
	return id, nil
}

// SetPath changes a field's registry path without touching the graph.
func (tx *Tx) SetPath(f ir.FieldID, path ir.Path) error {
	return tx.reg.SetPath(f, path)
}

// FieldPath returns the field's registry path.
func (tx *Tx) FieldPath(f ir.FieldID) (ir.Path, error) {
	return tx.reg.Path(f)
}

// AddNode adds a node; a zero id is assigned.
func (tx *Tx) AddNode(n ir.Node) (ir.NodeID, error) {
	return tx.g.AddNode(n)
}

// SetNode replaces the node stored under id.
func (tx *Tx) SetNode(id ir.NodeID, n ir.Node) error {
	return tx.g.SetNode(id, n)
}

// RemoveNode removes a node and its edges.
func (tx *Tx) RemoveNode(id ir.NodeID) error {
	return tx.g.RemoveNode(id)
}

// AddEdge adds a labeled edge.
func (tx *Tx) AddEdge(from, to ir.NodeID, label ir.EdgeLabel) error {
	return tx.g.AddEdge(from, to, label)
}

// RemoveEdge removes the edge from -> to.
func (tx *Tx) RemoveEdge(from, to ir.NodeID) error {
	return tx.g.RemoveEdge(from, to)
}

// Node returns a node of the in-flight graph.
func (tx *Tx) Node(id ir.NodeID) (ir.Node, bool) {
	return tx.g.Node(id)
}

// live fails unless f is registered and still has an output path.
func (tx *Tx) live(f ir.FieldID) error {
	if !tx.reg.Has(f) {
		return &RuntimeError{Code: ErrCodeUnknownField, Field: f, Message: fmt.Sprintf("unknown field %d", f)}
	}
	if !tx.reg.IsLive(f) {
		return &RuntimeError{Code: ErrCodeRemovedField, Field: f, Message: "field has been removed"}
	}
	return nil
}

func startOf(g *graph.Graph, f ir.FieldID) (ir.NodeID, bool) {
	for _, n := range g.Nodes() {
		if n.Field == f && n.Kind.IsStart() {
			return n.ID, true
		}
	}
	return 0, false
}

// tail returns the terminal node of f's lineage.
func (tx *Tx) tail(f ir.FieldID) (ir.Node, error) {
	start, ok := startOf(tx.g, f)
	if !ok {
		return ir.Node{}, &RuntimeError{Code: ErrCodeUnknownField, Field: f, Message: "field has no lineage"}
	}
	id, err := tx.g.Terminal(start)
	if err != nil {
		return ir.Node{}, err
	}
	n, _ := tx.g.Node(id)
	return n, nil
}

// samePred returns the node before id on its lineage spine.
func (tx *Tx) samePred(id ir.NodeID) (ir.Node, bool) {
	preds := tx.g.InLabeled(id, ir.LabelSame)
	if len(preds) != 1 {
		return ir.Node{}, false
	}
	return tx.g.Node(preds[0])
}

// insertAtEnd adds n to the end of f's lineage and returns its id. A rename
// identity stays terminal: n goes in front of it and reads the pre-rename
// path. Otherwise n becomes the new terminal.
func (tx *Tx) insertAtEnd(f ir.FieldID, n ir.Node) (ir.Node, error) {
	term, err := tx.tail(f)
	if err != nil {
		return ir.Node{}, err
	}
	n.Field = f

	if term.Kind == ir.KindRename {
		prev, ok := tx.samePred(term.ID)
		if !ok {
			return ir.Node{}, invalidEdit(f, "rename node %d has no predecessor", term.ID)
		}
		id, err := tx.g.AddNode(n)
		if err != nil {
			return ir.Node{}, err
		}
		if err := tx.g.RemoveEdge(prev.ID, term.ID); err != nil {
			return ir.Node{}, err
		}
		if err := tx.g.AddEdge(prev.ID, id, ir.LabelSame); err != nil {
			return ir.Node{}, err
		}
		if err := tx.g.AddEdge(id, term.ID, ir.LabelSame); err != nil {
			return ir.Node{}, err
		}
		n.ID = id
		return n, nil
	}

	id, err := tx.g.AddNode(n)
	if err != nil {
		return ir.Node{}, err
	}
	if err := tx.g.AddEdge(term.ID, id, ir.LabelSame); err != nil {
		return ir.Node{}, err
	}
	n.ID = id
	if err := tx.reg.SetPath(f, n.Path); err != nil {
		return ir.Node{}, err
	}
	return n, nil
}

// currentPath is the path a node appended to f's lineage would read: the
// terminal's path, or the pre-rename path when the terminal is a rename.
func (tx *Tx) currentPath(f ir.FieldID) (ir.Path, error) {
	term, err := tx.tail(f)
	if err != nil {
		return nil, err
	}
	if term.Kind == ir.KindRename {
		prev, ok := tx.samePred(term.ID)
		if !ok {
			return nil, invalidEdit(f, "rename node %d has no predecessor", term.ID)
		}
		return prev.Path, nil
	}
	return term.Path, nil
}

// dropRename removes a terminal rename node of f, if any, and returns the
// resulting terminal. Used when f is about to stop having an output path or
// gets a new rename.
func (tx *Tx) dropRename(f ir.FieldID) (ir.Node, error) {
	term, err := tx.tail(f)
	if err != nil {
		return ir.Node{}, err
	}
	if term.Kind != ir.KindRename {
		return term, nil
	}
	prev, ok := tx.samePred(term.ID)
	if !ok {
		return ir.Node{}, invalidEdit(f, "rename node %d has no predecessor", term.ID)
	}
	if err := tx.g.RemoveNode(term.ID); err != nil {
		return ir.Node{}, err
	}
	return prev, nil
}

// terminate ends f's lineage with a removal node and clears its path.
func (tx *Tx) terminate(f ir.FieldID) (ir.NodeID, error) {
	term, err := tx.dropRename(f)
	if err != nil {
		return 0, err
	}
	rm, err := tx.g.AddNode(ir.Node{Kind: ir.KindRemoval, Field: f})
	if err != nil {
		return 0, err
	}
	if err := tx.g.AddEdge(term.ID, rm, ir.LabelSame); err != nil {
		return 0, err
	}
	if err := tx.reg.SetPath(f, nil); err != nil {
		return 0, err
	}
	return rm, nil
}
