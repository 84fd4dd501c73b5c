package engine

import (
	"cmp"
	"slices"

	"github.com/roach88/fieldflow/internal/ir"
)

// occupancy is a stretch of one field's lineage during which the field's
// value sits at a single path. writer is the node that puts the value there;
// leave is the first node past the stretch, zero while the field still ends
// at path.
type occupancy struct {
	field  ir.FieldID
	path   ir.Path
	writer ir.Node
	leave  ir.Node
}

// orderWrites adds a synthetic edge in front of every node that writes a
// path some other field held earlier, so the write runs only once that
// field has moved off or been dropped. Edits that would need the two fields
// to go first at once fail with INVALID_EDIT.
//
// The graph must already be valid and free of ordering edges.
func (tx *Tx) orderWrites() error {
	byPath := make(map[string][]occupancy)
	for _, f := range tx.reg.IDs() {
		occs, err := tx.occupancies(f)
		if err != nil {
			return err
		}
		for _, o := range occs {
			key := o.path.String()
			byPath[key] = append(byPath[key], o)
		}
	}

	keys := make([]string, 0, len(byPath))
	for k := range byPath {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		occs := byPath[k]
		if len(occs) < 2 {
			continue
		}
		// Input values are in place before anything runs.
		slices.SortFunc(occs, func(a, b occupancy) int {
			ao, bo := a.writer.Kind == ir.KindOrganic, b.writer.Kind == ir.KindOrganic
			switch {
			case ao && !bo:
				return -1
			case bo && !ao:
				return 1
			}
			return cmp.Compare(a.writer.ID, b.writer.ID)
		})

		for i, later := range occs[1:] {
			if later.writer.Kind == ir.KindOrganic {
				return invalidEdit(later.field, "path %q is already read from the input by field %d", later.path, occs[0].field)
			}
			for _, earlier := range occs[:i+1] {
				if earlier.field == later.field {
					continue
				}
				if earlier.leave.ID == 0 {
					return invalidEdit(later.field, "path %q is already used by field %d", later.path, earlier.field)
				}
				if err := tx.orderAfter(earlier, later); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// occupancies splits f's lineage into the paths it passes through.
func (tx *Tx) occupancies(f ir.FieldID) ([]occupancy, error) {
	start, ok := startOf(tx.g, f)
	if !ok {
		return nil, nil
	}
	walk, err := tx.g.Walk(start)
	if err != nil {
		return nil, err
	}

	var out []occupancy
	var cur *occupancy
	for _, id := range walk {
		n, _ := tx.g.Node(id)
		if cur != nil && n.Kind != ir.KindRemoval && n.Path.Equal(cur.path) {
			continue
		}
		if cur != nil {
			cur.leave = n
			out = append(out, *cur)
			cur = nil
		}
		if n.Kind == ir.KindRemoval {
			break
		}
		cur = &occupancy{field: f, path: n.Path, writer: tx.writerOf(n)}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}

// writerOf returns the node that puts n's value at n's path: the producer
// for a synthetic identity node, n itself otherwise.
func (tx *Tx) writerOf(n ir.Node) ir.Node {
	if n.Kind != ir.KindSynthetic {
		return n
	}
	for _, id := range tx.g.InLabeled(n.ID, ir.LabelSynthetic) {
		if p, ok := tx.g.Node(id); ok {
			return p
		}
	}
	return n
}

// orderAfter makes later's writer run after earlier has left the path. A
// removal node is a sink, so the writer instead follows everything the
// removal waits on and ascending ids put the removal first.
func (tx *Tx) orderAfter(earlier, later occupancy) error {
	w := later.writer
	from := []ir.NodeID{earlier.leave.ID}
	if earlier.leave.Kind == ir.KindRemoval {
		if earlier.leave.ID > w.ID {
			return invalidEdit(later.field, "field %d writes %q before field %d is dropped from it", later.field, later.path, earlier.field)
		}
		from = tx.g.Predecessors(earlier.leave.ID)
	}

	for _, id := range from {
		if id == w.ID {
			continue
		}
		if _, ok := tx.g.Edge(id, w.ID); ok {
			continue
		}
		if tx.reaches(w.ID, id) {
			return invalidEdit(later.field, "field %d would write %q while field %d still holds it", later.field, later.path, earlier.field)
		}
		if err := tx.g.AddEdge(id, w.ID, ir.LabelSynthetic); err != nil {
			return err
		}
	}
	return nil
}

// reaches reports whether a path of edges leads from src to dst.
func (tx *Tx) reaches(src, dst ir.NodeID) bool {
	seen := map[ir.NodeID]bool{src: true}
	stack := []ir.NodeID{src}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == dst {
			return true
		}
		for _, next := range tx.g.Successors(id) {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// dropOrderingEdges removes the edges orderWrites added on an earlier edit.
// Every other synthetic edge enters a synthetic identity node, a join or a
// removal.
func (tx *Tx) dropOrderingEdges() error {
	for _, ed := range tx.g.Edges() {
		if ed.Label != ir.LabelSynthetic {
			continue
		}
		to, _ := tx.g.Node(ed.To)
		switch to.Kind {
		case ir.KindSynthetic, ir.KindJoin, ir.KindRemoval:
			continue
		}
		if err := tx.g.RemoveEdge(ed.From, ed.To); err != nil {
			return err
		}
	}
	return nil
}
