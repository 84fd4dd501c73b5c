package engine

import (
	"fmt"

	"github.com/roach88/fieldflow/internal/catalog"
	"github.com/roach88/fieldflow/internal/ir"
)

// AddField registers a source field at path and starts its lineage with an
// organic identity node.
func (e *Engine) AddField(path ir.Path, typ ir.FieldType) (ir.FieldID, error) {
	var id ir.FieldID
	err := e.edit("add_field", func(tx *Tx) error {
		if err := tx.pathFree(path, 0); err != nil {
			return err
		}
		f, err := tx.AllocateField(path, typ)
		if err != nil {
			return err
		}
		if _, err := tx.g.AddNode(ir.Node{Kind: ir.KindOrganic, Field: f, Path: path}); err != nil {
			return err
		}
		id = f
		return nil
	})
	return id, err
}

// AddTransform appends a single-field transform to f's lineage and returns
// the new node id. Path-rewriting kinds move the field's output path.
// Split, duplicate and join introduce or consume fields and have their own
// methods.
func (e *Engine) AddTransform(f ir.FieldID, kind ir.Kind, opts ir.Options) (ir.NodeID, error) {
	var id ir.NodeID
	err := e.edit("add_transform", func(tx *Tx) error {
		if err := tx.live(f); err != nil {
			return err
		}
		switch {
		case !kind.Valid():
			return invalidEdit(f, "unknown kind %q", kind)
		case kind.IsIdentity():
			return invalidEdit(f, "%s is an identity kind", kind)
		case kind == ir.KindSplit || kind == ir.KindDuplicate || kind == ir.KindJoin:
			return invalidEdit(f, "%s introduces or consumes fields; use its own edit", kind)
		}

		from, err := tx.currentPath(f)
		if err != nil {
			return err
		}
		path, err := catalog.RewritePath(kind, opts, from)
		if err != nil {
			return invalidEdit(f, "%v", err)
		}
		if path.Wildcards() > from.Wildcards() {
			return invalidEdit(f, "%s would add array wildcards to %q", kind, from)
		}
		if !path.Equal(from) {
			if err := tx.pathFree(path, f); err != nil {
				return err
			}
		}

		n, err := tx.insertAtEnd(f, ir.Node{Kind: kind, Path: path, Options: opts.Clone()})
		if err != nil {
			return err
		}
		id = n.ID
		return nil
	})
	return id, err
}

// RemoveTransform deletes a transform node and reconnects its neighbours.
// Paths after it are recomputed, so removing a path rewrite moves the field
// back.
func (e *Engine) RemoveTransform(id ir.NodeID) error {
	return e.edit("remove_transform", func(tx *Tx) error {
		n, ok := tx.g.Node(id)
		if !ok {
			return invalidEdit(0, "unknown node %d", id)
		}
		if n.Kind.IsIdentity() || n.Kind == ir.KindSplit || n.Kind == ir.KindDuplicate || n.Kind == ir.KindJoin {
			return invalidEdit(n.Field, "%s cannot be removed on its own", n)
		}
		prev, ok := tx.samePred(id)
		if !ok {
			return invalidEdit(n.Field, "%s has no predecessor", n)
		}
		next := tx.g.OutLabeled(id, ir.LabelSame)

		if err := tx.g.RemoveNode(id); err != nil {
			return err
		}
		for _, to := range next {
			if err := tx.g.AddEdge(prev.ID, to, ir.LabelSame); err != nil {
				return err
			}
		}
		return tx.repath(n.Field, prev)
	})
}

// repath recomputes node paths along f's lineage after from, and the
// registry path when the lineage ends in an ordinary node.
func (tx *Tx) repath(f ir.FieldID, from ir.Node) error {
	walk, err := tx.g.Walk(from.ID)
	if err != nil {
		return err
	}
	cur := from.Path
	for _, id := range walk[1:] {
		n, _ := tx.g.Node(id)
		switch n.Kind {
		case ir.KindRemoval, ir.KindRename:
			return nil
		}
		path, err := catalog.RewritePath(n.Kind, n.Options, cur)
		if err != nil {
			return invalidEdit(f, "node %d: %v", id, err)
		}
		n.Path = path
		if err := tx.g.SetNode(id, n); err != nil {
			return err
		}
		cur = path
	}
	if err := tx.pathFree(cur, f); err != nil {
		return err
	}
	return tx.reg.SetPath(f, cur)
}

// Split splits f's string value on delimiter into new fields at paths.
// Part i goes to paths[i]; the last part keeps any remaining delimiters.
// f itself is removed. Returns the new field ids in path order.
func (e *Engine) Split(f ir.FieldID, delimiter string, paths ...ir.Path) ([]ir.FieldID, error) {
	var outputs []ir.FieldID
	err := e.edit("split", func(tx *Tx) error {
		if err := tx.live(f); err != nil {
			return err
		}
		if len(paths) < 2 {
			return invalidEdit(f, "split needs at least two output paths, got %d", len(paths))
		}

		term, err := tx.dropRename(f)
		if err != nil {
			return err
		}
		ids, err := tx.allocateOutputs(f, term.Path, ir.TypeString, paths)
		if err != nil {
			return err
		}

		s, err := tx.g.AddNode(ir.Node{
			Kind:    ir.KindSplit,
			Field:   f,
			Path:    term.Path,
			Outputs: ids,
			Options: ir.Options{Delimiter: delimiter},
		})
		if err != nil {
			return err
		}
		if err := tx.g.AddEdge(term.ID, s, ir.LabelSame); err != nil {
			return err
		}
		if err := tx.startOutputs(s, ids, paths); err != nil {
			return err
		}
		if _, err := tx.terminate(f); err != nil {
			return err
		}
		outputs = ids
		return nil
	})
	return outputs, err
}

// Duplicate copies f's value into a new field at path and returns its id.
func (e *Engine) Duplicate(f ir.FieldID, path ir.Path) (ir.FieldID, error) {
	var out ir.FieldID
	err := e.edit("duplicate", func(tx *Tx) error {
		if err := tx.live(f); err != nil {
			return err
		}
		from, err := tx.currentPath(f)
		if err != nil {
			return err
		}
		src, _ := tx.reg.Field(f)
		ids, err := tx.allocateOutputs(f, from, src.Type, []ir.Path{path})
		if err != nil {
			return err
		}

		d, err := tx.insertAtEnd(f, ir.Node{Kind: ir.KindDuplicate, Path: from, Outputs: ids})
		if err != nil {
			return err
		}
		if err := tx.startOutputs(d.ID, ids, []ir.Path{path}); err != nil {
			return err
		}
		out = ids[0]
		return nil
	})
	return out, err
}

// Join concatenates the values of others onto into with separator, then
// removes others. Returns the join node id.
func (e *Engine) Join(into ir.FieldID, others []ir.FieldID, separator string) (ir.NodeID, error) {
	var id ir.NodeID
	err := e.edit("join", func(tx *Tx) error {
		if err := tx.live(into); err != nil {
			return err
		}
		if len(others) == 0 {
			return invalidEdit(into, "join needs at least one other field")
		}
		seen := map[ir.FieldID]bool{into: true}
		for _, o := range others {
			if seen[o] {
				return invalidEdit(o, "field %d listed twice", o)
			}
			seen[o] = true
			if err := tx.live(o); err != nil {
				return err
			}
		}

		from, err := tx.currentPath(into)
		if err != nil {
			return err
		}
		inputs := append([]ir.FieldID{into}, others...)
		j, err := tx.insertAtEnd(into, ir.Node{
			Kind:    ir.KindJoin,
			Path:    from,
			Inputs:  inputs,
			Options: ir.Options{Separator: separator},
		})
		if err != nil {
			return err
		}

		for _, o := range others {
			otail, err := tx.dropRename(o)
			if err != nil {
				return err
			}
			if otail.Path.Wildcards() > from.Wildcards() {
				return invalidEdit(o, "path %q has more array wildcards than %q", otail.Path, from)
			}
			// The join reads o after o's own transforms and before o is dropped.
			if err := tx.g.AddEdge(otail.ID, j.ID, ir.LabelSynthetic); err != nil {
				return err
			}
			rm, err := tx.terminate(o)
			if err != nil {
				return err
			}
			if err := tx.g.AddEdge(j.ID, rm, ir.LabelSynthetic); err != nil {
				return err
			}
		}
		id = j.ID
		return nil
	})
	return id, err
}

// RenameField moves f's output to path. The lineage ends in one rename
// identity node; renaming again replaces it.
func (e *Engine) RenameField(f ir.FieldID, path ir.Path) error {
	return e.edit("rename_field", func(tx *Tx) error {
		if err := tx.live(f); err != nil {
			return err
		}
		if path == nil {
			return invalidEdit(f, "rename needs a path")
		}
		from, err := tx.currentPath(f)
		if err != nil {
			return err
		}
		if path.Wildcards() > from.Wildcards() {
			return invalidEdit(f, "path %q has more array wildcards than %q", path, from)
		}
		if err := tx.pathFree(path, f); err != nil {
			return err
		}

		// The terminal rename is always the newest node of the lineage.
		term, err := tx.dropRename(f)
		if err != nil {
			return err
		}
		rn, err := tx.g.AddNode(ir.Node{Kind: ir.KindRename, Field: f, Path: path})
		if err != nil {
			return err
		}
		if err := tx.g.AddEdge(term.ID, rn, ir.LabelSame); err != nil {
			return err
		}
		return tx.reg.SetPath(f, path)
	})
}

// RemoveField drops f from the output: its lineage ends in a removal node
// and its path becomes nil. The id stays registered.
func (e *Engine) RemoveField(f ir.FieldID) error {
	return e.edit("remove_field", func(tx *Tx) error {
		if err := tx.live(f); err != nil {
			return err
		}
		_, err := tx.terminate(f)
		return err
	})
}

// SetEnabled toggles whether the mapping generator emits f.
func (e *Engine) SetEnabled(f ir.FieldID, enabled bool) error {
	return e.edit("set_enabled", func(tx *Tx) error {
		if !tx.reg.Has(f) {
			return &RuntimeError{Code: ErrCodeUnknownField, Field: f, Message: fmt.Sprintf("unknown field %d", f)}
		}
		return tx.reg.SetEnabled(f, enabled)
	})
}

// SetType changes f's declared type.
func (e *Engine) SetType(f ir.FieldID, typ ir.FieldType) error {
	return e.edit("set_type", func(tx *Tx) error {
		if !tx.reg.Has(f) {
			return &RuntimeError{Code: ErrCodeUnknownField, Field: f, Message: fmt.Sprintf("unknown field %d", f)}
		}
		if err := tx.reg.SetType(f, typ); err != nil {
			return invalidEdit(f, "%v", err)
		}
		return nil
	})
}

// allocateOutputs registers the fields a split or duplicate introduces.
func (tx *Tx) allocateOutputs(f ir.FieldID, from ir.Path, typ ir.FieldType, paths []ir.Path) ([]ir.FieldID, error) {
	ids := make([]ir.FieldID, 0, len(paths))
	for i, p := range paths {
		if p == nil {
			return nil, invalidEdit(f, "output %d has no path", i)
		}
		if p.Wildcards() > from.Wildcards() {
			return nil, invalidEdit(f, "output path %q has more array wildcards than %q", p, from)
		}
		for _, q := range paths[:i] {
			if q.Equal(p) {
				return nil, invalidEdit(f, "output path %q listed twice", p)
			}
		}
		if err := tx.pathFree(p, 0); err != nil {
			return nil, err
		}
		id, err := tx.AllocateField(p, typ)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// startOutputs gives each introduced field a synthetic identity node fed by
// a synthetic edge from the producing node.
func (tx *Tx) startOutputs(producer ir.NodeID, ids []ir.FieldID, paths []ir.Path) error {
	for i, id := range ids {
		syn, err := tx.g.AddNode(ir.Node{Kind: ir.KindSynthetic, Field: id, Path: paths[i]})
		if err != nil {
			return err
		}
		if err := tx.g.AddEdge(producer, syn, ir.LabelSynthetic); err != nil {
			return err
		}
	}
	return nil
}

// pathFree fails if a live field other than except already outputs to path.
func (tx *Tx) pathFree(path ir.Path, except ir.FieldID) error {
	for _, f := range tx.reg.Fields() {
		if f.ID != except && f.Path != nil && f.Path.Equal(path) {
			return invalidEdit(except, "path %q is already used by field %d", path, f.ID)
		}
	}
	return nil
}
