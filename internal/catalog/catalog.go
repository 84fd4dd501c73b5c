// Package catalog is the closed set of node kinds and their transform
// contracts.
//
// Every kind is handled by an exhaustive switch over ir.Kind. Adding a kind
// means adding a case to Isolation, Check, RewritePath and Op.Apply; each
// switch panics on an unknown kind so a missed case fails loudly in tests.
package catalog

import (
	"fmt"

	"github.com/roach88/fieldflow/internal/ir"
)

// Isolation states how a kind may touch the document it transforms.
type Isolation int

const (
	// CopyOnWrite kinds compute a new value from a copy of the old one and
	// commit it per location only when the computation succeeds.
	CopyOnWrite Isolation = iota
	// InPlace kinds only relocate or drop existing values.
	InPlace
)

func (i Isolation) String() string {
	if i == InPlace {
		return "in-place"
	}
	return "copy-on-write"
}

// IsolationOf returns the document isolation contract of k.
func IsolationOf(k ir.Kind) Isolation {
	switch k {
	case ir.KindOrganic, ir.KindSynthetic, ir.KindRemoval, ir.KindRename,
		ir.KindRenameKey, ir.KindPut, ir.KindGet:
		return InPlace
	case ir.KindCase, ir.KindSplit, ir.KindJoin, ir.KindFilter, ir.KindDuplicate,
		ir.KindPrepend, ir.KindAppend, ir.KindPlus, ir.KindSubstring,
		ir.KindLoad, ir.KindStore:
		return CopyOnWrite
	default:
		panic(fmt.Sprintf("catalog: unhandled kind %q", k))
	}
}

// IsPathRewrite reports whether k changes its field's output path.
func IsPathRewrite(k ir.Kind) bool {
	return k == ir.KindRename || k == ir.KindRenameKey || k == ir.KindPut || k == ir.KindGet
}

func invalid(n ir.Node, format string, args ...any) *ir.StructuralError {
	return ir.Structuralf(ir.ErrInvalidNode, 2, "%s: %s", n, fmt.Sprintf(format, args...)).
		WithNode(n.ID).WithField(n.Field)
}

// Check validates the kind-specific shape of n: required options, input and
// output arity, and whether it carries a path.
func Check(n ir.Node) error {
	if !n.Kind.Valid() {
		return invalid(n, "unknown kind")
	}
	if n.Field == 0 {
		return invalid(n, "missing field")
	}
	if n.Kind == ir.KindRemoval {
		if n.Path != nil {
			return invalid(n, "removal node must not carry a path")
		}
	} else if n.Path == nil {
		return invalid(n, "missing path")
	}

	o := n.Options
	switch n.Kind {
	case ir.KindOrganic, ir.KindSynthetic, ir.KindRemoval, ir.KindRename:
	case ir.KindCase:
		switch o.Case {
		case ir.CaseUpper, ir.CaseLower, ir.CaseTitle, ir.CaseCamel, ir.CasePascal:
		default:
			return invalid(n, "invalid case mode %q", o.Case)
		}
	case ir.KindSplit:
		if o.Delimiter == "" {
			return invalid(n, "split requires a delimiter")
		}
		if len(n.Outputs) < 2 {
			return invalid(n, "split requires at least two output fields, got %d", len(n.Outputs))
		}
	case ir.KindJoin:
		if len(n.Inputs) < 2 {
			return invalid(n, "join requires at least two input fields, got %d", len(n.Inputs))
		}
		if n.Inputs[0] != n.Field {
			return invalid(n, "join's first input must be its own field %d", n.Field)
		}
	case ir.KindRenameKey:
		if o.Name == "" {
			return invalid(n, "rename_key requires a name")
		}
	case ir.KindPut:
		if _, err := ir.ParsePath(o.Into); err != nil {
			return invalid(n, "put: %v", err)
		}
	case ir.KindGet:
		if o.Depth < 0 {
			return invalid(n, "get depth must not be negative")
		}
	case ir.KindFilter:
		if _, err := compileFilter(o.Expr); err != nil {
			return invalid(n, "filter: %v", err)
		}
	case ir.KindDuplicate:
		if len(n.Outputs) != 1 {
			return invalid(n, "duplicate requires exactly one output field, got %d", len(n.Outputs))
		}
	case ir.KindPrepend, ir.KindAppend:
		if o.Text == "" {
			return invalid(n, "%s requires text", n.Kind)
		}
	case ir.KindPlus:
	case ir.KindSubstring:
		if o.Start < 0 {
			return invalid(n, "substring start must not be negative")
		}
		if o.End != nil && *o.End != -1 && *o.End < o.Start {
			return invalid(n, "substring end %d before start %d", *o.End, o.Start)
		}
	case ir.KindLoad, ir.KindStore:
		if o.Variable == "" {
			return invalid(n, "%s requires a variable", n.Kind)
		}
	default:
		panic(fmt.Sprintf("catalog: unhandled kind %q", n.Kind))
	}

	if n.Kind != ir.KindSplit && n.Kind != ir.KindDuplicate && len(n.Outputs) > 0 {
		return invalid(n, "%s does not introduce fields", n.Kind)
	}
	if n.Kind != ir.KindJoin && len(n.Inputs) > 0 {
		return invalid(n, "%s does not take extra input fields", n.Kind)
	}
	return nil
}

// RewritePath returns the output path a node of kind k produces when its
// field currently sits at from. Kinds that do not move values return from
// unchanged. Rename identity nodes carry an explicit target and are not
// derived here.
func RewritePath(k ir.Kind, o ir.Options, from ir.Path) (ir.Path, error) {
	switch k {
	case ir.KindRenameKey:
		if len(from) == 0 || from.Last().Wildcard {
			return nil, fmt.Errorf("rename_key: path %q does not end in a key", from)
		}
		return from.Parent().Append(ir.Key(o.Name)), nil
	case ir.KindPut:
		if len(from) == 0 {
			return nil, fmt.Errorf("put: empty path")
		}
		into, err := ir.ParsePath(o.Into)
		if err != nil {
			return nil, fmt.Errorf("put: %w", err)
		}
		return into.Append(from.Last()), nil
	case ir.KindGet:
		depth := o.Depth
		if depth == 0 {
			depth = 1
		}
		if len(from) < depth+1 {
			return nil, fmt.Errorf("get: path %q has fewer than %d enclosing objects", from, depth)
		}
		enclosing := from[len(from)-1-depth : len(from)-1]
		for _, seg := range enclosing {
			if seg.Wildcard {
				return nil, fmt.Errorf("get: path %q: cannot lift out of an array", from)
			}
		}
		return from[:len(from)-1-depth].Clone().Append(from.Last()), nil
	case ir.KindOrganic, ir.KindSynthetic, ir.KindRename,
		ir.KindCase, ir.KindSplit, ir.KindJoin, ir.KindFilter, ir.KindDuplicate,
		ir.KindPrepend, ir.KindAppend, ir.KindPlus, ir.KindSubstring,
		ir.KindLoad, ir.KindStore:
		return from.Clone(), nil
	case ir.KindRemoval:
		return nil, nil
	default:
		panic(fmt.Sprintf("catalog: unhandled kind %q", k))
	}
}
