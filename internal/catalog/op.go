package catalog

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/roach88/fieldflow/internal/doc"
	"github.com/roach88/fieldflow/internal/ir"
)

// Binding resolves a node's field references to concrete output paths at
// plan time.
type Binding struct {
	// From is the node's field path before the node runs.
	From ir.Path
	// Inputs holds the paths of n.Inputs, in order (join).
	Inputs []ir.Path
	// Outputs holds the paths of n.Outputs, in order (split, duplicate).
	Outputs []ir.Path
}

// Frame is the per-document state threaded through a plan.
type Frame struct {
	Doc  ir.Value
	Vars map[string]ir.Value
}

// NewFrame wraps a document that the caller has already cloned.
func NewFrame(root ir.Value) *Frame {
	return &Frame{Doc: root, Vars: make(map[string]ir.Value)}
}

// Op is a compiled node, ready to apply to any number of documents.
// An Op is immutable and safe for concurrent use.
type Op struct {
	node    ir.Node
	from    ir.Path
	to      ir.Path
	inputs  []ir.Path
	outputs []ir.Path
	filter  cel.Program
}

// Compile checks n and binds it to concrete paths.
func Compile(n ir.Node, b Binding) (*Op, error) {
	if err := Check(n); err != nil {
		return nil, err
	}
	if b.From == nil && !n.Kind.IsStart() {
		return nil, invalid(n, "no input path")
	}
	if len(b.Inputs) != len(n.Inputs) {
		return nil, invalid(n, "bound %d input paths for %d inputs", len(b.Inputs), len(n.Inputs))
	}
	if len(b.Outputs) != len(n.Outputs) {
		return nil, invalid(n, "bound %d output paths for %d outputs", len(b.Outputs), len(n.Outputs))
	}

	op := &Op{
		node:    n.Clone(),
		from:    b.From.Clone(),
		to:      n.Path.Clone(),
		inputs:  clonePaths(b.Inputs),
		outputs: clonePaths(b.Outputs),
	}
	if n.Kind.IsStart() {
		op.from = op.to
	}

	wild := op.from.Wildcards()
	for _, p := range append(append([]ir.Path{op.to}, op.inputs...), op.outputs...) {
		if p != nil && p.Wildcards() > wild {
			return nil, invalid(n, "path %q has more wildcards than input path %q", p, op.from)
		}
	}

	if n.Kind == ir.KindFilter {
		prg, err := compileFilter(n.Options.Expr)
		if err != nil {
			return nil, invalid(n, "filter: %v", err)
		}
		op.filter = prg
	}
	return op, nil
}

func clonePaths(in []ir.Path) []ir.Path {
	if in == nil {
		return nil
	}
	out := make([]ir.Path, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

// Node returns the compiled node.
func (op *Op) Node() ir.Node { return op.node.Clone() }

// From returns the path the op reads.
func (op *Op) From() ir.Path { return op.from.Clone() }

// Apply runs the op against f. Value-level failures are returned, never
// raised; a failed location keeps its previous value.
func (op *Op) Apply(f *Frame) []ir.FieldError {
	switch op.node.Kind {
	case ir.KindOrganic, ir.KindSynthetic:
		return nil
	case ir.KindRemoval:
		op.remove(f)
		return nil
	case ir.KindRename, ir.KindRenameKey, ir.KindPut, ir.KindGet:
		return op.move(f)
	case ir.KindCase:
		return op.mapValues(f, op.applyCase)
	case ir.KindSplit:
		return op.split(f)
	case ir.KindJoin:
		return op.join(f)
	case ir.KindFilter:
		return op.applyFilter(f)
	case ir.KindDuplicate:
		return op.duplicate(f)
	case ir.KindPrepend:
		return op.mapValues(f, func(v ir.Value) (ir.Value, error) {
			s, ok := v.(ir.String)
			if !ok {
				return nil, errNonString
			}
			return ir.String(op.node.Options.Text) + s, nil
		})
	case ir.KindAppend:
		return op.mapValues(f, func(v ir.Value) (ir.Value, error) {
			s, ok := v.(ir.String)
			if !ok {
				return nil, errNonString
			}
			return s + ir.String(op.node.Options.Text), nil
		})
	case ir.KindPlus:
		return op.mapValues(f, op.plus)
	case ir.KindSubstring:
		return op.mapValues(f, op.substring)
	case ir.KindStore:
		op.store(f)
		return nil
	case ir.KindLoad:
		return op.load(f)
	default:
		panic(fmt.Sprintf("catalog: unhandled kind %q", op.node.Kind))
	}
}

var (
	errNonString  = errors.New("non-string field")
	errNonNumeric = errors.New("non-numeric field")
	errOverflow   = errors.New("numeric overflow")
	errNonScalar  = errors.New("non-scalar field")
	errRange      = errors.New("substring out of range")
	errNoVariable = errors.New("variable not set")
)

func (op *Op) fieldError(kp doc.Keypath, err error) ir.FieldError {
	return ir.FieldError{Path: kp.Strings(), Message: err.Error(), Node: op.node.ID}
}

// mapValues replaces every value at the op's path with fn's result. Each
// location commits independently; fn must not modify its argument.
func (op *Op) mapValues(f *Frame, fn func(ir.Value) (ir.Value, error)) []ir.FieldError {
	var errs []ir.FieldError
	for _, m := range doc.Expand(f.Doc, op.from) {
		out, err := fn(m.Value)
		if err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
			continue
		}
		root, err := doc.Set(f.Doc, m.Keypath, out)
		if err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
			continue
		}
		f.Doc = root
	}
	return errs
}
