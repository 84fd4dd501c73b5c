package engine

import (
	"fmt"

	"github.com/roach88/fieldflow/internal/catalog"
	"github.com/roach88/fieldflow/internal/doc"
	"github.com/roach88/fieldflow/internal/graph"
	"github.com/roach88/fieldflow/internal/ir"
)

// Plan is a compiled graph version: its nodes bound to concrete paths, in
// execution order. A Plan is immutable and safe for concurrent use.
type Plan struct {
	name    string
	version int64
	order   []ir.NodeID
	ops     []*catalog.Op
}

// Version returns the graph version the plan was compiled from.
func (p *Plan) Version() int64 { return p.version }

// Name returns the pipeline name.
func (p *Plan) Name() string { return p.name }

// Order returns the node ids in execution order.
func (p *Plan) Order() []ir.NodeID {
	return append([]ir.NodeID(nil), p.order...)
}

// Plan returns the execution plan of the committed graph. It is compiled
// once per version.
func (e *Engine) Plan() (*Plan, error) {
	s := e.snap()
	s.planOnce.Do(func() {
		s.plan, s.planErr = buildPlan(s)
		if s.planErr != nil {
			e.logger.Error("plan failed", "pipeline", s.name, "version", s.version, "error", s.planErr)
		}
	})
	return s.plan, s.planErr
}

func buildPlan(s *snapshot) (*Plan, error) {
	order, err := graph.ExecutionOrder(s.g)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodePlanFailed, Op: "plan", Cause: err}
	}

	p := &Plan{name: s.name, version: s.version, order: order, ops: make([]*catalog.Op, 0, len(order))}
	for _, id := range order {
		n, _ := s.g.Node(id)
		b, err := bind(s.g, n)
		if err != nil {
			return nil, &RuntimeError{Code: ErrCodePlanFailed, Op: "plan", Field: n.Field, Cause: err}
		}
		op, err := catalog.Compile(n, b)
		if err != nil {
			return nil, &RuntimeError{Code: ErrCodePlanFailed, Op: "plan", Field: n.Field, Cause: err}
		}
		p.ops = append(p.ops, op)
	}
	return p, nil
}

// bind resolves the paths a node reads and writes from its neighbours: the
// spine predecessor holds the input path, synthetic predecessors hold join
// inputs and synthetic successors hold introduced fields.
func bind(g *graph.Graph, n ir.Node) (catalog.Binding, error) {
	var b catalog.Binding
	if !n.Kind.IsStart() {
		preds := g.InLabeled(n.ID, ir.LabelSame)
		if len(preds) != 1 {
			return b, fmt.Errorf("%s has %d spine predecessors", n, len(preds))
		}
		prev, _ := g.Node(preds[0])
		b.From = prev.Path
	}

	for _, f := range n.Inputs {
		if f == n.Field {
			b.Inputs = append(b.Inputs, b.From)
			continue
		}
		p, ok := neighbourPath(g, g.InLabeled(n.ID, ir.LabelSynthetic), f, false)
		if !ok {
			return b, fmt.Errorf("%s: no synthetic input for field %d", n, f)
		}
		b.Inputs = append(b.Inputs, p)
	}

	for _, f := range n.Outputs {
		p, ok := neighbourPath(g, g.OutLabeled(n.ID, ir.LabelSynthetic), f, true)
		if !ok {
			return b, fmt.Errorf("%s: no synthetic start for output field %d", n, f)
		}
		b.Outputs = append(b.Outputs, p)
	}
	return b, nil
}

func neighbourPath(g *graph.Graph, ids []ir.NodeID, f ir.FieldID, start bool) (ir.Path, bool) {
	for _, id := range ids {
		n, _ := g.Node(id)
		if n.Field != f || (start && n.Kind != ir.KindSynthetic) {
			continue
		}
		return n.Path, true
	}
	return nil, false
}

// State is the outcome of one document run.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the outcome of transforming one document.
//
// A completed result may still carry field errors: each records one
// location a node could not apply to. That node leaves the location as it
// was, but later nodes still run over it, so a field that failed to split
// is still dropped by the removal that ends its lineage.
// A failed result has no output and Err set.
type Result struct {
	State  State
	Output ir.Value
	Errors []ir.FieldError
	Err    error
}

// Execute runs the plan over a deep copy of input. The input is never
// modified.
func (p *Plan) Execute(input ir.Value) (res Result) {
	res.State = StateRunning
	defer func() {
		if r := recover(); r != nil {
			res = Result{State: StateFailed, Err: fmt.Errorf("transform panicked: %v", r)}
		}
	}()

	frame := catalog.NewFrame(doc.Clone(input))
	for _, op := range p.ops {
		res.Errors = append(res.Errors, op.Apply(frame)...)
	}
	res.State = StateCompleted
	res.Output = frame.Doc
	return res
}

// Transform runs the committed pipeline over one document.
func (e *Engine) Transform(input ir.Value) (Result, error) {
	p, err := e.Plan()
	if err != nil {
		return Result{State: StateFailed, Err: err}, err
	}
	return p.Execute(input), nil
}
