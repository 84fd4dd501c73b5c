package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/fieldflow/internal/graph"
	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/registry"
	"github.com/roach88/fieldflow/internal/validate"
)

// snapshot is one committed graph version. It is never mutated after it is
// published.
type snapshot struct {
	name    string
	version int64
	reg     *registry.Registry
	g       *graph.Graph

	planOnce sync.Once
	plan     *Plan
	planErr  error
}

// Engine owns one pipeline: its field registry and its lineage graph.
//
// Thread-safety model:
//   - edits (AddField, Split, Edit, Load, ...): serialized by an internal mutex
//   - readers (Validate, Fields, Plan, Transform, ...): lock-free, safe from
//     any goroutine; each call sees one committed snapshot
type Engine struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
	clock   *Clock
	runIDs  RunIDGenerator
	logger  *slog.Logger
	workers int
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRunIDGenerator sets the generator for batch run ids.
// Default: UUIDv7Generator. Tests use NewFixedGenerator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithWorkers sets the default batch concurrency. Default: 4.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithClock sets the version clock, e.g. to resume after a stored version.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// DefaultWorkers is the default batch concurrency.
const DefaultWorkers = 4

// New creates an engine with an empty pipeline named name.
func New(name string, opts ...EngineOption) *Engine {
	e := &Engine{
		clock:   NewClock(),
		runIDs:  UUIDv7Generator{},
		logger:  slog.Default(),
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.current.Store(&snapshot{
		name:    name,
		version: e.clock.Current(),
		reg:     registry.New(),
		g:       graph.New(),
	})
	return e
}

// FromDefinition creates an engine and loads def into it.
func FromDefinition(def ir.Definition, opts ...EngineOption) (*Engine, error) {
	e := New(def.Name, opts...)
	if err := e.Load(def); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) snap() *snapshot {
	return e.current.Load()
}

// Name returns the pipeline name.
func (e *Engine) Name() string {
	return e.snap().name
}

// Version returns the version of the committed graph.
func (e *Engine) Version() int64 {
	return e.snap().version
}

// Edit applies fn as one atomic, validated edit. fn receives a Tx over
// copies of the committed state; if fn fails or the result breaks an
// invariant, nothing is published. Before validation every node that writes
// a path another field held earlier is ordered after that field leaves it.
func (e *Engine) Edit(fn func(tx *Tx) error) error {
	return e.edit("edit", fn)
}

func (e *Engine) edit(op string, fn func(tx *Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.snap()
	tx := &Tx{reg: cur.reg.Clone(), g: cur.g.Clone()}

	if err := fn(tx); err != nil {
		return e.failed(op, cur.version, err)
	}
	if err := tx.dropOrderingEdges(); err != nil {
		return e.failed(op, cur.version, err)
	}
	if err := validate.Validate(tx.reg, tx.g); err != nil {
		return e.rejected(op, cur.version, err)
	}
	if err := tx.orderWrites(); err != nil {
		return e.failed(op, cur.version, err)
	}
	if err := validate.Validate(tx.reg, tx.g); err != nil {
		return e.rejected(op, cur.version, err)
	}

	next := &snapshot{name: cur.name, version: e.clock.Next(), reg: tx.reg, g: tx.g}
	e.current.Store(next)
	e.logger.Debug("edit committed",
		"op", op,
		"version", next.version,
		"fields", next.reg.Len(),
		"nodes", next.g.Len(),
	)
	return nil
}

func (e *Engine) failed(op string, version int64, err error) error {
	err = asRuntimeError(op, err)
	e.logger.Warn("edit failed", "op", op, "version", version, "error", err)
	return err
}

func (e *Engine) rejected(op string, version int64, err error) error {
	rerr := &RuntimeError{Code: ErrCodeRejectedEdit, Op: op, Message: "edit rolled back", Cause: err}
	var se *ir.StructuralError
	if errors.As(err, &se) {
		rerr.Field = se.Field
	}
	e.logger.Warn("edit rejected", "op", op, "version", version, "error", err)
	return rerr
}

// asRuntimeError tags err with op, keeping an existing RuntimeError's code.
func asRuntimeError(op string, err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		if re.Op == "" {
			re.Op = op
		}
		return re
	}
	return &RuntimeError{Code: ErrCodeInvalidEdit, Op: op, Cause: err}
}

// Validate checks the committed graph. Committed graphs are always valid;
// this exists for callers that want the guarantee re-checked.
func (e *Engine) Validate() error {
	s := e.snap()
	return validate.Validate(s.reg, s.g)
}

// ComputeExecutionOrder returns the node ids in execution order.
func (e *Engine) ComputeExecutionOrder() ([]ir.NodeID, error) {
	return graph.ExecutionOrder(e.snap().g)
}

// GetAllFieldIDs returns every registered field id, ascending, including
// removed fields.
func (e *Engine) GetAllFieldIDs() []ir.FieldID {
	return e.snap().reg.IDs()
}

// GetFieldPath returns the field's current output path; nil once removed.
func (e *Engine) GetFieldPath(id ir.FieldID) (ir.Path, error) {
	p, err := e.snap().reg.Path(id)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeUnknownField, Op: "get_field_path", Field: id, Cause: err}
	}
	return p, nil
}

// Fields returns the metadata snapshot consumed by mapping generators.
// The slice is a copy; changing it does not affect the engine.
func (e *Engine) Fields() []ir.FieldMeta {
	return e.snap().reg.Snapshot()
}

// Node returns a copy of a node of the committed graph.
func (e *Engine) Node(id ir.NodeID) (ir.Node, bool) {
	return e.snap().g.Node(id)
}

// Lineage returns the node ids on a field's lineage spine, start first.
// Removed fields without a start node return nil.
func (e *Engine) Lineage(f ir.FieldID) ([]ir.NodeID, error) {
	s := e.snap()
	if !s.reg.Has(f) {
		return nil, &RuntimeError{Code: ErrCodeUnknownField, Op: "lineage", Field: f, Message: fmt.Sprintf("unknown field %d", f)}
	}
	start, ok := startOf(s.g, f)
	if !ok {
		return nil, nil
	}
	return s.g.Walk(start)
}

// Definition returns the serializable form of the committed pipeline.
func (e *Engine) Definition() ir.Definition {
	s := e.snap()
	def := ir.Definition{
		Name:      s.name,
		NextField: s.reg.Next(),
		NextNode:  s.g.NextID(),
		Fields:    s.reg.Fields(),
		Nodes:     s.g.Nodes(),
		Edges:     s.g.Edges(),
	}
	def.Sort()
	return def
}

// Hash returns the content hash of the committed pipeline.
func (e *Engine) Hash() (string, error) {
	return ir.DefinitionHash(e.Definition())
}

// Load replaces the pipeline with def. The definition is validated before
// it becomes visible; on failure the previous pipeline stays committed.
// Zero next ids (hand-written definitions) default to one past the largest id.
func (e *Engine) Load(def ir.Definition) error {
	if def.NextField == 0 {
		for _, f := range def.Fields {
			def.NextField = max(def.NextField, f.ID)
		}
		def.NextField++
	}
	reg, err := registry.Restore(def.Fields, def.NextField)
	if err != nil {
		return &RuntimeError{Code: ErrCodeInvalidEdit, Op: "load", Cause: err}
	}

	g := graph.New()
	for _, n := range def.Nodes {
		if n.ID <= 0 {
			return &RuntimeError{Code: ErrCodeInvalidEdit, Op: "load", Message: fmt.Sprintf("node with invalid id %d", n.ID)}
		}
		if _, err := g.AddNode(n); err != nil {
			return &RuntimeError{Code: ErrCodeRejectedEdit, Op: "load", Cause: err}
		}
	}
	for _, ed := range def.Edges {
		if err := g.AddEdge(ed.From, ed.To, ed.Label); err != nil {
			return &RuntimeError{Code: ErrCodeRejectedEdit, Op: "load", Cause: err}
		}
	}
	if def.NextNode != 0 && def.NextNode < g.NextID() {
		return &RuntimeError{Code: ErrCodeInvalidEdit, Op: "load",
			Message: fmt.Sprintf("next node id %d not above existing node ids", def.NextNode)}
	}
	g.SetNextID(def.NextNode)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validate.Validate(reg, g); err != nil {
		e.logger.Warn("load rejected", "pipeline", def.Name, "error", err)
		return &RuntimeError{Code: ErrCodeRejectedEdit, Op: "load", Message: "definition is invalid", Cause: err}
	}

	next := &snapshot{name: def.Name, version: e.clock.Next(), reg: reg, g: g}
	e.current.Store(next)
	e.logger.Debug("definition loaded",
		"pipeline", def.Name,
		"version", next.version,
		"fields", reg.Len(),
		"nodes", g.Len(),
	)
	return nil
}
