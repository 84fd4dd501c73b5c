package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/fieldflow/internal/codec"
	"github.com/roach88/fieldflow/internal/compiler"
	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/store"
)

// Harness is the test execution engine.
// It runs scenarios with a fixed run id so that traces are reproducible.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Compile the pipeline (or load the definition)
// 3. Apply edits, checking expected rejections
// 4. Push the pipeline version and run the batch
// 5. Record the run, then check expect clauses and assertions
//
// An error is returned only when the scenario cannot run at all; failed
// expectations are reported through the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context for the batch.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	opts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
	}

	eng, err := load(scenario, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}

	h := &Harness{
		store:  st,
		engine: eng,
		logger: logger,
	}

	result := NewResult()
	h.executeEdits(scenario.Edits, result)

	if err := h.execute(ctx, scenario, result); err != nil {
		return nil, err
	}

	h.checkExpect(scenario.Expect, result)

	actx := &AssertionContext{
		Store:  st,
		Engine: eng,
		Ctx:    ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func load(s *Scenario, opts []engine.EngineOption) (*engine.Engine, error) {
	if s.Pipeline != "" {
		return compiler.CompileFile(s.Pipeline, s.Select, opts...)
	}
	def, err := codec.ReadFile(s.Definition)
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = s.Name
	}
	return engine.FromDefinition(def, opts...)
}

// execute pushes the edited pipeline, runs the batch and records the run.
func (h *Harness) execute(ctx context.Context, s *Scenario, result *Result) error {
	docs := make([]ir.Value, len(s.Inputs))
	for i, in := range s.Inputs {
		v, err := ir.FromGo(in)
		if err != nil {
			return fmt.Errorf("inputs[%d]: %w", i, err)
		}
		docs[i] = v
	}

	gv, _, err := h.store.PushVersion(ctx, h.engine.Definition())
	if err != nil {
		return fmt.Errorf("failed to push version: %w", err)
	}
	result.Hash = gv.Hash
	result.Fields = h.engine.Fields()

	p, err := h.engine.Plan()
	if err != nil {
		result.AddError(fmt.Sprintf("plan: %v", err))
		return nil
	}
	for _, id := range p.Order() {
		n, _ := h.engine.Node(id)
		result.Order = append(result.Order, n.String())
	}

	run, err := h.engine.TransformAll(ctx, docs, s.Workers)
	if err != nil {
		return fmt.Errorf("failed to run batch: %w", err)
	}

	rec, errs := run.Record(gv.Hash)
	if err := h.store.WriteRun(ctx, rec, errs); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	for _, res := range run.Results {
		d := DocumentResult{
			State:  res.State.String(),
			Output: res.Output,
			Errors: res.Errors,
		}
		if res.Err != nil {
			d.Err = res.Err.Error()
		}
		result.Documents = append(result.Documents, d)
	}

	h.logger.Info("scenario batch completed",
		"run", rec.ID,
		"documents", rec.Documents,
		"completed", rec.Completed,
		"field_errors", rec.FieldErrors,
	)
	return nil
}

// executeEdits applies the scenario's edits in order. An edit that fails
// unexpectedly, or succeeds when a rejection was expected, fails the
// scenario; later edits still run.
func (h *Harness) executeEdits(edits []EditStep, result *Result) {
	for i, step := range edits {
		err := h.applyEdit(step)
		code := engine.ErrorCode(err)

		switch {
		case step.Reject == "" && err != nil:
			result.AddError(fmt.Sprintf("edits[%d] %s: %v", i, step.Edit, err))
		case step.Reject != "" && err == nil:
			result.AddError(fmt.Sprintf("edits[%d] %s: expected rejection %s, edit succeeded", i, step.Edit, step.Reject))
		case step.Reject != "" && code != step.Reject:
			result.AddError(fmt.Sprintf("edits[%d] %s: expected rejection %s, got %q: %v", i, step.Edit, step.Reject, code, err))
		}

		h.logger.Info("edit applied",
			"step", i,
			"edit", step.Edit,
			"field", step.Field,
			"code", code,
		)
	}
}

func (h *Harness) applyEdit(step EditStep) error {
	if step.Edit == EditAddField {
		path, err := ir.ParsePath(step.Path)
		if err != nil {
			return err
		}
		typ := step.Type
		if typ == "" {
			typ = ir.TypeUnknown
		}
		_, err = h.engine.AddField(path, typ)
		return err
	}

	f, err := h.fieldAt(step.Field)
	if err != nil {
		return err
	}

	switch step.Edit {
	case EditTransform:
		_, err := h.engine.AddTransform(f, step.Kind, step.Options)
		return err
	case EditSplit:
		paths, err := parsePaths(step.Into)
		if err != nil {
			return err
		}
		_, err = h.engine.Split(f, step.Delimiter, paths...)
		return err
	case EditDuplicate:
		path, err := ir.ParsePath(step.Path)
		if err != nil {
			return err
		}
		_, err = h.engine.Duplicate(f, path)
		return err
	case EditJoin:
		others := make([]ir.FieldID, len(step.With))
		for i, w := range step.With {
			if others[i], err = h.fieldAt(w); err != nil {
				return err
			}
		}
		_, err = h.engine.Join(f, others, step.Separator)
		return err
	case EditRename:
		path, err := ir.ParsePath(step.Path)
		if err != nil {
			return err
		}
		return h.engine.RenameField(f, path)
	case EditRemove:
		return h.engine.RemoveField(f)
	case EditDisable:
		return h.engine.SetEnabled(f, false)
	default:
		return fmt.Errorf("unknown edit %q", step.Edit)
	}
}

// fieldAt returns the live field whose current path is path.
func (h *Harness) fieldAt(path string) (ir.FieldID, error) {
	for _, f := range h.engine.Fields() {
		if !f.Removed && f.Path == path {
			return f.ID, nil
		}
	}
	return 0, fmt.Errorf("no live field at %q", path)
}

func parsePaths(ss []string) ([]ir.Path, error) {
	paths := make([]ir.Path, len(ss))
	for i, s := range ss {
		p, err := ir.ParsePath(s)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}

// checkExpect compares each document against its expect clause.
func (h *Harness) checkExpect(expect []ExpectClause, result *Result) {
	for i, e := range expect {
		if i >= len(result.Documents) {
			result.AddError(fmt.Sprintf("expect[%d]: no such document", i))
			continue
		}
		d := result.Documents[i]

		state := e.State
		if state == "" {
			state = engine.StateCompleted.String()
		}
		if d.State != state {
			result.AddError(fmt.Sprintf("expect[%d]: state = %s, expected %s", i, d.State, state))
		}

		if e.Output != nil {
			want, err := ir.FromGo(e.Output)
			if err != nil {
				result.AddError(fmt.Sprintf("expect[%d]: output: %v", i, err))
			} else if !ir.Equal(want, d.Output) {
				result.AddError(fmt.Sprintf("expect[%d]: output = %s, expected %s", i, render(d.Output), render(want)))
			}
		}

		if e.Errors != nil && len(d.Errors) != *e.Errors {
			result.AddError(fmt.Sprintf("expect[%d]: %d field errors, expected %d: %v", i, len(d.Errors), *e.Errors, d.Errors))
		}
	}
}

func render(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
