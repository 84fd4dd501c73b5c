package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
)

// ValidationErrors is the full list of problems found in one pipeline.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s):\n  %s", len(es), strings.Join(msgs, "\n  "))
}

// Build validates p and replays it as engine edits: every declared field
// first, then each step in order. Every edit is checked by the engine, so
// the result is a valid lineage graph.
func Build(p *Pipeline, opts ...engine.EngineOption) (*engine.Engine, error) {
	if errs := Validate(p); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	e := engine.New(p.Name, opts...)
	ids := make(map[string]ir.FieldID, len(p.Fields))

	for _, f := range p.Fields {
		id, err := e.AddField(ir.MustParsePath(f.Path), f.Type)
		if err != nil {
			return nil, &CompileError{Field: "fields." + f.Name, Message: err.Error(), Pos: f.Pos, Err: err}
		}
		if !f.Enabled {
			if err := e.SetEnabled(id, false); err != nil {
				return nil, &CompileError{Field: "fields." + f.Name, Message: err.Error(), Pos: f.Pos, Err: err}
			}
		}
		ids[f.Name] = id
	}

	for i, s := range p.Steps {
		if err := applyStep(e, ids, s); err != nil {
			return nil, &CompileError{Field: fmt.Sprintf("steps[%d]", i), Message: err.Error(), Pos: s.Pos, Err: err}
		}
	}
	return e, nil
}

func applyStep(e *engine.Engine, ids map[string]ir.FieldID, s Step) error {
	f := ids[s.Field]
	switch s.Kind {
	case StepSplit:
		paths := make([]ir.Path, len(s.Into))
		for i, out := range s.Into {
			paths[i] = ir.MustParsePath(out.Path)
		}
		outs, err := e.Split(f, s.Options.Delimiter, paths...)
		if err != nil {
			return err
		}
		for i, out := range s.Into {
			ids[out.Name] = outs[i]
		}
		return nil
	case StepDuplicate:
		out, err := e.Duplicate(f, ir.MustParsePath(s.Into[0].Path))
		if err != nil {
			return err
		}
		ids[s.Into[0].Name] = out
		return nil
	case StepJoin:
		others := make([]ir.FieldID, len(s.With))
		for i, w := range s.With {
			others[i] = ids[w]
		}
		_, err := e.Join(f, others, s.Options.Separator)
		return err
	case StepRename:
		return e.RenameField(f, ir.MustParsePath(s.To))
	case StepRemove:
		return e.RemoveField(f)
	default:
		_, err := e.AddTransform(f, ir.Kind(s.Kind), s.Options)
		return err
	}
}

// CompileFile loads a CUE file and builds the named pipeline. An empty
// name selects the only pipeline in the file.
func CompileFile(path, name string, opts ...engine.EngineOption) (*engine.Engine, error) {
	pipelines, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Select(pipelines, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Build(p, opts...)
}

// Select picks the pipeline called name. An empty name selects the only
// pipeline in the list.
func Select(pipelines []*Pipeline, name string) (*Pipeline, error) {
	if name == "" {
		if len(pipelines) != 1 {
			names := make([]string, len(pipelines))
			for i, p := range pipelines {
				names[i] = p.Name
			}
			return nil, fmt.Errorf("file declares %d pipelines (%s); pick one by name", len(pipelines), strings.Join(names, ", "))
		}
		return pipelines[0], nil
	}
	for _, p := range pipelines {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no pipeline named %q", name)
}
