package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fieldflow/internal/ir"
)

// Pipeline is a parsed CUE pipeline declaration. Fields and steps refer to
// each other by symbolic name; nothing is resolved yet.
type Pipeline struct {
	Name   string
	Fields []FieldDecl
	Steps  []Step
}

// FieldDecl declares one source field of the input documents.
type FieldDecl struct {
	Name    string
	Path    string
	Type    ir.FieldType
	Enabled bool
	Pos     token.Pos
}

// Step kinds beyond the single-field transform kinds of ir.Kind.
const (
	StepSplit     = "split"
	StepDuplicate = "duplicate"
	StepJoin      = "join"
	StepRename    = "rename"
	StepRemove    = "remove"
)

// Step is one edit applied to the pipeline, in declaration order.
//
// Kind is a transform kind (case, put, filter, ...) or one of the Step*
// constants. Into names the fields a split or duplicate introduces; With
// names the fields a join consumes; To is a rename target path.
type Step struct {
	Kind    string
	Field   string
	Options ir.Options
	Into    []OutputDecl
	With    []string
	To      string
	Pos     token.Pos
}

// OutputDecl names a field introduced by a step.
type OutputDecl struct {
	Name string
	Path string
	Pos  token.Pos
}

// CompilePipeline parses a CUE value into a Pipeline.
//
// The CUE value should be the pipeline struct itself, e.g.:
//
//	v := ctx.CompileString(`pipeline: people: { fields: {...}, steps: [...] }`)
//	p, err := CompilePipeline(v.LookupPath(cue.ParsePath("pipeline.people")))
func CompilePipeline(v cue.Value) (*Pipeline, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Pipeline{}
	if sels := v.Path().Selectors(); len(sels) > 0 {
		p.Name = sels[len(sels)-1].String()
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{Field: "fields", Message: "fields are required", Pos: v.Pos()}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		decl, err := parseFieldDecl(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		p.Fields = append(p.Fields, decl)
	}

	stepsVal := v.LookupPath(cue.ParsePath("steps"))
	if stepsVal.Exists() {
		list, err := stepsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; list.Next(); i++ {
			step, err := parseStep(i, list.Value())
			if err != nil {
				return nil, err
			}
			p.Steps = append(p.Steps, step)
		}
	}
	return p, nil
}

// parseFieldDecl accepts either a path string or a struct with path, type
// and enabled. The path defaults to the field name.
func parseFieldDecl(name string, v cue.Value) (FieldDecl, error) {
	decl := FieldDecl{Name: name, Path: name, Type: ir.TypeUnknown, Enabled: true, Pos: v.Pos()}

	if s, err := v.String(); err == nil {
		decl.Path = s
		return decl, nil
	}

	if pv := v.LookupPath(cue.ParsePath("path")); pv.Exists() {
		s, err := pv.String()
		if err != nil {
			return decl, formatCUEError(err)
		}
		decl.Path = s
	}
	if tv := v.LookupPath(cue.ParsePath("type")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return decl, formatCUEError(err)
		}
		decl.Type = ir.FieldType(s)
	}
	if ev := v.LookupPath(cue.ParsePath("enabled")); ev.Exists() {
		b, err := ev.Bool()
		if err != nil {
			return decl, formatCUEError(err)
		}
		decl.Enabled = b
	}
	return decl, nil
}

func parseStep(i int, v cue.Value) (Step, error) {
	step := Step{Pos: v.Pos()}

	kind, err := requiredString(v, "kind", fmt.Sprintf("steps[%d].kind", i))
	if err != nil {
		return step, err
	}
	step.Kind = kind

	field, err := requiredString(v, "field", fmt.Sprintf("steps[%d].field", i))
	if err != nil {
		return step, err
	}
	step.Field = field

	if ov := v.LookupPath(cue.ParsePath("options")); ov.Exists() {
		if err := ov.Decode(&step.Options); err != nil {
			return step, formatCUEError(err)
		}
	}

	if iv := v.LookupPath(cue.ParsePath("into")); iv.Exists() {
		list, err := iv.List()
		if err != nil {
			return step, formatCUEError(err)
		}
		for list.Next() {
			out, err := parseOutputDecl(list.Value())
			if err != nil {
				return step, err
			}
			step.Into = append(step.Into, out)
		}
	}

	if wv := v.LookupPath(cue.ParsePath("with")); wv.Exists() {
		list, err := wv.List()
		if err != nil {
			return step, formatCUEError(err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return step, formatCUEError(err)
			}
			step.With = append(step.With, s)
		}
	}

	if tv := v.LookupPath(cue.ParsePath("to")); tv.Exists() {
		s, err := tv.String()
		if err != nil {
			return step, formatCUEError(err)
		}
		step.To = s
	}
	return step, nil
}

// parseOutputDecl accepts a bare name (path = name) or {name, path}.
func parseOutputDecl(v cue.Value) (OutputDecl, error) {
	out := OutputDecl{Pos: v.Pos()}
	if s, err := v.String(); err == nil {
		out.Name, out.Path = s, s
		return out, nil
	}
	name, err := requiredString(v, "name", "into.name")
	if err != nil {
		return out, err
	}
	out.Name, out.Path = name, name
	if pv := v.LookupPath(cue.ParsePath("path")); pv.Exists() {
		s, err := pv.String()
		if err != nil {
			return out, formatCUEError(err)
		}
		out.Path = s
	}
	return out, nil
}

func requiredString(v cue.Value, key, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(key))
	if !sv.Exists() {
		return "", &CompileError{Field: field, Message: key + " is required", Pos: v.Pos()}
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// LoadFile parses every pipeline declared under the top-level "pipeline"
// struct of a CUE file, in declaration order.
func LoadFile(path string) ([]*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadBytes(path, data)
}

// LoadBytes is LoadFile over in-memory source; filename is used in
// error positions.
func LoadBytes(filename string, src []byte) ([]*Pipeline, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("pipeline"))
	if !root.Exists() {
		return nil, &CompileError{Field: "pipeline", Message: "no pipeline declared", Pos: v.Pos()}
	}
	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []*Pipeline
	for iter.Next() {
		p, err := CompilePipeline(iter.Value())
		if err != nil {
			return nil, err
		}
		if p.Name == "" {
			p.Name = iter.Label()
		}
		out = append(out, p)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
	Err     error // engine rejection, when the error came from Build
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *CompileError) Unwrap() error { return e.Err }

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
