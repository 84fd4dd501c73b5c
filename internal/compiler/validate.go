package compiler

import (
	"fmt"

	"cuelang.org/go/cue/token"

	"github.com/roach88/fieldflow/internal/catalog"
	"github.com/roach88/fieldflow/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrNoFields         = "E101" // pipeline declares no fields
	ErrInvalidPath      = "E102" // path string does not parse
	ErrInvalidFieldType = "E103" // unknown field type
	ErrDuplicateName    = "E104" // field name declared or introduced twice
	ErrUnknownStepKind  = "E105" // step kind is neither a transform nor a structural step
	ErrUndefinedField   = "E106" // step references a name nothing declares
	ErrFieldNotYetBuilt = "E107" // step references a field introduced by a later step
	ErrFieldConsumed    = "E108" // step references a field an earlier step removed
	ErrInvalidStep      = "E109" // step arguments do not fit its kind
	ErrInvalidOptions   = "E110" // transform options rejected by the catalog
)

// ValidationError represents a pipeline declaration error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

func newError(code, field string, pos token.Pos, format string, args ...any) ValidationError {
	e := ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)}
	if pos.IsValid() {
		e.Line = pos.Line()
	}
	return e
}

// declaration records where a symbolic field name comes from: a field
// declaration (step -1) or the step that introduces it.
type declaration struct {
	step int
	pos  token.Pos
}

// Validate checks a pipeline in two passes and returns every error found.
//
// The first pass collects all declared and introduced names. The second
// resolves each step's references against them in step order. Nothing is
// patched in place; an unresolved reference is reported, never deferred.
func Validate(p *Pipeline) []ValidationError {
	decls, errs := collectDeclarations(p)
	return append(errs, resolveReferences(p, decls)...)
}

func collectDeclarations(p *Pipeline) (map[string]declaration, []ValidationError) {
	var errs []ValidationError
	decls := make(map[string]declaration)

	declare := func(name string, step int, pos token.Pos, where string) {
		if prev, ok := decls[name]; ok {
			line := 0
			if prev.pos.IsValid() {
				line = prev.pos.Line()
			}
			errs = append(errs, newError(ErrDuplicateName, where, pos, "field name %q already declared (line %d)", name, line))
			return
		}
		decls[name] = declaration{step: step, pos: pos}
	}

	if len(p.Fields) == 0 {
		errs = append(errs, newError(ErrNoFields, "fields", token.NoPos, "at least one field is required"))
	}
	for _, f := range p.Fields {
		where := "fields." + f.Name
		declare(f.Name, -1, f.Pos, where)
		if _, err := ir.ParsePath(f.Path); err != nil {
			errs = append(errs, newError(ErrInvalidPath, where+".path", f.Pos, "%v", err))
		}
		if !ir.ValidFieldTypes[f.Type] {
			errs = append(errs, newError(ErrInvalidFieldType, where+".type", f.Pos, "invalid type %q", f.Type))
		}
	}

	for i, s := range p.Steps {
		for j, out := range s.Into {
			where := fmt.Sprintf("steps[%d].into[%d]", i, j)
			declare(out.Name, i, out.Pos, where)
			if _, err := ir.ParsePath(out.Path); err != nil {
				errs = append(errs, newError(ErrInvalidPath, where+".path", out.Pos, "%v", err))
			}
		}
	}
	return decls, errs
}

func resolveReferences(p *Pipeline, decls map[string]declaration) []ValidationError {
	var errs []ValidationError
	consumedBy := make(map[string]int)

	ref := func(i int, name, where string, pos token.Pos) {
		d, ok := decls[name]
		switch {
		case !ok:
			errs = append(errs, newError(ErrUndefinedField, where, pos, "undefined field %q", name))
		case d.step >= i:
			errs = append(errs, newError(ErrFieldNotYetBuilt, where, pos, "field %q is introduced by a later step (steps[%d])", name, d.step))
		default:
			if by, gone := consumedBy[name]; gone {
				errs = append(errs, newError(ErrFieldConsumed, where, pos, "field %q was removed by steps[%d]", name, by))
			}
		}
	}

	for i, s := range p.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		ref(i, s.Field, where+".field", s.Pos)
		for j, w := range s.With {
			ref(i, w, fmt.Sprintf("%s.with[%d]", where, j), s.Pos)
		}
		errs = append(errs, checkStepShape(i, s)...)

		switch s.Kind {
		case StepRemove, StepSplit:
			consumedBy[s.Field] = i
		case StepJoin:
			for _, w := range s.With {
				consumedBy[w] = i
			}
		}
	}
	return errs
}

// checkStepShape validates the arguments a step carries for its kind.
func checkStepShape(i int, s Step) []ValidationError {
	where := fmt.Sprintf("steps[%d]", i)
	bad := func(format string, args ...any) []ValidationError {
		return []ValidationError{newError(ErrInvalidStep, where, s.Pos, format, args...)}
	}

	switch s.Kind {
	case StepSplit:
		if len(s.Into) < 2 {
			return bad("split needs at least two fields in into, got %d", len(s.Into))
		}
		if s.Options.Delimiter == "" {
			return bad("split needs options.delimiter")
		}
		return nil
	case StepDuplicate:
		if len(s.Into) != 1 {
			return bad("duplicate needs exactly one field in into, got %d", len(s.Into))
		}
		return nil
	case StepJoin:
		if len(s.With) == 0 {
			return bad("join needs at least one field in with")
		}
		for _, w := range s.With {
			if w == s.Field {
				return bad("join lists its own field %q in with", w)
			}
		}
		return nil
	case StepRename:
		if _, err := ir.ParsePath(s.To); err != nil {
			return []ValidationError{newError(ErrInvalidPath, where+".to", s.Pos, "%v", err)}
		}
		return nil
	case StepRemove:
		return nil
	}

	kind := ir.Kind(s.Kind)
	if !kind.Valid() || kind.IsIdentity() || kind == ir.KindSplit || kind == ir.KindJoin || kind == ir.KindDuplicate {
		return []ValidationError{newError(ErrUnknownStepKind, where+".kind", s.Pos, "unknown step kind %q", s.Kind)}
	}
	if len(s.Into) > 0 || len(s.With) > 0 || s.To != "" {
		return bad("%s takes only options", s.Kind)
	}
	probe := ir.Node{Kind: kind, Field: 1, Path: ir.P("value"), Options: s.Options}
	if err := catalog.Check(probe); err != nil {
		return []ValidationError{newError(ErrInvalidOptions, where+".options", s.Pos, "%v", err)}
	}
	return nil
}
