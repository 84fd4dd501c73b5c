package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/roach88/fieldflow/internal/ir"
)

var (
	filterEnvOnce sync.Once
	filterEnv     *cel.Env
	filterEnvErr  error
)

// env returns the shared CEL environment. Filter expressions see one
// variable, value, holding the field's value as plain Go data.
func env() (*cel.Env, error) {
	filterEnvOnce.Do(func() {
		filterEnv, filterEnvErr = cel.NewEnv(
			cel.Variable("value", cel.DynType),
			cel.CrossTypeNumericComparisons(true),
		)
	})
	return filterEnv, filterEnvErr
}

// compileFilter parses, type-checks and plans a filter predicate.
func compileFilter(expr string) (cel.Program, error) {
	if expr == "" {
		return nil, errors.New("empty expression")
	}
	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("creating environment: %w", err)
	}

	ast, iss := e.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling %q: %w", expr, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q has type %s, want bool", expr, out)
	}

	prg, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("generating program for %q: %w", expr, err)
	}
	return prg, nil
}

// keep evaluates the predicate against one value.
func (op *Op) keep(v ir.Value) (bool, error) {
	out, _, err := op.filter.Eval(map[string]any{"value": ir.ToGo(v)})
	if err != nil {
		return false, fmt.Errorf("filter: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, want bool", out.Value())
	}
	return b, nil
}
