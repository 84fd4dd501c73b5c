package compiler

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
)

const peopleCUE = `
pipeline: people: {
	fields: {
		full_name: {type: "string"}
		age: {path: "profile.age", type: "integer"}
		nick: "nickname"
	}
	steps: [
		{kind: "case", field: "full_name", options: {case: "title"}},
		{kind: "split", field: "full_name", options: {delimiter: " "}, into: ["first", {name: "last", path: "surname"}]},
		{kind: "get", field: "age"},
		{kind: "plus", field: "age", options: {amount: 1}},
		{kind: "rename", field: "age", to: "years"},
		{kind: "remove", field: "nick"},
	]
}
`

func quietLogger() engine.EngineOption {
	return engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCompilePipeline(t *testing.T) {
	v := cuecontext.New().CompileString(peopleCUE)
	require.NoError(t, v.Err())

	p, err := CompilePipeline(v.LookupPath(cue.ParsePath("pipeline.people")))
	require.NoError(t, err)

	assert.Equal(t, "people", p.Name)
	require.Len(t, p.Fields, 3)
	assert.Equal(t, FieldDecl{Name: "full_name", Path: "full_name", Type: ir.TypeString, Enabled: true, Pos: p.Fields[0].Pos}, p.Fields[0])
	assert.Equal(t, "profile.age", p.Fields[1].Path)
	assert.Equal(t, "nickname", p.Fields[2].Path)
	assert.Equal(t, ir.TypeUnknown, p.Fields[2].Type)

	require.Len(t, p.Steps, 6)
	assert.Equal(t, ir.CaseTitle, p.Steps[0].Options.Case)
	require.Len(t, p.Steps[1].Into, 2)
	assert.Equal(t, "first", p.Steps[1].Into[0].Path)
	assert.Equal(t, "surname", p.Steps[1].Into[1].Path)
	assert.Equal(t, 1.0, p.Steps[3].Options.Amount)
	assert.Equal(t, "years", p.Steps[4].To)

	assert.Empty(t, Validate(p))
}

func TestBuildAndTransform(t *testing.T) {
	pipelines, err := LoadBytes("people.cue", []byte(peopleCUE))
	require.NoError(t, err)
	require.Len(t, pipelines, 1)

	e, err := Build(pipelines[0], quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "people", e.Name())

	res, err := e.Transform(ir.Object{
		"full_name": ir.String("jane doe"),
		"profile":   ir.Object{"age": ir.Int(41)},
		"nickname":  ir.String("jd"),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, ir.Object{
		"first":   ir.String("Jane"),
		"surname": ir.String("Doe"),
		"profile": ir.Object{},
		"years":   ir.Int(42),
	}, res.Output)
}

func TestValidateReportsEveryError(t *testing.T) {
	p := &Pipeline{
		Name: "broken",
		Fields: []FieldDecl{
			{Name: "a", Path: "a", Type: ir.TypeString},
			{Name: "b", Path: "b..c", Type: "money"},
		},
		Steps: []Step{
			{Kind: "case", Field: "ghost", Options: ir.Options{Case: ir.CaseUpper}},
			{Kind: "append", Field: "later", Options: ir.Options{Text: "!"}},
			{Kind: "split", Field: "a", Options: ir.Options{Delimiter: " "}, Into: []OutputDecl{{Name: "later", Path: "x"}, {Name: "a", Path: "y"}}},
			{Kind: "case", Field: "a", Options: ir.Options{Case: "sideways"}},
			{Kind: "teleport", Field: "later"},
			{Kind: "join", Field: "later"},
		},
	}

	errs := Validate(p)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}

	assert.Equal(t, []string{
		ErrInvalidPath,      // fields.b.path
		ErrInvalidFieldType, // fields.b.type
		ErrDuplicateName,    // steps[2].into[1] redeclares a
		ErrUndefinedField,   // steps[0] ghost
		ErrFieldNotYetBuilt, // steps[1] later
		ErrFieldConsumed,    // steps[3] a after split
		ErrInvalidOptions,   // steps[3] case mode
		ErrUnknownStepKind,  // steps[4]
		ErrInvalidStep,      // steps[5] join without with
	}, codes)

	_, err := Build(p)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, len(errs))
}

func TestBuildReportsEngineRejection(t *testing.T) {
	p := &Pipeline{
		Name:   "clash",
		Fields: []FieldDecl{{Name: "a", Path: "a", Type: ir.TypeString, Enabled: true}, {Name: "b", Path: "b", Type: ir.TypeString, Enabled: true}},
		Steps:  []Step{{Kind: StepRename, Field: "a", To: "b"}},
	}

	_, err := Build(p, quietLogger())
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "steps[0]", cerr.Field)
	assert.Contains(t, cerr.Message, "already used")
	assert.True(t, engine.IsInvalidEdit(err))
}

func TestCompileFileSelectsPipeline(t *testing.T) {
	src := peopleCUE + `
pipeline: tiny: fields: x: "x"
`
	path := filepath.Join(t.TempDir(), "two.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	_, err := CompileFile(path, "", quietLogger())
	assert.ErrorContains(t, err, "declares 2 pipelines")

	e, err := CompileFile(path, "tiny", quietLogger())
	require.NoError(t, err)
	assert.Len(t, e.GetAllFieldIDs(), 1)

	_, err = CompileFile(path, "nope", quietLogger())
	assert.ErrorContains(t, err, `no pipeline named "nope"`)
}

func TestCUEErrorsCarryPositions(t *testing.T) {
	_, err := LoadBytes("bad.cue", []byte("pipeline: p: {\n\tfields: x: (\n}\n"))
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "bad.cue", cerr.Pos.Filename())
}

func TestMissingStepKind(t *testing.T) {
	_, err := LoadBytes("p.cue", []byte(`pipeline: p: {fields: a: "a", steps: [{field: "a"}]}`))
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "steps[0].kind", cerr.Field)
}
