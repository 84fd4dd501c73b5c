package catalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldflow/internal/ir"
)

func intPtr(i int) *int { return &i }

// run compiles n against from and applies it to root.
func run(t *testing.T, n ir.Node, b Binding, root ir.Object) (ir.Value, []ir.FieldError) {
	t.Helper()
	op, err := Compile(n, b)
	require.NoError(t, err)
	f := NewFrame(root)
	errs := op.Apply(f)
	return f.Doc, errs
}

func TestCaseTitle(t *testing.T) {
	n := ir.Node{ID: 2, Kind: ir.KindCase, Field: 1, Path: ir.P("name"), Options: ir.Options{Case: ir.CaseTitle}}
	out, errs := run(t, n, Binding{From: ir.P("name")}, ir.Object{"name": ir.String("john smith")})

	assert.Empty(t, errs)
	assert.Equal(t, ir.Object{"name": ir.String("John Smith")}, out)
}

func TestCaseNonString(t *testing.T) {
	n := ir.Node{ID: 2, Kind: ir.KindCase, Field: 1, Path: ir.P("tags"), Options: ir.Options{Case: ir.CaseUpper}}
	out, errs := run(t, n, Binding{From: ir.P("tags")}, ir.Object{"tags": ir.Int(42)})

	assert.Equal(t, ir.Object{"tags": ir.Int(42)}, out)
	assert.Equal(t, []ir.FieldError{{Path: []string{"tags"}, Message: "non-string field", Node: 2}}, errs)
}

func TestConvertCase(t *testing.T) {
	tests := []struct {
		mode ir.CaseMode
		in   string
		want string
	}{
		{ir.CaseUpper, "hello world", "HELLO WORLD"},
		{ir.CaseLower, "Hello World", "hello world"},
		{ir.CaseTitle, "jane DOE", "Jane Doe"},
		{ir.CaseCamel, "first_name value", "firstNameValue"},
		{ir.CasePascal, "first-name", "FirstName"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, convertCase(tt.mode, tt.in))
		})
	}
}

func TestCaseWildcardIsolatesFailures(t *testing.T) {
	n := ir.Node{ID: 3, Kind: ir.KindCase, Field: 1, Path: ir.P("items", "[]", "sku"), Options: ir.Options{Case: ir.CaseUpper}}
	root := ir.Object{"items": ir.Array{
		ir.Object{"sku": ir.String("ab")},
		ir.Object{"sku": ir.Bool(true)},
		ir.Object{"sku": ir.String("cd")},
	}}
	out, errs := run(t, n, Binding{From: n.Path}, root)

	assert.Equal(t, ir.Object{"items": ir.Array{
		ir.Object{"sku": ir.String("AB")},
		ir.Object{"sku": ir.Bool(true)},
		ir.Object{"sku": ir.String("CD")},
	}}, out)
	require.Len(t, errs, 1)
	assert.Equal(t, []string{"items", "1", "sku"}, errs[0].Path)
}

func TestSplit(t *testing.T) {
	n := ir.Node{ID: 2, Kind: ir.KindSplit, Field: 1, Path: ir.P("full_name"),
		Outputs: []ir.FieldID{2, 3}, Options: ir.Options{Delimiter: " "}}
	b := Binding{From: ir.P("full_name"), Outputs: []ir.Path{ir.P("first_name"), ir.P("last_name")}}

	out, errs := run(t, n, b, ir.Object{"full_name": ir.String("Jane Doe")})
	assert.Empty(t, errs)
	assert.Equal(t, ir.Object{
		"full_name":  ir.String("Jane Doe"),
		"first_name": ir.String("Jane"),
		"last_name":  ir.String("Doe"),
	}, out, "the source field is dropped by its removal node, not by split")

	out, errs = run(t, n, b, ir.Object{"full_name": ir.String("Cher")})
	assert.Equal(t, ir.Object{"full_name": ir.String("Cher")}, out)
	require.Len(t, errs, 1)
	assert.Equal(t, "split produced 1 parts, want 2", errs[0].Message)
}

func TestSplitKeepsRemainderInLastPart(t *testing.T) {
	n := ir.Node{ID: 2, Kind: ir.KindSplit, Field: 1, Path: ir.P("s"),
		Outputs: []ir.FieldID{2, 3}, Options: ir.Options{Delimiter: ","}}
	b := Binding{From: ir.P("s"), Outputs: []ir.Path{ir.P("a"), ir.P("b")}}

	out, errs := run(t, n, b, ir.Object{"s": ir.String("x,y,z")})
	assert.Empty(t, errs)
	assert.Equal(t, ir.String("y,z"), out.(ir.Object)["b"])
}

func TestJoin(t *testing.T) {
	n := ir.Node{ID: 5, Kind: ir.KindJoin, Field: 1, Path: ir.P("first"),
		Inputs: []ir.FieldID{1, 2}, Options: ir.Options{Separator: " "}}
	b := Binding{From: ir.P("first"), Inputs: []ir.Path{ir.P("first"), ir.P("last")}}

	out, errs := run(t, n, b, ir.Object{"first": ir.String("Jane"), "last": ir.String("Doe")})
	assert.Empty(t, errs)
	assert.Equal(t, ir.String("Jane Doe"), out.(ir.Object)["first"])

	out, errs = run(t, n, b, ir.Object{"first": ir.String("Jane"), "last": ir.Array{}})
	assert.Equal(t, ir.String("Jane"), out.(ir.Object)["first"])
	require.Len(t, errs, 1)
	assert.Equal(t, "last: non-scalar field", errs[0].Message)
}

func TestPathRewrites(t *testing.T) {
	root := func() ir.Object {
		return ir.Object{"person": ir.Object{"name": ir.String("Ann"), "age": ir.Int(3)}}
	}

	t.Run("rename_key", func(t *testing.T) {
		n := ir.Node{ID: 2, Kind: ir.KindRenameKey, Field: 1, Path: ir.P("person", "full_name"), Options: ir.Options{Name: "full_name"}}
		out, errs := run(t, n, Binding{From: ir.P("person", "name")}, root())
		assert.Empty(t, errs)
		assert.Equal(t, ir.Object{"person": ir.Object{"full_name": ir.String("Ann"), "age": ir.Int(3)}}, out)
	})

	t.Run("put", func(t *testing.T) {
		n := ir.Node{ID: 2, Kind: ir.KindPut, Field: 1, Path: ir.P("meta", "age"), Options: ir.Options{Into: "meta"}}
		out, errs := run(t, n, Binding{From: ir.P("person", "age")}, root())
		assert.Empty(t, errs)
		assert.Equal(t, ir.Object{
			"person": ir.Object{"name": ir.String("Ann")},
			"meta":   ir.Object{"age": ir.Int(3)},
		}, out)
	})

	t.Run("get", func(t *testing.T) {
		n := ir.Node{ID: 2, Kind: ir.KindGet, Field: 1, Path: ir.P("name")}
		out, errs := run(t, n, Binding{From: ir.P("person", "name")}, root())
		assert.Empty(t, errs)
		assert.Equal(t, ir.Object{"person": ir.Object{"age": ir.Int(3)}, "name": ir.String("Ann")}, out)
	})

	t.Run("missing source is a no-op", func(t *testing.T) {
		n := ir.Node{ID: 2, Kind: ir.KindGet, Field: 1, Path: ir.P("zip")}
		out, errs := run(t, n, Binding{From: ir.P("person", "zip")}, root())
		assert.Empty(t, errs)
		assert.Equal(t, root(), out)
	})
}

func TestRewritePath(t *testing.T) {
	p, err := RewritePath(ir.KindRenameKey, ir.Options{Name: "title"}, ir.P("items", "[]", "name"))
	require.NoError(t, err)
	assert.Equal(t, ir.P("items", "[]", "title"), p)

	p, err = RewritePath(ir.KindPut, ir.Options{Into: "a.b"}, ir.P("x", "y"))
	require.NoError(t, err)
	assert.Equal(t, ir.P("a", "b", "y"), p)

	p, err = RewritePath(ir.KindGet, ir.Options{Depth: 2}, ir.P("a", "b", "c", "d"))
	require.NoError(t, err)
	assert.Equal(t, ir.P("a", "d"), p)

	_, err = RewritePath(ir.KindGet, ir.Options{}, ir.P("top"))
	assert.Error(t, err)
	_, err = RewritePath(ir.KindGet, ir.Options{}, ir.P("items", "[]", "x"))
	assert.Error(t, err, "cannot lift out of an array")
	_, err = RewritePath(ir.KindRenameKey, ir.Options{Name: "x"}, ir.P("tags", "[]"))
	assert.Error(t, err)

	p, err = RewritePath(ir.KindCase, ir.Options{}, ir.P("a"))
	require.NoError(t, err)
	assert.Equal(t, ir.P("a"), p)
}

func TestFilter(t *testing.T) {
	n := ir.Node{ID: 4, Kind: ir.KindFilter, Field: 1, Path: ir.P("scores"), Options: ir.Options{Expr: "value >= 10"}}
	out, errs := run(t, n, Binding{From: ir.P("scores")}, ir.Object{"scores": ir.Array{ir.Int(3), ir.Int(12), ir.Float(10.5)}})
	assert.Empty(t, errs)
	assert.Equal(t, ir.Object{"scores": ir.Array{ir.Int(12), ir.Float(10.5)}}, out)

	n = ir.Node{ID: 4, Kind: ir.KindFilter, Field: 1, Path: ir.P("status"), Options: ir.Options{Expr: `value != "draft"`}}
	out, errs = run(t, n, Binding{From: ir.P("status")}, ir.Object{"status": ir.String("draft"), "id": ir.Int(1)})
	assert.Empty(t, errs)
	assert.Equal(t, ir.Object{"id": ir.Int(1)}, out)
}

func TestFilterWildcardDeletesElements(t *testing.T) {
	n := ir.Node{ID: 4, Kind: ir.KindFilter, Field: 1, Path: ir.P("tags", "[]"), Options: ir.Options{Expr: `value.startsWith("x")`}}
	out, errs := run(t, n, Binding{From: n.Path}, ir.Object{"tags": ir.Array{ir.String("xa"), ir.String("b"), ir.String("c"), ir.String("xd")}})
	assert.Empty(t, errs)
	assert.Equal(t, ir.Object{"tags": ir.Array{ir.String("xa"), ir.String("xd")}}, out)
}

func TestFilterEvaluationError(t *testing.T) {
	n := ir.Node{ID: 4, Kind: ir.KindFilter, Field: 1, Path: ir.P("n"), Options: ir.Options{Expr: `value.startsWith("x")`}}
	out, errs := run(t, n, Binding{From: ir.P("n")}, ir.Object{"n": ir.Int(7)})
	assert.Equal(t, ir.Object{"n": ir.Int(7)}, out)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "filter:")
}

func TestDuplicateDeepCopies(t *testing.T) {
	n := ir.Node{ID: 2, Kind: ir.KindDuplicate, Field: 1, Path: ir.P("a"), Outputs: []ir.FieldID{2}}
	src := ir.Object{"x": ir.Int(1)}
	out, errs := run(t, n, Binding{From: ir.P("a"), Outputs: []ir.Path{ir.P("b")}}, ir.Object{"a": src})
	require.Empty(t, errs)

	obj := out.(ir.Object)
	obj["b"].(ir.Object)["x"] = ir.Int(2)
	assert.Equal(t, ir.Int(1), obj["a"].(ir.Object)["x"])
}

func TestStringAndNumberKinds(t *testing.T) {
	tests := []struct {
		name    string
		kind    ir.Kind
		opts    ir.Options
		in      ir.Value
		want    ir.Value
		wantErr string
	}{
		{"prepend", ir.KindPrepend, ir.Options{Text: "Mr. "}, ir.String("Smith"), ir.String("Mr. Smith"), ""},
		{"append", ir.KindAppend, ir.Options{Text: "!"}, ir.String("hi"), ir.String("hi!"), ""},
		{"append non-string", ir.KindAppend, ir.Options{Text: "!"}, ir.Int(1), ir.Int(1), "non-string field"},
		{"plus int", ir.KindPlus, ir.Options{Amount: 2}, ir.Int(40), ir.Int(42), ""},
		{"plus fraction", ir.KindPlus, ir.Options{Amount: 0.5}, ir.Int(1), ir.Float(1.5), ""},
		{"plus float", ir.KindPlus, ir.Options{Amount: 1}, ir.Float(1.25), ir.Float(2.25), ""},
		{"plus overflow", ir.KindPlus, ir.Options{Amount: 1}, ir.Int(math.MaxInt64), ir.Int(math.MaxInt64), "numeric overflow"},
		{"plus underflow", ir.KindPlus, ir.Options{Amount: -2}, ir.Int(math.MinInt64 + 1), ir.Int(math.MinInt64 + 1), "numeric overflow"},
		{"plus non-numeric", ir.KindPlus, ir.Options{Amount: 1}, ir.String("1"), ir.String("1"), "non-numeric field"},
		{"substring", ir.KindSubstring, ir.Options{Start: 1, End: intPtr(3)}, ir.String("héllo"), ir.String("él"), ""},
		{"substring to end", ir.KindSubstring, ir.Options{Start: 2, End: intPtr(-1)}, ir.String("hello"), ir.String("llo"), ""},
		{"substring out of range", ir.KindSubstring, ir.Options{Start: 2, End: intPtr(9)}, ir.String("hello"), ir.String("hello"), "substring out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ir.Node{ID: 9, Kind: tt.kind, Field: 1, Path: ir.P("v"), Options: tt.opts}
			out, errs := run(t, n, Binding{From: ir.P("v")}, ir.Object{"v": tt.in})
			assert.Equal(t, tt.want, out.(ir.Object)["v"])
			if tt.wantErr == "" {
				assert.Empty(t, errs)
			} else {
				require.Len(t, errs, 1)
				assert.Equal(t, tt.wantErr, errs[0].Message)
			}
		})
	}
}

func TestStoreLoad(t *testing.T) {
	store, err := Compile(ir.Node{ID: 2, Kind: ir.KindStore, Field: 1, Path: ir.P("id"), Options: ir.Options{Variable: "id"}},
		Binding{From: ir.P("id")})
	require.NoError(t, err)
	load, err := Compile(ir.Node{ID: 3, Kind: ir.KindLoad, Field: 2, Path: ir.P("ref"), Options: ir.Options{Variable: "id"}},
		Binding{From: ir.P("ref")})
	require.NoError(t, err)

	f := NewFrame(ir.Object{"id": ir.Int(7)})
	assert.Empty(t, store.Apply(f))
	assert.Empty(t, load.Apply(f))
	assert.Equal(t, ir.Object{"id": ir.Int(7), "ref": ir.Int(7)}, f.Doc)

	empty := NewFrame(ir.Object{})
	errs := load.Apply(empty)
	require.Len(t, errs, 1)
	assert.Equal(t, "variable not set", errs[0].Message)
}

func TestLoadPrefersElementScopedVariable(t *testing.T) {
	vars := map[string]ir.Value{"v": ir.Int(1), "v[1]": ir.Int(2)}
	got, ok := lookupVar(vars, "v", []int{1, 4})
	require.True(t, ok)
	assert.Equal(t, ir.Int(2), got)

	got, ok = lookupVar(vars, "v", []int{0})
	require.True(t, ok)
	assert.Equal(t, ir.Int(1), got)
}

func TestRemovalDeletesEveryMatch(t *testing.T) {
	n := ir.Node{ID: 3, Kind: ir.KindRemoval, Field: 1}
	root := ir.Object{"items": ir.Array{ir.Object{"a": ir.Int(1), "b": ir.Int(2)}, ir.Object{"a": ir.Int(3)}}}
	out, errs := run(t, n, Binding{From: ir.P("items", "[]", "a")}, root)
	assert.Empty(t, errs)
	assert.Equal(t, ir.Object{"items": ir.Array{ir.Object{"b": ir.Int(2)}, ir.Object{}}}, out)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		node ir.Node
	}{
		{"unknown kind", ir.Node{Kind: "explode", Field: 1, Path: ir.P("a")}},
		{"missing field", ir.Node{Kind: ir.KindOrganic, Path: ir.P("a")}},
		{"removal with path", ir.Node{Kind: ir.KindRemoval, Field: 1, Path: ir.P("a")}},
		{"organic without path", ir.Node{Kind: ir.KindOrganic, Field: 1}},
		{"bad case", ir.Node{Kind: ir.KindCase, Field: 1, Path: ir.P("a"), Options: ir.Options{Case: "sponge"}}},
		{"split one output", ir.Node{Kind: ir.KindSplit, Field: 1, Path: ir.P("a"), Outputs: []ir.FieldID{2}, Options: ir.Options{Delimiter: " "}}},
		{"join wrong first input", ir.Node{Kind: ir.KindJoin, Field: 1, Path: ir.P("a"), Inputs: []ir.FieldID{2, 1}}},
		{"filter syntax", ir.Node{Kind: ir.KindFilter, Field: 1, Path: ir.P("a"), Options: ir.Options{Expr: "value >"}}},
		{"filter non-bool", ir.Node{Kind: ir.KindFilter, Field: 1, Path: ir.P("a"), Options: ir.Options{Expr: "1 + 2"}}},
		{"substring end before start", ir.Node{Kind: ir.KindSubstring, Field: 1, Path: ir.P("a"), Options: ir.Options{Start: 3, End: intPtr(1)}}},
		{"store no variable", ir.Node{Kind: ir.KindStore, Field: 1, Path: ir.P("a")}},
		{"case with outputs", ir.Node{Kind: ir.KindCase, Field: 1, Path: ir.P("a"), Outputs: []ir.FieldID{2}, Options: ir.Options{Case: ir.CaseUpper}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.node)
			require.Error(t, err)
			assert.Equal(t, ir.ErrInvalidNode, ir.StructuralCode(err))
		})
	}

	assert.NoError(t, Check(ir.Node{Kind: ir.KindPlus, Field: 1, Path: ir.P("a")}))
}

func TestCompileRejectsUnboundWildcards(t *testing.T) {
	n := ir.Node{ID: 2, Kind: ir.KindDuplicate, Field: 1, Path: ir.P("a"), Outputs: []ir.FieldID{2}}
	_, err := Compile(n, Binding{From: ir.P("a"), Outputs: []ir.Path{ir.P("b", "[]")}})
	assert.Error(t, err)
}

func TestEveryKindHasIsolation(t *testing.T) {
	for _, k := range ir.AllKinds {
		assert.NotPanics(t, func() { IsolationOf(k) }, string(k))
	}
	assert.Equal(t, InPlace, IsolationOf(ir.KindPut))
	assert.Equal(t, CopyOnWrite, IsolationOf(ir.KindCase))
	assert.Panics(t, func() { IsolationOf("explode") })
}
