package catalog

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/fieldflow/internal/doc"
	"github.com/roach88/fieldflow/internal/ir"
)

func (op *Op) applyCase(v ir.Value) (ir.Value, error) {
	s, ok := v.(ir.String)
	if !ok {
		return nil, errNonString
	}
	return ir.String(convertCase(op.node.Options.Case, string(s))), nil
}

// convertCase rewrites s. Casers are stateful, so each call builds its own.
func convertCase(mode ir.CaseMode, s string) string {
	switch mode {
	case ir.CaseUpper:
		return cases.Upper(language.Und).String(s)
	case ir.CaseLower:
		return cases.Lower(language.Und).String(s)
	case ir.CaseTitle:
		return cases.Title(language.Und).String(s)
	case ir.CaseCamel, ir.CasePascal:
		words := strings.FieldsFunc(s, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		title := cases.Title(language.Und)
		var b strings.Builder
		for i, w := range words {
			if i == 0 && mode == ir.CaseCamel {
				b.WriteString(cases.Lower(language.Und).String(w))
				continue
			}
			b.WriteString(title.String(w))
		}
		return b.String()
	default:
		panic(fmt.Sprintf("catalog: unhandled case mode %q", mode))
	}
}

// plus keeps an integer an integer for an integral amount. A sum outside
// int64 is a field error and leaves the value alone.
func (op *Op) plus(v ir.Value) (ir.Value, error) {
	amount := op.node.Options.Amount
	switch n := v.(type) {
	case ir.Int:
		if amount == math.Trunc(amount) && math.Abs(amount) <= 1<<53 {
			d := ir.Int(amount)
			sum := n + d
			if (d > 0 && sum < n) || (d < 0 && sum > n) {
				return nil, errOverflow
			}
			return sum, nil
		}
		return ir.Float(float64(n) + amount), nil
	case ir.Float:
		return ir.Float(float64(n) + amount), nil
	default:
		return nil, errNonNumeric
	}
}

func (op *Op) substring(v ir.Value) (ir.Value, error) {
	s, ok := v.(ir.String)
	if !ok {
		return nil, errNonString
	}
	runes := []rune(string(s))
	start, end := op.node.Options.Start, len(runes)
	if e := op.node.Options.End; e != nil && *e != -1 {
		end = *e
	}
	if start < 0 || start > len(runes) || end > len(runes) || end < start {
		return nil, errRange
	}
	return ir.String(string(runes[start:end])), nil
}

// split writes the parts of each string value to the output fields' paths.
// A value that yields too few parts writes nothing.
func (op *Op) split(f *Frame) []ir.FieldError {
	want := len(op.outputs)
	var errs []ir.FieldError
	for _, m := range doc.Expand(f.Doc, op.from) {
		s, ok := m.Value.(ir.String)
		if !ok {
			errs = append(errs, op.fieldError(m.Keypath, errNonString))
			continue
		}
		parts := strings.SplitN(string(s), op.node.Options.Delimiter, want)
		if len(parts) < want {
			errs = append(errs, op.fieldError(m.Keypath, fmt.Errorf("split produced %d parts, want %d", len(parts), want)))
			continue
		}

		values := make([]ir.Value, want)
		for i, p := range parts {
			values[i] = ir.String(p)
		}
		if err := op.writeAll(f, op.outputs, m.Bindings, values); err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
		}
	}
	return errs
}

// writeAll sets values[i] at paths[i] bound with bindings. Nothing is
// written unless every location is writable.
func (op *Op) writeAll(f *Frame, paths []ir.Path, bindings []int, values []ir.Value) error {
	kps := make([]doc.Keypath, len(paths))
	for i, p := range paths {
		kp, ok := doc.Bind(p, bindings)
		if !ok {
			return fmt.Errorf("cannot bind path %q", p)
		}
		if err := doc.CanSet(f.Doc, kp); err != nil {
			return err
		}
		kps[i] = kp
	}
	for i, kp := range kps {
		root, err := doc.Set(f.Doc, kp, values[i])
		if err != nil {
			return err
		}
		f.Doc = root
	}
	return nil
}

// join concatenates the node's own value with the other inputs found at the
// same wildcard bindings. Missing or null inputs are skipped.
func (op *Op) join(f *Frame) []ir.FieldError {
	sep := op.node.Options.Separator
	var errs []ir.FieldError
	for _, m := range doc.Expand(f.Doc, op.from) {
		var parts []string
		text, ok, err := scalarText(m.Value)
		if err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
			continue
		}
		if ok {
			parts = append(parts, text)
		}

		for _, in := range op.inputs[1:] {
			kp, bound := doc.Bind(in, m.Bindings)
			if !bound {
				err = fmt.Errorf("cannot bind path %q", in)
				break
			}
			v, found := doc.Get(f.Doc, kp)
			if !found {
				continue
			}
			if text, ok, err = scalarText(v); err != nil {
				err = fmt.Errorf("%s: %w", strings.Join(kp.Strings(), "."), err)
				break
			}
			if ok {
				parts = append(parts, text)
			}
		}
		if err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
			continue
		}

		if err := op.writeAll(f, []ir.Path{op.to}, m.Bindings, []ir.Value{ir.String(strings.Join(parts, sep))}); err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
		}
	}
	return errs
}

func scalarText(v ir.Value) (string, bool, error) {
	switch s := v.(type) {
	case nil, ir.Null:
		return "", false, nil
	case ir.String:
		return string(s), true, nil
	case ir.Int:
		return strconv.FormatInt(int64(s), 10), true, nil
	case ir.Float:
		return strconv.FormatFloat(float64(s), 'f', -1, 64), true, nil
	case ir.Bool:
		return strconv.FormatBool(bool(s)), true, nil
	default:
		return "", false, errNonScalar
	}
}

func (op *Op) duplicate(f *Frame) []ir.FieldError {
	var errs []ir.FieldError
	for _, m := range doc.Expand(f.Doc, op.from) {
		if err := op.writeAll(f, op.outputs, m.Bindings, []ir.Value{doc.Clone(m.Value)}); err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
		}
	}
	return errs
}

// applyFilter keeps array elements matching the predicate and deletes scalar
// values that do not. Locations are visited last to first so deleting an
// array element never shifts a location still to be visited.
func (op *Op) applyFilter(f *Frame) []ir.FieldError {
	matches := doc.Expand(f.Doc, op.from)
	var errs []ir.FieldError
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if arr, ok := m.Value.(ir.Array); ok {
			kept := make(ir.Array, 0, len(arr))
			var failed error
			for _, elem := range arr {
				keep, err := op.keep(elem)
				if err != nil {
					failed = err
					break
				}
				if keep {
					kept = append(kept, elem)
				}
			}
			if failed != nil {
				errs = append(errs, op.fieldError(m.Keypath, failed))
				continue
			}
			if root, err := doc.Set(f.Doc, m.Keypath, kept); err == nil {
				f.Doc = root
			}
			continue
		}

		keep, err := op.keep(m.Value)
		if err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
			continue
		}
		if !keep {
			f.Doc, _ = doc.Delete(f.Doc, m.Keypath)
		}
	}
	slices.Reverse(errs)
	return errs
}

func (op *Op) store(f *Frame) {
	name := op.node.Options.Variable
	for _, m := range doc.Expand(f.Doc, op.from) {
		f.Vars[varKey(name, m.Bindings)] = doc.Clone(m.Value)
	}
}

// load writes a stored variable over the field. Without wildcards the
// field is written even when absent from the document.
func (op *Op) load(f *Frame) []ir.FieldError {
	var targets []doc.Match
	if op.from.Wildcards() == 0 {
		kp, _ := doc.Bind(op.from, nil)
		targets = []doc.Match{{Keypath: kp}}
	} else {
		targets = doc.Expand(f.Doc, op.from)
	}

	name := op.node.Options.Variable
	var errs []ir.FieldError
	for _, m := range targets {
		v, ok := lookupVar(f.Vars, name, m.Bindings)
		if !ok {
			errs = append(errs, op.fieldError(m.Keypath, errNoVariable))
			continue
		}
		if err := op.writeAll(f, []ir.Path{op.from}, m.Bindings, []ir.Value{doc.Clone(v)}); err != nil {
			errs = append(errs, op.fieldError(m.Keypath, err))
		}
	}
	return errs
}

// varKey scopes a variable to the array elements it was stored from, so
// "total[2]" is the value stored while visiting element 2.
func varKey(name string, bindings []int) string {
	var b strings.Builder
	b.WriteString(name)
	for _, i := range bindings {
		fmt.Fprintf(&b, "[%d]", i)
	}
	return b.String()
}

// lookupVar finds the variable stored under the longest prefix of bindings.
func lookupVar(vars map[string]ir.Value, name string, bindings []int) (ir.Value, bool) {
	for n := len(bindings); n >= 0; n-- {
		if v, ok := vars[varKey(name, bindings[:n])]; ok {
			return v, true
		}
	}
	return nil, false
}

// move relocates every value at the input path to the node's path, keeping
// wildcard bindings. All sources are detached before any target is written
// so overlapping paths never see a half-moved document.
func (op *Op) move(f *Frame) []ir.FieldError {
	type pending struct {
		src, dst doc.Keypath
		value    ir.Value
	}

	var (
		errs  []ir.FieldError
		moves []pending
	)
	for _, m := range doc.Expand(f.Doc, op.from) {
		dst, ok := doc.Bind(op.to, m.Bindings)
		if !ok {
			errs = append(errs, op.fieldError(m.Keypath, fmt.Errorf("cannot bind path %q", op.to)))
			continue
		}
		moves = append(moves, pending{src: m.Keypath, dst: dst, value: m.Value})
	}

	for i := len(moves) - 1; i >= 0; i-- {
		f.Doc, _ = doc.Delete(f.Doc, moves[i].src)
	}
	for _, mv := range moves {
		root, err := doc.Set(f.Doc, mv.dst, mv.value)
		if err != nil {
			errs = append(errs, op.fieldError(mv.src, err))
			if restored, rerr := doc.Set(f.Doc, mv.src, mv.value); rerr == nil {
				f.Doc = restored
			}
			continue
		}
		f.Doc = root
	}
	return errs
}

// remove deletes every value at the input path, last location first.
func (op *Op) remove(f *Frame) {
	matches := doc.Expand(f.Doc, op.from)
	for i := len(matches) - 1; i >= 0; i-- {
		f.Doc, _ = doc.Delete(f.Doc, matches[i].Keypath)
	}
}
