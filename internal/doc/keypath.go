package doc

import (
	"fmt"
	"strconv"

	"github.com/roach88/fieldflow/internal/ir"
)

// Step is one concrete step into a document: an object key or an array index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

// Keypath is a concrete location in a document: a Path whose wildcards have
// been bound to array indices.
type Keypath []Step

// K builds a keypath from keys (string) and indices (int).
// Example: K("items", 0, "name")
func K(steps ...any) Keypath {
	kp := make(Keypath, 0, len(steps))
	for _, s := range steps {
		switch v := s.(type) {
		case int:
			kp = append(kp, Step{Index: v, IsIndex: true})
		case string:
			kp = append(kp, Step{Key: v})
		default:
			panic(fmt.Sprintf("doc.K: unsupported step type %T", s))
		}
	}
	return kp
}

// Strings renders the keypath for error records; indices become decimal strings.
func (k Keypath) Strings() []string {
	out := make([]string, len(k))
	for i, s := range k {
		if s.IsIndex {
			out[i] = strconv.Itoa(s.Index)
		} else {
			out[i] = s.Key
		}
	}
	return out
}

// Match is one concrete location matched by a (possibly wildcard) path.
// Bindings holds the index chosen for each wildcard, in path order.
type Match struct {
	Keypath  Keypath
	Bindings []int
	Value    ir.Value
}

// Expand returns every existing location in root matched by path, in
// document order. Missing keys and non-container intermediates match nothing.
func Expand(root ir.Value, path ir.Path) []Match {
	var out []Match
	expand(root, path, nil, nil, &out)
	return out
}

func expand(cur ir.Value, rest ir.Path, kp Keypath, bindings []int, out *[]Match) {
	if len(rest) == 0 {
		*out = append(*out, Match{
			Keypath:  append(Keypath(nil), kp...),
			Bindings: append([]int(nil), bindings...),
			Value:    cur,
		})
		return
	}

	seg := rest[0]
	if seg.Wildcard {
		arr, ok := cur.(ir.Array)
		if !ok {
			return
		}
		for i, elem := range arr {
			expand(elem, rest[1:], append(kp, Step{Index: i, IsIndex: true}), append(bindings, i), out)
		}
		return
	}

	obj, ok := cur.(ir.Object)
	if !ok {
		return
	}
	child, ok := obj[seg.Key]
	if !ok {
		return
	}
	expand(child, rest[1:], append(kp, Step{Key: seg.Key}), bindings, out)
}

// Bind substitutes bindings into path's wildcards in order. It fails when the
// path has more wildcards than bindings; surplus bindings are ignored.
func Bind(path ir.Path, bindings []int) (Keypath, bool) {
	kp := make(Keypath, 0, len(path))
	next := 0
	for _, seg := range path {
		if !seg.Wildcard {
			kp = append(kp, Step{Key: seg.Key})
			continue
		}
		if next >= len(bindings) {
			return nil, false
		}
		kp = append(kp, Step{Index: bindings[next], IsIndex: true})
		next++
	}
	return kp, true
}

// Get returns the value at kp.
func Get(root ir.Value, kp Keypath) (ir.Value, bool) {
	cur := root
	for _, step := range kp {
		if step.IsIndex {
			arr, ok := cur.(ir.Array)
			if !ok || step.Index < 0 || step.Index >= len(arr) {
				return nil, false
			}
			cur = arr[step.Index]
			continue
		}
		obj, ok := cur.(ir.Object)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[step.Key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set writes v at kp, creating intermediate objects and arrays as needed,
// and returns the (possibly replaced) root. Arrays grow with nulls.
// Writing through an existing scalar is an error.
func Set(root ir.Value, kp Keypath, v ir.Value) (ir.Value, error) {
	return set(root, kp, v, 0)
}

func set(cur ir.Value, kp Keypath, v ir.Value, depth int) (ir.Value, error) {
	if depth == len(kp) {
		return v, nil
	}
	step := kp[depth]

	if step.IsIndex {
		if step.Index < 0 {
			return nil, fmt.Errorf("negative index %d", step.Index)
		}
		var arr ir.Array
		switch c := cur.(type) {
		case nil, ir.Null:
		case ir.Array:
			arr = c
		default:
			return nil, fmt.Errorf("cannot index into %s at %v", ir.TypeName(cur), kp[:depth].Strings())
		}
		for len(arr) <= step.Index {
			arr = append(arr, ir.Null{})
		}
		child, err := set(arr[step.Index], kp, v, depth+1)
		if err != nil {
			return nil, err
		}
		arr[step.Index] = child
		return arr, nil
	}

	var obj ir.Object
	switch c := cur.(type) {
	case nil, ir.Null:
		obj = ir.Object{}
	case ir.Object:
		obj = c
	default:
		return nil, fmt.Errorf("cannot set key %q in %s at %v", step.Key, ir.TypeName(cur), kp[:depth].Strings())
	}
	child, err := set(obj[step.Key], kp, v, depth+1)
	if err != nil {
		return nil, err
	}
	obj[step.Key] = child
	return obj, nil
}

// CanSet reports whether Set(root, kp, v) would succeed, without changing
// root. Callers writing several locations check them all first so a failure
// leaves the document untouched.
func CanSet(root ir.Value, kp Keypath) error {
	cur := root
	for depth, step := range kp {
		if step.IsIndex && step.Index < 0 {
			return fmt.Errorf("negative index %d", step.Index)
		}
		switch c := cur.(type) {
		case nil, ir.Null:
			cur = nil
			continue
		case ir.Array:
			if !step.IsIndex {
				return fmt.Errorf("cannot set key %q in array at %v", step.Key, kp[:depth].Strings())
			}
			if step.Index < len(c) {
				cur = c[step.Index]
			} else {
				cur = nil
			}
		case ir.Object:
			if step.IsIndex {
				return fmt.Errorf("cannot index into object at %v", kp[:depth].Strings())
			}
			cur = c[step.Key]
		default:
			return fmt.Errorf("cannot write through %s at %v", ir.TypeName(cur), kp[:depth].Strings())
		}
	}
	return nil
}

// Delete removes the value at kp and returns the (possibly replaced) root and
// whether anything was removed. Deleting an array element shifts later
// elements down; callers deleting several indices should go in reverse order.
func Delete(root ir.Value, kp Keypath) (ir.Value, bool) {
	if len(kp) == 0 {
		return root, false
	}
	return del(root, kp, 0)
}

func del(cur ir.Value, kp Keypath, depth int) (ir.Value, bool) {
	step := kp[depth]
	last := depth == len(kp)-1

	if step.IsIndex {
		arr, ok := cur.(ir.Array)
		if !ok || step.Index < 0 || step.Index >= len(arr) {
			return cur, false
		}
		if last {
			return append(arr[:step.Index:step.Index], arr[step.Index+1:]...), true
		}
		child, removed := del(arr[step.Index], kp, depth+1)
		arr[step.Index] = child
		return arr, removed
	}

	obj, ok := cur.(ir.Object)
	if !ok {
		return cur, false
	}
	child, ok := obj[step.Key]
	if !ok {
		return cur, false
	}
	if last {
		delete(obj, step.Key)
		return obj, true
	}
	child, removed := del(child, kp, depth+1)
	obj[step.Key] = child
	return obj, removed
}

// Clone returns a deep copy of v. Scalars are immutable and shared.
func Clone(v ir.Value) ir.Value {
	switch val := v.(type) {
	case ir.Array:
		out := make(ir.Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case ir.Object:
		out := make(ir.Object, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}
