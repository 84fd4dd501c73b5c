package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Segment is one step of an output path: an object key, or a wildcard that
// matches every index of an array.
type Segment struct {
	Key      string
	Wildcard bool
}

// Key returns a key segment.
func Key(name string) Segment {
	return Segment{Key: name}
}

// Any returns a wildcard array-index segment.
func Any() Segment {
	return Segment{Wildcard: true}
}

// Path locates a field inside a nested document.
// A nil Path means "no output path"; an empty non-nil Path is the document root.
type Path []Segment

// P builds a path from keys; "[]" becomes a wildcard segment.
// Example: P("items", "[]", "name")
func P(parts ...string) Path {
	path := make(Path, 0, len(parts))
	for _, p := range parts {
		if p == "[]" {
			path = append(path, Any())
		} else {
			path = append(path, Key(p))
		}
	}
	return path
}

// ParsePath parses the string form of a path.
// Supports: "field", "nested.field", "items[]", "items[].name", "m[][]".
// Backslash escapes '.', '[' and '\' inside keys.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, errors.New("empty path")
	}

	var (
		path    Path
		key     strings.Builder
		hasKey  bool
		escaped bool
	)

	flush := func() error {
		if !hasKey {
			return fmt.Errorf("invalid path %q: empty segment", s)
		}
		path = append(path, Key(key.String()))
		key.Reset()
		hasKey = false
		return nil
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			key.WriteByte(c)
			hasKey = true
			escaped = false
		case c == '\\':
			escaped = true
		case c == '.':
			if hasKey {
				if err := flush(); err != nil {
					return nil, err
				}
			} else if len(path) == 0 || !path[len(path)-1].Wildcard {
				return nil, fmt.Errorf("invalid path %q: empty segment", s)
			}
			if i == len(s)-1 {
				return nil, fmt.Errorf("invalid path %q: trailing dot", s)
			}
		case c == '[':
			if i+1 >= len(s) || s[i+1] != ']' {
				return nil, fmt.Errorf("invalid path %q: unterminated '['", s)
			}
			if hasKey {
				if err := flush(); err != nil {
					return nil, err
				}
			} else if len(path) == 0 {
				return nil, fmt.Errorf("invalid path %q: wildcard without field name", s)
			}
			path = append(path, Any())
			i++
			if i+1 < len(s) && s[i+1] != '.' && s[i+1] != '[' {
				return nil, fmt.Errorf("invalid path %q: expected '.' after ']'", s)
			}
		default:
			key.WriteByte(c)
			hasKey = true
		}
	}

	if escaped {
		return nil, fmt.Errorf("invalid path %q: dangling escape", s)
	}
	if hasKey {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return path, nil
}

// MustParsePath is like ParsePath but panics on error.
// Use only in tests or with constant inputs.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the path; it round-trips through ParsePath.
// A nil path renders as "".
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.Wildcard {
			b.WriteString("[]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		for _, r := range seg.Key {
			if r == '.' || r == '[' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Equal reports whether two paths have the same segments. A nil path only
// equals another nil path.
func (p Path) Equal(other Path) bool {
	if (p == nil) != (other == nil) || len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of p, preserving nil.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return append(Path{}, p...)
}

// Last returns the final segment. The path must be non-empty.
func (p Path) Last() Segment {
	return p[len(p)-1]
}

// Parent returns the path without its final segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return append(Path{}, p[:len(p)-1]...)
}

// Append returns a new path with segs appended.
func (p Path) Append(segs ...Segment) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// Wildcards counts the wildcard segments in p.
func (p Path) Wildcards() int {
	n := 0
	for _, seg := range p {
		if seg.Wildcard {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the path as its string form, or null when nil.
func (p Path) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a path string; null decodes to a nil path and ""
// to the document root.
func (p *Path) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*p = Path{}
		return nil
	}
	parsed, err := ParsePath(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
