// Package registry owns field identity, declared type and output path.
//
// The registry has no side effects beyond its own map. Callers (the engine)
// keep the lineage graph consistent with path changes and run the validator.
package registry

import (
	"fmt"
	"slices"

	"github.com/roach88/fieldflow/internal/ir"
)

// Registry maps field ids to field metadata. Ids are never reused, even
// after a field is removed.
//
// Registry is not safe for concurrent mutation; the engine serializes
// writers and publishes immutable clones to readers.
type Registry struct {
	fields map[ir.FieldID]*ir.Field
	next   ir.FieldID
}

// New creates an empty registry. The first allocated id is 1.
func New() *Registry {
	return &Registry{
		fields: make(map[ir.FieldID]*ir.Field),
		next:   1,
	}
}

// Allocate registers a new enabled field at path and returns its id.
func (r *Registry) Allocate(path ir.Path, typ ir.FieldType) (ir.FieldID, error) {
	if path == nil {
		return 0, fmt.Errorf("allocate field: nil path")
	}
	if typ == "" {
		typ = ir.TypeUnknown
	}
	if !ir.ValidFieldTypes[typ] {
		return 0, fmt.Errorf("allocate field: invalid type %q", typ)
	}

	id := r.next
	r.next++
	r.fields[id] = &ir.Field{ID: id, Path: path.Clone(), Type: typ, Enabled: true}
	return id, nil
}

// Has reports whether id is registered (live or removed).
func (r *Registry) Has(id ir.FieldID) bool {
	_, ok := r.fields[id]
	return ok
}

// Path returns a copy of the field's current output path; nil once removed.
func (r *Registry) Path(id ir.FieldID) (ir.Path, error) {
	f, ok := r.fields[id]
	if !ok {
		return nil, fmt.Errorf("unknown field %d", id)
	}
	return f.Path.Clone(), nil
}

// SetPath changes the field's output path. A nil path marks it removed.
func (r *Registry) SetPath(id ir.FieldID, path ir.Path) error {
	f, ok := r.fields[id]
	if !ok {
		return fmt.Errorf("unknown field %d", id)
	}
	f.Path = path.Clone()
	return nil
}

// SetType changes the field's declared type.
func (r *Registry) SetType(id ir.FieldID, typ ir.FieldType) error {
	f, ok := r.fields[id]
	if !ok {
		return fmt.Errorf("unknown field %d", id)
	}
	if !ir.ValidFieldTypes[typ] {
		return fmt.Errorf("invalid type %q", typ)
	}
	f.Type = typ
	return nil
}

// SetEnabled toggles whether the field is emitted to the target mapping.
func (r *Registry) SetEnabled(id ir.FieldID, enabled bool) error {
	f, ok := r.fields[id]
	if !ok {
		return fmt.Errorf("unknown field %d", id)
	}
	f.Enabled = enabled
	return nil
}

// IsLive reports whether the field exists and still has an output path.
func (r *Registry) IsLive(id ir.FieldID) bool {
	f, ok := r.fields[id]
	return ok && f.Path != nil
}

// Field returns a copy of the field record.
func (r *Registry) Field(id ir.FieldID) (ir.Field, bool) {
	f, ok := r.fields[id]
	if !ok {
		return ir.Field{}, false
	}
	cp := *f
	cp.Path = f.Path.Clone()
	return cp, true
}

// IDs returns all registered field ids in ascending order.
func (r *Registry) IDs() []ir.FieldID {
	ids := make([]ir.FieldID, 0, len(r.fields))
	for id := range r.fields {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of registered fields.
func (r *Registry) Len() int {
	return len(r.fields)
}

// Next returns the id the next Allocate will hand out.
func (r *Registry) Next() ir.FieldID {
	return r.next
}

// Fields returns copies of all field records in id order.
func (r *Registry) Fields() []ir.Field {
	out := make([]ir.Field, 0, len(r.fields))
	for _, id := range r.IDs() {
		f, _ := r.Field(id)
		out = append(out, f)
	}
	return out
}

// Snapshot returns the read-only metadata consumed by mapping generators.
func (r *Registry) Snapshot() []ir.FieldMeta {
	out := make([]ir.FieldMeta, 0, len(r.fields))
	for _, id := range r.IDs() {
		f := r.fields[id]
		out = append(out, ir.FieldMeta{
			ID:      f.ID,
			Path:    f.Path.String(),
			Removed: f.Path == nil,
			Type:    f.Type,
			Enabled: f.Enabled,
		})
	}
	return out
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	cp := &Registry{
		fields: make(map[ir.FieldID]*ir.Field, len(r.fields)),
		next:   r.next,
	}
	for id, f := range r.fields {
		fc := *f
		fc.Path = f.Path.Clone()
		cp.fields[id] = &fc
	}
	return cp
}

// Restore builds a registry from serialized fields. next must exceed every
// field id; ids are never reused across a round trip.
func Restore(fields []ir.Field, next ir.FieldID) (*Registry, error) {
	r := &Registry{fields: make(map[ir.FieldID]*ir.Field, len(fields)), next: next}
	for _, f := range fields {
		if f.ID <= 0 {
			return nil, fmt.Errorf("restore registry: invalid field id %d", f.ID)
		}
		if _, dup := r.fields[f.ID]; dup {
			return nil, fmt.Errorf("restore registry: duplicate field id %d", f.ID)
		}
		if f.ID >= next {
			return nil, fmt.Errorf("restore registry: field id %d not below next id %d", f.ID, next)
		}
		if !ir.ValidFieldTypes[f.Type] {
			return nil, fmt.Errorf("restore registry: field %d: invalid type %q", f.ID, f.Type)
		}
		fc := f
		fc.Path = f.Path.Clone()
		r.fields[f.ID] = &fc
	}
	return r, nil
}
