package ir

import "fmt"

// FieldID identifies a field in the registry. Zero means "no field".
type FieldID int64

// NodeID identifies a node in the lineage graph. Zero means "no node".
type NodeID int64

// FieldType is the declared type of a field, consumed by mapping generators.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeDate    FieldType = "date"
	TypeUnknown FieldType = "unknown"
)

// ValidFieldTypes defines allowed field types.
var ValidFieldTypes = map[FieldType]bool{
	TypeString:  true,
	TypeInteger: true,
	TypeFloat:   true,
	TypeBoolean: true,
	TypeObject:  true,
	TypeArray:   true,
	TypeDate:    true,
	TypeUnknown: true,
}

// Field is one field of the document schema.
// A nil Path means the field was removed from the output.
type Field struct {
	ID      FieldID   `json:"id"`
	Path    Path      `json:"path"`
	Type    FieldType `json:"type"`
	Enabled bool      `json:"enabled"`
}

// FieldMeta is the read-only view of a field handed to mapping generators.
type FieldMeta struct {
	ID      FieldID   `json:"id"`
	Path    string    `json:"path"`
	Removed bool      `json:"removed,omitempty"`
	Type    FieldType `json:"type"`
	Enabled bool      `json:"enabled"`
}

// Kind is the closed set of node kinds. Identity kinds mark where a field's
// lineage starts or ends; the rest are transformation operators.
type Kind string

const (
	KindOrganic   Kind = "organic"
	KindSynthetic Kind = "synthetic"
	KindRemoval   Kind = "removal"
	KindRename    Kind = "rename"

	KindCase      Kind = "case"
	KindSplit     Kind = "split"
	KindJoin      Kind = "join"
	KindRenameKey Kind = "rename_key"
	KindPut       Kind = "put"
	KindGet       Kind = "get"
	KindFilter    Kind = "filter"
	KindDuplicate Kind = "duplicate"
	KindPrepend   Kind = "prepend"
	KindAppend    Kind = "append"
	KindPlus      Kind = "plus"
	KindSubstring Kind = "substring"
	KindLoad      Kind = "load"
	KindStore     Kind = "store"
)

// AllKinds lists every kind in declaration order.
var AllKinds = []Kind{
	KindOrganic, KindSynthetic, KindRemoval, KindRename,
	KindCase, KindSplit, KindJoin, KindRenameKey, KindPut, KindGet, KindFilter,
	KindDuplicate, KindPrepend, KindAppend, KindPlus, KindSubstring, KindLoad, KindStore,
}

// IsIdentity reports whether k marks the start or end of a lineage.
func (k Kind) IsIdentity() bool {
	switch k {
	case KindOrganic, KindSynthetic, KindRemoval, KindRename:
		return true
	}
	return false
}

// IsStart reports whether k starts a lineage (organic or synthetic).
func (k Kind) IsStart() bool {
	return k == KindOrganic || k == KindSynthetic
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// CaseMode selects the output casing of a case transform.
type CaseMode string

const (
	CaseUpper  CaseMode = "upper"
	CaseLower  CaseMode = "lower"
	CaseTitle  CaseMode = "title"
	CaseCamel  CaseMode = "camel"
	CasePascal CaseMode = "pascal"
)

// Options carries kind-specific configuration. Each kind reads only the
// fields documented for it; the catalog rejects missing required options.
type Options struct {
	Case      CaseMode `json:"case,omitempty" yaml:"case,omitempty"`           // case
	Delimiter string   `json:"delimiter,omitempty" yaml:"delimiter,omitempty"` // split
	Separator string   `json:"separator,omitempty" yaml:"separator,omitempty"` // join
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`           // rename_key
	Into      string   `json:"into,omitempty" yaml:"into,omitempty"`           // put (path string)
	Depth     int      `json:"depth,omitempty" yaml:"depth,omitempty"`         // get
	Expr      string   `json:"expr,omitempty" yaml:"expr,omitempty"`           // filter (CEL)
	Text      string   `json:"text,omitempty" yaml:"text,omitempty"`           // prepend, append
	Amount    float64  `json:"amount,omitempty" yaml:"amount,omitempty"`       // plus
	Start     int      `json:"start,omitempty" yaml:"start,omitempty"`         // substring
	End       *int     `json:"end,omitempty" yaml:"end,omitempty"`             // substring; nil or -1 = to end
	Variable  string   `json:"variable,omitempty" yaml:"variable,omitempty"`   // load, store
}

// Clone returns a copy that shares no pointers with o.
func (o Options) Clone() Options {
	if o.End != nil {
		end := *o.End
		o.End = &end
	}
	return o
}

// Equal reports whether two option sets are identical.
func (o Options) Equal(other Options) bool {
	a, b := o, other
	if (a.End == nil) != (b.End == nil) {
		return false
	}
	if a.End != nil && *a.End != *b.End {
		return false
	}
	a.End, b.End = nil, nil
	return a == b
}

// Node is one vertex of the lineage graph.
//
// Field is the field whose lineage the node sits on; Path is that field's
// output path after the node runs (nil for removal nodes). Inputs lists the
// fields the node reads, Outputs the fields it introduces (split, duplicate).
type Node struct {
	ID      NodeID    `json:"id"`
	Kind    Kind      `json:"kind"`
	Field   FieldID   `json:"field"`
	Path    Path      `json:"path"`
	Inputs  []FieldID `json:"inputs,omitempty"`
	Outputs []FieldID `json:"outputs,omitempty"`
	Options Options   `json:"options"`
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	n.Path = n.Path.Clone()
	if n.Inputs != nil {
		n.Inputs = append([]FieldID(nil), n.Inputs...)
	}
	if n.Outputs != nil {
		n.Outputs = append([]FieldID(nil), n.Outputs...)
	}
	n.Options = n.Options.Clone()
	return n
}

// String renders the node for logs and error messages.
func (n Node) String() string {
	return fmt.Sprintf("%s#%d(field=%d)", n.Kind, n.ID, n.Field)
}

// EdgeLabel distinguishes the lineage spine from field-introducing edges.
type EdgeLabel string

const (
	// LabelSame is ordinary data flow along one field's lineage.
	LabelSame EdgeLabel = "same"
	// LabelSynthetic marks a dependency that introduces or consumes another
	// field. It orders execution but is not part of any lineage spine.
	LabelSynthetic EdgeLabel = "synthetic"
)

// Valid reports whether l is a known edge label.
func (l EdgeLabel) Valid() bool {
	return l == LabelSame || l == LabelSynthetic
}

// Edge is a directed, labeled edge between two nodes.
type Edge struct {
	From  NodeID    `json:"from"`
	To    NodeID    `json:"to"`
	Label EdgeLabel `json:"label"`
}
