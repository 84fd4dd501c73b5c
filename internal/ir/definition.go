package ir

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Definition is the serializable form of a lineage graph: field metadata,
// nodes and edges, plus the id counters so that ids are never reused after
// a round trip. Fields, Nodes and Edges are kept in ascending id order.
type Definition struct {
	Name      string  `json:"name,omitempty"`
	NextField FieldID `json:"next_field"`
	NextNode  NodeID  `json:"next_node"`
	Fields    []Field `json:"fields"`
	Nodes     []Node  `json:"nodes"`
	Edges     []Edge  `json:"edges"`
}

// Sort orders fields and nodes by id and edges by (from, to, label).
func (d *Definition) Sort() {
	slices.SortFunc(d.Fields, func(a, b Field) int { return compareIDs(a.ID, b.ID) })
	slices.SortFunc(d.Nodes, func(a, b Node) int { return compareIDs(a.ID, b.ID) })
	slices.SortFunc(d.Edges, CompareEdges)
}

// CompareEdges orders edges by source, then target, then label.
func CompareEdges(a, b Edge) int {
	if c := compareIDs(a.From, b.From); c != 0 {
		return c
	}
	if c := compareIDs(a.To, b.To); c != 0 {
		return c
	}
	switch {
	case a.Label < b.Label:
		return -1
	case a.Label > b.Label:
		return 1
	}
	return 0
}

func compareIDs[T ~int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Canonical returns the definition as canonical JSON.
func (d Definition) Canonical() ([]byte, error) {
	d.Fields = slices.Clone(d.Fields)
	d.Nodes = slices.Clone(d.Nodes)
	d.Edges = slices.Clone(d.Edges)
	d.Sort()
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("canonical definition: %w", err)
	}
	v, err := UnmarshalValue(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical definition: %w", err)
	}
	return MarshalCanonical(v)
}
