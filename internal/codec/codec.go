// Package codec reads and writes pipeline definitions as JSON or YAML.
//
// Both formats share one document shape: paths in their string form, a
// removed field's path as null, and a format version. Decoding rejects
// unknown keys. A definition survives Encode then Decode unchanged.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldflow/internal/ir"
)

// Format selects the encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported definition file extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

type document struct {
	Version   string     `json:"version" yaml:"version"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	NextField ir.FieldID `json:"next_field,omitempty" yaml:"next_field,omitempty"`
	NextNode  ir.NodeID  `json:"next_node,omitempty" yaml:"next_node,omitempty"`
	Fields    []field    `json:"fields" yaml:"fields"`
	Nodes     []node     `json:"nodes" yaml:"nodes"`
	Edges     []edge     `json:"edges" yaml:"edges"`
}

type field struct {
	ID      ir.FieldID   `json:"id" yaml:"id"`
	Path    *string      `json:"path" yaml:"path"`
	Type    ir.FieldType `json:"type" yaml:"type"`
	Enabled *bool        `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

type node struct {
	ID      ir.NodeID    `json:"id" yaml:"id"`
	Kind    ir.Kind      `json:"kind" yaml:"kind"`
	Field   ir.FieldID   `json:"field" yaml:"field"`
	Path    *string      `json:"path" yaml:"path"`
	Inputs  []ir.FieldID `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []ir.FieldID `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Options *ir.Options  `json:"options,omitempty" yaml:"options,omitempty"`
}

type edge struct {
	From  ir.NodeID    `json:"from" yaml:"from"`
	To    ir.NodeID    `json:"to" yaml:"to"`
	Label ir.EdgeLabel `json:"label" yaml:"label"`
}

// Encode writes def in the given format.
func Encode(w io.Writer, def ir.Definition, format Format) error {
	d := fromDefinition(def)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Marshal returns def encoded in the given format.
func Marshal(def ir.Definition, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, def, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one definition in the given format.
func Decode(r io.Reader, format Format) (ir.Definition, error) {
	var d document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return ir.Definition{}, fmt.Errorf("decode json definition: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			if errors.Is(err, io.EOF) {
				return ir.Definition{}, errors.New("decode yaml definition: empty document")
			}
			return ir.Definition{}, fmt.Errorf("decode yaml definition: %w", err)
		}
	default:
		return ir.Definition{}, fmt.Errorf("unknown format %q", format)
	}
	return d.toDefinition()
}

// Unmarshal decodes data in the given format.
func Unmarshal(data []byte, format Format) (ir.Definition, error) {
	return Decode(bytes.NewReader(data), format)
}

// ReadFile loads a definition, choosing the format from the extension.
func ReadFile(path string) (ir.Definition, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return ir.Definition{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return ir.Definition{}, err
	}
	defer f.Close()

	def, err := Decode(f, format)
	if err != nil {
		return ir.Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// WriteFile saves a definition, choosing the format from the extension.
func WriteFile(path string, def ir.Definition) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(def, format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fromDefinition(def ir.Definition) document {
	def.Sort()
	d := document{
		Version:   ir.FormatVersion,
		Name:      def.Name,
		NextField: def.NextField,
		NextNode:  def.NextNode,
		Fields:    make([]field, 0, len(def.Fields)),
		Nodes:     make([]node, 0, len(def.Nodes)),
		Edges:     make([]edge, 0, len(def.Edges)),
	}
	for _, f := range def.Fields {
		enabled := f.Enabled
		d.Fields = append(d.Fields, field{ID: f.ID, Path: pathString(f.Path), Type: f.Type, Enabled: &enabled})
	}
	for _, n := range def.Nodes {
		out := node{ID: n.ID, Kind: n.Kind, Field: n.Field, Path: pathString(n.Path), Inputs: n.Inputs, Outputs: n.Outputs}
		if !n.Options.Equal(ir.Options{}) {
			opts := n.Options.Clone()
			out.Options = &opts
		}
		d.Nodes = append(d.Nodes, out)
	}
	for _, e := range def.Edges {
		d.Edges = append(d.Edges, edge(e))
	}
	return d
}

func (d document) toDefinition() (ir.Definition, error) {
	if d.Version != "" && d.Version != ir.FormatVersion {
		return ir.Definition{}, fmt.Errorf("unsupported definition version %q (want %q)", d.Version, ir.FormatVersion)
	}
	def := ir.Definition{
		Name:      d.Name,
		NextField: d.NextField,
		NextNode:  d.NextNode,
		Fields:    make([]ir.Field, 0, len(d.Fields)),
		Nodes:     make([]ir.Node, 0, len(d.Nodes)),
		Edges:     make([]ir.Edge, 0, len(d.Edges)),
	}
	for _, f := range d.Fields {
		path, err := parsePath(f.Path)
		if err != nil {
			return ir.Definition{}, fmt.Errorf("field %d: %w", f.ID, err)
		}
		typ := f.Type
		if typ == "" {
			typ = ir.TypeUnknown
		}
		def.Fields = append(def.Fields, ir.Field{ID: f.ID, Path: path, Type: typ, Enabled: f.Enabled == nil || *f.Enabled})
	}
	for _, n := range d.Nodes {
		path, err := parsePath(n.Path)
		if err != nil {
			return ir.Definition{}, fmt.Errorf("node %d: %w", n.ID, err)
		}
		out := ir.Node{ID: n.ID, Kind: n.Kind, Field: n.Field, Path: path, Inputs: nilIfEmpty(n.Inputs), Outputs: nilIfEmpty(n.Outputs)}
		if n.Options != nil {
			out.Options = n.Options.Clone()
		}
		def.Nodes = append(def.Nodes, out)
	}
	for _, e := range d.Edges {
		def.Edges = append(def.Edges, ir.Edge(e))
	}
	def.Sort()
	return def, nil
}

func pathString(p ir.Path) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}

// parsePath maps null to a nil path. The empty string is the document root.
func parsePath(s *string) (ir.Path, error) {
	switch {
	case s == nil:
		return nil, nil
	case *s == "":
		return ir.Path{}, nil
	default:
		return ir.ParsePath(*s)
	}
}

func nilIfEmpty(ids []ir.FieldID) []ir.FieldID {
	if len(ids) == 0 {
		return nil
	}
	return ids
}
