package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
)

// InspectOptions holds flags shared by the read-only graph commands.
type InspectOptions struct {
	*RootOptions
	Pipeline string
}

// NodeView is the printable form of a graph node.
type NodeView struct {
	ID    ir.NodeID  `json:"id"`
	Kind  ir.Kind    `json:"kind"`
	Field ir.FieldID `json:"field"`
	Path  string     `json:"path"`
}

func newNodeView(n ir.Node) NodeView {
	return NodeView{ID: n.ID, Kind: n.Kind, Field: n.Field, Path: n.Path.String()}
}

func newInspectCommand(rootOpts *RootOptions, use, short, long string, args cobra.PositionalArgs, run func(*InspectOptions, *engine.Engine, []string, *OutputFormatter) error) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			eng, err := loadEngine(args[0], opts.Pipeline, engine.WithLogger(newLogger(opts.Verbose, formatter.GetErrWriter())))
			if err != nil {
				return formatter.Fail(err)
			}
			return run(opts, eng, args[1:], formatter)
		},
	}

	cmd.Flags().StringVarP(&opts.Pipeline, "pipeline", "p", "", "pipeline to load when the file declares several")

	return cmd
}

// NewFieldsCommand creates the fields command.
func NewFieldsCommand(rootOpts *RootOptions) *cobra.Command {
	return newInspectCommand(rootOpts,
		"fields <pipeline-file>",
		"List field metadata",
		`List every field a pipeline knows, in id order, with its current path,
type and enabled flag. Removed fields are listed with an empty path.`,
		cobra.ExactArgs(1),
		runFields,
	)
}

func runFields(_ *InspectOptions, eng *engine.Engine, _ []string, formatter *OutputFormatter) error {
	fields := eng.Fields()
	return formatter.Report(Report{Data: fields, Text: func(w io.Writer) error {
		fmt.Fprintf(w, "Pipeline %s: %d field(s)\n\n", eng.Name(), len(fields))
		for _, f := range fields {
			path := f.Path
			if f.Removed {
				path = "(removed)"
			}
			state := ""
			if !f.Enabled {
				state = " disabled"
			}
			fmt.Fprintf(w, "  %3d  %-24s %s%s\n", f.ID, path, f.Type, state)
		}
		return nil
	}})
}

// NewOrderCommand creates the order command.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	return newInspectCommand(rootOpts,
		"order <pipeline-file>",
		"Print the execution order",
		`Print the order in which nodes run: a topological order of the graph,
ties broken by ascending node id.`,
		cobra.ExactArgs(1),
		runOrder,
	)
}

func runOrder(_ *InspectOptions, eng *engine.Engine, _ []string, formatter *OutputFormatter) error {
	p, err := eng.Plan()
	if err != nil {
		return formatter.Fail(err)
	}

	nodes := make([]NodeView, 0, len(p.Order()))
	for _, id := range p.Order() {
		n, _ := eng.Node(id)
		nodes = append(nodes, newNodeView(n))
	}

	return formatter.Report(Report{Data: nodes, Text: func(w io.Writer) error {
		for i, n := range nodes {
			fmt.Fprintf(w, "%3d. %s#%d field=%d path=%s\n", i+1, n.Kind, n.ID, n.Field, n.Path)
		}
		return nil
	}})
}

// LineageResult is the lineage spine of one field.
type LineageResult struct {
	Field ir.FieldID `json:"field"`
	Path  string     `json:"path"`
	Nodes []NodeView `json:"nodes"`
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand(rootOpts *RootOptions) *cobra.Command {
	return newInspectCommand(rootOpts,
		"lineage <pipeline-file> <field-path>",
		"Show a field's lineage spine",
		`Show the chain of nodes a field's value passes through, from the node
that starts the field to its terminal node.

Example:
  fieldflow lineage ./pipelines/people.cue surname --pipeline people`,
		cobra.ExactArgs(2),
		runLineage,
	)
}

func runLineage(_ *InspectOptions, eng *engine.Engine, args []string, formatter *OutputFormatter) error {
	path := args[0]

	var field *ir.FieldMeta
	for _, f := range eng.Fields() {
		if !f.Removed && f.Path == path {
			field = &f
			break
		}
	}
	if field == nil {
		return formatter.Fail(&LoadError{Code: string(engine.ErrCodeUnknownField), Message: fmt.Sprintf("no live field at %q", path)})
	}

	ids, err := eng.Lineage(field.ID)
	if err != nil {
		return formatter.Fail(err)
	}
	result := LineageResult{Field: field.ID, Path: field.Path, Nodes: make([]NodeView, 0, len(ids))}
	for _, id := range ids {
		n, _ := eng.Node(id)
		result.Nodes = append(result.Nodes, newNodeView(n))
	}

	return formatter.Report(Report{Data: result, Text: func(w io.Writer) error {
		steps := make([]string, len(result.Nodes))
		for i, n := range result.Nodes {
			steps[i] = fmt.Sprintf("%s#%d", n.Kind, n.ID)
		}
		_, err := fmt.Fprintf(w, "%s (field %d): %s\n", result.Path, result.Field, strings.Join(steps, " → "))
		return err
	}})
}
