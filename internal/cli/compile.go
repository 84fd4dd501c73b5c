package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldflow/internal/codec"
	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Pipeline string // pipeline name when the file declares several
	Output   string // output file path (.json, .yaml or .yml)
}

// CompilationResult summarizes a compiled pipeline.
type CompilationResult struct {
	Pipeline   string        `json:"pipeline"`
	Hash       string        `json:"hash"`
	Fields     int           `json:"fields"`
	Nodes      int           `json:"nodes"`
	Edges      int           `json:"edges"`
	Output     string        `json:"output,omitempty"`
	Definition ir.Definition `json:"definition"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <pipeline.cue>",
		Short: "Compile a CUE pipeline to a graph definition",
		Long: `Compile a CUE pipeline declaration into a lineage graph definition.

The compiler validates field names and step references, replays every step
as an engine edit and writes the resulting definition as JSON or YAML,
chosen by the output file extension.

Examples:
  fieldflow compile ./pipelines/people.cue
  fieldflow compile ./pipelines/people.cue --pipeline contacts -o contacts.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Pipeline, "pipeline", "p", "", "pipeline to compile when the file declares several")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (.json, .yaml or .yml)")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if !isCUEFile(path) {
		return formatter.Fail(&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("not a CUE file: %s", path)})
	}

	formatter.VerboseLog("Compiling %s", path)
	eng, err := loadEngine(path, opts.Pipeline, engine.WithLogger(newLogger(formatter.Verbose, formatter.GetErrWriter())))
	if err != nil {
		return formatter.Fail(err)
	}

	def := eng.Definition()
	hash, err := eng.Hash()
	if err != nil {
		return formatter.Fail(err)
	}

	if opts.Output != "" {
		if err := codec.WriteFile(opts.Output, def); err != nil {
			return formatter.Fail(&LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
	}

	result := CompilationResult{
		Pipeline:   def.Name,
		Hash:       hash,
		Fields:     len(def.Fields),
		Nodes:      len(def.Nodes),
		Edges:      len(def.Edges),
		Output:     opts.Output,
		Definition: def,
	}
	return formatter.Report(Report{Data: result, Text: result.writeText})
}

func (result CompilationResult) writeText(w io.Writer) error {
	fmt.Fprintf(w, "✓ Compiled pipeline %s: %d field(s), %d node(s), %d edge(s)\n",
		result.Pipeline, result.Fields, result.Nodes, result.Edges)
	fmt.Fprintf(w, "  hash: %s\n", result.Hash)

	if result.Output != "" {
		fmt.Fprintf(w, "Wrote definition to %s\n", result.Output)
		return nil
	}

	fmt.Fprintln(w)
	return codec.Encode(w, result.Definition, codec.FormatYAML)
}
