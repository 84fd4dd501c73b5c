package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldflow/internal/doc"
	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/store"
)

// TransformOptions holds flags for the transform command.
type TransformOptions struct {
	*RootOptions
	Pipeline string
	Database string // record the version and the run when set
	Output   string // JSON Lines output file; stdout when empty
	Workers  int

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	RunIDGenerator engine.RunIDGenerator
}

// TransformSummary describes a finished batch.
type TransformSummary struct {
	RunID       string `json:"run_id"`
	Pipeline    string `json:"pipeline"`
	Version     int64  `json:"version,omitempty"` // stored version, when recorded
	Hash        string `json:"hash"`
	Documents   int    `json:"documents"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	FieldErrors int    `json:"field_errors"`
}

// NewTransformCommand creates the transform command.
func NewTransformCommand(rootOpts *RootOptions) *cobra.Command {
	return newTransformCommand(&TransformOptions{RootOptions: rootOpts})
}

func newTransformCommand(opts *TransformOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform <pipeline-file> [documents.jsonl]",
		Short: "Run a pipeline over JSON Lines documents",
		Long: `Run a pipeline over a batch of JSON documents, one object per line.

Documents are read from the given file, or from stdin when it is omitted
or "-". Output documents are written as canonical JSON Lines in input
order; documents that failed are written as null. Field errors never stop
a document.

With --db the pipeline version and the run summary, including every field
error, are recorded in the SQLite store.

Example:
  fieldflow transform ./pipelines/people.cue people.jsonl --pipeline people
  cat people.jsonl | fieldflow transform people.yaml --db ./fieldflow.db -o out.jsonl`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 2 {
				input = args[1]
			}
			return runTransform(opts, args[0], input, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Pipeline, "pipeline", "p", "", "pipeline to run when the file declares several")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run in")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "concurrent documents (default GOMAXPROCS)")

	return cmd
}

func runTransform(opts *TransformOptions, pipelinePath, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.Verbose, formatter.GetErrWriter())

	engOpts := []engine.EngineOption{engine.WithLogger(logger)}
	if opts.RunIDGenerator != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.RunIDGenerator))
	}
	eng, err := loadEngine(pipelinePath, opts.Pipeline, engOpts...)
	if err != nil {
		return formatter.Fail(err)
	}

	docs, err := readDocuments(input, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(&LoadError{Code: ErrCodeLoadFailed, Message: err.Error()})
	}
	logger.Debug("documents read", "count", len(docs), "input", input)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, canceling batch", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	run, err := eng.TransformAll(ctx, docs, opts.Workers)
	if err != nil {
		return WrapExitError(ExitFailure, "batch aborted", err)
	}

	hash, err := eng.Hash()
	if err != nil {
		return formatter.Fail(err)
	}
	summary := TransformSummary{
		RunID:       run.ID,
		Pipeline:    run.Pipeline,
		Hash:        hash,
		Documents:   len(run.Results),
		Completed:   run.Completed(),
		Failed:      len(run.Results) - run.Completed(),
		FieldErrors: run.FieldErrors(),
	}

	if opts.Database != "" {
		version, err := recordRun(ctx, opts.Database, eng, run, logger)
		if err != nil {
			return formatter.Fail(err)
		}
		summary.Version = version
	}

	if err := writeOutputs(opts.Output, cmd.OutOrStdout(), run); err != nil {
		return formatter.Fail(&LoadError{Code: ErrCodeWriteFailed, Message: err.Error()})
	}

	for i, res := range run.Results {
		for _, fe := range res.Errors {
			formatter.VerboseLog("document %d: %s", i, fe.Error())
		}
		if res.Err != nil {
			formatter.VerboseLog("document %d failed: %v", i, res.Err)
		}
	}

	return outputTransformSummary(opts, formatter, summary)
}

func readDocuments(input string, stdin io.Reader) ([]ir.Value, error) {
	r := stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	objs, err := doc.ReadJSONLines(r)
	if err != nil {
		return nil, err
	}
	docs := make([]ir.Value, len(objs))
	for i, o := range objs {
		docs[i] = o
	}
	return docs, nil
}

// writeOutputs writes one line per input document, null for failures, so
// line numbers stay aligned with the input.
func writeOutputs(path string, stdout io.Writer, run *engine.Run) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	out := make([]ir.Value, len(run.Results))
	for i, res := range run.Results {
		if res.State == engine.StateCompleted {
			out[i] = res.Output
		} else {
			out[i] = ir.Null{}
		}
	}
	return doc.WriteJSONLines(w, out)
}

// recordRun pushes the pipeline version and stores the run summary.
func recordRun(ctx context.Context, dbPath string, eng *engine.Engine, run *engine.Run, logger *slog.Logger) (int64, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return 0, &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("failed to open database: %v", err)}
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	gv, inserted, err := st.PushVersion(ctx, eng.Definition())
	if err != nil {
		return 0, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	rec, errs := run.Record(gv.Hash)
	if err := st.WriteRun(ctx, rec, errs); err != nil {
		return 0, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	logger.Info("run recorded", "run", rec.ID, "pipeline", gv.Pipeline, "version", gv.Version, "new_version", inserted)
	return gv.Version, nil
}

// outputTransformSummary prints the batch summary. With documents on
// stdout the summary goes to stderr so the stream stays parseable.
func outputTransformSummary(opts *TransformOptions, formatter *OutputFormatter, summary TransformSummary) error {
	w := formatter.Writer
	if opts.Output == "" {
		w = formatter.GetErrWriter()
	}

	report := Report{Data: summary, RunID: summary.RunID, Text: summary.writeText}
	if summary.Failed > 0 {
		report.Failure = &CLIError{Code: "E_TRANSFORM", Message: fmt.Sprintf("%d document(s) failed", summary.Failed)}
	}
	return formatter.ReportTo(w, report)
}

func (summary TransformSummary) writeText(w io.Writer) error {
	mark := "✓"
	if summary.Failed > 0 {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s Run %s: %d document(s), %d completed, %d failed, %d field error(s)\n",
		mark, summary.RunID, summary.Documents, summary.Completed, summary.Failed, summary.FieldErrors)
	if summary.Version > 0 {
		fmt.Fprintf(w, "  recorded against %s v%d\n", summary.Pipeline, summary.Version)
	}
	return nil
}
