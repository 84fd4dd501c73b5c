package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	StoreOptions
	RunID string // optional - show one run with its field errors
}

// RunDetail is a run together with its recorded field errors.
type RunDetail struct {
	Run    ir.RunRecord  `json:"run"`
	Errors []ir.RunError `json:"errors"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Query recorded runs",
		Long: `List the recorded runs of a pipeline, oldest first, or show one run
with every field error it recorded.

Examples:
  fieldflow runs --db ./fieldflow.db --pipeline people
  fieldflow runs --db ./fieldflow.db --run 01936f5e-...
  fieldflow runs --db ./fieldflow.db --run 01936f5e-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}
	addStoreFlags(cmd, &opts.StoreOptions)
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to show in detail")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	if opts.RunID == "" && opts.Pipeline == "" {
		return formatter.Fail(&LoadError{Code: ErrCodeGeneric, Message: "one of --pipeline or --run is required"})
	}

	st, err := openStore(opts.Database, false)
	if err != nil {
		return formatter.Fail(err)
	}
	defer st.Close()

	if opts.RunID != "" {
		return showRun(ctx, st, opts.RunID, formatter)
	}

	runs, err := st.ListRuns(ctx, opts.Pipeline)
	if err != nil {
		return formatter.Fail(&LoadError{Code: ErrCodeStore, Message: err.Error()})
	}
	return formatter.Report(Report{Data: runs, Text: func(w io.Writer) error {
		if len(runs) == 0 {
			fmt.Fprintf(w, "No runs recorded for %s.\n", opts.Pipeline)
			return nil
		}
		fmt.Fprintf(w, "Runs of %s: %d\n\n", opts.Pipeline, len(runs))
		for _, r := range runs {
			fmt.Fprintf(w, "  %s  %s  %d/%d completed, %d field error(s)  %s\n",
				r.StartedAt.Format("2006-01-02T15:04:05Z"), r.ID, r.Completed, r.Documents, r.FieldErrors, shortHash(r.GraphHash))
		}
		return nil
	}})
}

func showRun(ctx context.Context, st *store.Store, id string, formatter *OutputFormatter) error {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		code := ErrCodeStore
		if errors.Is(err, store.ErrNotFound) {
			code = ErrCodeNotFound
		}
		return formatter.Fail(&LoadError{Code: code, Message: err.Error()})
	}
	errs, err := st.RunErrors(ctx, id)
	if err != nil {
		return formatter.Fail(&LoadError{Code: ErrCodeStore, Message: err.Error()})
	}

	detail := RunDetail{Run: run, Errors: errs}
	return formatter.Report(Report{Data: detail, RunID: run.ID, Text: func(w io.Writer) error {
		fmt.Fprintf(w, "Run %s\n", run.ID)
		fmt.Fprintf(w, "  pipeline:  %s (%s)\n", run.Pipeline, shortHash(run.GraphHash))
		fmt.Fprintf(w, "  documents: %d, completed %d\n", run.Documents, run.Completed)
		fmt.Fprintf(w, "  duration:  %s\n", run.FinishedAt.Sub(run.StartedAt))
		fmt.Fprintf(w, "  field errors: %d\n", run.FieldErrors)
		for _, e := range errs {
			fmt.Fprintf(w, "    [doc %d] node %d: %s\n", e.Document, e.Node, e.Error())
		}
		return nil
	}})
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
