package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldflow/internal/codec"
	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/store"
)

// StoreOptions holds flags for commands that work on a store.
type StoreOptions struct {
	*RootOptions
	Database string
	Pipeline string
}

// PushResult describes a pushed pipeline version.
type PushResult struct {
	Pipeline string `json:"pipeline"`
	Version  int64  `json:"version"`
	Hash     string `json:"hash"`
	Inserted bool   `json:"inserted"`
}

func addStoreFlags(cmd *cobra.Command, opts *StoreOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVarP(&opts.Pipeline, "pipeline", "p", "", "pipeline name")
}

// openStore opens the store without creating it: every store command but
// push reads existing data.
func openStore(path string, create bool) (*store.Store, error) {
	if !create {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", path)}
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: err.Error()}
	}
	return st, nil
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <pipeline-file>",
		Short: "Store a pipeline as a new version",
		Long: `Compile or load a pipeline and store it as the next version of its name.

Pushing a pipeline whose content hash equals the latest stored version
stores nothing and reports that version.

Example:
  fieldflow push ./pipelines/people.cue --pipeline people --db ./fieldflow.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, args[0], cmd)
		},
	}
	addStoreFlags(cmd, opts)

	return cmd
}

func runPush(opts *StoreOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	eng, err := loadEngine(path, opts.Pipeline, engine.WithLogger(newLogger(opts.Verbose, formatter.GetErrWriter())))
	if err != nil {
		return formatter.Fail(err)
	}

	st, err := openStore(opts.Database, true)
	if err != nil {
		return formatter.Fail(err)
	}
	defer st.Close()

	gv, inserted, err := st.PushVersion(context.Background(), eng.Definition())
	if err != nil {
		return formatter.Fail(&LoadError{Code: ErrCodeStore, Message: err.Error()})
	}

	result := PushResult{Pipeline: gv.Pipeline, Version: gv.Version, Hash: gv.Hash, Inserted: inserted}
	return formatter.Report(Report{Data: result, Text: func(w io.Writer) error {
		if inserted {
			fmt.Fprintf(w, "✓ Pushed %s v%d (%s)\n", result.Pipeline, result.Version, result.Hash)
		} else {
			fmt.Fprintf(w, "✓ %s unchanged, latest is v%d (%s)\n", result.Pipeline, result.Version, result.Hash)
		}
		return nil
	}})
}

// PullOptions holds flags for the pull command.
type PullOptions struct {
	StoreOptions
	Version int64  // 0 selects the latest
	Output  string // definition file; YAML on stdout when empty
}

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PullOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Export a stored pipeline version",
		Long: `Export a stored pipeline version as a definition file.

Without --version the latest version is exported. Without --output the
definition is written to stdout as YAML.

Example:
  fieldflow pull --db ./fieldflow.db --pipeline people --version 2 -o people.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(opts, cmd)
		},
	}
	addStoreFlags(cmd, &opts.StoreOptions)
	_ = cmd.MarkFlagRequired("pipeline")
	cmd.Flags().Int64Var(&opts.Version, "version", 0, "version to export (default latest)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (.json, .yaml or .yml)")

	return cmd
}

func runPull(opts *PullOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	st, err := openStore(opts.Database, false)
	if err != nil {
		return formatter.Fail(err)
	}
	defer st.Close()

	var gv ir.GraphVersion
	if opts.Version > 0 {
		gv, err = st.GetVersion(ctx, opts.Pipeline, opts.Version)
	} else {
		gv, err = st.LatestVersion(ctx, opts.Pipeline)
	}
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Fail(&LoadError{Code: ErrCodeNotFound, Message: err.Error()})
	}
	if err != nil {
		return formatter.Fail(&LoadError{Code: ErrCodeStore, Message: err.Error()})
	}

	if opts.Output != "" {
		if err := codec.WriteFile(opts.Output, gv.Definition); err != nil {
			return formatter.Fail(&LoadError{Code: ErrCodeWriteFailed, Message: fmt.Sprintf("writing output file: %v", err)})
		}
		return formatter.Report(Report{
			Data: PushResult{Pipeline: gv.Pipeline, Version: gv.Version, Hash: gv.Hash},
			Text: func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Wrote %s v%d to %s\n", gv.Pipeline, gv.Version, opts.Output)
				return err
			},
		})
	}

	return formatter.Report(Report{Data: gv, Text: func(w io.Writer) error {
		return codec.Encode(w, gv.Definition, codec.FormatYAML)
	}})
}
