package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldflow/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-path>...",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios using the harness framework.

Each path is a scenario file or a directory of *.yaml / *.yml scenarios.
A scenario loads a pipeline, applies edits, runs a batch of documents
and checks the outputs, field errors and recorded run.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  fieldflow test ./testdata/scenarios
  fieldflow test ./testdata/scenarios --filter "people_*"
  fieldflow test ./testdata/scenarios/people_split.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	files, err := harness.FindScenarios(paths, "")
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			return formatter.Fail(&LoadError{Code: ErrCodeNotFound, Message: nf.Error()})
		}
		return formatter.Fail(err)
	}

	files, err = filterScenarios(files, opts.Filter)
	if err != nil {
		return formatter.Fail(&LoadError{Code: ErrCodeGeneric, Message: err.Error()})
	}
	for _, f := range files {
		formatter.VerboseLog("Scenario: %s", f)
	}

	if len(files) == 0 {
		return formatter.Report(Report{Data: &harness.SuiteResult{}, Text: func(w io.Writer) error {
			_, err := fmt.Fprintln(w, "No scenarios found.")
			return err
		}})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := harness.RunSuite(ctx, files)
	if err != nil {
		return WrapExitError(ExitCommandError, "test run aborted", err)
	}

	report := Report{Data: result, Text: func(w io.Writer) error { return writeSuiteText(w, result) }}
	if result.Failed > 0 {
		report.Failure = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	return formatter.Report(report)
}

// filterScenarios keeps the files whose base name, without extension,
// matches the glob pattern.
func filterScenarios(files []string, filter string) ([]string, error) {
	if filter == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

// writeSuiteText lists failed scenarios with their errors, then the totals.
func writeSuiteText(w io.Writer, result *harness.SuiteResult) error {
	for _, f := range result.Failures {
		name := f.Scenario
		if name == "" {
			name = filepath.Base(f.Path)
		}
		fmt.Fprintf(w, "✗ %s\n", name)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "  %s\n", strings.TrimRight(e, "\n"))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.TotalScenarios)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
	return nil
}
