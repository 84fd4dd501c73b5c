package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldflow/internal/codec"
	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/store"
)

// VersionCheck is the verification result for one stored version.
type VersionCheck struct {
	Pipeline string `json:"pipeline"`
	Version  int64  `json:"version"`
	Hash     string `json:"hash"`
	OK       bool   `json:"ok"`
	Problem  string `json:"problem,omitempty"`
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Versions   []VersionCheck `json:"versions"`
	OrphanRuns []string       `json:"orphan_runs,omitempty"`
	AllValid   bool           `json:"all_valid"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify stored versions and runs",
		Long: `Re-check every stored pipeline version.

Each version must load into a valid lineage graph, hash to its stored
hash, and hash the same after a trip through the JSON definition format.
Runs that reference a hash no stored version has are reported as orphans.

Exit codes:
  0 - Every version verified
  1 - Verification failed (hash drift, invalid graph, orphan runs)
  2 - Command error (database not found, etc.)

Examples:
  fieldflow verify --db ./fieldflow.db
  fieldflow verify --db ./fieldflow.db --pipeline people --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}
	addStoreFlags(cmd, opts)

	return cmd
}

func runVerify(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := context.Background()

	st, err := openStore(opts.Database, false)
	if err != nil {
		return formatter.Fail(err)
	}
	defer st.Close()

	pipelines := []string{opts.Pipeline}
	if opts.Pipeline == "" {
		if pipelines, err = st.ListPipelines(ctx); err != nil {
			return formatter.Fail(&LoadError{Code: ErrCodeStore, Message: err.Error()})
		}
	}

	result := VerifyResult{Versions: []VersionCheck{}, AllValid: true}
	for _, name := range pipelines {
		if err := verifyPipeline(ctx, st, name, &result, formatter); err != nil {
			return formatter.Fail(&LoadError{Code: ErrCodeStore, Message: err.Error()})
		}
	}

	report := Report{Data: result, Text: result.writeText}
	if !result.AllValid {
		report.Failure = &CLIError{Code: "E_VERIFY", Message: "store verification failed"}
	}
	return formatter.Report(report)
}

func verifyPipeline(ctx context.Context, st *store.Store, name string, result *VerifyResult, formatter *OutputFormatter) error {
	versions, err := st.ListVersions(ctx, name)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(versions))
	for _, gv := range versions {
		formatter.VerboseLog("Verifying %s v%d", gv.Pipeline, gv.Version)
		check := verifyVersion(gv, engine.WithLogger(newLogger(formatter.Verbose, formatter.GetErrWriter())))
		if !check.OK {
			result.AllValid = false
		}
		result.Versions = append(result.Versions, check)
		known[gv.Hash] = true
	}

	runs, err := st.ListRuns(ctx, name)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if !known[r.GraphHash] {
			result.OrphanRuns = append(result.OrphanRuns, r.ID)
			result.AllValid = false
		}
	}
	return nil
}

// verifyVersion checks one stored version: it must load, hash to the
// stored hash and survive a codec round trip.
func verifyVersion(gv ir.GraphVersion, opts ...engine.EngineOption) VersionCheck {
	check := VersionCheck{Pipeline: gv.Pipeline, Version: gv.Version, Hash: gv.Hash}
	fail := func(format string, args ...any) VersionCheck {
		check.Problem = fmt.Sprintf(format, args...)
		return check
	}

	eng, err := engine.FromDefinition(gv.Definition, opts...)
	if err != nil {
		return fail("invalid graph: %v", err)
	}
	hash, err := eng.Hash()
	if err != nil {
		return fail("hash: %v", err)
	}
	if hash != gv.Hash {
		return fail("hash drift: stored %s, computed %s", shortHash(gv.Hash), shortHash(hash))
	}

	data, err := codec.Marshal(gv.Definition, codec.FormatJSON)
	if err != nil {
		return fail("encode: %v", err)
	}
	decoded, err := codec.Unmarshal(data, codec.FormatJSON)
	if err != nil {
		return fail("decode: %v", err)
	}
	again, err := ir.DefinitionHash(decoded)
	if err != nil {
		return fail("hash: %v", err)
	}
	if again != gv.Hash {
		return fail("definition changed in a codec round trip")
	}

	check.OK = true
	return check
}

// writeText prints one line per checked version and orphaned run.
func (result VerifyResult) writeText(w io.Writer) error {
	fmt.Fprintf(w, "Verify Summary: %d version(s)\n", len(result.Versions))
	fmt.Fprintln(w)

	for _, v := range result.Versions {
		if v.OK {
			fmt.Fprintf(w, "✓ %s v%d %s\n", v.Pipeline, v.Version, shortHash(v.Hash))
			continue
		}
		fmt.Fprintf(w, "✗ %s v%d %s\n", v.Pipeline, v.Version, shortHash(v.Hash))
		fmt.Fprintf(w, "  %s\n", v.Problem)
	}
	for _, id := range result.OrphanRuns {
		fmt.Fprintf(w, "✗ run %s references no stored version\n", id)
	}
	fmt.Fprintln(w)

	if result.AllValid {
		fmt.Fprintln(w, "✓ All versions verified")
	} else {
		fmt.Fprintln(w, "✗ Verification failed")
	}
	return nil
}
