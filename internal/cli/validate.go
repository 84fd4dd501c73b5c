package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldflow/internal/compiler"
	"github.com/roach88/fieldflow/internal/engine"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Pipelines []string                   `json:"pipelines"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate pipelines without writing output",
		Long: `Validate CUE pipeline declarations or serialized definitions.

Every pipeline in every file is checked: field names and step references
first, then each step is replayed against the engine so structural
violations surface with their E2xx code. Directories are searched for
.cue files.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	files, err := expandPipelinePaths(paths)
	if err != nil {
		return formatter.Fail(err)
	}
	formatter.VerboseLog("Found %d pipeline file(s)", len(files))

	result := ValidationResult{Pipelines: []string{}}
	for _, file := range files {
		names, errs := validateFile(file, formatter)
		result.Pipelines = append(result.Pipelines, names...)
		result.Errors = append(result.Errors, errs...)
	}

	result.Valid = len(result.Errors) == 0
	report := Report{Data: result, Text: result.writeText}
	if !result.Valid {
		// Invalid pipelines exit 1; only unreadable inputs are command errors.
		report.Failure = &CLIError{
			Code:    result.Errors[0].Code,
			Message: fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)),
		}
	}
	return formatter.Report(report)
}

// expandPipelinePaths replaces directories with the .cue files under them.
func expandPipelinePaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", p)}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing path: %v", err)}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := FindCUEFiles(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(found) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", p)}
		}
		files = append(files, found...)
	}
	return files, nil
}

// validateFile checks every pipeline a file holds and returns their names
// and the errors found.
func validateFile(path string, formatter *OutputFormatter) ([]string, []compiler.ValidationError) {
	logger := engine.WithLogger(newLogger(formatter.Verbose, formatter.GetErrWriter()))

	if !isCUEFile(path) {
		eng, err := loadEngine(path, "", logger)
		if err != nil {
			return nil, []compiler.ValidationError{toValidationError(path, err)}
		}
		formatter.VerboseLog("Validated definition: %s", eng.Name())
		return []string{eng.Name()}, nil
	}

	pipelines, err := compiler.LoadFile(path)
	if err != nil {
		return nil, []compiler.ValidationError{toValidationError(path, err)}
	}

	var (
		names []string
		errs  []compiler.ValidationError
	)
	for _, p := range pipelines {
		formatter.VerboseLog("Validating pipeline: %s", p.Name)
		names = append(names, p.Name)

		if verrs := compiler.Validate(p); len(verrs) > 0 {
			errs = append(errs, verrs...)
			continue
		}
		if _, err := compiler.Build(p, logger); err != nil {
			errs = append(errs, toValidationError("pipeline."+p.Name, err))
		}
	}
	return names, errs
}

func toValidationError(field string, err error) compiler.ValidationError {
	code, message := classifyError(err)
	ve := compiler.ValidationError{Field: field, Code: code, Message: message}

	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		ve.Field = compileErr.Field
		ve.Message = compileErr.Message
		if compileErr.Pos.IsValid() {
			ve.Line = compileErr.Pos.Line()
		}
	}
	return ve
}

// writeText prints the validation outcome, one block per error.
func (result ValidationResult) writeText(w io.Writer) error {
	if len(result.Errors) == 0 {
		_, err := fmt.Fprintf(w, "✓ All pipelines valid (%d)\n", len(result.Pipelines))
		return err
	}

	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range result.Errors {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d\n", err.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return nil
}
