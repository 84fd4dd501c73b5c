package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The pipeline, scenario or store check came out bad
	ExitCommandError = 2 // The command could not run (bad path, unreadable store, ...)
)

// ExitError carries the process exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope every command writes in json format.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError names what went wrong. Field and Node locate a graph problem
// when the engine reported one.
type CLIError struct {
	Code    string     `json:"code"` // "E004", "E201", "INVALID_EDIT", ...
	Message string     `json:"message"`
	Field   ir.FieldID `json:"field,omitempty"`
	Node    ir.NodeID  `json:"node,omitempty"`
}

// Report is the outcome of a command that ran to completion. Failure is set
// when it found problems (invalid pipelines, failed scenarios, hash drift);
// the command then exits with ExitFailure after printing the report.
type Report struct {
	Data    any
	RunID   string
	Failure *CLIError

	// Text renders the report in text format.
	Text func(w io.Writer) error
}

// OutputFormatter writes command results in text or json format.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose and diagnostic output; defaults to Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

// Report writes r to the formatter's writer.
func (f *OutputFormatter) Report(r Report) error {
	return f.ReportTo(f.Writer, r)
}

// ReportTo writes r to w, as an indented envelope in json format or through
// r.Text otherwise. It returns an ExitFailure error when r has a Failure.
func (f *OutputFormatter) ReportTo(w io.Writer, r Report) error {
	if f.isJSON() {
		resp := CLIResponse{Status: "ok", Data: r.Data, RunID: r.RunID}
		if r.Failure != nil {
			resp.Status = "error"
			resp.Error = r.Failure
		}
		if err := writeJSON(w, resp); err != nil {
			return err
		}
	} else if r.Text != nil {
		if err := r.Text(w); err != nil {
			return err
		}
	}

	if r.Failure != nil {
		return NewExitError(ExitFailure, r.Failure.Message)
	}
	return nil
}

// Error writes e as an error envelope in json format, or as an
// "Error [code]: message" line in text format. The location is only
// printed in verbose text output.
func (f *OutputFormatter) Error(e CLIError) error {
	if f.isJSON() {
		return writeJSON(f.Writer, CLIResponse{Status: "error", Error: &e})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if f.Verbose && (e.Field != 0 || e.Node != 0) {
		fmt.Fprintf(f.Writer, "  at field %d, node %d\n", e.Field, e.Node)
	}
	return nil
}

// Fail reports err and returns it as a command error (exit code 2).
func (f *OutputFormatter) Fail(err error) error {
	e := describeError(err)
	_ = f.Error(e)
	return WrapExitError(ExitCommandError, e.Code, err)
}

// describeError classifies err and locates it in the graph when the engine
// or validator named a field or node.
func describeError(err error) CLIError {
	code, message := classifyError(err)
	e := CLIError{Code: code, Message: message}

	var se *ir.StructuralError
	var re *engine.RuntimeError
	switch {
	case errors.As(err, &se):
		e.Field, e.Node = se.Field, se.Node
	case errors.As(err, &re):
		e.Field = re.Field
	}
	return e
}

// VerboseLog writes a diagnostic line when verbose output is on. It goes
// to ErrWriter so json output on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when none is set.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func writeJSON(w io.Writer, response CLIResponse) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}
