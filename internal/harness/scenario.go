package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fieldflow/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario loads one pipeline, optionally edits it, runs a batch of input
// documents through it and asserts on the outputs and the recorded run.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pipeline is a CUE pipeline file. Exactly one of Pipeline and
	// Definition is set. Paths are relative to the scenario file.
	Pipeline string `yaml:"pipeline,omitempty"`

	// Select picks a pipeline by name when the CUE file declares several.
	Select string `yaml:"select,omitempty"`

	// Definition is a stored graph definition (JSON or YAML).
	Definition string `yaml:"definition,omitempty"`

	// Edits are applied to the loaded pipeline, in order, before the run.
	Edits []EditStep `yaml:"edits,omitempty"`

	// Inputs are the documents of the batch.
	Inputs []map[string]any `yaml:"inputs"`

	// Expect holds per-document expectations, by input position.
	// Shorter than Inputs is fine; unlisted documents are not checked.
	Expect []ExpectClause `yaml:"expect,omitempty"`

	// Assertions validate the run as a whole.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID is the fixed run id recorded for the batch.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Workers is the batch concurrency. Zero uses the engine default.
	Workers int `yaml:"workers,omitempty"`
}

// DefaultRunID is the run id used when a scenario does not set one.
const DefaultRunID = "test-run-default"

// Edit step kinds.
const (
	EditAddField  = "add_field"
	EditTransform = "transform"
	EditSplit     = "split"
	EditDuplicate = "duplicate"
	EditJoin      = "join"
	EditRename    = "rename"
	EditRemove    = "remove"
	EditDisable   = "disable"
)

// EditStep is one engine edit. Fields are addressed by their current
// output path, so a step can name a field created by an earlier step.
type EditStep struct {
	// Edit is the kind of edit (add_field, transform, split, ...).
	Edit string `yaml:"edit"`

	// Field is the current path of the edited field.
	Field string `yaml:"field,omitempty"`

	// Path is the new path (add_field, duplicate, rename).
	Path string `yaml:"path,omitempty"`

	// Type is the declared type of a new field (add_field).
	Type ir.FieldType `yaml:"type,omitempty"`

	// Kind and Options describe a transform (transform).
	Kind    ir.Kind    `yaml:"kind,omitempty"`
	Options ir.Options `yaml:"options,omitempty"`

	// Delimiter and Into describe a split.
	Delimiter string   `yaml:"delimiter,omitempty"`
	Into      []string `yaml:"into,omitempty"`

	// With and Separator describe a join.
	With      []string `yaml:"with,omitempty"`
	Separator string   `yaml:"separator,omitempty"`

	// Reject, when set, is the error code the edit must fail with, e.g.
	// "INVALID_EDIT" or a structural code such as "E205".
	Reject string `yaml:"reject,omitempty"`
}

// ExpectClause specifies the expected outcome of one document.
type ExpectClause struct {
	// State is the expected document state. Default: "completed".
	State string `yaml:"state,omitempty"`

	// Output is the exact expected output document.
	// If nil, the output is not checked.
	Output map[string]any `yaml:"output,omitempty"`

	// Errors is the expected number of field errors.
	// If nil, field errors are not checked.
	Errors *int `yaml:"errors,omitempty"`
}

// Assertion validates the run or final store state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "output_contains": document output includes the given keys
	// - "field_error": document has a field error at a path
	// - "error_count": the run has exactly N field errors
	// - "field_paths": live field paths, in field id order
	// - "final_state": query a store table and verify expected values
	Type string `yaml:"type"`

	// Document is the input position (output_contains, field_error).
	Document int `yaml:"document,omitempty"`

	// Output is the expected subset of the output (output_contains).
	Output map[string]any `yaml:"output,omitempty"`

	// Path is the dotted keypath of the error location (field_error).
	Path string `yaml:"path,omitempty"`

	// Message is a substring of the error message (field_error).
	Message string `yaml:"message,omitempty"`

	// Count is the expected number of field errors (error_count).
	Count int `yaml:"count,omitempty"`

	// Paths are the expected live field paths (field_paths).
	Paths []string `yaml:"paths,omitempty"`

	// Table is the store table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputContains = "output_contains"
	AssertFieldError     = "field_error"
	AssertErrorCount     = "error_count"
	AssertFieldPaths     = "field_paths"
	AssertFinalState     = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Pipeline and
// definition paths are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving pipeline and definition paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve paths relative to base path BEFORE validation
	scenario.Pipeline = resolve(basePath, scenario.Pipeline)
	scenario.Definition = resolve(basePath, scenario.Definition)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) || base == "" {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Pipeline == "" && s.Definition == "":
		return fmt.Errorf("one of pipeline or definition is required")
	case s.Pipeline != "" && s.Definition != "":
		return fmt.Errorf("pipeline and definition are mutually exclusive")
	case s.Select != "" && s.Pipeline == "":
		return fmt.Errorf("select requires a pipeline file")
	}

	for _, p := range []string{s.Pipeline, s.Definition} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("pipeline file not found: %s", p)
		}
	}

	if len(s.Inputs) == 0 {
		return fmt.Errorf("inputs list is required and must be non-empty")
	}

	if len(s.Expect) > len(s.Inputs) {
		return fmt.Errorf("expect has %d entries for %d inputs", len(s.Expect), len(s.Inputs))
	}

	if len(s.Expect) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("at least one expect clause or assertion is required")
	}

	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	for i, step := range s.Edits {
		if err := validateEdit(i, &step); err != nil {
			return err
		}
	}

	for i, e := range s.Expect {
		switch e.State {
		case "", "completed", "failed":
		default:
			return fmt.Errorf("expect[%d]: unknown state %q", i, e.State)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Inputs)); err != nil {
			return err
		}
	}

	return nil
}

// validateEdit checks that an edit step carries the arguments its kind needs.
func validateEdit(index int, e *EditStep) error {
	need := func(ok bool, what string) error {
		if !ok {
			return fmt.Errorf("edits[%d]: %s is required for %s", index, what, e.Edit)
		}
		return nil
	}

	switch e.Edit {
	case EditAddField:
		return need(e.Path != "", "path")
	case EditTransform:
		if err := need(e.Field != "", "field"); err != nil {
			return err
		}
		return need(e.Kind != "", "kind")
	case EditSplit:
		if err := need(e.Field != "", "field"); err != nil {
			return err
		}
		return need(len(e.Into) > 0, "into")
	case EditDuplicate, EditRename:
		if err := need(e.Field != "", "field"); err != nil {
			return err
		}
		return need(e.Path != "", "path")
	case EditJoin:
		if err := need(e.Field != "", "field"); err != nil {
			return err
		}
		return need(len(e.With) > 0, "with")
	case EditRemove, EditDisable:
		return need(e.Field != "", "field")
	case "":
		return fmt.Errorf("edits[%d]: edit is required", index)
	default:
		return fmt.Errorf("edits[%d]: unknown edit %q", index, e.Edit)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, documents int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutputContains, AssertFieldError:
		if a.Document < 0 || a.Document >= documents {
			return fmt.Errorf("assertions[%d]: document %d out of range", index, a.Document)
		}
		if a.Type == AssertOutputContains && len(a.Output) == 0 {
			return fmt.Errorf("assertions[%d]: output is required for output_contains", index)
		}
		if a.Type == AssertFieldError && a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for field_error", index)
		}
	case AssertErrorCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for error_count", index)
		}
	case AssertFieldPaths:
		if a.Paths == nil {
			return fmt.Errorf("assertions[%d]: paths is required for field_paths", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
