package harness

import "github.com/roach88/fieldflow/internal/ir"

// DocumentResult is the outcome of one input document.
type DocumentResult struct {
	State  string          `json:"state"`
	Output ir.Value        `json:"output,omitempty"`
	Errors []ir.FieldError `json:"errors,omitempty"`
	Err    string          `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every edit, expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Hash is the definition hash of the pipeline the batch ran.
	Hash string `json:"hash"`

	// Fields is the field metadata after all edits.
	Fields []ir.FieldMeta `json:"fields"`

	// Order renders the execution order, one node per entry.
	Order []string `json:"order"`

	// Documents holds one entry per input, in input order.
	Documents []DocumentResult `json:"documents"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Fields:    []ir.FieldMeta{},
		Order:     []string{},
		Documents: []DocumentResult{},
		Errors:    []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// FieldErrors returns the total number of field errors across documents.
func (r *Result) FieldErrors() int {
	n := 0
	for _, d := range r.Documents {
		n += len(d.Errors)
	}
	return n
}
