package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/fieldflow/internal/engine"
	"github.com/roach88/fieldflow/internal/ir"
	"github.com/roach88/fieldflow/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Document *DocumentResult // Offending document, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if e.Document != nil {
		fmt.Fprintf(&buf, "\nDocument (%s):\n  %s\n", e.Document.State, render(e.Document.Output))
		for _, fe := range e.Document.Errors {
			fmt.Fprintf(&buf, "  ! %s\n", fe.Error())
		}
	}

	return buf.String()
}

// assertOutputContains checks that a document's output holds every
// expected key with an equal value (subset match at the top level).
func assertOutputContains(result *Result, assertion Assertion) error {
	d := &result.Documents[assertion.Document]
	obj, ok := d.Output.(ir.Object)
	if !ok {
		return &AssertionError{
			Type:     AssertOutputContains,
			Expected: "object output",
			Actual:   ir.TypeName(d.Output),
			Document: d,
		}
	}

	want, err := ir.FromGo(assertion.Output)
	if err != nil {
		return fmt.Errorf("output_contains: %w", err)
	}
	if !matchObject(obj, want.(ir.Object)) {
		return &AssertionError{
			Type:     AssertOutputContains,
			Expected: fmt.Sprintf("document %d to contain %s", assertion.Document, render(want)),
			Actual:   render(obj),
			Document: d,
		}
	}
	return nil
}

// assertFieldError checks that a document has a field error at the given
// keypath whose message contains the expected text.
func assertFieldError(result *Result, assertion Assertion) error {
	d := &result.Documents[assertion.Document]
	for _, fe := range d.Errors {
		if strings.Join(fe.Path, ".") == assertion.Path && strings.Contains(fe.Message, assertion.Message) {
			return nil
		}
	}

	expected := fmt.Sprintf("field error at %s", assertion.Path)
	if assertion.Message != "" {
		expected += fmt.Sprintf(" containing %q", assertion.Message)
	}
	return &AssertionError{
		Type:     AssertFieldError,
		Expected: expected,
		Actual:   fmt.Sprintf("%d field errors", len(d.Errors)),
		Document: d,
	}
}

// assertErrorCount checks the total number of field errors in the run.
func assertErrorCount(result *Result, assertion Assertion) error {
	count := result.FieldErrors()
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertErrorCount,
			Expected: fmt.Sprintf("%d field errors", assertion.Count),
			Actual:   fmt.Sprintf("%d field errors", count),
		}
	}
	return nil
}

// assertFieldPaths checks the live field paths, in field id order.
func assertFieldPaths(eng *engine.Engine, assertion Assertion) error {
	paths := []string{}
	for _, f := range eng.Fields() {
		if !f.Removed {
			paths = append(paths, f.Path)
		}
	}
	if !reflect.DeepEqual(paths, assertion.Paths) {
		return &AssertionError{
			Type:     AssertFieldPaths,
			Expected: fmt.Sprintf("%q", assertion.Paths),
			Actual:   fmt.Sprintf("%q", paths),
		}
	}
	return nil
}

// assertFinalState checks if a store table contains expected values.
// Queries the table with parameterized SQL and validates
// expected values using subset semantics.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	// Validate table name to prevent SQL injection (identifiers can't be parameterized)
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Check for multiple matching rows (would indicate ambiguous assertion)
	if rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any)
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Subset semantics - only check columns in Expect
	keys := sortedKeys(assertion.Expect)
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("column %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("column %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML-decoded value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, float64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares expected and actual values from store tables.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	// SQLite returns TEXT columns as []byte through a generic scan
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		if actualStr, ok := actual.(string); ok {
			return exp == actualStr
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		if actualInt, ok := actual.(int); ok {
			return exp == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case float64:
		if actualFloat, ok := actual.(float64); ok {
			return exp == actualFloat
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// matchObject checks if actual contains all expected keys with equal
// values. Extra keys in actual are ignored.
func matchObject(actual, expected ir.Object) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store  *store.Store
	Engine *engine.Engine
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store and engine access for final_state
// and field_paths assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutputContains, AssertFieldError:
			if assertion.Document < 0 || assertion.Document >= len(result.Documents) {
				err = fmt.Errorf("assertion[%d]: document %d out of range", i, assertion.Document)
			} else if assertion.Type == AssertOutputContains {
				err = assertOutputContains(result, assertion)
			} else {
				err = assertFieldError(result, assertion)
			}
		case AssertErrorCount:
			err = assertErrorCount(result, assertion)
		case AssertFieldPaths:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: field_paths requires an engine", i)
			} else {
				err = assertFieldPaths(actx.Engine, assertion)
			}
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
