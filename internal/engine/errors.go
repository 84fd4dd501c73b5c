package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/fieldflow/internal/ir"
)

// RuntimeError represents a failed engine operation.
//
// Runtime errors include:
//   - Rejected edit: the edited graph broke an invariant and was rolled back
//   - Unknown or removed field: the edit names a field it cannot touch
//   - Invalid edit: the arguments cannot describe a well-formed edit
//   - Plan failure: an execution plan could not be built
//
// Structural causes stay reachable through errors.As, so ir.IsStructural
// works on any RuntimeError that wraps one.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Op names the engine operation, e.g. "split".
	Op string

	// Message is a human-readable description.
	Message string

	// Field identifies the affected field, if any.
	Field ir.FieldID

	// Cause is the underlying error.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeRejectedEdit indicates the edit was validated and rolled back.
	ErrCodeRejectedEdit RuntimeErrorCode = "REJECTED_EDIT"

	// ErrCodeUnknownField indicates the field id is not registered.
	ErrCodeUnknownField RuntimeErrorCode = "UNKNOWN_FIELD"

	// ErrCodeRemovedField indicates the field no longer has an output path.
	ErrCodeRemovedField RuntimeErrorCode = "REMOVED_FIELD"

	// ErrCodeInvalidEdit indicates bad edit arguments.
	ErrCodeInvalidEdit RuntimeErrorCode = "INVALID_EDIT"

	// ErrCodePlanFailed indicates the execution plan could not be built.
	ErrCodePlanFailed RuntimeErrorCode = "PLAN_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg = msg + ": " + e.Cause.Error()
		}
	}
	if e.Field != 0 {
		return fmt.Sprintf("%s: %s (field=%d): %s", e.Code, e.Op, e.Field, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
}

// Unwrap returns the cause.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsRejectedEdit returns true if the edit failed validation and was rolled back.
func IsRejectedEdit(err error) bool {
	return hasCode(err, ErrCodeRejectedEdit)
}

// IsUnknownField returns true if the error names an unregistered field.
func IsUnknownField(err error) bool {
	return hasCode(err, ErrCodeUnknownField)
}

// IsRemovedField returns true if the edit targeted a removed field.
func IsRemovedField(err error) bool {
	return hasCode(err, ErrCodeRemovedField)
}

// IsInvalidEdit returns true if the edit arguments were malformed.
func IsInvalidEdit(err error) bool {
	return hasCode(err, ErrCodeInvalidEdit)
}

// IsPlanFailed returns true if no execution plan could be built.
func IsPlanFailed(err error) bool {
	return hasCode(err, ErrCodePlanFailed)
}

func invalidEdit(field ir.FieldID, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: ErrCodeInvalidEdit, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the most specific code carried by err: the structural
// invariant code when the edit broke one, otherwise the runtime code.
// Returns "" for errors the engine did not produce.
func ErrorCode(err error) string {
	if code := ir.StructuralCode(err); code != "" {
		return code
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	return ""
}
