package ir

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is a value-level failure: one transform could not apply to one
// concrete location in one document. It never aborts execution.
type FieldError struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Node    NodeID   `json:"node,omitempty"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", strings.Join(e.Path, "."), e.Message)
}

// Structural error codes (E200-E299).
const (
	ErrCycle              = "E201" // graph contains a cycle
	ErrNodeIdentity       = "E202" // stored node id differs from its arena key
	ErrInvalidNode        = "E203" // unknown kind or invalid kind-specific options
	ErrMissingStart       = "E204" // live field has no organic/synthetic node
	ErrDuplicateStart     = "E205" // field has more than one organic/synthetic node
	ErrStartHasInbound    = "E206" // start node has an inbound spine edge
	ErrOrphanSource       = "E207" // a source node is not a start identity node
	ErrRemovalHasOutbound = "E208" // removal node has outbound edges
	ErrRemovalOfLive      = "E209" // removal node for a field that still has a path
	ErrBranchingLineage   = "E210" // more than one same-labeled outbound edge on a walk
	ErrUnterminatedWalk   = "E211" // lineage walk exceeded the node count
	ErrPathMismatch       = "E212" // terminal path differs from the registry path
	ErrRemovedNotTerminal = "E213" // field has no path but lineage does not end in removal
	ErrExecutionOrder     = "E214" // execution order could not be computed
	ErrUnknownNode        = "E215" // edge or lookup references a missing node
	ErrDuplicateNode      = "E216" // node id already present
	ErrInvalidEdge        = "E217" // invalid label, duplicate edge, or bad endpoints
	ErrUnknownField       = "E218" // node references a field that is not registered
	ErrForeignLineage     = "E219" // a lineage walk reaches another field's node
)

// StructuralError is a violation of a graph invariant. The edit that caused
// it must be rolled back; it is never recovered silently.
type StructuralError struct {
	Code      string  `json:"code"`
	Invariant int     `json:"invariant,omitempty"` // 1-8, 0 for store-level errors
	Field     FieldID `json:"field,omitempty"`
	Node      NodeID  `json:"node,omitempty"`
	Message   string  `json:"message"`
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Code)
	if e.Invariant > 0 {
		fmt.Fprintf(&b, " invariant %d:", e.Invariant)
	}
	if e.Field != 0 {
		fmt.Fprintf(&b, " field %d:", e.Field)
	}
	if e.Node != 0 {
		fmt.Fprintf(&b, " node %d:", e.Node)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	return b.String()
}

// Structuralf builds a StructuralError with a formatted message.
func Structuralf(code string, invariant int, format string, args ...any) *StructuralError {
	return &StructuralError{
		Code:      code,
		Invariant: invariant,
		Message:   fmt.Sprintf(format, args...),
	}
}

// WithField sets the offending field and returns e.
func (e *StructuralError) WithField(id FieldID) *StructuralError {
	e.Field = id
	return e
}

// WithNode sets the offending node and returns e.
func (e *StructuralError) WithNode(id NodeID) *StructuralError {
	e.Node = id
	return e
}

// IsStructural reports whether err is or wraps a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// StructuralCode returns the code of a wrapped StructuralError, or "".
func StructuralCode(err error) string {
	var se *StructuralError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
