package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Not found errors.
	ErrDefinitionNotFound = errors.New("workflow: definition not found")
	ErrInstanceNotFound   = errors.New("workflow: instance not found")

	// ErrConflict signals a compare-and-swap failure on an instance save.
	// Callers should reload the instance and retry the operation.
	ErrConflict = errors.New("workflow: instance was modified concurrently")

	// ErrInvalidState signals an operation against an instance that is not
	// in the state the operation requires.
	ErrInvalidState = errors.New("workflow: invalid instance state for operation")

	// ErrInvalidAction signals a resume action outside the checkpoint's
	// allowed set.
	ErrInvalidAction = errors.New("workflow: action not allowed at checkpoint")

	// ErrDefinitionExists signals a duplicate definition id on publish.
	ErrDefinitionExists = errors.New("workflow: definition already exists")
)

// GraphDesignError reports a malformed or unresolvable graph. It is fatal
// to the instance and never retried.
type GraphDesignError struct {
	WorkflowID string
	NodeID     string
	Reason     string
}

func (e *GraphDesignError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("graph design error: %s", e.Reason)
	}
	return fmt.Sprintf("graph design error at node %q: %s", e.NodeID, e.Reason)
}

// FieldError is one schema violation inside a SchemaValidationError.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// SchemaValidationError reports all the ways an input failed the
// definition's input schema.
type SchemaValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *SchemaValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "input validation failed: " + strings.Join(parts, "; ")
}
