package sim

import (
	"errors"
	"fmt"
)

// UnknownPathError indicates a read or write addressed a path whose
// intermediate segment (container, agent field, metric name) does not exist.
//
// Reading an unset events.* path is NOT an error; it resolves to Bool(false).
type UnknownPathError struct {
	// Path is the full dotted path that failed to resolve.
	Path string

	// Reason describes which segment was missing or malformed.
	Reason string
}

// Error implements the error interface.
func (e *UnknownPathError) Error() string {
	return fmt.Sprintf("unknown path %q: %s", e.Path, e.Reason)
}

// UnknownAgentError indicates a path addressed agents.{id}.* for an agent id
// not declared in the initial state. Agents are never created implicitly by
// rule writes.
type UnknownAgentError struct {
	// AgentID is the undeclared agent identifier.
	AgentID string

	// Path is the full dotted path that referenced it.
	Path string
}

// Error implements the error interface.
func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("unknown agent %q in path %q", e.AgentID, e.Path)
}

// TypeMismatchError indicates a value had the wrong type for an operation,
// e.g. a numeric comparison against a string or ADD over a boolean field.
type TypeMismatchError struct {
	// Subject names what was being operated on (a path or a literal rendering).
	Subject string

	// Want is the expected type name.
	Want string

	// Got is the actual type name.
	Got string
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch for %s: want %s, got %s", e.Subject, e.Want, e.Got)
}

// IsUnknownPath returns true if the error is an UnknownPathError.
// Uses errors.As to handle wrapped errors.
func IsUnknownPath(err error) bool {
	var pe *UnknownPathError
	return errors.As(err, &pe)
}

// IsUnknownAgent returns true if the error is an UnknownAgentError.
// Uses errors.As to handle wrapped errors.
func IsUnknownAgent(err error) bool {
	var ae *UnknownAgentError
	return errors.As(err, &ae)
}

// IsTypeMismatch returns true if the error is a TypeMismatchError.
// Uses errors.As to handle wrapped errors.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}
