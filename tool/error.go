package tool

import (
	"errors"
	"fmt"

	"github.com/covailent/mcpd/schema"
)

// ErrorKind classifies a failed invocation. Every per-request failure maps to
// exactly one kind; discovery failures are logged and never reach a caller.
type ErrorKind string

const (
	// KindNotFound: the tool name is not in the sealed registry.
	KindNotFound ErrorKind = "not_found"
	// KindInvalidInput: the payload failed input-schema validation.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindExecutionFailed: the tool's execute signaled or raised a failure.
	KindExecutionFailed ErrorKind = "execution_failed"
	// KindInvalidOutput: the tool's raw output failed output-schema
	// validation. This is a defect in the tool, not in the caller's request.
	KindInvalidOutput ErrorKind = "invalid_output"
)

// DispatchError is the classified failure for one invocation.
type DispatchError struct {
	Kind       ErrorKind          `json:"kind"`
	Tool       string             `json:"tool_name,omitempty"`
	Message    string             `json:"message"`
	Violations []schema.Violation `json:"violations,omitempty"`
	Cause      error              `json:"-"`
}

func (e *DispatchError) Error() string {
	if e == nil {
		return ""
	}
	if e.Tool == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: tool %q: %s", e.Kind, e.Tool, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AsDispatchError extracts a DispatchError from an error chain.
func AsDispatchError(err error) (*DispatchError, bool) {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) {
		return dispatchErr, true
	}
	return nil, false
}

func notFoundError(name string) *DispatchError {
	return &DispatchError{
		Kind:    KindNotFound,
		Tool:    name,
		Message: "tool is not registered",
	}
}

func invalidInputError(name string, violations []schema.Violation) *DispatchError {
	return &DispatchError{
		Kind:       KindInvalidInput,
		Tool:       name,
		Message:    "payload does not conform to the tool's input schema",
		Violations: violations,
	}
}

func executionFailedError(name, message string, cause error) *DispatchError {
	return &DispatchError{
		Kind:    KindExecutionFailed,
		Tool:    name,
		Message: message,
		Cause:   cause,
	}
}

func invalidOutputError(name string, violations []schema.Violation) *DispatchError {
	return &DispatchError{
		Kind:       KindInvalidOutput,
		Tool:       name,
		Message:    "tool produced output violating its declared schema",
		Violations: violations,
	}
}
