// Package apperrors defines the error taxonomy returned by the policy interface.
// Every validation failure carries a stable code; dispatch failures are wrapped
// in an ExecutionError that keeps the original cause reachable via errors.Is/As.
package apperrors

import (
	"errors"
	"fmt"
)

// Code is the stable identifier of an error class.
type Code string

const (
	CodeUnknown               Code = "UNKNOWN_EXCEPTION"
	CodeBadRequest            Code = "BAD_REQUEST"
	CodeInvalidParam          Code = "INVALID_PARAM"
	CodeInvalidSchema         Code = "INVALID_SCHEMA"
	CodeInvalidPolicy         Code = "INVALID_POLICY"
	CodeMandatoryParamMissing Code = "MANDATORY_PARAM_MISSING"
)

// Error is a client-facing error with a stable code and a human readable message.
type Error struct {
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches sentinels by code. A sentinel is an *Error with an empty message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Code == e.Code
	}
	return t.Code == e.Code && t.Message == e.Message
}

// Sentinels for errors.Is checks.
var (
	ErrBadRequest            = &Error{Code: CodeBadRequest}
	ErrInvalidParam          = &Error{Code: CodeInvalidParam}
	ErrInvalidSchema         = &Error{Code: CodeInvalidSchema}
	ErrInvalidPolicy         = &Error{Code: CodeInvalidPolicy}
	ErrMandatoryParamMissing = &Error{Code: CodeMandatoryParamMissing}
)

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// BadRequest reports required upstream data that was not available.
func BadRequest(format string, args ...any) *Error {
	return newf(CodeBadRequest, format, args...)
}

// InvalidParam reports caller supplied keys outside the allowed set.
func InvalidParam(format string, args ...any) *Error {
	return newf(CodeInvalidParam, format, args...)
}

// InvalidSchema reports a policy document that fails structural validation.
func InvalidSchema(format string, args ...any) *Error {
	return newf(CodeInvalidSchema, format, args...)
}

// InvalidPolicy reports a policy that cannot be resolved or whose query breaks catalog rules.
func InvalidPolicy(format string, args ...any) *Error {
	return newf(CodeInvalidPolicy, format, args...)
}

// MandatoryParamMissing reports a required connection or execution argument that is absent.
func MandatoryParamMissing(format string, args ...any) *Error {
	return newf(CodeMandatoryParamMissing, format, args...)
}

// ExecutionError wraps any failure that happened while dispatching a policy.
type ExecutionError struct {
	RuleName   string
	SchemaName string
	// Trace is the goroutine stack at the point dispatch wrapped the
	// failure, not where Cause was raised. Go errors carry no stack of
	// their own; Cause's message is the only record of its origin.
	Trace string
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	rule := e.SchemaName
	if rule == "" {
		rule = e.RuleName
	}
	if rule == "" {
		return fmt.Sprintf("%s: policy execution failed: %v", CodeUnknown, e.Cause)
	}
	return fmt.Sprintf("%s: policy execution failed for rule %s: %v", CodeUnknown, rule, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the taxonomy code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}
