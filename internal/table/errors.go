package table

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the class of a table error
type ErrorType string

const (
	// ErrorTypeParse means a value could not be coerced to the type an operator needs
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeSchema means a referenced column is missing or the header is invalid
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeDegenerate means the input is too small for the requested computation
	ErrorTypeDegenerate ErrorType = "degenerate"
)

// Error is raised by operators and estimators. It carries enough context
// (operator, column, offending value) to explain a failed run.
type Error struct {
	Type     ErrorType `json:"type"`
	Operator string    `json:"operator,omitempty"`
	Column   string    `json:"column,omitempty"`
	Value    string    `json:"value,omitempty"`
	Message  string    `json:"message"`
	Cause    error     `json:"-"`
}

// Sentinels for errors.Is checks
var (
	ErrParse      = &Error{Type: ErrorTypeParse}
	ErrSchema     = &Error{Type: ErrorTypeSchema}
	ErrDegenerate = &Error{Type: ErrorTypeDegenerate}
)

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "unknown table error"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Type)
	if e.Operator != "" {
		fmt.Fprintf(&b, " %s:", e.Operator)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q:", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q:", e.Value)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any error of the same type, so errors.Is(err, ErrParse) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return t.Type == e.Type && t.Message == "" && t.Column == "" && t.Operator == ""
}

// NewParseError creates a parse error for an offending value
func NewParseError(operator, column, value string, cause error) *Error {
	return &Error{
		Type:     ErrorTypeParse,
		Operator: operator,
		Column:   column,
		Value:    value,
		Message:  "cannot convert value",
		Cause:    cause,
	}
}

// NewSchemaError creates a schema error for a column
func NewSchemaError(operator, column, message string) *Error {
	return &Error{
		Type:     ErrorTypeSchema,
		Operator: operator,
		Column:   column,
		Message:  message,
	}
}

// NewDegenerateError creates a degenerate-input error
func NewDegenerateError(operator, column, message string) *Error {
	return &Error{
		Type:     ErrorTypeDegenerate,
		Operator: operator,
		Column:   column,
		Message:  message,
	}
}

// GetErrorType returns the type of a table error found in the chain, or ""
func GetErrorType(err error) ErrorType {
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Type
	}
	return ""
}
