package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType classifies pipeline failures
type ErrorType string

const (
	// ErrorTypeValidation is an invalid definition or stage parameter
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeExecution is a stage that failed while running
	ErrorTypeExecution ErrorType = "execution"
	// ErrorTypeCancellation is a run stopped by its context
	ErrorTypeCancellation ErrorType = "cancellation"
	// ErrorTypeFatal is an unexpected failure outside any stage
	ErrorTypeFatal ErrorType = "fatal"
	// ErrorTypeNotFound is an unknown run
	ErrorTypeNotFound ErrorType = "not_found"
)

// Error is a pipeline failure. Stage errors name the failing stage and wrap
// the underlying error, so table errors stay reachable with errors.As.
type Error struct {
	Type ErrorType `json:"type"`
	// Stage is the stage type ("csv", "join", ...); StageIndex its
	// position in the pipeline, -1 outside any stage
	Stage      string                 `json:"stage,omitempty"`
	StageIndex int                    `json:"stage_index"`
	Message    string                 `json:"message"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Stage != "" {
		return fmt.Sprintf("[%s] stage %d (%s): %s", e.Type, e.StageIndex, e.Stage, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError reports an invalid definition. field locates the
// offending parameter ("transforms[2].window").
func NewValidationError(field, message string) *Error {
	e := &Error{
		Type:       ErrorTypeValidation,
		StageIndex: -1,
		Message:    message,
	}
	if field != "" {
		e.Context = map[string]interface{}{"field": field}
	}
	return e
}

// NewExecutionError wraps the failure of one stage
func NewExecutionError(index int, stage string, cause error) *Error {
	return &Error{
		Type:       ErrorTypeExecution,
		Stage:      stage,
		StageIndex: index,
		Message:    "stage execution failed",
		Cause:      cause,
	}
}

// NewCancellationError reports a run stopped before stage index
func NewCancellationError(index int, stage string, cause error) *Error {
	return &Error{
		Type:       ErrorTypeCancellation,
		Stage:      stage,
		StageIndex: index,
		Message:    "run was cancelled",
		Cause:      cause,
	}
}

// NewFatalError creates a new fatal error
func NewFatalError(message string, cause error) *Error {
	return &Error{
		Type:       ErrorTypeFatal,
		StageIndex: -1,
		Message:    message,
		Cause:      cause,
	}
}

// NewPanicError reports a stage that panicked
func NewPanicError(index int, stage string, recovered interface{}) *Error {
	return &Error{
		Type:       ErrorTypeFatal,
		Stage:      stage,
		StageIndex: index,
		Message:    "stage panicked",
		Cause:      fmt.Errorf("%v", recovered),
	}
}

// NewNotFoundError reports an unknown run ID
func NewNotFoundError(runID string) *Error {
	return &Error{
		Type:       ErrorTypeNotFound,
		StageIndex: -1,
		Message:    fmt.Sprintf("run %s not found", runID),
	}
}

// GetErrorType returns the type of a pipeline error. Context errors count
// as cancellations; anything else as execution failures.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Type
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeCancellation
	}
	return ErrorTypeExecution
}

// wrapStageError classifies the failure of a stage
func wrapStageError(index int, stage string, err error) *Error {
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewCancellationError(index, stage, err)
	}
	return NewExecutionError(index, stage, err)
}
