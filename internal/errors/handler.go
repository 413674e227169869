package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"tabflow/internal/pipeline"
	"tabflow/internal/table"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	h.Render(w, r, err, h.ErrorToProblem(err, r))
}

// Render logs err and writes problem, which was built from it
func (h *ErrorHandler) Render(w http.ResponseWriter, r *http.Request, err error, problem *ProblemDetails) {
	reqID := middleware.GetReqID(r.Context())

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if reqID != "" {
		problem.WithExtension("request_id", reqID)
	}
	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	_ = render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details.
//
// Invalid definitions are 400, engine failures (parse, schema, degenerate)
// 422, unknown runs 404, timeouts 504 and everything else 500.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return h.apiErrorToProblem(apiErr, r)
	}

	var pErr *pipeline.Error
	hasPipelineErr := errors.As(err, &pErr)

	switch {
	case hasPipelineErr && pErr.Type == pipeline.ErrorTypeValidation:
		problem := NewProblemDetails(http.StatusBadRequest, TypeValidation,
			"Invalid Pipeline Definition", err.Error(), r.URL.Path)
		if field, ok := pErr.Context["field"]; ok {
			problem.WithExtension("field", field)
		}
		return problem

	case hasPipelineErr && pErr.Type == pipeline.ErrorTypeNotFound:
		return NewProblemDetails(http.StatusNotFound, TypeRunNotFound,
			"Run Not Found", pErr.Message, r.URL.Path)
	}

	var tErr *table.Error
	if errors.As(err, &tErr) {
		problem := NewProblemDetails(http.StatusUnprocessableEntity, tableProblemType(tErr.Type),
			"Unprocessable Table", err.Error(), r.URL.Path).
			WithExtension("error_type", string(tErr.Type))
		if tErr.Operator != "" {
			problem.WithExtension("operator", tErr.Operator)
		}
		if tErr.Column != "" {
			problem.WithExtension("column", tErr.Column)
		}
		return withStage(problem, pErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return withStage(NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			"Request Timeout", "The run took too long and was cancelled", r.URL.Path), pErr)
	}
	if hasPipelineErr && pErr.Type == pipeline.ErrorTypeCancellation {
		return withStage(NewProblemDetails(http.StatusInternalServerError, TypeRunCancelled,
			"Run Cancelled", err.Error(), r.URL.Path), pErr)
	}
	if hasPipelineErr {
		return withStage(NewProblemDetails(http.StatusInternalServerError, TypeRunFailed,
			"Run Failed", err.Error(), r.URL.Path), pErr)
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		"Internal Server Error", "An unexpected error occurred while processing your request", r.URL.Path)
}

func tableProblemType(t table.ErrorType) string {
	switch t {
	case table.ErrorTypeParse:
		return TypeParse
	case table.ErrorTypeSchema:
		return TypeSchema
	default:
		return TypeDegenerate
	}
}

// withStage names the failing stage of a pipeline error
func withStage(problem *ProblemDetails, pErr *pipeline.Error) *ProblemDetails {
	if pErr == nil || pErr.Stage == "" {
		return problem
	}
	return problem.
		WithExtension("stage", pErr.Stage).
		WithExtension("stage_index", pErr.StageIndex)
}

// apiErrorToProblem converts APIError to ProblemDetails
func (h *ErrorHandler) apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case "VALIDATION_FAILED", "INVALID_REQUEST":
		problemType = TypeValidation
	case "NOT_FOUND":
		problemType = TypeNotFound
	case "RUN_NOT_FOUND":
		problemType = TypeRunNotFound
	case "RATE_LIMIT_EXCEEDED":
		problemType = TypeRateLimit
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("request_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	_ = render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("request_id", middleware.GetReqID(r.Context()))

	_ = render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethod,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("request_id", middleware.GetReqID(r.Context()))

	_ = render.Render(w, r, problem)
}

// getStackTrace returns the current stack trace
func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
