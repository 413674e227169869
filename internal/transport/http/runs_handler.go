package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "tabflow/internal/errors"
	"tabflow/internal/infrastructure"
	"tabflow/internal/pipeline"
	api "tabflow/pkg/contracts/api/v1"
)

// RunManager executes and tracks pipeline runs
type RunManager interface {
	Execute(ctx context.Context, def *pipeline.Definition) (*pipeline.RunState, error)
	Get(id string) (*pipeline.RunState, error)
	List() []*pipeline.RunState
	Cancel(id string) error
	Registry() *pipeline.Registry
}

// RunsHandler handles the /api/v1/runs endpoints
type RunsHandler struct {
	manager      RunManager
	errors       *apierrors.ErrorHandler
	validate     *validator.Validate
	logger       *slog.Logger
	runTimeout   time.Duration
	maxBodyBytes int64
}

// RunsHandlerOption configures a RunsHandler
type RunsHandlerOption func(*RunsHandler)

// WithRunTimeout bounds each run started through the API
func WithRunTimeout(d time.Duration) RunsHandlerOption {
	return func(h *RunsHandler) { h.runTimeout = d }
}

// WithMaxBodyBytes bounds the size of posted definitions
func WithMaxBodyBytes(n int64) RunsHandlerOption {
	return func(h *RunsHandler) { h.maxBodyBytes = n }
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(manager RunManager, errors *apierrors.ErrorHandler, logger *slog.Logger, opts ...RunsHandlerOption) *RunsHandler {
	if manager == nil {
		panic("manager cannot be nil")
	}
	if errors == nil {
		errors = apierrors.NewErrorHandler(logger, false)
	}
	h := &RunsHandler{
		manager:      manager,
		errors:       errors,
		validate:     validator.New(),
		logger:       infrastructure.WithComponent(logger, "runs_handler"),
		maxBodyBytes: 10 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns a chi router for the runs endpoints
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CreateRun)
	r.Get("/", h.ListRuns)
	r.Get("/types", h.StageTypes)
	r.Get("/{id}", h.GetRun)
	r.Post("/{id}/cancel", h.CancelRun)
	return r
}

// CreateRun handles POST /api/v1/runs. The run executes synchronously; the
// response carries its final state.
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var def pipeline.Definition
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := render.DecodeJSON(body, &def); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := def.CheckPaths(); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	h.logger.InfoContext(ctx, "run requested",
		slog.String("pipeline", def.Name),
		slog.Int("transforms", len(def.Transforms)))

	state, err := h.manager.Execute(ctx, &def)
	if err != nil {
		problem := h.errors.ErrorToProblem(err, r)
		if state != nil {
			problem.WithExtension("run", state)
		}
		h.errors.Render(w, r, err, problem)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, state)
}

// ListRuns handles GET /api/v1/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	req := api.ListRunsRequest{Status: r.URL.Query().Get("status")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			h.errors.HandleError(w, r, apierrors.ErrValidation("limit", "limit must be an integer"))
			return
		}
		req.Limit = n
	}
	if err := h.validate.Struct(req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	runs := h.manager.List()
	filtered := make([]*pipeline.RunState, 0, len(runs))
	for _, run := range runs {
		if req.Status == "" || string(run.Status) == req.Status {
			filtered = append(filtered, run)
		}
	}
	// keep the most recent runs
	if req.Limit > 0 && len(filtered) > req.Limit {
		filtered = filtered[len(filtered)-req.Limit:]
	}

	render.JSON(w, r, api.ListRunsResponse{Runs: filtered, Count: len(filtered)})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	state, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, state)
}

// CancelRun handles POST /api/v1/runs/{id}/cancel
func (h *RunsHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Cancel(id); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{
		"id":     id,
		"status": "cancelling",
	})
}

// StageTypes handles GET /api/v1/runs/types
func (h *RunsHandler) StageTypes(w http.ResponseWriter, r *http.Request) {
	reg := h.manager.Registry()
	render.JSON(w, r, api.StageTypesResponse{
		Sources:    reg.SourceTypes(),
		Transforms: reg.TransformTypes(),
		Sinks:      reg.SinkTypes(),
	})
}
