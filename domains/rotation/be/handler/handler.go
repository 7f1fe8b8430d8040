package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/craftline/craftline-platform/domains/rotation/be/service"
	tenantssvc "github.com/craftline/craftline-platform/domains/tenants/be/service"
	"github.com/craftline/craftline-platform/jobs"
	"github.com/craftline/craftline-platform/platform/go/httpapi"
	"github.com/craftline/craftline-platform/platform/go/logging"
)

// Enqueuer submits a rotation to the background queue.
type Enqueuer interface {
	EnqueueRotate(ctx context.Context, payload jobs.RotatePayload) (*asynq.TaskInfo, error)
}

// Handler exposes the rotation administrative endpoint.
type Handler struct {
	coord    *service.Coordinator
	queue    Enqueuer
	logger   *zap.Logger
	validate *validator.Validate
}

// New constructs a Handler instance. queue may be nil; async requests are
// then rejected.
func New(coord *service.Coordinator, queue Enqueuer, logger *zap.Logger) *Handler {
	if coord == nil {
		panic("rotation coordinator is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{coord: coord, queue: queue, logger: logger, validate: validator.New()}
}

type rotateRequest struct {
	Year int `json:"year" validate:"required"`
	// Async moves the rotation to the background queue; the response is 202
	// with the queued task id.
	Async bool `json:"async"`
}

type queuedResponse struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
}

// Rotate implements POST /api/v1/admin/tenants/{tenantID}/rotations.
func (h *Handler) Rotate(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeValidation, Title: "Invalid tenant id",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
		return
	}

	var req rotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeValidation, Title: "Invalid request body",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeValidation, Title: "Invalid request body",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
		return
	}

	if req.Async {
		if h.queue == nil {
			httpapi.WriteProblem(w, httpapi.Problem{
				Type: httpapi.ProblemTypeValidation, Title: "Background queue not configured",
				Status: http.StatusBadRequest,
			})
			return
		}
		info, err := h.queue.EnqueueRotate(r.Context(), jobs.RotatePayload{TenantID: tenantID, Year: req.Year})
		if err != nil {
			logging.FromRequest(r, h.logger).Error("enqueue rotation", zap.Error(err))
			httpapi.WriteProblem(w, httpapi.Problem{
				Type: httpapi.ProblemTypeInternal, Title: "Enqueue failed",
				Detail: err.Error(), Status: http.StatusInternalServerError,
			})
			return
		}
		httpapi.WriteJSON(w, http.StatusAccepted, queuedResponse{TaskID: info.ID, Queue: info.Queue})
		return
	}

	result, err := h.coord.Rotate(r.Context(), tenantID, req.Year)
	if err != nil {
		h.writeRotateError(w, r, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) writeRotateError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromRequest(r, h.logger)

	switch {
	case errors.Is(err, tenantssvc.ErrNotFound):
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound,
		})
	case errors.Is(err, service.ErrYearAlreadyProvisioned):
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeConflict, Title: "Year already provisioned",
			Detail: err.Error(), Status: http.StatusConflict,
		})
	case errors.Is(err, service.ErrInvalidYear):
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeValidation, Title: "Invalid year",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
	default:
		logger.Error("rotation failed", zap.Error(err))
		problem := httpapi.Problem{
			Type: httpapi.ProblemTypeInternal, Title: "Rotation failed",
			Detail: err.Error(), Status: http.StatusInternalServerError,
		}
		var stepErr *service.StepError
		if errors.As(err, &stepErr) {
			problem.Step = stepErr.Step
		}
		httpapi.WriteProblem(w, problem)
	}
}
