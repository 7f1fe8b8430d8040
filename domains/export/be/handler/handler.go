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

	"github.com/craftline/craftline-platform/domains/export/be/service"
	tenantssvc "github.com/craftline/craftline-platform/domains/tenants/be/service"
	"github.com/craftline/craftline-platform/jobs"
	"github.com/craftline/craftline-platform/platform/go/httpapi"
	"github.com/craftline/craftline-platform/platform/go/logging"
)

// Enqueuer submits an export to the background queue.
type Enqueuer interface {
	EnqueueExport(ctx context.Context, payload jobs.ExportPayload) (*asynq.TaskInfo, error)
}

// Handler exposes the export administrative endpoint.
type Handler struct {
	exporter *service.Exporter
	queue    Enqueuer
	logger   *zap.Logger
	validate *validator.Validate
}

// New constructs a Handler instance. queue may be nil; async requests are
// then rejected.
func New(exporter *service.Exporter, queue Enqueuer, logger *zap.Logger) *Handler {
	if exporter == nil {
		panic("exporter is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{exporter: exporter, queue: queue, logger: logger, validate: validator.New()}
}

type exportRequest struct {
	Year int `json:"year" validate:"required"`
	// Async moves the export to the background queue; the response is 202
	// with the queued task id.
	Async bool `json:"async"`
}

type queuedResponse struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
}

// Export implements POST /api/v1/admin/tenants/{tenantID}/exports.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeValidation, Title: "Invalid tenant id",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
		return
	}

	var req exportRequest
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
		info, err := h.queue.EnqueueExport(r.Context(), jobs.ExportPayload{TenantID: tenantID, Year: req.Year})
		if err != nil {
			logging.FromRequest(r, h.logger).Error("enqueue export", zap.Error(err))
			httpapi.WriteProblem(w, httpapi.Problem{
				Type: httpapi.ProblemTypeInternal, Title: "Enqueue failed",
				Detail: err.Error(), Status: http.StatusInternalServerError,
			})
			return
		}
		httpapi.WriteJSON(w, http.StatusAccepted, queuedResponse{TaskID: info.ID, Queue: info.Queue})
		return
	}

	archive, err := h.exporter.ExportTenant(r.Context(), tenantID, req.Year)
	if err != nil {
		h.writeExportError(w, r, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, archive)
}

func (h *Handler) writeExportError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromRequest(r, h.logger)

	switch {
	case errors.Is(err, tenantssvc.ErrNotFound):
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound,
		})
	case errors.Is(err, service.ErrDatabaseNotProvisioned):
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeNotFound, Title: "No database for year",
			Detail: err.Error(), Status: http.StatusNotFound,
		})
	default:
		logger.Error("export failed", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeInternal, Title: "Export failed",
			Detail: err.Error(), Status: http.StatusInternalServerError,
		})
	}
}
