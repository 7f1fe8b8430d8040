package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftline/craftline-platform/domains/tenants/be/service"
	"github.com/craftline/craftline-platform/platform/go/httpapi"
	"github.com/craftline/craftline-platform/platform/go/logging"
)

// Handler exposes the administrative tenant registry endpoints.
type Handler struct {
	svc      *service.Service
	logger   *zap.Logger
	validate *validator.Validate
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger, validate: validator.New()}
}

// Routes mounts the admin endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{tenantID}", h.Get)
	r.Patch("/{tenantID}/status", h.UpdateStatus)
}

type tenantResponse struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	DisplayName  *string   `json:"displayName,omitempty"`
	Status       string    `json:"status"`
	CurrentDB    string    `json:"currentDb"`
	AllDatabases []string  `json:"allDatabases"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		ID:           t.ID,
		Slug:         t.Slug,
		DisplayName:  t.DisplayName,
		Status:       string(t.Status),
		CurrentDB:    t.CurrentDB,
		AllDatabases: t.AllDatabases,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

type createRequest struct {
	Slug        string  `json:"slug" validate:"required,max=63"`
	DisplayName *string `json:"displayName" validate:"omitempty,max=255"`
	Year        int     `json:"year" validate:"required"`
}

// Create implements POST /api/v1/admin/tenants.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		Slug:        req.Slug,
		DisplayName: req.DisplayName,
		Year:        req.Year,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, toResponse(created))
}

// List implements GET /api/v1/admin/tenants with an optional status filter.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var opts service.ListOptions
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := service.Status(raw)
		if status != service.StatusActive && status != service.StatusInactive {
			h.writeValidation(w, "Invalid status filter", errors.New("status must be active or inactive"))
			return
		}
		opts.Status = &status
	}

	tenants, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toResponse(t))
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

// Get implements GET /api/v1/admin/tenants/{tenantID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeValidation(w, "Invalid tenant id", err)
		return
	}

	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(t))
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// UpdateStatus implements PATCH /api/v1/admin/tenants/{tenantID}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeValidation(w, "Invalid tenant id", err)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeValidation(w, "Invalid request body", err)
		return
	}

	t, err := h.svc.UpdateStatus(r.Context(), id, service.Status(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) writeValidation(w http.ResponseWriter, title string, err error) {
	httpapi.WriteProblem(w, httpapi.Problem{
		Type: httpapi.ProblemTypeValidation, Title: title,
		Detail: err.Error(), Status: http.StatusBadRequest,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeNotFound, Title: "Tenant not found", Status: http.StatusNotFound,
		})
	case errors.Is(err, service.ErrConflictSlug):
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeConflict, Title: "Slug already exists",
			Detail: err.Error(), Status: http.StatusConflict,
		})
	case errors.Is(err, service.ErrInvalidSlug):
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeValidation, Title: "Invalid slug",
			Detail: err.Error(), Status: http.StatusBadRequest,
		})
	default:
		logging.FromRequest(r, h.logger).Error("tenant admin request failed", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeInternal, Title: "Internal error",
			Detail: err.Error(), Status: http.StatusInternalServerError,
		})
	}
}
