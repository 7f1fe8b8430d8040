package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/craftline/craftline-platform/domains/accesscontrol/be/service"
	"github.com/craftline/craftline-platform/platform/go/auth"
	"github.com/craftline/craftline-platform/platform/go/httpapi"
	"github.com/craftline/craftline-platform/platform/go/logging"
	"github.com/craftline/craftline-platform/platform/go/tenant"
)

// Handler exposes the access-control apply endpoint.
type Handler struct {
	svc      *service.Service
	logger   *zap.Logger
	validate *validator.Validate
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("accesscontrol service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger, validate: validator.New()}
}

type applyRequest struct {
	Type      string    `json:"type" validate:"required,max=64"`
	CompanyID uuid.UUID `json:"companyId" validate:"required"`
}

type applyResponse struct {
	Configured bool           `json:"configured"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// Apply implements POST /api/v1/access-control/apply. The caller's user and
// role come from the authenticated principal, never from the payload.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeNotFound, Title: "Not found", Status: http.StatusNotFound,
		})
		return
	}
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeValidation, Title: "Unauthenticated", Status: http.StatusUnauthorized,
		})
		return
	}

	var req applyRequest
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

	merged, err := h.svc.Resolve(r.Context(), service.Query{
		TenantID:  tc.ID,
		CompanyID: req.CompanyID,
		Type:      req.Type,
		UserID:    principal.UserID,
		RoleID:    principal.RoleID,
	})
	if errors.Is(err, service.ErrNoneConfigured) {
		httpapi.WriteJSON(w, http.StatusOK, applyResponse{Configured: false})
		return
	}
	if err != nil {
		logging.FromRequest(r, h.logger).Error("resolve access control", zap.Error(err))
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError,
		})
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, applyResponse{Configured: true, Settings: merged})
}

type saveRequest struct {
	ID        *uuid.UUID     `json:"id"`
	Type      string         `json:"type" validate:"required,max=64"`
	CompanyID uuid.UUID      `json:"companyId" validate:"required"`
	UserID    *uuid.UUID     `json:"userId"`
	RoleID    *uuid.UUID     `json:"roleId"`
	Settings  map[string]any `json:"settings"`
	IsActive  *bool          `json:"isActive"`
}

type saveResponse struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	CompanyID uuid.UUID      `json:"companyId"`
	UserID    *uuid.UUID     `json:"userId,omitempty"`
	RoleID    *uuid.UUID     `json:"roleId,omitempty"`
	Settings  map[string]any `json:"settings"`
	IsActive  bool           `json:"isActive"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Save implements PUT /api/v1/access-control/configurations. The tenant comes
// from the resolved request context, so a record can never be written into
// another tenant's bucket.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		httpapi.WriteProblem(w, httpapi.Problem{
			Type: httpapi.ProblemTypeNotFound, Title: "Not found", Status: http.StatusNotFound,
		})
		return
	}

	var req saveRequest
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

	cfg := service.Configuration{
		TenantID:  tc.ID,
		CompanyID: req.CompanyID,
		Type:      req.Type,
		UserID:    req.UserID,
		RoleID:    req.RoleID,
		Settings:  req.Settings,
		IsActive:  true,
	}
	if req.ID != nil {
		cfg.ID = *req.ID
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}

	saved, err := h.svc.Save(r.Context(), cfg)
	if err != nil {
		var validationErr *jsonschema.ValidationError
		switch {
		case errors.Is(err, service.ErrInvalidScope), errors.As(err, &validationErr):
			httpapi.WriteProblem(w, httpapi.Problem{
				Type: httpapi.ProblemTypeValidation, Title: "Invalid configuration",
				Detail: err.Error(), Status: http.StatusBadRequest,
			})
		default:
			logging.FromRequest(r, h.logger).Error("save access control", zap.Error(err))
			httpapi.WriteProblem(w, httpapi.Problem{
				Type: httpapi.ProblemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError,
			})
		}
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, saveResponse{
		ID:        saved.ID,
		Type:      saved.Type,
		CompanyID: saved.CompanyID,
		UserID:    saved.UserID,
		RoleID:    saved.RoleID,
		Settings:  saved.Settings,
		IsActive:  saved.IsActive,
		UpdatedAt: saved.UpdatedAt,
	})
}
