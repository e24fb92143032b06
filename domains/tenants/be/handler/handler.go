package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const getOperation = "tenantsGet"

// Tenant is the REST representation of a tenant localization.
type Tenant struct {
	UUID      uuid.UUID  `json:"uuid"`
	Country   *string    `json:"country"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Handler exposes tenant localization over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the tenant endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tenants/{tenant_uuid}", h.Get)
}

// Get implements GET /tenants/{tenant_uuid}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	id, err := httpapi.PathUUID("tenant_uuid", chi.URLParam(r, "tenant_uuid"))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}

	t, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}

	out := Tenant{UUID: t.UUID, Country: t.Country}
	if !t.UpdatedAt.IsZero() {
		updated := t.UpdatedAt
		out.UpdatedAt = &updated
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}
