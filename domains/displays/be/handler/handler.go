package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/displays/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const (
	createOperation = "displaysCreate"
	listOperation   = "displaysList"
	getOperation    = "displaysGet"
	updateOperation = "displaysUpdate"
	deleteOperation = "displaysDelete"
)

// Display is the REST representation of a display.
type Display struct {
	UUID       uuid.UUID        `json:"uuid"`
	TenantUUID uuid.UUID        `json:"tenant_uuid"`
	Name       string           `json:"name"`
	Columns    []contact.Column `json:"columns"`
}

// DisplayBody is the create and update payload.
type DisplayBody struct {
	Name    string           `json:"name" validate:"required,max=512"`
	Columns []contact.Column `json:"columns" validate:"max=128"`
}

// Handler exposes the displays service over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("displays service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the display endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/displays", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{display_uuid}", h.Get)
		r.Put("/{display_uuid}", h.Update)
		r.Delete("/{display_uuid}", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	opts, err := buildListOptions(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}

	result, err := h.svc.List(r.Context(), scope, opts)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}

	items := make([]Display, 0, len(result.Items))
	for _, d := range result.Items {
		items = append(items, toAPIDisplay(d))
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[Display]{Items: items, Total: result.Total, Filtered: result.Filtered})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	var body DisplayBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}

	created, err := h.svc.Create(r.Context(), scope, toServiceInput(body))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}

	w.Header().Set("Location", "/api/v1/displays/"+created.UUID.String())
	httpapi.WriteJSON(w, http.StatusCreated, toAPIDisplay(created))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}

	d, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIDisplay(d))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	var body DisplayBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}

	if _, err := h.svc.Update(r.Context(), scope, id, toServiceInput(body)); err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, deleteOperation, err)
		return
	}

	if err := h.svc.Delete(r.Context(), scope, id); err != nil {
		httpapi.WriteProblem(w, r, h.logger, deleteOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func scopeAndID(r *http.Request) (tenant.Scope, uuid.UUID, error) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		return tenant.Scope{}, uuid.Nil, err
	}
	id, err := httpapi.PathUUID("display_uuid", chi.URLParam(r, "display_uuid"))
	if err != nil {
		return tenant.Scope{}, uuid.Nil, err
	}
	return scope, id, nil
}

func buildListOptions(r *http.Request) (service.ListOptions, error) {
	q, err := httpapi.ParseListQuery(r)
	if err != nil {
		return service.ListOptions{}, err
	}
	opts := service.ListOptions{
		Search:    q.Search,
		Order:     q.Order,
		Direction: q.Direction,
		Limit:     q.Limit,
		Offset:    q.Offset,
		Recurse:   q.Recurse,
	}
	if raw := r.URL.Query().Get("uuid"); raw != "" {
		id, err := httpapi.PathUUID("uuid", raw)
		if err != nil {
			return service.ListOptions{}, err
		}
		opts.UUID = &id
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("name")); raw != "" {
		opts.Name = &raw
	}
	return opts, nil
}

func toServiceInput(body DisplayBody) service.Input {
	return service.Input{Name: body.Name, Columns: body.Columns}
}

func toAPIDisplay(d service.Display) Display {
	return Display{UUID: d.UUID, TenantUUID: d.TenantUUID, Name: d.Name, Columns: d.Columns}
}
