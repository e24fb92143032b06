package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/profiles/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const (
	createOperation = "profilesCreate"
	listOperation   = "profilesList"
	getOperation    = "profilesGet"
	updateOperation = "profilesUpdate"
	deleteOperation = "profilesDelete"
)

// Ref points at another resource by uuid.
type Ref struct {
	UUID uuid.UUID `json:"uuid" validate:"required"`
}

// ServiceOptions are the per-service knobs.
type ServiceOptions struct {
	Timeout *float64 `json:"timeout,omitempty" validate:"omitempty,gt=0"`
}

// ServiceBody is one service of a profile.
type ServiceBody struct {
	Sources []Ref          `json:"sources" validate:"dive"`
	Options ServiceOptions `json:"options"`
}

// ProfileBody is the create and update payload.
type ProfileBody struct {
	Name     string                 `json:"name" validate:"required,max=512"`
	Display  *Ref                   `json:"display"`
	Services map[string]ServiceBody `json:"services" validate:"dive,keys,oneof=lookup reverse favorites,endkeys"`
}

// Profile is the REST representation of a profile.
type Profile struct {
	UUID       uuid.UUID              `json:"uuid"`
	TenantUUID uuid.UUID              `json:"tenant_uuid"`
	Name       string                 `json:"name"`
	Display    *Ref                   `json:"display"`
	Services   map[string]ServiceBody `json:"services"`
}

// Handler exposes the profiles service over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("profiles service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the profile endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{profile_uuid}", h.Get)
		r.Put("/{profile_uuid}", h.Update)
		r.Delete("/{profile_uuid}", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	q, err := httpapi.ParseListQuery(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	opts := service.ListOptions{
		Search:    q.Search,
		Order:     q.Order,
		Direction: q.Direction,
		Limit:     q.Limit,
		Offset:    q.Offset,
		Recurse:   q.Recurse,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("name")); raw != "" {
		opts.Name = &raw
	}
	if raw := r.URL.Query().Get("uuid"); raw != "" {
		id, err := httpapi.PathUUID("uuid", raw)
		if err != nil {
			httpapi.WriteProblem(w, r, h.logger, listOperation, err)
			return
		}
		opts.UUID = &id
	}

	result, err := h.svc.List(r.Context(), scope, opts)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	items := make([]Profile, 0, len(result.Items))
	for _, p := range result.Items {
		items = append(items, toAPIProfile(p))
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[Profile]{Items: items, Total: result.Total, Filtered: result.Filtered})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	var body ProfileBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}

	created, err := h.svc.Create(r.Context(), scope, toServiceInput(body))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	w.Header().Set("Location", "/api/v1/profiles/"+created.UUID.String())
	httpapi.WriteJSON(w, http.StatusCreated, toAPIProfile(created))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	p, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIProfile(p))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	var body ProfileBody
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
	id, err := httpapi.PathUUID("profile_uuid", chi.URLParam(r, "profile_uuid"))
	if err != nil {
		return tenant.Scope{}, uuid.Nil, err
	}
	return scope, id, nil
}

func toServiceInput(body ProfileBody) service.Input {
	input := service.Input{Name: body.Name, Services: make(map[string]service.ServiceConfig, len(body.Services))}
	if body.Display != nil {
		id := body.Display.UUID
		input.DisplayUUID = &id
	}
	for name, svc := range body.Services {
		sources := make([]uuid.UUID, 0, len(svc.Sources))
		for _, ref := range svc.Sources {
			sources = append(sources, ref.UUID)
		}
		input.Services[name] = service.ServiceConfig{Sources: sources, Timeout: svc.Options.Timeout}
	}
	return input
}

func toAPIProfile(p service.Profile) Profile {
	out := Profile{
		UUID:       p.UUID,
		TenantUUID: p.TenantUUID,
		Name:       p.Name,
		Services:   make(map[string]ServiceBody, len(p.Services)),
	}
	if p.DisplayUUID != nil {
		out.Display = &Ref{UUID: *p.DisplayUUID}
	}
	for name, svc := range p.Services {
		refs := make([]Ref, 0, len(svc.Sources))
		for _, id := range svc.Sources {
			refs = append(refs, Ref{UUID: id})
		}
		out.Services[name] = ServiceBody{Sources: refs, Options: ServiceOptions{Timeout: svc.Timeout}}
	}
	return out
}
