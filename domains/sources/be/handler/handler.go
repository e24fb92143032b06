package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/sources/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const (
	backendsOperation = "backendsList"
	listAllOperation  = "sourcesListAll"
	listOperation     = "sourcesList"
	createOperation   = "sourcesCreate"
	getOperation      = "sourcesGet"
	updateOperation   = "sourcesUpdate"
	deleteOperation   = "sourcesDelete"
	contactsOperation = "sourcesContacts"
)

// Keys handled by the common source columns. Every other key of a body is
// backend specific.
var commonKeys = map[string]struct{}{
	"uuid":                  {},
	"tenant_uuid":           {},
	"backend":               {},
	"name":                  {},
	"searched_columns":      {},
	"first_matched_columns": {},
	"format_columns":        {},
}

// SourceBody holds the common fields of a source payload.
type SourceBody struct {
	Name                string            `json:"name" validate:"required,max=512"`
	SearchedColumns     []string          `json:"searched_columns" validate:"dive,required"`
	FirstMatchedColumns []string          `json:"first_matched_columns" validate:"dive,required"`
	FormatColumns       map[string]string `json:"format_columns"`
}

// Backend is one entry of the backends listing.
type Backend struct {
	Name string `json:"name"`
}

// Handler exposes the sources service over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("sources service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the backend and source endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/sources", h.ListAll)
	r.Route("/backends", func(r chi.Router) {
		r.Get("/", h.Backends)
		r.Route("/{backend}/sources", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Get("/{source_uuid}", h.Get)
			r.Put("/{source_uuid}", h.Update)
			r.Delete("/{source_uuid}", h.Delete)
			r.Get("/{source_uuid}/contacts", h.Contacts)
		})
	})
}

func (h *Handler) Backends(w http.ResponseWriter, r *http.Request) {
	if _, err := tenant.Require(r.Context()); err != nil {
		httpapi.WriteProblem(w, r, h.logger, backendsOperation, err)
		return
	}
	items := make([]Backend, 0, len(sources.Backends))
	for _, b := range sources.Backends {
		items = append(items, Backend{Name: string(b)})
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[Backend]{Items: items, Total: len(items), Filtered: len(items)})
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "", listAllOperation)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, chi.URLParam(r, "backend"), listOperation)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, backend, op string) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, op, err)
		return
	}
	q, err := httpapi.ParseListQuery(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, op, err)
		return
	}
	opts := service.ListOptions{
		Backend:   backend,
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
			httpapi.WriteProblem(w, r, h.logger, op, err)
			return
		}
		opts.UUID = &id
	}
	if opts.Backend == "" {
		opts.Backend = strings.TrimSpace(r.URL.Query().Get("backend"))
	}

	result, err := h.svc.List(r.Context(), scope, opts)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, op, err)
		return
	}
	items := make([]map[string]any, 0, len(result.Items))
	for _, s := range result.Items {
		items = append(items, toAPISource(s))
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[map[string]any]{Items: items, Total: result.Total, Filtered: result.Filtered})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	input, err := decodeSource(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}

	backend := chi.URLParam(r, "backend")
	created, err := h.svc.Create(r.Context(), scope, backend, input)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	w.Header().Set("Location", "/api/v1/backends/"+backend+"/sources/"+created.UUID.String())
	httpapi.WriteJSON(w, http.StatusCreated, toAPISource(created))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	s, err := h.svc.Get(r.Context(), scope, chi.URLParam(r, "backend"), id)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPISource(s))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	input, err := decodeSource(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	if _, err := h.svc.Update(r.Context(), scope, chi.URLParam(r, "backend"), id, input); err != nil {
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
	if err := h.svc.Delete(r.Context(), scope, chi.URLParam(r, "backend"), id); err != nil {
		httpapi.WriteProblem(w, r, h.logger, deleteOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactsOperation, err)
		return
	}
	q, err := httpapi.ParseListQuery(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactsOperation, err)
		return
	}

	var caller service.Caller
	if c, ok := platformauth.CallerFromContext(r.Context()); ok {
		caller = service.Caller{UserUUID: c.UserUUID, Token: c.Token}
	}

	page, err := h.svc.Contacts(r.Context(), scope, caller, chi.URLParam(r, "backend"), id, sources.ListOptions{
		Search:    q.Search,
		Order:     q.Order,
		Direction: q.Direction,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactsOperation, err)
		return
	}
	items := make([]map[string]any, 0, len(page.Items))
	for _, c := range page.Items {
		items = append(items, c.Fields)
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[map[string]any]{Items: items, Total: page.Total, Filtered: page.Filtered})
}

func scopeAndID(r *http.Request) (tenant.Scope, uuid.UUID, error) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		return tenant.Scope{}, uuid.Nil, err
	}
	id, err := httpapi.PathUUID("source_uuid", chi.URLParam(r, "source_uuid"))
	if err != nil {
		return tenant.Scope{}, uuid.Nil, err
	}
	return scope, id, nil
}

// decodeSource splits a flat source payload into the common fields and the
// backend specific remainder.
func decodeSource(r *http.Request) (service.Input, error) {
	var raw map[string]json.RawMessage
	if err := httpapi.DecodeJSON(r, &raw); err != nil {
		return service.Input{}, err
	}
	if raw == nil {
		return service.Input{}, apperr.Invalid("body", "request body must be an object")
	}

	common := make(map[string]json.RawMessage, len(commonKeys))
	extra := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		if _, ok := commonKeys[k]; ok {
			common[k] = v
			continue
		}
		extra[k] = v
	}

	commonJSON, err := json.Marshal(common)
	if err != nil {
		return service.Input{}, err
	}
	var body SourceBody
	if err := json.Unmarshal(commonJSON, &body); err != nil {
		return service.Input{}, apperr.Invalid("body", err.Error())
	}
	if err := httpapi.Validate(body); err != nil {
		return service.Input{}, err
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return service.Input{}, err
	}

	return service.Input{
		Name:                body.Name,
		SearchedColumns:     body.SearchedColumns,
		FirstMatchedColumns: body.FirstMatchedColumns,
		FormatColumns:       body.FormatColumns,
		Extra:               extraJSON,
	}, nil
}

// toAPISource flattens the backend specific settings next to the common fields.
func toAPISource(s service.Source) map[string]any {
	out := map[string]any{}
	if len(s.Extra) > 0 {
		_ = json.Unmarshal(s.Extra, &out)
		if out == nil {
			out = map[string]any{}
		}
	}
	formats := s.FormatColumns
	if formats == nil {
		formats = map[string]string{}
	}
	out["uuid"] = s.UUID
	out["tenant_uuid"] = s.TenantUUID
	out["backend"] = s.Backend
	out["name"] = s.Name
	out["searched_columns"] = s.SearchedColumns
	out["first_matched_columns"] = s.FirstMatchedColumns
	out["format_columns"] = formats
	return out
}
