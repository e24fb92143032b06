package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/personal/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/csvimport"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
)

const (
	listOperation   = "personalList"
	createOperation = "personalCreate"
	getOperation    = "personalGet"
	updateOperation = "personalUpdate"
	deleteOperation = "personalDelete"
	purgeOperation  = "personalPurge"
	importOperation = "personalImport"
)

// ImportResponse is the body returned by a CSV import.
type ImportResponse struct {
	Created []service.Contact   `json:"created"`
	Failed  []csvimport.Failure `json:"failed"`
}

// Handler exposes the caller's personal contacts over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("personal service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the personal endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/personal", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/", h.Purge)
		r.Post("/import", h.Import)
		r.Get("/{contact_uuid}", h.Get)
		r.Put("/{contact_uuid}", h.Update)
		r.Delete("/{contact_uuid}", h.Delete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	q, err := httpapi.ParseListQuery(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	result, err := h.svc.List(r.Context(), owner, service.ListOptions{
		Search:    q.Search,
		Order:     q.Order,
		Direction: q.Direction,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[service.Contact]{Items: result.Items, Total: result.Total, Filtered: result.Filtered})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	var body map[string]string
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	created, err := h.svc.Create(r.Context(), owner, body)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	w.Header().Set("Location", "/api/v1/personal/"+created["id"])
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	c, err := h.svc.Get(r.Context(), owner, id)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	var body map[string]string
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	updated, err := h.svc.Update(r.Context(), owner, id, body)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerAndID(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, deleteOperation, err)
		return
	}
	if err := h.svc.Delete(r.Context(), owner, id); err != nil {
		httpapi.WriteProblem(w, r, h.logger, deleteOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, purgeOperation, err)
		return
	}
	if err := h.svc.Purge(r.Context(), owner); err != nil {
		httpapi.WriteProblem(w, r, h.logger, purgeOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFrom(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, importOperation, err)
		return
	}
	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, importOperation, err)
		return
	}
	result, err := h.svc.Import(r.Context(), owner, body, r.Header.Get("Content-Type"))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, importOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, ImportResponse{Created: result.Created, Failed: result.Failed})
}

func ownerFrom(r *http.Request) (service.Owner, error) {
	caller, ok := platformauth.CallerFromContext(r.Context())
	if !ok || caller.UserUUID == uuid.Nil {
		return service.Owner{}, apperr.ErrUnauthorized
	}
	return service.Owner{UserUUID: caller.UserUUID, TenantUUID: caller.TenantUUID}, nil
}

func ownerAndID(r *http.Request) (service.Owner, uuid.UUID, error) {
	owner, err := ownerFrom(r)
	if err != nil {
		return service.Owner{}, uuid.Nil, err
	}
	id, err := httpapi.PathUUID("contact_uuid", chi.URLParam(r, "contact_uuid"))
	if err != nil {
		return service.Owner{}, uuid.Nil, err
	}
	return owner, id, nil
}
