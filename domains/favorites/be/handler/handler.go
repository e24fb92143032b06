package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/favorites/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const (
	listOperation   = "favoritesList"
	addOperation    = "favoritesAdd"
	removeOperation = "favoritesRemove"
)

// Favorite is the JSON form of a favorite.
type Favorite struct {
	SourceUUID uuid.UUID `json:"source_uuid"`
	Source     string    `json:"source"`
	Backend    string    `json:"backend"`
	EntryID    string    `json:"entry_id"`
}

// Handler exposes favorites over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("favorites service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the favorites endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/favorites", func(r chi.Router) {
		r.Get("/", h.List)
		r.Put("/{source_uuid}/{entry_id}", h.Add)
		r.Delete("/{source_uuid}/{entry_id}", h.Remove)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, caller, err := identify(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	favs, err := h.svc.List(r.Context(), scope, caller)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	items := make([]Favorite, 0, len(favs))
	for _, f := range favs {
		items = append(items, Favorite(f))
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[Favorite]{Items: items, Total: len(items), Filtered: len(items)})
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, addOperation, h.svc.Add)
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, removeOperation, h.svc.Remove)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, tenant.Scope, service.Caller, uuid.UUID, string) error) {
	scope, caller, err := identify(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, op, err)
		return
	}
	sourceUUID, err := httpapi.PathUUID("source_uuid", chi.URLParam(r, "source_uuid"))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, op, err)
		return
	}
	if err := fn(r.Context(), scope, caller, sourceUUID, chi.URLParam(r, "entry_id")); err != nil {
		httpapi.WriteProblem(w, r, h.logger, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func identify(r *http.Request) (tenant.Scope, service.Caller, error) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		return tenant.Scope{}, service.Caller{}, err
	}
	c, ok := platformauth.CallerFromContext(r.Context())
	if !ok || c.UserUUID == uuid.Nil {
		return tenant.Scope{}, service.Caller{}, apperr.ErrUnauthorized
	}
	return scope, service.Caller{UserUUID: c.UserUUID, TenantUUID: c.TenantUUID}, nil
}
