package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/lookup/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const (
	lookupOperation      = "directoriesLookup"
	headersOperation     = "directoriesLookupHeaders"
	reverseOperation     = "directoriesReverse"
	reverseManyOperation = "directoriesReverseMany"
	favoritesOperation   = "directoriesFavorites"
	personalOperation    = "directoriesPersonal"
)

// LookupResponse is the JSON form of rows shaped by a display.
type LookupResponse struct {
	ColumnHeaders []*string     `json:"column_headers"`
	ColumnTypes   []*string     `json:"column_types"`
	Results       []contact.Row `json:"results"`
}

// ReverseResponse is the JSON form of a reverse lookup.
type ReverseResponse struct {
	Display *string        `json:"display"`
	Exten   string         `json:"exten"`
	Source  *string        `json:"source"`
	Fields  map[string]any `json:"fields"`
}

// ReverseManyRequest is the body of a bulk reverse lookup.
type ReverseManyRequest struct {
	Extens []string `json:"extens" validate:"required,min=1,max=1000,dive,required"`
}

// ReverseManyResponse lists one entry per requested exten, in request order.
// Unresolved extens are null.
type ReverseManyResponse struct {
	Items []*ReverseResponse `json:"items"`
}

// Handler exposes the aggregation engine over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("lookup service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the directory query endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/directories", func(r chi.Router) {
		r.Get("/lookup/{profile}", h.Lookup)
		r.Get("/lookup/{profile}/headers", h.Headers)
		r.Get("/reverse/{profile}/{user_uuid}", h.Reverse)
		r.Post("/reverse/{profile}/{user_uuid}", h.ReverseMany)
		r.Get("/favorites/{profile}", h.Favorites)
		r.Get("/personal/{profile}", h.Personal)
	})
}

// Lookup handles GET /directories/lookup/{profile}?term=.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	scope, caller, err := identify(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, lookupOperation, err)
		return
	}
	res, err := h.svc.Lookup(r.Context(), scope, caller, chi.URLParam(r, "profile"), r.URL.Query().Get("term"))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, lookupOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toLookupResponse(res))
}

// Headers returns the column headers and types of the profile display.
func (h *Handler) Headers(w http.ResponseWriter, r *http.Request) {
	scope, _, err := identify(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, headersOperation, err)
		return
	}
	res, err := h.svc.Headers(r.Context(), scope, chi.URLParam(r, "profile"))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, headersOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string][]*string{
		"column_headers": res.ColumnHeaders,
		"column_types":   res.ColumnTypes,
	})
}

// Reverse resolves one exten for the user named in the path.
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	scope, caller, err := h.reverseCaller(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, reverseOperation, err)
		return
	}
	exten := r.URL.Query().Get("exten")
	if exten == "" {
		httpapi.WriteProblem(w, r, h.logger, reverseOperation, apperr.Invalid("exten", "must not be empty"))
		return
	}
	res, err := h.svc.Reverse(r.Context(), scope, caller, chi.URLParam(r, "profile"), exten)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, reverseOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, ReverseResponse(res))
}

// ReverseMany resolves a batch of extens; the answer keeps the request order.
func (h *Handler) ReverseMany(w http.ResponseWriter, r *http.Request) {
	scope, caller, err := h.reverseCaller(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, reverseManyOperation, err)
		return
	}
	var body ReverseManyRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, reverseManyOperation, err)
		return
	}
	res, err := h.svc.ReverseMany(r.Context(), scope, caller, chi.URLParam(r, "profile"), body.Extens)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, reverseManyOperation, err)
		return
	}
	items := make([]*ReverseResponse, len(res))
	for i, rr := range res {
		if rr != nil {
			item := ReverseResponse(*rr)
			items[i] = &item
		}
	}
	httpapi.WriteJSON(w, http.StatusOK, ReverseManyResponse{Items: items})
}

// Favorites lists the caller's favorites through the profile display.
func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	scope, caller, err := identify(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, favoritesOperation, err)
		return
	}
	res, err := h.svc.Favorites(r.Context(), scope, caller, chi.URLParam(r, "profile"))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, favoritesOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toLookupResponse(res))
}

// Personal lists the caller's personal contacts through the profile display.
func (h *Handler) Personal(w http.ResponseWriter, r *http.Request) {
	scope, caller, err := identify(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, personalOperation, err)
		return
	}
	res, err := h.svc.PersonalWithDisplay(r.Context(), scope, caller, chi.URLParam(r, "profile"))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, personalOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toLookupResponse(res))
}

// reverseCaller queries on behalf of the user named in the path, within the
// caller's tenant.
func (h *Handler) reverseCaller(r *http.Request) (tenant.Scope, service.Caller, error) {
	scope, caller, err := identify(r)
	if err != nil {
		return tenant.Scope{}, service.Caller{}, err
	}
	user, err := httpapi.PathUUID("user_uuid", chi.URLParam(r, "user_uuid"))
	if err != nil {
		return tenant.Scope{}, service.Caller{}, err
	}
	caller.UserUUID = user
	caller.TenantUUID = scope.TenantUUID
	return scope, caller, nil
}

func identify(r *http.Request) (tenant.Scope, service.Caller, error) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		return tenant.Scope{}, service.Caller{}, err
	}
	c, ok := platformauth.CallerFromContext(r.Context())
	if !ok {
		return tenant.Scope{}, service.Caller{}, apperr.ErrUnauthorized
	}
	return scope, service.Caller{UserUUID: c.UserUUID, TenantUUID: c.TenantUUID, Token: c.Token}, nil
}

func toLookupResponse(res service.Result) LookupResponse {
	rows := res.Rows
	if rows == nil {
		rows = []contact.Row{}
	}
	return LookupResponse{ColumnHeaders: res.ColumnHeaders, ColumnTypes: res.ColumnTypes, Results: rows}
}
