package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/phonebooks/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/csvimport"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const (
	listOperation          = "phonebooksList"
	createOperation        = "phonebooksCreate"
	getOperation           = "phonebooksGet"
	updateOperation        = "phonebooksUpdate"
	deleteOperation        = "phonebooksDelete"
	contactsListOperation  = "phonebookContactsList"
	contactCreateOperation = "phonebookContactsCreate"
	contactGetOperation    = "phonebookContactsGet"
	contactUpdateOperation = "phonebookContactsUpdate"
	contactDeleteOperation = "phonebookContactsDelete"
	importOperation        = "phonebookContactsImport"
)

// Phonebook is the JSON form of a phonebook.
type Phonebook struct {
	UUID        uuid.UUID `json:"uuid"`
	TenantUUID  uuid.UUID `json:"tenant_uuid"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
}

// PhonebookBody is the create and update payload.
type PhonebookBody struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description *string `json:"description"`
}

// ImportResponse is the body returned by a CSV import.
type ImportResponse struct {
	Created []service.Contact   `json:"created"`
	Failed  []csvimport.Failure `json:"failed"`
}

// Handler exposes phonebooks and their contacts over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("phonebooks service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the phonebook endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/phonebooks", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{phonebook_uuid}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
			r.Get("/contacts", h.ListContacts)
			r.Post("/contacts", h.CreateContact)
			r.Post("/contacts/import", h.ImportContacts)
			r.Get("/contacts/{contact_uuid}", h.GetContact)
			r.Put("/contacts/{contact_uuid}", h.UpdateContact)
			r.Delete("/contacts/{contact_uuid}", h.DeleteContact)
		})
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	result, err := h.svc.List(r.Context(), scope, opts)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, listOperation, err)
		return
	}
	items := make([]Phonebook, 0, len(result.Items))
	for _, pb := range result.Items {
		items = append(items, Phonebook(pb))
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[Phonebook]{Items: items, Total: result.Total, Filtered: result.Filtered})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	var body PhonebookBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	created, err := h.svc.Create(r.Context(), scope, service.Input(body))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, createOperation, err)
		return
	}
	w.Header().Set("Location", "/api/v1/phonebooks/"+created.UUID.String())
	httpapi.WriteJSON(w, http.StatusCreated, Phonebook(created))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndPhonebook(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	pb, err := h.svc.Get(r.Context(), scope, id)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, getOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, Phonebook(pb))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndPhonebook(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	var body PhonebookBody
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	if _, err := h.svc.Update(r.Context(), scope, id, service.Input(body)); err != nil {
		httpapi.WriteProblem(w, r, h.logger, updateOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndPhonebook(r)
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

func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndPhonebook(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactsListOperation, err)
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactsListOperation, err)
		return
	}
	page, err := h.svc.ListContacts(r.Context(), scope, id, opts)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactsListOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, httpapi.Page[service.Contact]{Items: page.Items, Total: page.Total, Filtered: page.Filtered})
}

func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndPhonebook(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactCreateOperation, err)
		return
	}
	var body map[string]string
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactCreateOperation, err)
		return
	}
	created, err := h.svc.CreateContact(r.Context(), scope, id, body)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactCreateOperation, err)
		return
	}
	w.Header().Set("Location", "/api/v1/phonebooks/"+id.String()+"/contacts/"+created["id"])
	httpapi.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	scope, pbID, contactID, err := scopeAndContact(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactGetOperation, err)
		return
	}
	c, err := h.svc.GetContact(r.Context(), scope, pbID, contactID)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactGetOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	scope, pbID, contactID, err := scopeAndContact(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactUpdateOperation, err)
		return
	}
	var body map[string]string
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactUpdateOperation, err)
		return
	}
	updated, err := h.svc.UpdateContact(r.Context(), scope, pbID, contactID, body)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactUpdateOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	scope, pbID, contactID, err := scopeAndContact(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactDeleteOperation, err)
		return
	}
	if err := h.svc.DeleteContact(r.Context(), scope, pbID, contactID); err != nil {
		httpapi.WriteProblem(w, r, h.logger, contactDeleteOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ImportContacts(w http.ResponseWriter, r *http.Request) {
	scope, id, err := scopeAndPhonebook(r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, importOperation, err)
		return
	}
	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, importOperation, err)
		return
	}
	result, err := h.svc.ImportContacts(r.Context(), scope, id, body, r.Header.Get("Content-Type"))
	if err != nil {
		httpapi.WriteProblem(w, r, h.logger, importOperation, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, ImportResponse{Created: result.Created, Failed: result.Failed})
}

func listOptions(r *http.Request) (service.ListOptions, error) {
	q, err := httpapi.ParseListQuery(r)
	if err != nil {
		return service.ListOptions{}, err
	}
	return service.ListOptions{
		Search:    q.Search,
		Order:     q.Order,
		Direction: q.Direction,
		Limit:     q.Limit,
		Offset:    q.Offset,
		Recurse:   q.Recurse,
	}, nil
}

func scopeAndPhonebook(r *http.Request) (tenant.Scope, uuid.UUID, error) {
	scope, err := tenant.Require(r.Context())
	if err != nil {
		return tenant.Scope{}, uuid.Nil, err
	}
	id, err := httpapi.PathUUID("phonebook_uuid", chi.URLParam(r, "phonebook_uuid"))
	if err != nil {
		return tenant.Scope{}, uuid.Nil, err
	}
	return scope, id, nil
}

func scopeAndContact(r *http.Request) (tenant.Scope, uuid.UUID, uuid.UUID, error) {
	scope, pbID, err := scopeAndPhonebook(r)
	if err != nil {
		return tenant.Scope{}, uuid.Nil, uuid.Nil, err
	}
	contactID, err := httpapi.PathUUID("contact_uuid", chi.URLParam(r, "contact_uuid"))
	if err != nil {
		return tenant.Scope{}, uuid.Nil, uuid.Nil, err
	}
	return scope, pbID, contactID, nil
}
