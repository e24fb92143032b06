package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/domains/phonebooks/be/repo"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/csvimport"
	"github.com/zenGate-Global/palmyra-directory/platform/go/fingerprint"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const (
	phonebookResource = "phonebook"
	contactResource   = "phonebook contact"
)

// Phonebook is a tenant scoped set of shared contacts.
type Phonebook struct {
	UUID        uuid.UUID
	TenantUUID  uuid.UUID
	Name        string
	Description *string
}

// Input carries the writable phonebook fields.
type Input struct {
	Name        string
	Description *string
}

// ListOptions controls phonebook and contact listings.
type ListOptions struct {
	Search    string
	Order     string
	Direction string
	Limit     *int
	Offset    int
	Recurse   bool
}

// ListResult wraps a page of phonebooks.
type ListResult struct {
	Items    []Phonebook
	Total    int
	Filtered int
}

// Contact is a phonebook contact: its fields plus the id key.
type Contact map[string]string

// ContactList wraps a page of contacts.
type ContactList struct {
	Items    []Contact
	Total    int
	Filtered int
}

// ImportResult reports the outcome of a CSV import, failures sorted by line.
type ImportResult struct {
	Created []Contact
	Failed  []csvimport.Failure
}

// Service defines the phonebook operations.
type Service interface {
	Create(ctx context.Context, scope tenant.Scope, input Input) (Phonebook, error)
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Phonebook, error)
	List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input Input) (Phonebook, error)
	Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error

	CreateContact(ctx context.Context, scope tenant.Scope, phonebookUUID uuid.UUID, fields map[string]string) (Contact, error)
	GetContact(ctx context.Context, scope tenant.Scope, phonebookUUID, id uuid.UUID) (Contact, error)
	UpdateContact(ctx context.Context, scope tenant.Scope, phonebookUUID, id uuid.UUID, fields map[string]string) (Contact, error)
	DeleteContact(ctx context.Context, scope tenant.Scope, phonebookUUID, id uuid.UUID) error
	ListContacts(ctx context.Context, scope tenant.Scope, phonebookUUID uuid.UUID, opts ListOptions) (ContactList, error)
	ImportContacts(ctx context.Context, scope tenant.Scope, phonebookUUID uuid.UUID, body []byte, contentType string) (ImportResult, error)
}

type service struct {
	phonebooks repo.Repository
	contacts   repo.ContactRepository
}

// New constructs a phonebook Service.
func New(phonebooks repo.Repository, contacts repo.ContactRepository) Service {
	if phonebooks == nil {
		panic("phonebook repository is required")
	}
	if contacts == nil {
		panic("phonebook contact repository is required")
	}
	return &service{phonebooks: phonebooks, contacts: contacts}
}

func (s *service) Create(ctx context.Context, scope tenant.Scope, input Input) (Phonebook, error) {
	input, err := validate(input)
	if err != nil {
		return Phonebook{}, err
	}
	rec, err := s.phonebooks.Create(ctx, persistence.PhonebookRecord{
		TenantUUID:  scope.TenantUUID,
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		return Phonebook{}, mapPhonebookError(err, uuid.Nil)
	}
	return fromRecord(rec), nil
}

func (s *service) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Phonebook, error) {
	rec, err := s.phonebooks.Get(ctx, scope.Tenants(true), id)
	if err != nil {
		return Phonebook{}, mapPhonebookError(err, id)
	}
	return fromRecord(rec), nil
}

func (s *service) List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error) {
	page, err := s.phonebooks.List(ctx, persistence.ListParams{
		Tenants:   scope.Tenants(opts.Recurse),
		Search:    opts.Search,
		Order:     opts.Order,
		Direction: opts.Direction,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return ListResult{}, err
	}
	items := make([]Phonebook, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, fromRecord(rec))
	}
	return ListResult{Items: items, Total: page.Total, Filtered: page.Filtered}, nil
}

func (s *service) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input Input) (Phonebook, error) {
	input, err := validate(input)
	if err != nil {
		return Phonebook{}, err
	}
	rec, err := s.phonebooks.Update(ctx, scope.Tenants(true), persistence.PhonebookRecord{
		UUID:        id,
		Name:        input.Name,
		Description: input.Description,
	})
	if err != nil {
		return Phonebook{}, mapPhonebookError(err, id)
	}
	return fromRecord(rec), nil
}

func (s *service) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if err := s.phonebooks.Delete(ctx, scope.Tenants(true), id); err != nil {
		return mapPhonebookError(err, id)
	}
	return nil
}

func (s *service) CreateContact(ctx context.Context, scope tenant.Scope, phonebookUUID uuid.UUID, fields map[string]string) (Contact, error) {
	owner, err := s.owner(ctx, scope, phonebookUUID)
	if err != nil {
		return nil, err
	}
	clean, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	rec, err := s.contacts.Create(ctx, owner, clean)
	if err != nil {
		return nil, mapContactError(err, uuid.Nil)
	}
	return rec.Map(), nil
}

func (s *service) GetContact(ctx context.Context, scope tenant.Scope, phonebookUUID, id uuid.UUID) (Contact, error) {
	owner, err := s.owner(ctx, scope, phonebookUUID)
	if err != nil {
		return nil, err
	}
	rec, err := s.contacts.Get(ctx, owner, id)
	if err != nil {
		return nil, mapContactError(err, id)
	}
	return rec.Map(), nil
}

func (s *service) UpdateContact(ctx context.Context, scope tenant.Scope, phonebookUUID, id uuid.UUID, fields map[string]string) (Contact, error) {
	owner, err := s.owner(ctx, scope, phonebookUUID)
	if err != nil {
		return nil, err
	}
	clean, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	rec, err := s.contacts.Update(ctx, owner, id, clean)
	if err != nil {
		return nil, mapContactError(err, id)
	}
	return rec.Map(), nil
}

func (s *service) DeleteContact(ctx context.Context, scope tenant.Scope, phonebookUUID, id uuid.UUID) error {
	owner, err := s.owner(ctx, scope, phonebookUUID)
	if err != nil {
		return err
	}
	if err := s.contacts.Delete(ctx, owner, id); err != nil {
		return mapContactError(err, id)
	}
	return nil
}

func (s *service) ListContacts(ctx context.Context, scope tenant.Scope, phonebookUUID uuid.UUID, opts ListOptions) (ContactList, error) {
	owner, err := s.owner(ctx, scope, phonebookUUID)
	if err != nil {
		return ContactList{}, err
	}
	page, err := s.contacts.List(ctx, owner, persistence.ContactListParams{
		Search:    opts.Search,
		Order:     opts.Order,
		Direction: opts.Direction,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return ContactList{}, err
	}
	items := make([]Contact, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, rec.Map())
	}
	return ContactList{Items: items, Total: page.Total, Filtered: page.Filtered}, nil
}

func (s *service) ImportContacts(ctx context.Context, scope tenant.Scope, phonebookUUID uuid.UUID, body []byte, contentType string) (ImportResult, error) {
	owner, err := s.owner(ctx, scope, phonebookUUID)
	if err != nil {
		return ImportResult{}, err
	}
	parsed, err := csvimport.Read(body, contentType)
	if err != nil {
		return ImportResult{}, err
	}
	created, failed, err := s.contacts.Import(ctx, owner, parsed.Rows)
	if err != nil {
		return ImportResult{}, mapContactError(err, uuid.Nil)
	}
	out := ImportResult{Created: make([]Contact, 0, len(created)), Failed: csvimport.MergeFailures(parsed.Failed, failed)}
	for _, rec := range created {
		out.Created = append(out.Created, rec.Map())
	}
	return out, nil
}

// owner resolves a phonebook visible from scope into the key of its contacts.
func (s *service) owner(ctx context.Context, scope tenant.Scope, phonebookUUID uuid.UUID) (persistence.ContactOwner, error) {
	pb, err := s.phonebooks.Get(ctx, scope.Tenants(true), phonebookUUID)
	if err != nil {
		return persistence.ContactOwner{}, mapPhonebookError(err, phonebookUUID)
	}
	return persistence.ContactOwner{UUID: pb.UUID, TenantUUID: pb.TenantUUID}, nil
}

func validate(input Input) (Input, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Input{}, apperr.Invalid("name", "is required")
	}
	return input, nil
}

func normalize(fields map[string]string) (map[string]string, error) {
	out, err := fingerprint.Normalize(fields)
	if err != nil {
		return nil, apperr.Invalid("body", err.Error())
	}
	return out, nil
}

func fromRecord(rec persistence.PhonebookRecord) Phonebook {
	return Phonebook{UUID: rec.UUID, TenantUUID: rec.TenantUUID, Name: rec.Name, Description: rec.Description}
}

func mapPhonebookError(err error, id uuid.UUID) error {
	switch {
	case errors.Is(err, persistence.ErrPhonebookNotFound):
		return apperr.NotFound(phonebookResource, id)
	case errors.Is(err, persistence.ErrPhonebookConflict):
		return apperr.Duplicate(phonebookResource)
	default:
		return err
	}
}

func mapContactError(err error, id uuid.UUID) error {
	switch {
	case errors.Is(err, persistence.ErrContactNotFound):
		return apperr.NotFound(contactResource, id)
	case errors.Is(err, persistence.ErrContactConflict):
		return apperr.Duplicate(contactResource)
	case errors.Is(err, persistence.ErrPhonebookNotFound):
		return apperr.NotFound(phonebookResource, id)
	default:
		return err
	}
}
