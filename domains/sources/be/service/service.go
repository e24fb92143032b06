package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/sources/be/repo"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const resource = "source"

// Source is the domain view of a source.
type Source struct {
	UUID                uuid.UUID
	TenantUUID          uuid.UUID
	Backend             string
	Name                string
	SearchedColumns     []string
	FirstMatchedColumns []string
	FormatColumns       map[string]string
	Extra               json.RawMessage
}

// Input carries the editable fields of a source. Extra holds the backend
// specific settings and is validated against the backend schema.
type Input struct {
	Name                string
	SearchedColumns     []string
	FirstMatchedColumns []string
	FormatColumns       map[string]string
	Extra               json.RawMessage
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Backend   string
	Search    string
	UUID      *uuid.UUID
	Name      *string
	Order     string
	Direction string
	Limit     *int
	Offset    int
	Recurse   bool
}

// ListResult wraps a page of sources.
type ListResult struct {
	Items    []Source
	Total    int
	Filtered int
}

// Caller identifies who browses a source's contacts.
type Caller struct {
	UserUUID uuid.UUID
	Token    string
}

// ContactsResult is one page of a source's contacts.
type ContactsResult struct {
	Items    []contact.Contact
	Total    int
	Filtered int
}

// Service defines the business operations for sources.
type Service interface {
	Create(ctx context.Context, scope tenant.Scope, backend string, input Input) (Source, error)
	Get(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID) (Source, error)
	List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID, input Input) (Source, error)
	Delete(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID) error
	Contacts(ctx context.Context, scope tenant.Scope, caller Caller, backend string, id uuid.UUID, opts sources.ListOptions) (ContactsResult, error)
}

type service struct {
	repo       repo.Repository
	registry   repo.Registry
	phonebooks repo.Phonebooks
	logger     *zap.Logger
}

// New constructs a sources Service. Writes are mirrored into registry. A
// phonebook source may only bind a phonebook of its own tenant.
func New(r repo.Repository, reg repo.Registry, phonebooks repo.Phonebooks, logger *zap.Logger) Service {
	if r == nil {
		panic("sources repository is required")
	}
	if reg == nil {
		panic("source registry is required")
	}
	if phonebooks == nil {
		panic("phonebooks repository is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{
		repo:       r,
		registry:   reg,
		phonebooks: phonebooks,
		logger:     logger.With(zap.String("component", "sources-service")),
	}
}

func (s *service) Create(ctx context.Context, scope tenant.Scope, backend string, input Input) (Source, error) {
	b, err := parseBackend(backend)
	if err != nil {
		return Source{}, err
	}
	rec, cfg, err := validate(b, input)
	if err != nil {
		return Source{}, err
	}
	rec.TenantUUID = scope.TenantUUID
	if err := s.checkPhonebook(ctx, rec.TenantUUID, cfg); err != nil {
		return Source{}, err
	}

	created, err := s.repo.Create(ctx, rec)
	if err != nil {
		return Source{}, mapPersistenceError(err, uuid.Nil)
	}
	s.load(created)
	return mapSource(created), nil
}

func (s *service) Get(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID) (Source, error) {
	if _, err := parseBackend(backend); err != nil {
		return Source{}, err
	}
	rec, err := s.repo.Get(ctx, scope.Tenants(true), backend, id)
	if err != nil {
		return Source{}, mapPersistenceError(err, id)
	}
	return mapSource(rec), nil
}

func (s *service) List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error) {
	params := persistence.ListParams{
		Tenants:   scope.Tenants(opts.Recurse),
		Search:    opts.Search,
		UUID:      opts.UUID,
		Name:      opts.Name,
		Order:     opts.Order,
		Direction: opts.Direction,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	}
	if opts.Backend != "" {
		if _, err := parseBackend(opts.Backend); err != nil {
			return ListResult{}, err
		}
		backend := opts.Backend
		params.Backend = &backend
	}

	page, err := s.repo.List(ctx, params)
	if err != nil {
		return ListResult{}, err
	}
	items := make([]Source, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, mapSource(rec))
	}
	return ListResult{Items: items, Total: page.Total, Filtered: page.Filtered}, nil
}

func (s *service) Update(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID, input Input) (Source, error) {
	b, err := parseBackend(backend)
	if err != nil {
		return Source{}, err
	}
	rec, cfg, err := validate(b, input)
	if err != nil {
		return Source{}, err
	}
	rec.UUID = id
	if cfg.Phonebook != nil {
		current, err := s.repo.Get(ctx, scope.Tenants(true), backend, id)
		if err != nil {
			return Source{}, mapPersistenceError(err, id)
		}
		if err := s.checkPhonebook(ctx, current.TenantUUID, cfg); err != nil {
			return Source{}, err
		}
	}

	updated, err := s.repo.Update(ctx, scope.Tenants(true), rec)
	if err != nil {
		return Source{}, mapPersistenceError(err, id)
	}
	s.load(updated)
	return mapSource(updated), nil
}

func (s *service) Delete(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID) error {
	if _, err := parseBackend(backend); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, scope.Tenants(true), backend, id); err != nil {
		return mapPersistenceError(err, id)
	}
	s.registry.Remove(id)
	return nil
}

func (s *service) Contacts(ctx context.Context, scope tenant.Scope, caller Caller, backend string, id uuid.UUID, opts sources.ListOptions) (ContactsResult, error) {
	if _, err := parseBackend(backend); err != nil {
		return ContactsResult{}, err
	}
	rec, err := s.repo.Get(ctx, scope.Tenants(true), backend, id)
	if err != nil {
		return ContactsResult{}, mapPersistenceError(err, id)
	}

	entry, ok := s.registry.Get(id)
	if !ok || entry.Broken() {
		return ContactsResult{}, fmt.Errorf("source %s is not loaded", rec.Name)
	}
	lister, ok := entry.Plugin.(sources.ContactsLister)
	if !ok {
		return ContactsResult{}, apperr.Invalid("backend", fmt.Sprintf("backend %s cannot list contacts", backend))
	}

	page, err := lister.ListContacts(ctx, sources.Args{
		UserUUID:   caller.UserUUID,
		TenantUUID: rec.TenantUUID,
		Token:      caller.Token,
	}, opts)
	if err != nil {
		return ContactsResult{}, err
	}
	items := page.Items
	if items == nil {
		items = []contact.Contact{}
	}
	return ContactsResult{Items: items, Total: page.Total, Filtered: page.Filtered}, nil
}

// load swaps the source into the registry. A load failure leaves the source
// registered as broken; the write itself has succeeded.
func (s *service) load(rec persistence.SourceRecord) {
	if err := s.registry.Put(rec.Definition()); err != nil {
		s.logger.Warn("source saved but failed to load",
			zap.String("source", rec.Name),
			zap.String("source_uuid", rec.UUID.String()),
			zap.Error(err),
		)
	}
}

// checkPhonebook rejects a phonebook source bound to a phonebook outside the
// tenant owning the source.
func (s *service) checkPhonebook(ctx context.Context, owner uuid.UUID, cfg sources.Config) error {
	if cfg.Phonebook == nil {
		return nil
	}
	_, err := s.phonebooks.Get(ctx, []uuid.UUID{owner}, cfg.Phonebook.PhonebookUUID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrPhonebookNotFound):
		return apperr.Invalid("phonebook_uuid", fmt.Sprintf("phonebook %s not found", cfg.Phonebook.PhonebookUUID))
	default:
		return err
	}
}

func parseBackend(name string) (sources.Backend, error) {
	b, ok := sources.ParseBackend(name)
	if !ok {
		return "", apperr.NotFound("backend", name)
	}
	return b, nil
}

func validate(backend sources.Backend, input Input) (persistence.SourceRecord, sources.Config, error) {
	fe := apperr.FieldErrors{}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		fe.Add("name", "name is required")
	}
	if err := fe.Err(); err != nil {
		return persistence.SourceRecord{}, sources.Config{}, err
	}

	extra := input.Extra
	if len(extra) == 0 || string(extra) == "null" {
		extra = json.RawMessage(`{}`)
	}
	rec := persistence.SourceRecord{
		Backend:             string(backend),
		Name:                name,
		SearchedColumns:     input.SearchedColumns,
		FirstMatchedColumns: input.FirstMatchedColumns,
		FormatColumns:       input.FormatColumns,
		Extra:               extra,
	}
	cfg, err := sources.Decode(rec.Definition())
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidData) {
			return persistence.SourceRecord{}, sources.Config{}, err
		}
		return persistence.SourceRecord{}, sources.Config{}, apperr.Invalid("body", err.Error())
	}
	return rec, cfg, nil
}

func mapSource(rec persistence.SourceRecord) Source {
	return Source{
		UUID:                rec.UUID,
		TenantUUID:          rec.TenantUUID,
		Backend:             rec.Backend,
		Name:                rec.Name,
		SearchedColumns:     nonNil(rec.SearchedColumns),
		FirstMatchedColumns: nonNil(rec.FirstMatchedColumns),
		FormatColumns:       rec.FormatColumns,
		Extra:               rec.Extra,
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func mapPersistenceError(err error, id uuid.UUID) error {
	switch {
	case errors.Is(err, persistence.ErrSourceNotFound):
		return apperr.NotFound(resource, id)
	case errors.Is(err, persistence.ErrSourceConflict):
		return apperr.Duplicate(resource)
	default:
		return err
	}
}
