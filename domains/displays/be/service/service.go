package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/domains/displays/be/repo"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const resource = "display"

// Display is the domain view of a display.
type Display struct {
	UUID       uuid.UUID
	TenantUUID uuid.UUID
	Name       string
	Columns    []contact.Column
}

// Input carries the editable fields of a display.
type Input struct {
	Name    string
	Columns []contact.Column
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Search    string
	UUID      *uuid.UUID
	Name      *string
	Order     string
	Direction string
	Limit     *int
	Offset    int
	Recurse   bool
}

// ListResult wraps a page of displays.
type ListResult struct {
	Items    []Display
	Total    int
	Filtered int
}

// Service defines the business operations for displays.
type Service interface {
	Create(ctx context.Context, scope tenant.Scope, input Input) (Display, error)
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Display, error)
	List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input Input) (Display, error)
	Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
}

type service struct {
	repo repo.Repository
}

// New constructs a displays Service backed by the provided repository.
func New(r repo.Repository) Service {
	if r == nil {
		panic("displays repository is required")
	}
	return &service{repo: r}
}

func (s *service) Create(ctx context.Context, scope tenant.Scope, input Input) (Display, error) {
	name, err := validate(input)
	if err != nil {
		return Display{}, err
	}
	rec, err := s.repo.Create(ctx, persistence.DisplayRecord{
		TenantUUID: scope.TenantUUID,
		Name:       name,
		Columns:    input.Columns,
	})
	if err != nil {
		return Display{}, mapPersistenceError(err, uuid.Nil)
	}
	return mapDisplay(rec), nil
}

func (s *service) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Display, error) {
	rec, err := s.repo.Get(ctx, scope.Tenants(true), id)
	if err != nil {
		return Display{}, mapPersistenceError(err, id)
	}
	return mapDisplay(rec), nil
}

func (s *service) List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error) {
	page, err := s.repo.List(ctx, persistence.ListParams{
		Tenants:   scope.Tenants(opts.Recurse),
		Search:    opts.Search,
		UUID:      opts.UUID,
		Name:      opts.Name,
		Order:     opts.Order,
		Direction: opts.Direction,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return ListResult{}, err
	}
	items := make([]Display, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, mapDisplay(rec))
	}
	return ListResult{Items: items, Total: page.Total, Filtered: page.Filtered}, nil
}

func (s *service) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input Input) (Display, error) {
	name, err := validate(input)
	if err != nil {
		return Display{}, err
	}
	rec, err := s.repo.Update(ctx, scope.Tenants(true), persistence.DisplayRecord{
		UUID:    id,
		Name:    name,
		Columns: input.Columns,
	})
	if err != nil {
		return Display{}, mapPersistenceError(err, id)
	}
	return mapDisplay(rec), nil
}

func (s *service) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, scope.Tenants(true), id); err != nil {
		return mapPersistenceError(err, id)
	}
	return nil
}

func validate(input Input) (string, error) {
	fe := apperr.FieldErrors{}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		fe.Add("name", "name is required")
	}
	for i, col := range input.Columns {
		if col.Field != nil && strings.TrimSpace(*col.Field) == "" {
			fe.Add("columns", fmt.Sprintf("column %d: field must not be empty", i))
		}
	}
	return name, fe.Err()
}

func mapDisplay(rec persistence.DisplayRecord) Display {
	columns := rec.Columns
	if columns == nil {
		columns = []contact.Column{}
	}
	return Display{UUID: rec.UUID, TenantUUID: rec.TenantUUID, Name: rec.Name, Columns: columns}
}

func mapPersistenceError(err error, id uuid.UUID) error {
	switch {
	case errors.Is(err, persistence.ErrDisplayNotFound):
		return apperr.NotFound(resource, id)
	case errors.Is(err, persistence.ErrDisplayConflict):
		return apperr.Duplicate(resource)
	case errors.Is(err, persistence.ErrDisplayInUse):
		return apperr.Invalid("uuid", "display is used by a profile")
	default:
		return err
	}
}
