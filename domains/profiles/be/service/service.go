package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/domains/profiles/be/repo"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

const resource = "profile"

// Services a profile may bind.
const (
	ServiceLookup    = "lookup"
	ServiceReverse   = "reverse"
	ServiceFavorites = "favorites"
)

var knownServices = map[string]bool{
	ServiceLookup:    true,
	ServiceReverse:   true,
	ServiceFavorites: true,
}

// ServiceConfig is the ordered source list and options of one profile service.
type ServiceConfig struct {
	Sources []uuid.UUID
	Timeout *float64
}

// Profile is the domain view of a profile.
type Profile struct {
	UUID        uuid.UUID
	TenantUUID  uuid.UUID
	Name        string
	DisplayUUID *uuid.UUID
	Services    map[string]ServiceConfig
}

// Input carries the editable fields of a profile. Services replace the
// previous bindings wholesale on update.
type Input struct {
	Name        string
	DisplayUUID *uuid.UUID
	Services    map[string]ServiceConfig
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

// ListResult wraps a page of profiles.
type ListResult struct {
	Items    []Profile
	Total    int
	Filtered int
}

// Service defines the business operations for profiles.
type Service interface {
	Create(ctx context.Context, scope tenant.Scope, input Input) (Profile, error)
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Profile, error)
	List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input Input) (Profile, error)
	Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
}

type service struct {
	profiles repo.Repository
	displays repo.DisplayReader
	sources  repo.SourceReader
}

// New constructs a profiles Service.
func New(profiles repo.Repository, displays repo.DisplayReader, sources repo.SourceReader) Service {
	if profiles == nil {
		panic("profiles repository is required")
	}
	if displays == nil {
		panic("display reader is required")
	}
	if sources == nil {
		panic("source reader is required")
	}
	return &service{profiles: profiles, displays: displays, sources: sources}
}

func (s *service) Create(ctx context.Context, scope tenant.Scope, input Input) (Profile, error) {
	name, err := validate(input)
	if err != nil {
		return Profile{}, err
	}
	if err := s.checkReferences(ctx, scope, scope.TenantUUID, input); err != nil {
		return Profile{}, err
	}

	rec, err := s.profiles.Create(ctx, persistence.ProfileRecord{
		TenantUUID:  scope.TenantUUID,
		Name:        name,
		DisplayUUID: input.DisplayUUID,
		Services:    toRecordServices(input.Services),
	})
	if err != nil {
		return Profile{}, mapPersistenceError(err, uuid.Nil)
	}
	return mapProfile(rec), nil
}

func (s *service) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Profile, error) {
	rec, err := s.profiles.Get(ctx, scope.Tenants(true), id)
	if err != nil {
		return Profile{}, mapPersistenceError(err, id)
	}
	return mapProfile(rec), nil
}

func (s *service) List(ctx context.Context, scope tenant.Scope, opts ListOptions) (ListResult, error) {
	page, err := s.profiles.List(ctx, persistence.ListParams{
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
	items := make([]Profile, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, mapProfile(rec))
	}
	return ListResult{Items: items, Total: page.Total, Filtered: page.Filtered}, nil
}

func (s *service) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, input Input) (Profile, error) {
	name, err := validate(input)
	if err != nil {
		return Profile{}, err
	}
	tenants := scope.Tenants(true)
	current, err := s.profiles.Get(ctx, tenants, id)
	if err != nil {
		return Profile{}, mapPersistenceError(err, id)
	}
	if err := s.checkReferences(ctx, scope, current.TenantUUID, input); err != nil {
		return Profile{}, err
	}

	rec, err := s.profiles.Update(ctx, tenants, persistence.ProfileRecord{
		UUID:        id,
		Name:        name,
		DisplayUUID: input.DisplayUUID,
		Services:    toRecordServices(input.Services),
	})
	if err != nil {
		return Profile{}, mapPersistenceError(err, id)
	}
	return mapProfile(rec), nil
}

func (s *service) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if err := s.profiles.Delete(ctx, scope.Tenants(true), id); err != nil {
		return mapPersistenceError(err, id)
	}
	return nil
}

// checkReferences requires a visible display and sources owned by the
// profile's tenant.
func (s *service) checkReferences(ctx context.Context, scope tenant.Scope, owner uuid.UUID, input Input) error {
	if input.DisplayUUID != nil {
		if _, err := s.displays.Get(ctx, scope.Tenants(true), *input.DisplayUUID); err != nil {
			if errors.Is(err, persistence.ErrDisplayNotFound) {
				return apperr.Invalid("display", fmt.Sprintf("unknown display %s", *input.DisplayUUID))
			}
			return err
		}
	}

	var ids []uuid.UUID
	for _, svc := range input.Services {
		ids = append(ids, svc.Sources...)
	}
	if len(ids) == 0 {
		return nil
	}
	found, err := s.sources.GetByUUIDs(ctx, ids)
	if err != nil {
		return err
	}

	fe := apperr.FieldErrors{}
	for _, name := range sortedNames(input.Services) {
		for _, id := range input.Services[name].Sources {
			src, ok := found[id]
			if !ok || src.TenantUUID != owner {
				fe.Add("services."+name+".sources", fmt.Sprintf("unknown source %s", id))
			}
		}
	}
	return fe.Err()
}

func validate(input Input) (string, error) {
	fe := apperr.FieldErrors{}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		fe.Add("name", "name is required")
	}
	for _, svc := range sortedNames(input.Services) {
		cfg := input.Services[svc]
		if !knownServices[svc] {
			fe.Add("services", fmt.Sprintf("unknown service %q", svc))
			continue
		}
		seen := make(map[uuid.UUID]bool, len(cfg.Sources))
		for _, id := range cfg.Sources {
			if seen[id] {
				fe.Add("services."+svc+".sources", fmt.Sprintf("source %s is listed twice", id))
				continue
			}
			seen[id] = true
		}
		if cfg.Timeout != nil && *cfg.Timeout <= 0 {
			fe.Add("services."+svc+".options.timeout", "must be greater than 0")
		}
	}
	return name, fe.Err()
}

func sortedNames(services map[string]ServiceConfig) []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toRecordServices(in map[string]ServiceConfig) map[string]persistence.ProfileService {
	out := make(map[string]persistence.ProfileService, len(in))
	for name, svc := range in {
		sources := svc.Sources
		if sources == nil {
			sources = []uuid.UUID{}
		}
		out[name] = persistence.ProfileService{
			Sources: sources,
			Options: persistence.ServiceOptions{Timeout: svc.Timeout},
		}
	}
	return out
}

func mapProfile(rec persistence.ProfileRecord) Profile {
	services := make(map[string]ServiceConfig, len(rec.Services))
	for name, svc := range rec.Services {
		sources := svc.Sources
		if sources == nil {
			sources = []uuid.UUID{}
		}
		services[name] = ServiceConfig{Sources: sources, Timeout: svc.Options.Timeout}
	}
	return Profile{
		UUID:        rec.UUID,
		TenantUUID:  rec.TenantUUID,
		Name:        rec.Name,
		DisplayUUID: rec.DisplayUUID,
		Services:    services,
	}
}

func mapPersistenceError(err error, id uuid.UUID) error {
	switch {
	case errors.Is(err, persistence.ErrProfileNotFound):
		return apperr.NotFound(resource, id)
	case errors.Is(err, persistence.ErrProfileConflict):
		return apperr.Duplicate(resource)
	case errors.Is(err, persistence.ErrProfileReference):
		return apperr.Invalid("services", "profile references a missing display or source")
	default:
		return err
	}
}
