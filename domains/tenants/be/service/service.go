package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/events"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

// Tenant is the localization of a tenant.
type Tenant struct {
	UUID      uuid.UUID
	Country   *string
	UpdatedAt time.Time
}

// Service defines the business operations for tenants.
type Service interface {
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Tenant, error)
	SetLocalization(ctx context.Context, id uuid.UUID, country *string) (Tenant, error)
	HandleLocalizationEdited(ctx context.Context, env events.Envelope) error
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
}

// New constructs a tenants Service.
func New(r repo.Repository, logger *zap.Logger) Service {
	if r == nil {
		panic("tenants repository is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{repo: r, logger: logger.With(zap.String("component", "tenants-service"))}
}

// Get returns the localization of a visible tenant. A visible tenant without
// a row yet has no country.
func (s *service) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Tenant, error) {
	if !scope.CanSee(id) {
		return Tenant{}, apperr.NotFound("tenant", id)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrTenantNotFound) {
			return Tenant{UUID: id}, nil
		}
		return Tenant{}, err
	}
	return mapTenant(rec), nil
}

func (s *service) SetLocalization(ctx context.Context, id uuid.UUID, country *string) (Tenant, error) {
	if id == uuid.Nil {
		return Tenant{}, apperr.Invalid("tenant_uuid", "tenant uuid is required")
	}
	if country != nil {
		c := strings.ToUpper(strings.TrimSpace(*country))
		if c == "" {
			country = nil
		} else {
			country = &c
		}
	}
	rec, err := s.repo.UpsertLocalization(ctx, id, country)
	if err != nil {
		return Tenant{}, err
	}
	return mapTenant(rec), nil
}

// HandleLocalizationEdited applies a tenant_localization_edited event.
// Replays converge on the same row.
func (s *service) HandleLocalizationEdited(ctx context.Context, env events.Envelope) error {
	data, err := events.Decode[events.TenantLocalizationData](env)
	if err != nil {
		s.logger.Warn("dropping malformed event", zap.String("event", env.Name), zap.Error(err))
		return nil
	}
	if data.TenantUUID == uuid.Nil {
		s.logger.Warn("localization event without tenant", zap.String("event", env.Name))
		return nil
	}
	if _, err := s.SetLocalization(ctx, data.TenantUUID, data.Country); err != nil {
		return err
	}
	s.logger.Info("tenant localization updated", zap.String("tenant_uuid", data.TenantUUID.String()))
	return nil
}

func mapTenant(rec persistence.TenantRecord) Tenant {
	return Tenant{UUID: rec.UUID, Country: rec.Country, UpdatedAt: rec.UpdatedAt}
}
