package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/personal/be/repo"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/csvimport"
	"github.com/zenGate-Global/palmyra-directory/platform/go/events"
	"github.com/zenGate-Global/palmyra-directory/platform/go/fingerprint"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

const resource = "personal contact"

// Owner identifies the user owning personal contacts.
type Owner struct {
	UserUUID   uuid.UUID
	TenantUUID uuid.UUID
}

// Contact is a personal contact: its fields plus the id key.
type Contact map[string]string

// ListOptions controls filtering and pagination.
type ListOptions struct {
	Search    string
	Order     string
	Direction string
	Limit     *int
	Offset    int
}

// ListResult wraps a page of contacts.
type ListResult struct {
	Items    []Contact
	Total    int
	Filtered int
}

// ImportResult reports the outcome of a CSV import, failures sorted by line.
type ImportResult struct {
	Created []Contact
	Failed  []csvimport.Failure
}

// Service defines the business operations for personal contacts.
type Service interface {
	Create(ctx context.Context, owner Owner, fields map[string]string) (Contact, error)
	Get(ctx context.Context, owner Owner, id uuid.UUID) (Contact, error)
	Update(ctx context.Context, owner Owner, id uuid.UUID, fields map[string]string) (Contact, error)
	Delete(ctx context.Context, owner Owner, id uuid.UUID) error
	Purge(ctx context.Context, owner Owner) error
	List(ctx context.Context, owner Owner, opts ListOptions) (ListResult, error)
	Import(ctx context.Context, owner Owner, body []byte, contentType string) (ImportResult, error)
	HandleUserDeleted(ctx context.Context, env events.Envelope) error
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
}

// New constructs a personal Service backed by the provided repository.
func New(r repo.Repository, logger *zap.Logger) Service {
	if r == nil {
		panic("personal repository is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{repo: r, logger: logger.With(zap.String("component", "personal-service"))}
}

func (s *service) Create(ctx context.Context, owner Owner, fields map[string]string) (Contact, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	clean, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Create(ctx, owner.contactOwner(), clean)
	if err != nil {
		return nil, mapPersistenceError(err, uuid.Nil)
	}
	return rec.Map(), nil
}

func (s *service) Get(ctx context.Context, owner Owner, id uuid.UUID) (Contact, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	rec, err := s.repo.Get(ctx, owner.contactOwner(), id)
	if err != nil {
		return nil, mapPersistenceError(err, id)
	}
	return rec.Map(), nil
}

func (s *service) Update(ctx context.Context, owner Owner, id uuid.UUID, fields map[string]string) (Contact, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	clean, err := normalize(fields)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Update(ctx, owner.contactOwner(), id, clean)
	if err != nil {
		return nil, mapPersistenceError(err, id)
	}
	return rec.Map(), nil
}

func (s *service) Delete(ctx context.Context, owner Owner, id uuid.UUID) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, owner.contactOwner(), id); err != nil {
		return mapPersistenceError(err, id)
	}
	return nil
}

// Purge drops every personal contact of the owner. Favorites on other
// sources are kept.
func (s *service) Purge(ctx context.Context, owner Owner) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	_, err := s.repo.Purge(ctx, owner.contactOwner())
	return err
}

func (s *service) List(ctx context.Context, owner Owner, opts ListOptions) (ListResult, error) {
	if err := requireOwner(owner); err != nil {
		return ListResult{}, err
	}
	page, err := s.repo.List(ctx, owner.contactOwner(), persistence.ContactListParams{
		Search:    opts.Search,
		Order:     opts.Order,
		Direction: opts.Direction,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return ListResult{}, err
	}
	items := make([]Contact, 0, len(page.Items))
	for _, rec := range page.Items {
		items = append(items, rec.Map())
	}
	return ListResult{Items: items, Total: page.Total, Filtered: page.Filtered}, nil
}

func (s *service) Import(ctx context.Context, owner Owner, body []byte, contentType string) (ImportResult, error) {
	if err := requireOwner(owner); err != nil {
		return ImportResult{}, err
	}
	parsed, err := csvimport.Read(body, contentType)
	if err != nil {
		return ImportResult{}, err
	}
	created, failed, err := s.repo.Import(ctx, owner.contactOwner(), parsed.Rows)
	if err != nil {
		return ImportResult{}, mapPersistenceError(err, uuid.Nil)
	}
	out := ImportResult{Created: make([]Contact, 0, len(created)), Failed: csvimport.MergeFailures(parsed.Failed, failed)}
	for _, rec := range created {
		out.Created = append(out.Created, rec.Map())
	}
	return out, nil
}

// HandleUserDeleted drops the personal contacts and favorites of a deleted
// user. Replays find nothing left to delete.
func (s *service) HandleUserDeleted(ctx context.Context, env events.Envelope) error {
	data, err := events.Decode[events.UserDeletedData](env)
	if err != nil {
		s.logger.Warn("dropping malformed event", zap.String("event", env.Name), zap.Error(err))
		return nil
	}
	if data.UUID == uuid.Nil {
		s.logger.Warn("user_deleted event without user uuid")
		return nil
	}
	owner := Owner{UserUUID: data.UUID}
	if data.TenantUUID != nil {
		owner.TenantUUID = *data.TenantUUID
	}
	contacts, favorites, err := s.repo.PurgeUser(ctx, owner.contactOwner())
	if err != nil {
		return err
	}
	s.logger.Info("purged deleted user",
		zap.String("user_uuid", data.UUID.String()),
		zap.Int64("contacts", contacts),
		zap.Int64("favorites", favorites),
	)
	return nil
}

func (o Owner) contactOwner() persistence.ContactOwner {
	return persistence.ContactOwner{UUID: o.UserUUID, TenantUUID: o.TenantUUID}
}

func requireOwner(o Owner) error {
	if o.UserUUID == uuid.Nil {
		return apperr.ErrUnauthorized
	}
	return nil
}

func normalize(fields map[string]string) (map[string]string, error) {
	out, err := fingerprint.Normalize(fields)
	if err != nil {
		return nil, apperr.Invalid("body", err.Error())
	}
	return out, nil
}

func mapPersistenceError(err error, id uuid.UUID) error {
	switch {
	case errors.Is(err, persistence.ErrContactNotFound):
		return apperr.NotFound(resource, id)
	case errors.Is(err, persistence.ErrContactConflict):
		return apperr.Duplicate(resource)
	default:
		return err
	}
}
