package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/favorites/be/repo"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/events"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

// Caller identifies the user marking favorites.
type Caller struct {
	UserUUID   uuid.UUID
	TenantUUID uuid.UUID
}

// Favorite is one marked entry, resolved against its source.
type Favorite struct {
	SourceUUID uuid.UUID
	Source     string
	Backend    string
	EntryID    string
}

// Service defines the favorite operations.
type Service interface {
	Add(ctx context.Context, scope tenant.Scope, caller Caller, sourceUUID uuid.UUID, entryID string) error
	Remove(ctx context.Context, scope tenant.Scope, caller Caller, sourceUUID uuid.UUID, entryID string) error
	List(ctx context.Context, scope tenant.Scope, caller Caller) ([]Favorite, error)
}

type service struct {
	repo      repo.Repository
	sources   repo.SourceReader
	publisher events.Publisher
	logger    *zap.Logger
}

// New constructs the favorites service. Events go through publisher, which
// must not block.
func New(r repo.Repository, sources repo.SourceReader, publisher events.Publisher, logger *zap.Logger) Service {
	if r == nil {
		panic("favorites repository is required")
	}
	if sources == nil {
		panic("source reader is required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		panic("logger is required")
	}
	return &service{
		repo:      r,
		sources:   sources,
		publisher: publisher,
		logger:    logger.With(zap.String("component", "favorites-service")),
	}
}

func (s *service) Add(ctx context.Context, scope tenant.Scope, caller Caller, sourceUUID uuid.UUID, entryID string) error {
	src, err := s.check(ctx, scope, caller, sourceUUID, entryID)
	if err != nil {
		return err
	}
	err = s.repo.Add(ctx, persistence.FavoriteRecord{UserUUID: caller.UserUUID, SourceUUID: sourceUUID, EntryID: entryID})
	switch {
	case errors.Is(err, persistence.ErrUnknownSource):
		return &apperr.UnknownSourceError{SourceUUID: sourceUUID}
	case errors.Is(err, persistence.ErrFavoriteConflict):
		return apperr.Duplicate("favorite")
	case err != nil:
		return err
	}
	s.publish(ctx, events.FavoriteAdded, caller, src, entryID)
	return nil
}

func (s *service) Remove(ctx context.Context, scope tenant.Scope, caller Caller, sourceUUID uuid.UUID, entryID string) error {
	src, err := s.check(ctx, scope, caller, sourceUUID, entryID)
	if err != nil {
		return err
	}
	err = s.repo.Remove(ctx, persistence.FavoriteRecord{UserUUID: caller.UserUUID, SourceUUID: sourceUUID, EntryID: entryID})
	switch {
	case errors.Is(err, persistence.ErrFavoriteNotFound):
		return apperr.NotFound("favorite", entryID)
	case err != nil:
		return err
	}
	s.publish(ctx, events.FavoriteDeleted, caller, src, entryID)
	return nil
}

// List returns the caller's favorites on sources visible from scope.
func (s *service) List(ctx context.Context, scope tenant.Scope, caller Caller) ([]Favorite, error) {
	if caller.UserUUID == uuid.Nil {
		return nil, apperr.ErrUnauthorized
	}
	recs, err := s.repo.List(ctx, caller.UserUUID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.SourceUUID)
	}
	srcs, err := s.sources.GetByUUIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Favorite, 0, len(recs))
	for _, rec := range recs {
		src, ok := srcs[rec.SourceUUID]
		if !ok || !scope.CanSee(src.TenantUUID) {
			continue
		}
		out = append(out, Favorite{SourceUUID: src.UUID, Source: src.Name, Backend: src.Backend, EntryID: rec.EntryID})
	}
	return out, nil
}

func (s *service) check(ctx context.Context, scope tenant.Scope, caller Caller, sourceUUID uuid.UUID, entryID string) (persistence.SourceRecord, error) {
	if caller.UserUUID == uuid.Nil {
		return persistence.SourceRecord{}, apperr.ErrUnauthorized
	}
	if strings.TrimSpace(entryID) == "" {
		return persistence.SourceRecord{}, apperr.Invalid("entry_id", "must not be empty")
	}
	found, err := s.sources.GetByUUIDs(ctx, []uuid.UUID{sourceUUID})
	if err != nil {
		return persistence.SourceRecord{}, err
	}
	src, ok := found[sourceUUID]
	if !ok || !scope.CanSee(src.TenantUUID) {
		return persistence.SourceRecord{}, &apperr.UnknownSourceError{SourceUUID: sourceUUID}
	}
	return src, nil
}

func (s *service) publish(ctx context.Context, name string, caller Caller, src persistence.SourceRecord, entryID string) {
	env, err := events.NewEnvelope(name, events.FavoriteData{
		UserUUID:      caller.UserUUID,
		TenantUUID:    caller.TenantUUID,
		SourceName:    src.Name,
		SourceEntryID: entryID,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, env)
	}
	if err != nil {
		s.logger.Warn("favorite event not published", zap.String("event", name), zap.Error(err))
	}
}
