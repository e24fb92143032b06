package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// Repository defines the favorite persistence used by the service.
type Repository interface {
	Add(ctx context.Context, rec persistence.FavoriteRecord) error
	Remove(ctx context.Context, rec persistence.FavoriteRecord) error
	List(ctx context.Context, userUUID uuid.UUID) ([]persistence.FavoriteRecord, error)
}

// SourceReader resolves the sources a favorite points at.
type SourceReader interface {
	GetByUUIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]persistence.SourceRecord, error)
}

var (
	_ Repository   = (*persistence.FavoriteStore)(nil)
	_ SourceReader = (*persistence.SourceStore)(nil)
)
