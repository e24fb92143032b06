package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// Repository defines the profile persistence operations.
type Repository interface {
	Create(ctx context.Context, rec persistence.ProfileRecord) (persistence.ProfileRecord, error)
	Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.ProfileRecord, error)
	List(ctx context.Context, params persistence.ListParams) (persistence.ListResult[persistence.ProfileRecord], error)
	Update(ctx context.Context, tenants []uuid.UUID, rec persistence.ProfileRecord) (persistence.ProfileRecord, error)
	Delete(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error
}

// DisplayReader resolves the display a profile points at.
type DisplayReader interface {
	Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.DisplayRecord, error)
}

// SourceReader resolves the sources a profile binds.
type SourceReader interface {
	GetByUUIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]persistence.SourceRecord, error)
}

var (
	_ Repository    = (*persistence.ProfileStore)(nil)
	_ DisplayReader = (*persistence.DisplayStore)(nil)
	_ SourceReader  = (*persistence.SourceStore)(nil)
)
