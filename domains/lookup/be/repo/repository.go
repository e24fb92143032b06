package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/registry"
)

// ProfileReader resolves profiles by name.
type ProfileReader interface {
	GetByName(ctx context.Context, tenants []uuid.UUID, name string) (persistence.ProfileRecord, error)
}

// DisplayReader resolves the display of a profile.
type DisplayReader interface {
	Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.DisplayRecord, error)
}

// FavoriteReader loads the favorites of a user.
type FavoriteReader interface {
	List(ctx context.Context, userUUID uuid.UUID) ([]persistence.FavoriteRecord, error)
}

// Registry hands out the loaded source plugins.
type Registry interface {
	Get(id uuid.UUID) (registry.Entry, bool)
}

var (
	_ ProfileReader  = (*persistence.ProfileStore)(nil)
	_ DisplayReader  = (*persistence.DisplayStore)(nil)
	_ FavoriteReader = (*persistence.FavoriteStore)(nil)
	_ Registry       = (*registry.Registry)(nil)
)
