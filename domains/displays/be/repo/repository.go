package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// Repository defines the persistence operations required by the displays service.
type Repository interface {
	Create(ctx context.Context, rec persistence.DisplayRecord) (persistence.DisplayRecord, error)
	Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.DisplayRecord, error)
	List(ctx context.Context, params persistence.ListParams) (persistence.ListResult[persistence.DisplayRecord], error)
	Update(ctx context.Context, tenants []uuid.UUID, rec persistence.DisplayRecord) (persistence.DisplayRecord, error)
	Delete(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error
}

var _ Repository = (*persistence.DisplayStore)(nil)
