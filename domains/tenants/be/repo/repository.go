package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// Repository defines the tenant localization persistence operations.
type Repository interface {
	UpsertLocalization(ctx context.Context, id uuid.UUID, country *string) (persistence.TenantRecord, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
}

var _ Repository = (*persistence.TenantStore)(nil)
