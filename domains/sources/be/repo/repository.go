package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/registry"
)

// Repository defines the source persistence operations.
type Repository interface {
	Create(ctx context.Context, rec persistence.SourceRecord) (persistence.SourceRecord, error)
	Get(ctx context.Context, tenants []uuid.UUID, backend string, id uuid.UUID) (persistence.SourceRecord, error)
	List(ctx context.Context, params persistence.ListParams) (persistence.ListResult[persistence.SourceRecord], error)
	Update(ctx context.Context, tenants []uuid.UUID, rec persistence.SourceRecord) (persistence.SourceRecord, error)
	Delete(ctx context.Context, tenants []uuid.UUID, backend string, id uuid.UUID) error
}

// Phonebooks resolves the phonebook a phonebook source is bound to.
type Phonebooks interface {
	Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.PhonebookRecord, error)
}

// Registry is the live set of loaded plugins kept in step with the table.
type Registry interface {
	Put(def sources.Definition) error
	Remove(id uuid.UUID)
	Get(id uuid.UUID) (registry.Entry, bool)
}

var (
	_ Repository = (*persistence.SourceStore)(nil)
	_ Phonebooks = (*persistence.PhonebookStore)(nil)
	_ Registry   = (*registry.Registry)(nil)
)
