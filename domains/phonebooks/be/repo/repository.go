package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/csvimport"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// Repository defines the phonebook persistence used by the service.
type Repository interface {
	Create(ctx context.Context, rec persistence.PhonebookRecord) (persistence.PhonebookRecord, error)
	Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.PhonebookRecord, error)
	List(ctx context.Context, params persistence.ListParams) (persistence.ListResult[persistence.PhonebookRecord], error)
	Update(ctx context.Context, tenants []uuid.UUID, rec persistence.PhonebookRecord) (persistence.PhonebookRecord, error)
	Delete(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error
}

// ContactRepository stores the contacts of one phonebook, the owner being the phonebook.
type ContactRepository interface {
	Create(ctx context.Context, phonebook persistence.ContactOwner, fields map[string]string) (persistence.ContactRecord, error)
	Get(ctx context.Context, phonebook persistence.ContactOwner, id uuid.UUID) (persistence.ContactRecord, error)
	Update(ctx context.Context, phonebook persistence.ContactOwner, id uuid.UUID, fields map[string]string) (persistence.ContactRecord, error)
	Delete(ctx context.Context, phonebook persistence.ContactOwner, id uuid.UUID) error
	List(ctx context.Context, phonebook persistence.ContactOwner, params persistence.ContactListParams) (persistence.ListResult[persistence.ContactRecord], error)
	Import(ctx context.Context, phonebook persistence.ContactOwner, rows []csvimport.Row) ([]persistence.ContactRecord, []csvimport.Failure, error)
}

var (
	_ Repository        = (*persistence.PhonebookStore)(nil)
	_ ContactRepository = (*persistence.ContactStore)(nil)
)
