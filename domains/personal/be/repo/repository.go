package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/csvimport"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
)

// Repository defines the persistence operations required by the personal service.
type Repository interface {
	Create(ctx context.Context, user persistence.ContactOwner, fields map[string]string) (persistence.ContactRecord, error)
	Get(ctx context.Context, user persistence.ContactOwner, id uuid.UUID) (persistence.ContactRecord, error)
	Update(ctx context.Context, user persistence.ContactOwner, id uuid.UUID, fields map[string]string) (persistence.ContactRecord, error)
	Delete(ctx context.Context, user persistence.ContactOwner, id uuid.UUID) error
	List(ctx context.Context, user persistence.ContactOwner, params persistence.ContactListParams) (persistence.ListResult[persistence.ContactRecord], error)
	Import(ctx context.Context, user persistence.ContactOwner, rows []csvimport.Row) ([]persistence.ContactRecord, []csvimport.Failure, error)
	Purge(ctx context.Context, user persistence.ContactOwner) (int64, error)
	// PurgeUser drops every personal contact and favorite of the user.
	PurgeUser(ctx context.Context, user persistence.ContactOwner) (contacts int64, favorites int64, err error)
}

type postgresRepository struct {
	contacts  *persistence.ContactStore
	favorites *persistence.FavoriteStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(contacts *persistence.ContactStore, favorites *persistence.FavoriteStore) Repository {
	if contacts == nil {
		panic("personal contact store is required")
	}
	if favorites == nil {
		panic("favorite store is required")
	}
	return &postgresRepository{contacts: contacts, favorites: favorites}
}

func (r *postgresRepository) Create(ctx context.Context, user persistence.ContactOwner, fields map[string]string) (persistence.ContactRecord, error) {
	return r.contacts.Create(ctx, user, fields)
}

func (r *postgresRepository) Get(ctx context.Context, user persistence.ContactOwner, id uuid.UUID) (persistence.ContactRecord, error) {
	return r.contacts.Get(ctx, user, id)
}

func (r *postgresRepository) Update(ctx context.Context, user persistence.ContactOwner, id uuid.UUID, fields map[string]string) (persistence.ContactRecord, error) {
	return r.contacts.Update(ctx, user, id, fields)
}

func (r *postgresRepository) Delete(ctx context.Context, user persistence.ContactOwner, id uuid.UUID) error {
	return r.contacts.Delete(ctx, user, id)
}

func (r *postgresRepository) List(ctx context.Context, user persistence.ContactOwner, params persistence.ContactListParams) (persistence.ListResult[persistence.ContactRecord], error) {
	return r.contacts.List(ctx, user, params)
}

func (r *postgresRepository) Import(ctx context.Context, user persistence.ContactOwner, rows []csvimport.Row) ([]persistence.ContactRecord, []csvimport.Failure, error) {
	return r.contacts.Import(ctx, user, rows)
}

func (r *postgresRepository) Purge(ctx context.Context, user persistence.ContactOwner) (int64, error) {
	return r.contacts.Purge(ctx, user)
}

func (r *postgresRepository) PurgeUser(ctx context.Context, user persistence.ContactOwner) (int64, int64, error) {
	contacts, err := r.Purge(ctx, user)
	if err != nil {
		return 0, 0, err
	}
	favorites, err := r.favorites.PurgeUser(ctx, user.UUID)
	if err != nil {
		return contacts, 0, err
	}
	return contacts, favorites, nil
}
