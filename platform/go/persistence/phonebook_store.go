package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PhonebooksTable holds shared phonebooks.
const PhonebooksTable = "phonebook"

// PhonebookRecord represents a row in the phonebook table.
type PhonebookRecord struct {
	UUID        uuid.UUID
	TenantUUID  uuid.UUID
	Name        string
	Description *string
}

// PhonebookStore exposes persistence helpers for phonebooks. Their contacts
// live in a ContactStore built by NewPhonebookContactStore.
type PhonebookStore struct {
	pool *pgxpool.Pool
}

// NewPhonebookStore returns a store; migrations must already be applied.
func NewPhonebookStore(ctx context.Context, pool *pgxpool.Pool) (*PhonebookStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PhonebookStore{pool: pool}, nil
}

var phonebookSpec = listSpec{
	table:      PhonebooksTable,
	columns:    []string{"uuid", "tenant_uuid", "name", "description"},
	searchable: []string{"name", "description"},
	orderable: map[string]string{
		"name":        "name",
		"description": "description",
		"uuid":        "uuid",
	},
	defaultOrder: "name",
}

// Create inserts a phonebook.
func (s *PhonebookStore) Create(ctx context.Context, rec PhonebookRecord) (PhonebookRecord, error) {
	if rec.UUID == uuid.Nil {
		rec.UUID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
        INSERT INTO phonebook (uuid, tenant_uuid, name, description)
        VALUES ($1, $2, $3, $4)
        RETURNING uuid, tenant_uuid, name, description
    `, rec.UUID, rec.TenantUUID, rec.Name, rec.Description)

	out, err := scanPhonebook(row)
	if err != nil {
		if isUniqueViolation(err) {
			return PhonebookRecord{}, ErrPhonebookConflict
		}
		return PhonebookRecord{}, fmt.Errorf("insert phonebook: %w", err)
	}
	return out, nil
}

// Get returns a phonebook visible from tenants.
func (s *PhonebookStore) Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (PhonebookRecord, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT uuid, tenant_uuid, name, description
        FROM phonebook
        WHERE uuid = $1 AND tenant_uuid = ANY($2)
    `, id, tenants)

	out, err := scanPhonebook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PhonebookRecord{}, ErrPhonebookNotFound
		}
		return PhonebookRecord{}, fmt.Errorf("get phonebook: %w", err)
	}
	return out, nil
}

// List returns a page of phonebooks. The search term matches name and description.
func (s *PhonebookStore) List(ctx context.Context, params ListParams) (ListResult[PhonebookRecord], error) {
	return runList(ctx, s.pool, phonebookSpec, params, scanPhonebook)
}

// Update replaces the name and description of a phonebook.
func (s *PhonebookStore) Update(ctx context.Context, tenants []uuid.UUID, rec PhonebookRecord) (PhonebookRecord, error) {
	row := s.pool.QueryRow(ctx, `
        UPDATE phonebook
        SET name = $1, description = $2
        WHERE uuid = $3 AND tenant_uuid = ANY($4)
        RETURNING uuid, tenant_uuid, name, description
    `, rec.Name, rec.Description, rec.UUID, tenants)

	out, err := scanPhonebook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PhonebookRecord{}, ErrPhonebookNotFound
		}
		if isUniqueViolation(err) {
			return PhonebookRecord{}, ErrPhonebookConflict
		}
		return PhonebookRecord{}, fmt.Errorf("update phonebook: %w", err)
	}
	return out, nil
}

// Delete removes a phonebook with its contacts.
func (s *PhonebookStore) Delete(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM phonebook WHERE uuid = $1 AND tenant_uuid = ANY($2)`, id, tenants)
	if err != nil {
		return fmt.Errorf("delete phonebook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPhonebookNotFound
	}
	return nil
}

func scanPhonebook(row pgx.Row) (PhonebookRecord, error) {
	var rec PhonebookRecord
	if err := row.Scan(&rec.UUID, &rec.TenantUUID, &rec.Name, &rec.Description); err != nil {
		return PhonebookRecord{}, err
	}
	return rec, nil
}
