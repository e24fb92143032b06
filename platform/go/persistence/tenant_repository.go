package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TenantsTable holds per-tenant localization.
const TenantsTable = "tenant"

// TenantRecord represents a row in the tenant table.
type TenantRecord struct {
	UUID      uuid.UUID
	Country   *string
	UpdatedAt time.Time
}

// TenantStore provides access to the tenant table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore creates a store; assumes migrations already created the table.
func NewTenantStore(ctx context.Context, pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

// UpsertLocalization records the country of a tenant. Replaying the same
// value leaves the row unchanged apart from updated_at.
func (s *TenantStore) UpsertLocalization(ctx context.Context, id uuid.UUID, country *string) (TenantRecord, error) {
	if id == uuid.Nil {
		return TenantRecord{}, errors.New("tenant uuid is required")
	}
	row := s.pool.QueryRow(ctx, `
        INSERT INTO tenant (uuid, country, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (uuid) DO UPDATE SET country = EXCLUDED.country, updated_at = NOW()
        RETURNING uuid, country, updated_at
    `, id, country)

	rec, err := scanTenantRecord(row)
	if err != nil {
		return TenantRecord{}, fmt.Errorf("upsert tenant localization: %w", err)
	}
	return rec, nil
}

// Get fetches the localization row of a tenant.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT uuid, country, updated_at FROM tenant WHERE uuid = $1`, id)
	rec, err := scanTenantRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrTenantNotFound
		}
		return TenantRecord{}, fmt.Errorf("get tenant: %w", err)
	}
	return rec, nil
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(&rec.UUID, &rec.Country, &rec.UpdatedAt); err != nil {
		return TenantRecord{}, err
	}
	return rec, nil
}
