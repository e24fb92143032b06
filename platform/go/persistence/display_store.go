package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
)

// DisplaysTable holds display definitions.
const DisplaysTable = "display"

// DisplayRecord represents a row in the display table.
type DisplayRecord struct {
	UUID       uuid.UUID
	TenantUUID uuid.UUID
	Name       string
	Columns    []contact.Column
}

// DisplayStore exposes persistence helpers for displays.
type DisplayStore struct {
	pool *pgxpool.Pool
}

// NewDisplayStore returns a store; migrations must already be applied.
func NewDisplayStore(ctx context.Context, pool *pgxpool.Pool) (*DisplayStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &DisplayStore{pool: pool}, nil
}

var displaySpec = listSpec{
	table:      DisplaysTable,
	columns:    []string{"uuid", "tenant_uuid", "name", "columns"},
	searchable: []string{"name"},
	orderable: map[string]string{
		"name": "name",
		"uuid": "uuid",
	},
	defaultOrder: "name",
}

// Create inserts a display.
func (s *DisplayStore) Create(ctx context.Context, rec DisplayRecord) (DisplayRecord, error) {
	if rec.UUID == uuid.Nil {
		rec.UUID = uuid.New()
	}
	columns, err := encodeColumns(rec.Columns)
	if err != nil {
		return DisplayRecord{}, err
	}

	row := s.pool.QueryRow(ctx, `
        INSERT INTO display (uuid, tenant_uuid, name, columns)
        VALUES ($1, $2, $3, $4)
        RETURNING uuid, tenant_uuid, name, columns
    `, rec.UUID, rec.TenantUUID, rec.Name, columns)

	out, err := scanDisplay(row)
	if err != nil {
		if isUniqueViolation(err) {
			return DisplayRecord{}, ErrDisplayConflict
		}
		return DisplayRecord{}, fmt.Errorf("insert display: %w", err)
	}
	return out, nil
}

// Get returns a display visible from tenants.
func (s *DisplayStore) Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (DisplayRecord, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT uuid, tenant_uuid, name, columns
        FROM display
        WHERE uuid = $1 AND tenant_uuid = ANY($2)
    `, id, tenants)

	out, err := scanDisplay(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DisplayRecord{}, ErrDisplayNotFound
		}
		return DisplayRecord{}, fmt.Errorf("get display: %w", err)
	}
	return out, nil
}

// List returns a page of displays.
func (s *DisplayStore) List(ctx context.Context, params ListParams) (ListResult[DisplayRecord], error) {
	return runList(ctx, s.pool, displaySpec, params, scanDisplay)
}

// Update replaces the name and columns of a display visible from tenants.
func (s *DisplayStore) Update(ctx context.Context, tenants []uuid.UUID, rec DisplayRecord) (DisplayRecord, error) {
	columns, err := encodeColumns(rec.Columns)
	if err != nil {
		return DisplayRecord{}, err
	}

	row := s.pool.QueryRow(ctx, `
        UPDATE display
        SET name = $1, columns = $2
        WHERE uuid = $3 AND tenant_uuid = ANY($4)
        RETURNING uuid, tenant_uuid, name, columns
    `, rec.Name, columns, rec.UUID, tenants)

	out, err := scanDisplay(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DisplayRecord{}, ErrDisplayNotFound
		}
		if isUniqueViolation(err) {
			return DisplayRecord{}, ErrDisplayConflict
		}
		return DisplayRecord{}, fmt.Errorf("update display: %w", err)
	}
	return out, nil
}

// Delete removes a display. Displays referenced by a profile are kept and
// ErrDisplayInUse is returned.
func (s *DisplayStore) Delete(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM display WHERE uuid = $1 AND tenant_uuid = ANY($2)`, id, tenants)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrDisplayInUse
		}
		return fmt.Errorf("delete display: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDisplayNotFound
	}
	return nil
}

func encodeColumns(columns []contact.Column) ([]byte, error) {
	if columns == nil {
		columns = []contact.Column{}
	}
	raw, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("encode display columns: %w", err)
	}
	return raw, nil
}

func scanDisplay(row pgx.Row) (DisplayRecord, error) {
	var (
		rec     DisplayRecord
		columns []byte
	)
	if err := row.Scan(&rec.UUID, &rec.TenantUUID, &rec.Name, &columns); err != nil {
		return DisplayRecord{}, err
	}
	rec.Columns = []contact.Column{}
	if len(columns) > 0 {
		if err := json.Unmarshal(columns, &rec.Columns); err != nil {
			return DisplayRecord{}, fmt.Errorf("decode display columns: %w", err)
		}
	}
	return rec, nil
}
