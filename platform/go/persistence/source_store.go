package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

// SourcesTable holds source definitions of every backend.
const SourcesTable = "source"

// SourceRecord represents a row in the source table. Backend specific
// settings are kept verbatim in Extra.
type SourceRecord struct {
	UUID                uuid.UUID
	TenantUUID          uuid.UUID
	Backend             string
	Name                string
	SearchedColumns     []string
	FirstMatchedColumns []string
	FormatColumns       map[string]string
	Extra               json.RawMessage
}

// Definition returns the row in the shape the plugin registry loads.
func (r SourceRecord) Definition() sources.Definition {
	return sources.Definition{
		UUID:                r.UUID,
		TenantUUID:          r.TenantUUID,
		Name:                r.Name,
		Backend:             r.Backend,
		SearchedColumns:     r.SearchedColumns,
		FirstMatchedColumns: r.FirstMatchedColumns,
		FormatColumns:       r.FormatColumns,
		Extra:               r.Extra,
	}
}

// SourceStore exposes persistence helpers for sources.
type SourceStore struct {
	pool *pgxpool.Pool
}

// NewSourceStore returns a store; migrations must already be applied.
func NewSourceStore(ctx context.Context, pool *pgxpool.Pool) (*SourceStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SourceStore{pool: pool}, nil
}

const sourceColumns = `uuid, tenant_uuid, backend, name, searched_columns, first_matched_columns, format_columns, extra`

var sourceSpec = listSpec{
	table: SourcesTable,
	columns: []string{
		"uuid", "tenant_uuid", "backend", "name", "searched_columns",
		"first_matched_columns", "format_columns", "extra",
	},
	searchable: []string{"name", "backend"},
	orderable: map[string]string{
		"name":    "name",
		"backend": "backend",
		"uuid":    "uuid",
	},
	defaultOrder: "name",
	equality: func(params ListParams) sq.Eq {
		if params.Backend == nil {
			return nil
		}
		return sq.Eq{"backend": *params.Backend}
	},
}

// Create inserts a source.
func (s *SourceStore) Create(ctx context.Context, rec SourceRecord) (SourceRecord, error) {
	if rec.UUID == uuid.Nil {
		rec.UUID = uuid.New()
	}
	formats, extra, err := encodeSourceBodies(rec)
	if err != nil {
		return SourceRecord{}, err
	}

	row := s.pool.QueryRow(ctx, `
        INSERT INTO source (uuid, tenant_uuid, backend, name, searched_columns, first_matched_columns, format_columns, extra)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+sourceColumns,
		rec.UUID, rec.TenantUUID, rec.Backend, rec.Name,
		nonNilStrings(rec.SearchedColumns), nonNilStrings(rec.FirstMatchedColumns), formats, extra,
	)

	out, err := scanSource(row)
	if err != nil {
		if isUniqueViolation(err) {
			return SourceRecord{}, ErrSourceConflict
		}
		return SourceRecord{}, fmt.Errorf("insert source: %w", err)
	}
	return out, nil
}

// Get returns a source visible from tenants. A non-empty backend restricts
// the lookup to that backend.
func (s *SourceStore) Get(ctx context.Context, tenants []uuid.UUID, backend string, id uuid.UUID) (SourceRecord, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+sourceColumns+`
        FROM source
        WHERE uuid = $1 AND tenant_uuid = ANY($2) AND ($3 = '' OR backend = $3)
    `, id, tenants, backend)

	out, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SourceRecord{}, ErrSourceNotFound
		}
		return SourceRecord{}, fmt.Errorf("get source: %w", err)
	}
	return out, nil
}

// GetByUUIDs returns the sources among ids, ignoring tenant scoping. Missing
// ids are absent from the result.
func (s *SourceStore) GetByUUIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]SourceRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceColumns+` FROM source WHERE uuid = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get sources: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]SourceRecord, len(ids))
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out[rec.UUID] = rec
	}
	return out, rows.Err()
}

// List returns a page of sources; params.Backend narrows to one backend.
func (s *SourceStore) List(ctx context.Context, params ListParams) (ListResult[SourceRecord], error) {
	return runList(ctx, s.pool, sourceSpec, params, scanSource)
}

// ListAll returns every source of every tenant, for registry loading.
func (s *SourceStore) ListAll(ctx context.Context) ([]SourceRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceColumns+` FROM source ORDER BY created_at, uuid`)
	if err != nil {
		return nil, fmt.Errorf("list all sources: %w", err)
	}
	defer rows.Close()

	var out []SourceRecord
	for rows.Next() {
		rec, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Update replaces every mutable field of a source. The backend never changes.
func (s *SourceStore) Update(ctx context.Context, tenants []uuid.UUID, rec SourceRecord) (SourceRecord, error) {
	formats, extra, err := encodeSourceBodies(rec)
	if err != nil {
		return SourceRecord{}, err
	}

	row := s.pool.QueryRow(ctx, `
        UPDATE source
        SET name = $1, searched_columns = $2, first_matched_columns = $3, format_columns = $4, extra = $5
        WHERE uuid = $6 AND tenant_uuid = ANY($7) AND backend = $8
        RETURNING `+sourceColumns,
		rec.Name, nonNilStrings(rec.SearchedColumns), nonNilStrings(rec.FirstMatchedColumns),
		formats, extra, rec.UUID, tenants, rec.Backend,
	)

	out, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SourceRecord{}, ErrSourceNotFound
		}
		if isUniqueViolation(err) {
			return SourceRecord{}, ErrSourceConflict
		}
		return SourceRecord{}, fmt.Errorf("update source: %w", err)
	}
	return out, nil
}

// Delete removes a source. Favorites and profile bindings cascade.
func (s *SourceStore) Delete(ctx context.Context, tenants []uuid.UUID, backend string, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM source WHERE uuid = $1 AND tenant_uuid = ANY($2) AND ($3 = '' OR backend = $3)`,
		id, tenants, backend)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func encodeSourceBodies(rec SourceRecord) (formats []byte, extra []byte, err error) {
	fc := rec.FormatColumns
	if fc == nil {
		fc = map[string]string{}
	}
	if formats, err = json.Marshal(fc); err != nil {
		return nil, nil, fmt.Errorf("encode format columns: %w", err)
	}
	extra = rec.Extra
	if len(extra) == 0 {
		extra = []byte(`{}`)
	}
	return formats, extra, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func scanSource(row pgx.Row) (SourceRecord, error) {
	var (
		rec     SourceRecord
		formats []byte
		extra   []byte
	)
	if err := row.Scan(
		&rec.UUID, &rec.TenantUUID, &rec.Backend, &rec.Name,
		&rec.SearchedColumns, &rec.FirstMatchedColumns, &formats, &extra,
	); err != nil {
		return SourceRecord{}, err
	}
	rec.FormatColumns = map[string]string{}
	if len(formats) > 0 {
		if err := json.Unmarshal(formats, &rec.FormatColumns); err != nil {
			return SourceRecord{}, fmt.Errorf("decode format columns: %w", err)
		}
	}
	rec.Extra = json.RawMessage(extra)
	return rec, nil
}
