package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfilesTable holds profiles; their bindings live in profile_service_source.
const ProfilesTable = "profile"

// ServiceOptions are the per-service knobs of a profile.
type ServiceOptions struct {
	// Timeout is the lookup deadline in seconds.
	Timeout *float64 `json:"timeout,omitempty"`
}

// ProfileService binds an ordered list of sources to one service.
type ProfileService struct {
	Sources []uuid.UUID
	Options ServiceOptions
}

// ProfileRecord represents a profile with its services.
type ProfileRecord struct {
	UUID        uuid.UUID
	TenantUUID  uuid.UUID
	Name        string
	DisplayUUID *uuid.UUID
	Services    map[string]ProfileService
}

// ProfileStore exposes persistence helpers for profiles.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore returns a store; migrations must already be applied.
func NewProfileStore(ctx context.Context, pool *pgxpool.Pool) (*ProfileStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ProfileStore{pool: pool}, nil
}

var profileSpec = listSpec{
	table:      ProfilesTable,
	columns:    []string{"uuid", "tenant_uuid", "name", "display_uuid"},
	searchable: []string{"name"},
	orderable: map[string]string{
		"name": "name",
		"uuid": "uuid",
	},
	defaultOrder: "name",
}

// Create inserts a profile and its services in one transaction.
func (s *ProfileStore) Create(ctx context.Context, rec ProfileRecord) (ProfileRecord, error) {
	if rec.UUID == uuid.Nil {
		rec.UUID = uuid.New()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ProfileRecord{}, fmt.Errorf("begin profile tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
        INSERT INTO profile (uuid, tenant_uuid, name, display_uuid)
        VALUES ($1, $2, $3, $4)
        RETURNING uuid, tenant_uuid, name, display_uuid
    `, rec.UUID, rec.TenantUUID, rec.Name, rec.DisplayUUID)

	out, err := scanProfile(row)
	if err != nil {
		return ProfileRecord{}, classifyProfileError("insert profile", err)
	}
	if err := insertServices(ctx, tx, out.UUID, rec.Services); err != nil {
		return ProfileRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ProfileRecord{}, fmt.Errorf("commit profile: %w", err)
	}

	out.Services = cloneServices(rec.Services)
	return out, nil
}

// Get returns a profile visible from tenants.
func (s *ProfileStore) Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (ProfileRecord, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT uuid, tenant_uuid, name, display_uuid
        FROM profile
        WHERE uuid = $1 AND tenant_uuid = ANY($2)
    `, id, tenants)
	return s.loadOne(ctx, row)
}

// GetByName returns the profile called name in one of tenants.
func (s *ProfileStore) GetByName(ctx context.Context, tenants []uuid.UUID, name string) (ProfileRecord, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT uuid, tenant_uuid, name, display_uuid
        FROM profile
        WHERE name = $1 AND tenant_uuid = ANY($2)
        ORDER BY created_at
        LIMIT 1
    `, name, tenants)
	return s.loadOne(ctx, row)
}

// List returns a page of profiles with their services.
func (s *ProfileStore) List(ctx context.Context, params ListParams) (ListResult[ProfileRecord], error) {
	result, err := runList(ctx, s.pool, profileSpec, params, scanProfile)
	if err != nil {
		return ListResult[ProfileRecord]{}, err
	}
	if len(result.Items) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, len(result.Items))
	for i, p := range result.Items {
		ids[i] = p.UUID
	}
	services, err := loadServices(ctx, s.pool, ids)
	if err != nil {
		return ListResult[ProfileRecord]{}, err
	}
	for i := range result.Items {
		result.Items[i].Services = services[result.Items[i].UUID]
		if result.Items[i].Services == nil {
			result.Items[i].Services = map[string]ProfileService{}
		}
	}
	return result, nil
}

// Update replaces the name, display and services of a profile. Services not
// present in rec are detached.
func (s *ProfileStore) Update(ctx context.Context, tenants []uuid.UUID, rec ProfileRecord) (ProfileRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ProfileRecord{}, fmt.Errorf("begin profile tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
        UPDATE profile
        SET name = $1, display_uuid = $2
        WHERE uuid = $3 AND tenant_uuid = ANY($4)
        RETURNING uuid, tenant_uuid, name, display_uuid
    `, rec.Name, rec.DisplayUUID, rec.UUID, tenants)

	out, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProfileRecord{}, ErrProfileNotFound
		}
		return ProfileRecord{}, classifyProfileError("update profile", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM profile_service WHERE profile_uuid = $1`, out.UUID); err != nil {
		return ProfileRecord{}, fmt.Errorf("detach profile services: %w", err)
	}
	if err := insertServices(ctx, tx, out.UUID, rec.Services); err != nil {
		return ProfileRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ProfileRecord{}, fmt.Errorf("commit profile: %w", err)
	}

	out.Services = cloneServices(rec.Services)
	return out, nil
}

// Delete removes a profile and its services.
func (s *ProfileStore) Delete(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM profile WHERE uuid = $1 AND tenant_uuid = ANY($2)`, id, tenants)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (s *ProfileStore) loadOne(ctx context.Context, row pgx.Row) (ProfileRecord, error) {
	out, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProfileRecord{}, ErrProfileNotFound
		}
		return ProfileRecord{}, fmt.Errorf("get profile: %w", err)
	}
	services, err := loadServices(ctx, s.pool, []uuid.UUID{out.UUID})
	if err != nil {
		return ProfileRecord{}, err
	}
	out.Services = services[out.UUID]
	if out.Services == nil {
		out.Services = map[string]ProfileService{}
	}
	return out, nil
}

func insertServices(ctx context.Context, tx pgx.Tx, profileUUID uuid.UUID, services map[string]ProfileService) error {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := services[name]
		options, err := json.Marshal(svc.Options)
		if err != nil {
			return fmt.Errorf("encode service options: %w", err)
		}
		serviceUUID := uuid.New()
		if _, err := tx.Exec(ctx, `
            INSERT INTO profile_service (uuid, profile_uuid, name, options)
            VALUES ($1, $2, $3, $4)
        `, serviceUUID, profileUUID, name, options); err != nil {
			return classifyProfileError("insert profile service", err)
		}

		seen := make(map[uuid.UUID]struct{}, len(svc.Sources))
		for position, sourceUUID := range svc.Sources {
			if _, dup := seen[sourceUUID]; dup {
				continue
			}
			seen[sourceUUID] = struct{}{}
			if _, err := tx.Exec(ctx, `
                INSERT INTO profile_service_source (profile_service_uuid, source_uuid, position)
                VALUES ($1, $2, $3)
            `, serviceUUID, sourceUUID, position); err != nil {
				return classifyProfileError("bind profile source", err)
			}
		}
	}
	return nil
}

type serviceQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadServices(ctx context.Context, q serviceQuerier, profileUUIDs []uuid.UUID) (map[uuid.UUID]map[string]ProfileService, error) {
	rows, err := q.Query(ctx, `
        SELECT ps.profile_uuid, ps.name, ps.options, pss.source_uuid
        FROM profile_service ps
        LEFT JOIN profile_service_source pss ON pss.profile_service_uuid = ps.uuid
        WHERE ps.profile_uuid = ANY($1)
        ORDER BY ps.profile_uuid, ps.name, pss.position
    `, profileUUIDs)
	if err != nil {
		return nil, fmt.Errorf("load profile services: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]map[string]ProfileService, len(profileUUIDs))
	for rows.Next() {
		var (
			profileUUID uuid.UUID
			name        string
			options     []byte
			sourceUUID  *uuid.UUID
		)
		if err := rows.Scan(&profileUUID, &name, &options, &sourceUUID); err != nil {
			return nil, fmt.Errorf("scan profile service: %w", err)
		}
		services, ok := out[profileUUID]
		if !ok {
			services = map[string]ProfileService{}
			out[profileUUID] = services
		}
		svc, ok := services[name]
		if !ok {
			svc.Sources = []uuid.UUID{}
			if len(options) > 0 {
				if err := json.Unmarshal(options, &svc.Options); err != nil {
					return nil, fmt.Errorf("decode service options: %w", err)
				}
			}
		}
		if sourceUUID != nil {
			svc.Sources = append(svc.Sources, *sourceUUID)
		}
		services[name] = svc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile services: %w", err)
	}
	return out, nil
}

func classifyProfileError(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return ErrProfileConflict
	case isForeignKeyViolation(err):
		return ErrProfileReference
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func cloneServices(in map[string]ProfileService) map[string]ProfileService {
	out := make(map[string]ProfileService, len(in))
	for name, svc := range in {
		sources := make([]uuid.UUID, 0, len(svc.Sources))
		seen := make(map[uuid.UUID]struct{}, len(svc.Sources))
		for _, id := range svc.Sources {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			sources = append(sources, id)
		}
		out[name] = ProfileService{Sources: sources, Options: svc.Options}
	}
	return out
}

func scanProfile(row pgx.Row) (ProfileRecord, error) {
	var rec ProfileRecord
	if err := row.Scan(&rec.UUID, &rec.TenantUUID, &rec.Name, &rec.DisplayUUID); err != nil {
		return ProfileRecord{}, err
	}
	return rec, nil
}
