package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FavoriteRecord marks one entry of a source for a user.
type FavoriteRecord struct {
	UserUUID   uuid.UUID
	SourceUUID uuid.UUID
	EntryID    string
}

// FavoriteStore exposes persistence helpers for favorites.
type FavoriteStore struct {
	pool *pgxpool.Pool
}

// NewFavoriteStore returns a store; migrations must already be applied.
func NewFavoriteStore(ctx context.Context, pool *pgxpool.Pool) (*FavoriteStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &FavoriteStore{pool: pool}, nil
}

// Add records a favorite. A missing source is ErrUnknownSource, an existing
// favorite is ErrFavoriteConflict.
func (s *FavoriteStore) Add(ctx context.Context, rec FavoriteRecord) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO favorite (user_uuid, source_uuid, entry_id)
        VALUES ($1, $2, $3)
    `, rec.UserUUID, rec.SourceUUID, rec.EntryID)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return ErrUnknownSource
		case isUniqueViolation(err):
			return ErrFavoriteConflict
		default:
			return fmt.Errorf("insert favorite: %w", err)
		}
	}
	return nil
}

// Remove deletes a favorite.
func (s *FavoriteStore) Remove(ctx context.Context, rec FavoriteRecord) error {
	tag, err := s.pool.Exec(ctx, `
        DELETE FROM favorite
        WHERE user_uuid = $1 AND source_uuid = $2 AND entry_id = $3
    `, rec.UserUUID, rec.SourceUUID, rec.EntryID)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

// List returns the favorites of a user, oldest first.
func (s *FavoriteStore) List(ctx context.Context, userUUID uuid.UUID) ([]FavoriteRecord, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT user_uuid, source_uuid, entry_id
        FROM favorite
        WHERE user_uuid = $1
        ORDER BY created_at, source_uuid, entry_id
    `, userUUID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	out := []FavoriteRecord{}
	for rows.Next() {
		var rec FavoriteRecord
		if err := rows.Scan(&rec.UserUUID, &rec.SourceUUID, &rec.EntryID); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return out, nil
}

// PurgeUser removes every favorite of a user.
func (s *FavoriteStore) PurgeUser(ctx context.Context, userUUID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM favorite WHERE user_uuid = $1`, userUUID)
	if err != nil {
		return 0, fmt.Errorf("purge favorites: %w", err)
	}
	return tag.RowsAffected(), nil
}
