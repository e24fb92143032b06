package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var (
	// ErrDisplayNotFound indicates a missing or hidden display.
	ErrDisplayNotFound = errors.New("display not found")
	// ErrDisplayConflict indicates a display name already used in the tenant.
	ErrDisplayConflict = errors.New("display conflict")
	// ErrDisplayInUse is returned when deleting a display still referenced by a profile.
	ErrDisplayInUse = errors.New("display is used by a profile")

	// ErrSourceNotFound indicates a missing or hidden source.
	ErrSourceNotFound = errors.New("source not found")
	// ErrSourceConflict indicates a source name already used in the tenant.
	ErrSourceConflict = errors.New("source conflict")

	// ErrProfileNotFound indicates a missing or hidden profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileConflict indicates a profile name already used in the tenant.
	ErrProfileConflict = errors.New("profile conflict")
	// ErrProfileReference is returned when a profile points at a display or source that vanished.
	ErrProfileReference = errors.New("profile references a missing display or source")

	// ErrPhonebookNotFound indicates a missing or hidden phonebook.
	ErrPhonebookNotFound = errors.New("phonebook not found")
	// ErrPhonebookConflict indicates a phonebook name already used in the tenant.
	ErrPhonebookConflict = errors.New("phonebook conflict")

	// ErrContactNotFound indicates a missing contact for the owner.
	ErrContactNotFound = errors.New("contact not found")
	// ErrContactConflict indicates a fingerprint or id collision.
	ErrContactConflict = errors.New("contact conflict")

	// ErrFavoriteNotFound indicates the favorite does not exist.
	ErrFavoriteNotFound = errors.New("favorite not found")
	// ErrFavoriteConflict indicates the favorite already exists.
	ErrFavoriteConflict = errors.New("favorite conflict")
	// ErrUnknownSource is returned when a favorite references a missing source.
	ErrUnknownSource = errors.New("unknown source")

	// ErrTenantNotFound is returned when a tenant has no localization row.
	ErrTenantNotFound = errors.New("tenant not found")
)

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgForeignKeyViolation
}

func isPrimaryKeyViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgUniqueViolation && strings.HasSuffix(pgErr.ConstraintName, "_pkey")
}
