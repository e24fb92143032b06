// Package apperr defines the error kinds shared by every directory service
// and the HTTP status each kind maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/google/uuid"
)

// Sentinel kinds. Typed errors below unwrap to one of these.
var (
	ErrInvalidData              = errors.New("invalid data")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrNotFound                 = errors.New("not found")
	ErrDuplicate                = errors.New("duplicate")
	ErrAuthUnreachable          = errors.New("authentication server unreachable")
	ErrBusUnreachable           = errors.New("event bus unreachable")
	ErrMasterTenantNotInitiated = errors.New("master tenant not initiated")
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// Add records a message for the field.
func (f FieldErrors) Add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}

// Err returns a *ValidationError when at least one field failed, nil otherwise.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return "validation error"
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("validation error: %s: %s", keys[0], v.Fields[keys[0]][0])
}

func (v *ValidationError) Unwrap() error { return ErrInvalidData }

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) error {
	fe := FieldErrors{}
	fe.Add(field, message)
	return &ValidationError{Fields: fe}
}

// NotFoundError reports a missing or hidden resource.
type NotFoundError struct {
	Resource string
	Details  map[string]any
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError for resource identified by id.
func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, Details: map[string]any{"id": fmt.Sprint(id)}}
}

// UnknownSourceError reports a source referenced by id that does not exist or is not visible.
type UnknownSourceError struct {
	SourceUUID uuid.UUID
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %s", e.SourceUUID)
}

func (e *UnknownSourceError) Unwrap() error { return ErrNotFound }

// DuplicateError reports a uniqueness violation on resource.
type DuplicateError struct {
	Resource string
}

func (e *DuplicateError) Error() string {
	return e.Resource + " already exists"
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// Duplicate builds a DuplicateError.
func Duplicate(resource string) error {
	return &DuplicateError{Resource: resource}
}

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidData):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrAuthUnreachable),
		errors.Is(err, ErrBusUnreachable),
		errors.Is(err, ErrMasterTenantNotInitiated):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
