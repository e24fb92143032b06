// Package tenant carries the tenant scope of a request: the tenant the caller
// acts in and the tenants it may see.
package tenant

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
)

// Scope is the resolved tenant visibility of a request.
type Scope struct {
	TenantUUID uuid.UUID
	Visible    []uuid.UUID
}

// Tenants returns the tenants a listing or lookup may touch: the scope
// tenant alone, or every visible tenant when recurse is set.
func (s Scope) Tenants(recurse bool) []uuid.UUID {
	if !recurse {
		return []uuid.UUID{s.TenantUUID}
	}
	out := make([]uuid.UUID, 0, len(s.Visible)+1)
	out = append(out, s.TenantUUID)
	for _, t := range s.Visible {
		if t != s.TenantUUID {
			out = append(out, t)
		}
	}
	return out
}

// CanSee reports whether t is visible from the scope.
func (s Scope) CanSee(t uuid.UUID) bool {
	return t == s.TenantUUID || slices.Contains(s.Visible, t)
}

type ctxKey string

const scopeKey ctxKey = "PALMYRA_DIRECTORY_TENANT_SCOPE"

// WithScope returns a derived context carrying s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext extracts the scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey).(Scope)
	return s, ok
}

// Require returns the scope stored on ctx, or an unauthorized error when the
// request went through no scope middleware.
func Require(ctx context.Context) (Scope, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return Scope{}, fmt.Errorf("%w: tenant scope missing", apperr.ErrUnauthorized)
	}
	return s, nil
}
