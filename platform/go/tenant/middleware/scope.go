package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

// HeaderTenant selects the tenant a request acts in.
const HeaderTenant = "Tenant"

// WithScope resolves the tenant scope from the caller and the Tenant header.
// The caller's own tenant is the default; a selected tenant must be visible
// to the caller, otherwise the request is rejected with 401.
func WithScope(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := platformauth.CallerFromContext(r.Context())
			if !ok {
				httpapi.WriteProblem(w, r, logger, "tenant_scope", fmt.Errorf("%w: no caller", apperr.ErrUnauthorized))
				return
			}

			scope := tenant.Scope{TenantUUID: caller.TenantUUID, Visible: caller.VisibleTenants}
			if raw := strings.TrimSpace(r.Header.Get(HeaderTenant)); raw != "" {
				selected, err := uuid.Parse(raw)
				if err != nil {
					httpapi.WriteProblem(w, r, logger, "tenant_scope", fmt.Errorf("%w: invalid tenant %q", apperr.ErrUnauthorized, raw))
					return
				}
				if !scope.CanSee(selected) {
					httpapi.WriteProblem(w, r, logger, "tenant_scope", fmt.Errorf("%w: tenant %s is not visible", apperr.ErrUnauthorized, selected))
					return
				}
				scope = narrow(scope, selected)
			}

			next.ServeHTTP(w, r.WithContext(tenant.WithScope(r.Context(), scope)))
		})
	}
}

// narrow re-roots the scope at selected. Only selected and the tenants other
// than the caller's own remain visible.
func narrow(s tenant.Scope, selected uuid.UUID) tenant.Scope {
	if selected == s.TenantUUID {
		return s
	}
	visible := make([]uuid.UUID, 0, len(s.Visible))
	for _, t := range s.Visible {
		if t != s.TenantUUID {
			visible = append(visible, t)
		}
	}
	return tenant.Scope{TenantUUID: selected, Visible: visible}
}
