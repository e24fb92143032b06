// Package auth resolves the caller identity from the bearer token and keeps
// it on the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
)

type ctxKey string

const ctxCaller ctxKey = "PALMYRA_DIRECTORY_CALLER"

// Caller is the authenticated identity of a request. Token is kept so that
// sources can exchange it for external credentials.
type Caller struct {
	Token          string
	UserUUID       uuid.UUID
	TenantUUID     uuid.UUID
	VisibleTenants []uuid.UUID
}

// WithCaller stores c on ctx.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, ctxCaller, c)
}

// CallerFromContext returns the caller stored by the JWT middleware.
func CallerFromContext(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(ctxCaller).(*Caller)
	return c, ok && c != nil
}

// VerifyFunc validates the incoming token and returns its claims. Errors
// wrapping apperr.ErrAuthUnreachable are reported as 503; any other error
// rejects the token.
type VerifyFunc func(ctx context.Context, token string) (map[string]any, error)

// ExtractFunc converts a claims map into a Caller.
type ExtractFunc func(claims map[string]any) (*Caller, error)

// JWT authenticates every request. A missing or rejected token is answered
// with 401 before reaching next.
func JWT(verify VerifyFunc, extract ExtractFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCallerExtractor
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractToken(r)
			if !found {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				httpapi.WriteProblem(w, r, logger, "authenticate", fmt.Errorf("%w: missing token", apperr.ErrUnauthorized))
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				if !errors.Is(err, apperr.ErrAuthUnreachable) {
					w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
					err = fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
				}
				httpapi.WriteProblem(w, r, logger, "authenticate", err)
				return
			}

			caller, err := extract(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="invalid claims"`)
				httpapi.WriteProblem(w, r, logger, "authenticate", fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err))
				return
			}
			caller.Token = token

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// DefaultCallerExtractor reads user_uuid (or uid, sub), tenant_uuid (or the
// firebase tenant) and visible_tenants. The caller's own tenant is always
// visible.
func DefaultCallerExtractor(claims map[string]any) (*Caller, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	userRaw := fallbackStringClaim(claims, []string{"user_uuid", "uid", "user_id", "sub"})
	user, err := uuid.Parse(userRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid user uuid %q", userRaw)
	}

	tenantRaw := extractStringClaim(claims, "tenant_uuid")
	if tenantRaw == "" {
		tenantRaw = extractFirebaseTenant(claims)
	}
	tenant, err := uuid.Parse(tenantRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant uuid %q", tenantRaw)
	}

	visible := []uuid.UUID{tenant}
	if raw, ok := claims["visible_tenants"].([]any); ok {
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				continue
			}
			id, err := uuid.Parse(s)
			if err != nil || id == tenant {
				continue
			}
			visible = append(visible, id)
		}
	}

	return &Caller{UserUUID: user, TenantUUID: tenant, VisibleTenants: visible}, nil
}

func extractStringClaim(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, valid := v.(string); valid {
			return s
		}
	}
	return ""
}

func extractFirebaseTenant(claims map[string]any) string {
	firebaseClaim, ok := claims["firebase"].(map[string]any)
	if !ok {
		return ""
	}
	tenant, _ := firebaseClaim["tenant"].(string)
	return tenant
}

func fallbackStringClaim(claims map[string]any, keys []string) string {
	for _, key := range keys {
		if v := extractStringClaim(claims, key); v != "" {
			return v
		}
	}
	return ""
}
