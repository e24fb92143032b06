package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

// RequestTrace populates the context with request-scoped AuditInfo and adds
// user_uuid and tenant_uuid to the request logger, completion entry included.
// It runs after the authentication and tenant scope middlewares.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID := middleware.GetReqID(r.Context())

		var audit requesttrace.AuditInfo
		if caller, ok := platformauth.CallerFromContext(r.Context()); ok {
			scoped := uuid.Nil
			if s, ok := tenant.FromContext(r.Context()); ok {
				scoped = s.TenantUUID
			}
			var err error
			audit, err = requesttrace.FromCaller(caller, scoped, requestID)
			if err != nil {
				httpapi.WriteProblem(w, r, logger, "request_trace", apperr.ErrUnauthorized)
				return
			}
		} else {
			audit = requesttrace.Anonymous(requestID)
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
		if audit.UserUUID != nil {
			fields = append(fields, zap.String("user_uuid", audit.UserUUID.String()))
		}
		if audit.TenantUUID != nil {
			fields = append(fields, zap.String("tenant_uuid", audit.TenantUUID.String()))
		}
		platformlogging.AddFields(ctx, fields...)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
