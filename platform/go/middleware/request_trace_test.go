package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/auth/devtoken"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	"github.com/zenGate-Global/palmyra-directory/platform/go/requesttrace"
	tenantmw "github.com/zenGate-Global/palmyra-directory/platform/go/tenant/middleware"
)

func TestRequestTraceWithAuth(t *testing.T) {
	user, own := uuid.New(), uuid.New()
	token, err := devtoken.BuildUnsigned(devtoken.Params{UserUUID: user, TenantUUID: own}, time.Time{})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(platformauth.JWT(platformauth.UnsignedTokenVerifier(), nil, zaptest.NewLogger(t)))
	r.Use(tenantmw.WithScope(zaptest.NewLogger(t)))
	r.Use(RequestTrace)

	r.Get("/test", func(w http.ResponseWriter, req *http.Request) {
		audit, ok := requesttrace.FromContext(req.Context())
		require.True(t, ok)
		require.Equal(t, requesttrace.ActorKindUser, audit.ActorKind)
		require.Equal(t, user, *audit.UserUUID)
		require.Equal(t, own, *audit.TenantUUID)
		require.NotEmpty(t, audit.RequestID)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRequestTraceAnonymous(t *testing.T) {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestTrace)

	r.Get("/test", func(w http.ResponseWriter, req *http.Request) {
		audit, ok := requesttrace.FromContext(req.Context())
		require.True(t, ok)
		require.Equal(t, requesttrace.ActorKindAnonymous, audit.ActorKind)
		require.Nil(t, audit.UserUUID)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRequestTraceEnrichesCompletionLog(t *testing.T) {
	user, own := uuid.New(), uuid.New()
	token, err := devtoken.BuildUnsigned(devtoken.Params{UserUUID: user, TenantUUID: own}, time.Time{})
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(platformlogging.RequestLogger(zap.New(core)))
	r.Use(platformauth.JWT(platformauth.UnsignedTokenVerifier(), nil, zaptest.NewLogger(t)))
	r.Use(tenantmw.WithScope(zaptest.NewLogger(t)))
	r.Use(RequestTrace)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(httptest.NewRecorder(), req)

	done := logs.FilterMessage("request completed").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	require.Equal(t, user.String(), fields["user_uuid"])
	require.Equal(t, own.String(), fields["tenant_uuid"])
	require.Equal(t, "user", fields["actor_kind"])
}
