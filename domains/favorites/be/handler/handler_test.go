package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-directory/domains/favorites/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

type mockService struct {
	addFn    func(ctx context.Context, scope tenant.Scope, caller service.Caller, sourceUUID uuid.UUID, entryID string) error
	removeFn func(ctx context.Context, scope tenant.Scope, caller service.Caller, sourceUUID uuid.UUID, entryID string) error
	listFn   func(ctx context.Context, scope tenant.Scope, caller service.Caller) ([]service.Favorite, error)
}

func (m *mockService) Add(ctx context.Context, scope tenant.Scope, caller service.Caller, sourceUUID uuid.UUID, entryID string) error {
	if m.addFn == nil {
		panic("addFn not configured")
	}
	return m.addFn(ctx, scope, caller, sourceUUID, entryID)
}

func (m *mockService) Remove(ctx context.Context, scope tenant.Scope, caller service.Caller, sourceUUID uuid.UUID, entryID string) error {
	if m.removeFn == nil {
		panic("removeFn not configured")
	}
	return m.removeFn(ctx, scope, caller, sourceUUID, entryID)
}

func (m *mockService) List(ctx context.Context, scope tenant.Scope, caller service.Caller) ([]service.Favorite, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, scope, caller)
}

func serve(t *testing.T, svc service.Service, authenticated bool, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if authenticated {
				tenantUUID := uuid.New()
				ctx := platformauth.WithCaller(req.Context(), &platformauth.Caller{UserUUID: uuid.New(), TenantUUID: tenantUUID})
				req = req.WithContext(tenant.WithScope(ctx, tenant.Scope{TenantUUID: tenantUUID}))
			}
			next.ServeHTTP(w, req)
		})
	})
	New(svc, zaptest.NewLogger(t)).Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAddReturnsNoContent(t *testing.T) {
	t.Parallel()

	source := uuid.New()
	svc := &mockService{
		addFn: func(_ context.Context, _ tenant.Scope, _ service.Caller, got uuid.UUID, entryID string) error {
			require.Equal(t, source, got)
			require.Equal(t, "42", entryID)
			return nil
		},
	}
	rec := serve(t, svc, true, httptest.NewRequest(http.MethodPut, "/favorites/"+source.String()+"/42", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAddUnknownSourceIsNotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		addFn: func(_ context.Context, _ tenant.Scope, _ service.Caller, id uuid.UUID, _ string) error {
			return &apperr.UnknownSourceError{SourceUUID: id}
		},
	}
	rec := serve(t, svc, true, httptest.NewRequest(http.MethodPut, "/favorites/"+uuid.NewString()+"/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveMissingIsNotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		removeFn: func(context.Context, tenant.Scope, service.Caller, uuid.UUID, string) error {
			return apperr.NotFound("favorite", "1")
		},
	}
	rec := serve(t, svc, true, httptest.NewRequest(http.MethodDelete, "/favorites/"+uuid.NewString()+"/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedSourceUUID(t *testing.T) {
	t.Parallel()

	rec := serve(t, &mockService{}, true, httptest.NewRequest(http.MethodPut, "/favorites/nope/1", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnauthenticated(t *testing.T) {
	t.Parallel()

	rec := serve(t, &mockService{}, false, httptest.NewRequest(http.MethodGet, "/favorites", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestList(t *testing.T) {
	t.Parallel()

	source := uuid.New()
	svc := &mockService{
		listFn: func(context.Context, tenant.Scope, service.Caller) ([]service.Favorite, error) {
			return []service.Favorite{{SourceUUID: source, Source: "my_csv", Backend: "csv", EntryID: "1"}}, nil
		},
	}
	rec := serve(t, svc, true, httptest.NewRequest(http.MethodGet, "/favorites", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page httpapi.Page[Favorite]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "my_csv", page.Items[0].Source)
	require.Equal(t, source, page.Items[0].SourceUUID)
}
