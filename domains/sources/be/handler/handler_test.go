package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-directory/domains/sources/be/service"
	platformauth "github.com/zenGate-Global/palmyra-directory/platform/go/auth"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

type mockService struct {
	createFn   func(ctx context.Context, scope tenant.Scope, backend string, input service.Input) (service.Source, error)
	getFn      func(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID) (service.Source, error)
	listFn     func(ctx context.Context, scope tenant.Scope, opts service.ListOptions) (service.ListResult, error)
	updateFn   func(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID, input service.Input) (service.Source, error)
	deleteFn   func(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID) error
	contactsFn func(ctx context.Context, scope tenant.Scope, caller service.Caller, backend string, id uuid.UUID, opts sources.ListOptions) (service.ContactsResult, error)
}

func (m *mockService) Create(ctx context.Context, scope tenant.Scope, backend string, input service.Input) (service.Source, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, scope, backend, input)
}

func (m *mockService) Get(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID) (service.Source, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, scope, backend, id)
}

func (m *mockService) List(ctx context.Context, scope tenant.Scope, opts service.ListOptions) (service.ListResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, scope, opts)
}

func (m *mockService) Update(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID, input service.Input) (service.Source, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, scope, backend, id, input)
}

func (m *mockService) Delete(ctx context.Context, scope tenant.Scope, backend string, id uuid.UUID) error {
	if m.deleteFn == nil {
		panic("deleteFn not configured")
	}
	return m.deleteFn(ctx, scope, backend, id)
}

func (m *mockService) Contacts(ctx context.Context, scope tenant.Scope, caller service.Caller, backend string, id uuid.UUID, opts sources.ListOptions) (service.ContactsResult, error) {
	if m.contactsFn == nil {
		panic("contactsFn not configured")
	}
	return m.contactsFn(ctx, scope, caller, backend, id, opts)
}

func serve(t *testing.T, svc service.Service, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	New(svc, zaptest.NewLogger(t)).Routes(r)
	ctx := tenant.WithScope(req.Context(), tenant.Scope{TenantUUID: uuid.New()})
	ctx = platformauth.WithCaller(ctx, &platformauth.Caller{UserUUID: uuid.New(), Token: "tok"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func TestSourcesCreateSplitsBackendFields(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc := &mockService{createFn: func(_ context.Context, scope tenant.Scope, backend string, input service.Input) (service.Source, error) {
		require.Equal(t, "csv", backend)
		require.Equal(t, "my_csv", input.Name)
		require.Equal(t, []string{"firstname"}, input.SearchedColumns)
		require.Equal(t, map[string]string{"name": "{firstname} {lastname}"}, input.FormatColumns)
		require.JSONEq(t, `{"file":"/tmp/x.csv","separator":";"}`, string(input.Extra))
		return service.Source{
			UUID:            id,
			TenantUUID:      scope.TenantUUID,
			Backend:         backend,
			Name:            input.Name,
			SearchedColumns: input.SearchedColumns,
			FormatColumns:   input.FormatColumns,
			Extra:           input.Extra,
		}, nil
	}}

	body := `{"name":"my_csv","searched_columns":["firstname"],"format_columns":{"name":"{firstname} {lastname}"},` +
		`"file":"/tmp/x.csv","separator":";","uuid":"ignored"}`
	rec := serve(t, svc, httptest.NewRequest(http.MethodPost, "/backends/csv/sources", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, id.String(), out["uuid"])
	require.Equal(t, "/tmp/x.csv", out["file"])
	require.Equal(t, "csv", out["backend"])
}

func TestSourcesCreateRequiresName(t *testing.T) {
	t.Parallel()

	rec := serve(t, &mockService{}, httptest.NewRequest(http.MethodPost, "/backends/csv/sources", strings.NewReader(`{"file":"x"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourcesListAllAcrossBackends(t *testing.T) {
	t.Parallel()

	svc := &mockService{listFn: func(_ context.Context, _ tenant.Scope, opts service.ListOptions) (service.ListResult, error) {
		require.Empty(t, opts.Backend)
		return service.ListResult{Items: []service.Source{{UUID: uuid.New(), Backend: "ldap", Name: "corp"}}, Total: 1, Filtered: 1}, nil
	}}
	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, "/sources", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var page httpapi.Page[map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	require.Equal(t, "corp", page.Items[0]["name"])
}

func TestSourcesBackends(t *testing.T) {
	t.Parallel()

	rec := serve(t, &mockService{}, httptest.NewRequest(http.MethodGet, "/backends", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page httpapi.Page[Backend]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, len(sources.Backends))
}

func TestSourcesContacts(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	svc := &mockService{contactsFn: func(_ context.Context, _ tenant.Scope, caller service.Caller, backend string, got uuid.UUID, opts sources.ListOptions) (service.ContactsResult, error) {
		require.Equal(t, "google", backend)
		require.Equal(t, id, got)
		require.Equal(t, "tok", caller.Token)
		require.Equal(t, "name", opts.Order)
		return service.ContactsResult{Items: []contact.Contact{{Fields: map[string]any{"name": "Alice"}}}, Total: 3, Filtered: 1}, nil
	}}

	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, "/backends/google/sources/"+id.String()+"/contacts?order=name", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page httpapi.Page[map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Equal(t, 3, page.Total)
	require.Equal(t, "Alice", page.Items[0]["name"])
}
