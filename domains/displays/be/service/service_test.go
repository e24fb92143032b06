package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

type mockRepository struct {
	createFn func(ctx context.Context, rec persistence.DisplayRecord) (persistence.DisplayRecord, error)
	getFn    func(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.DisplayRecord, error)
	listFn   func(ctx context.Context, params persistence.ListParams) (persistence.ListResult[persistence.DisplayRecord], error)
	updateFn func(ctx context.Context, tenants []uuid.UUID, rec persistence.DisplayRecord) (persistence.DisplayRecord, error)
	deleteFn func(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error
}

func (m *mockRepository) Create(ctx context.Context, rec persistence.DisplayRecord) (persistence.DisplayRecord, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, rec)
}

func (m *mockRepository) Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.DisplayRecord, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, tenants, id)
}

func (m *mockRepository) List(ctx context.Context, params persistence.ListParams) (persistence.ListResult[persistence.DisplayRecord], error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, params)
}

func (m *mockRepository) Update(ctx context.Context, tenants []uuid.UUID, rec persistence.DisplayRecord) (persistence.DisplayRecord, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, tenants, rec)
}

func (m *mockRepository) Delete(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error {
	if m.deleteFn == nil {
		panic("deleteFn not configured")
	}
	return m.deleteFn(ctx, tenants, id)
}

func strPtr(s string) *string { return &s }

func testScope() tenant.Scope {
	own := uuid.New()
	return tenant.Scope{TenantUUID: own, Visible: []uuid.UUID{own, uuid.New()}}
}

func TestServiceCreateValidation(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{})
	_, err := svc.Create(context.Background(), testScope(), Input{
		Name:    "  ",
		Columns: []contact.Column{{Field: strPtr("")}},
	})

	var validationErr *apperr.ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "name")
	require.Contains(t, validationErr.Fields, "columns")
}

func TestServiceCreateUsesOwnTenant(t *testing.T) {
	t.Parallel()

	scope := testScope()
	repository := &mockRepository{}
	repository.createFn = func(ctx context.Context, rec persistence.DisplayRecord) (persistence.DisplayRecord, error) {
		require.Equal(t, scope.TenantUUID, rec.TenantUUID)
		require.Equal(t, "default", rec.Name)
		rec.UUID = uuid.New()
		return rec, nil
	}

	svc := New(repository)
	d, err := svc.Create(context.Background(), scope, Input{
		Name:    " default ",
		Columns: []contact.Column{{Title: strPtr("Name"), Field: strPtr("name")}},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, d.UUID)
	require.Len(t, d.Columns, 1)
}

func TestServiceCreateDuplicate(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{createFn: func(context.Context, persistence.DisplayRecord) (persistence.DisplayRecord, error) {
		return persistence.DisplayRecord{}, persistence.ErrDisplayConflict
	}})
	_, err := svc.Create(context.Background(), testScope(), Input{Name: "default"})
	require.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestServiceGetSearchesVisibleTenants(t *testing.T) {
	t.Parallel()

	scope := testScope()
	id := uuid.New()
	svc := New(&mockRepository{getFn: func(_ context.Context, tenants []uuid.UUID, got uuid.UUID) (persistence.DisplayRecord, error) {
		require.ElementsMatch(t, scope.Visible, tenants)
		require.Equal(t, id, got)
		return persistence.DisplayRecord{}, persistence.ErrDisplayNotFound
	}})

	_, err := svc.Get(context.Background(), scope, id)
	var notFound *apperr.NotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "display", notFound.Resource)
}

func TestServiceListRecurse(t *testing.T) {
	t.Parallel()

	scope := testScope()
	limit := 5
	svc := New(&mockRepository{listFn: func(_ context.Context, params persistence.ListParams) (persistence.ListResult[persistence.DisplayRecord], error) {
		if len(params.Tenants) == 1 {
			require.Equal(t, scope.TenantUUID, params.Tenants[0])
		} else {
			require.ElementsMatch(t, scope.Visible, params.Tenants)
		}
		require.Equal(t, "def", params.Search)
		require.Equal(t, &limit, params.Limit)
		return persistence.ListResult[persistence.DisplayRecord]{
			Items:    []persistence.DisplayRecord{{UUID: uuid.New(), Name: "default"}},
			Total:    3,
			Filtered: 1,
		}, nil
	}})

	for _, recurse := range []bool{false, true} {
		result, err := svc.List(context.Background(), scope, ListOptions{Search: "def", Limit: &limit, Recurse: recurse})
		require.NoError(t, err)
		require.Equal(t, 3, result.Total)
		require.Equal(t, 1, result.Filtered)
		require.Len(t, result.Items, 1)
		require.NotNil(t, result.Items[0].Columns)
	}
}

func TestServiceUpdateMapsErrors(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{updateFn: func(context.Context, []uuid.UUID, persistence.DisplayRecord) (persistence.DisplayRecord, error) {
		return persistence.DisplayRecord{}, persistence.ErrDisplayConflict
	}})
	_, err := svc.Update(context.Background(), testScope(), uuid.New(), Input{Name: "taken"})
	require.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestServiceDeleteInUse(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{deleteFn: func(context.Context, []uuid.UUID, uuid.UUID) error {
		return persistence.ErrDisplayInUse
	}})
	err := svc.Delete(context.Background(), testScope(), uuid.New())
	require.ErrorIs(t, err, apperr.ErrInvalidData)
}
