package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/csvimport"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
)

type mockPhonebooks struct {
	createFn func(ctx context.Context, rec persistence.PhonebookRecord) (persistence.PhonebookRecord, error)
	getFn    func(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.PhonebookRecord, error)
	listFn   func(ctx context.Context, params persistence.ListParams) (persistence.ListResult[persistence.PhonebookRecord], error)
	updateFn func(ctx context.Context, tenants []uuid.UUID, rec persistence.PhonebookRecord) (persistence.PhonebookRecord, error)
	deleteFn func(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error
}

func (m *mockPhonebooks) Create(ctx context.Context, rec persistence.PhonebookRecord) (persistence.PhonebookRecord, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, rec)
}

func (m *mockPhonebooks) Get(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.PhonebookRecord, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, tenants, id)
}

func (m *mockPhonebooks) List(ctx context.Context, params persistence.ListParams) (persistence.ListResult[persistence.PhonebookRecord], error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, params)
}

func (m *mockPhonebooks) Update(ctx context.Context, tenants []uuid.UUID, rec persistence.PhonebookRecord) (persistence.PhonebookRecord, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, tenants, rec)
}

func (m *mockPhonebooks) Delete(ctx context.Context, tenants []uuid.UUID, id uuid.UUID) error {
	if m.deleteFn == nil {
		panic("deleteFn not configured")
	}
	return m.deleteFn(ctx, tenants, id)
}

type mockContacts struct {
	createFn func(ctx context.Context, owner persistence.ContactOwner, fields map[string]string) (persistence.ContactRecord, error)
	listFn   func(ctx context.Context, owner persistence.ContactOwner, params persistence.ContactListParams) (persistence.ListResult[persistence.ContactRecord], error)
	importFn func(ctx context.Context, owner persistence.ContactOwner, rows []csvimport.Row) ([]persistence.ContactRecord, []csvimport.Failure, error)
}

func (m *mockContacts) Create(ctx context.Context, owner persistence.ContactOwner, fields map[string]string) (persistence.ContactRecord, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, owner, fields)
}

func (m *mockContacts) Get(context.Context, persistence.ContactOwner, uuid.UUID) (persistence.ContactRecord, error) {
	panic("getFn not configured")
}

func (m *mockContacts) Update(context.Context, persistence.ContactOwner, uuid.UUID, map[string]string) (persistence.ContactRecord, error) {
	panic("updateFn not configured")
}

func (m *mockContacts) Delete(context.Context, persistence.ContactOwner, uuid.UUID) error {
	panic("deleteFn not configured")
}

func (m *mockContacts) List(ctx context.Context, owner persistence.ContactOwner, params persistence.ContactListParams) (persistence.ListResult[persistence.ContactRecord], error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, owner, params)
}

func (m *mockContacts) Import(ctx context.Context, owner persistence.ContactOwner, rows []csvimport.Row) ([]persistence.ContactRecord, []csvimport.Failure, error) {
	if m.importFn == nil {
		panic("importFn not configured")
	}
	return m.importFn(ctx, owner, rows)
}

func visiblePhonebook(owner uuid.UUID) *mockPhonebooks {
	return &mockPhonebooks{
		getFn: func(_ context.Context, tenants []uuid.UUID, id uuid.UUID) (persistence.PhonebookRecord, error) {
			for _, t := range tenants {
				if t == owner {
					return persistence.PhonebookRecord{UUID: id, TenantUUID: owner, Name: "main"}, nil
				}
			}
			return persistence.PhonebookRecord{}, persistence.ErrPhonebookNotFound
		},
	}
}

func TestCreateValidatesAndScopes(t *testing.T) {
	t.Parallel()

	scope := tenant.Scope{TenantUUID: uuid.New()}
	svc := New(&mockPhonebooks{
		createFn: func(_ context.Context, rec persistence.PhonebookRecord) (persistence.PhonebookRecord, error) {
			require.Equal(t, scope.TenantUUID, rec.TenantUUID)
			require.Equal(t, "main", rec.Name)
			rec.UUID = uuid.New()
			return rec, nil
		},
	}, &mockContacts{})

	_, err := svc.Create(context.Background(), scope, Input{Name: "  "})
	require.ErrorIs(t, err, apperr.ErrInvalidData)

	pb, err := svc.Create(context.Background(), scope, Input{Name: " main "})
	require.NoError(t, err)
	require.Equal(t, scope.TenantUUID, pb.TenantUUID)
}

func TestCreateDuplicateName(t *testing.T) {
	t.Parallel()

	svc := New(&mockPhonebooks{
		createFn: func(context.Context, persistence.PhonebookRecord) (persistence.PhonebookRecord, error) {
			return persistence.PhonebookRecord{}, persistence.ErrPhonebookConflict
		},
	}, &mockContacts{})

	_, err := svc.Create(context.Background(), tenant.Scope{TenantUUID: uuid.New()}, Input{Name: "main"})
	require.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestListRecursesIntoVisibleTenants(t *testing.T) {
	t.Parallel()

	child := uuid.New()
	scope := tenant.Scope{TenantUUID: uuid.New(), Visible: []uuid.UUID{child}}
	var seen [][]uuid.UUID
	svc := New(&mockPhonebooks{
		listFn: func(_ context.Context, params persistence.ListParams) (persistence.ListResult[persistence.PhonebookRecord], error) {
			seen = append(seen, params.Tenants)
			return persistence.ListResult[persistence.PhonebookRecord]{}, nil
		},
	}, &mockContacts{})

	_, err := svc.List(context.Background(), scope, ListOptions{})
	require.NoError(t, err)
	_, err = svc.List(context.Background(), scope, ListOptions{Recurse: true})
	require.NoError(t, err)
	require.Equal(t, [][]uuid.UUID{{scope.TenantUUID}, {scope.TenantUUID, child}}, seen)
}

func TestContactsRequireVisiblePhonebook(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	svc := New(visiblePhonebook(owner), &mockContacts{})

	_, err := svc.CreateContact(context.Background(), tenant.Scope{TenantUUID: uuid.New()}, uuid.New(), map[string]string{"name": "x"})
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "phonebook", nf.Resource)
}

func TestCreateContactUsesPhonebookOwner(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	pbID := uuid.New()
	calls := 0
	svc := New(visiblePhonebook(owner), &mockContacts{
		createFn: func(_ context.Context, o persistence.ContactOwner, fields map[string]string) (persistence.ContactRecord, error) {
			calls++
			require.Equal(t, persistence.ContactOwner{UUID: pbID, TenantUUID: owner}, o)
			if calls > 1 {
				return persistence.ContactRecord{}, persistence.ErrContactConflict
			}
			return persistence.ContactRecord{UUID: uuid.New(), Fields: fields}, nil
		},
	})

	// A parent tenant sees the child's phonebook.
	scope := tenant.Scope{TenantUUID: uuid.New(), Visible: []uuid.UUID{owner}}
	c, err := svc.CreateContact(context.Background(), scope, pbID, map[string]string{"name": "Reception", "number": "100"})
	require.NoError(t, err)
	require.Equal(t, "Reception", c["name"])
	require.NotEmpty(t, c["id"])

	_, err = svc.CreateContact(context.Background(), scope, pbID, map[string]string{"name": "Reception", "number": "100"})
	require.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestListContactsPassesPaging(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	limit := 100
	svc := New(visiblePhonebook(owner), &mockContacts{
		listFn: func(_ context.Context, _ persistence.ContactOwner, params persistence.ContactListParams) (persistence.ListResult[persistence.ContactRecord], error) {
			require.Equal(t, "rec", params.Search)
			require.Equal(t, &limit, params.Limit)
			require.Equal(t, 200, params.Offset)
			return persistence.ListResult[persistence.ContactRecord]{
				Items: []persistence.ContactRecord{{UUID: uuid.New(), Fields: map[string]string{"name": "Reception"}}},
				Total: 5000, Filtered: 1,
			}, nil
		},
	})

	page, err := svc.ListContacts(context.Background(), tenant.Scope{TenantUUID: owner}, uuid.New(), ListOptions{Search: "rec", Limit: &limit, Offset: 200})
	require.NoError(t, err)
	require.Equal(t, 5000, page.Total)
	require.Equal(t, 1, page.Filtered)
	require.Len(t, page.Items, 1)
}

func TestImportContactsMergesFailures(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	svc := New(visiblePhonebook(owner), &mockContacts{
		importFn: func(_ context.Context, _ persistence.ContactOwner, rows []csvimport.Row) ([]persistence.ContactRecord, []csvimport.Failure, error) {
			return []persistence.ContactRecord{{UUID: uuid.New(), Fields: rows[0].Fields}},
				[]csvimport.Failure{{Line: rows[1].Line, Message: persistence.ImportDuplicateMessage}}, nil
		},
	})

	body := "name,number\nReception,100\nbroken\nReception,100\n"
	result, err := svc.ImportContacts(context.Background(), tenant.Scope{TenantUUID: owner}, uuid.New(), []byte(body), "text/csv")
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Len(t, result.Failed, 2)
	require.Equal(t, 3, result.Failed[0].Line)
	require.Equal(t, 4, result.Failed[1].Line)
}
