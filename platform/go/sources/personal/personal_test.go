package personal

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

type mockReader struct {
	searchFn    func(ctx context.Context, owner persistence.ContactOwner, term string, columns []string) ([]persistence.ContactRecord, error)
	matchAllFn  func(ctx context.Context, owner persistence.ContactOwner, extens []string, columns []string) (map[string]persistence.ContactRecord, error)
	listByIDsFn func(ctx context.Context, owner persistence.ContactOwner, ids []string) ([]persistence.ContactRecord, error)
	listAllFn   func(ctx context.Context, owner persistence.ContactOwner) ([]persistence.ContactRecord, error)
}

func (m *mockReader) Search(ctx context.Context, owner persistence.ContactOwner, term string, columns []string) ([]persistence.ContactRecord, error) {
	if m.searchFn == nil {
		panic("searchFn not configured")
	}
	return m.searchFn(ctx, owner, term, columns)
}

func (m *mockReader) MatchAll(ctx context.Context, owner persistence.ContactOwner, extens []string, columns []string) (map[string]persistence.ContactRecord, error) {
	if m.matchAllFn == nil {
		panic("matchAllFn not configured")
	}
	return m.matchAllFn(ctx, owner, extens, columns)
}

func (m *mockReader) ListByIDs(ctx context.Context, owner persistence.ContactOwner, ids []string) ([]persistence.ContactRecord, error) {
	if m.listByIDsFn == nil {
		panic("listByIDsFn not configured")
	}
	return m.listByIDsFn(ctx, owner, ids)
}

func (m *mockReader) ListAll(ctx context.Context, owner persistence.ContactOwner) ([]persistence.ContactRecord, error) {
	if m.listAllFn == nil {
		panic("listAllFn not configured")
	}
	return m.listAllFn(ctx, owner)
}

func TestSearchScopedToCaller(t *testing.T) {
	t.Parallel()

	user, tenant := uuid.New(), uuid.New()
	alice := persistence.ContactRecord{UUID: uuid.New(), Fields: map[string]string{"firstname": "Alice", "lastname": "Aldertion"}}
	reader := &mockReader{
		searchFn: func(_ context.Context, owner persistence.ContactOwner, term string, columns []string) ([]persistence.ContactRecord, error) {
			require.Equal(t, user, owner.UUID)
			require.Equal(t, tenant, owner.TenantUUID)
			require.Equal(t, "ali", term)
			require.Equal(t, []string{"firstname"}, columns)
			return []persistence.ContactRecord{alice}, nil
		},
	}

	p, err := New(sources.Config{
		Name:            "personal",
		Backend:         sources.BackendPersonal,
		SearchedColumns: []string{"firstname"},
		FormatColumns:   map[string]string{"name": "{firstname} {lastname}"},
	}, reader, nil)
	require.NoError(t, err)

	got, err := p.Search(context.Background(), "ali", sources.Args{UserUUID: user, TenantUUID: tenant})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Alice Aldertion", got[0].Fields["name"])
	require.Equal(t, alice.UUID.String(), got[0].EntryID())
	require.True(t, got[0].IsPersonal)
	require.True(t, got[0].IsDeletable)
	require.Equal(t, "personal", got[0].Backend)
}

func TestAnonymousCallerSeesNothing(t *testing.T) {
	t.Parallel()

	p, err := New(sources.Config{Name: "personal"}, &mockReader{}, nil)
	require.NoError(t, err)

	got, err := p.Search(context.Background(), "a", sources.Args{})
	require.NoError(t, err)
	require.Empty(t, got)

	c, err := p.FirstMatch(context.Background(), "1234", sources.Args{})
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestFirstMatchUsesBatchQuery(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	reader := &mockReader{
		matchAllFn: func(_ context.Context, _ persistence.ContactOwner, extens []string, columns []string) (map[string]persistence.ContactRecord, error) {
			require.Equal(t, []string{"1234"}, extens)
			require.Equal(t, []string{"number"}, columns)
			return map[string]persistence.ContactRecord{"1234": {UUID: id, Fields: map[string]string{"number": "1234"}}}, nil
		},
	}
	p, err := New(sources.Config{Name: "personal", FirstMatchedColumns: []string{"number"}}, reader, nil)
	require.NoError(t, err)

	c, err := p.FirstMatch(context.Background(), "1234", sources.Args{UserUUID: uuid.New()})
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, id.String(), c.Fields["id"])
}
