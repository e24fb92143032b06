package ldapsrc

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

type fakeSession struct {
	filters  []string
	searchFn func(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	closed   bool
}

func (f *fakeSession) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	f.filters = append(f.filters, req.Filter)
	if f.searchFn == nil {
		panic("searchFn not configured")
	}
	return f.searchFn(req)
}

func (f *fakeSession) Close() {
	f.closed = true
}

func newTestPlugin(t *testing.T, cfg sources.LDAPConfig, sessions ...*fakeSession) (*Plugin, *int) {
	t.Helper()
	p := newPlugin(sources.Config{
		UUID:                uuid.New(),
		Name:                "ldap",
		SearchedColumns:     []string{"cn", "sn"},
		FirstMatchedColumns: []string{"telephoneNumber", "mobile"},
		FormatColumns:       map[string]string{"name": "{givenName} {sn}"},
		LDAP:                &cfg,
	}, zaptest.NewLogger(t))
	dials := 0
	p.dial = func(context.Context) (session, error) {
		if dials >= len(sessions) {
			return nil, errors.New("no more sessions")
		}
		s := sessions[dials]
		dials++
		return s, nil
	}
	return p, &dials
}

func result(entries ...*ldap.Entry) *ldap.SearchResult {
	return &ldap.SearchResult{Entries: entries}
}

func TestSearchFilter(t *testing.T) {
	t.Parallel()

	p, _ := newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x"})
	require.Equal(t, `(|(cn=*al\2aice*)(sn=*al\2aice*))`, p.searchFilter("al*ice"))

	p, _ = newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x", CustomFilter: "(objectClass=person)(ou=%Q)"})
	require.Equal(t, `(&(objectClass=person)(ou=bob)(|(cn=*bob*)(sn=*bob*)))`, p.searchFilter("bob"))

	p, _ = newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x", CustomFilter: "departmentNumber=%Q"})
	require.Equal(t, `(&(departmentNumber=ab)(|(cn=*ab*)(sn=*ab*)))`, p.searchFilter("ab"))
}

func TestOrFilterAndListFilter(t *testing.T) {
	t.Parallel()

	require.Equal(t, "(|(a=1)(b=1)(a=2)(b=2))", orFilter([]string{"a", "b"}, []string{"1", "2"}))

	p, _ := newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x", UniqueColumn: "uid"})
	require.Equal(t, "(|(uid=1)(uid=2))", p.listFilter([]string{"1", "2"}))

	p, _ = newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x", UniqueColumn: "objectGUID", UniqueColumnFormat: BinaryUUID})
	got := p.listFilter([]string{"00112233-4455-6677-8899-aabbccddeeff", "not-a-uuid"})
	require.Equal(t, `(|(objectGUID=\33\22\11\00\55\44\77\66\88\99\aa\bb\cc\dd\ee\ff))`, got)
	require.Empty(t, p.listFilter([]string{"nope"}))
}

func TestGUIDRoundTrip(t *testing.T) {
	t.Parallel()

	u := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	back, ok := guidFromBytes(guidBytes(u))
	require.True(t, ok)
	require.Equal(t, u, back)

	_, ok = guidFromBytes([]byte{1, 2})
	require.False(t, ok)
}

func TestSearchBuildsContacts(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{searchFn: func(*ldap.SearchRequest) (*ldap.SearchResult, error) {
		return result(ldap.NewEntry("cn=alice,dc=x", map[string][]string{
			"cn":              {"alice"},
			"givenName":       {"Alice"},
			"sn":              {"Aldertion"},
			"telephoneNumber": {"1111", "2222"},
		})), nil
	}}
	p, _ := newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x"}, sess)

	got, err := p.Search(context.Background(), "ali", sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Alice Aldertion", got[0].Fields["name"])
	require.Equal(t, "1111", got[0].Fields["telephoneNumber"])
	require.Equal(t, "cn=alice,dc=x", got[0].Fields["dn"])
	require.Equal(t, "ldap", got[0].Backend)
}

func TestMatchAllUsesOneFilter(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{searchFn: func(*ldap.SearchRequest) (*ldap.SearchResult, error) {
		return result(
			ldap.NewEntry("cn=a", map[string][]string{"cn": {"a"}, "telephoneNumber": {"1111"}}),
			ldap.NewEntry("cn=b", map[string][]string{"cn": {"b"}, "mobile": {"2222"}}),
		), nil
	}}
	p, _ := newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x"}, sess)

	got, err := p.MatchAll(context.Background(), []string{"1111", "2222", "3333"}, sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "b", got["2222"].Fields["cn"])
	require.Len(t, sess.filters, 1)
}

func TestRebindsOnceWhenServerDown(t *testing.T) {
	t.Parallel()

	down := &fakeSession{searchFn: func(*ldap.SearchRequest) (*ldap.SearchResult, error) {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed"))
	}}
	up := &fakeSession{searchFn: func(*ldap.SearchRequest) (*ldap.SearchResult, error) {
		return result(ldap.NewEntry("cn=a", map[string][]string{"telephoneNumber": {"1111"}})), nil
	}}
	p, dials := newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x"}, down, up)

	c, err := p.FirstMatch(context.Background(), "1111", sources.Args{})
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, 2, *dials)
	require.True(t, down.closed)
}

func TestFilterErrorsAndTimeoutsYieldEmpty(t *testing.T) {
	t.Parallel()

	calls := 0
	sess := &fakeSession{searchFn: func(*ldap.SearchRequest) (*ldap.SearchResult, error) {
		calls++
		if calls == 1 {
			return nil, ldap.NewError(ldap.ErrorFilterCompile, errors.New("bad filter"))
		}
		return nil, ldap.NewError(ldap.LDAPResultTimeLimitExceeded, errors.New("time limit"))
	}}
	p, _ := newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x"}, sess)

	got, err := p.Search(context.Background(), "x", sources.Args{})
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = p.Search(context.Background(), "x", sources.Args{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDecodesBinaryUniqueColumn(t *testing.T) {
	t.Parallel()

	u := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	sess := &fakeSession{searchFn: func(*ldap.SearchRequest) (*ldap.SearchResult, error) {
		return result(&ldap.Entry{DN: "cn=a", Attributes: []*ldap.EntryAttribute{
			{Name: "objectGUID", ByteValues: [][]byte{guidBytes(u)}},
			{Name: "cn", Values: []string{"a"}, ByteValues: [][]byte{[]byte("a")}},
		}}), nil
	}}
	p, _ := newTestPlugin(t, sources.LDAPConfig{URI: "ldap://x", BaseDN: "dc=x", UniqueColumn: "objectGUID", UniqueColumnFormat: BinaryUUID}, sess)

	got, err := p.List(context.Background(), []string{u.String()}, sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, u.String(), got[0].EntryID())
}
