package sources

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
)

func TestDecodeCSV(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(Definition{
		UUID:            uuid.New(),
		Name:            "my_csv",
		Backend:         "csv",
		SearchedColumns: []string{"firstname"},
		Extra:           json.RawMessage(`{"file": "/tmp/contacts.csv", "unique_column": "id"}`),
	})
	require.NoError(t, err)
	require.Equal(t, BackendCSV, cfg.Backend)
	require.NotNil(t, cfg.CSV)
	require.Equal(t, "/tmp/contacts.csv", cfg.CSV.File)
	require.Equal(t, "id", cfg.CSV.UniqueColumn)
	require.Nil(t, cfg.LDAP)
}

func TestDecodeRejectsInvalidBodies(t *testing.T) {
	t.Parallel()

	cases := map[string]Definition{
		"unknown backend":   {Backend: "fax"},
		"csv without file":  {Backend: "csv", Extra: json.RawMessage(`{}`)},
		"ldap extra field":  {Backend: "ldap", Extra: json.RawMessage(`{"ldap_uri":"ldap://x","ldap_base_dn":"dc=x","bogus":1}`)},
		"bad binary format": {Backend: "ldap", Extra: json.RawMessage(`{"ldap_uri":"ldap://x","ldap_base_dn":"dc=x","unique_column_format":"hex"}`)},
		"wazo without host": {Backend: "wazo", Extra: json.RawMessage(`{"auth":{},"confd":{"host":"c"}}`)},
		"phonebook bad uuid": {Backend: "phonebook", Extra: json.RawMessage(`{"phonebook_uuid":"nope"}`)},
	}

	for name, def := range cases {
		_, err := Decode(def)
		require.Error(t, err, name)
	}

	_, err := Decode(Definition{Backend: "csv", Extra: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, apperr.ErrInvalidData)
}

func TestDecodeWazo(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(Definition{
		Backend: "wazo",
		Extra:   json.RawMessage(`{"auth":{"host":"auth","username":"svc","password":"pw"},"confd":{"host":"confd","port":9486,"https":false}}`),
	})
	require.NoError(t, err)
	require.Equal(t, "auth", cfg.Wazo.Auth.Host)
	require.Equal(t, 9486, cfg.Wazo.Confd.Port)
}

func TestDecodePersonalAcceptsEmptyBody(t *testing.T) {
	t.Parallel()

	cfg, err := Decode(Definition{Backend: "personal"})
	require.NoError(t, err)
	require.Equal(t, BackendPersonal, cfg.Backend)
}

var records = []Record{
	{"id": "1", "firstname": "Alice", "lastname": "Aldertion", "number": "1111"},
	{"id": "2", "firstname": "Élodie", "lastname": "Martin", "number": "2222", "numbers": []string{"3333", "4444"}},
	{"id": "3", "firstname": "Bob", "lastname": "Alan", "number": "5555"},
}

func TestSearchRecords(t *testing.T) {
	t.Parallel()

	got := SearchRecords(records, "lice", []string{"firstname"})
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0]["id"])

	got = SearchRecords(records, "elo", []string{"firstname"})
	require.Len(t, got, 1)
	require.Equal(t, "2", got[0]["id"])

	got = SearchRecords(records, "AL", []string{"firstname", "lastname"})
	require.Len(t, got, 2)
	require.Equal(t, "1", got[0]["id"])
	require.Equal(t, "3", got[1]["id"])
}

func TestFirstMatchAndMatchAll(t *testing.T) {
	t.Parallel()

	r, ok := FirstMatchRecord(records, "4444", []string{"number", "numbers"})
	require.True(t, ok)
	require.Equal(t, "2", r["id"])

	_, ok = FirstMatchRecord(records, "111", []string{"number"})
	require.False(t, ok)

	all := MatchAllRecords(records, []string{"1111", "999", "5555"}, []string{"number"})
	require.Len(t, all, 2)
	require.Equal(t, "1", all["1111"]["id"])
	require.Equal(t, "3", all["5555"]["id"])
}

func TestListRecords(t *testing.T) {
	t.Parallel()

	got := ListRecords(records, "id", []string{"3", "1", "42"})
	require.Len(t, got, 2)
	require.Equal(t, "1", got[0]["id"])
	require.Equal(t, "3", got[1]["id"])

	require.Nil(t, ListRecords(records, "", []string{"1"}))
}

type firstMatchOnly struct {
	calls int
}

func (f *firstMatchOnly) Search(context.Context, string, Args) ([]contact.Contact, error) {
	return nil, nil
}

func (f *firstMatchOnly) FirstMatch(_ context.Context, exten string, _ Args) (*contact.Contact, error) {
	f.calls++
	if exten == "boom" {
		return nil, errors.New("boom")
	}
	if exten == "1111" {
		return &contact.Contact{Source: "s"}, nil
	}
	return nil, nil
}

func TestMatchAllFallsBackToFirstMatch(t *testing.T) {
	t.Parallel()

	p := &firstMatchOnly{}
	got, err := MatchAll(context.Background(), p, []string{"1111", "2222", "1111"}, Args{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 2, p.calls)

	_, err = MatchAll(context.Background(), p, []string{"boom"}, Args{})
	require.Error(t, err)
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	all := []contact.Contact{
		{Fields: map[string]any{"name": "Charlie"}},
		{Fields: map[string]any{"name": "alice"}},
		{Fields: map[string]any{"name": "Bob"}},
	}
	limit := 2

	page := Paginate(all, ListOptions{Order: "name", Limit: &limit})
	require.Equal(t, 3, page.Total)
	require.Equal(t, 3, page.Filtered)
	require.Len(t, page.Items, 2)
	require.Equal(t, "alice", page.Items[0].Fields["name"])
	require.Equal(t, "Bob", page.Items[1].Fields["name"])

	page = Paginate(all, ListOptions{Search: "b", Order: "name", Direction: "desc"})
	require.Equal(t, 3, page.Total)
	require.Equal(t, 1, page.Filtered)
	require.Equal(t, "Bob", page.Items[0].Fields["name"])

	page = Paginate(all, ListOptions{Offset: 10})
	require.Empty(t, page.Items)

	require.Equal(t, "Charlie", all[0].Fields["name"])
}
