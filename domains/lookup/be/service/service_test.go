package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/registry"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
	"github.com/zenGate-Global/palmyra-directory/platform/go/workerpool"
)

// memoryPlugin matches rows in memory, like a csv source.
type memoryPlugin struct {
	builder  *contact.Builder
	rows     []sources.Record
	searched []string
	matched  []string
}

func (p *memoryPlugin) Search(_ context.Context, term string, _ sources.Args) ([]contact.Contact, error) {
	return p.build(sources.SearchRecords(p.rows, term, p.searched)), nil
}

func (p *memoryPlugin) FirstMatch(_ context.Context, exten string, _ sources.Args) (*contact.Contact, error) {
	r, ok := sources.FirstMatchRecord(p.rows, exten, p.matched)
	if !ok {
		return nil, nil
	}
	c := p.builder.Build(r, contact.Relations{})
	return &c, nil
}

func (p *memoryPlugin) List(_ context.Context, ids []string, _ sources.Args) ([]contact.Contact, error) {
	return p.build(sources.ListRecords(p.rows, p.builder.UniqueColumn(), ids)), nil
}

func (p *memoryPlugin) build(rows []sources.Record) []contact.Contact {
	out := make([]contact.Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, p.builder.Build(r, contact.Relations{}))
	}
	return out
}

type brokenPlugin struct{ panics bool }

func (p brokenPlugin) Search(context.Context, string, sources.Args) ([]contact.Contact, error) {
	if p.panics {
		panic("boom")
	}
	return nil, errors.New("search failed")
}

func (p brokenPlugin) FirstMatch(context.Context, string, sources.Args) (*contact.Contact, error) {
	if p.panics {
		panic("boom")
	}
	return nil, errors.New("match failed")
}

// slowPlugin blocks until its context ends.
type slowPlugin struct{}

func (slowPlugin) Search(ctx context.Context, _ string, _ sources.Args) ([]contact.Contact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowPlugin) FirstMatch(ctx context.Context, _ string, _ sources.Args) (*contact.Contact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type unreachablePlugin struct{ slowPlugin }

func (unreachablePlugin) Search(context.Context, string, sources.Args) ([]contact.Contact, error) {
	return nil, apperr.ErrAuthUnreachable
}

type fakeRegistry map[uuid.UUID]registry.Entry

func (r fakeRegistry) Get(id uuid.UUID) (registry.Entry, bool) {
	e, ok := r[id]
	return e, ok
}

type fakeProfiles map[string]persistence.ProfileRecord

func (f fakeProfiles) GetByName(_ context.Context, tenants []uuid.UUID, name string) (persistence.ProfileRecord, error) {
	rec, ok := f[name]
	if !ok {
		return persistence.ProfileRecord{}, persistence.ErrProfileNotFound
	}
	for _, t := range tenants {
		if t == rec.TenantUUID {
			return rec, nil
		}
	}
	return persistence.ProfileRecord{}, persistence.ErrProfileNotFound
}

type fakeDisplays map[uuid.UUID]persistence.DisplayRecord

func (f fakeDisplays) Get(_ context.Context, _ []uuid.UUID, id uuid.UUID) (persistence.DisplayRecord, error) {
	rec, ok := f[id]
	if !ok {
		return persistence.DisplayRecord{}, persistence.ErrDisplayNotFound
	}
	return rec, nil
}

type fakeFavorites []persistence.FavoriteRecord

func (f fakeFavorites) List(_ context.Context, user uuid.UUID) ([]persistence.FavoriteRecord, error) {
	var out []persistence.FavoriteRecord
	for _, rec := range f {
		if rec.UserUUID == user {
			out = append(out, rec)
		}
	}
	return out, nil
}

type world struct {
	tenant    uuid.UUID
	user      uuid.UUID
	display   persistence.DisplayRecord
	registry  fakeRegistry
	profiles  fakeProfiles
	favorites fakeFavorites
}

func newWorld() *world {
	display := persistence.DisplayRecord{
		UUID: uuid.New(),
		Name: "default",
		Columns: []contact.Column{
			{Title: contact.Ptr("Firstname"), Field: contact.Ptr("firstname")},
			{Title: contact.Ptr("Number"), Type: contact.Ptr("number"), Field: contact.Ptr("number")},
			{Title: contact.Ptr("Fav"), Type: contact.Ptr(contact.FavoriteType)},
		},
	}
	return &world{
		tenant:   uuid.New(),
		user:     uuid.New(),
		display:  display,
		registry: fakeRegistry{},
		profiles: fakeProfiles{},
	}
}

func (w *world) addCSV(name string, searched, matched []string, rows ...sources.Record) uuid.UUID {
	id := uuid.New()
	w.registry[id] = registry.Entry{
		Config: sources.Config{UUID: id, Name: name, Backend: sources.BackendCSV},
		Plugin: &memoryPlugin{
			builder: contact.NewBuilder(contact.Options{
				Backend:       string(sources.BackendCSV),
				Source:        name,
				SourceUUID:    id,
				UniqueColumn:  "id",
				FormatColumns: map[string]string{"reverse": "{firstname} {lastname}"},
			}),
			rows:     rows,
			searched: searched,
			matched:  matched,
		},
	}
	return id
}

func (w *world) addPlugin(name string, p sources.Plugin) uuid.UUID {
	id := uuid.New()
	w.registry[id] = registry.Entry{Config: sources.Config{UUID: id, Name: name, Backend: sources.BackendCSV}, Plugin: p}
	return id
}

func (w *world) addProfile(name string, timeout *float64, services map[string][]uuid.UUID) {
	svcs := make(map[string]persistence.ProfileService, len(services))
	for svc, ids := range services {
		svcs[svc] = persistence.ProfileService{Sources: ids, Options: persistence.ServiceOptions{Timeout: timeout}}
	}
	w.profiles[name] = persistence.ProfileRecord{
		UUID:        uuid.New(),
		TenantUUID:  w.tenant,
		Name:        name,
		DisplayUUID: &w.display.UUID,
		Services:    svcs,
	}
}

func (w *world) service(t *testing.T) Service {
	t.Helper()
	return New(Deps{
		Profiles:  w.profiles,
		Displays:  fakeDisplays{w.display.UUID: w.display},
		Favorites: w.favorites,
		Registry:  w.registry,
		Pool:      workerpool.New(10),
		Logger:    zaptest.NewLogger(t),
	})
}

func (w *world) scope() tenant.Scope { return tenant.Scope{TenantUUID: w.tenant} }

func (w *world) caller() Caller { return Caller{UserUUID: w.user, TenantUUID: w.tenant} }

func ptrFloat(f float64) *float64 { return &f }

func firstnames(r Result) []any {
	out := make([]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, row.ColumnValues[0])
	}
	return out
}

func TestLookupMergesSourcesInProfileOrder(t *testing.T) {
	t.Parallel()

	w := newWorld()
	first := w.addCSV("my_csv", []string{"firstname"}, []string{"number"},
		sources.Record{"id": "1", "firstname": "Alice", "lastname": "AAA", "number": "1111"})
	second := w.addCSV("second_csv", []string{"lastname"}, []string{"number"},
		sources.Record{"id": "1", "firstname": "Alice", "lastname": "AAA", "number": "1111"})
	third := w.addCSV("third_csv", []string{"firstname", "lastname"}, []string{"number", "mobile"},
		sources.Record{"id": "1", "firstname": "Alan", "lastname": "Alice", "number": "1111", "mobile": "11112"})
	w.addProfile("default", nil, map[string][]uuid.UUID{
		ServiceLookup:  {first, second, third},
		ServiceReverse: {first, second, third},
	})
	svc := w.service(t)

	res, err := svc.Lookup(context.Background(), w.scope(), w.caller(), "default", "lice")
	require.NoError(t, err)
	require.Equal(t, []any{"Alice", "Alan"}, firstnames(res))
	require.Equal(t, "my_csv", res.Rows[0].Source)
	require.Equal(t, "third_csv", res.Rows[1].Source)
	for _, row := range res.Rows {
		require.Len(t, row.ColumnValues, 3)
		require.Len(t, row.ColumnTypes, 3)
		require.Len(t, row.ColumnHeaders, 3)
	}

	rev, err := svc.Reverse(context.Background(), w.scope(), w.caller(), "default", "11112")
	require.NoError(t, err)
	require.NotNil(t, rev.Source)
	require.Equal(t, "third_csv", *rev.Source)
	require.Equal(t, "Alan Alice", *rev.Display)
	require.Equal(t, "11112", rev.Exten)

	none, err := svc.Reverse(context.Background(), w.scope(), w.caller(), "default", "999")
	require.NoError(t, err)
	require.Nil(t, none.Display)
	require.Nil(t, none.Source)
	require.Nil(t, none.Fields)
}

func TestLookupIsolatesFailingSources(t *testing.T) {
	t.Parallel()

	w := newWorld()
	good := w.addCSV("my_csv", []string{"firstname"}, nil, sources.Record{"id": "1", "firstname": "Alice"})
	other := w.addCSV("my_other_csv", []string{"firstname"}, nil, sources.Record{"id": "1", "firstname": "Alan"})
	failing := w.addPlugin("broken", brokenPlugin{})
	panicking := w.addPlugin("panicking", brokenPlugin{panics: true})
	w.addProfile("default", ptrFloat(0.5), map[string][]uuid.UUID{
		ServiceLookup: {good, failing, panicking, other},
	})

	res, err := w.service(t).Lookup(context.Background(), w.scope(), w.caller(), "default", "al")
	require.NoError(t, err)
	require.Equal(t, []any{"Alice", "Alan"}, firstnames(res))
}

func TestReverseSkipsFailingSource(t *testing.T) {
	t.Parallel()

	w := newWorld()
	failing := w.addPlugin("chained_broken_first_lookup", brokenPlugin{})
	second := w.addCSV("chained_second_lookup", nil, []string{"number"},
		sources.Record{"id": "1", "firstname": "Second", "lastname": "Lookup", "number": "5555555555"})
	w.addProfile("default", nil, map[string][]uuid.UUID{ServiceReverse: {failing, second}})

	rev, err := w.service(t).Reverse(context.Background(), w.scope(), w.caller(), "default", "5555555555")
	require.NoError(t, err)
	require.Equal(t, "Second Lookup", *rev.Display)
	require.Equal(t, "5555555555", rev.Exten)
}

func TestLookupHonorsProfileTimeout(t *testing.T) {
	t.Parallel()

	w := newWorld()
	good := w.addCSV("my_csv", []string{"firstname"}, nil, sources.Record{"id": "1", "firstname": "Alice"})
	slow := w.addPlugin("slow", slowPlugin{})
	w.addProfile("default", ptrFloat(0.1), map[string][]uuid.UUID{ServiceLookup: {slow, good}})

	start := time.Now()
	res, err := w.service(t).Lookup(context.Background(), w.scope(), w.caller(), "default", "ali")
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, []any{"Alice"}, firstnames(res))
}

func TestLookupSurfacesAuthUnreachable(t *testing.T) {
	t.Parallel()

	w := newWorld()
	id := w.addPlugin("wazo", unreachablePlugin{})
	w.addProfile("default", nil, map[string][]uuid.UUID{ServiceLookup: {id}})

	_, err := w.service(t).Lookup(context.Background(), w.scope(), w.caller(), "default", "ali")
	require.ErrorIs(t, err, apperr.ErrAuthUnreachable)
}

func TestReverseManyKeepsPositions(t *testing.T) {
	t.Parallel()

	w := newWorld()
	id := w.addCSV("my_csv", nil, []string{"number"},
		sources.Record{"id": "1", "firstname": "Alice", "number": "5555555555"},
		sources.Record{"id": "2", "firstname": "Bob", "number": "5555551234"},
	)
	w.addProfile("default", nil, map[string][]uuid.UUID{ServiceReverse: {id}})

	out, err := w.service(t).ReverseMany(context.Background(), w.scope(), w.caller(), "default",
		[]string{"5555555555", "999", "5555551234", "5555555555"})
	require.NoError(t, err)
	require.Len(t, out, 4)
	require.Equal(t, "Alice", out[0].Fields["firstname"])
	require.Nil(t, out[1])
	require.Equal(t, "Bob", out[2].Fields["firstname"])
	require.Equal(t, "5555555555", out[3].Exten)
}

func TestFavoritesListsStubsForMissingEntries(t *testing.T) {
	t.Parallel()

	w := newWorld()
	id := w.addCSV("my_csv", []string{"firstname"}, nil, sources.Record{"id": "1", "firstname": "Alice", "number": "1111"})
	w.favorites = fakeFavorites{
		{UserUUID: w.user, SourceUUID: id, EntryID: "1"},
		{UserUUID: w.user, SourceUUID: id, EntryID: "42"},
		{UserUUID: uuid.New(), SourceUUID: id, EntryID: "1"},
	}
	w.addProfile("default", nil, map[string][]uuid.UUID{ServiceFavorites: {id}, ServiceLookup: {id}})
	svc := w.service(t)

	res, err := svc.Favorites(context.Background(), w.scope(), w.caller(), "default")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, []any{"Alice", "1111", true}, res.Rows[0].ColumnValues)
	require.Equal(t, []any{nil, nil, true}, res.Rows[1].ColumnValues)
	require.Equal(t, "42", *res.Rows[1].Relations.SourceEntryID)

	looked, err := svc.Lookup(context.Background(), w.scope(), w.caller(), "default", "alice")
	require.NoError(t, err)
	require.Equal(t, true, looked.Rows[0].ColumnValues[2])

	looked, err = svc.Lookup(context.Background(), w.scope(), Caller{UserUUID: uuid.New()}, "default", "alice")
	require.NoError(t, err)
	require.Equal(t, false, looked.Rows[0].ColumnValues[2])
}

func TestUnknownProfile(t *testing.T) {
	t.Parallel()

	w := newWorld()
	w.addProfile("default", nil, nil)
	svc := w.service(t)

	_, err := svc.Lookup(context.Background(), w.scope(), w.caller(), "nope", "a")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// Profiles resolve in the caller's own tenant only.
	_, err = svc.Headers(context.Background(), tenant.Scope{TenantUUID: uuid.New(), Visible: []uuid.UUID{w.tenant}}, "default")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHeadersAndEmptyTerm(t *testing.T) {
	t.Parallel()

	w := newWorld()
	w.addProfile("default", nil, nil)
	svc := w.service(t)

	res, err := svc.Headers(context.Background(), w.scope(), "default")
	require.NoError(t, err)
	require.Equal(t, "Firstname", *res.ColumnHeaders[0])
	require.Equal(t, contact.FavoriteType, *res.ColumnTypes[2])
	require.Empty(t, res.Rows)

	_, err = svc.Lookup(context.Background(), w.scope(), w.caller(), "default", "")
	require.ErrorIs(t, err, apperr.ErrInvalidData)
}

func TestProfileWithoutDisplay(t *testing.T) {
	t.Parallel()

	w := newWorld()
	id := w.addCSV("my_csv", []string{"firstname"}, nil, sources.Record{"id": "1", "firstname": "Alice"})
	w.addProfile("default", nil, map[string][]uuid.UUID{ServiceLookup: {id}})
	rec := w.profiles["default"]
	rec.DisplayUUID = nil
	w.profiles["default"] = rec

	res, err := w.service(t).Lookup(context.Background(), w.scope(), w.caller(), "default", "ali")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Empty(t, res.Rows[0].ColumnValues)
}

func TestBrokenAndUnloadedSourcesAreSkipped(t *testing.T) {
	t.Parallel()

	w := newWorld()
	good := w.addCSV("my_csv", []string{"firstname"}, nil, sources.Record{"id": "1", "firstname": "Alice"})
	broken := uuid.New()
	w.registry[broken] = registry.Entry{Config: sources.Config{UUID: broken, Name: "bad"}, Err: errors.New("bad config")}
	w.addProfile("default", nil, map[string][]uuid.UUID{ServiceLookup: {broken, uuid.New(), good}})

	res, err := w.service(t).Lookup(context.Background(), w.scope(), w.caller(), "default", "ALI")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.True(t, strings.EqualFold("alice", res.Rows[0].ColumnValues[0].(string)))
}
