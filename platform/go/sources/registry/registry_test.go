package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

type closingPlugin struct {
	closed atomic.Bool
}

func (p *closingPlugin) Search(context.Context, string, sources.Args) ([]contact.Contact, error) {
	return nil, nil
}

func (p *closingPlugin) FirstMatch(context.Context, string, sources.Args) (*contact.Contact, error) {
	return nil, nil
}

func (p *closingPlugin) Close() error {
	p.closed.Store(true)
	return nil
}

func csvDefinition(t *testing.T, name string) sources.Definition {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".csv")
	require.NoError(t, os.WriteFile(path, []byte("id,firstname\n1,Alice\n"), 0o600))
	extra, err := json.Marshal(map[string]string{"file": path, "unique_column": "id"})
	require.NoError(t, err)
	return sources.Definition{
		UUID:            uuid.New(),
		TenantUUID:      uuid.New(),
		Name:            name,
		Backend:         "csv",
		SearchedColumns: []string{"firstname"},
		Extra:           extra,
	}
}

func TestLoadAllIsolatesBrokenSources(t *testing.T) {
	t.Parallel()

	r := New(Deps{Logger: zaptest.NewLogger(t)})
	good := csvDefinition(t, "my_csv")
	badConfig := sources.Definition{UUID: uuid.New(), Name: "bad", Backend: "csv", Extra: json.RawMessage(`{}`)}
	unknown := sources.Definition{UUID: uuid.New(), Name: "fax", Backend: "fax"}

	loaded, broken := r.LoadAll([]sources.Definition{badConfig, good, unknown})
	require.Equal(t, 1, loaded)
	require.Equal(t, 2, broken)
	require.Equal(t, 3, r.Len())

	e, ok := r.Get(good.UUID)
	require.True(t, ok)
	require.False(t, e.Broken())
	got, err := e.Plugin.Search(context.Background(), "ali", sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	e, ok = r.Get(badConfig.UUID)
	require.True(t, ok)
	require.True(t, e.Broken())
	require.Error(t, e.Err)
}

func TestPutSwapsAndUnloadsPreviousInstance(t *testing.T) {
	t.Parallel()

	var built []*closingPlugin
	r := New(Deps{Logger: zaptest.NewLogger(t)}, WithBuildFunc(func(sources.Config, Deps) (sources.Plugin, error) {
		p := &closingPlugin{}
		built = append(built, p)
		return p, nil
	}))

	def := sources.Definition{UUID: uuid.New(), Name: "me", Backend: "personal"}
	require.NoError(t, r.Put(def))
	require.NoError(t, r.Put(def))
	require.Len(t, built, 2)
	require.True(t, built[0].closed.Load())
	require.False(t, built[1].closed.Load())

	e, _ := r.Get(def.UUID)
	require.Same(t, built[1], e.Plugin)

	r.Remove(def.UUID)
	require.True(t, built[1].closed.Load())
	_, ok := r.Get(def.UUID)
	require.False(t, ok)
}

func TestLoadRecoversFromPanickingFactory(t *testing.T) {
	t.Parallel()

	r := New(Deps{Logger: zaptest.NewLogger(t)}, WithBuildFunc(func(sources.Config, Deps) (sources.Plugin, error) {
		panic("boom")
	}))
	err := r.Put(sources.Definition{UUID: uuid.New(), Name: "me", Backend: "personal"})
	require.Error(t, err)
}

func TestCloseUnloadsEverything(t *testing.T) {
	t.Parallel()

	p := &closingPlugin{}
	r := New(Deps{}, WithBuildFunc(func(sources.Config, Deps) (sources.Plugin, error) {
		return p, nil
	}))
	require.NoError(t, r.Put(sources.Definition{UUID: uuid.New(), Name: "me", Backend: "personal"}))

	r.Close()
	require.True(t, p.closed.Load())
	require.Zero(t, r.Len())
}

func TestBuildRequiresStores(t *testing.T) {
	t.Parallel()

	_, err := Build(sources.Config{Name: "me", Backend: sources.BackendPersonal}, Deps{})
	require.Error(t, err)
}
