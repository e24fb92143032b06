package conference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-directory/platform/go/authclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

type staticTokens struct{}

func (staticTokens) ServiceToken(context.Context, authclient.Endpoint) (string, error) {
	return "svc-token", nil
}

func newPlugin(t *testing.T) *Plugin {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1.1/conferences" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"items":[
			{"id":1,"name":"Daily standup","extensions":[{"exten":"4001","context":"default"}],"incalls":[{"id":7,"extensions":[{"exten":"18005551234","context":"from-extern"}]}]},
			{"id":2,"name":"Board room","extensions":[{"exten":"4002","context":"default"}],"incalls":[]}
		],"total":2}`))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	https := false

	p, err := New(sources.Config{
		Name:                "conferences",
		SearchedColumns:     []string{"name", "extensions"},
		FirstMatchedColumns: []string{"extensions", "incalls"},
		Conference: &sources.ConferenceConfig{
			Auth:  authclient.Endpoint{Host: u.Hostname(), Port: port, HTTPS: &https, Username: "svc"},
			Confd: authclient.Endpoint{Host: u.Hostname(), Port: port, HTTPS: &https},
		},
	}, staticTokens{}, httpclient.NewPair(httpclient.Config{RetryMax: 0}, nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func TestSearchMatchesListElements(t *testing.T) {
	t.Parallel()

	p := newPlugin(t)

	got, err := p.Search(context.Background(), "400", sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = p.Search(context.Background(), "board", sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"4002"}, got[0].Fields["extensions"])
	require.Equal(t, "2", got[0].EntryID())
}

func TestFirstMatchOnIncall(t *testing.T) {
	t.Parallel()

	c, err := newPlugin(t).FirstMatch(context.Background(), "18005551234", sources.Args{})
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, "Daily standup", c.Fields["name"])
}

func TestListByID(t *testing.T) {
	t.Parallel()

	got, err := newPlugin(t).List(context.Background(), []string{"1", "9"}, sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].EntryID())
}
