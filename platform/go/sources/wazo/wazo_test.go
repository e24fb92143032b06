package wazo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
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

const usersJSON = `{"items":[
 {"id":1,"uuid":"7f523550-03cf-4dac-a858-cb8afdb34775","firstname":"Alice","lastname":"Aldertion","exten":"1111","mobile_phone_number":"5551","line_id":10,"agent_id":null},
 {"id":2,"uuid":"a6c0bd43-4e1e-4b96-9ac7-b2a1c0b6c29c","firstname":"Bob","lastname":"Bodkartan","exten":"2222","mobile_phone_number":null,"line_id":11,"agent_id":3}
],"total":2}`

func newServer(t *testing.T, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "svc-token", r.Header.Get("X-Auth-Token"))
		switch r.URL.Path {
		case "/api/confd/1.1/infos":
			_, _ = w.Write([]byte(`{"uuid":"node-uuid"}`))
		case "/api/confd/1.1/users":
			requests.Add(1)
			require.Equal(t, "directory", r.URL.Query().Get("view"))
			if ext := r.URL.Query().Get("exten"); ext != "" {
				require.Equal(t, "2222,9999", ext)
				_, _ = w.Write([]byte(`{"items":[{"id":2,"firstname":"Bob","exten":"2222"}],"total":1}`))
				return
			}
			if r.URL.Query().Get("mobile_phone_number") != "" {
				_, _ = w.Write([]byte(`{"items":[],"total":0}`))
				return
			}
			_, _ = w.Write([]byte(usersJSON))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newPlugin(t *testing.T, srv *httptest.Server, firstMatched ...string) *Plugin {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	https := false

	p, err := New(sources.Config{
		Name:                "node-b",
		SearchedColumns:     []string{"firstname", "lastname"},
		FirstMatchedColumns: firstMatched,
		FormatColumns:       map[string]string{"reverse": "{firstname} {lastname}"},
		Wazo: &sources.WazoConfig{
			Auth:  authclient.Endpoint{Host: u.Hostname(), Port: port, HTTPS: &https, Username: "svc"},
			Confd: authclient.Endpoint{Host: u.Hostname(), Port: port, HTTPS: &https, Prefix: "api/confd"},
		},
	}, staticTokens{}, httpclient.NewPair(httpclient.Config{RetryMax: 0}, nil), zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func TestSearchStampsRelations(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newServer(t, &requests)
	defer srv.Close()

	got, err := newPlugin(t, srv, "exten").Search(context.Background(), "bob", sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	require.Equal(t, "Bob Bodkartan", c.Fields["reverse"])
	require.Equal(t, "2", c.EntryID())
	require.Equal(t, "node-uuid", *c.Relations.XivoID)
	require.Equal(t, 2, *c.Relations.UserID)
	require.Equal(t, 11, *c.Relations.EndpointID)
	require.Equal(t, 3, *c.Relations.AgentID)
	require.Equal(t, "a6c0bd43-4e1e-4b96-9ac7-b2a1c0b6c29c", *c.Relations.UserUUID)
}

func TestFirstMatchAndList(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newServer(t, &requests)
	defer srv.Close()
	p := newPlugin(t, srv, "exten", "mobile_phone_number")

	c, err := p.FirstMatch(context.Background(), "5551", sources.Args{})
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, "Alice", c.Fields["firstname"])
	require.Nil(t, c.Relations.AgentID)

	listed, err := p.List(context.Background(), []string{"1"}, sources.Args{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "Alice", listed[0].Fields["firstname"])
}

func TestMatchAllBatchesSupportedColumns(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newServer(t, &requests)
	defer srv.Close()

	got, err := newPlugin(t, srv, "exten", "mobile_phone_number").MatchAll(context.Background(), []string{"2222", "9999"}, sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Bob", got["2222"].Fields["firstname"])
	require.EqualValues(t, 2, requests.Load())
}

func TestMatchAllFallsBackForOtherColumns(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newServer(t, &requests)
	defer srv.Close()

	got, err := newPlugin(t, srv, "firstname").MatchAll(context.Background(), []string{"Alice", "Bob", "Zoe"}, sources.Args{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.EqualValues(t, 3, requests.Load())
	require.True(t, strings.HasPrefix(*got["Alice"].Relations.UserUUID, "7f52"))
}
