package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) entries(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func newTestLogger(t *testing.T, cfg Config) (*zap.Logger, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	cfg.Output = out
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	return logger, out
}

func TestNewLoggerCloudLoggingShape(t *testing.T) {
	t.Parallel()

	logger, out := newTestLogger(t, Config{Version: "1.4.0", Component: "api-server", Level: "WARNING"})
	logger.Info("dropped")
	logger.Warn("source timed out", zap.String("source", "ldap"))

	entries := out.entries(t)
	require.Len(t, entries, 1)
	entry := entries[0]
	require.Equal(t, "WARNING", entry["severity"])
	require.Equal(t, "source timed out", entry["message"])
	require.Equal(t, "api-server", entry["component"])
	require.Equal(t, map[string]any{"service": ServiceName, "version": "1.4.0"}, entry["serviceContext"])
	require.Contains(t, entry["caller"], "logging_test.go")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		" Error ": zapcore.ErrorLevel,
		"warning": zapcore.WarnLevel,
		"warn":    zapcore.WarnLevel,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestRequestLoggerCompletionCarriesAddedFields(t *testing.T) {
	t.Parallel()

	logger, out := newTestLogger(t, Config{Component: "api-server"})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			require.True(t, AddFields(req.Context(), zap.String("tenant_uuid", "t-1")))
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/directories/lookup/{profile}", func(w http.ResponseWriter, req *http.Request) {
		FromRequest(req, nil).Info("lookup")
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/directories/lookup/default?term=ali", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	entries := out.entries(t)
	require.Len(t, entries, 2)
	require.Equal(t, "t-1", entries[0]["tenant_uuid"])
	require.NotEmpty(t, entries[0]["request_id"])

	done := entries[1]
	require.Equal(t, "request completed", done["message"])
	require.Equal(t, "INFO", done["severity"])
	require.Equal(t, "t-1", done["tenant_uuid"])
	httpRequest, ok := done["httpRequest"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "GET", httpRequest["requestMethod"])
	require.Equal(t, "/directories/lookup/default?term=ali", httpRequest["requestUrl"])
	require.EqualValues(t, http.StatusNoContent, httpRequest["status"])
	require.True(t, strings.HasSuffix(httpRequest["latency"].(string), "s"))
}

func TestRequestLoggerServerErrorsLogAtError(t *testing.T) {
	t.Parallel()

	logger, out := newTestLogger(t, Config{})
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	entries := out.entries(t)
	require.Len(t, entries, 1)
	require.Equal(t, "ERROR", entries[0]["severity"])
}

func TestAddFieldsWithoutRequestLogger(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.False(t, AddFields(req.Context(), zap.String("k", "v")))
	fallback := zap.NewNop()
	require.Same(t, fallback, FromRequest(req, fallback))
}
