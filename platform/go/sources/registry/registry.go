// Package registry owns the loaded source plugins, keyed by source uuid.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/authclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/conference"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/csvfile"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/csvws"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/google"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/ldapsrc"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/office365"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/personal"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/phonebook"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/wazo"
)

// TokenIssuer is the part of the auth client used by plugins.
type TokenIssuer interface {
	ServiceToken(ctx context.Context, ep authclient.Endpoint) (string, error)
	ExternalToken(ctx context.Context, ep authclient.Endpoint, userUUID, provider, callerToken string) (string, error)
}

// Deps are the process-wide collaborators handed to plugins. They are built
// at startup and torn down by their owner after the registry is closed.
type Deps struct {
	Personal  personal.Reader
	Phonebook phonebook.Reader
	HTTP      *httpclient.Pair
	Auth      TokenIssuer
	Logger    *zap.Logger
}

// BuildFunc instantiates a plugin for a decoded source.
type BuildFunc func(cfg sources.Config, deps Deps) (sources.Plugin, error)

// Build is the default BuildFunc covering every backend.
func Build(cfg sources.Config, deps Deps) (sources.Plugin, error) {
	logger := deps.Logger
	switch cfg.Backend {
	case sources.BackendPersonal:
		return personal.New(cfg, deps.Personal, logger)
	case sources.BackendPhonebook:
		return phonebook.New(cfg, deps.Phonebook, logger)
	case sources.BackendCSV:
		return csvfile.New(cfg, logger)
	case sources.BackendCSVWS:
		return csvws.New(cfg, deps.HTTP, logger)
	case sources.BackendLDAP:
		return ldapsrc.New(cfg, logger)
	case sources.BackendWazo:
		return wazo.New(cfg, deps.Auth, deps.HTTP, logger)
	case sources.BackendGoogle:
		return google.New(cfg, deps.Auth, deps.HTTP, logger)
	case sources.BackendOffice365:
		return office365.New(cfg, deps.Auth, deps.HTTP, logger)
	case sources.BackendConference:
		return conference.New(cfg, deps.Auth, deps.HTTP, logger)
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

// Entry is a registered source. A broken entry has a nil Plugin and the load error.
type Entry struct {
	Config sources.Config
	Plugin sources.Plugin
	Err    error
}

// Broken reports whether the source failed to load.
func (e Entry) Broken() bool {
	return e.Plugin == nil
}

// Registry maps source uuids to loaded plugins. Reads are concurrent; writes
// swap whole entries under the lock.
type Registry struct {
	deps   Deps
	build  BuildFunc
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

// Option customizes a Registry.
type Option func(*Registry)

// WithBuildFunc replaces the plugin factory.
func WithBuildFunc(fn BuildFunc) Option {
	return func(r *Registry) {
		r.build = fn
	}
}

// New returns an empty registry.
func New(deps Deps, opts ...Option) *Registry {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := &Registry{
		deps:    deps,
		build:   Build,
		logger:  deps.Logger.With(zap.String("component", "source-registry")),
		entries: make(map[uuid.UUID]Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadAll registers every definition. A failing source is marked broken and
// never prevents its siblings from loading.
func (r *Registry) LoadAll(defs []sources.Definition) (loaded, broken int) {
	for _, def := range defs {
		if err := r.Put(def); err != nil {
			broken++
			continue
		}
		loaded++
	}
	r.logger.Info("sources loaded", zap.Int("loaded", loaded), zap.Int("broken", broken))
	return loaded, broken
}

// Put loads def and swaps it in, replacing any previous instance of the same
// source. The plugin is built outside the lock; the replaced instance is
// closed afterwards, best effort. The returned error is the load error; the
// source is then registered as broken.
func (r *Registry) Put(def sources.Definition) error {
	entry := r.load(def)

	r.mu.Lock()
	old, had := r.entries[def.UUID]
	r.entries[def.UUID] = entry
	r.mu.Unlock()

	if had {
		gauge(old).Dec()
		r.unload(old)
	}
	gauge(entry).Inc()
	return entry.Err
}

// Remove unregisters a source and closes its plugin.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	old, had := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if had {
		gauge(old).Dec()
		r.unload(old)
	}
}

// Get returns the entry of a source.
func (r *Registry) Get(id uuid.UUID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Len returns the number of registered sources, broken ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close unloads every plugin.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uuid.UUID]Entry)
	r.mu.Unlock()

	for _, e := range entries {
		gauge(e).Dec()
		r.unload(e)
	}
}

func (r *Registry) load(def sources.Definition) (entry Entry) {
	logger := r.logger.With(
		zap.String("source", def.Name),
		zap.String("source_uuid", def.UUID.String()),
		zap.String("backend", def.Backend),
	)

	cfg, err := sources.Decode(def)
	if err != nil {
		logger.Warn("source config rejected", zap.Error(err))
		return Entry{Config: sources.Config{UUID: def.UUID, TenantUUID: def.TenantUUID, Name: def.Name, Backend: sources.Backend(def.Backend)}, Err: err}
	}
	entry.Config = cfg

	defer func() {
		if rec := recover(); rec != nil {
			entry.Plugin = nil
			entry.Err = fmt.Errorf("load source %s: panic: %v", def.Name, rec)
			logger.Error("source load panicked", zap.Any("panic", rec))
		}
	}()

	plugin, err := r.build(cfg, r.deps)
	if err == nil && plugin == nil {
		err = errors.New("no plugin returned")
	}
	if err != nil {
		logger.Warn("source load failed", zap.Error(err))
		entry.Err = err
		return entry
	}
	entry.Plugin = plugin
	return entry
}

func gauge(e Entry) prometheus.Gauge {
	state := "loaded"
	if e.Broken() {
		state = "broken"
	}
	return metrics.SourcesLoaded.WithLabelValues(string(e.Config.Backend), state)
}

func (r *Registry) unload(e Entry) {
	closer, ok := e.Plugin.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		r.logger.Warn("source unload failed", zap.String("source", e.Config.Name), zap.Error(err))
	}
}
