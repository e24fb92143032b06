// Package service is the aggregation engine: it fans a query out to the
// sources of a profile and shapes the merged contacts through its display.
package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/domains/lookup/be/repo"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/tenant"
	"github.com/zenGate-Global/palmyra-directory/platform/go/workerpool"
)

// Profile services.
const (
	ServiceLookup    = "lookup"
	ServiceReverse   = "reverse"
	ServiceFavorites = "favorites"
)

// Operation names used in logs and metrics.
const (
	opLookup      = "lookup"
	opReverse     = "reverse"
	opReverseMany = "reverse_many"
	opFavorites   = "favorites"
	opPersonal    = "personal"
)

// DefaultTimeout applies when a profile service sets no timeout.
const DefaultTimeout = 2 * time.Second

// reverseField is the contact field reported as the reverse display name.
const reverseField = "reverse"

// Caller is the identity a query runs for.
type Caller struct {
	UserUUID   uuid.UUID
	TenantUUID uuid.UUID
	Token      string
}

// Result is a list of rows shaped by a display.
type Result struct {
	ColumnHeaders []*string
	ColumnTypes   []*string
	Rows          []contact.Row
}

// ReverseResult is the contact matching an extension. Every field is nil when
// nothing matched.
type ReverseResult struct {
	Display *string
	Exten   string
	Source  *string
	Fields  map[string]any
}

// Service defines the aggregation operations.
type Service interface {
	Lookup(ctx context.Context, scope tenant.Scope, caller Caller, profile, term string) (Result, error)
	Headers(ctx context.Context, scope tenant.Scope, profile string) (Result, error)
	Reverse(ctx context.Context, scope tenant.Scope, caller Caller, profile, exten string) (ReverseResult, error)
	ReverseMany(ctx context.Context, scope tenant.Scope, caller Caller, profile string, extens []string) ([]*ReverseResult, error)
	Favorites(ctx context.Context, scope tenant.Scope, caller Caller, profile string) (Result, error)
	PersonalWithDisplay(ctx context.Context, scope tenant.Scope, caller Caller, profile string) (Result, error)
}

// Deps are the collaborators of the engine.
type Deps struct {
	Profiles       repo.ProfileReader
	Displays       repo.DisplayReader
	Favorites      repo.FavoriteReader
	Registry       repo.Registry
	Pool           *workerpool.Pool
	DefaultTimeout time.Duration
	Logger         *zap.Logger
}

type service struct {
	profiles       repo.ProfileReader
	displays       repo.DisplayReader
	favorites      repo.FavoriteReader
	registry       repo.Registry
	pool           *workerpool.Pool
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// New constructs the aggregation engine.
func New(deps Deps) Service {
	if deps.Profiles == nil {
		panic("profile reader is required")
	}
	if deps.Displays == nil {
		panic("display reader is required")
	}
	if deps.Favorites == nil {
		panic("favorite reader is required")
	}
	if deps.Registry == nil {
		panic("source registry is required")
	}
	if deps.Logger == nil {
		panic("logger is required")
	}
	if deps.Pool == nil {
		deps.Pool = workerpool.New(workerpool.DefaultSize)
	}
	if deps.DefaultTimeout <= 0 {
		deps.DefaultTimeout = DefaultTimeout
	}
	return &service{
		profiles:       deps.Profiles,
		displays:       deps.Displays,
		favorites:      deps.Favorites,
		registry:       deps.Registry,
		pool:           deps.Pool,
		defaultTimeout: deps.DefaultTimeout,
		logger:         deps.Logger.With(zap.String("component", "lookup-engine")),
	}
}

// plan is what an operation needs from a profile.
type plan struct {
	display contact.Display
	sources []source
	timeout time.Duration
}

func (s *service) Lookup(ctx context.Context, scope tenant.Scope, caller Caller, profile, term string) (Result, error) {
	defer observe(opLookup)()
	if term == "" {
		return Result{}, apperr.Invalid("term", "must not be empty")
	}
	p, err := s.plan(ctx, scope, profile, ServiceLookup)
	if err != nil {
		return Result{}, err
	}
	favs, err := s.favoriteSet(ctx, caller, p.display)
	if err != nil {
		return Result{}, err
	}

	args := caller.args()
	slots := make([][]contact.Contact, len(p.sources))
	err = fanOut(ctx, s, opLookup, p.timeout, p.sources,
		func(ctx context.Context, src source) ([]contact.Contact, error) {
			return src.entry.Plugin.Search(ctx, term, args)
		},
		func(src source, found []contact.Contact) bool {
			slots[src.index] = found
			return false
		},
	)
	if err != nil {
		return Result{}, err
	}
	return project(p.display, flatten(slots), favs), nil
}

func (s *service) Headers(ctx context.Context, scope tenant.Scope, profile string) (Result, error) {
	p, err := s.plan(ctx, scope, profile, ServiceLookup)
	if err != nil {
		return Result{}, err
	}
	headers, types := contact.Headers(p.display)
	return Result{ColumnHeaders: headers, ColumnTypes: types, Rows: []contact.Row{}}, nil
}

func (s *service) Reverse(ctx context.Context, scope tenant.Scope, caller Caller, profile, exten string) (ReverseResult, error) {
	defer observe(opReverse)()
	p, err := s.plan(ctx, scope, profile, ServiceReverse)
	if err != nil {
		return ReverseResult{}, err
	}

	args := caller.args()
	var match *contact.Contact
	err = fanOut(ctx, s, opReverse, p.timeout, p.sources,
		func(ctx context.Context, src source) (*contact.Contact, error) {
			return src.entry.Plugin.FirstMatch(ctx, exten, args)
		},
		func(_ source, c *contact.Contact) bool {
			if c == nil {
				return false
			}
			match = c
			return true
		},
	)
	if err != nil {
		return ReverseResult{}, err
	}
	return reverseResult(exten, match), nil
}

func (s *service) ReverseMany(ctx context.Context, scope tenant.Scope, caller Caller, profile string, extens []string) ([]*ReverseResult, error) {
	defer observe(opReverseMany)()
	p, err := s.plan(ctx, scope, profile, ServiceReverse)
	if err != nil {
		return nil, err
	}

	out := make([]*ReverseResult, len(extens))
	if len(extens) == 0 {
		return out, nil
	}
	unique := dedupe(extens)
	resolved := make(map[string]contact.Contact, len(unique))

	args := caller.args()
	err = fanOut(ctx, s, opReverseMany, p.timeout, p.sources,
		func(ctx context.Context, src source) (map[string]contact.Contact, error) {
			return sources.MatchAll(ctx, src.entry.Plugin, unique, args)
		},
		func(_ source, found map[string]contact.Contact) bool {
			for exten, c := range found {
				if _, done := resolved[exten]; !done {
					resolved[exten] = c
				}
			}
			return len(resolved) >= len(unique)
		},
	)
	if err != nil {
		return nil, err
	}

	for i, exten := range extens {
		if c, ok := resolved[exten]; ok {
			r := reverseResult(exten, &c)
			out[i] = &r
		}
	}
	return out, nil
}

// Favorites lists the caller's favorites on the profile's favorites sources.
// A favorite whose entry is gone from a source that answered is listed as a
// stub row.
func (s *service) Favorites(ctx context.Context, scope tenant.Scope, caller Caller, profile string) (Result, error) {
	defer observe(opFavorites)()
	p, err := s.plan(ctx, scope, profile, ServiceFavorites)
	if err != nil {
		return Result{}, err
	}
	recs, err := s.favorites.List(ctx, caller.UserUUID)
	if err != nil {
		return Result{}, err
	}

	ids := make(map[uuid.UUID][]string)
	for _, rec := range recs {
		ids[rec.SourceUUID] = append(ids[rec.SourceUUID], rec.EntryID)
	}
	var listed []source
	for _, src := range p.sources {
		if _, ok := src.entry.Plugin.(sources.Lister); ok && len(ids[src.entry.Config.UUID]) > 0 {
			listed = append(listed, src)
		}
	}

	type answer struct {
		found []contact.Contact
		ok    bool
	}
	slots := make([]answer, len(p.sources))
	args := caller.args()
	err = fanOut(ctx, s, opFavorites, p.timeout, listed,
		func(ctx context.Context, src source) ([]contact.Contact, error) {
			return src.entry.Plugin.(sources.Lister).List(ctx, ids[src.entry.Config.UUID], args)
		},
		func(src source, found []contact.Contact) bool {
			slots[src.index] = answer{found: found, ok: true}
			return false
		},
	)
	if err != nil {
		return Result{}, err
	}

	rows := make([]contact.Row, 0, len(recs))
	for _, src := range listed {
		ans := slots[src.index]
		if !ans.ok {
			continue
		}
		seen := make(map[string]struct{}, len(ans.found))
		for _, c := range ans.found {
			seen[c.EntryID()] = struct{}{}
			rows = append(rows, contact.Project(p.display, c, true))
		}
		for _, id := range ids[src.entry.Config.UUID] {
			if _, ok := seen[id]; !ok {
				rows = append(rows, contact.StubRow(p.display, src.name(), src.backend(), id))
			}
		}
	}
	headers, types := contact.Headers(p.display)
	return Result{ColumnHeaders: headers, ColumnTypes: types, Rows: rows}, nil
}

// PersonalWithDisplay lists every personal contact of the caller through the
// profile's lookup sources able to list them.
func (s *service) PersonalWithDisplay(ctx context.Context, scope tenant.Scope, caller Caller, profile string) (Result, error) {
	defer observe(opPersonal)()
	p, err := s.plan(ctx, scope, profile, ServiceLookup)
	if err != nil {
		return Result{}, err
	}
	var personal []source
	for _, src := range p.sources {
		if _, ok := src.entry.Plugin.(sources.PersonalLister); ok {
			personal = append(personal, src)
		}
	}
	favs, err := s.favoriteSet(ctx, caller, p.display)
	if err != nil {
		return Result{}, err
	}

	args := caller.args()
	slots := make([][]contact.Contact, len(p.sources))
	err = fanOut(ctx, s, opPersonal, p.timeout, personal,
		func(ctx context.Context, src source) ([]contact.Contact, error) {
			return src.entry.Plugin.(sources.PersonalLister).ListAll(ctx, args)
		},
		func(src source, found []contact.Contact) bool {
			slots[src.index] = found
			return false
		},
	)
	if err != nil {
		return Result{}, err
	}
	return project(p.display, flatten(slots), favs), nil
}

// plan resolves the profile in the caller's tenant, its display and the
// loaded sources of svc, in profile order.
func (s *service) plan(ctx context.Context, scope tenant.Scope, profile, svc string) (plan, error) {
	rec, err := s.profiles.GetByName(ctx, []uuid.UUID{scope.TenantUUID}, profile)
	if err != nil {
		if errors.Is(err, persistence.ErrProfileNotFound) {
			return plan{}, apperr.NotFound("profile", profile)
		}
		return plan{}, err
	}

	var display contact.Display
	if rec.DisplayUUID != nil {
		d, err := s.displays.Get(ctx, scope.Tenants(true), *rec.DisplayUUID)
		if err != nil {
			if errors.Is(err, persistence.ErrDisplayNotFound) {
				return plan{}, apperr.NotFound("display", *rec.DisplayUUID)
			}
			return plan{}, err
		}
		display = contact.Display{UUID: d.UUID, Name: d.Name, Columns: d.Columns}
	}

	out := plan{display: display, timeout: s.defaultTimeout}
	conf, ok := rec.Services[svc]
	if !ok {
		return out, nil
	}
	if t := conf.Options.Timeout; t != nil && *t > 0 && !math.IsInf(*t, 0) {
		out.timeout = time.Duration(*t * float64(time.Second))
	}
	for _, id := range conf.Sources {
		entry, ok := s.registry.Get(id)
		if !ok {
			s.logger.Debug("profile source not loaded", zap.String("source_uuid", id.String()))
			continue
		}
		if entry.Broken() {
			metrics.SourceQueriesTotal.WithLabelValues(string(entry.Config.Backend), svc, metrics.OutcomeBroken).Inc()
			s.logger.Debug("profile source is broken", zap.String("source", entry.Config.Name), zap.Error(entry.Err))
			continue
		}
		out.sources = append(out.sources, source{index: len(out.sources), entry: entry})
	}
	return out, nil
}

type favoriteKey struct {
	source  uuid.UUID
	entryID string
}

// favoriteSet loads the caller's favorites when the display has a favorite column.
func (s *service) favoriteSet(ctx context.Context, caller Caller, d contact.Display) (map[favoriteKey]struct{}, error) {
	if !d.HasFavoriteColumn() || caller.UserUUID == uuid.Nil {
		return nil, nil
	}
	recs, err := s.favorites.List(ctx, caller.UserUUID)
	if err != nil {
		return nil, err
	}
	out := make(map[favoriteKey]struct{}, len(recs))
	for _, rec := range recs {
		out[favoriteKey{source: rec.SourceUUID, entryID: rec.EntryID}] = struct{}{}
	}
	return out, nil
}

func project(d contact.Display, found []contact.Contact, favs map[favoriteKey]struct{}) Result {
	headers, types := contact.Headers(d)
	rows := make([]contact.Row, 0, len(found))
	for _, c := range found {
		_, fav := favs[favoriteKey{source: c.SourceUUID, entryID: c.EntryID()}]
		rows = append(rows, contact.Project(d, c, fav && c.EntryID() != ""))
	}
	return Result{ColumnHeaders: headers, ColumnTypes: types, Rows: rows}
}

func reverseResult(exten string, c *contact.Contact) ReverseResult {
	if c == nil {
		return ReverseResult{Exten: exten}
	}
	out := ReverseResult{Exten: exten, Fields: c.Fields}
	name := c.Source
	out.Source = &name
	if display, ok := contact.StringValue(c.Fields[reverseField]); ok {
		out.Display = &display
	}
	return out
}

func (c Caller) args() sources.Args {
	return sources.Args{UserUUID: c.UserUUID, TenantUUID: c.TenantUUID, Token: c.Token}
}

func flatten(slots [][]contact.Contact) []contact.Contact {
	var out []contact.Contact
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.AggregationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
