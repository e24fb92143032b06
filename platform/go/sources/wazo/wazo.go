// Package wazo looks up users in the directory of a sibling cluster node.
package wazo

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/confd"
)

const uniqueColumn = "id"

var batchColumns = map[string]struct{}{
	"exten":               {},
	"mobile_phone_number": {},
}

// Plugin is a loaded wazo source.
type Plugin struct {
	cfg     sources.Config
	client  *confd.Client
	builder *contact.Builder
	logger  *zap.Logger
	batch   bool
}

// New loads a wazo source.
func New(cfg sources.Config, tokens confd.TokenSource, clients *httpclient.Pair, logger *zap.Logger) (*Plugin, error) {
	if cfg.Wazo == nil {
		return nil, errors.New("wazo: missing backend config")
	}
	client, err := confd.New(cfg.Wazo.Auth, cfg.Wazo.Confd, tokens, clients)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	batch := len(cfg.FirstMatchedColumns) > 0
	for _, col := range cfg.FirstMatchedColumns {
		if _, ok := batchColumns[col]; !ok {
			batch = false
		}
	}

	return &Plugin{
		cfg:    cfg,
		client: client,
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendWazo),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  uniqueColumn,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
		batch:  batch,
	}, nil
}

// Search forwards term to the remote directory and keeps the users where a
// searched column contains it.
func (p *Plugin) Search(ctx context.Context, term string, _ sources.Args) ([]contact.Contact, error) {
	users, err := p.users(ctx, url.Values{"search": {term}})
	if err != nil {
		return nil, err
	}
	if len(p.cfg.SearchedColumns) > 0 {
		users = sources.SearchRecords(users, term, p.cfg.SearchedColumns)
	}
	return p.build(ctx, users), nil
}

// FirstMatch forwards exten to the remote directory and keeps the first exact match.
func (p *Plugin) FirstMatch(ctx context.Context, exten string, _ sources.Args) (*contact.Contact, error) {
	users, err := p.users(ctx, url.Values{"search": {exten}})
	if err != nil {
		return nil, err
	}
	r, ok := sources.FirstMatchRecord(users, exten, p.cfg.FirstMatchedColumns)
	if !ok {
		return nil, nil
	}
	c := p.buildOne(ctx, r)
	return &c, nil
}

// MatchAll sends all extens in one request when every first-matched column
// can be filtered remotely, otherwise it issues one lookup per exten.
func (p *Plugin) MatchAll(ctx context.Context, extens []string, args sources.Args) (map[string]contact.Contact, error) {
	if !p.batch {
		return sources.MatchAll(ctx, firstMatcher{p}, extens, args)
	}

	out := make(map[string]contact.Contact, len(extens))
	if len(extens) == 0 {
		return out, nil
	}
	joined := strings.Join(extens, ",")
	seen := make(map[string]struct{})
	users := make([]sources.Record, 0)
	for _, col := range p.cfg.FirstMatchedColumns {
		found, err := p.users(ctx, url.Values{col: {joined}})
		if err != nil {
			return nil, err
		}
		for _, u := range found {
			id, _ := contact.StringValue(u[uniqueColumn])
			if _, dup := seen[id]; dup && id != "" {
				continue
			}
			seen[id] = struct{}{}
			users = append(users, u)
		}
	}
	for exten, r := range sources.MatchAllRecords(users, extens, p.cfg.FirstMatchedColumns) {
		out[exten] = p.buildOne(ctx, r)
	}
	return out, nil
}

// List keeps the users whose id is one of ids.
func (p *Plugin) List(ctx context.Context, ids []string, _ sources.Args) ([]contact.Contact, error) {
	users, err := p.users(ctx, nil)
	if err != nil {
		return nil, err
	}
	return p.build(ctx, sources.ListRecords(users, uniqueColumn, ids)), nil
}

// ListContacts pages over every user of the remote directory.
func (p *Plugin) ListContacts(ctx context.Context, _ sources.Args, opts sources.ListOptions) (sources.ContactsPage, error) {
	users, err := p.users(ctx, nil)
	if err != nil {
		return sources.ContactsPage{}, err
	}
	return sources.Paginate(p.build(ctx, users), opts), nil
}

type firstMatcher struct {
	p *Plugin
}

func (f firstMatcher) Search(ctx context.Context, term string, args sources.Args) ([]contact.Contact, error) {
	return f.p.Search(ctx, term, args)
}

func (f firstMatcher) FirstMatch(ctx context.Context, exten string, args sources.Args) (*contact.Contact, error) {
	return f.p.FirstMatch(ctx, exten, args)
}

func (p *Plugin) users(ctx context.Context, query url.Values) ([]sources.Record, error) {
	q := url.Values{"view": {"directory"}, "recurse": {"true"}}
	for k, v := range query {
		q[k] = v
	}
	var body confd.Items[map[string]any]
	if err := p.client.Get(ctx, "users", q, &body); err != nil {
		return nil, err
	}

	out := make([]sources.Record, 0, len(body.Items))
	for _, item := range body.Items {
		out = append(out, normalize(item))
	}
	return out, nil
}

// normalize turns JSON values into the string / []string shape of records.
func normalize(item map[string]any) sources.Record {
	rec := make(sources.Record, len(item))
	for k, v := range item {
		switch val := v.(type) {
		case nil:
			rec[k] = nil
		case []any:
			rec[k] = contact.Values(val)
		case map[string]any:
			continue
		default:
			if s, ok := contact.StringValue(val); ok {
				rec[k] = s
			}
		}
	}
	return rec
}

func (p *Plugin) build(ctx context.Context, users []sources.Record) []contact.Contact {
	out := make([]contact.Contact, 0, len(users))
	for _, u := range users {
		out = append(out, p.buildOne(ctx, u))
	}
	return out
}

func (p *Plugin) buildOne(ctx context.Context, u sources.Record) contact.Contact {
	var rel contact.Relations
	if xivoID, err := p.client.UUID(ctx); err == nil && xivoID != "" {
		rel.XivoID = contact.Ptr(xivoID)
	} else if err != nil {
		p.logger.Debug("remote node uuid unavailable", zap.Error(err))
	}
	rel.UserID = intField(u, "id")
	rel.EndpointID = intField(u, "line_id")
	rel.AgentID = intField(u, "agent_id")
	if v, ok := contact.StringValue(u["uuid"]); ok && v != "" {
		rel.UserUUID = contact.Ptr(v)
	}
	return p.builder.Build(u, rel)
}

func intField(u sources.Record, key string) *int {
	s, ok := contact.StringValue(u[key])
	if !ok || s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
