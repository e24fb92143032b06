// Package conference lists the conference rooms of a sibling cluster node.
package conference

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/confd"
)

const uniqueColumn = "id"

// Plugin is a loaded conference source.
type Plugin struct {
	cfg     sources.Config
	client  *confd.Client
	builder *contact.Builder
	logger  *zap.Logger
}

// New loads a conference source.
func New(cfg sources.Config, tokens confd.TokenSource, clients *httpclient.Pair, logger *zap.Logger) (*Plugin, error) {
	if cfg.Conference == nil {
		return nil, errors.New("conference: missing backend config")
	}
	client, err := confd.New(cfg.Conference.Auth, cfg.Conference.Confd, tokens, clients)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{
		cfg:    cfg,
		client: client,
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendConference),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  uniqueColumn,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
	}, nil
}

// Search returns the conferences where a searched column contains term.
func (p *Plugin) Search(ctx context.Context, term string, _ sources.Args) ([]contact.Contact, error) {
	records, err := p.conferences(ctx)
	if err != nil {
		return nil, err
	}
	return p.build(sources.SearchRecords(records, term, p.cfg.SearchedColumns)), nil
}

// FirstMatch returns the first conference reachable at exten.
func (p *Plugin) FirstMatch(ctx context.Context, exten string, _ sources.Args) (*contact.Contact, error) {
	records, err := p.conferences(ctx)
	if err != nil {
		return nil, err
	}
	r, ok := sources.FirstMatchRecord(records, exten, p.cfg.FirstMatchedColumns)
	if !ok {
		return nil, nil
	}
	c := p.builder.Build(r, contact.Relations{})
	return &c, nil
}

// MatchAll resolves every exten against one listing.
func (p *Plugin) MatchAll(ctx context.Context, extens []string, _ sources.Args) (map[string]contact.Contact, error) {
	records, err := p.conferences(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]contact.Contact)
	for exten, r := range sources.MatchAllRecords(records, extens, p.cfg.FirstMatchedColumns) {
		out[exten] = p.builder.Build(r, contact.Relations{})
	}
	return out, nil
}

// List keeps the conferences whose id is one of ids.
func (p *Plugin) List(ctx context.Context, ids []string, _ sources.Args) ([]contact.Contact, error) {
	records, err := p.conferences(ctx)
	if err != nil {
		return nil, err
	}
	return p.build(sources.ListRecords(records, uniqueColumn, ids)), nil
}

// ListContacts pages over every conference.
func (p *Plugin) ListContacts(ctx context.Context, _ sources.Args, opts sources.ListOptions) (sources.ContactsPage, error) {
	records, err := p.conferences(ctx)
	if err != nil {
		return sources.ContactsPage{}, err
	}
	return sources.Paginate(p.build(records), opts), nil
}

func (p *Plugin) build(records []sources.Record) []contact.Contact {
	out := make([]contact.Contact, 0, len(records))
	for _, r := range records {
		out = append(out, p.builder.Build(r, contact.Relations{}))
	}
	return out
}

type extension struct {
	Exten   string `json:"exten"`
	Context string `json:"context"`
}

type room struct {
	ID         int         `json:"id"`
	Name       string      `json:"name"`
	Extensions []extension `json:"extensions"`
	Incalls    []struct {
		ID         int         `json:"id"`
		Extensions []extension `json:"extensions"`
	} `json:"incalls"`
}

func (p *Plugin) conferences(ctx context.Context) ([]sources.Record, error) {
	var body confd.Items[room]
	if err := p.client.Get(ctx, "conferences", url.Values{"recurse": {"true"}}, &body); err != nil {
		return nil, err
	}

	out := make([]sources.Record, 0, len(body.Items))
	for _, r := range body.Items {
		out = append(out, flatten(r))
	}
	return out, nil
}

func flatten(r room) sources.Record {
	extens := make([]string, 0, len(r.Extensions))
	for _, e := range r.Extensions {
		extens = append(extens, e.Exten)
	}
	incalls := make([]string, 0)
	for _, in := range r.Incalls {
		for _, e := range in.Extensions {
			incalls = append(incalls, e.Exten)
		}
	}
	return sources.Record{
		"id":         strconv.Itoa(r.ID),
		"name":       r.Name,
		"extensions": extens,
		"incalls":    incalls,
	}
}
