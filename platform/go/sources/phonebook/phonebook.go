// Package phonebook serves the contacts of one shared phonebook.
package phonebook

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/personal"
)

const uniqueColumn = "id"

var _ Reader = (*persistence.ContactStore)(nil)

// Reader is the read side of the phonebook contact store.
type Reader interface {
	personal.Reader
	List(ctx context.Context, owner persistence.ContactOwner, params persistence.ContactListParams) (persistence.ListResult[persistence.ContactRecord], error)
}

// Plugin is a loaded phonebook source.
type Plugin struct {
	cfg     sources.Config
	owner   persistence.ContactOwner
	store   Reader
	builder *contact.Builder
	logger  *zap.Logger
}

// New binds a phonebook source to the store. The phonebook is scoped by the
// tenant owning the source row.
func New(cfg sources.Config, store Reader, logger *zap.Logger) (*Plugin, error) {
	if cfg.Phonebook == nil {
		return nil, errors.New("phonebook: missing backend config")
	}
	if store == nil {
		return nil, errors.New("phonebook: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{
		cfg:   cfg,
		owner: persistence.ContactOwner{UUID: cfg.Phonebook.PhonebookUUID, TenantUUID: cfg.TenantUUID},
		store: store,
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendPhonebook),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  uniqueColumn,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
	}, nil
}

// Search returns the contacts where a searched column contains term.
func (p *Plugin) Search(ctx context.Context, term string, _ sources.Args) ([]contact.Contact, error) {
	recs, err := p.store.Search(ctx, p.owner, term, p.cfg.SearchedColumns)
	if err != nil {
		return nil, err
	}
	return p.build(recs), nil
}

// FirstMatch returns the oldest contact where a first-matched column equals exten.
func (p *Plugin) FirstMatch(ctx context.Context, exten string, args sources.Args) (*contact.Contact, error) {
	found, err := p.MatchAll(ctx, []string{exten}, args)
	if err != nil {
		return nil, err
	}
	c, ok := found[exten]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// MatchAll resolves every exten in one query.
func (p *Plugin) MatchAll(ctx context.Context, extens []string, _ sources.Args) (map[string]contact.Contact, error) {
	found, err := p.store.MatchAll(ctx, p.owner, extens, p.cfg.FirstMatchedColumns)
	if err != nil {
		return nil, err
	}
	out := make(map[string]contact.Contact, len(found))
	for exten, rec := range found {
		out[exten] = p.builder.Build(personal.Fields(rec), contact.Relations{})
	}
	return out, nil
}

// List returns the contacts among ids.
func (p *Plugin) List(ctx context.Context, ids []string, _ sources.Args) ([]contact.Contact, error) {
	recs, err := p.store.ListByIDs(ctx, p.owner, ids)
	if err != nil {
		return nil, err
	}
	return p.build(recs), nil
}

// ListContacts pages over the phonebook in the database.
func (p *Plugin) ListContacts(ctx context.Context, _ sources.Args, opts sources.ListOptions) (sources.ContactsPage, error) {
	page, err := p.store.List(ctx, p.owner, persistence.ContactListParams{
		Search:    opts.Search,
		Order:     opts.Order,
		Direction: opts.Direction,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		return sources.ContactsPage{}, err
	}
	return sources.ContactsPage{Total: page.Total, Filtered: page.Filtered, Items: p.build(page.Items)}, nil
}

func (p *Plugin) build(recs []persistence.ContactRecord) []contact.Contact {
	out := make([]contact.Contact, 0, len(recs))
	for _, rec := range recs {
		out = append(out, p.builder.Build(personal.Fields(rec), contact.Relations{}))
	}
	return out
}
