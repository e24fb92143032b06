// Package personal serves the caller's own contacts from the personal store.
package personal

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

const uniqueColumn = "id"

var _ Reader = (*persistence.ContactStore)(nil)

// Reader is the read side of the personal contact store.
type Reader interface {
	Search(ctx context.Context, owner persistence.ContactOwner, term string, columns []string) ([]persistence.ContactRecord, error)
	MatchAll(ctx context.Context, owner persistence.ContactOwner, extens []string, columns []string) (map[string]persistence.ContactRecord, error)
	ListByIDs(ctx context.Context, owner persistence.ContactOwner, ids []string) ([]persistence.ContactRecord, error)
	ListAll(ctx context.Context, owner persistence.ContactOwner) ([]persistence.ContactRecord, error)
}

// Plugin is a loaded personal source.
type Plugin struct {
	cfg     sources.Config
	store   Reader
	builder *contact.Builder
	logger  *zap.Logger
}

// New binds a personal source to the store.
func New(cfg sources.Config, store Reader, logger *zap.Logger) (*Plugin, error) {
	if store == nil {
		return nil, errors.New("personal: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{
		cfg:   cfg,
		store: store,
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendPersonal),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  uniqueColumn,
			IsPersonal:    true,
			IsDeletable:   true,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
	}, nil
}

// Search returns the caller's contacts where a searched column contains term.
func (p *Plugin) Search(ctx context.Context, term string, args sources.Args) ([]contact.Contact, error) {
	if args.UserUUID == uuid.Nil {
		return []contact.Contact{}, nil
	}
	recs, err := p.store.Search(ctx, owner(args), term, p.cfg.SearchedColumns)
	if err != nil {
		return nil, err
	}
	return p.build(recs), nil
}

// FirstMatch returns the caller's oldest contact where a first-matched column equals exten.
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
func (p *Plugin) MatchAll(ctx context.Context, extens []string, args sources.Args) (map[string]contact.Contact, error) {
	out := make(map[string]contact.Contact, len(extens))
	if args.UserUUID == uuid.Nil {
		return out, nil
	}
	found, err := p.store.MatchAll(ctx, owner(args), extens, p.cfg.FirstMatchedColumns)
	if err != nil {
		return nil, err
	}
	for exten, rec := range found {
		out[exten] = p.buildOne(rec)
	}
	return out, nil
}

// List returns the caller's contacts among ids.
func (p *Plugin) List(ctx context.Context, ids []string, args sources.Args) ([]contact.Contact, error) {
	if args.UserUUID == uuid.Nil {
		return []contact.Contact{}, nil
	}
	recs, err := p.store.ListByIDs(ctx, owner(args), ids)
	if err != nil {
		return nil, err
	}
	return p.build(recs), nil
}

// ListAll returns every contact of the caller.
func (p *Plugin) ListAll(ctx context.Context, args sources.Args) ([]contact.Contact, error) {
	if args.UserUUID == uuid.Nil {
		return []contact.Contact{}, nil
	}
	recs, err := p.store.ListAll(ctx, owner(args))
	if err != nil {
		return nil, err
	}
	return p.build(recs), nil
}

func owner(args sources.Args) persistence.ContactOwner {
	return persistence.ContactOwner{UUID: args.UserUUID, TenantUUID: args.TenantUUID}
}

func (p *Plugin) build(recs []persistence.ContactRecord) []contact.Contact {
	out := make([]contact.Contact, 0, len(recs))
	for _, rec := range recs {
		out = append(out, p.buildOne(rec))
	}
	return out
}

func (p *Plugin) buildOne(rec persistence.ContactRecord) contact.Contact {
	return p.builder.Build(Fields(rec), contact.Relations{})
}

// Fields exposes a stored contact as a raw source row, id included.
func Fields(rec persistence.ContactRecord) sources.Record {
	raw := make(sources.Record, len(rec.Fields)+1)
	for k, v := range rec.Map() {
		raw[k] = v
	}
	return raw
}
