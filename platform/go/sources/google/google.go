// Package google reads the caller's Google contacts through the People API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	people "google.golang.org/api/people/v1"

	"github.com/zenGate-Global/palmyra-directory/platform/go/authclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

const (
	provider        = "google"
	uniqueColumn    = "id"
	defaultEndpoint = "https://people.googleapis.com/"
	personFields    = "names,phoneNumbers,emailAddresses,organizations"
	pageSize        = 1000
	searchPageSize  = 30
)

// TokenSource fetches a user's OAuth token for an external provider.
type TokenSource interface {
	ExternalToken(ctx context.Context, ep authclient.Endpoint, userUUID, provider, callerToken string) (string, error)
}

// Plugin is a loaded google source.
type Plugin struct {
	cfg     sources.Config
	google  *sources.GoogleConfig
	tokens  TokenSource
	http    *httpclient.Client
	builder *contact.Builder
	logger  *zap.Logger
}

// New loads a google source.
func New(cfg sources.Config, tokens TokenSource, clients *httpclient.Pair, logger *zap.Logger) (*Plugin, error) {
	if cfg.Google == nil {
		return nil, errors.New("google: missing backend config")
	}
	if tokens == nil || clients == nil {
		return nil, errors.New("google: token source and http clients are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{
		cfg:    cfg,
		google: cfg.Google,
		tokens: tokens,
		http:   clients.For(true),
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendGoogle),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  uniqueColumn,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
	}, nil
}

// Search uses the People search endpoint when a search url is configured,
// otherwise it filters the full connection list.
func (p *Plugin) Search(ctx context.Context, term string, args sources.Args) ([]contact.Contact, error) {
	if p.google.SearchURL != "" {
		records, err := p.searchContacts(ctx, term, args)
		if err != nil {
			return nil, err
		}
		return p.build(records), nil
	}
	records, err := p.connections(ctx, args)
	if err != nil {
		return nil, err
	}
	return p.build(sources.SearchRecords(records, term, p.cfg.SearchedColumns)), nil
}

// FirstMatch returns the first contact where a first-matched column equals exten.
func (p *Plugin) FirstMatch(ctx context.Context, exten string, args sources.Args) (*contact.Contact, error) {
	records, err := p.connections(ctx, args)
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

// MatchAll resolves every exten against one fetch of the connections.
func (p *Plugin) MatchAll(ctx context.Context, extens []string, args sources.Args) (map[string]contact.Contact, error) {
	records, err := p.connections(ctx, args)
	if err != nil {
		return nil, err
	}
	out := make(map[string]contact.Contact)
	for exten, r := range sources.MatchAllRecords(records, extens, p.cfg.FirstMatchedColumns) {
		out[exten] = p.builder.Build(r, contact.Relations{})
	}
	return out, nil
}

// List keeps the contacts whose id is one of ids.
func (p *Plugin) List(ctx context.Context, ids []string, args sources.Args) ([]contact.Contact, error) {
	records, err := p.connections(ctx, args)
	if err != nil {
		return nil, err
	}
	return p.build(sources.ListRecords(records, uniqueColumn, ids)), nil
}

// ListContacts pages and sorts the caller's contacts client-side.
func (p *Plugin) ListContacts(ctx context.Context, args sources.Args, opts sources.ListOptions) (sources.ContactsPage, error) {
	records, err := p.connections(ctx, args)
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

// service returns a People client for the caller, or nil when the caller has
// not linked a Google account.
func (p *Plugin) service(ctx context.Context, args sources.Args, endpoint string) (*people.Service, error) {
	token, err := p.tokens.ExternalToken(ctx, p.google.Auth, args.UserUUID.String(), provider, args.Token)
	if errors.Is(err, authclient.ErrNoExternalToken) {
		p.logger.Debug("no google token for user", zap.Stringer("user_uuid", args.UserUUID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	base := context.WithValue(ctx, oauth2.HTTPClient, p.http.StandardClient())
	client := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))

	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	svc, err := people.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("google people client: %w", err)
	}
	return svc, nil
}

func (p *Plugin) connections(ctx context.Context, args sources.Args) ([]sources.Record, error) {
	svc, err := p.service(ctx, args, p.google.URL)
	if err != nil || svc == nil {
		return []sources.Record{}, err
	}

	out := make([]sources.Record, 0)
	err = svc.People.Connections.List("people/me").
		PersonFields(personFields).
		PageSize(pageSize).
		Pages(ctx, func(resp *people.ListConnectionsResponse) error {
			for _, person := range resp.Connections {
				out = append(out, flatten(person))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list google connections: %w", err)
	}
	return out, nil
}

func (p *Plugin) searchContacts(ctx context.Context, term string, args sources.Args) ([]sources.Record, error) {
	svc, err := p.service(ctx, args, p.google.SearchURL)
	if err != nil || svc == nil {
		return []sources.Record{}, err
	}

	resp, err := svc.People.SearchContacts().
		Query(term).
		ReadMask(personFields).
		PageSize(searchPageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search google contacts: %w", err)
	}

	out := make([]sources.Record, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.Person != nil {
			out = append(out, flatten(result.Person))
		}
	}
	return out, nil
}

func flatten(person *people.Person) sources.Record {
	rec := sources.Record{
		"id":           strings.TrimPrefix(person.ResourceName, "people/"),
		"name":         nil,
		"firstname":    nil,
		"lastname":     nil,
		"number":       nil,
		"mobile":       nil,
		"email":        nil,
		"organization": nil,
	}
	if len(person.Names) > 0 {
		n := person.Names[0]
		rec["name"] = n.DisplayName
		rec["firstname"] = n.GivenName
		rec["lastname"] = n.FamilyName
	}

	numbers := make([]string, 0, len(person.PhoneNumbers))
	for _, ph := range person.PhoneNumbers {
		if ph.Value == "" {
			continue
		}
		numbers = append(numbers, ph.Value)
		if strings.EqualFold(ph.Type, "mobile") && rec["mobile"] == nil {
			rec["mobile"] = ph.Value
		}
	}
	if len(numbers) > 0 {
		rec["number"] = numbers[0]
	}
	rec["numbers"] = numbers

	emails := make([]string, 0, len(person.EmailAddresses))
	for _, e := range person.EmailAddresses {
		if e.Value != "" {
			emails = append(emails, e.Value)
		}
	}
	if len(emails) > 0 {
		rec["email"] = emails[0]
	}
	rec["emails"] = emails

	if len(person.Organizations) > 0 {
		rec["organization"] = person.Organizations[0].Name
	}
	return rec
}
