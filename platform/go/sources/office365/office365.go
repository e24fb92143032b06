// Package office365 reads the caller's Microsoft contacts through the Graph API.
package office365

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/zenGate-Global/palmyra-directory/platform/go/authclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

const (
	provider        = "microsoft"
	uniqueColumn    = "id"
	defaultEndpoint = "https://graph.microsoft.com/v1.0/me/contacts"
	maxPageSize     = 1000
)

// TokenSource fetches a user's OAuth token for an external provider.
type TokenSource interface {
	ExternalToken(ctx context.Context, ep authclient.Endpoint, userUUID, provider, callerToken string) (string, error)
}

// Plugin is a loaded office365 source.
type Plugin struct {
	cfg      sources.Config
	office   *sources.Office365Config
	endpoint string
	tokens   TokenSource
	http     *httpclient.Client
	builder  *contact.Builder
	logger   *zap.Logger
}

// New loads an office365 source.
func New(cfg sources.Config, tokens TokenSource, clients *httpclient.Pair, logger *zap.Logger) (*Plugin, error) {
	if cfg.Office365 == nil {
		return nil, errors.New("office365: missing backend config")
	}
	if tokens == nil || clients == nil {
		return nil, errors.New("office365: token source and http clients are required")
	}
	endpoint := cfg.Office365.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("office365: invalid endpoint: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{
		cfg:      cfg,
		office:   cfg.Office365,
		endpoint: endpoint,
		tokens:   tokens,
		http:     clients.For(true),
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendOffice365),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  uniqueColumn,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
	}, nil
}

// Search filters the caller's contacts client-side.
func (p *Plugin) Search(ctx context.Context, term string, args sources.Args) ([]contact.Contact, error) {
	records, err := p.contacts(ctx, args)
	if err != nil {
		return nil, err
	}
	return p.build(sources.SearchRecords(records, term, p.cfg.SearchedColumns)), nil
}

// FirstMatch returns the first contact where a first-matched column equals exten.
func (p *Plugin) FirstMatch(ctx context.Context, exten string, args sources.Args) (*contact.Contact, error) {
	records, err := p.contacts(ctx, args)
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

// MatchAll resolves every exten against one fetch of the contacts.
func (p *Plugin) MatchAll(ctx context.Context, extens []string, args sources.Args) (map[string]contact.Contact, error) {
	records, err := p.contacts(ctx, args)
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
	records, err := p.contacts(ctx, args)
	if err != nil {
		return nil, err
	}
	return p.build(sources.ListRecords(records, uniqueColumn, ids)), nil
}

// ListContacts pages and sorts the caller's contacts client-side.
func (p *Plugin) ListContacts(ctx context.Context, args sources.Args, opts sources.ListOptions) (sources.ContactsPage, error) {
	records, err := p.contacts(ctx, args)
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

type graphContact struct {
	ID             string   `json:"id"`
	DisplayName    string   `json:"displayName"`
	GivenName      string   `json:"givenName"`
	Surname        string   `json:"surname"`
	CompanyName    string   `json:"companyName"`
	JobTitle       string   `json:"jobTitle"`
	MobilePhone    string   `json:"mobilePhone"`
	BusinessPhones []string `json:"businessPhones"`
	HomePhones     []string `json:"homePhones"`
	EmailAddresses []struct {
		Address string `json:"address"`
	} `json:"emailAddresses"`
}

type graphPage struct {
	Count    *int           `json:"@odata.count"`
	NextLink string         `json:"@odata.nextLink"`
	Value    []graphContact `json:"value"`
}

func (p *Plugin) contacts(ctx context.Context, args sources.Args) ([]sources.Record, error) {
	token, err := p.tokens.ExternalToken(ctx, p.office.Auth, args.UserUUID.String(), provider, args.Token)
	if errors.Is(err, authclient.ErrNoExternalToken) {
		p.logger.Debug("no microsoft token for user", zap.Stringer("user_uuid", args.UserUUID))
		return []sources.Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	base := context.WithValue(ctx, oauth2.HTTPClient, p.http.StandardClient())
	client := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))

	counted, err := p.page(ctx, client, withQuery(p.endpoint, url.Values{"$count": {"true"}, "$top": {"1"}}))
	if err != nil {
		return nil, err
	}
	top := maxPageSize
	if counted.Count != nil {
		if *counted.Count == 0 {
			return []sources.Record{}, nil
		}
		if *counted.Count < top {
			top = *counted.Count
		}
	}

	out := make([]sources.Record, 0, top)
	next := withQuery(p.endpoint, url.Values{"$top": {strconv.Itoa(top)}})
	for next != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := p.page(ctx, client, next)
		if err != nil {
			return nil, err
		}
		for _, c := range page.Value {
			out = append(out, flatten(c))
		}
		next = page.NextLink
	}
	return out, nil
}

func (p *Plugin) page(ctx context.Context, client *http.Client, rawURL string) (graphPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return graphPage{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return graphPage{}, fmt.Errorf("fetch microsoft contacts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return graphPage{}, fmt.Errorf("fetch microsoft contacts: unexpected status %d", resp.StatusCode)
	}

	var out graphPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, httpclient.MaxResponseSize)).Decode(&out); err != nil {
		return graphPage{}, fmt.Errorf("decode microsoft contacts: %w", err)
	}
	return out, nil
}

func withQuery(rawURL string, q url.Values) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + q.Encode()
}

func flatten(c graphContact) sources.Record {
	numbers := make([]string, 0, len(c.BusinessPhones)+len(c.HomePhones)+1)
	numbers = append(numbers, c.BusinessPhones...)
	numbers = append(numbers, c.HomePhones...)
	if c.MobilePhone != "" {
		numbers = append(numbers, c.MobilePhone)
	}
	emails := make([]string, 0, len(c.EmailAddresses))
	for _, e := range c.EmailAddresses {
		if e.Address != "" {
			emails = append(emails, e.Address)
		}
	}

	rec := sources.Record{
		"id":        c.ID,
		"name":      c.DisplayName,
		"firstname": c.GivenName,
		"lastname":  c.Surname,
		"company":   c.CompanyName,
		"job_title": c.JobTitle,
		"mobile":    nil,
		"number":    nil,
		"email":     nil,
		"numbers":   numbers,
		"emails":    emails,
	}
	if c.MobilePhone != "" {
		rec["mobile"] = c.MobilePhone
	}
	if len(c.BusinessPhones) > 0 {
		rec["number"] = c.BusinessPhones[0]
	} else if len(numbers) > 0 {
		rec["number"] = numbers[0]
	}
	if len(emails) > 0 {
		rec["email"] = emails[0]
	}
	return rec
}
