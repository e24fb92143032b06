// Package sources defines the contract between the aggregation engine and the
// per-backend source plugins, and the typed configuration each backend loads from.
package sources

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
)

// Backend is the kind of a source.
type Backend string

const (
	BackendPersonal   Backend = "personal"
	BackendPhonebook  Backend = "phonebook"
	BackendCSV        Backend = "csv"
	BackendCSVWS      Backend = "csv_ws"
	BackendLDAP       Backend = "ldap"
	BackendWazo       Backend = "wazo"
	BackendGoogle     Backend = "google"
	BackendOffice365  Backend = "office365"
	BackendConference Backend = "conference"
)

// Backends lists every supported backend.
var Backends = []Backend{
	BackendPersonal,
	BackendPhonebook,
	BackendCSV,
	BackendCSVWS,
	BackendLDAP,
	BackendWazo,
	BackendGoogle,
	BackendOffice365,
	BackendConference,
}

// ParseBackend validates name against the closed set of backends.
func ParseBackend(name string) (Backend, bool) {
	for _, b := range Backends {
		if string(b) == name {
			return b, true
		}
	}
	return "", false
}

// Args carries the caller context of a plugin call.
type Args struct {
	UserUUID   uuid.UUID
	TenantUUID uuid.UUID
	Token      string
	Options    map[string]string
}

// Plugin is a loaded source.
type Plugin interface {
	Search(ctx context.Context, term string, args Args) ([]contact.Contact, error)
	FirstMatch(ctx context.Context, exten string, args Args) (*contact.Contact, error)
}

// BatchMatcher is implemented by plugins able to resolve several extensions in one call.
type BatchMatcher interface {
	MatchAll(ctx context.Context, extens []string, args Args) (map[string]contact.Contact, error)
}

// Lister is implemented by plugins that can fetch entries by source entry id.
// Only those can take part in favorites.
type Lister interface {
	List(ctx context.Context, ids []string, args Args) ([]contact.Contact, error)
}

// PersonalLister lists every contact owned by the caller.
type PersonalLister interface {
	ListAll(ctx context.Context, args Args) ([]contact.Contact, error)
}

// ContactsLister lists a source's contacts with paging for REST browsing.
type ContactsLister interface {
	ListContacts(ctx context.Context, args Args, opts ListOptions) (ContactsPage, error)
}

// MatchAll resolves extens with the plugin's batch implementation when it has
// one, otherwise with one FirstMatch per extension. Extensions without a
// match are absent from the result.
func MatchAll(ctx context.Context, p Plugin, extens []string, args Args) (map[string]contact.Contact, error) {
	if bm, ok := p.(BatchMatcher); ok {
		return bm.MatchAll(ctx, extens, args)
	}
	out := make(map[string]contact.Contact, len(extens))
	for _, exten := range extens {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if _, done := out[exten]; done {
			continue
		}
		c, err := p.FirstMatch(ctx, exten, args)
		if err != nil {
			return out, err
		}
		if c != nil {
			out[exten] = *c
		}
	}
	return out, nil
}
