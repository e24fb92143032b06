package sources

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-directory/platform/go/authclient"
)

// Definition is a source as persisted: common fields plus the backend
// specific body kept as JSON.
type Definition struct {
	UUID                uuid.UUID
	TenantUUID          uuid.UUID
	Name                string
	Backend             string
	SearchedColumns     []string
	FirstMatchedColumns []string
	FormatColumns       map[string]string
	Extra               json.RawMessage
}

// Config is a decoded source definition. Exactly one of the backend specific
// pointers is set, matching Backend; personal sources carry none.
type Config struct {
	UUID                uuid.UUID
	TenantUUID          uuid.UUID
	Name                string
	Backend             Backend
	SearchedColumns     []string
	FirstMatchedColumns []string
	FormatColumns       map[string]string

	Phonebook  *PhonebookConfig
	CSV        *CSVConfig
	CSVWS      *CSVWSConfig
	LDAP       *LDAPConfig
	Wazo       *WazoConfig
	Google     *GoogleConfig
	Office365  *Office365Config
	Conference *ConferenceConfig
}

// PhonebookConfig binds a source to one phonebook.
type PhonebookConfig struct {
	PhonebookUUID uuid.UUID `json:"phonebook_uuid"`
}

// CSVConfig reads contacts from a local file.
type CSVConfig struct {
	File         string `json:"file"`
	Separator    string `json:"separator,omitempty"`
	UniqueColumn string `json:"unique_column,omitempty"`
}

// CSVWSConfig queries a web service answering CSV.
type CSVWSConfig struct {
	LookupURL         string   `json:"lookup_url"`
	ListURL           string   `json:"list_url,omitempty"`
	Delimiter         string   `json:"delimiter,omitempty"`
	Timeout           *float64 `json:"timeout,omitempty"`
	VerifyCertificate *bool    `json:"verify_certificate,omitempty"`
	UniqueColumn      string   `json:"unique_column,omitempty"`
}

// LDAPConfig queries an LDAP directory.
type LDAPConfig struct {
	URI                string   `json:"ldap_uri"`
	BaseDN             string   `json:"ldap_base_dn"`
	Username           string   `json:"ldap_username,omitempty"`
	Password           string   `json:"ldap_password,omitempty"`
	CustomFilter       string   `json:"ldap_custom_filter,omitempty"`
	NetworkTimeout     *float64 `json:"ldap_network_timeout,omitempty"`
	Timeout            *float64 `json:"ldap_timeout,omitempty"`
	UniqueColumn       string   `json:"unique_column,omitempty"`
	UniqueColumnFormat string   `json:"unique_column_format,omitempty"`
}

// WazoConfig queries the user directory of a sibling cluster node.
type WazoConfig struct {
	Auth  authclient.Endpoint `json:"auth"`
	Confd authclient.Endpoint `json:"confd"`
}

// GoogleConfig reads a user's Google contacts.
type GoogleConfig struct {
	Auth      authclient.Endpoint `json:"auth"`
	URL       string              `json:"url,omitempty"`
	SearchURL string              `json:"search_url,omitempty"`
}

// Office365Config reads a user's Microsoft contacts.
type Office365Config struct {
	Auth     authclient.Endpoint `json:"auth"`
	Endpoint string              `json:"endpoint,omitempty"`
}

// ConferenceConfig lists conference rooms of a sibling cluster node.
type ConferenceConfig struct {
	Auth  authclient.Endpoint `json:"auth"`
	Confd authclient.Endpoint `json:"confd"`
}

// Decode validates the backend specific body of def and returns the typed Config.
func Decode(def Definition) (Config, error) {
	backend, ok := ParseBackend(def.Backend)
	if !ok {
		return Config{}, fmt.Errorf("unknown backend %q", def.Backend)
	}

	extra := def.Extra
	if len(extra) == 0 || string(extra) == "null" {
		extra = json.RawMessage(`{}`)
	}
	if err := ValidateExtra(backend, extra); err != nil {
		return Config{}, err
	}

	cfg := Config{
		UUID:                def.UUID,
		TenantUUID:          def.TenantUUID,
		Name:                def.Name,
		Backend:             backend,
		SearchedColumns:     def.SearchedColumns,
		FirstMatchedColumns: def.FirstMatchedColumns,
		FormatColumns:       def.FormatColumns,
	}

	var target any
	switch backend {
	case BackendPersonal:
		return cfg, nil
	case BackendPhonebook:
		cfg.Phonebook = &PhonebookConfig{}
		target = cfg.Phonebook
	case BackendCSV:
		cfg.CSV = &CSVConfig{}
		target = cfg.CSV
	case BackendCSVWS:
		cfg.CSVWS = &CSVWSConfig{}
		target = cfg.CSVWS
	case BackendLDAP:
		cfg.LDAP = &LDAPConfig{}
		target = cfg.LDAP
	case BackendWazo:
		cfg.Wazo = &WazoConfig{}
		target = cfg.Wazo
	case BackendGoogle:
		cfg.Google = &GoogleConfig{}
		target = cfg.Google
	case BackendOffice365:
		cfg.Office365 = &Office365Config{}
		target = cfg.Office365
	case BackendConference:
		cfg.Conference = &ConferenceConfig{}
		target = cfg.Conference
	}

	if err := json.Unmarshal(extra, target); err != nil {
		return Config{}, fmt.Errorf("decode %s source config: %w", backend, err)
	}
	return cfg, nil
}
