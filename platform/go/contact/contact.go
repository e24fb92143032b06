// Package contact builds the uniform Contact record returned by every source
// and projects it onto display rows.
package contact

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// Relations links a contact to entities of the telephony platform.
type Relations struct {
	XivoID        *string `json:"xivo_id"`
	UserID        *int    `json:"user_id"`
	UserUUID      *string `json:"user_uuid"`
	EndpointID    *int    `json:"endpoint_id"`
	AgentID       *int    `json:"agent_id"`
	SourceEntryID *string `json:"source_entry_id"`
}

// Contact is the transient result record produced by a source. Field values
// are string, []string or nil.
type Contact struct {
	Backend     string
	Source      string
	SourceUUID  uuid.UUID
	Fields      map[string]any
	Relations   Relations
	IsPersonal  bool
	IsDeletable bool
}

// EntryID returns the source entry id, or "" when the contact has none.
func (c Contact) EntryID() string {
	if c.Relations.SourceEntryID == nil {
		return ""
	}
	return *c.Relations.SourceEntryID
}

// Options configure a Builder.
type Options struct {
	Backend       string
	Source        string
	SourceUUID    uuid.UUID
	FormatColumns map[string]string
	UniqueColumn  string
	IsPersonal    bool
	IsDeletable   bool
}

type formatColumn struct {
	name     string
	template *Template
}

// Builder turns raw source rows into Contacts for one source.
type Builder struct {
	opts    Options
	formats []formatColumn
}

// NewBuilder compiles the format columns of a source. A template that does
// not compile renders as nil on every row.
func NewBuilder(opts Options) *Builder {
	names := make([]string, 0, len(opts.FormatColumns))
	for name := range opts.FormatColumns {
		names = append(names, name)
	}
	sort.Strings(names)

	formats := make([]formatColumn, 0, len(names))
	for _, name := range names {
		tpl, err := ParseTemplate(opts.FormatColumns[name])
		if err != nil {
			tpl = nil
		}
		formats = append(formats, formatColumn{name: name, template: tpl})
	}
	return &Builder{opts: opts, formats: formats}
}

// UniqueColumn returns the field used as source entry id.
func (b *Builder) UniqueColumn() string {
	return b.opts.UniqueColumn
}

// Build copies raw, renders the format columns against the native fields and
// derives the source entry id from the unique column.
func (b *Builder) Build(raw map[string]any, relations Relations) Contact {
	fields := make(map[string]any, len(raw)+len(b.formats))
	for k, v := range raw {
		fields[k] = v
	}
	for _, f := range b.formats {
		if rendered, ok := f.template.Render(raw); ok {
			fields[f.name] = rendered
		} else {
			fields[f.name] = nil
		}
	}

	if b.opts.UniqueColumn != "" {
		if id, ok := StringValue(raw[b.opts.UniqueColumn]); ok {
			relations.SourceEntryID = &id
		}
	}

	return Contact{
		Backend:     b.opts.Backend,
		Source:      b.opts.Source,
		SourceUUID:  b.opts.SourceUUID,
		Fields:      fields,
		Relations:   relations,
		IsPersonal:  b.opts.IsPersonal,
		IsDeletable: b.opts.IsDeletable,
	}
}

// StringValue returns the textual form of a scalar field value.
func StringValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case []string, []any:
		return "", false
	default:
		return fmt.Sprint(val), true
	}
}

// Values returns the textual candidates of a field: one for scalars, one per
// element for lists.
func Values(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := StringValue(item); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := StringValue(v); ok {
			return []string{s}
		}
		return nil
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
