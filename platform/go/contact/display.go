package contact

import (
	"encoding/json"

	"github.com/google/uuid"
)

// FavoriteType marks the display column carrying the favorite flag.
const FavoriteType = "favorite"

// Column is one column of a display.
type Column struct {
	Title         *string `json:"title"`
	Type          *string `json:"type"`
	Default       *string `json:"default"`
	Field         *string `json:"field"`
	NumberDisplay *string `json:"number_display"`
}

// IsFavorite reports whether the column holds the favorite flag.
func (c Column) IsFavorite() bool {
	return c.Type != nil && *c.Type == FavoriteType
}

// Display is an ordered list of columns used to shape contacts into rows.
type Display struct {
	UUID    uuid.UUID
	Name    string
	Columns []Column
}

// HasFavoriteColumn reports whether rows projected on d carry a favorite flag.
func (d Display) HasFavoriteColumn() bool {
	for _, c := range d.Columns {
		if c.IsFavorite() {
			return true
		}
	}
	return false
}

// Row is a contact projected through a display.
type Row struct {
	ColumnValues  []any     `json:"column_values"`
	ColumnTypes   []*string `json:"column_types"`
	ColumnHeaders []*string `json:"column_headers"`
	Relations     Relations `json:"relations"`
	Source        string    `json:"source"`
	Backend       string    `json:"backend"`
}

// MarshalJSON keeps nil slices as empty arrays.
func (r Row) MarshalJSON() ([]byte, error) {
	type alias Row
	out := alias(r)
	if out.ColumnValues == nil {
		out.ColumnValues = []any{}
	}
	if out.ColumnTypes == nil {
		out.ColumnTypes = []*string{}
	}
	if out.ColumnHeaders == nil {
		out.ColumnHeaders = []*string{}
	}
	return json.Marshal(out)
}

// Headers returns the column headers and types of d.
func Headers(d Display) (headers []*string, types []*string) {
	headers = make([]*string, len(d.Columns))
	types = make([]*string, len(d.Columns))
	for i, col := range d.Columns {
		headers[i] = col.Title
		types[i] = col.Type
	}
	return headers, types
}

// Project shapes c according to d. Favorite-typed columns take the favorite
// flag; other columns take the contact field, or the column default when the
// contact has no such field. A field present with a nil value stays nil.
func Project(d Display, c Contact, favorite bool) Row {
	headers, types := Headers(d)
	values := make([]any, len(d.Columns))
	for i, col := range d.Columns {
		switch {
		case col.IsFavorite():
			values[i] = favorite
		case col.Field != nil:
			if v, ok := c.Fields[*col.Field]; ok {
				values[i] = v
			} else if col.Default != nil {
				values[i] = *col.Default
			}
		case col.Default != nil:
			values[i] = *col.Default
		}
	}
	return Row{
		ColumnValues:  values,
		ColumnTypes:   types,
		ColumnHeaders: headers,
		Relations:     c.Relations,
		Source:        c.Source,
		Backend:       c.Backend,
	}
}

// StubRow is the row listed for a favorite whose entry is gone from its
// source: every column is nil except the favorite flag.
func StubRow(d Display, source, backend, entryID string) Row {
	headers, types := Headers(d)
	values := make([]any, len(d.Columns))
	for i, col := range d.Columns {
		if col.IsFavorite() {
			values[i] = true
		}
	}
	id := entryID
	return Row{
		ColumnValues:  values,
		ColumnTypes:   types,
		ColumnHeaders: headers,
		Relations:     Relations{SourceEntryID: &id},
		Source:        source,
		Backend:       backend,
	}
}
