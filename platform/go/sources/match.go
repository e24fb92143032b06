package sources

import (
	"sort"
	"strings"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/textfold"
)

// Record is a raw source row. Values are string, []string or nil.
type Record = map[string]any

// SearchRecords keeps the records where any of columns contains term,
// ignoring accents and case. List-valued columns match on any element.
func SearchRecords(records []Record, term string, columns []string) []Record {
	folded := textfold.Fold(term)
	out := make([]Record, 0)
	for _, r := range records {
		if recordContains(r, folded, columns) {
			out = append(out, r)
		}
	}
	return out
}

// FirstMatchRecord returns the first record where any of columns equals exten.
func FirstMatchRecord(records []Record, exten string, columns []string) (Record, bool) {
	for _, r := range records {
		if recordEquals(r, exten, columns) {
			return r, true
		}
	}
	return nil, false
}

// MatchAllRecords returns, for each exten, the first record matching it exactly.
func MatchAllRecords(records []Record, extens []string, columns []string) map[string]Record {
	wanted := make(map[string]struct{}, len(extens))
	for _, e := range extens {
		wanted[e] = struct{}{}
	}
	out := make(map[string]Record, len(extens))
	for _, r := range records {
		for _, col := range columns {
			for _, v := range contact.Values(r[col]) {
				if _, ok := wanted[v]; !ok {
					continue
				}
				if _, seen := out[v]; !seen {
					out[v] = r
				}
			}
		}
		if len(out) == len(wanted) {
			break
		}
	}
	return out
}

// ListRecords keeps the records whose column value is one of ids, in record order.
func ListRecords(records []Record, column string, ids []string) []Record {
	if column == "" {
		return nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	out := make([]Record, 0, len(ids))
	for _, r := range records {
		if v, ok := contact.StringValue(r[column]); ok {
			if _, hit := wanted[v]; hit {
				out = append(out, r)
			}
		}
	}
	return out
}

func recordContains(r Record, foldedTerm string, columns []string) bool {
	for _, col := range columns {
		for _, v := range contact.Values(r[col]) {
			if strings.Contains(textfold.Fold(v), foldedTerm) {
				return true
			}
		}
	}
	return false
}

func recordEquals(r Record, exten string, columns []string) bool {
	for _, col := range columns {
		for _, v := range contact.Values(r[col]) {
			if v == exten {
				return true
			}
		}
	}
	return false
}

// ListOptions controls client-side listing of a source's contacts.
type ListOptions struct {
	Search    string
	Order     string
	Direction string
	Limit     *int
	Offset    int
}

// ContactsPage is one page of a source's contacts.
type ContactsPage struct {
	Total    int
	Filtered int
	Items    []contact.Contact
}

// Paginate filters, sorts and pages contacts in memory.
func Paginate(all []contact.Contact, opts ListOptions) ContactsPage {
	page := ContactsPage{Total: len(all)}

	filtered := all
	if opts.Search != "" {
		folded := textfold.Fold(opts.Search)
		filtered = make([]contact.Contact, 0, len(all))
		for _, c := range all {
			if contactContains(c, folded) {
				filtered = append(filtered, c)
			}
		}
	} else {
		filtered = append([]contact.Contact(nil), all...)
	}
	page.Filtered = len(filtered)

	if opts.Order != "" {
		desc := strings.EqualFold(opts.Direction, "desc")
		sort.SliceStable(filtered, func(i, j int) bool {
			a, _ := contact.StringValue(filtered[i].Fields[opts.Order])
			b, _ := contact.StringValue(filtered[j].Fields[opts.Order])
			if desc {
				return textfold.Fold(a) > textfold.Fold(b)
			}
			return textfold.Fold(a) < textfold.Fold(b)
		})
	}

	start := opts.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := len(filtered)
	if opts.Limit != nil && start+*opts.Limit < end {
		end = start + *opts.Limit
	}
	page.Items = filtered[start:end]
	return page
}

func contactContains(c contact.Contact, foldedTerm string) bool {
	for _, v := range c.Fields {
		for _, s := range contact.Values(v) {
			if strings.Contains(textfold.Fold(s), foldedTerm) {
				return true
			}
		}
	}
	return false
}
