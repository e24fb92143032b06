// Package csvimport turns a contact import body into candidate rows and
// per-row failures. Store level checks (id collisions, fingerprints) happen
// later, in the same transaction as the inserts.
package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
)

const defaultCharset = "utf-8"

// Row is a candidate contact with the 1-based line it was read from.
type Row struct {
	Line   int
	Fields map[string]string
}

// Failure describes a row that was not imported.
type Failure struct {
	Line    int               `json:"line"`
	Message string            `json:"message"`
	Contact map[string]string `json:"contact"`
	Details map[string]any    `json:"details,omitempty"`
}

// Result is the outcome of parsing an import body.
type Result struct {
	Header []string
	Rows   []Row
	Failed []Failure
}

// Read decodes body according to the charset declared in contentType and parses it.
func Read(body []byte, contentType string) (Result, error) {
	text, err := Decode(body, contentType)
	if err != nil {
		return Result{}, err
	}
	return Parse(text)
}

// Decode converts body to a UTF-8 string. The declared charset is
// authoritative; bytes that do not decode are rejected for the whole body.
func Decode(body []byte, contentType string) (string, error) {
	charset := defaultCharset
	if strings.TrimSpace(contentType) != "" {
		_, params, err := mime.ParseMediaType(contentType)
		if err != nil {
			return "", apperr.Invalid("content-type", fmt.Sprintf("invalid content type: %v", err))
		}
		if cs := strings.TrimSpace(params["charset"]); cs != "" {
			charset = strings.ToLower(cs)
		}
	}

	var decoded []byte
	switch charset {
	case "utf-8", "utf8":
		if !utf8.Valid(body) {
			return "", apperr.Invalid("body", "body is not valid utf-8")
		}
		decoded = body
	default:
		enc, err := ianaindex.IANA.Encoding(charset)
		if err != nil || enc == nil {
			return "", apperr.Invalid("content-type", fmt.Sprintf("unsupported charset %q", charset))
		}
		out, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return "", apperr.Invalid("body", fmt.Sprintf("body is not valid %s: %v", charset, err))
		}
		decoded = out
	}

	decoded = bytes.TrimPrefix(decoded, []byte("\xef\xbb\xbf"))
	return string(decoded), nil
}

// Parse reads the header (first non-empty row) and the data rows. Rows whose
// cell count differs from the header are reported as failures.
func Parse(text string) (Result, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	var result Result
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, apperr.Invalid("body", fmt.Sprintf("malformed csv: %v", err))
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		if result.Header == nil {
			for i, cell := range record {
				if strings.TrimSpace(cell) == "" {
					return Result{}, apperr.Invalid("header", fmt.Sprintf("header column %d is empty", i+1))
				}
			}
			result.Header = record
			continue
		}

		fields := zip(result.Header, record)
		if len(record) != len(result.Header) {
			result.Failed = append(result.Failed, Failure{
				Line:    line,
				Message: "invalid number of fields",
				Contact: fields,
				Details: map[string]any{
					"expected": len(result.Header),
					"got":      len(record),
				},
			})
			continue
		}
		result.Rows = append(result.Rows, Row{Line: line, Fields: fields})
	}

	if result.Header == nil {
		return Result{}, apperr.Invalid("body", "csv body is empty")
	}
	if len(result.Rows) == 0 && len(result.Failed) == 0 {
		return Result{}, apperr.Invalid("body", "csv body has no contact rows")
	}
	return result, nil
}

func zip(header, record []string) map[string]string {
	out := make(map[string]string, len(header))
	for i, key := range header {
		if i >= len(record) {
			break
		}
		out[key] = record[i]
	}
	return out
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// MergeFailures concatenates failure lists, ordered by line.
func MergeFailures(lists ...[]Failure) []Failure {
	out := []Failure{}
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
