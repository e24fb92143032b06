// Package csvws queries a web service that answers lookups with CSV documents.
package csvws

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

const defaultTimeout = 10 * time.Second

// Plugin is a loaded csv_ws source.
type Plugin struct {
	cfg       sources.Config
	ws        *sources.CSVWSConfig
	delimiter rune
	timeout   time.Duration
	client    *httpclient.Client
	builder   *contact.Builder
	logger    *zap.Logger
}

// New loads a csv_ws source.
func New(cfg sources.Config, clients *httpclient.Pair, logger *zap.Logger) (*Plugin, error) {
	if cfg.CSVWS == nil {
		return nil, errors.New("csv_ws: missing backend config")
	}
	if clients == nil {
		return nil, errors.New("csv_ws: http clients are required")
	}
	if _, err := url.Parse(cfg.CSVWS.LookupURL); err != nil {
		return nil, fmt.Errorf("csv_ws: invalid lookup_url: %w", err)
	}
	delim := ','
	if cfg.CSVWS.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(cfg.CSVWS.Delimiter)
		if r == utf8.RuneError || size != len(cfg.CSVWS.Delimiter) {
			return nil, fmt.Errorf("csv_ws: invalid delimiter %q", cfg.CSVWS.Delimiter)
		}
		delim = r
	}
	timeout := defaultTimeout
	if cfg.CSVWS.Timeout != nil && *cfg.CSVWS.Timeout > 0 {
		timeout = time.Duration(*cfg.CSVWS.Timeout * float64(time.Second))
	}
	verify := cfg.CSVWS.VerifyCertificate == nil || *cfg.CSVWS.VerifyCertificate
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Plugin{
		cfg:       cfg,
		ws:        cfg.CSVWS,
		delimiter: delim,
		timeout:   timeout,
		client:    clients.For(verify),
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendCSVWS),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  cfg.CSVWS.UniqueColumn,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
	}, nil
}

// Search sends term once per searched column and returns the rows the service answers.
func (p *Plugin) Search(ctx context.Context, term string, _ sources.Args) ([]contact.Contact, error) {
	records, err := p.fetch(ctx, p.ws.LookupURL, params(p.cfg.SearchedColumns, term))
	if err != nil {
		return nil, err
	}
	return p.build(records), nil
}

// FirstMatch asks the service for exten and keeps the first exact match.
func (p *Plugin) FirstMatch(ctx context.Context, exten string, _ sources.Args) (*contact.Contact, error) {
	records, err := p.fetch(ctx, p.ws.LookupURL, params(p.cfg.FirstMatchedColumns, exten))
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

// List fetches list_url and keeps the rows whose unique column is in ids.
func (p *Plugin) List(ctx context.Context, ids []string, _ sources.Args) ([]contact.Contact, error) {
	if p.ws.ListURL == "" || p.builder.UniqueColumn() == "" {
		return nil, nil
	}
	records, err := p.fetch(ctx, p.ws.ListURL, nil)
	if err != nil {
		return nil, err
	}
	return p.build(sources.ListRecords(records, p.builder.UniqueColumn(), ids)), nil
}

func (p *Plugin) build(records []sources.Record) []contact.Contact {
	out := make([]contact.Contact, 0, len(records))
	for _, r := range records {
		out = append(out, p.builder.Build(r, contact.Relations{}))
	}
	return out
}

func params(columns []string, value string) url.Values {
	q := url.Values{}
	for _, col := range columns {
		q.Set(col, value)
	}
	return q
}

func (p *Plugin) fetch(ctx context.Context, rawURL string, query url.Values) ([]sources.Record, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(query) > 0 {
		existing := u.Query()
		for k, values := range query {
			for _, v := range values {
				existing.Add(k, v)
			}
		}
		u.RawQuery = existing.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Get(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		p.logger.Warn("csv web service answered an error", zap.Int("status", resp.StatusCode))
		return []sources.Record{}, nil
	}
	return p.parse(string(resp.Body))
}

func (p *Plugin) parse(body string) ([]sources.Record, error) {
	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = p.delimiter
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []sources.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv response: %w", err)
	}

	out := make([]sources.Record, 0)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv response: %w", err)
		}
		rec := make(sources.Record, len(header))
		for i, key := range header {
			if i < len(row) {
				rec[key] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
