// Package csvfile serves contacts from a CSV file on the local filesystem.
// The file is re-read whenever its modification time changes.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

// Plugin is a loaded csv source.
type Plugin struct {
	cfg       sources.Config
	path      string
	separator rune
	builder   *contact.Builder
	logger    *zap.Logger

	mu      sync.Mutex
	modTime time.Time
	records []sources.Record
}

// New loads a csv source. The file itself is read on first use.
func New(cfg sources.Config, logger *zap.Logger) (*Plugin, error) {
	if cfg.CSV == nil {
		return nil, errors.New("csv: missing backend config")
	}
	if cfg.CSV.File == "" {
		return nil, errors.New("csv: file is required")
	}
	sep := ','
	if cfg.CSV.Separator != "" {
		r, size := utf8.DecodeRuneInString(cfg.CSV.Separator)
		if r == utf8.RuneError || size != len(cfg.CSV.Separator) {
			return nil, fmt.Errorf("csv: invalid separator %q", cfg.CSV.Separator)
		}
		sep = r
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Plugin{
		cfg:       cfg,
		path:      cfg.CSV.File,
		separator: sep,
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendCSV),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  cfg.CSV.UniqueColumn,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
	}, nil
}

// Search returns the rows where a searched column contains term.
func (p *Plugin) Search(ctx context.Context, term string, _ sources.Args) ([]contact.Contact, error) {
	records, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return p.build(sources.SearchRecords(records, term, p.cfg.SearchedColumns)), nil
}

// FirstMatch returns the first row where a first-matched column equals exten.
func (p *Plugin) FirstMatch(ctx context.Context, exten string, _ sources.Args) (*contact.Contact, error) {
	records, err := p.load(ctx)
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

// MatchAll resolves every exten in one pass over the rows.
func (p *Plugin) MatchAll(ctx context.Context, extens []string, _ sources.Args) (map[string]contact.Contact, error) {
	records, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	matched := sources.MatchAllRecords(records, extens, p.cfg.FirstMatchedColumns)
	out := make(map[string]contact.Contact, len(matched))
	for exten, r := range matched {
		out[exten] = p.builder.Build(r, contact.Relations{})
	}
	return out, nil
}

// List returns the rows whose unique column is in ids. Without a unique
// column the source cannot list and returns nothing.
func (p *Plugin) List(ctx context.Context, ids []string, _ sources.Args) ([]contact.Contact, error) {
	if p.builder.UniqueColumn() == "" {
		return nil, nil
	}
	records, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	return p.build(sources.ListRecords(records, p.builder.UniqueColumn(), ids)), nil
}

// ListContacts pages over every row of the file.
func (p *Plugin) ListContacts(ctx context.Context, _ sources.Args, opts sources.ListOptions) (sources.ContactsPage, error) {
	records, err := p.load(ctx)
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

func (p *Plugin) load(ctx context.Context) ([]sources.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	info, err := os.Stat(p.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p.path, err)
	}
	if p.records != nil && info.ModTime().Equal(p.modTime) {
		return p.records, nil
	}

	records, err := p.read()
	if err != nil {
		return nil, err
	}
	p.records = records
	p.modTime = info.ModTime()
	p.logger.Debug("csv source reloaded", zap.Int("rows", len(records)))
	return records, nil
}

func (p *Plugin) read() ([]sources.Record, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = p.separator
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []sources.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", p.path, err)
	}

	records := make([]sources.Record, 0)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p.path, err)
		}
		rec := make(sources.Record, len(header))
		for i, key := range header {
			if i < len(row) {
				rec[key] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
