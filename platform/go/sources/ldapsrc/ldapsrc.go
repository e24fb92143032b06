// Package ldapsrc searches an LDAP directory.
package ldapsrc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/contact"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
)

const (
	defaultNetworkTimeout = 300 * time.Millisecond
	defaultTimeout        = time.Second

	// BinaryUUID stores the unique column as a 16 byte GUID.
	BinaryUUID = "binary_uuid"
)

type session interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close()
}

type dialFunc func(ctx context.Context) (session, error)

// Plugin is a loaded ldap source.
type Plugin struct {
	cfg     sources.Config
	ldap    *sources.LDAPConfig
	timeout time.Duration
	builder *contact.Builder
	logger  *zap.Logger
	dial    dialFunc

	mu   sync.Mutex
	sess session
}

// New loads an ldap source. The connection is opened on first use so an
// unreachable directory does not keep the source from loading.
func New(cfg sources.Config, logger *zap.Logger) (*Plugin, error) {
	if cfg.LDAP == nil {
		return nil, errors.New("ldap: missing backend config")
	}
	if cfg.LDAP.URI == "" || cfg.LDAP.BaseDN == "" {
		return nil, errors.New("ldap: uri and base dn are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := newPlugin(cfg, logger)
	p.dial = p.dialLDAP
	return p, nil
}

func newPlugin(cfg sources.Config, logger *zap.Logger) *Plugin {
	timeout := defaultTimeout
	if cfg.LDAP.Timeout != nil && *cfg.LDAP.Timeout > 0 {
		timeout = seconds(*cfg.LDAP.Timeout)
	}
	return &Plugin{
		cfg:     cfg,
		ldap:    cfg.LDAP,
		timeout: timeout,
		builder: contact.NewBuilder(contact.Options{
			Backend:       string(sources.BackendLDAP),
			Source:        cfg.Name,
			SourceUUID:    cfg.UUID,
			FormatColumns: cfg.FormatColumns,
			UniqueColumn:  cfg.LDAP.UniqueColumn,
		}),
		logger: logger.With(zap.String("source", cfg.Name)),
	}
}

type conn struct {
	*ldap.Conn
}

func (c conn) Close() {
	c.Conn.Close()
}

func (p *Plugin) dialLDAP(ctx context.Context) (session, error) {
	networkTimeout := defaultNetworkTimeout
	if p.ldap.NetworkTimeout != nil && *p.ldap.NetworkTimeout > 0 {
		networkTimeout = seconds(*p.ldap.NetworkTimeout)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < networkTimeout {
			networkTimeout = remaining
		}
	}

	c, err := ldap.DialURL(p.ldap.URI, ldap.DialWithDialer(&net.Dialer{Timeout: networkTimeout}))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.ldap.URI, err)
	}
	c.SetTimeout(p.timeout)

	if p.ldap.Username != "" {
		err = c.Bind(p.ldap.Username, p.ldap.Password)
	} else {
		err = c.UnauthenticatedBind("")
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("bind %s: %w", p.ldap.URI, err)
	}
	return conn{c}, nil
}

// Search returns the entries where a searched column contains term.
func (p *Plugin) Search(ctx context.Context, term string, _ sources.Args) ([]contact.Contact, error) {
	entries, err := p.search(ctx, p.searchFilter(term))
	if err != nil {
		return nil, err
	}
	return p.build(entries), nil
}

// FirstMatch returns the first entry where a first-matched column equals exten.
func (p *Plugin) FirstMatch(ctx context.Context, exten string, _ sources.Args) (*contact.Contact, error) {
	if len(p.cfg.FirstMatchedColumns) == 0 {
		return nil, nil
	}
	entries, err := p.search(ctx, orFilter(p.cfg.FirstMatchedColumns, []string{exten}))
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	c := p.builder.Build(entries[0], contact.Relations{})
	return &c, nil
}

// MatchAll sends a single OR filter for every exten.
func (p *Plugin) MatchAll(ctx context.Context, extens []string, _ sources.Args) (map[string]contact.Contact, error) {
	out := make(map[string]contact.Contact, len(extens))
	if len(p.cfg.FirstMatchedColumns) == 0 || len(extens) == 0 {
		return out, nil
	}
	entries, err := p.search(ctx, orFilter(p.cfg.FirstMatchedColumns, extens))
	if err != nil {
		return nil, err
	}
	for exten, r := range sources.MatchAllRecords(entries, extens, p.cfg.FirstMatchedColumns) {
		out[exten] = p.builder.Build(r, contact.Relations{})
	}
	return out, nil
}

// List fetches the entries whose unique column is one of ids.
func (p *Plugin) List(ctx context.Context, ids []string, _ sources.Args) ([]contact.Contact, error) {
	if p.ldap.UniqueColumn == "" || len(ids) == 0 {
		return []contact.Contact{}, nil
	}
	entries, err := p.search(ctx, p.listFilter(ids))
	if err != nil {
		return nil, err
	}
	return p.build(entries), nil
}

// Close unbinds from the directory.
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess != nil {
		p.sess.Close()
		p.sess = nil
	}
	return nil
}

func (p *Plugin) build(entries []sources.Record) []contact.Contact {
	out := make([]contact.Contact, 0, len(entries))
	for _, e := range entries {
		out = append(out, p.builder.Build(e, contact.Relations{}))
	}
	return out
}

func (p *Plugin) searchFilter(term string) string {
	escaped := ldap.EscapeFilter(term)
	var b strings.Builder
	if len(p.cfg.SearchedColumns) > 0 {
		b.WriteString("(|")
		for _, col := range p.cfg.SearchedColumns {
			fmt.Fprintf(&b, "(%s=*%s*)", col, escaped)
		}
		b.WriteString(")")
	}
	columns := b.String()

	custom := strings.TrimSpace(p.ldap.CustomFilter)
	if custom == "" {
		return columns
	}
	custom = strings.ReplaceAll(custom, "%Q", escaped)
	if !strings.HasPrefix(custom, "(") {
		custom = "(" + custom + ")"
	}
	if columns == "" {
		return custom
	}
	return "(&" + custom + columns + ")"
}

func orFilter(columns, values []string) string {
	var b strings.Builder
	b.WriteString("(|")
	for _, v := range values {
		escaped := ldap.EscapeFilter(v)
		for _, col := range columns {
			fmt.Fprintf(&b, "(%s=%s)", col, escaped)
		}
	}
	b.WriteString(")")
	return b.String()
}

func (p *Plugin) listFilter(ids []string) string {
	var b strings.Builder
	b.WriteString("(|")
	written := 0
	for _, id := range ids {
		value := ldap.EscapeFilter(id)
		if p.ldap.UniqueColumnFormat == BinaryUUID {
			u, err := uuid.Parse(id)
			if err != nil {
				p.logger.Debug("skipping malformed binary uuid", zap.String("id", id))
				continue
			}
			value = octets(guidBytes(u))
		}
		fmt.Fprintf(&b, "(%s=%s)", p.ldap.UniqueColumn, value)
		written++
	}
	if written == 0 {
		return ""
	}
	b.WriteString(")")
	return b.String()
}

func octets(raw []byte) string {
	var b strings.Builder
	for _, c := range raw {
		fmt.Fprintf(&b, `\%02x`, c)
	}
	return b.String()
}

// guidBytes returns u in the mixed-endian layout directories use for GUIDs.
func guidBytes(u uuid.UUID) []byte {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	copy(b[8:], u[8:])
	return b
}

func guidFromBytes(b []byte) (uuid.UUID, bool) {
	if len(b) != 16 {
		return uuid.UUID{}, false
	}
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:])
	return u, true
}

func (p *Plugin) search(ctx context.Context, filter string) ([]sources.Record, error) {
	if filter == "" {
		return []sources.Record{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.searchOnce(ctx, filter)
	if err != nil && ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		p.logger.Info("ldap server down, binding again")
		p.drop()
		result, err = p.searchOnce(ctx, filter)
	}

	switch {
	case err == nil:
	case ldap.IsErrorWithCode(err, ldap.ErrorFilterCompile):
		p.logger.Warn("invalid ldap filter", zap.String("filter", filter), zap.Error(err))
		return []sources.Record{}, nil
	case ldap.IsErrorWithCode(err, ldap.LDAPResultTimeLimitExceeded):
		p.logger.Warn("ldap search timed out", zap.Error(err))
		return []sources.Record{}, nil
	case ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && result != nil:
		p.logger.Info("ldap size limit reached, keeping partial result")
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]sources.Record, 0, len(result.Entries))
	for _, e := range result.Entries {
		out = append(out, p.decode(e))
	}
	return out, nil
}

func (p *Plugin) searchOnce(ctx context.Context, filter string) (*ldap.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.sess == nil {
		sess, err := p.dial(ctx)
		if err != nil {
			return nil, ldap.NewError(ldap.ErrorNetwork, err)
		}
		p.sess = sess
	}

	timeLimit := int(p.timeout / time.Second)
	if timeLimit < 1 {
		timeLimit = 1
	}
	req := ldap.NewSearchRequest(
		p.ldap.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0,
		timeLimit,
		false,
		filter,
		nil,
		nil,
	)
	return p.sess.Search(req)
}

func (p *Plugin) drop() {
	if p.sess != nil {
		p.sess.Close()
		p.sess = nil
	}
}

// decode keeps the first value of each attribute. The unique column is
// converted to its canonical textual form when stored as a binary GUID.
func (p *Plugin) decode(e *ldap.Entry) sources.Record {
	rec := make(sources.Record, len(e.Attributes)+1)
	rec["dn"] = e.DN
	for _, attr := range e.Attributes {
		if len(attr.ByteValues) == 0 {
			continue
		}
		raw := attr.ByteValues[0]
		if p.ldap.UniqueColumnFormat == BinaryUUID && strings.EqualFold(attr.Name, p.ldap.UniqueColumn) {
			if u, ok := guidFromBytes(raw); ok {
				rec[attr.Name] = u.String()
				continue
			}
		}
		if !utf8.Valid(raw) {
			p.logger.Debug("dropping non utf-8 attribute", zap.String("attribute", attr.Name))
			continue
		}
		rec[attr.Name] = string(raw)
	}
	return rec
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
