package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-directory/platform/go/csvimport"
	"github.com/zenGate-Global/palmyra-directory/platform/go/fingerprint"
	"github.com/zenGate-Global/palmyra-directory/platform/go/textfold"
)

// Import failure messages.
const (
	ImportDuplicateMessage   = "duplicate"
	ImportIDCollisionMessage = "contact id already exists"
	ImportInvalidIDMessage   = "invalid contact id"
)

// ContactOwner scopes contacts: a user for personal contacts, a phonebook
// for phonebook contacts. TenantUUID is stamped on inserted rows and, for
// phonebooks, must match on every read.
type ContactOwner struct {
	UUID       uuid.UUID
	TenantUUID uuid.UUID
}

// ContactRecord is a stored contact. Fields never carry empty values nor the id key.
type ContactRecord struct {
	UUID   uuid.UUID
	Fields map[string]string
}

// Map returns the fields with the id key, as exposed to callers.
func (c ContactRecord) Map() map[string]string {
	out := make(map[string]string, len(c.Fields)+1)
	for k, v := range c.Fields {
		out[k] = v
	}
	out[fingerprint.IDField] = c.UUID.String()
	return out
}

// ContactListParams drive contact listing. Order names a contact field; the
// default order is creation.
type ContactListParams struct {
	Search    string
	Order     string
	Direction string
	Limit     *int
	Offset    int
}

type contactTables struct {
	contacts     string
	fields       string
	owner        string
	missingOwner error
	// tenantScoped adds the tenant to the owner predicate.
	tenantScoped bool
}

// ContactStore persists key/value contacts with fingerprint uniqueness per owner.
type ContactStore struct {
	pool   *pgxpool.Pool
	tables contactTables
}

// NewPersonalContactStore returns the store of per-user contacts.
func NewPersonalContactStore(ctx context.Context, pool *pgxpool.Pool) (*ContactStore, error) {
	return newContactStore(pool, contactTables{
		contacts:     "personal_contact",
		fields:       "personal_contact_field",
		owner:        "user_uuid",
		missingOwner: ErrContactNotFound,
	})
}

// NewPhonebookContactStore returns the store of phonebook contacts.
func NewPhonebookContactStore(ctx context.Context, pool *pgxpool.Pool) (*ContactStore, error) {
	return newContactStore(pool, contactTables{
		contacts:     "phonebook_contact",
		fields:       "phonebook_contact_field",
		owner:        "phonebook_uuid",
		missingOwner: ErrPhonebookNotFound,
		tenantScoped: true,
	})
}

func newContactStore(pool *pgxpool.Pool, tables contactTables) (*ContactStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ContactStore{pool: pool, tables: tables}, nil
}

// Create inserts a contact with a fresh id.
func (s *ContactStore) Create(ctx context.Context, owner ContactOwner, fields map[string]string) (ContactRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ContactRecord{}, fmt.Errorf("begin contact tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, err := s.insert(ctx, tx, owner, uuid.New(), fields)
	if err != nil {
		return ContactRecord{}, s.classify("insert contact", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ContactRecord{}, s.classify("commit contact", err)
	}
	return rec, nil
}

// Get returns one contact of owner.
func (s *ContactStore) Get(ctx context.Context, owner ContactOwner, id uuid.UUID) (ContactRecord, error) {
	sqlStr, args, err := psql.Select("c.uuid").From(s.tables.contacts+" c").
		Where(sq.Eq{"c.uuid": id}).Where(s.ownerScope(owner)).ToSql()
	if err != nil {
		return ContactRecord{}, fmt.Errorf("build contact query: %w", err)
	}
	var found uuid.UUID
	if err := s.pool.QueryRow(ctx, sqlStr, args...).Scan(&found); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContactRecord{}, ErrContactNotFound
		}
		return ContactRecord{}, fmt.Errorf("get contact: %w", err)
	}
	recs, err := s.withFields(ctx, s.pool, []uuid.UUID{found})
	if err != nil {
		return ContactRecord{}, err
	}
	return recs[0], nil
}

// Update replaces the fields of a contact. The stored fingerprint read at the
// start guards against a concurrent edit; a collision with another contact
// of the owner is ErrContactConflict.
func (s *ContactStore) Update(ctx context.Context, owner ContactOwner, id uuid.UUID, fields map[string]string) (ContactRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ContactRecord{}, fmt.Errorf("begin contact tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sqlStr, args, err := psql.Select("c.fingerprint").From(s.tables.contacts+" c").
		Where(sq.Eq{"c.uuid": id}).Where(s.ownerScope(owner)).ToSql()
	if err != nil {
		return ContactRecord{}, fmt.Errorf("build contact query: %w", err)
	}
	var previous string
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&previous); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ContactRecord{}, ErrContactNotFound
		}
		return ContactRecord{}, fmt.Errorf("read contact fingerprint: %w", err)
	}

	cleaned := fingerprint.Clean(fields)
	tag, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET fingerprint = $1 WHERE uuid = $2 AND fingerprint = $3`, s.tables.contacts),
		fingerprint.Compute(cleaned), id, previous,
	)
	if err != nil {
		return ContactRecord{}, s.classify("update contact", err)
	}
	if tag.RowsAffected() == 0 {
		return ContactRecord{}, s.lostUpdate(ctx, tx, id)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE contact_uuid = $1`, s.tables.fields), id); err != nil {
		return ContactRecord{}, fmt.Errorf("clear contact fields: %w", err)
	}
	if err := s.insertFields(ctx, tx, id, cleaned); err != nil {
		return ContactRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ContactRecord{}, s.classify("commit contact", err)
	}
	return ContactRecord{UUID: id, Fields: cleaned}, nil
}

// lostUpdate explains an update that matched no row: the contact was deleted
// meanwhile, or another edit changed its fingerprint first.
func (s *ContactStore) lostUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE uuid = $1)`, s.tables.contacts), id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check contact: %w", err)
	}
	if !exists {
		return ErrContactNotFound
	}
	return ErrContactConflict
}

// Delete removes one contact of owner.
func (s *ContactStore) Delete(ctx context.Context, owner ContactOwner, id uuid.UUID) error {
	sqlStr, args, err := psql.Delete(s.tables.contacts + " c").
		Where(sq.Eq{"c.uuid": id}).Where(s.ownerScope(owner)).ToSql()
	if err != nil {
		return fmt.Errorf("build contact delete: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

// Purge removes every contact of owner and returns how many were deleted.
func (s *ContactStore) Purge(ctx context.Context, owner ContactOwner) (int64, error) {
	sqlStr, args, err := psql.Delete(s.tables.contacts + " c").Where(s.ownerScope(owner)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build contact purge: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("purge contacts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List returns a page of owner's contacts. Search matches any field value,
// ignoring accents and case. Total ignores the search, Filtered applies it.
func (s *ContactStore) List(ctx context.Context, owner ContactOwner, params ContactListParams) (ListResult[ContactRecord], error) {
	if err := validatePage(params.Limit, params.Offset); err != nil {
		return ListResult[ContactRecord]{}, err
	}
	direction, err := normalizeDirection(params.Direction)
	if err != nil {
		return ListResult[ContactRecord]{}, err
	}

	scope := s.ownerScope(owner)
	predicates := sq.And{scope}
	if term := strings.TrimSpace(params.Search); term != "" {
		predicates = append(predicates, sq.Expr(
			fmt.Sprintf(`EXISTS (SELECT 1 FROM %s sf WHERE sf.contact_uuid = c.uuid AND sf.value_folded LIKE ?)`, s.tables.fields),
			likePattern(textfold.Fold(term)),
		))
	}

	from := s.tables.contacts + " c"
	result := ListResult[ContactRecord]{Items: []ContactRecord{}}
	if result.Total, err = countRows(ctx, s.pool, psql.Select("COUNT(*)").From(from).Where(scope)); err != nil {
		return ListResult[ContactRecord]{}, err
	}
	if result.Filtered, err = countRows(ctx, s.pool, psql.Select("COUNT(*)").From(from).Where(predicates)); err != nil {
		return ListResult[ContactRecord]{}, err
	}
	if result.Filtered == 0 {
		return result, nil
	}

	page := psql.Select("c.uuid").From(from).Where(predicates).Offset(uint64(params.Offset))
	if params.Order != "" {
		page = page.
			LeftJoin(fmt.Sprintf("%s o ON o.contact_uuid = c.uuid AND o.name = ?", s.tables.fields), params.Order).
			OrderBy(fmt.Sprintf("o.value_folded %s NULLS LAST", direction), "c.created_at ASC", "c.uuid ASC")
	} else {
		page = page.OrderBy(fmt.Sprintf("c.created_at %s", direction), "c.uuid ASC")
	}
	if params.Limit != nil {
		page = page.Limit(uint64(*params.Limit))
	}

	ids, err := s.queryIDs(ctx, page)
	if err != nil {
		return ListResult[ContactRecord]{}, err
	}
	if result.Items, err = s.withFields(ctx, s.pool, ids); err != nil {
		return ListResult[ContactRecord]{}, err
	}
	return result, nil
}

// Search returns owner's contacts where one of columns contains term,
// ignoring accents and case. No columns means no match.
func (s *ContactStore) Search(ctx context.Context, owner ContactOwner, term string, columns []string) ([]ContactRecord, error) {
	if len(columns) == 0 {
		return []ContactRecord{}, nil
	}
	q := psql.Select("c.uuid").From(s.tables.contacts+" c").
		Where(s.ownerScope(owner)).
		Where(sq.Expr(
			fmt.Sprintf(`EXISTS (SELECT 1 FROM %s sf WHERE sf.contact_uuid = c.uuid AND sf.name = ANY(?) AND sf.value_folded LIKE ?)`, s.tables.fields),
			columns, likePattern(textfold.Fold(term)),
		)).
		OrderBy("c.created_at ASC", "c.uuid ASC")

	ids, err := s.queryIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.withFields(ctx, s.pool, ids)
}

// FirstMatch returns the oldest contact of owner where one of columns equals exten.
func (s *ContactStore) FirstMatch(ctx context.Context, owner ContactOwner, exten string, columns []string) (*ContactRecord, error) {
	found, err := s.MatchAll(ctx, owner, []string{exten}, columns)
	if err != nil {
		return nil, err
	}
	rec, ok := found[exten]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// MatchAll returns, for each exten, the oldest contact of owner where one of
// columns equals it. Unmatched extens are absent.
func (s *ContactStore) MatchAll(ctx context.Context, owner ContactOwner, extens []string, columns []string) (map[string]ContactRecord, error) {
	out := make(map[string]ContactRecord, len(extens))
	if len(columns) == 0 || len(extens) == 0 {
		return out, nil
	}

	sqlStr, args, err := psql.Select("f.value", "c.uuid").
		From(s.tables.contacts + " c").
		Join(s.tables.fields + " f ON f.contact_uuid = c.uuid").
		Where(s.ownerScope(owner)).
		Where(sq.Expr("f.name = ANY(?)", columns)).
		Where(sq.Expr("f.value = ANY(?)", extens)).
		OrderBy("c.created_at ASC", "c.uuid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build contact match: %w", err)
	}
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("match contacts: %w", err)
	}

	byExten := make(map[string]uuid.UUID, len(extens))
	var ids []uuid.UUID
	for rows.Next() {
		var (
			value string
			id    uuid.UUID
		)
		if err := rows.Scan(&value, &id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan contact match: %w", err)
		}
		if _, seen := byExten[value]; seen {
			continue
		}
		byExten[value] = id
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact matches: %w", err)
	}

	recs, err := s.withFields(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]ContactRecord, len(recs))
	for _, r := range recs {
		byID[r.UUID] = r
	}
	for exten, id := range byExten {
		out[exten] = byID[id]
	}
	return out, nil
}

// ListByIDs returns owner's contacts among ids. Unknown or malformed ids are skipped.
func (s *ContactStore) ListByIDs(ctx context.Context, owner ContactOwner, ids []string) ([]ContactRecord, error) {
	wanted := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		if id, err := uuid.Parse(raw); err == nil {
			wanted = append(wanted, id)
		}
	}
	if len(wanted) == 0 {
		return []ContactRecord{}, nil
	}
	q := psql.Select("c.uuid").From(s.tables.contacts+" c").
		Where(s.ownerScope(owner)).
		Where(sq.Expr("c.uuid = ANY(?)", wanted)).
		OrderBy("c.created_at ASC", "c.uuid ASC")
	found, err := s.queryIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.withFields(ctx, s.pool, found)
}

// ListAll returns every contact of owner in creation order.
func (s *ContactStore) ListAll(ctx context.Context, owner ContactOwner) ([]ContactRecord, error) {
	q := psql.Select("c.uuid").From(s.tables.contacts+" c").
		Where(s.ownerScope(owner)).
		OrderBy("c.created_at ASC", "c.uuid ASC")
	ids, err := s.queryIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.withFields(ctx, s.pool, ids)
}

// Import creates rows in one transaction, each behind its own savepoint, so
// a failing row leaves no trace. A row carrying an id column reuses it.
func (s *ContactStore) Import(ctx context.Context, owner ContactOwner, rows []csvimport.Row) ([]ContactRecord, []csvimport.Failure, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("begin import tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created := make([]ContactRecord, 0, len(rows))
	failed := make([]csvimport.Failure, 0)
	for _, row := range rows {
		id := uuid.New()
		if raw := strings.TrimSpace(row.Fields[fingerprint.IDField]); raw != "" {
			parsed, perr := uuid.Parse(raw)
			if perr != nil {
				failed = append(failed, csvimport.Failure{Line: row.Line, Message: ImportInvalidIDMessage, Contact: row.Fields})
				continue
			}
			id = parsed
		}

		rec, err := s.importRow(ctx, tx, owner, id, row.Fields)
		switch {
		case err == nil:
			created = append(created, rec)
		case isPrimaryKeyViolation(err):
			failed = append(failed, csvimport.Failure{Line: row.Line, Message: ImportIDCollisionMessage, Contact: row.Fields})
		case isUniqueViolation(err):
			failed = append(failed, csvimport.Failure{Line: row.Line, Message: ImportDuplicateMessage, Contact: row.Fields})
		case isForeignKeyViolation(err):
			return nil, nil, s.tables.missingOwner
		default:
			return nil, nil, fmt.Errorf("import line %d: %w", row.Line, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit import: %w", err)
	}
	return created, failed, nil
}

func (s *ContactStore) importRow(ctx context.Context, tx pgx.Tx, owner ContactOwner, id uuid.UUID, fields map[string]string) (ContactRecord, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return ContactRecord{}, fmt.Errorf("savepoint: %w", err)
	}
	rec, err := s.insert(ctx, sp, owner, id, fields)
	if err != nil {
		_ = sp.Rollback(ctx)
		return ContactRecord{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return ContactRecord{}, err
	}
	return rec, nil
}

func (s *ContactStore) insert(ctx context.Context, tx pgx.Tx, owner ContactOwner, id uuid.UUID, fields map[string]string) (ContactRecord, error) {
	cleaned := fingerprint.Clean(fields)
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (uuid, %s, tenant_uuid, fingerprint) VALUES ($1, $2, $3, $4)`, s.tables.contacts, s.tables.owner),
		id, owner.UUID, owner.TenantUUID, fingerprint.Compute(cleaned),
	); err != nil {
		return ContactRecord{}, err
	}
	if err := s.insertFields(ctx, tx, id, cleaned); err != nil {
		return ContactRecord{}, err
	}
	return ContactRecord{UUID: id, Fields: cleaned}, nil
}

func (s *ContactStore) insertFields(ctx context.Context, tx pgx.Tx, id uuid.UUID, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(fields))
	for k, v := range fields {
		rows = append(rows, []any{id, k, v, textfold.Fold(v)})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{s.tables.fields},
		[]string{"contact_uuid", "name", "value", "value_folded"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("insert contact fields: %w", err)
	}
	return nil
}

func (s *ContactStore) ownerScope(owner ContactOwner) sq.Eq {
	scope := sq.Eq{"c." + s.tables.owner: owner.UUID}
	if s.tables.tenantScoped {
		scope["c.tenant_uuid"] = owner.TenantUUID
	}
	return scope
}

func (s *ContactStore) queryIDs(ctx context.Context, q sq.SelectBuilder) ([]uuid.UUID, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build contact query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// withFields loads the fields of ids and returns the records in ids order.
func (s *ContactStore) withFields(ctx context.Context, q serviceQuerier, ids []uuid.UUID) ([]ContactRecord, error) {
	out := make([]ContactRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	index := make(map[uuid.UUID]int, len(ids))
	for i, id := range ids {
		index[id] = i
		out[i] = ContactRecord{UUID: id, Fields: map[string]string{}}
	}

	rows, err := q.Query(ctx,
		fmt.Sprintf(`SELECT contact_uuid, name, value FROM %s WHERE contact_uuid = ANY($1)`, s.tables.fields),
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("load contact fields: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id          uuid.UUID
			name, value string
		)
		if err := rows.Scan(&id, &name, &value); err != nil {
			return nil, fmt.Errorf("scan contact field: %w", err)
		}
		if i, ok := index[id]; ok {
			out[i].Fields[name] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact fields: %w", err)
	}
	return out, nil
}

func (s *ContactStore) classify(op string, err error) error {
	switch {
	case isUniqueViolation(err):
		return ErrContactConflict
	case isForeignKeyViolation(err):
		return s.tables.missingOwner
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
