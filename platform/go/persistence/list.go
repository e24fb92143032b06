package persistence

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ListParams are the listing inputs shared by the configuration stores.
// Tenants bounds the scope; an empty slice matches nothing.
type ListParams struct {
	Tenants   []uuid.UUID
	Search    string
	UUID      *uuid.UUID
	Name      *string
	Backend   *string
	Order     string
	Direction string
	Limit     *int
	Offset    int
}

// ListResult carries one page with the scope totals. Total ignores the search
// and equality predicates, Filtered applies them.
type ListResult[T any] struct {
	Items    []T
	Total    int
	Filtered int
}

type listSpec struct {
	table        string
	columns      []string
	searchable   []string
	orderable    map[string]string
	defaultOrder string
	equality     func(params ListParams) sq.Eq
	extraScope   sq.Sqlizer
}

func normalizeDirection(direction string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "", "asc":
		return "ASC", nil
	case "desc":
		return "DESC", nil
	default:
		return "", apperr.Invalid("direction", fmt.Sprintf("must be asc or desc, got %q", direction))
	}
}

func validatePage(limit *int, offset int) error {
	if limit != nil && *limit < 0 {
		return apperr.Invalid("limit", "must be a positive integer")
	}
	if offset < 0 {
		return apperr.Invalid("offset", "must be a positive integer")
	}
	return nil
}

// likePattern escapes LIKE wildcards so term matches literally.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func (s listSpec) queries(params ListParams) (total, filtered, page sq.SelectBuilder, err error) {
	if err = validatePage(params.Limit, params.Offset); err != nil {
		return
	}
	direction, err := normalizeDirection(params.Direction)
	if err != nil {
		return
	}
	orderBy := s.defaultOrder
	if params.Order != "" {
		column, ok := s.orderable[params.Order]
		if !ok {
			err = apperr.Invalid("order", fmt.Sprintf("unknown column %q", params.Order))
			return
		}
		orderBy = column
	}

	scope := sq.And{sq.Eq{"tenant_uuid": params.Tenants}}
	if s.extraScope != nil {
		scope = append(scope, s.extraScope)
	}

	predicates := sq.And{scope}
	if params.UUID != nil {
		predicates = append(predicates, sq.Eq{"uuid": *params.UUID})
	}
	if params.Name != nil {
		predicates = append(predicates, sq.Eq{"name": *params.Name})
	}
	if s.equality != nil {
		if eq := s.equality(params); len(eq) > 0 {
			predicates = append(predicates, eq)
		}
	}
	if term := strings.TrimSpace(params.Search); term != "" && len(s.searchable) > 0 {
		or := sq.Or{}
		for _, col := range s.searchable {
			or = append(or, sq.ILike{col: likePattern(term)})
		}
		predicates = append(predicates, or)
	}

	total = psql.Select("COUNT(*)").From(s.table).Where(scope)
	filtered = psql.Select("COUNT(*)").From(s.table).Where(predicates)
	page = psql.Select(s.columns...).From(s.table).Where(predicates).
		OrderBy(fmt.Sprintf("%s %s", orderBy, direction), "uuid ASC").
		Offset(uint64(params.Offset))
	if params.Limit != nil {
		page = page.Limit(uint64(*params.Limit))
	}
	return total, filtered, page, nil
}

func countRows(ctx context.Context, pool *pgxpool.Pool, q sq.SelectBuilder) (int, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := pool.QueryRow(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func runList[T any](ctx context.Context, pool *pgxpool.Pool, spec listSpec, params ListParams, scan func(pgx.Row) (T, error)) (ListResult[T], error) {
	totalQ, filteredQ, pageQ, err := spec.queries(params)
	if err != nil {
		return ListResult[T]{}, err
	}

	result := ListResult[T]{Items: []T{}}
	if result.Total, err = countRows(ctx, pool, totalQ); err != nil {
		return ListResult[T]{}, err
	}
	if result.Filtered, err = countRows(ctx, pool, filteredQ); err != nil {
		return ListResult[T]{}, err
	}
	if result.Filtered == 0 {
		return result, nil
	}

	sqlStr, args, err := pageQ.ToSql()
	if err != nil {
		return ListResult[T]{}, fmt.Errorf("build list query: %w", err)
	}
	rows, err := pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return ListResult[T]{}, fmt.Errorf("list %s: %w", spec.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		item, scanErr := scan(rows)
		if scanErr != nil {
			return ListResult[T]{}, fmt.Errorf("scan %s: %w", spec.table, scanErr)
		}
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return ListResult[T]{}, fmt.Errorf("iterate %s: %w", spec.table, err)
	}
	return result, nil
}
