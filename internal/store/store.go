// Package store is the query interface the booking engine uses against
// Postgres: collection name, filters and ordering in, rows or a classified
// error out. SQL is built with goqu and executed on either pgx or sqlx.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/rs/zerolog"
)

// Record is a column to value map for inserts and updates.
type Record = goqu.Record

type Op uint8

const (
	OpEq Op = iota
	OpNeq
	OpIn
	OpLt
	OpLte
)

// Filter is an equality, inclusion or range condition on one column.
type Filter struct {
	Column string
	Op     Op
	Values []any
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Values: []any{value}}
}

func Neq(column string, value any) Filter {
	return Filter{Column: column, Op: OpNeq, Values: []any{value}}
}

func Lt(column string, value any) Filter {
	return Filter{Column: column, Op: OpLt, Values: []any{value}}
}

func Lte(column string, value any) Filter {
	return Filter{Column: column, Op: OpLte, Values: []any{value}}
}

func In(column string, values ...any) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

func (f Filter) expression() exp.Expression {
	col := goqu.C(f.Column)
	if f.Op == OpIn {
		if len(f.Values) == 0 {
			return goqu.L("FALSE")
		}
		return col.In(f.Values...)
	}

	var v any
	if len(f.Values) > 0 {
		v = f.Values[0]
	}
	switch f.Op {
	case OpNeq:
		return col.Neq(v)
	case OpLt:
		return col.Lt(v)
	case OpLte:
		return col.Lte(v)
	default:
		return col.Eq(v)
	}
}

type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query describes a read. An empty Columns selects everything.
type Query struct {
	Collection string
	Columns    []any
	Filters    []Filter
	Order      []Order
	Limit      uint
	Offset     uint
}

// Text selects column cast to text under its own name. Dates, times and
// uuids are read this way so both drivers scan them into strings.
func Text(column string) exp.AliasedExpression {
	return goqu.L(`"` + column + `"::text`).As(column)
}

// JoinedText selects a text[] column as one comma separated string.
func JoinedText(column string) exp.AliasedExpression {
	return goqu.L(`array_to_string("` + column + `", ',')`).As(column)
}

// Now is the server clock, for timestamp columns.
func Now() exp.LiteralExpression {
	return goqu.L("now()")
}

type Store struct {
	db      DB
	dialect goqu.DialectWrapper
	logger  zerolog.Logger
}

func New(db DB, logger zerolog.Logger) *Store {
	return &Store{
		db:      db,
		dialect: goqu.Dialect("postgres"),
		logger:  logger,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return Classify(s.db.Ping(ctx))
}

// Find runs q and calls scan once per row. It returns the number of rows.
func (s *Store) Find(ctx context.Context, q Query, scan func(Row) error) (int, error) {
	ds := s.dialect.From(q.Collection).Prepared(true)
	if len(q.Columns) > 0 {
		ds = ds.Select(q.Columns...)
	}
	if len(q.Filters) > 0 {
		ds = ds.Where(expressions(q.Filters)...)
	}
	for _, o := range q.Order {
		if o.Desc {
			ds = ds.OrderAppend(goqu.I(o.Column).Desc())
		} else {
			ds = ds.OrderAppend(goqu.I(o.Column).Asc())
		}
	}
	if q.Limit > 0 {
		ds = ds.Limit(q.Limit)
	}
	if q.Offset > 0 {
		ds = ds.Offset(q.Offset)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, &Error{Kind: ErrFailed, Err: fmt.Errorf("build select on %s: %w", q.Collection, err)}
	}
	return s.run(ctx, "select", q.Collection, query, args, scan)
}

// Insert writes rec and scans the returning columns, if any.
func (s *Store) Insert(ctx context.Context, collection string, rec Record, returning []any, scan func(Row) error) (int, error) {
	ds := s.dialect.Insert(collection).Prepared(true).Rows(rec)
	if len(returning) > 0 {
		ds = ds.Returning(returning...)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, &Error{Kind: ErrFailed, Err: fmt.Errorf("build insert on %s: %w", collection, err)}
	}
	return s.run(ctx, "insert", collection, query, args, scan)
}

// Update sets columns on every row matching filters. The count is the
// number of returned rows, so callers that need it must ask for at least
// one returning column.
func (s *Store) Update(ctx context.Context, collection string, set Record, filters []Filter, returning []any, scan func(Row) error) (int, error) {
	ds := s.dialect.Update(collection).Prepared(true).Set(set)
	if len(filters) > 0 {
		ds = ds.Where(expressions(filters)...)
	}
	if len(returning) > 0 {
		ds = ds.Returning(returning...)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, &Error{Kind: ErrFailed, Err: fmt.Errorf("build update on %s: %w", collection, err)}
	}
	return s.run(ctx, "update", collection, query, args, scan)
}

func (s *Store) run(ctx context.Context, op, collection, query string, args []any, scan func(Row) error) (int, error) {
	start := time.Now()

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return 0, s.fail(op, collection, err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		if scan != nil {
			if err := scan(rows); err != nil {
				return n, &Error{Kind: ErrFailed, Err: fmt.Errorf("scan %s row: %w", collection, err)}
			}
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, s.fail(op, collection, err)
	}

	s.logger.Debug().
		Str("op", op).
		Str("collection", collection).
		Int("rows", n).
		Dur("duration", time.Since(start)).
		Msg("store query")

	return n, nil
}

func (s *Store) fail(op, collection string, err error) error {
	classified := Classify(err)
	s.logger.Debug().Err(classified).Str("op", op).Str("collection", collection).Msg("store query failed")
	return classified
}

func expressions(filters []Filter) []exp.Expression {
	out := make([]exp.Expression, 0, len(filters))
	for _, f := range filters {
		out = append(out, f.expression())
	}
	return out
}
