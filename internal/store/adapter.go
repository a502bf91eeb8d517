package store

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

// Rows is the cursor shape shared by pgx and database/sql.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is what scan callbacks receive.
type Row interface {
	Scan(dest ...any) error
}

// DB abstracts the driver. Statements always go through Query so that
// RETURNING clauses and plain writes share one code path.
type DB interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Ping(ctx context.Context) error
}

// PgxAdapter runs statements on a pgx pool.
type PgxAdapter struct {
	pool *pgxpool.Pool
}

func NewPgxAdapter(pool *pgxpool.Pool) *PgxAdapter {
	return &PgxAdapter{pool: pool}
}

func (a *PgxAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxRows{rows}, nil
}

func (a *PgxAdapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

type pgxRows struct {
	pgx.Rows
}

// SQLXAdapter runs statements on database/sql through sqlx, typically with
// the lib/pq driver.
type SQLXAdapter struct {
	db *sqlx.DB
}

func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

func (a *SQLXAdapter) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (a *SQLXAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }
