package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx. Every method takes one
// so the engine can run reads and writes inside its own transaction.
type Queryer = sqlx.ExtContext

type Repo struct {
	DB *sqlx.DB
}

var ErrNotFound = errors.New("not found")

// IsPostgres reports whether q talks to postgres, where row locks are taken
// explicitly with FOR UPDATE.
func IsPostgres(q Queryer) bool {
	switch q.DriverName() {
	case "pgx", "postgres":
		return true
	}
	return false
}

func get(ctx context.Context, q Queryer, dest any, query string, args ...any) error {
	err := sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func selectAll(ctx context.Context, q Queryer, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

func exec(ctx context.Context, q Queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, q.Rebind(query), args...)
}

// execOne runs an update that must touch exactly one row.
func execOne(ctx context.Context, q Queryer, query string, args ...any) error {
	res, err := exec(ctx, q, query, args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
