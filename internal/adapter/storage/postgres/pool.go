package postgres

import (
	"context"

	"payment-reconciler/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool is the subset of *pgxpool.Pool used by the repositories. It is
// satisfied by pgxmock in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Transactor implements ports.DBTransactor on top of a Pool.
type Transactor struct {
	pool Pool
}

var _ ports.DBTransactor = (*Transactor)(nil)

// NewTransactor creates a Transactor that opens transactions on pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a transaction. Callers defer Rollback and Commit on success.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.Begin(ctx)
}
