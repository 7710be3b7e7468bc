package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTxKey holds the active transaction in a request context.
const DBTxKey contextKey = "db_tx"

// Querier is the subset of pgx shared by pools, connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxFromContext returns the transaction started by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the tenant connection stored in ctx and
// returns a context carrying it. Callers must Commit or Rollback the tx.
func WithTx(ctx context.Context) (context.Context, pgx.Tx, error) {
	conn := ConnFromContext(ctx)
	if conn == nil {
		return ctx, nil, fmt.Errorf("no database connection in context")
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// Resolve picks the querier for ctx: the active transaction first, then
// the tenant connection, then the pool.
func Resolve(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// afterCommitKey holds the hooks of the outermost RunInTx.
const afterCommitKey contextKey = "db_after_commit"

type afterCommit struct {
	fns []func(ctx context.Context)
}

// AfterCommit runs fn once the outermost RunInTx in ctx has committed, or
// right away when ctx is not inside RunInTx. fn is dropped on rollback.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if h, ok := ctx.Value(afterCommitKey).(*afterCommit); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn(ctx)
}

// RunInTx executes fn inside a transaction when a tenant connection is
// available. Nested calls reuse the outer transaction. Without a
// connection fn runs directly, which is what in-memory tests rely on.
// Hooks registered with AfterCommit run after the outermost call succeeds.
func RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(afterCommitKey).(*afterCommit); nested {
		return fn(ctx)
	}
	hooks := &afterCommit{}
	if err := runTx(context.WithValue(ctx, afterCommitKey, hooks), fn); err != nil {
		return err
	}
	for _, f := range hooks.fns {
		f(ctx)
	}
	return nil
}

func runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil || ConnFromContext(ctx) == nil {
		return fn(ctx)
	}
	txCtx, tx, err := WithTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}
