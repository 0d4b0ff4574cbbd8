package core

import (
	"context"
	"database/sql"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	// TxRunner runs fn within a database transaction.
	// The transaction is committed when fn returns nil and rolled back otherwise.
	// Repositories receive `exec` through their variadic executor argument.
	TxRunner interface {
		RunInTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Pagination limits list queries. A zero Limit means no limit.
type Pagination struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// RunInTx calls fn with the first executor of `exec` when one is given (the caller already runs a
// transaction), and within a new transaction of `runner` otherwise.
func RunInTx(ctx context.Context, runner TxRunner, exec []DBExecutor, fn func(exec DBExecutor) error) error {
	if len(exec) > 0 && exec[0] != nil {
		return fn(exec[0])
	}
	return runner.RunInTx(ctx, fn)
}
