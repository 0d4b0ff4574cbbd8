// Package sqlxrepos implements the repositories of the domain packages on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/shule/core"
)

const uniqueViolation = "23505"

// repo holds what every repository needs: the default executor.
type repo struct {
	db *sqlx.DB
}

// ext returns the executor to use: the service's (within a transaction) or the default one.
// Executors handed by the services are either *sqlx.DB or *sqlx.Tx.
func (r repo) ext(exec []core.DBExecutor) sqlx.ExtContext {
	if len(exec) > 0 && exec[0] != nil {
		if e, ok := exec[0].(sqlx.ExtContext); ok {
			return e
		}
		panic(fmt.Sprintf("sqlxrepos: unsupported executor %T", exec[0]))
	}
	return r.db
}

func (r repo) get(ctx context.Context, exec []core.DBExecutor, dst interface{}, query string, args ...interface{}) error {
	e := r.ext(exec)
	return sqlx.GetContext(ctx, e, dst, e.Rebind(query), args...)
}

func (r repo) selekt(ctx context.Context, exec []core.DBExecutor, dst interface{}, query string, args ...interface{}) error {
	e := r.ext(exec)
	return sqlx.SelectContext(ctx, e, dst, e.Rebind(query), args...)
}

func (r repo) exec(ctx context.Context, exec []core.DBExecutor, query string, args ...interface{}) (int64, error) {
	e := r.ext(exec)
	res, err := e.ExecContext(ctx, e.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// in expands slice args of `query` (`IN (?)`).
func in(query string, args ...interface{}) (string, []interface{}) {
	q, a, err := sqlx.In(query, args...)
	if err != nil { // only fails on empty slices, which callers avoid
		panic(err)
	}
	return q, a
}

// isUniqueViolation reports whether err is a postgres unique violation, optionally on `constraint`.
func isUniqueViolation(err error, constraint ...string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != uniqueViolation {
		return false
	}
	return len(constraint) == 0 || pqErr.Constraint == constraint[0]
}

// trapNoRows maps sql.ErrNoRows to `notFound`.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// where accumulates AND-ed conditions.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// orderBy builds an ORDER BY clause from the orderings on whitelisted fields; others are ignored.
// `fields` maps API field names to their column.
func orderBy(ordering []core.DBOrdering, fields map[string]string, dflt string) string {
	list := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := fields[ord.Field]
		if !ok {
			continue
		}
		list = append(list, core.DBOrdering{Field: quoteColumn(col), Ascending: ord.Ascending}.String())
	}
	if len(list) == 0 {
		return " ORDER BY " + dflt
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

// quoteColumn quotes "table.column" identifiers.
func quoteColumn(col string) string {
	return strmangle.IdentQuote('"', '"', col)
}

func newID() string {
	return uuid.New().String()
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
