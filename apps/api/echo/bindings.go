package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// query reads typed query params, remembering the first malformed one.
type query struct {
	ctx echo.Context
	err error
}

func newQuery(ctx echo.Context) *query {
	return &query{ctx: ctx}
}

func (q *query) fail(name string, err error) {
	if q.err == nil {
		q.err = core.NewFieldValidationError(name, err)
	}
}

func (q *query) String(name string) string {
	return core.CleanString(q.ctx.QueryParam(name))
}

func (q *query) Strings(name string) []string {
	vals := q.ctx.QueryParams()[name]
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		for _, s := range strings.Split(v, ",") {
			if s = core.CleanString(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (q *query) Int(name string) *int {
	val := q.String(name)
	if val == "" {
		return nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		q.fail(name, errors.New("must be an integer"))
		return nil
	}
	return &i
}

func (q *query) Bool(name string) *bool {
	val := q.String(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		q.fail(name, errors.New("must be a boolean"))
		return nil
	}
	return &b
}

// Time accepts RFC3339 timestamps and YYYY-MM-DD dates (UTC midnight).
func (q *query) Time(name string) time.Time {
	val := q.String(name)
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC()
	}
	t, err := time.Parse(core.DateLayout, val)
	if err != nil {
		q.fail(name, errors.New("must be a date (YYYY-MM-DD) or an RFC3339 timestamp"))
		return time.Time{}
	}
	return t
}

// Date is like Time, but defaults to today (UTC).
func (q *query) Date(name string) time.Time {
	if t := q.Time(name); !t.IsZero() {
		return t
	}
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (q *query) Err() error {
	return q.err
}
