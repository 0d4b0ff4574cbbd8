// Package inmemdb implements the repositories of the domain packages in memory.
// It backs the tests and the `inmem` database engine; data does not survive restarts.
package inmemdb

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assessment"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/clinic"
	"github.com/trezcool/shule/core/finance"
	"github.com/trezcool/shule/core/payroll"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/security"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
)

type (
	tables struct {
		users        map[string]user.User
		classes      map[string]school.Class
		subjects     map[string]school.Subject
		students     map[string]student.Profile
		parents      map[string]student.ParentProfile
		wards        map[[2]string]student.Ward
		assessments  map[string]assessment.Assessment
		tokens       map[string]assessment.Token
		submissions  map[string]assessment.Submission
		attendance   map[string]attendance.Record
		wallets      map[string]wallet.Wallet
		transactions map[string]wallet.Transaction
		feeItems     map[string]finance.FeeItem
		invoices     map[string]finance.Invoice
		payments     map[string]finance.Payment
		salaries     map[string]payroll.SalaryStructure
		runs         map[string]payroll.Run
		payslips     map[string]payroll.Payslip
		visits       map[string]clinic.Visit
		visitorLogs  map[string]security.VisitorLog
	}

	// DB holds every table behind a single lock.
	DB struct {
		mu sync.RWMutex
		tables
	}
)

func Open() *DB {
	return &DB{tables: newTables()}
}

func newTables() tables {
	return tables{
		users:        make(map[string]user.User),
		classes:      make(map[string]school.Class),
		subjects:     make(map[string]school.Subject),
		students:     make(map[string]student.Profile),
		parents:      make(map[string]student.ParentProfile),
		wards:        make(map[[2]string]student.Ward),
		assessments:  make(map[string]assessment.Assessment),
		tokens:       make(map[string]assessment.Token),
		submissions:  make(map[string]assessment.Submission),
		attendance:   make(map[string]attendance.Record),
		wallets:      make(map[string]wallet.Wallet),
		transactions: make(map[string]wallet.Transaction),
		feeItems:     make(map[string]finance.FeeItem),
		invoices:     make(map[string]finance.Invoice),
		payments:     make(map[string]finance.Payment),
		salaries:     make(map[string]payroll.SalaryStructure),
		runs:         make(map[string]payroll.Run),
		payslips:     make(map[string]payroll.Payslip),
		visits:       make(map[string]clinic.Visit),
		visitorLogs:  make(map[string]security.VisitorLog),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (t tables) clone() tables {
	return tables{
		users:        copyMap(t.users),
		classes:      copyMap(t.classes),
		subjects:     copyMap(t.subjects),
		students:     copyMap(t.students),
		parents:      copyMap(t.parents),
		wards:        copyMap(t.wards),
		assessments:  copyMap(t.assessments),
		tokens:       copyMap(t.tokens),
		submissions:  copyMap(t.submissions),
		attendance:   copyMap(t.attendance),
		wallets:      copyMap(t.wallets),
		transactions: copyMap(t.transactions),
		feeItems:     copyMap(t.feeItems),
		invoices:     copyMap(t.invoices),
		payments:     copyMap(t.payments),
		salaries:     copyMap(t.salaries),
		runs:         copyMap(t.runs),
		payslips:     copyMap(t.payslips),
		visits:       copyMap(t.visits),
		visitorLogs:  copyMap(t.visitorLogs),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = newTables()
}

// txExecutor marks the repository calls made within a transaction.
// The in-memory repositories never run SQL.
type txExecutor struct{}

var _ core.DBExecutor = txExecutor{}

var errNoSQL = errors.New("inmemdb: SQL is not supported")

func (txExecutor) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNoSQL }
func (txExecutor) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}
func (txExecutor) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNoSQL }
func (txExecutor) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}
func (txExecutor) QueryRow(string, ...interface{}) *sql.Row { return nil }
func (txExecutor) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

// TxRunner snapshots the tables before fn and restores them when fn fails.
// Concurrent writes made outside fn are lost on rollback.
type TxRunner struct {
	db *DB
}

var _ core.TxRunner = (*TxRunner)(nil) // interface compliance check

func NewTxRunner(db *DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) RunInTx(_ context.Context, fn func(exec core.DBExecutor) error) (err error) {
	r.db.mu.RLock()
	snapshot := r.db.tables.clone()
	r.db.mu.RUnlock()

	rollback := func() {
		r.db.mu.Lock()
		r.db.tables = snapshot
		r.db.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(txExecutor{}); err != nil {
		rollback()
	}
	return err
}

func newID() string {
	return uuid.New().String()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// comparator returns a negative number when a sorts before b, a positive one when after, 0 otherwise.
type comparator[T any] func(a, b T) int

func compareStrings(a, b string) int { return strings.Compare(a, b) }

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareInts(a, b int) int { return a - b }

// order sorts items with the orderings on whitelisted fields, falling back on `dflt`.
func order[T any](items []T, ordering []core.DBOrdering, fields map[string]comparator[T], dflt comparator[T]) {
	cmps := make([]comparator[T], 0, len(ordering))
	for _, ord := range ordering {
		cmp, ok := fields[ord.Field]
		if !ok {
			continue
		}
		if !ord.Ascending {
			asc := cmp
			cmp = func(a, b T) int { return -asc(a, b) }
		}
		cmps = append(cmps, cmp)
	}
	if len(cmps) == 0 {
		cmps = append(cmps, dflt)
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, cmp := range cmps {
			if c := cmp(items[i], items[j]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}
