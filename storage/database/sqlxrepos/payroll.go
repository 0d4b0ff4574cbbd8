package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/payroll"
)

const (
	salaryColumns  = `id, staff_id, basic, allowances, deductions, bank_name, account_number, created_at, updated_at`
	runColumns     = `id, period, status, total_gross, total_net, created_by, approved_by, approved_at, paid_at, created_at, updated_at`
	payslipColumns = `id, run_id, staff_id, period, basic, allowances, gross, pension, tax, deductions, net, created_at`
)

type salaryRow struct {
	ID            string    `db:"id"`
	StaffID       string    `db:"staff_id"`
	Basic         int64     `db:"basic"`
	Allowances    int64     `db:"allowances"`
	Deductions    int64     `db:"deductions"`
	BankName      string    `db:"bank_name"`
	AccountNumber string    `db:"account_number"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (row salaryRow) salary() payroll.SalaryStructure {
	s := payroll.SalaryStructure(row)
	s.CreatedAt = row.CreatedAt.UTC()
	s.UpdatedAt = row.UpdatedAt.UTC()
	return s
}

type runRow struct {
	ID         string      `db:"id"`
	Period     string      `db:"period"`
	Status     string      `db:"status"`
	TotalGross int64       `db:"total_gross"`
	TotalNet   int64       `db:"total_net"`
	CreatedBy  string      `db:"created_by"`
	ApprovedBy null.String `db:"approved_by"`
	ApprovedAt null.Time   `db:"approved_at"`
	PaidAt     null.Time   `db:"paid_at"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func toRunRow(r payroll.Run) runRow {
	return runRow{
		ID:         r.ID,
		Period:     r.Period,
		Status:     r.Status,
		TotalGross: r.TotalGross,
		TotalNet:   r.TotalNet,
		CreatedBy:  r.CreatedBy,
		ApprovedBy: nullString(r.ApprovedBy),
		ApprovedAt: nullTime(r.ApprovedAt),
		PaidAt:     nullTime(r.PaidAt),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func (row runRow) run() payroll.Run {
	return payroll.Run{
		ID:         row.ID,
		Period:     row.Period,
		Status:     row.Status,
		TotalGross: row.TotalGross,
		TotalNet:   row.TotalNet,
		CreatedBy:  row.CreatedBy,
		ApprovedBy: row.ApprovedBy.String,
		ApprovedAt: utc(row.ApprovedAt.Time),
		PaidAt:     utc(row.PaidAt.Time),
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type payslipRow struct {
	ID         string    `db:"id"`
	RunID      string    `db:"run_id"`
	StaffID    string    `db:"staff_id"`
	Period     string    `db:"period"`
	Basic      int64     `db:"basic"`
	Allowances int64     `db:"allowances"`
	Gross      int64     `db:"gross"`
	Pension    int64     `db:"pension"`
	Tax        int64     `db:"tax"`
	Deductions int64     `db:"deductions"`
	Net        int64     `db:"net"`
	CreatedAt  time.Time `db:"created_at"`
}

type payrollRepository struct {
	repo
}

var _ payroll.Repository = (*payrollRepository)(nil) // interface compliance check

func NewPayrollRepository(db *sqlx.DB) *payrollRepository {
	return &payrollRepository{repo{db: db}}
}

func (r payrollRepository) UpsertSalary(ctx context.Context, s payroll.SalaryStructure, exec ...core.DBExecutor) (payroll.SalaryStructure, error) {
	s.ID = newID()
	var row salaryRow
	err := r.get(ctx, exec, &row, `
		INSERT INTO salary_structures (`+salaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (staff_id) DO UPDATE SET
			basic = EXCLUDED.basic,
			allowances = EXCLUDED.allowances,
			deductions = EXCLUDED.deductions,
			bank_name = EXCLUDED.bank_name,
			account_number = EXCLUDED.account_number,
			updated_at = EXCLUDED.updated_at
		RETURNING `+salaryColumns,
		s.ID, s.StaffID, s.Basic, s.Allowances, s.Deductions, s.BankName, s.AccountNumber, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return payroll.SalaryStructure{}, errors.Wrap(err, "upserting salary structure")
	}
	return row.salary(), nil
}

func (r payrollRepository) GetSalary(ctx context.Context, staffID string, exec ...core.DBExecutor) (payroll.SalaryStructure, error) {
	if _, err := uuid.Parse(staffID); err != nil {
		return payroll.SalaryStructure{}, payroll.ErrSalaryNotFound
	}
	var row salaryRow
	if err := r.get(ctx, exec, &row, "SELECT "+salaryColumns+" FROM salary_structures WHERE staff_id = ?", staffID); err != nil {
		return payroll.SalaryStructure{}, trapNoRows(err, payroll.ErrSalaryNotFound, "finding salary structure")
	}
	return row.salary(), nil
}

func (r payrollRepository) QuerySalaries(ctx context.Context, exec ...core.DBExecutor) ([]payroll.SalaryStructure, error) {
	var rows []salaryRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+salaryColumns+" FROM salary_structures ORDER BY created_at"); err != nil {
		return nil, errors.Wrap(err, "querying salary structures")
	}
	salaries := make([]payroll.SalaryStructure, 0, len(rows))
	for _, row := range rows {
		salaries = append(salaries, row.salary())
	}
	return salaries, nil
}

func (r payrollRepository) CreateRun(ctx context.Context, run payroll.Run, exec ...core.DBExecutor) (payroll.Run, error) {
	run.ID = newID()
	row := toRunRow(run)
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO payroll_runs (`+runColumns+`)
		VALUES (:id, :period, :status, :total_gross, :total_net, :created_by, :approved_by, :approved_at, :paid_at, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return payroll.Run{}, payroll.ErrRunExists
		}
		return payroll.Run{}, errors.Wrap(err, "inserting payroll run")
	}
	return row.run(), nil
}

func (r payrollRepository) GetRun(ctx context.Context, id string, exec ...core.DBExecutor) (payroll.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payroll.Run{}, payroll.ErrRunNotFound
	}
	var row runRow
	if err := r.get(ctx, exec, &row, "SELECT "+runColumns+" FROM payroll_runs WHERE id = ?", id); err != nil {
		return payroll.Run{}, trapNoRows(err, payroll.ErrRunNotFound, "finding payroll run")
	}
	return row.run(), nil
}

func (r payrollRepository) GetRunByPeriod(ctx context.Context, period string, exec ...core.DBExecutor) (payroll.Run, error) {
	var row runRow
	if err := r.get(ctx, exec, &row, "SELECT "+runColumns+" FROM payroll_runs WHERE period = ?", period); err != nil {
		return payroll.Run{}, trapNoRows(err, payroll.ErrRunNotFound, "finding payroll run")
	}
	return row.run(), nil
}

func (r payrollRepository) QueryRuns(ctx context.Context, exec ...core.DBExecutor) ([]payroll.Run, error) {
	var rows []runRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+runColumns+" FROM payroll_runs ORDER BY period DESC"); err != nil {
		return nil, errors.Wrap(err, "querying payroll runs")
	}
	runs := make([]payroll.Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.run())
	}
	return runs, nil
}

func (r payrollRepository) UpdateRun(ctx context.Context, run payroll.Run, exec ...core.DBExecutor) (payroll.Run, error) {
	row := toRunRow(run)
	res, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		UPDATE payroll_runs SET
			status = :status, total_gross = :total_gross, total_net = :total_net,
			approved_by = :approved_by, approved_at = :approved_at, paid_at = :paid_at, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		return payroll.Run{}, errors.Wrap(err, "updating payroll run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payroll.Run{}, payroll.ErrRunNotFound
	}
	return row.run(), nil
}

func (r payrollRepository) CreatePayslip(ctx context.Context, p payroll.Payslip, exec ...core.DBExecutor) (payroll.Payslip, error) {
	p.ID = newID()
	p.CreatedAt = p.CreatedAt.UTC()
	_, err := sqlx.NamedExecContext(ctx, r.ext(exec), `
		INSERT INTO payslips (`+payslipColumns+`)
		VALUES (:id, :run_id, :staff_id, :period, :basic, :allowances, :gross, :pension, :tax, :deductions, :net, :created_at)`,
		payslipRow(p))
	if err != nil {
		return payroll.Payslip{}, errors.Wrap(err, "inserting payslip")
	}
	return p, nil
}

func (r payrollRepository) QueryPayslips(ctx context.Context, filter payroll.PayslipFilter, exec ...core.DBExecutor) ([]payroll.Payslip, error) {
	var w where
	if filter.RunID != "" {
		w.add("run_id = ?", filter.RunID)
	}
	if filter.StaffID != "" {
		w.add("staff_id = ?", filter.StaffID)
	}

	var rows []payslipRow
	if err := r.selekt(ctx, exec, &rows, "SELECT "+payslipColumns+" FROM payslips"+w.String()+" ORDER BY period DESC, created_at", w.args...); err != nil {
		return nil, errors.Wrap(err, "querying payslips")
	}
	slips := make([]payroll.Payslip, 0, len(rows))
	for _, row := range rows {
		p := payroll.Payslip(row)
		p.CreatedAt = p.CreatedAt.UTC()
		slips = append(slips, p)
	}
	return slips, nil
}
