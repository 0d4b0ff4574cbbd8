package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/payroll"
)

type payrollRepository struct {
	db *DB
}

var _ payroll.Repository = (*payrollRepository)(nil) // interface compliance check

func NewPayrollRepository(db *DB) *payrollRepository {
	return &payrollRepository{db: db}
}

func (repo *payrollRepository) UpsertSalary(_ context.Context, s payroll.SalaryStructure, _ ...core.DBExecutor) (payroll.SalaryStructure, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if current, ok := repo.db.salaries[s.StaffID]; ok {
		s.ID = current.ID
		s.CreatedAt = current.CreatedAt
	} else {
		s.ID = newID()
	}
	repo.db.salaries[s.StaffID] = s
	return s, nil
}

func (repo *payrollRepository) GetSalary(_ context.Context, staffID string, _ ...core.DBExecutor) (payroll.SalaryStructure, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.salaries[staffID]; ok {
		return s, nil
	}
	return payroll.SalaryStructure{}, payroll.ErrSalaryNotFound
}

func (repo *payrollRepository) QuerySalaries(_ context.Context, _ ...core.DBExecutor) ([]payroll.SalaryStructure, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	salaries := make([]payroll.SalaryStructure, 0, len(repo.db.salaries))
	for _, s := range repo.db.salaries {
		salaries = append(salaries, s)
	}
	order(salaries, nil, nil, func(a, b payroll.SalaryStructure) int { return compareTimes(a.CreatedAt, b.CreatedAt) })
	return salaries, nil
}

func (repo *payrollRepository) CreateRun(_ context.Context, r payroll.Run, _ ...core.DBExecutor) (payroll.Run, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.runs {
		if existing.Period == r.Period {
			return payroll.Run{}, payroll.ErrRunExists
		}
	}
	r.ID = newID()
	repo.db.runs[r.ID] = r
	return r, nil
}

func (repo *payrollRepository) GetRun(_ context.Context, id string, _ ...core.DBExecutor) (payroll.Run, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.runs[id]; ok {
		return r, nil
	}
	return payroll.Run{}, payroll.ErrRunNotFound
}

func (repo *payrollRepository) GetRunByPeriod(_ context.Context, period string, _ ...core.DBExecutor) (payroll.Run, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, r := range repo.db.runs {
		if r.Period == period {
			return r, nil
		}
	}
	return payroll.Run{}, payroll.ErrRunNotFound
}

func (repo *payrollRepository) QueryRuns(_ context.Context, _ ...core.DBExecutor) ([]payroll.Run, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	runs := make([]payroll.Run, 0, len(repo.db.runs))
	for _, r := range repo.db.runs {
		runs = append(runs, r)
	}
	order(runs, nil, nil, func(a, b payroll.Run) int { return -compareStrings(a.Period, b.Period) })
	return runs, nil
}

func (repo *payrollRepository) UpdateRun(_ context.Context, r payroll.Run, _ ...core.DBExecutor) (payroll.Run, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	current, ok := repo.db.runs[r.ID]
	if !ok {
		return payroll.Run{}, payroll.ErrRunNotFound
	}
	r.Period = current.Period
	r.CreatedBy = current.CreatedBy
	r.CreatedAt = current.CreatedAt
	repo.db.runs[r.ID] = r
	return r, nil
}

func (repo *payrollRepository) CreatePayslip(_ context.Context, p payroll.Payslip, _ ...core.DBExecutor) (payroll.Payslip, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p.ID = newID()
	repo.db.payslips[p.ID] = p
	return p, nil
}

func (repo *payrollRepository) QueryPayslips(_ context.Context, filter payroll.PayslipFilter, _ ...core.DBExecutor) ([]payroll.Payslip, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	slips := make([]payroll.Payslip, 0)
	for _, p := range repo.db.payslips {
		if filter.RunID != "" && p.RunID != filter.RunID {
			continue
		}
		if filter.StaffID != "" && p.StaffID != filter.StaffID {
			continue
		}
		slips = append(slips, p)
	}
	order(slips, nil, nil, func(a, b payroll.Payslip) int {
		if c := -compareStrings(a.Period, b.Period); c != 0 {
			return c
		}
		return compareTimes(a.CreatedAt, b.CreatedAt)
	})
	return slips, nil
}
