package payroll

import (
	"context"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	// errors
	ErrRunNotFound       = core.NewNotFoundError("payroll run not found")
	ErrSalaryNotFound    = core.NewNotFoundError("salary structure not found")
	ErrRunExists         = core.NewConflictError("a payroll run already exists for this period")
	ErrInvalidTransition = core.NewConflictError("invalid payroll run status transition")
	ErrNotStaff          = errors.New("user is not an active staff member")
	ErrNoPayslips        = errors.New("no active staff member has a salary structure")
)

type (
	Repository interface {
		// UpsertSalary creates the salary structure of the staff member or replaces the existing one.
		UpsertSalary(ctx context.Context, s SalaryStructure, exec ...core.DBExecutor) (SalaryStructure, error)
		GetSalary(ctx context.Context, staffID string, exec ...core.DBExecutor) (SalaryStructure, error)
		QuerySalaries(ctx context.Context, exec ...core.DBExecutor) ([]SalaryStructure, error)

		// CreateRun fails with ErrRunExists when a run exists for the period.
		CreateRun(ctx context.Context, r Run, exec ...core.DBExecutor) (Run, error)
		GetRun(ctx context.Context, id string, exec ...core.DBExecutor) (Run, error)
		GetRunByPeriod(ctx context.Context, period string, exec ...core.DBExecutor) (Run, error)
		// QueryRuns lists runs, latest period first.
		QueryRuns(ctx context.Context, exec ...core.DBExecutor) ([]Run, error)
		UpdateRun(ctx context.Context, r Run, exec ...core.DBExecutor) (Run, error)

		CreatePayslip(ctx context.Context, p Payslip, exec ...core.DBExecutor) (Payslip, error)
		QueryPayslips(ctx context.Context, filter PayslipFilter, exec ...core.DBExecutor) ([]Payslip, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo    Repository
		tx      core.TxRunner
		users   UserGetter
		mailSvc core.EmailService
		logger  core.Logger
		rates   Rates
		nowFunc func() time.Time
		curr    string
	}
)

func NewService(
	repo Repository,
	tx core.TxRunner,
	users UserGetter,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:    repo,
		tx:      tx,
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
		rates:   Rates{Tax: conf.Payroll.TaxRate, Pension: conf.Payroll.PensionRate},
		nowFunc: func() time.Time { return time.Now().UTC() },
		curr:    conf.Currency,
	}
}

func (svc *Service) activeStaff(ctx context.Context, id string) (user.User, error) {
	usr, err := svc.users.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, ErrNotStaff
		}
		return user.User{}, errors.Wrap(err, "finding staff")
	}
	if !usr.Active() || !usr.IsStaff() {
		return user.User{}, ErrNotStaff
	}
	return usr, nil
}

// SetSalary sets the salary structure of a staff member. `ss` is expected to be validated.
func (svc *Service) SetSalary(ctx context.Context, staffID string, ss SetSalary) (SalaryStructure, error) {
	if _, err := svc.activeStaff(ctx, staffID); err != nil {
		if errors.Cause(err) == ErrNotStaff {
			return SalaryStructure{}, core.NewFieldValidationError("staff_id", err)
		}
		return SalaryStructure{}, err
	}
	now := svc.nowFunc()
	return svc.repo.UpsertSalary(ctx, SalaryStructure{
		StaffID:       staffID,
		Basic:         ss.Basic,
		Allowances:    ss.Allowances,
		Deductions:    ss.Deductions,
		BankName:      ss.BankName,
		AccountNumber: ss.AccountNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (svc *Service) GetSalary(ctx context.Context, staffID string) (SalaryStructure, error) {
	return svc.repo.GetSalary(ctx, staffID)
}

func (svc *Service) QuerySalaries(ctx context.Context) ([]SalaryStructure, error) {
	return svc.repo.QuerySalaries(ctx)
}

// Generate creates the draft run of the period with a payslip per active staff member having a
// salary structure. There is at most one run per period. `gr` is expected to be validated.
func (svc *Service) Generate(ctx context.Context, creator user.User, gr GenerateRun) (Run, []Payslip, error) {
	if _, err := svc.repo.GetRunByPeriod(ctx, gr.Period); err == nil {
		return Run{}, nil, ErrRunExists
	} else if errors.Cause(err) != ErrRunNotFound {
		return Run{}, nil, errors.Wrap(err, "finding run")
	}

	salaries, err := svc.repo.QuerySalaries(ctx)
	if err != nil {
		return Run{}, nil, errors.Wrap(err, "querying salaries")
	}
	slips := make([]Payslip, 0, len(salaries))
	for _, s := range salaries {
		if _, err = svc.activeStaff(ctx, s.StaffID); err != nil {
			if errors.Cause(err) == ErrNotStaff {
				continue
			}
			return Run{}, nil, err
		}
		slips = append(slips, Compute(s, svc.rates))
	}
	if len(slips) == 0 {
		return Run{}, nil, core.NewFieldValidationError("period", ErrNoPayslips)
	}

	var run Run
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		now := svc.nowFunc()
		run = Run{
			Period:    gr.Period,
			Status:    StatusDraft,
			CreatedBy: creator.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, slip := range slips {
			run.TotalGross += slip.Gross
			run.TotalNet += slip.Net
		}
		var err error
		if run, err = svc.repo.CreateRun(ctx, run, exec); err != nil {
			return err
		}

		for i := range slips {
			slips[i].RunID = run.ID
			slips[i].Period = run.Period
			slips[i].CreatedAt = now
			if slips[i], err = svc.repo.CreatePayslip(ctx, slips[i], exec); err != nil {
				return errors.Wrapf(err, "creating payslip of %s", slips[i].StaffID)
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, nil, err
	}
	runsGenerated.Inc()
	return run, slips, nil
}

func (svc *Service) GetRun(ctx context.Context, id string) (Run, error) {
	return svc.repo.GetRun(ctx, id)
}

func (svc *Service) QueryRuns(ctx context.Context) ([]Run, error) {
	return svc.repo.QueryRuns(ctx)
}

// LatestRun returns the run of the latest period.
func (svc *Service) LatestRun(ctx context.Context) (Run, error) {
	runs, err := svc.repo.QueryRuns(ctx)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrRunNotFound
	}
	return runs[0], nil
}

func (svc *Service) Payslips(ctx context.Context, filter PayslipFilter) ([]Payslip, error) {
	return svc.repo.QueryPayslips(ctx, filter)
}

// Approve moves a draft run to approved.
func (svc *Service) Approve(ctx context.Context, approver user.User, id string) (Run, error) {
	run, err := svc.repo.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	if run.Status != StatusDraft {
		return Run{}, ErrInvalidTransition
	}
	now := svc.nowFunc()
	run.Status = StatusApproved
	run.ApprovedBy = approver.ID
	run.ApprovedAt = now
	run.UpdatedAt = now
	return svc.repo.UpdateRun(ctx, run)
}

// MarkPaid moves an approved run to paid, then emails their payslip to staff members.
func (svc *Service) MarkPaid(ctx context.Context, id string) (Run, error) {
	run, err := svc.repo.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	if run.Status != StatusApproved {
		return Run{}, ErrInvalidTransition
	}
	now := svc.nowFunc()
	run.Status = StatusPaid
	run.PaidAt = now
	run.UpdatedAt = now
	if run, err = svc.repo.UpdateRun(ctx, run); err != nil {
		return Run{}, err
	}
	runsPaid.Inc()
	netPaid.Add(float64(run.TotalNet))

	slips, err := svc.repo.QueryPayslips(ctx, PayslipFilter{RunID: run.ID})
	if err != nil {
		svc.logger.Error("querying payslips", err, run.ID)
		return run, nil
	}
	svc.sendPayslips(ctx, slips)
	return run, nil
}

func (svc *Service) sendPayslips(ctx context.Context, slips []Payslip) {
	messages := make([]*core.EmailMessage, 0, len(slips))
	for _, slip := range slips {
		staff, err := svc.users.GetByID(ctx, slip.StaffID)
		if err != nil {
			svc.logger.Error("finding staff", err, slip.StaffID)
			continue
		}
		if staff.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: staff.Name, Address: staff.Email}},
			Subject:      "Payslip " + slip.Period,
			TemplateName: "payslip",
			TemplateData: map[string]interface{}{
				"Name":       staff.Name,
				"Period":     slip.Period,
				"Gross":      core.FormatMoney(slip.Gross, svc.curr),
				"Pension":    core.FormatMoney(slip.Pension, svc.curr),
				"Tax":        core.FormatMoney(slip.Tax, svc.curr),
				"Deductions": core.FormatMoney(slip.Deductions, svc.curr),
				"Net":        core.FormatMoney(slip.Net, svc.curr),
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}
