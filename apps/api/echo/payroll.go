package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/payroll"
	"github.com/trezcool/shule/core/user"
)

type payrollApi struct {
	svc      *payroll.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerPayrollAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := payrollApi{svc: deps.PayrollSvc, auth: auth, validate: deps.Validate}
	hr := roleMiddleware(user.RoleHR)

	pg := g.Group("/payroll", jwt)
	pg.GET("/payslips/me", api.myPayslips, roleMiddleware(user.RoleHR, user.RoleFinance, user.RoleMedical, user.RoleSecurity, user.RoleTeacher))

	pg.GET("/salaries", api.querySalaries, hr)
	pg.GET("/salaries/:staff_id", api.retrieveSalary, hr)
	pg.PUT("/salaries/:staff_id", api.setSalary, hr)

	pg.GET("/runs", api.queryRuns, hr)
	pg.POST("/runs", api.generate, hr)
	pg.GET("/runs/:id", api.retrieveRun, hr)
	pg.GET("/runs/:id/payslips", api.runPayslips, hr)
	pg.POST("/runs/:id/approve", api.approve, adminMiddleware())
	pg.POST("/runs/:id/paid", api.markPaid, hr)
}

type GenerateRunResponse struct {
	Run      payroll.Run       `json:"run"`
	Payslips []payroll.Payslip `json:"payslips"`
}

// Salaries

func (api *payrollApi) querySalaries(ctx echo.Context) error {
	salaries, err := api.svc.QuerySalaries(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying salaries")
	}
	return ctx.JSON(http.StatusOK, salaries)
}

func (api *payrollApi) retrieveSalary(ctx echo.Context) error {
	s, err := api.svc.GetSalary(ctx.Request().Context(), ctx.Param("staff_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *payrollApi) setSalary(ctx echo.Context) error {
	var data payroll.SetSalary
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetSalary")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	s, err := api.svc.SetSalary(ctx.Request().Context(), ctx.Param("staff_id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

// Runs

func (api *payrollApi) generate(ctx echo.Context) error {
	var data payroll.GenerateRun
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRun")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	run, slips, err := api.svc.Generate(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, GenerateRunResponse{Run: run, Payslips: slips})
}

func (api *payrollApi) queryRuns(ctx echo.Context) error {
	runs, err := api.svc.QueryRuns(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying payroll runs")
	}
	return ctx.JSON(http.StatusOK, runs)
}

func (api *payrollApi) retrieveRun(ctx echo.Context) error {
	run, err := api.svc.GetRun(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, run)
}

func (api *payrollApi) runPayslips(ctx echo.Context) error {
	run, err := api.svc.GetRun(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	slips, err := api.svc.Payslips(ctx.Request().Context(), payroll.PayslipFilter{RunID: run.ID})
	if err != nil {
		return errors.Wrap(err, "querying payslips")
	}
	return ctx.JSON(http.StatusOK, slips)
}

func (api *payrollApi) approve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	run, err := api.svc.Approve(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, run)
}

func (api *payrollApi) markPaid(ctx echo.Context) error {
	run, err := api.svc.MarkPaid(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, run)
}

func (api *payrollApi) myPayslips(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	slips, err := api.svc.Payslips(ctx.Request().Context(), payroll.PayslipFilter{StaffID: usr.ID})
	if err != nil {
		return errors.Wrap(err, "querying payslips")
	}
	return ctx.JSON(http.StatusOK, slips)
}
