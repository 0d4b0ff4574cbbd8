package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/finance"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type financeApi struct {
	svc      *finance.Service
	students *student.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerFinanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := financeApi{svc: deps.FinanceSvc, students: deps.StudentSvc, auth: auth, validate: deps.Validate}
	fin := roleMiddleware(user.RoleFinance)

	fg := g.Group("/fees", jwt, fin)
	fg.GET("", api.queryFeeItems)
	fg.POST("", api.createFeeItem)
	fg.DELETE("/:id", api.destroyFeeItem)

	ig := g.Group("/invoices", jwt)
	ig.GET("", api.queryInvoices, roleMiddleware(user.RoleFinance, user.RoleParent, user.RoleStudent))
	ig.POST("/generate", api.generateInvoices, fin)
	ig.GET("/totals", api.totals, fin)
	ig.GET("/:id", api.retrieveInvoice)
	ig.GET("/:id/payments", api.payments)
	ig.POST("/:id/pay", api.payInvoice, roleMiddleware(user.RoleParent))
}

// Fee items

func (api *financeApi) createFeeItem(ctx echo.Context) error {
	var data finance.NewFeeItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFeeItem")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	item, err := api.svc.CreateFeeItem(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *financeApi) queryFeeItems(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := finance.FeeItemFilter{
		ClassLevel: q.Int("class_level"),
		Term:       q.String("term"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	items, err := api.svc.QueryFeeItems(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying fee items")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *financeApi) destroyFeeItem(ctx echo.Context) error {
	if err := api.svc.DeleteFeeItem(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Invoices

func (api *financeApi) generateInvoices(ctx echo.Context) error {
	var data finance.GenerateInvoices
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateInvoices")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	invoices, err := api.svc.GenerateInvoices(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, invoices)
}

// queryInvoices lists invoices; parents only see those of their wards and students their own.
func (api *financeApi) queryInvoices(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := finance.InvoiceFilter{
		StudentID: q.String("student_id"),
		Term:      q.String("term"),
		Status:    q.String("status"),
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if !usr.IsAdmin() && !usr.HasAnyRole(user.RoleFinance) {
		ids, err := api.ownStudentIDs(ctx, usr)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ctx.JSON(http.StatusOK, []finance.Invoice{})
		}
		filter.StudentIDs = ids
	}

	invoices, err := api.svc.QueryInvoices(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying invoices")
	}
	return ctx.JSON(http.StatusOK, invoices)
}

// ownStudentIDs returns the IDs of the wards of a parent, or the ID of a student.
func (api *financeApi) ownStudentIDs(ctx echo.Context, usr user.User) ([]string, error) {
	var ids []string
	if usr.IsStudent() {
		if p, err := api.students.GetByUserID(ctx.Request().Context(), usr.ID); err == nil {
			ids = append(ids, p.ID)
		} else if errors.Cause(err) != student.ErrNotFound {
			return nil, errors.Wrap(err, "finding student profile")
		}
	}
	if usr.IsParent() {
		parent, err := api.students.GetParentByUserID(ctx.Request().Context(), usr.ID)
		if err != nil {
			if errors.Cause(err) == student.ErrParentNotFound {
				return ids, nil
			}
			return nil, errors.Wrap(err, "finding parent profile")
		}
		wards, err := api.students.Wards(ctx.Request().Context(), parent.ID)
		if err != nil {
			return nil, errors.Wrap(err, "querying wards")
		}
		for _, w := range wards {
			ids = append(ids, w.ID)
		}
	}
	return ids, nil
}

// visibleInvoice loads the invoice `id` when the context user may see its student.
func (api *financeApi) visibleInvoice(ctx echo.Context) (finance.Invoice, error) {
	inv, err := api.svc.GetInvoice(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return finance.Invoice{}, err
	}
	if _, _, err = visibleStudent(ctx, api.auth, api.students, inv.StudentID); err != nil {
		return finance.Invoice{}, err
	}
	return inv, nil
}

func (api *financeApi) retrieveInvoice(ctx echo.Context) error {
	inv, err := api.visibleInvoice(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *financeApi) payments(ctx echo.Context) error {
	inv, err := api.visibleInvoice(ctx)
	if err != nil {
		return err
	}
	payments, err := api.svc.Payments(ctx.Request().Context(), inv.ID)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *financeApi) payInvoice(ctx echo.Context) error {
	var data finance.PayInvoice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PayInvoice")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	inv, err := api.svc.PayInvoice(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, inv)
}

func (api *financeApi) totals(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := finance.InvoiceFilter{
		StudentID: q.String("student_id"),
		Term:      q.String("term"),
		Status:    q.String("status"),
	}
	totals, err := api.svc.Totals(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "summing invoices")
	}
	return ctx.JSON(http.StatusOK, totals)
}
