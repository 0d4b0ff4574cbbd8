package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type attendanceApi struct {
	svc      *attendance.Service
	students *student.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := attendanceApi{svc: deps.AttendanceSvc, students: deps.StudentSvc, auth: auth, validate: deps.Validate}

	g.POST("/classes/:id/attendance", api.mark, jwt, roleMiddleware(user.RoleTeacher))
	g.GET("/classes/:id/attendance", api.register, jwt, roleMiddleware(user.RoleTeacher))
	g.GET("/students/:id/attendance", api.summary, jwt)
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.MarkClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	records, err := api.svc.MarkClass(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) register(ctx echo.Context) error {
	q := newQuery(ctx)
	date := q.Date("date")
	if err := q.Err(); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	ok, err := api.svc.CanMark(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "checking class teacher")
	}
	if !ok {
		return errHttpForbidden
	}
	records, err := api.svc.ClassRegister(ctx.Request().Context(), ctx.Param("id"), date)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	st, _, err := visibleStudent(ctx, api.auth, api.students, ctx.Param("id"))
	if err != nil {
		return err
	}
	q := newQuery(ctx)
	from, to := q.Time("from"), q.Time("to")
	if err = q.Err(); err != nil {
		return err
	}
	summary, err := api.svc.StudentSummary(ctx.Request().Context(), st.ID, from, to)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, summary)
}
