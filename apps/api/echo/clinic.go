package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/clinic"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type clinicApi struct {
	svc      *clinic.Service
	students *student.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerClinicAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := clinicApi{svc: deps.ClinicSvc, students: deps.StudentSvc, auth: auth, validate: deps.Validate}

	cg := g.Group("/clinic/visits", jwt, roleMiddleware(user.RoleMedical))
	cg.GET("", api.query)
	cg.POST("", api.record)
	cg.GET("/:id", api.retrieve)

	g.GET("/students/:id/visits", api.studentVisits, jwt)
}

func (api *clinicApi) record(ctx echo.Context) error {
	var data clinic.NewVisit
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewVisit")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	visit, err := api.svc.RecordVisit(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, visit)
}

func (api *clinicApi) query(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := clinic.Filter{
		StudentID: q.String("student_id"),
		From:      q.Time("from"),
		To:        q.Time("to"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	visits, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying visits")
	}
	return ctx.JSON(http.StatusOK, visits)
}

func (api *clinicApi) retrieve(ctx echo.Context) error {
	visit, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, visit)
}

// studentVisits lists the clinic visits of a student, for whoever can see that student.
func (api *clinicApi) studentVisits(ctx echo.Context) error {
	st, _, err := visibleStudent(ctx, api.auth, api.students, ctx.Param("id"))
	if err != nil {
		return err
	}
	q := newQuery(ctx)
	filter := clinic.Filter{StudentID: st.ID, From: q.Time("from"), To: q.Time("to")}
	if err = q.Err(); err != nil {
		return err
	}
	visits, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying visits")
	}
	return ctx.JSON(http.StatusOK, visits)
}
