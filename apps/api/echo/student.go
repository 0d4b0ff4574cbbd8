package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type studentApi struct {
	svc      *student.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := studentApi{svc: deps.StudentSvc, auth: auth, validate: deps.Validate}

	sg := g.Group("/students", jwt)
	sg.POST("/admit", api.admit, adminMiddleware())
	sg.GET("", api.query, roleMiddleware(studentViewerRoles...))
	sg.GET("/me", api.me, roleMiddleware(user.RoleStudent))
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update, adminMiddleware())
	sg.POST("/:id/transfer", api.transfer, adminMiddleware())
	sg.POST("/:id/withdraw", api.withdraw, adminMiddleware())
	sg.GET("/:id/parents", api.parents)

	pg := g.Group("/parents", jwt)
	pg.GET("/me", api.parentMe, roleMiddleware(user.RoleParent))
	pg.GET("/me/wards", api.myWards, roleMiddleware(user.RoleParent))
	pg.GET("/:id", api.retrieveParent, adminMiddleware())
	pg.PUT("/:id", api.updateParent, adminMiddleware())
	pg.GET("/:id/wards", api.wards, adminMiddleware())
	pg.POST("/:id/wards", api.linkWard, adminMiddleware())
	pg.DELETE("/:id/wards/:student_id", api.unlinkWard, adminMiddleware())
}

type TransferRequest struct {
	ClassID string `json:"class_id" validate:"required,uuid"`
}

func (api *studentApi) admit(ctx echo.Context) error {
	var data student.AdmissionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdmissionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.Admit(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *studentApi) query(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := student.QueryFilter{
		ClassID: q.String("class_id"),
		Status:  q.String("status"),
		Search:  q.String("search"),
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) me(ctx echo.Context) error {
	p, err := contextStudent(ctx, api.auth, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	p, _, err := visibleStudent(ctx, api.auth, api.svc, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	p, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *studentApi) transfer(ctx echo.Context) error {
	var data TransferRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TransferRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	p, err := api.svc.Transfer(ctx.Request().Context(), ctx.Param("id"), data.ClassID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *studentApi) withdraw(ctx echo.Context) error {
	p, err := api.svc.Withdraw(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *studentApi) parents(ctx echo.Context) error {
	p, _, err := visibleStudent(ctx, api.auth, api.svc, ctx.Param("id"))
	if err != nil {
		return err
	}
	parents, err := api.svc.Parents(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "querying parents")
	}
	return ctx.JSON(http.StatusOK, parents)
}

// Parents

func (api *studentApi) parentMe(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	parent, err := api.svc.GetParentByUserID(ctx.Request().Context(), usr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, parent)
}

func (api *studentApi) myWards(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	parent, err := api.svc.GetParentByUserID(ctx.Request().Context(), usr.ID)
	if err != nil {
		return err
	}
	wards, err := api.svc.Wards(ctx.Request().Context(), parent.ID)
	if err != nil {
		return errors.Wrap(err, "querying wards")
	}
	return ctx.JSON(http.StatusOK, wards)
}

func (api *studentApi) retrieveParent(ctx echo.Context) error {
	parent, err := api.svc.GetParent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, parent)
}

func (api *studentApi) updateParent(ctx echo.Context) error {
	var data student.UpdateParent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateParent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	parent, err := api.svc.UpdateParent(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, parent)
}

func (api *studentApi) wards(ctx echo.Context) error {
	parent, err := api.svc.GetParent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	wards, err := api.svc.Wards(ctx.Request().Context(), parent.ID)
	if err != nil {
		return errors.Wrap(err, "querying wards")
	}
	return ctx.JSON(http.StatusOK, wards)
}

func (api *studentApi) linkWard(ctx echo.Context) error {
	var data student.LinkWard
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkWard")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ward, err := api.svc.LinkWard(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, ward)
}

func (api *studentApi) unlinkWard(ctx echo.Context) error {
	if err := api.svc.UnlinkWard(ctx.Request().Context(), ctx.Param("id"), ctx.Param("student_id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
