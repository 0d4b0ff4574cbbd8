package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/security"
	"github.com/trezcool/shule/core/user"
)

type gateApi struct {
	svc      *security.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerGateAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := gateApi{svc: deps.GateSvc, auth: auth, validate: deps.Validate}

	vg := g.Group("/gate/visitors", jwt, roleMiddleware(user.RoleSecurity))
	vg.GET("", api.query)
	vg.POST("", api.checkIn)
	vg.GET("/:id", api.retrieve)
	vg.POST("/:id/check-out", api.checkOut)
}

func (api *gateApi) checkIn(ctx echo.Context) error {
	var data security.CheckIn
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckIn")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	vl, err := api.svc.CheckIn(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, vl)
}

func (api *gateApi) checkOut(ctx echo.Context) error {
	vl, err := api.svc.CheckOut(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, vl)
}

func (api *gateApi) query(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := security.Filter{From: q.Time("from"), To: q.Time("to")}
	if active := q.Bool("active"); active != nil {
		filter.ActiveOnly = *active
	}
	if err := q.Err(); err != nil {
		return err
	}
	logs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying visitors")
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *gateApi) retrieve(ctx echo.Context) error {
	vl, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, vl)
}
