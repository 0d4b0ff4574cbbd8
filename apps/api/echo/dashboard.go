package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/dashboard"
)

type dashboardApi struct {
	svc  *dashboard.Service
	auth *authenticator
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := dashboardApi{svc: deps.DashboardSvc, auth: auth}
	g.GET("/dashboard", api.retrieve, jwt)
}

// retrieve returns the stats of every dashboard the context user has access to.
func (api *dashboardApi) retrieve(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	dash, err := api.svc.For(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "computing dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}
