package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/services/ratelimit"
)

// adminMiddleware lets admins through; when `roles` are given, the admin must hold one of them exactly.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsAdmin && contextHasAnyRole(claims, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// roleMiddleware lets through admins and users holding a role starting with one of `prefixes`.
func roleMiddleware(prefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsAdmin || claims.HasAnyRole(prefixes...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func contextHasAnyRole(claims Claims, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if core.StringInSlice(role, claims.Roles) {
			return true
		}
	}
	return false
}

// rateLimitMiddleware limits the hits per client IP & route.
// Hits are let through when the limiter fails.
func rateLimitMiddleware(limiter ratelimit.Limiter, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := ctx.RealIP() + ":" + ctx.Path()
			res, err := limiter.Allow(ctx.Request().Context(), key)
			if err != nil {
				logger.Error("rate limiting", errors.Wrap(err, "rate limiting"))
				return next(ctx)
			}

			h := ctx.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(res.ResetIn.Seconds())+1))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

const contextObjectKey = "object"

var errObjNotFoundInCtx = errors.New("object not found in echo.Context")

