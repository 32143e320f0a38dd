package echoapi

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/propdesk/core/policy"
)

// adminMiddleware lets through sessions allowed to perform every action given.
func adminMiddleware(actions ...policy.Action) echo.MiddlewareFunc {
	if len(actions) == 0 {
		actions = []policy.Action{policy.ManageUsers}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return err
			}
			for _, action := range actions {
				if !sess.Can(action, "", false) {
					return errHttpForbidden
				}
			}
			return next(ctx)
		}
	}
}

// timeoutMiddleware bounds the request context; store and object-storage calls give up once it expires.
func timeoutMiddleware(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if timeout <= 0 {
				return next(ctx)
			}
			reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), timeout)
			defer cancel()
			ctx.SetRequest(ctx.Request().WithContext(reqCtx))
			return next(ctx)
		}
	}
}
