package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core/class"
	"github.com/trezcool/propdesk/core/policy"
)

type reportApi struct {
	svc class.Service
}

func registerReportAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc class.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/reports", authed...)
	rg.GET("/tracking", api.tracking, adminMiddleware(policy.ViewTracking))
	rg.GET("/assignments", api.assignments)
}

func (api *reportApi) tracking(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	filter := new(class.TrackingFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to TrackingFilter")
	}

	rows, err := api.svc.Tracking(ctx.Request().Context(), sess, *filter)
	if err != nil {
		return errors.Wrap(err, "building tracking report")
	}
	return ctx.JSON(http.StatusOK, rows)
}

// assignments lists assignment rows filtered by class_id and/or instructor_id.
func (api *reportApi) assignments(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	filter := new(class.AssignmentFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []class.AssignmentRow{})
	}

	rows, err := api.svc.Lookup(ctx.Request().Context(), sess, *filter)
	if err != nil {
		return errors.Wrap(err, "looking up assignments")
	}
	return ctx.JSON(http.StatusOK, rows)
}
