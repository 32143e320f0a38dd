package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core/prop"
)

type propApi struct {
	svc prop.Service
}

func registerPropAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc prop.Service) {
	api := propApi{svc: svc}

	pg := g.Group("/props", authed...)
	pg.GET("", api.query)
	pg.POST("", api.create)
	pg.PUT("/:id", api.rename)
	pg.GET("/:id/usage", api.usage)
	pg.DELETE("/:id", api.destroy)
}

func (api *propApi) query(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	props, err := api.svc.List(ctx.Request().Context(), sess)
	if err != nil {
		return errors.Wrap(err, "querying props")
	}
	if props == nil {
		props = []prop.Prop{}
	}
	return ctx.JSON(http.StatusOK, props)
}

func (api *propApi) create(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data prop.NewProp
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProp")
	}

	p, err := api.svc.Create(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating prop")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *propApi) rename(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data prop.NewProp
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProp")
	}

	p, err := api.svc.Rename(ctx.Request().Context(), sess, id, data)
	if err != nil {
		return errors.Wrap(err, "renaming prop")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *propApi) usage(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	count, err := api.svc.Usage(ctx.Request().Context(), sess, id)
	if err != nil {
		return errors.Wrap(err, "counting prop usage")
	}
	return ctx.JSON(http.StatusOK, PropUsage{ClassProps: count})
}

func (api *propApi) destroy(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	removed, err := api.svc.Delete(ctx.Request().Context(), sess, id)
	if err != nil {
		return errors.Wrap(err, "deleting prop")
	}
	return ctx.JSON(http.StatusOK, PropUsage{ClassProps: removed})
}

// PropUsage counts the class props referencing a prop.
type PropUsage struct {
	ClassProps int `json:"class_props"`
}
