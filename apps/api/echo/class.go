package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core/class"
)

type classApi struct {
	svc class.Service
}

func registerClassAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc class.Service) {
	api := classApi{svc: svc}

	cg := g.Group("/classes", authed...)
	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.GET("/:id", api.retrieve)
	cg.DELETE("/:id", api.destroy)

	cg.GET("/:id/instructors", api.queryInstructors)
	cg.PUT("/:id/instructors", api.setInstructors)
	cg.POST("/:id/assign", api.assign)
	cg.POST("/:id/unassign", api.unassign)
	cg.POST("/:id/leave", api.leave)

	g.GET("/me/classes", api.myClasses, authed...)
}

func (api *classApi) create(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data class.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}

	c, err := api.svc.CreateClass(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *classApi) query(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	classes, err := api.svc.ListClasses(ctx.Request().Context(), sess)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	c, err := api.svc.GetClass(ctx.Request().Context(), sess, id)
	if err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classApi) destroy(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteClass(ctx.Request().Context(), sess, id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) queryInstructors(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	instructors, err := api.svc.ListAssignedInstructors(ctx.Request().Context(), sess, id)
	if err != nil {
		return errors.Wrap(err, "querying assigned instructors")
	}
	return ctx.JSON(http.StatusOK, instructors)
}

func (api *classApi) assign(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data class.AssignRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}

	if err = api.svc.Assign(ctx.Request().Context(), sess, id, data.InstructorIDs); err != nil {
		return errors.Wrap(err, "assigning instructors")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) unassign(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data class.AssignRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}

	removed, err := api.svc.Unassign(ctx.Request().Context(), sess, id, data.InstructorIDs)
	if err != nil {
		return errors.Wrap(err, "unassigning instructors")
	}
	return ctx.JSON(http.StatusOK, AssignmentChanges{Added: []string{}, Removed: removed})
}

func (api *classApi) setInstructors(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var data class.AssignRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}

	added, removed, err := api.svc.SetAssignments(ctx.Request().Context(), sess, id, data.InstructorIDs)
	if err != nil {
		return errors.Wrap(err, "setting assignments")
	}
	return ctx.JSON(http.StatusOK, AssignmentChanges{Added: added, Removed: removed})
}

func (api *classApi) leave(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.Leave(ctx.Request().Context(), sess, id); err != nil {
		return errors.Wrap(err, "leaving class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) myClasses(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	classes, err := api.svc.ListAssignedClasses(ctx.Request().Context(), sess, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "querying assigned classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

type AssignmentChanges struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}
