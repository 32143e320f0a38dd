package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/class"
)

var uploadBodyLimit = "32M"

type contentApi struct {
	svc class.Service
}

func registerContentAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc class.Service) {
	api := contentApi{svc: svc}

	pg := g.Group("/classes/:id/instructors/:instructorId", authed...)
	pg.GET("", api.retrieve)
	pg.POST("/props", api.addProp)
	pg.DELETE("/props/:cpId", api.removeProp)
	pg.POST("/images", api.uploadImages, middleware.BodyLimit(uploadBodyLimit))
	pg.DELETE("/images/:imageId", api.deleteImage)
	pg.PUT("/note", api.saveNote)
	pg.POST("/save", api.saveAll, middleware.BodyLimit(uploadBodyLimit))
}

func (api *contentApi) retrieve(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	pair, err := paramPair(ctx)
	if err != nil {
		return err
	}
	content, err := api.svc.GetContent(ctx.Request().Context(), sess, pair)
	if err != nil {
		return errors.Wrap(err, "getting content")
	}
	return ctx.JSON(http.StatusOK, content)
}

func (api *contentApi) addProp(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	pair, err := paramPair(ctx)
	if err != nil {
		return err
	}
	var data class.AddClassProp
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddClassProp")
	}

	cp, err := api.svc.AddProp(ctx.Request().Context(), sess, pair, data)
	if err != nil {
		return errors.Wrap(err, "adding prop")
	}
	return ctx.JSON(http.StatusCreated, cp)
}

func (api *contentApi) removeProp(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	pair, err := paramPair(ctx)
	if err != nil {
		return err
	}
	cpID, err := paramID(ctx, "cpId")
	if err != nil {
		return err
	}
	if err = api.svc.RemoveProp(ctx.Request().Context(), sess, pair, cpID); err != nil {
		return errors.Wrap(err, "removing prop")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// uploadImages stores each file sent as "images" and returns the created rows.
func (api *contentApi) uploadImages(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	pair, err := paramPair(ctx)
	if err != nil {
		return err
	}
	uploads, err := bindUploads(ctx, "images")
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		return core.NewValidationError(class.ErrEmptyFile, core.FieldError{Field: "images", Error: "no image sent"})
	}

	images := make([]class.Image, 0, len(uploads))
	for _, upload := range uploads {
		img, err := api.svc.UploadImage(ctx.Request().Context(), sess, pair, upload)
		if err != nil {
			return errors.Wrap(err, "uploading image")
		}
		images = append(images, img)
	}
	return ctx.JSON(http.StatusCreated, images)
}

func (api *contentApi) deleteImage(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	pair, err := paramPair(ctx)
	if err != nil {
		return err
	}
	imageID, err := paramID(ctx, "imageId")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteImage(ctx.Request().Context(), sess, pair, imageID); err != nil {
		return errors.Wrap(err, "deleting image")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *contentApi) saveNote(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	pair, err := paramPair(ctx)
	if err != nil {
		return err
	}
	var data class.SaveNote
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SaveNote")
	}

	note, err := api.svc.SaveNote(ctx.Request().Context(), sess, pair, data)
	if err != nil {
		return errors.Wrap(err, "saving note")
	}
	return ctx.JSON(http.StatusOK, note)
}

// saveAll takes a multipart form: pending files under "images" and an optional "note" field.
func (api *contentApi) saveAll(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	pair, err := paramPair(ctx)
	if err != nil {
		return err
	}
	uploads, err := bindUploads(ctx, "images")
	if err != nil {
		return err
	}
	var note *class.SaveNote
	if form, _ := ctx.MultipartForm(); form != nil {
		if vals, ok := form.Value["note"]; ok && len(vals) > 0 {
			note = &class.SaveNote{Note: vals[0]}
		}
	}

	content, err := api.svc.SaveAll(ctx.Request().Context(), sess, pair, uploads, note)
	if err != nil {
		return errors.Wrap(err, "saving content")
	}
	return ctx.JSON(http.StatusOK, content)
}
