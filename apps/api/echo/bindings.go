package echoapi

import (
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/class"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// paramID parses the int64 path param name. Malformed ids are reported as not found.
func paramID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// paramPair reads the (class, instructor) pair from the path.
func paramPair(ctx echo.Context) (class.Pair, error) {
	classID, err := paramID(ctx, "id")
	if err != nil {
		return class.Pair{}, err
	}
	instructorID := strings.TrimSpace(ctx.Param("instructorId"))
	if instructorID == "" {
		return class.Pair{}, errHttpNotFound
	}
	return class.Pair{ClassID: classID, InstructorID: instructorID}, nil
}

// bindUploads reads every file sent under field of a multipart form.
func bindUploads(ctx echo.Context, field string) ([]class.Upload, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: field, Error: "invalid multipart form"})
	}
	files := form.File[field]
	uploads := make([]class.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrap(err, "opening "+fh.Filename)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, errors.Wrap(err, "reading "+fh.Filename)
		}
		uploads = append(uploads, class.Upload{Filename: fh.Filename, Data: data})
	}
	return uploads, nil
}
