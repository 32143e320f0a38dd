package class

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/propdesk/core"
)

type Class struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name string `json:"name" validate:"required,notblank,max=128"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// CreatedClass is returned by Service.CreateClass.
// OfferSelfAssign tells instructors they may follow up with a self-assignment;
// nothing is assigned until they do.
type CreatedClass struct {
	Class
	OfferSelfAssign bool `json:"offer_self_assign"`
}

// Assignment is the edge between one instructor and one class.
// There is at most one per (InstructorID, ClassID).
type Assignment struct {
	InstructorID string    `json:"instructor_id"`
	ClassID      int64     `json:"class_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Pair scopes every prop, image and note: content belongs to a (class, instructor) combination.
type Pair struct {
	ClassID      int64  `json:"class_id"`
	InstructorID string `json:"instructor_id"`
}

type Instructor struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

type ClassProp struct {
	ID           int64  `json:"id"`
	ClassID      int64  `json:"class_id"`
	InstructorID string `json:"instructor_id"`
	PropID       int64  `json:"prop_id"`
	PropName     string `json:"prop_name"`
}

type Image struct {
	ID           int64     `json:"id"`
	ClassID      int64     `json:"class_id"`
	InstructorID string    `json:"instructor_id"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}

// Note is unique per Pair.
type Note struct {
	ID           int64     `json:"id"`
	ClassID      int64     `json:"class_id"`
	InstructorID string    `json:"instructor_id"`
	Note         string    `json:"note"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Content struct {
	Props  []ClassProp `json:"props"`
	Images []Image     `json:"images"`
	Note   string      `json:"note"`
}

func (c Content) Empty() bool {
	return len(c.Props) == 0 && len(c.Images) == 0 && c.Note == ""
}

// Upload is a pending image file.
type Upload struct {
	Filename string
	Data     []byte
}

type AddClassProp struct {
	PropID int64 `json:"prop_id" validate:"required,gt=0"`
}

type SaveNote struct {
	Note string `json:"note" validate:"max=4000"`
}

type AssignRequest struct {
	InstructorIDs []string `json:"instructor_ids" validate:"required,min=1"`
}

// Validate drops blank and duplicate ids, then requires at least one left.
func (ar *AssignRequest) Validate(validate *validator.Validate) error {
	ar.InstructorIDs = cleanIDs(ar.InstructorIDs)
	return validate.Struct(ar)
}

// AssignmentFilter narrows QueryAssignmentRows. Zero values match everything.
type AssignmentFilter struct {
	ClassID      int64  `query:"class_id"`
	InstructorID string `query:"instructor_id"`
}

func (af AssignmentFilter) IsEmpty() bool {
	return af.ClassID == 0 && af.InstructorID == ""
}

// AssignmentRow is an assignment joined with class and instructor names.
type AssignmentRow struct {
	ClassID        int64  `json:"class_id"`
	ClassName      string `json:"class_name"`
	InstructorID   string `json:"instructor_id"`
	InstructorName string `json:"instructor_name"`
}

type TrackingSort string

const (
	SortByName    TrackingSort = "name"
	SortByTotal   TrackingSort = "total"
	SortByUpdated TrackingSort = "updated"
)

type TrackingFilter struct {
	Search string       `query:"q"`
	Sort   TrackingSort `query:"sort"`
	Desc   bool         `query:"desc"`
}

func (tf *TrackingFilter) Clean() {
	tf.Search = core.CleanString(tf.Search, true /* lower */)
	switch tf.Sort {
	case SortByName, SortByTotal, SortByUpdated:
	default:
		tf.Sort = SortByName
	}
}

// TrackingRow summarizes one instructor: assigned classes, classes with any content,
// and the names of those still without content.
type TrackingRow struct {
	InstructorID string   `json:"instructor_id"`
	Name         string   `json:"name"`
	Total        int      `json:"total"`
	Updated      int      `json:"updated"`
	IdleClasses  []string `json:"idle_classes"`
}
