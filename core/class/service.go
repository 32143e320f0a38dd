// Package class maintains classes, the instructor assignments on them,
// and the per-assignment content (props, images, note).
package class

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/prop"
	"github.com/trezcool/propdesk/core/session"
	"github.com/trezcool/propdesk/core/user"
)

var (
	// errors
	ErrNotFound             = errors.New("class not found")
	ErrContentNotFound      = errors.New("content not found")
	ErrNotAnInstructor      = errors.New("user is not an instructor")
	ErrInstructorUnassigned = errors.New("instructor is not assigned to this class")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateClass(ctx context.Context, c Class) (Class, error)
		GetClass(ctx context.Context, id int64) (Class, error)
		// QueryClasses returns all classes, newest first unless ordering says otherwise.
		QueryClasses(ctx context.Context, ordering []core.DBOrdering) ([]Class, error)
		// DeleteClassCascade deletes the class with all its assignments and content in one operation.
		DeleteClassCascade(ctx context.Context, id int64) error

		// UpsertAssignments inserts one assignment per instructor; existing pairs are left untouched.
		UpsertAssignments(ctx context.Context, classID int64, instructorIDs []string) error
		// DeleteAssignments atomically deletes, for every instructor, the pair's props, images
		// and note, then the assignment itself.
		DeleteAssignments(ctx context.Context, classID int64, instructorIDs []string) error
		// ReplaceAssignments runs DeleteAssignments(removed) and UpsertAssignments(added)
		// as one atomic operation.
		ReplaceAssignments(ctx context.Context, classID int64, removed, added []string) error
		IsAssigned(ctx context.Context, pair Pair) (bool, error)
		QueryAssignedClasses(ctx context.Context, instructorID string) ([]Class, error)
		// QueryAssignmentRows returns the assignments matching filter joined with class and instructor names.
		QueryAssignmentRows(ctx context.Context, filter AssignmentFilter) ([]AssignmentRow, error)
		// QueryActivePairs returns every pair having at least one prop, image or note.
		QueryActivePairs(ctx context.Context) ([]Pair, error)

		// AddClassProp is idempotent per (pair, prop): adding twice returns the existing row.
		AddClassProp(ctx context.Context, pair Pair, propID int64) (ClassProp, error)
		QueryClassProps(ctx context.Context, pair Pair) ([]ClassProp, error)
		DeleteClassProp(ctx context.Context, pair Pair, id int64) error

		QueryImages(ctx context.Context, pair Pair) ([]Image, error)
		DeleteImage(ctx context.Context, pair Pair, id int64) error

		GetNote(ctx context.Context, pair Pair) (Note, error)
		// SaveContent atomically inserts one image per url and, when note is not nil,
		// updates the pair's note or inserts it if none exists.
		SaveContent(ctx context.Context, pair Pair, urls []string, note *string) ([]Image, *Note, error)
	}

	// Users is the part of user.Repository the class service reads.
	Users interface {
		GetUser(ctx context.Context, filter user.GetFilter) (user.User, error)
		QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
	}

	// Props is the part of prop.Repository the class service reads.
	Props interface {
		GetProp(ctx context.Context, id int64) (prop.Prop, error)
	}

	Service interface {
		CreateClass(ctx context.Context, sess session.Session, nc NewClass) (CreatedClass, error)
		ListClasses(ctx context.Context, sess session.Session) ([]Class, error)
		GetClass(ctx context.Context, sess session.Session, id int64) (Class, error)
		DeleteClass(ctx context.Context, sess session.Session, id int64) error

		Assign(ctx context.Context, sess session.Session, classID int64, instructorIDs []string) error
		Unassign(ctx context.Context, sess session.Session, classID int64, instructorIDs []string) ([]string, error)
		SetAssignments(ctx context.Context, sess session.Session, classID int64, keep []string) (added, removed []string, err error)
		Leave(ctx context.Context, sess session.Session, classID int64) error
		ListAssignedClasses(ctx context.Context, sess session.Session, instructorID string) ([]Class, error)
		ListAssignedInstructors(ctx context.Context, sess session.Session, classID int64) ([]Instructor, error)

		GetContent(ctx context.Context, sess session.Session, pair Pair) (Content, error)
		AddProp(ctx context.Context, sess session.Session, pair Pair, data AddClassProp) (ClassProp, error)
		RemoveProp(ctx context.Context, sess session.Session, pair Pair, classPropID int64) error
		UploadImage(ctx context.Context, sess session.Session, pair Pair, upload Upload) (Image, error)
		DeleteImage(ctx context.Context, sess session.Session, pair Pair, imageID int64) error
		SaveNote(ctx context.Context, sess session.Session, pair Pair, data SaveNote) (Note, error)
		SaveAll(ctx context.Context, sess session.Session, pair Pair, uploads []Upload, note *SaveNote) (Content, error)

		Lookup(ctx context.Context, sess session.Session, filter AssignmentFilter) ([]AssignmentRow, error)
		Tracking(ctx context.Context, sess session.Session, filter TrackingFilter) ([]TrackingRow, error)
	}

	service struct {
		repo     Repository
		users    Users
		props    Props
		objects  core.ObjectStore
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	users Users,
	props Props,
	objects core.ObjectStore,
	validate *validator.Validate,
	logger core.Logger,
) Service {
	return &service{
		repo:     repo,
		users:    users,
		props:    props,
		objects:  objects,
		validate: validate,
		logger:   logger,
	}
}

// =========================================================================
// Classes

func (svc *service) CreateClass(ctx context.Context, sess session.Session, nc NewClass) (CreatedClass, error) {
	if !sess.Can(policy.CreateClass, "", false) {
		return CreatedClass{}, core.ErrForbidden
	}
	if err := nc.Validate(svc.validate); err != nil {
		return CreatedClass{}, err
	}
	c, err := svc.repo.CreateClass(ctx, Class{Name: nc.Name, CreatedAt: NowFunc().UTC()})
	if err != nil {
		return CreatedClass{}, err
	}
	return CreatedClass{
		Class:           c,
		OfferSelfAssign: sess.IsInstructor(),
	}, nil
}

func (svc *service) ListClasses(ctx context.Context, sess session.Session) ([]Class, error) {
	if !sess.Can(policy.ViewLookup, "", false) {
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryClasses(ctx, nil)
}

func (svc *service) GetClass(ctx context.Context, sess session.Session, id int64) (Class, error) {
	if !sess.Can(policy.ViewLookup, "", false) {
		return Class{}, core.ErrForbidden
	}
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) DeleteClass(ctx context.Context, sess session.Session, id int64) error {
	if !sess.Can(policy.DeleteClass, "", false) {
		return core.ErrForbidden
	}
	if _, err := svc.repo.GetClass(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteClassCascade(ctx, id)
}

// =========================================================================
// Assignments

// canAssign checks every id against the policy; instructors may only assign themselves.
func canAssign(sess session.Session, ids []string) bool {
	for _, id := range ids {
		action := policy.AssignOthers
		if id == sess.UserID {
			action = policy.AssignSelf
		}
		if !sess.Can(action, id, false) {
			return false
		}
	}
	return true
}

// canUnassign lets instructors leave a class themselves; removing anyone else needs admin rights.
func canUnassign(sess session.Session, ids []string) bool {
	for _, id := range ids {
		action := policy.UnassignInstructors
		if id == sess.UserID {
			action = policy.LeaveClass
		}
		if !sess.Can(action, id, true) {
			return false
		}
	}
	return true
}

func (svc *service) Assign(ctx context.Context, sess session.Session, classID int64, instructorIDs []string) error {
	data := AssignRequest{InstructorIDs: instructorIDs}
	if err := data.Validate(svc.validate); err != nil {
		return err
	}
	ids := data.InstructorIDs
	if !canAssign(sess, ids) {
		return core.ErrForbidden
	}

	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return err
	}
	if err := svc.checkInstructors(ctx, ids); err != nil {
		return err
	}
	return svc.repo.UpsertAssignments(ctx, classID, ids)
}

// checkInstructors fails with a validation error unless every id names an existing instructor.
func (svc *service) checkInstructors(ctx context.Context, ids []string) error {
	for _, id := range ids {
		usr, err := svc.users.GetUser(ctx, user.GetFilter{ID: id})
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "instructor_ids", Error: err.Error()})
			}
			return errors.Wrap(err, "finding instructor")
		}
		if !usr.IsInstructor() {
			return core.NewValidationError(
				ErrNotAnInstructor,
				core.FieldError{Field: "instructor_ids", Error: usr.Username + ": " + ErrNotAnInstructor.Error()},
			)
		}
	}
	return nil
}

// Unassign removes the given instructors from the class and purges their content.
// Ids that were not assigned are ignored; the removed ids are returned.
func (svc *service) Unassign(ctx context.Context, sess session.Session, classID int64, instructorIDs []string) ([]string, error) {
	data := AssignRequest{InstructorIDs: instructorIDs}
	if err := data.Validate(svc.validate); err != nil {
		return nil, err
	}
	ids := data.InstructorIDs
	if !canUnassign(sess, ids) {
		return nil, core.ErrForbidden
	}

	prev, err := svc.assignedIDs(ctx, classID)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		if prev[id] {
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return removed, nil
	}
	if err = svc.repo.DeleteAssignments(ctx, classID, removed); err != nil {
		return nil, err
	}
	return removed, nil
}

// SetAssignments makes keep the exact set of instructors on the class:
// previously assigned minus keep is unassigned (content purged), keep minus previous is assigned.
func (svc *service) SetAssignments(ctx context.Context, sess session.Session, classID int64, keep []string) ([]string, []string, error) {
	keepIDs := cleanIDs(keep)
	prev, err := svc.assignedIDs(ctx, classID)
	if err != nil {
		return nil, nil, err
	}

	keepSet := make(map[string]bool, len(keepIDs))
	added := make([]string, 0, len(keepIDs))
	for _, id := range keepIDs {
		keepSet[id] = true
		if !prev[id] {
			added = append(added, id)
		}
	}
	removed := make([]string, 0, len(prev))
	for id := range prev {
		if !keepSet[id] {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)

	// authorize and validate everything before the first write
	if !canAssign(sess, added) || !canUnassign(sess, removed) {
		return nil, nil, core.ErrForbidden
	}
	if err = svc.checkInstructors(ctx, added); err != nil {
		return nil, nil, err
	}

	if len(added) == 0 && len(removed) == 0 {
		return added, removed, nil
	}
	if err = svc.repo.ReplaceAssignments(ctx, classID, removed, added); err != nil {
		return nil, nil, err
	}
	return added, removed, nil
}

func (svc *service) Leave(ctx context.Context, sess session.Session, classID int64) error {
	removed, err := svc.Unassign(ctx, sess, classID, []string{sess.UserID})
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return ErrInstructorUnassigned
	}
	return nil
}

func (svc *service) ListAssignedClasses(ctx context.Context, sess session.Session, instructorID string) ([]Class, error) {
	if instructorID != sess.UserID && !sess.Can(policy.ViewLookup, instructorID, false) {
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryAssignedClasses(ctx, instructorID)
}

func (svc *service) ListAssignedInstructors(ctx context.Context, sess session.Session, classID int64) ([]Instructor, error) {
	if !sess.Can(policy.ViewLookup, "", false) {
		return nil, core.ErrForbidden
	}
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	rows, err := svc.repo.QueryAssignmentRows(ctx, AssignmentFilter{ClassID: classID})
	if err != nil {
		return nil, err
	}
	instructors := make([]Instructor, 0, len(rows))
	for _, row := range rows {
		instructors = append(instructors, Instructor{ID: row.InstructorID, DisplayName: row.InstructorName})
	}
	return instructors, nil
}

func (svc *service) assignedIDs(ctx context.Context, classID int64) (map[string]bool, error) {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return nil, err
	}
	rows, err := svc.repo.QueryAssignmentRows(ctx, AssignmentFilter{ClassID: classID})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(rows))
	for _, row := range rows {
		ids[row.InstructorID] = true
	}
	return ids, nil
}

// =========================================================================
// Lookups & Reports

// Lookup lists assignments by class and/or instructor. An empty filter yields no rows.
func (svc *service) Lookup(ctx context.Context, sess session.Session, filter AssignmentFilter) ([]AssignmentRow, error) {
	if !sess.Can(policy.ViewLookup, "", false) {
		return nil, core.ErrForbidden
	}
	if filter.IsEmpty() {
		return []AssignmentRow{}, nil
	}
	return svc.repo.QueryAssignmentRows(ctx, filter)
}

func (svc *service) Tracking(ctx context.Context, sess session.Session, filter TrackingFilter) ([]TrackingRow, error) {
	if !sess.Can(policy.ViewTracking, "", false) {
		return nil, core.ErrForbidden
	}
	filter.Clean()

	instructors, err := svc.users.QueryUsers(
		ctx,
		&user.QueryFilter{Roles: []policy.Role{policy.RoleInstructor}},
		[]core.DBOrdering{{Field: "display_name", Ascending: true}},
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying instructors")
	}
	assignments, err := svc.repo.QueryAssignmentRows(ctx, AssignmentFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	active, err := svc.repo.QueryActivePairs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying activity")
	}

	activeSet := make(map[Pair]bool, len(active))
	for _, p := range active {
		activeSet[p] = true
	}
	byInstructor := make(map[string][]AssignmentRow)
	for _, a := range assignments {
		byInstructor[a.InstructorID] = append(byInstructor[a.InstructorID], a)
	}

	rows := make([]TrackingRow, 0, len(instructors))
	for _, instr := range instructors {
		if filter.Search != "" && !strings.Contains(strings.ToLower(instr.DisplayName), filter.Search) {
			continue
		}
		row := TrackingRow{InstructorID: instr.ID, Name: instr.DisplayName, IdleClasses: []string{}}
		for _, a := range byInstructor[instr.ID] {
			row.Total++
			if activeSet[Pair{ClassID: a.ClassID, InstructorID: instr.ID}] {
				row.Updated++
			} else {
				row.IdleClasses = append(row.IdleClasses, a.ClassName)
			}
		}
		sort.Strings(row.IdleClasses)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if filter.Desc {
			a, b = b, a
		}
		switch filter.Sort {
		case SortByTotal:
			return a.Total < b.Total
		case SortByUpdated:
			return a.Updated < b.Updated
		default:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	})
	return rows, nil
}

// cleanIDs trims and de-duplicates ids, keeping their order.
func cleanIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		cleaned = append(cleaned, id)
	}
	return cleaned
}
