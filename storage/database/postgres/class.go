package pgrepos

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/class"
	"github.com/trezcool/propdesk/core/prop"
)

var classOrderFields = map[string]bool{"name": true, "created_at": true}

type (
	classRow struct {
		ID        int64     `db:"id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}

	assignmentRow struct {
		ClassID        int64  `db:"class_id"`
		ClassName      string `db:"class_name"`
		InstructorID   string `db:"instructor_id"`
		InstructorName string `db:"instructor_name"`
	}

	pairRow struct {
		ClassID      int64  `db:"class_id"`
		InstructorID string `db:"instructor_id"`
	}

	classPropRow struct {
		ID           int64  `db:"id"`
		ClassID      int64  `db:"class_id"`
		InstructorID string `db:"instructor_id"`
		PropID       int64  `db:"prop_id"`
		PropName     string `db:"prop_name"`
	}

	imageRow struct {
		ID           int64     `db:"id"`
		ClassID      int64     `db:"class_id"`
		InstructorID string    `db:"instructor_id"`
		URL          string    `db:"url"`
		CreatedAt    time.Time `db:"created_at"`
	}

	noteRow struct {
		ID           int64     `db:"id"`
		ClassID      int64     `db:"class_id"`
		InstructorID string    `db:"instructor_id"`
		Note         string    `db:"note"`
		UpdatedAt    null.Time `db:"updated_at"`
	}
)

func (r classRow) unpack() class.Class {
	return class.Class{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

func (r imageRow) unpack() class.Image {
	return class.Image{
		ID:           r.ID,
		ClassID:      r.ClassID,
		InstructorID: r.InstructorID,
		URL:          r.URL,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (r noteRow) unpack() class.Note {
	return class.Note{
		ID:           r.ID,
		ClassID:      r.ClassID,
		InstructorID: r.InstructorID,
		Note:         r.Note,
		UpdatedAt:    r.UpdatedAt.Time.UTC(),
	}
}

func unpackClasses(rows []classRow) []class.Class {
	classes := make([]class.Class, 0, len(rows))
	for _, r := range rows {
		classes = append(classes, r.unpack())
	}
	return classes
}

func pairEq(pair class.Pair) squirrel.Eq {
	return squirrel.Eq{"class_id": pair.ClassID, "instructor_id": pair.InstructorID}
}

type classRepository struct {
	db *sqlx.DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *sqlx.DB) class.Repository {
	return &classRepository{db: db}
}

// =========================================================================
// Classes

func (repo *classRepository) CreateClass(ctx context.Context, c class.Class) (class.Class, error) {
	qb := psql.Insert("classes").
		Columns("name", "created_at").
		Values(c.Name, c.CreatedAt.UTC()).
		Suffix("RETURNING id")
	if err := get(ctx, repo.db, &c.ID, qb); err != nil {
		return class.Class{}, storeError(ctx, err, "inserting class")
	}
	return c, nil
}

func (repo *classRepository) GetClass(ctx context.Context, id int64) (class.Class, error) {
	var row classRow
	qb := psql.Select("id", "name", "created_at").From("classes").Where(squirrel.Eq{"id": id})
	if err := get(ctx, repo.db, &row, qb); err != nil {
		return class.Class{}, trapNoRows(ctx, err, class.ErrNotFound, "finding class")
	}
	return row.unpack(), nil
}

func (repo *classRepository) QueryClasses(ctx context.Context, ordering []core.DBOrdering) ([]class.Class, error) {
	qb := psql.Select("id", "name", "created_at").From("classes")
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	for _, ord := range ordering {
		if classOrderFields[ord.Field] {
			qb = qb.OrderBy(ord.String())
		}
	}
	qb = qb.OrderBy("id DESC")

	var rows []classRow
	if err := list(ctx, repo.db, &rows, qb); err != nil {
		return nil, storeError(ctx, err, "querying classes")
	}
	return unpackClasses(rows), nil
}

// DeleteClassCascade calls the delete_class_cascade procedure, which removes the class
// with its assignments, props, images and notes in one statement.
func (repo *classRepository) DeleteClassCascade(ctx context.Context, id int64) error {
	var deleted int
	if err := repo.db.GetContext(ctx, &deleted, "SELECT delete_class_cascade($1)", id); err != nil {
		return storeError(ctx, err, "deleting class")
	}
	if deleted == 0 {
		return class.ErrNotFound
	}
	return nil
}

// =========================================================================
// Assignments

func (repo *classRepository) UpsertAssignments(ctx context.Context, classID int64, instructorIDs []string) error {
	return insertAssignments(ctx, repo.db, classID, instructorIDs)
}

// DeleteAssignments purges the pairs' content, then the assignments, in one transaction.
func (repo *classRepository) DeleteAssignments(ctx context.Context, classID int64, instructorIDs []string) error {
	if len(instructorIDs) == 0 {
		return nil
	}
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		return deleteAssignments(ctx, tx, squirrel.Eq{"class_id": classID, "instructor_id": instructorIDs})
	})
}

func (repo *classRepository) ReplaceAssignments(ctx context.Context, classID int64, removed, added []string) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if len(removed) > 0 {
			if err := deleteAssignments(ctx, tx, squirrel.Eq{"class_id": classID, "instructor_id": removed}); err != nil {
				return err
			}
		}
		return insertAssignments(ctx, tx, classID, added)
	})
}

func insertAssignments(ctx context.Context, e sqlx.ExecerContext, classID int64, instructorIDs []string) error {
	if len(instructorIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	qb := psql.Insert("instructor_classes").Columns("instructor_id", "class_id", "created_at")
	for _, id := range instructorIDs {
		qb = qb.Values(id, classID, now)
	}
	qb = qb.Suffix("ON CONFLICT (instructor_id, class_id) DO NOTHING")
	if _, err := exec(ctx, e, qb); err != nil {
		if pqConstraint(err) == "instructor_classes_class_id_fkey" {
			return class.ErrNotFound
		}
		return storeError(ctx, err, "upserting assignments")
	}
	return nil
}

// deleteAssignments deletes the matching pairs' content, then the assignments themselves.
func deleteAssignments(ctx context.Context, tx *sqlx.Tx, where squirrel.Sqlizer) error {
	for _, table := range []string{"class_props", "class_images", "class_notes", "instructor_classes"} {
		if _, err := exec(ctx, tx, psql.Delete(table).Where(where)); err != nil {
			return storeError(ctx, err, "deleting from "+table)
		}
	}
	return nil
}

func (repo *classRepository) IsAssigned(ctx context.Context, pair class.Pair) (bool, error) {
	if !isUUID(pair.InstructorID) {
		return false, nil
	}
	var cnt int
	qb := psql.Select("COUNT(*)").From("instructor_classes").Where(pairEq(pair))
	if err := get(ctx, repo.db, &cnt, qb); err != nil {
		return false, storeError(ctx, err, "checking assignment")
	}
	return cnt > 0, nil
}

func (repo *classRepository) QueryAssignedClasses(ctx context.Context, instructorID string) ([]class.Class, error) {
	if !isUUID(instructorID) {
		return []class.Class{}, nil
	}
	qb := psql.Select("c.id", "c.name", "c.created_at").
		From("classes c").
		Join("instructor_classes ic ON ic.class_id = c.id").
		Where(squirrel.Eq{"ic.instructor_id": instructorID}).
		OrderBy("c.created_at DESC", "c.id DESC")

	var rows []classRow
	if err := list(ctx, repo.db, &rows, qb); err != nil {
		return nil, storeError(ctx, err, "querying assigned classes")
	}
	return unpackClasses(rows), nil
}

func (repo *classRepository) QueryAssignmentRows(ctx context.Context, filter class.AssignmentFilter) ([]class.AssignmentRow, error) {
	qb := psql.Select(
		"ic.class_id", "c.name AS class_name",
		"ic.instructor_id", "u.display_name AS instructor_name",
	).
		From("instructor_classes ic").
		Join("classes c ON c.id = ic.class_id").
		Join("users u ON u.id = ic.instructor_id").
		OrderBy("lower(c.name) ASC", "ic.class_id ASC", "lower(u.display_name) ASC")
	if filter.ClassID != 0 {
		qb = qb.Where(squirrel.Eq{"ic.class_id": filter.ClassID})
	}
	if filter.InstructorID != "" {
		if !isUUID(filter.InstructorID) {
			return []class.AssignmentRow{}, nil
		}
		qb = qb.Where(squirrel.Eq{"ic.instructor_id": filter.InstructorID})
	}

	var rows []assignmentRow
	if err := list(ctx, repo.db, &rows, qb); err != nil {
		return nil, storeError(ctx, err, "querying assignments")
	}
	assignments := make([]class.AssignmentRow, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, class.AssignmentRow(r))
	}
	return assignments, nil
}

func (repo *classRepository) QueryActivePairs(ctx context.Context) ([]class.Pair, error) {
	const query = `
		SELECT class_id, instructor_id FROM class_props
		UNION
		SELECT class_id, instructor_id FROM class_images
		UNION
		SELECT class_id, instructor_id FROM class_notes`

	var rows []pairRow
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storeError(ctx, err, "querying active pairs")
	}
	pairs := make([]class.Pair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, class.Pair(r))
	}
	return pairs, nil
}

// =========================================================================
// Content

func (repo *classRepository) AddClassProp(ctx context.Context, pair class.Pair, propID int64) (class.ClassProp, error) {
	ins := psql.Insert("class_props").
		Columns("class_id", "instructor_id", "prop_id").
		Values(pair.ClassID, pair.InstructorID, propID).
		Suffix("ON CONFLICT (class_id, instructor_id, prop_id) DO NOTHING")
	if !isUUID(pair.InstructorID) {
		return class.ClassProp{}, class.ErrInstructorUnassigned
	}
	if _, err := exec(ctx, repo.db, ins); err != nil {
		switch pqConstraint(err) {
		case "class_props_assignment_fkey":
			return class.ClassProp{}, class.ErrInstructorUnassigned
		case "class_props_prop_fkey":
			return class.ClassProp{}, prop.ErrNotFound
		}
		return class.ClassProp{}, storeError(ctx, err, "inserting class prop")
	}

	var row classPropRow
	qb := classPropsQuery().Where(squirrel.Eq{"cp.prop_id": propID}).Where(pairEqAs("cp", pair))
	if err := get(ctx, repo.db, &row, qb); err != nil {
		return class.ClassProp{}, trapNoRows(ctx, err, class.ErrContentNotFound, "finding class prop")
	}
	return class.ClassProp(row), nil
}

func (repo *classRepository) QueryClassProps(ctx context.Context, pair class.Pair) ([]class.ClassProp, error) {
	if !isUUID(pair.InstructorID) {
		return []class.ClassProp{}, nil
	}
	var rows []classPropRow
	if err := list(ctx, repo.db, &rows, classPropsQuery().Where(pairEqAs("cp", pair)).OrderBy("cp.id ASC")); err != nil {
		return nil, storeError(ctx, err, "querying class props")
	}
	props := make([]class.ClassProp, 0, len(rows))
	for _, r := range rows {
		props = append(props, class.ClassProp(r))
	}
	return props, nil
}

func (repo *classRepository) DeleteClassProp(ctx context.Context, pair class.Pair, id int64) error {
	if !isUUID(pair.InstructorID) {
		return class.ErrContentNotFound
	}
	cnt, err := exec(ctx, repo.db, psql.Delete("class_props").Where(squirrel.Eq{"id": id}).Where(pairEq(pair)))
	if err != nil {
		return storeError(ctx, err, "deleting class prop")
	}
	if cnt == 0 {
		return class.ErrContentNotFound
	}
	return nil
}

func (repo *classRepository) QueryImages(ctx context.Context, pair class.Pair) ([]class.Image, error) {
	if !isUUID(pair.InstructorID) {
		return []class.Image{}, nil
	}
	qb := psql.Select("id", "class_id", "instructor_id", "url", "created_at").
		From("class_images").
		Where(pairEq(pair)).
		OrderBy("id ASC")

	var rows []imageRow
	if err := list(ctx, repo.db, &rows, qb); err != nil {
		return nil, storeError(ctx, err, "querying images")
	}
	images := make([]class.Image, 0, len(rows))
	for _, r := range rows {
		images = append(images, r.unpack())
	}
	return images, nil
}

func (repo *classRepository) DeleteImage(ctx context.Context, pair class.Pair, id int64) error {
	if !isUUID(pair.InstructorID) {
		return class.ErrContentNotFound
	}
	cnt, err := exec(ctx, repo.db, psql.Delete("class_images").Where(squirrel.Eq{"id": id}).Where(pairEq(pair)))
	if err != nil {
		return storeError(ctx, err, "deleting image")
	}
	if cnt == 0 {
		return class.ErrContentNotFound
	}
	return nil
}

func (repo *classRepository) GetNote(ctx context.Context, pair class.Pair) (class.Note, error) {
	if !isUUID(pair.InstructorID) {
		return class.Note{}, class.ErrContentNotFound
	}
	var row noteRow
	qb := psql.Select("id", "class_id", "instructor_id", "note", "updated_at").From("class_notes").Where(pairEq(pair))
	if err := get(ctx, repo.db, &row, qb); err != nil {
		return class.Note{}, trapNoRows(ctx, err, class.ErrContentNotFound, "finding note")
	}
	return row.unpack(), nil
}

func (repo *classRepository) SaveContent(ctx context.Context, pair class.Pair, urls []string, note *string) ([]class.Image, *class.Note, error) {
	if !isUUID(pair.InstructorID) {
		return nil, nil, class.ErrInstructorUnassigned
	}
	now := time.Now().UTC()
	images := make([]class.Image, 0, len(urls))
	var saved *class.Note

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, url := range urls {
			var row imageRow
			qb := psql.Insert("class_images").
				Columns("class_id", "instructor_id", "url", "created_at").
				Values(pair.ClassID, pair.InstructorID, url, now).
				Suffix("RETURNING id, class_id, instructor_id, url, created_at")
			if err := get(ctx, tx, &row, qb); err != nil {
				return storeError(ctx, err, "inserting image")
			}
			images = append(images, row.unpack())
		}

		if note != nil {
			var row noteRow
			qb := psql.Insert("class_notes").
				Columns("class_id", "instructor_id", "note", "updated_at").
				Values(pair.ClassID, pair.InstructorID, *note, now).
				Suffix(`ON CONFLICT (class_id, instructor_id) DO UPDATE SET note = EXCLUDED.note, updated_at = EXCLUDED.updated_at
					RETURNING id, class_id, instructor_id, note, updated_at`)
			if err := get(ctx, tx, &row, qb); err != nil {
				return storeError(ctx, err, "saving note")
			}
			n := row.unpack()
			saved = &n
		}
		return nil
	})
	if err != nil {
		switch pqConstraint(err) {
		case "class_images_assignment_fkey", "class_notes_assignment_fkey":
			return nil, nil, class.ErrInstructorUnassigned
		}
		return nil, nil, err
	}
	return images, saved, nil
}

func classPropsQuery() squirrel.SelectBuilder {
	return psql.Select("cp.id", "cp.class_id", "cp.instructor_id", "cp.prop_id", "p.name AS prop_name").
		From("class_props cp").
		Join("props p ON p.id = cp.prop_id")
}

func pairEqAs(alias string, pair class.Pair) squirrel.Eq {
	return squirrel.Eq{alias + ".class_id": pair.ClassID, alias + ".instructor_id": pair.InstructorID}
}
