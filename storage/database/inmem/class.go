package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/class"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db}
}

// =========================================================================
// Classes

func (repo *classRepository) CreateClass(_ context.Context, c class.Class) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = repo.db.nextID()
	repo.db.classes[c.ID] = &c
	return c, nil
}

func (repo *classRepository) GetClass(_ context.Context, id int64) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.classes[id]; ok {
		return *c, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) QueryClasses(_ context.Context, ordering []core.DBOrdering) ([]class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, c := range repo.db.classes {
		classes = append(classes, *c)
	}
	sortClasses(classes, ordering)
	return classes, nil
}

func (repo *classRepository) DeleteClassCascade(_ context.Context, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return class.ErrNotFound
	}
	for pair := range repo.db.assignments {
		if pair.ClassID == id {
			delete(repo.db.assignments, pair)
		}
	}
	for cpID, cp := range repo.db.classProps {
		if cp.ClassID == id {
			delete(repo.db.classProps, cpID)
		}
	}
	for imgID, img := range repo.db.images {
		if img.ClassID == id {
			delete(repo.db.images, imgID)
		}
	}
	for pair := range repo.db.notes {
		if pair.ClassID == id {
			delete(repo.db.notes, pair)
		}
	}
	delete(repo.db.classes, id)
	return nil
}

// =========================================================================
// Assignments

func (repo *classRepository) UpsertAssignments(_ context.Context, classID int64, instructorIDs []string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[classID]; !ok {
		return class.ErrNotFound
	}
	now := time.Now().UTC()
	for _, id := range instructorIDs {
		pair := class.Pair{ClassID: classID, InstructorID: id}
		if _, ok := repo.db.assignments[pair]; !ok {
			repo.db.assignments[pair] = now
		}
	}
	return nil
}

func (repo *classRepository) DeleteAssignments(_ context.Context, classID int64, instructorIDs []string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range instructorIDs {
		pair := class.Pair{ClassID: classID, InstructorID: id}
		repo.db.purgePair(pair)
		delete(repo.db.assignments, pair)
	}
	return nil
}

func (repo *classRepository) ReplaceAssignments(_ context.Context, classID int64, removed, added []string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[classID]; !ok {
		return class.ErrNotFound
	}
	for _, id := range removed {
		pair := class.Pair{ClassID: classID, InstructorID: id}
		repo.db.purgePair(pair)
		delete(repo.db.assignments, pair)
	}
	now := time.Now().UTC()
	for _, id := range added {
		pair := class.Pair{ClassID: classID, InstructorID: id}
		if _, ok := repo.db.assignments[pair]; !ok {
			repo.db.assignments[pair] = now
		}
	}
	return nil
}

func (repo *classRepository) IsAssigned(_ context.Context, pair class.Pair) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.assignments[pair]
	return ok, nil
}

func (repo *classRepository) QueryAssignedClasses(_ context.Context, instructorID string) ([]class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := make([]class.Class, 0)
	for pair := range repo.db.assignments {
		if pair.InstructorID != instructorID {
			continue
		}
		if c, ok := repo.db.classes[pair.ClassID]; ok {
			classes = append(classes, *c)
		}
	}
	sortClasses(classes, nil)
	return classes, nil
}

func (repo *classRepository) QueryAssignmentRows(_ context.Context, filter class.AssignmentFilter) ([]class.AssignmentRow, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := make([]class.AssignmentRow, 0)
	for pair := range repo.db.assignments {
		if filter.ClassID != 0 && pair.ClassID != filter.ClassID {
			continue
		}
		if filter.InstructorID != "" && pair.InstructorID != filter.InstructorID {
			continue
		}
		c, ok := repo.db.classes[pair.ClassID]
		if !ok {
			continue
		}
		row := class.AssignmentRow{ClassID: c.ID, ClassName: c.Name, InstructorID: pair.InstructorID}
		if usr, ok := repo.db.users[pair.InstructorID]; ok {
			row.InstructorName = usr.DisplayName
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if an, bn := strings.ToLower(a.ClassName), strings.ToLower(b.ClassName); an != bn {
			return an < bn
		}
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		return strings.ToLower(a.InstructorName) < strings.ToLower(b.InstructorName)
	})
	return rows, nil
}

func (repo *classRepository) QueryActivePairs(_ context.Context) ([]class.Pair, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	active := make(map[class.Pair]bool)
	for _, cp := range repo.db.classProps {
		active[class.Pair{ClassID: cp.ClassID, InstructorID: cp.InstructorID}] = true
	}
	for _, img := range repo.db.images {
		active[class.Pair{ClassID: img.ClassID, InstructorID: img.InstructorID}] = true
	}
	for pair := range repo.db.notes {
		active[pair] = true
	}

	pairs := make([]class.Pair, 0, len(active))
	for pair := range active {
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// =========================================================================
// Content

func (repo *classRepository) AddClassProp(_ context.Context, pair class.Pair, propID int64) (class.ClassProp, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, cp := range repo.db.classProps {
		if cp.ClassID == pair.ClassID && cp.InstructorID == pair.InstructorID && cp.PropID == propID {
			return *cp, nil
		}
	}
	cp := class.ClassProp{
		ID:           repo.db.nextID(),
		ClassID:      pair.ClassID,
		InstructorID: pair.InstructorID,
		PropID:       propID,
	}
	if p, ok := repo.db.props[propID]; ok {
		cp.PropName = p.Name
	}
	repo.db.classProps[cp.ID] = &cp
	return cp, nil
}

func (repo *classRepository) QueryClassProps(_ context.Context, pair class.Pair) ([]class.ClassProp, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	props := make([]class.ClassProp, 0)
	for _, cp := range repo.db.classProps {
		if cp.ClassID == pair.ClassID && cp.InstructorID == pair.InstructorID {
			props = append(props, *cp)
		}
	}
	sort.Slice(props, func(i, j int) bool { return props[i].ID < props[j].ID })
	return props, nil
}

func (repo *classRepository) DeleteClassProp(_ context.Context, pair class.Pair, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	cp, ok := repo.db.classProps[id]
	if !ok || cp.ClassID != pair.ClassID || cp.InstructorID != pair.InstructorID {
		return class.ErrContentNotFound
	}
	delete(repo.db.classProps, id)
	return nil
}

func (repo *classRepository) QueryImages(_ context.Context, pair class.Pair) ([]class.Image, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	images := make([]class.Image, 0)
	for _, img := range repo.db.images {
		if img.ClassID == pair.ClassID && img.InstructorID == pair.InstructorID {
			images = append(images, *img)
		}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })
	return images, nil
}

func (repo *classRepository) DeleteImage(_ context.Context, pair class.Pair, id int64) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	img, ok := repo.db.images[id]
	if !ok || img.ClassID != pair.ClassID || img.InstructorID != pair.InstructorID {
		return class.ErrContentNotFound
	}
	delete(repo.db.images, id)
	return nil
}

func (repo *classRepository) GetNote(_ context.Context, pair class.Pair) (class.Note, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if note, ok := repo.db.notes[pair]; ok {
		return *note, nil
	}
	return class.Note{}, class.ErrContentNotFound
}

func (repo *classRepository) SaveContent(_ context.Context, pair class.Pair, urls []string, note *string) ([]class.Image, *class.Note, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.assignments[pair]; !ok {
		return nil, nil, class.ErrInstructorUnassigned
	}

	now := time.Now().UTC()
	images := make([]class.Image, 0, len(urls))
	for _, url := range urls {
		img := class.Image{
			ID:           repo.db.nextID(),
			ClassID:      pair.ClassID,
			InstructorID: pair.InstructorID,
			URL:          url,
			CreatedAt:    now,
		}
		repo.db.images[img.ID] = &img
		images = append(images, img)
	}

	var saved *class.Note
	if note != nil {
		n, ok := repo.db.notes[pair]
		if !ok {
			n = &class.Note{ID: repo.db.nextID(), ClassID: pair.ClassID, InstructorID: pair.InstructorID}
			repo.db.notes[pair] = n
		}
		n.Note = *note
		n.UpdatedAt = now
		cp := *n
		saved = &cp
	}
	return images, saved, nil
}

// sortClasses orders by created_at DESC by default.
func sortClasses(classes []class.Class, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(classes, func(i, j int) bool {
		for _, ord := range ordering {
			a, b := classes[i], classes[j]
			if !ord.Ascending {
				a, b = b, a
			}
			switch ord.Field {
			case "name":
				if an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name); an != bn {
					return an < bn
				}
			case "created_at":
				if !a.CreatedAt.Equal(b.CreatedAt) {
					return a.CreatedAt.Before(b.CreatedAt)
				}
				if a.ID != b.ID {
					return a.ID < b.ID
				}
			}
		}
		return false
	})
}
