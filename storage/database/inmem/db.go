// Package inmemdb is a thread-safe, in-memory record store used by tests and the DEV in-memory mode.
package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core/class"
	"github.com/trezcool/propdesk/core/prop"
	"github.com/trezcool/propdesk/core/session"
	"github.com/trezcool/propdesk/core/user"
)

// DB holds every table behind one lock so multi-table operations are atomic.
type DB struct {
	sync.RWMutex

	seq int64

	users       map[string]*user.User
	classes     map[int64]*class.Class
	assignments map[class.Pair]time.Time
	props       map[int64]*prop.Prop
	classProps  map[int64]*class.ClassProp
	images      map[int64]*class.Image
	notes       map[class.Pair]*class.Note
	sessions    map[string]session.Session
}

func Open() *DB {
	return &DB{
		users:       make(map[string]*user.User),
		classes:     make(map[int64]*class.Class),
		assignments: make(map[class.Pair]time.Time),
		props:       make(map[int64]*prop.Prop),
		classProps:  make(map[int64]*class.ClassProp),
		images:      make(map[int64]*class.Image),
		notes:       make(map[class.Pair]*class.Note),
		sessions:    make(map[string]session.Session),
	}
}

// nextID must be called with the write lock held.
func (db *DB) nextID() int64 {
	db.seq++
	return db.seq
}

// SeedSuperAdmin creates the default super admin unless its username is taken.
func SeedSuperAdmin(ctx context.Context, db *DB) error {
	repo := NewUserRepository(db)
	if _, err := repo.GetUser(ctx, user.GetFilter{Username: user.SuperAdminUsername}); err == nil {
		return nil
	}
	usr, err := user.NewSuperAdmin()
	if err != nil {
		return errors.Wrap(err, "hashing super admin password")
	}
	if _, err = repo.CreateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "creating super admin")
	}
	return nil
}

// purgePair deletes the pair's props, images and note. The write lock must be held.
// dropAssignments deletes every assignment of the instructor with its content.
// The caller must hold the write lock.
func (db *DB) dropAssignments(instructorID string) {
	for pair := range db.assignments {
		if pair.InstructorID == instructorID {
			delete(db.assignments, pair)
			db.purgePair(pair)
		}
	}
}

func (db *DB) purgePair(pair class.Pair) {
	for id, cp := range db.classProps {
		if cp.ClassID == pair.ClassID && cp.InstructorID == pair.InstructorID {
			delete(db.classProps, id)
		}
	}
	for id, img := range db.images {
		if img.ClassID == pair.ClassID && img.InstructorID == pair.InstructorID {
			delete(db.images, id)
		}
	}
	delete(db.notes, pair)
}
