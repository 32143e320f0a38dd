package pgrepos_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/propdesk/core/class"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/prop"
	"github.com/trezcool/propdesk/core/user"
	"github.com/trezcool/propdesk/storage/database"
	pgrepos "github.com/trezcool/propdesk/storage/database/postgres"
	"github.com/trezcool/propdesk/testutil"
)

type repos struct {
	db      *sqlx.DB
	users   user.Repository
	props   prop.Repository
	classes class.Repository
}

// openDB connects to TEST_DATABASE_URL and migrates it; the test is skipped when it is unset.
func openDB(t *testing.T) *repos {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Ping(ctx, db))
	require.NoError(t, database.Migrate(ctx, db.DB))

	return &repos{
		db:      db,
		users:   pgrepos.NewUserRepository(db),
		props:   pgrepos.NewPropRepository(db),
		classes: pgrepos.NewClassRepository(db),
	}
}

// reset empties every table except the seeded super admin.
func (r *repos) reset(t *testing.T) {
	t.Helper()
	_, err := r.db.Exec("TRUNCATE classes, props, instructor_classes, class_props, class_images, class_notes CASCADE")
	require.NoError(t, err)
	_, err = r.db.Exec("DELETE FROM users WHERE username <> $1", user.SuperAdminUsername)
	require.NoError(t, err)
}

func (r *repos) count(t *testing.T, table string, pair class.Pair) int {
	t.Helper()
	var n int
	err := r.db.Get(&n, "SELECT COUNT(*) FROM "+table+" WHERE class_id = $1 AND instructor_id = $2", pair.ClassID, pair.InstructorID)
	require.NoError(t, err)
	return n
}

func TestPostgres(t *testing.T) {
	r := openDB(t)
	ctx := context.Background()

	t.Run("seeded super admin", func(t *testing.T) {
		usr, err := r.users.GetUser(ctx, user.GetFilter{Username: user.SuperAdminUsername})
		require.NoError(t, err)
		assert.Equal(t, policy.RoleSuperAdmin, usr.Role)
		assert.NoError(t, usr.CheckPassword(user.SuperAdminPassword))
	})

	t.Run("assignments and content", func(t *testing.T) {
		r.reset(t)
		ana := testutil.CreateUser(t, r.users, "Ana", "ana", "", policy.RoleInstructor)
		ben := testutil.CreateUser(t, r.users, "Ben", "ben", "", policy.RoleInstructor)
		c, err := r.classes.CreateClass(ctx, class.Class{Name: "Wall Yoga", CreatedAt: time.Now()})
		require.NoError(t, err)
		mat, err := r.props.CreateProp(ctx, prop.Prop{Name: "Mat", CreatedAt: time.Now()})
		require.NoError(t, err)
		anaPair := class.Pair{ClassID: c.ID, InstructorID: ana.ID}
		benPair := class.Pair{ClassID: c.ID, InstructorID: ben.ID}

		// unassigned pairs cannot hold content
		_, err = r.classes.AddClassProp(ctx, anaPair, mat.ID)
		assert.Equal(t, class.ErrInstructorUnassigned, err)

		require.NoError(t, r.classes.UpsertAssignments(ctx, c.ID, []string{ana.ID, ben.ID}))
		require.NoError(t, r.classes.UpsertAssignments(ctx, c.ID, []string{ana.ID}))
		rows, err := r.classes.QueryAssignmentRows(ctx, class.AssignmentFilter{ClassID: c.ID})
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		for _, pair := range []class.Pair{anaPair, benPair} {
			_, err = r.classes.AddClassProp(ctx, pair, mat.ID)
			require.NoError(t, err)
			note := "first"
			_, _, err = r.classes.SaveContent(ctx, pair, []string{"https://cdn.test/a.png"}, &note)
			require.NoError(t, err)
			note = "second"
			_, saved, err := r.classes.SaveContent(ctx, pair, nil, &note)
			require.NoError(t, err)
			assert.Equal(t, "second", saved.Note)
		}
		cp, err := r.classes.AddClassProp(ctx, anaPair, mat.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mat", cp.PropName)
		assert.Equal(t, 1, r.count(t, "class_props", anaPair))
		assert.Equal(t, 1, r.count(t, "class_notes", anaPair))

		active, err := r.classes.QueryActivePairs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []class.Pair{anaPair, benPair}, active)

		require.NoError(t, r.classes.DeleteAssignments(ctx, c.ID, []string{ana.ID}))
		for _, table := range []string{"class_props", "class_images", "class_notes", "instructor_classes"} {
			assert.Zero(t, r.count(t, table, anaPair), table)
			assert.Equal(t, 1, r.count(t, table, benPair), table)
		}

		removed, err := r.props.DeleteProp(ctx, mat.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.Zero(t, r.count(t, "class_props", benPair))

		require.NoError(t, r.classes.DeleteClassCascade(ctx, c.ID))
		for _, table := range []string{"class_images", "class_notes", "instructor_classes"} {
			assert.Zero(t, r.count(t, table, benPair), table)
		}
		_, err = r.classes.GetClass(ctx, c.ID)
		assert.Equal(t, class.ErrNotFound, err)
		assert.Equal(t, class.ErrNotFound, r.classes.DeleteClassCascade(ctx, c.ID))
	})

	t.Run("replace assignments and constraint errors", func(t *testing.T) {
		r.reset(t)
		ana := testutil.CreateUser(t, r.users, "Ana", "ana", "", policy.RoleInstructor)
		ben := testutil.CreateUser(t, r.users, "Ben", "ben", "", policy.RoleInstructor)
		c, err := r.classes.CreateClass(ctx, class.Class{Name: "Wall Yoga", CreatedAt: time.Now()})
		require.NoError(t, err)
		mat, err := r.props.CreateProp(ctx, prop.Prop{Name: "Mat", CreatedAt: time.Now()})
		require.NoError(t, err)
		anaPair := class.Pair{ClassID: c.ID, InstructorID: ana.ID}
		benPair := class.Pair{ClassID: c.ID, InstructorID: ben.ID}

		require.NoError(t, r.classes.UpsertAssignments(ctx, c.ID, []string{ana.ID}))
		_, err = r.classes.AddClassProp(ctx, anaPair, mat.ID)
		require.NoError(t, err)
		blank := " "
		_, _, err = r.classes.SaveContent(ctx, anaPair, nil, &blank)
		require.NoError(t, err)

		// a blank note still counts as activity
		active, err := r.classes.QueryActivePairs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []class.Pair{anaPair}, active)

		// a prop deleted in the meantime is not mistaken for a missing assignment
		gone, err := r.props.CreateProp(ctx, prop.Prop{Name: "Strap", CreatedAt: time.Now()})
		require.NoError(t, err)
		_, err = r.props.DeleteProp(ctx, gone.ID)
		require.NoError(t, err)
		_, err = r.classes.AddClassProp(ctx, anaPair, gone.ID)
		assert.Equal(t, prop.ErrNotFound, err)
		_, err = r.classes.AddClassProp(ctx, benPair, mat.ID)
		assert.Equal(t, class.ErrInstructorUnassigned, err)

		// a deleted class fails the whole replacement
		assert.Equal(t, class.ErrNotFound, r.classes.ReplaceAssignments(ctx, c.ID+1000, nil, []string{ben.ID}))

		require.NoError(t, r.classes.ReplaceAssignments(ctx, c.ID, []string{ana.ID}, []string{ben.ID}))
		for _, table := range []string{"class_props", "class_notes", "instructor_classes"} {
			assert.Zero(t, r.count(t, table, anaPair), table)
		}
		assert.Equal(t, 1, r.count(t, "instructor_classes", benPair))
	})

	t.Run("malformed instructor ids", func(t *testing.T) {
		r.reset(t)
		c, err := r.classes.CreateClass(ctx, class.Class{Name: "Flow", CreatedAt: time.Now()})
		require.NoError(t, err)
		pair := class.Pair{ClassID: c.ID, InstructorID: "ghost"}

		classes, err := r.classes.QueryAssignedClasses(ctx, "ghost")
		require.NoError(t, err)
		assert.Empty(t, classes)
		rows, err := r.classes.QueryAssignmentRows(ctx, class.AssignmentFilter{InstructorID: "ghost"})
		require.NoError(t, err)
		assert.Empty(t, rows)
		props, err := r.classes.QueryClassProps(ctx, pair)
		require.NoError(t, err)
		assert.Empty(t, props)
		images, err := r.classes.QueryImages(ctx, pair)
		require.NoError(t, err)
		assert.Empty(t, images)
		_, err = r.classes.GetNote(ctx, pair)
		assert.Equal(t, class.ErrContentNotFound, err)
		assert.Equal(t, class.ErrContentNotFound, r.classes.DeleteImage(ctx, pair, 1))
		assert.Equal(t, class.ErrContentNotFound, r.classes.DeleteClassProp(ctx, pair, 1))
		assert.NoError(t, r.users.CheckUsernameUniqueness(ctx, "nobody", "ghost"))
	})

	t.Run("demoted instructor loses assignments", func(t *testing.T) {
		r.reset(t)
		ana := testutil.CreateUser(t, r.users, "Ana", "ana", "", policy.RoleInstructor)
		c, err := r.classes.CreateClass(ctx, class.Class{Name: "Wall Yoga", CreatedAt: time.Now()})
		require.NoError(t, err)
		pair := class.Pair{ClassID: c.ID, InstructorID: ana.ID}
		require.NoError(t, r.classes.UpsertAssignments(ctx, c.ID, []string{ana.ID}))
		note := "bring blocks"
		_, _, err = r.classes.SaveContent(ctx, pair, []string{"https://cdn.test/a.png"}, &note)
		require.NoError(t, err)

		ana.DisplayName = "Ana Maria"
		_, err = r.users.UpdateUser(ctx, ana)
		require.NoError(t, err)
		assert.Equal(t, 1, r.count(t, "instructor_classes", pair))

		ana.Role = policy.RolePA
		_, err = r.users.UpdateUser(ctx, ana)
		require.NoError(t, err)
		for _, table := range []string{"class_images", "class_notes", "instructor_classes"} {
			assert.Zero(t, r.count(t, table, pair), table)
		}
	})

	t.Run("users", func(t *testing.T) {
		r.reset(t)
		testutil.CreateUser(t, r.users, "Ana", "ana", "", policy.RoleInstructor)
		paul := testutil.CreateUser(t, r.users, "Paul", "paul", "", policy.RolePA)

		assert.Equal(t, user.ErrUsernameExists, r.users.CheckUsernameUniqueness(ctx, "ana"))
		assert.NoError(t, r.users.CheckUsernameUniqueness(ctx, "paul", paul.ID))

		instructors, err := r.users.QueryUsers(ctx, &user.QueryFilter{Roles: []policy.Role{policy.RoleInstructor}}, nil)
		require.NoError(t, err)
		require.Len(t, instructors, 1)
		assert.Equal(t, "ana", instructors[0].Username)

		deleted, err := r.users.DeleteUsersByID(ctx, paul.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, deleted)
		_, err = r.users.GetUser(ctx, user.GetFilter{ID: paul.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}
