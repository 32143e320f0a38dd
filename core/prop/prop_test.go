package prop_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/class"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/prop"
	"github.com/trezcool/propdesk/storage/database/inmem"
	"github.com/trezcool/propdesk/testutil"
)

func TestService(t *testing.T) {
	db := inmemdb.Open()
	users := inmemdb.NewUserRepository(db)
	props := inmemdb.NewPropRepository(db)
	classes := inmemdb.NewClassRepository(db)
	validate := testutil.NewValidator()
	svc := prop.NewService(props, validate)
	classSvc := class.NewService(classes, users, props, testutil.NewObjectStore(), validate, nil)
	ctx := context.Background()

	admin := testutil.SessionFor(testutil.CreateUser(t, users, "Admin", "admin", "", policy.RoleAdmin))
	ana := testutil.CreateUser(t, users, "Ana", "ana", "", policy.RoleInstructor)
	anaSess := testutil.SessionFor(ana)
	paul := testutil.SessionFor(testutil.CreateUser(t, users, "Paul", "paul", "", policy.RolePA))

	t.Run("create", func(t *testing.T) {
		_, err := svc.Create(ctx, paul, prop.NewProp{Name: "Mat"})
		assert.Equal(t, core.ErrForbidden, err)

		_, err = svc.Create(ctx, anaSess, prop.NewProp{Name: "  "})
		assert.IsType(t, validator.ValidationErrors{}, err)

		for _, name := range []string{" strap", "Mat", "Block"} {
			_, err = svc.Create(ctx, anaSess, prop.NewProp{Name: name})
			require.NoError(t, err)
		}
		list, err := svc.List(ctx, paul)
		require.NoError(t, err)
		names := make([]string, 0, len(list))
		for _, p := range list {
			names = append(names, p.Name)
		}
		assert.Equal(t, []string{"Block", "Mat", "strap"}, names)
	})

	rope, err := svc.Create(ctx, admin, prop.NewProp{Name: "Wall Rope"})
	require.NoError(t, err)

	c, err := classSvc.CreateClass(ctx, anaSess, class.NewClass{Name: "Wall Yoga"})
	require.NoError(t, err)
	require.NoError(t, classSvc.Assign(ctx, anaSess, c.ID, []string{ana.ID}))
	pair := class.Pair{ClassID: c.ID, InstructorID: ana.ID}
	_, err = classSvc.AddProp(ctx, anaSess, pair, class.AddClassProp{PropID: rope.ID})
	require.NoError(t, err)

	t.Run("rename", func(t *testing.T) {
		renamed, err := svc.Rename(ctx, anaSess, rope.ID, prop.NewProp{Name: "Rope"})
		require.NoError(t, err)
		assert.Equal(t, "Rope", renamed.Name)

		content, err := classSvc.GetContent(ctx, anaSess, pair)
		require.NoError(t, err)
		require.Len(t, content.Props, 1)
		assert.Equal(t, "Rope", content.Props[0].PropName)

		_, err = svc.Rename(ctx, admin, 9999, prop.NewProp{Name: "Gone"})
		assert.Equal(t, prop.ErrNotFound, err)
	})

	t.Run("delete cascades class props", func(t *testing.T) {
		usage, err := svc.Usage(ctx, paul, rope.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, usage)

		_, err = svc.Delete(ctx, anaSess, rope.ID)
		assert.Equal(t, core.ErrForbidden, err)

		removed, err := svc.Delete(ctx, admin, rope.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		content, err := classSvc.GetContent(ctx, anaSess, pair)
		require.NoError(t, err)
		assert.Empty(t, content.Props)

		_, err = svc.Delete(ctx, admin, rope.ID)
		assert.Equal(t, prop.ErrNotFound, err)
	})
}
