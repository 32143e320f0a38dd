package pgrepos

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/user"
)

var userColumns = []string{"id", "username", "display_name", "role", "password_hash", "created_at", "updated_at", "last_login"}

// orderable user columns
var userOrderFields = map[string]bool{"username": true, "display_name": true, "role": true, "created_at": true, "last_login": true}

type userRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	DisplayName  string    `db:"display_name"`
	Role         string    `db:"role"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (r userRow) unpack() user.User {
	return user.User{
		ID:           r.ID,
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		Role:         policy.Role(r.Role),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username string, excludedIDs ...string) error {
	qb := psql.Select("COUNT(*)").From("users").Where(squirrel.Eq{"username": username})
	excluded := make([]string, 0, len(excludedIDs))
	for _, id := range excludedIDs {
		if isUUID(id) {
			excluded = append(excluded, id)
		}
	}
	if len(excluded) > 0 {
		qb = qb.Where(squirrel.NotEq{"id": excluded})
	}
	var cnt int
	if err := get(ctx, repo.db, &cnt, qb); err != nil {
		return storeError(ctx, err, "checking username uniqueness")
	}
	if cnt > 0 {
		return user.ErrUsernameExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	qb := psql.Insert("users").
		Columns(userColumns...).
		Values(
			usr.ID, usr.Username, usr.DisplayName, string(usr.Role), usr.PasswordHash,
			usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
		)
	if _, err := exec(ctx, repo.db, qb); err != nil {
		if pqCode(err) == "unique_violation" {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, storeError(ctx, err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	qb := psql.Select(userColumns...).From("users")

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			qb = qb.Where(squirrel.Or{
				squirrel.ILike{"username": val},
				squirrel.ILike{"display_name": val},
			})
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, string(r))
			}
			qb = qb.Where(squirrel.Eq{"role": roles})
		}
	}
	for _, ord := range ordering {
		if userOrderFields[ord.Field] {
			qb = qb.OrderBy(ord.String())
		}
	}

	var rows []userRow
	if err := list(ctx, repo.db, &rows, qb); err != nil {
		return nil, storeError(ctx, err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.unpack())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	qb := psql.Select(userColumns...).From("users")
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		qb = qb.Where(squirrel.Eq{"id": filter.ID})
	case filter.Username != "":
		qb = qb.Where(squirrel.Eq{"username": filter.Username})
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := get(ctx, repo.db, &row, qb); err != nil {
		return user.User{}, trapNoRows(ctx, err, user.ErrNotFound, "finding user")
	}
	return row.unpack(), nil
}

// UpdateUser drops the user's assignments and content in the same transaction
// once the role is no longer Instructor.
func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !isUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	qb := psql.Update("users").
		Set("username", usr.Username).
		Set("display_name", usr.DisplayName).
		Set("role", string(usr.Role)).
		Set("password_hash", usr.PasswordHash).
		Set("updated_at", usr.UpdatedAt.UTC()).
		Set("last_login", null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero())).
		Where(squirrel.Eq{"id": usr.ID})

	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		cnt, err := exec(ctx, tx, qb)
		if err != nil {
			if pqCode(err) == "unique_violation" {
				return user.ErrUsernameExists
			}
			return storeError(ctx, err, "updating user")
		}
		if cnt == 0 {
			return user.ErrNotFound
		}
		if usr.IsInstructor() {
			return nil
		}
		return deleteAssignments(ctx, tx, squirrel.Eq{"instructor_id": usr.ID})
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

// DeleteUsersByID relies on FK cascades to drop the users' assignments and content.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	cnt, err := exec(ctx, repo.db, psql.Delete("users").Where(squirrel.Eq{"id": valid}))
	if err != nil {
		return 0, storeError(ctx, err, "deleting users")
	}
	return int(cnt), nil
}
