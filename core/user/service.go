package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/session"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrDeleteSelf         = errors.New("you cannot delete your own account")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Username or User.DisplayName.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
	}

	Service interface {
		Create(ctx context.Context, sess session.Session, nu NewUser) (User, error)
		Query(ctx context.Context, sess session.Session, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		QueryInstructors(ctx context.Context, sess session.Session) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		Update(ctx context.Context, sess session.Session, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, sess session.Session, ids ...string) error
		Authenticate(ctx context.Context, username, pwd string) (User, error)
		ChangePassword(ctx context.Context, sess session.Session, cp ChangePassword) error
	}

	service struct {
		repo     Repository
		sessions session.Service
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, sessions session.Service, validate *validator.Validate) Service {
	return &service{repo: repo, sessions: sessions, validate: validate}
}

func (svc *service) checkUniqueness(ctx context.Context, uname string, exclIDs ...string) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, exclIDs...); err != nil {
		if errors.Cause(err) == ErrUsernameExists {
			return core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, sess session.Session, nu NewUser) (User, error) {
	if !sess.Can(policy.ManageUsers, "", false) {
		return User{}, core.ErrForbidden
	}
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, err
	}
	if err := svc.checkUniqueness(ctx, nu.Username); err != nil {
		return User{}, err
	}

	now := time.Now().UTC()
	usr := User{
		Username:    nu.Username,
		DisplayName: nu.DisplayName,
		Role:        nu.Role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, sess session.Session, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if !sess.Can(policy.ManageUsers, "", false) {
		return nil, core.ErrForbidden
	}
	if filter != nil {
		filter.Clean()
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) QueryInstructors(ctx context.Context, sess session.Session) ([]User, error) {
	if !sess.Can(policy.ViewLookup, "", false) {
		return nil, core.ErrForbidden
	}
	return svc.repo.QueryUsers(
		ctx,
		&QueryFilter{Roles: []policy.Role{policy.RoleInstructor}},
		[]core.DBOrdering{{Field: "display_name", Ascending: true}},
	)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) Update(ctx context.Context, sess session.Session, id string, uu UpdateUser) (User, error) {
	if !sess.Can(policy.ManageUsers, "", false) {
		return User{}, core.ErrForbidden
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if err = uu.Validate(usr, svc.validate); err != nil {
		return User{}, err
	}
	if uu.Username != usr.Username {
		if err = svc.checkUniqueness(ctx, uu.Username, usr.ID); err != nil {
			return User{}, err
		}
	}

	roleChanged := uu.Role != usr.Role
	usr.Username = uu.Username
	usr.DisplayName = uu.DisplayName
	usr.Role = uu.Role
	usr.UpdatedAt = time.Now().UTC()
	if uu.Password != "" {
		if err = usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, err
	}

	// live sessions carry the role; make the user log in again
	if roleChanged || uu.Password != "" {
		if err = svc.sessions.RevokeUser(ctx, usr.ID); err != nil {
			return User{}, errors.Wrap(err, "revoking sessions")
		}
	}
	return usr, nil
}

func (svc *service) Delete(ctx context.Context, sess session.Session, ids ...string) error {
	if !sess.Can(policy.ManageUsers, "", false) {
		return core.ErrForbidden
	}
	for _, id := range ids {
		if id == sess.UserID {
			return core.NewValidationError(ErrDeleteSelf)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := svc.repo.DeleteUsersByID(ctx, ids...); err != nil {
		return err
	}
	for _, id := range ids {
		if err := svc.sessions.RevokeUser(ctx, id); err != nil {
			return errors.Wrap(err, "revoking sessions")
		}
	}
	return nil
}

// Authenticate looks up exactly one user by username and verifies pwd against the stored hash.
func (svc *service) Authenticate(ctx context.Context, username, pwd string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(username, true /* lower */)})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by username")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}

	usr.LastLogin = time.Now().UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (svc *service) ChangePassword(ctx context.Context, sess session.Session, cp ChangePassword) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: sess.UserID})
	if err != nil {
		return err
	}
	if err = cp.Validate(usr, svc.validate); err != nil {
		return err
	}
	if err = usr.CheckPassword(cp.CurrentPassword); err != nil {
		return core.NewValidationError(
			ErrIncorrectPassword,
			core.FieldError{Field: "current_password", Error: ErrIncorrectPassword.Error()},
		)
	}

	if err = usr.SetPassword(cp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
