package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/session"
	"github.com/trezcool/propdesk/core/user"
	"github.com/trezcool/propdesk/storage/database/inmem"
	"github.com/trezcool/propdesk/testutil"
)

const testPwd = "Fr0g-Lotus-77"

func setup(t *testing.T) (user.Service, user.Repository, session.Service, user.User) {
	t.Helper()
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	sessions := session.NewService(inmemdb.NewSessionStore(db), time.Hour)
	svc := user.NewService(repo, sessions, testutil.NewValidator())
	admin := testutil.CreateUser(t, repo, "Admin", "admin", testPwd, policy.RoleAdmin)
	return svc, repo, sessions, admin
}

func isValidationErr(err error) bool {
	var vErr *core.ValidationError
	var fieldErrs validator.ValidationErrors
	return errors.As(err, &vErr) || errors.As(err, &fieldErrs)
}

func TestService_Create(t *testing.T) {
	svc, repo, _, admin := setup(t)
	ctx := context.Background()
	adminSess := testutil.SessionFor(admin)
	ana := testutil.CreateUser(t, repo, "Ana", "ana", testPwd, policy.RoleInstructor)

	valid := user.NewUser{
		Username:        " Ben ",
		DisplayName:     "Ben",
		Role:            "instructor",
		Password:        testPwd,
		PasswordConfirm: testPwd,
	}
	withUname := func(uname string) user.NewUser {
		nu := valid
		nu.Username = uname
		return nu
	}
	withPwd := func(pwd string) user.NewUser {
		nu := valid
		nu.Password, nu.PasswordConfirm = pwd, pwd
		return nu
	}
	withRole := func(role policy.Role) user.NewUser {
		nu := valid
		nu.Role = role
		return nu
	}

	tests := []struct {
		name     string
		sess     session.Session
		data     user.NewUser
		wantErr  error
		wantVErr bool
	}{
		{name: "instructor forbidden", sess: testutil.SessionFor(ana), data: valid, wantErr: core.ErrForbidden},
		{name: "duplicate username", sess: adminSess, data: withUname("ANA"), wantVErr: true},
		{name: "bad username", sess: adminSess, data: withUname("b en"), wantVErr: true},
		{name: "unknown role", sess: adminSess, data: withRole("teacher"), wantVErr: true},
		{name: "short password", sess: adminSess, data: withPwd("abc123"), wantVErr: true},
		{name: "numeric password", sess: adminSess, data: withPwd("1234567890"), wantVErr: true},
		{name: "password like username", sess: adminSess, data: user.NewUser{
			Username: "benjamin", DisplayName: "Ben", Role: policy.RolePA, Password: "Benjamin1", PasswordConfirm: "Benjamin1",
		}, wantVErr: true},
		{name: "password mismatch", sess: adminSess, data: user.NewUser{
			Username: "ben", DisplayName: "Ben", Role: policy.RolePA, Password: testPwd, PasswordConfirm: "nope",
		}, wantVErr: true},
		{name: "valid", sess: adminSess, data: valid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.Create(ctx, tt.sess, tt.data)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantVErr:
				assert.True(t, isValidationErr(err), "got %v", err)
			default:
				require.NoError(t, err)
				assert.Equal(t, "ben", usr.Username)
				assert.Equal(t, policy.RoleInstructor, usr.Role)
				assert.NotEqual(t, []byte(testPwd), usr.PasswordHash)
				assert.NoError(t, usr.CheckPassword(testPwd))
			}
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	svc, repo, _, _ := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, repo, "Ana", "ana", testPwd, policy.RoleInstructor)

	tests := []struct {
		name    string
		uname   string
		pwd     string
		wantErr error
	}{
		{name: "valid", uname: "ana", pwd: testPwd},
		{name: "username is case-insensitive", uname: " ANA ", pwd: testPwd},
		{name: "wrong password", uname: "ana", pwd: "wrong-pass", wantErr: user.ErrInvalidCredentials},
		{name: "unknown user", uname: "nobody", pwd: testPwd, wantErr: user.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.Authenticate(ctx, tt.uname, tt.pwd)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ana", usr.Username)
			assert.False(t, usr.LastLogin.IsZero())
		})
	}
}

func TestService_Authenticate_SuperAdmin(t *testing.T) {
	db := inmemdb.Open()
	require.NoError(t, inmemdb.SeedSuperAdmin(context.Background(), db))
	repo := inmemdb.NewUserRepository(db)
	sessions := session.NewService(inmemdb.NewSessionStore(db), time.Hour)
	svc := user.NewService(repo, sessions, testutil.NewValidator())

	usr, err := svc.Authenticate(context.Background(), user.SuperAdminUsername, user.SuperAdminPassword)
	require.NoError(t, err)
	assert.Equal(t, policy.RoleSuperAdmin, usr.Role)
	assert.Equal(t, user.SuperAdminDisplayName, usr.DisplayName)
}

func TestService_Update_RevokesSessions(t *testing.T) {
	svc, repo, sessions, admin := setup(t)
	ctx := context.Background()
	adminSess := testutil.SessionFor(admin)
	ana := testutil.CreateUser(t, repo, "Ana", "ana", testPwd, policy.RoleInstructor)

	issue := func() session.Session {
		sess, err := sessions.Issue(ctx, session.Identity{UserID: ana.ID, Username: ana.Username, Role: ana.Role})
		require.NoError(t, err)
		return sess
	}

	sess := issue()
	usr, err := svc.Update(ctx, adminSess, ana.ID, user.UpdateUser{DisplayName: "Ana Maria"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", usr.DisplayName)
	assert.Equal(t, policy.RoleInstructor, usr.Role)
	_, err = sessions.Get(ctx, sess.ID)
	assert.NoError(t, err, "renaming keeps sessions alive")

	usr, err = svc.Update(ctx, adminSess, ana.ID, user.UpdateUser{Role: policy.RolePA})
	require.NoError(t, err)
	assert.Equal(t, policy.RolePA, usr.Role)
	_, err = sessions.Get(ctx, sess.ID)
	assert.Equal(t, session.ErrNotFound, err)

	_, err = svc.Update(ctx, testutil.SessionFor(ana), ana.ID, user.UpdateUser{Role: policy.RoleAdmin})
	assert.Equal(t, core.ErrForbidden, err)
	_, err = svc.Update(ctx, adminSess, "missing", user.UpdateUser{})
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_Delete(t *testing.T) {
	svc, repo, _, admin := setup(t)
	ctx := context.Background()
	adminSess := testutil.SessionFor(admin)
	ana := testutil.CreateUser(t, repo, "Ana", "ana", testPwd, policy.RoleInstructor)

	assert.True(t, isValidationErr(svc.Delete(ctx, adminSess, admin.ID)))
	assert.Equal(t, core.ErrForbidden, svc.Delete(ctx, testutil.SessionFor(ana), admin.ID))

	require.NoError(t, svc.Delete(ctx, adminSess, ana.ID))
	_, err := svc.GetByID(ctx, ana.ID)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_QueryInstructors(t *testing.T) {
	svc, repo, _, _ := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, repo, "Zoe", "zoe", "", policy.RoleInstructor)
	testutil.CreateUser(t, repo, "Ana", "ana", "", policy.RoleInstructor)
	paul := testutil.CreateUser(t, repo, "Paul", "paul", "", policy.RolePA)

	instructors, err := svc.QueryInstructors(ctx, testutil.SessionFor(paul))
	require.NoError(t, err)
	require.Len(t, instructors, 2)
	assert.Equal(t, "Ana", instructors[0].DisplayName)
	assert.Equal(t, "Zoe", instructors[1].DisplayName)
}

func TestService_ChangePassword(t *testing.T) {
	svc, repo, _, _ := setup(t)
	ctx := context.Background()
	ana := testutil.CreateUser(t, repo, "Ana", "ana", testPwd, policy.RoleInstructor)
	sess := testutil.SessionFor(ana)
	newPwd := "Crow-Pose-2024"

	err := svc.ChangePassword(ctx, sess, user.ChangePassword{
		CurrentPassword: "wrong", Password: newPwd, PasswordConfirm: newPwd,
	})
	assert.True(t, isValidationErr(err))

	err = svc.ChangePassword(ctx, sess, user.ChangePassword{
		CurrentPassword: testPwd, Password: "short", PasswordConfirm: "short",
	})
	assert.True(t, isValidationErr(err))

	require.NoError(t, svc.ChangePassword(ctx, sess, user.ChangePassword{
		CurrentPassword: testPwd, Password: newPwd, PasswordConfirm: newPwd,
	}))
	_, err = svc.Authenticate(ctx, "ana", newPwd)
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "ana", testPwd)
	assert.Equal(t, user.ErrInvalidCredentials, err)
}
