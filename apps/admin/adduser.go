package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/policy"
	"github.com/trezcool/propdesk/core/user"
)

var errInvalidRole = errors.New("invalid role")

// addUser updates or creates a user.User with the given role and password.
func (cli *commandLine) addUser(ctx context.Context, uname, displayName, roleName, pwd string) error {
	role, ok := policy.ParseRole(roleName)
	if !ok {
		return errInvalidRole
	}
	uname = core.CleanString(uname, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{Username: uname, CreatedAt: now}
	}
	usr.DisplayName = core.CleanString(displayName)
	usr.Role = role
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "saving user")
	}
	return nil
}
