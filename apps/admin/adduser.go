package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	for _, role := range roles {
		if !core.StringInSlice(role, user.AllRoles) {
			return fmt.Errorf("unknown role %q", role)
		}
	}
	if isAdmin {
		roles = append(roles, user.RoleAdminOwner)
	}

	usr, err := cli.findUser(ctx, uname, email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if name != "" {
		usr.Name = core.CleanString(name)
	}
	if len(roles) > 0 {
		usr.Roles = roles
	}
	usr.UpdatedAt = time.Now().UTC()
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	if usr, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved (id: %s)\n", usr.Username, usr.ID)
	return nil
}

// findUser looks a user up by username first, then by email
func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if err == nil || errors.Cause(err) != user.ErrNotFound {
		return usr, err
	}
	return cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
}
