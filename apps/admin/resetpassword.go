package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var errInactiveUser = errors.New("the account is deactivated, pass -activate to reactivate it")

// resetPassword prompts for a new password of the user owning `login` (username or email).
// Deactivated accounts, such as those of withdrawn students, are only reset along with `activate`.
func (cli *commandLine) resetPassword(cmd *flag.FlagSet, login string, activate bool) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: core.CleanString(login, true /* lower */)})
	if err != nil {
		return errors.Wrapf(err, "finding %q", login)
	}
	if !usr.Active() && !activate {
		return errInactiveUser
	}

	fmt.Fprintf(cli.out, "Resetting the password of %s <%s>\n", usr.Username, usr.Email)
	pwd, err := cli.readPassword(cmd)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	if activate {
		usr.SetActive(true)
	}
	usr.UpdatedAt = time.Now().UTC()
	if usr, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %q reset (active: %t)\n", usr.Username, usr.Active())
	return nil
}
