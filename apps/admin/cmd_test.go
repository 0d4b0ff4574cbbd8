package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/payroll"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
	"github.com/trezcool/shule/testutil"
)

func setup(t *testing.T) (*commandLine, *testutil.App) {
	t.Helper()
	app := testutil.NewApp()
	return &commandLine{
		db:       new(sql.DB), // goose is mocked
		usrRepo:  app.UserRepo,
		payroll:  app.Payroll,
		wallets:  app.Wallets,
		validate: app.Validate,
		out:      io.Discard,
	}, app
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		if dir != "migrations" {
			return fmt.Errorf("unexpected dir %q", dir)
		}
		if _, err := fs.Stat(fsys, "migrations"); err != nil {
			return err
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "bursary", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	t.Run("in-memory engine", func(t *testing.T) {
		cli.db = nil
		assert.Equal(t, errNoSQLDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, app := setup(t)

	usr := testutil.CreateUser(t, app.UserRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)
	withdrawn := testutil.CreateUser(t, app.UserRepo, "Withdrawn", "gone", "gone@test.cd", "mdr", []string{user.RoleStudent}, false)

	type extra struct {
		pwd     string
		confirm string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "no password", args: []string{"resetpassword", "-username", usr.Username}, wantErr: errHelp},
		{name: "confirmation mismatch", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol", confirm: "lmao"}, wantErr: errPasswordMismatch},
		{name: "deactivated account", args: []string{"resetpassword", "-username", withdrawn.Username}, extra: extra{pwd: "lol"}, wantErr: errInactiveUser},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email (any case)", args: []string{"resetpassword", "-username", "AWE@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		prompts := 0
		readPasswordFunc = func(fd int) ([]byte, error) {
			prompts++
			ext, ok := tt.extra.(extra)
			if !ok {
				return nil, nil
			}
			if prompts == 2 && ext.confirm != "" {
				return []byte(ext.confirm), nil
			}
			return []byte(ext.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err == nil {
				assert.Equal(t, 2, prompts)
				refreshedUsr, err := app.UserRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.False(t, bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash), "failed to update new password")
				assert.NoError(t, refreshedUsr.CheckPassword(tt.extra.(extra).pwd))
			}
		})
	}

	t.Run("reactivates the account", func(t *testing.T) {
		out := new(bytes.Buffer)
		cli.out = out
		defer func() { cli.out = io.Discard }()
		readPasswordFunc = func(fd int) ([]byte, error) { return []byte("back-again"), nil }

		require.NoError(t, cli.run([]string{"admin", "resetpassword", "-username", withdrawn.Email, "-activate"}))
		assert.Contains(t, out.String(), `password of "gone" reset (active: true)`)

		refreshedUsr, err := app.UserRepo.GetUser(context.Background(), user.GetFilter{ID: withdrawn.ID})
		require.NoError(t, err)
		assert.True(t, refreshedUsr.Active())
		assert.NoError(t, refreshedUsr.CheckPassword("back-again"))
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli, app := setup(t)
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("s3cr3t-pwd"), nil }

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email required", args: []string{"adduser", "-username", "boss"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-username", "boss", "-email", "boss@test.cd", "-roles", "janitor:"}, wantErrStr: "unknown role \"janitor:\""},
		{name: "create admin", args: []string{"adduser", "-username", "Boss", "-email", "BOSS@test.cd", "-name", "The Boss", "-admin"}},
		{name: "update roles", args: []string{"adduser", "-username", "nurse", "-email", "nurse@test.cd", "-roles", "medical:, hr:"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	ctx := context.Background()
	boss, err := app.UserRepo.GetUser(ctx, user.GetFilter{Username: "boss"})
	require.NoError(t, err)
	assert.Equal(t, "boss@test.cd", boss.Email)
	assert.Equal(t, "The Boss", boss.Name)
	assert.Equal(t, []string{user.RoleAdminOwner}, boss.Roles)
	assert.True(t, boss.Active())
	assert.NoError(t, boss.CheckPassword("s3cr3t-pwd"))

	nurse, err := app.UserRepo.GetUser(ctx, user.GetFilter{Email: "nurse@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleMedical, user.RoleHR}, nurse.Roles)

	// the existing user is updated, not duplicated
	require.NoError(t, cli.run([]string{"admin", "adduser", "-username", "nurse", "-email", "nurse@test.cd", "-roles", "medical:"}))
	users, err := app.UserRepo.QueryUsers(ctx, &user.QueryFilter{Search: "nurse"}, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, nurse.ID, users[0].ID)
	assert.Equal(t, []string{user.RoleMedical}, users[0].Roles)
}

func Test_commandLine_payroll(t *testing.T) {
	cli, app := setup(t)
	hr := testutil.CreateUser(t, app.UserRepo, "HR", "hr", "hr@test.cd", "", []string{user.RoleHR}, true)
	teacher := testutil.CreateUser(t, app.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	_, err := app.Payroll.SetSalary(context.Background(), teacher.ID, payroll.SetSalary{Basic: 100000, Allowances: 20000})
	require.NoError(t, err)

	tests := []cliTest{
		{name: "no args", args: []string{"payroll"}, wantErr: errHelp},
		{name: "creator required", args: []string{"payroll", "-period", "2024-09"}, wantErr: errHelp},
		{name: "unknown creator", args: []string{"payroll", "-period", "2024-09", "-by", "lol"}, wantErr: user.ErrNotFound},
		{name: "not hr", args: []string{"payroll", "-period", "2024-09", "-by", teacher.Username}, wantErrStr: "\"teacher\" is not allowed to generate payroll runs"},
		{name: "invalid period", args: []string{"payroll", "-period", "09/2024", "-by", hr.Username}, wantErrStr: "invalid period"},
		{name: "generate", args: []string{"payroll", "-period", "2024-09", "-by", hr.Email}},
		{name: "one run per period", args: []string{"payroll", "-period", "2024-09", "-by", hr.Username}, wantErr: payroll.ErrRunExists},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.name == "invalid period" {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
				return
			}
			tt.check(t, err)
		})
	}

	runs, err := app.Payroll.QueryRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "2024-09", runs[0].Period)
	assert.Equal(t, hr.ID, runs[0].CreatedBy)
}

func Test_commandLine_reconcile(t *testing.T) {
	cli, app := setup(t)
	out := new(bytes.Buffer)
	cli.out = out

	class := testutil.CreateClass(t, app, "JSS 1", 7, "")
	ada := testutil.Admit(t, app, "Ada", "Obi", class.ID, "mama.obi@test.cd")

	app.Bank.AddPayment(wallet.StatementEntry{
		Reference:     "TRF-MISSED",
		AccountNumber: ada.Wallet.AccountNumber,
		Amount:        20000,
	})

	tests := []cliTest{
		{name: "invalid from", args: []string{"reconcile", "-from", "yesterday"}, wantErrStr: "invalid date \"yesterday\", expected YYYY-MM-DD"},
		{name: "unknown wallet", args: []string{"reconcile", "-wallet", "lol"}, wantErr: wallet.ErrNotFound},
		{name: "report only", args: []string{"reconcile", "-wallet", ada.Wallet.ID}},
		{name: "fix all", args: []string{"reconcile", "-fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}

	assert.Contains(t, out.String(), wallet.KindMissingCredit+" TRF-MISSED")
	assert.Contains(t, out.String(), "(fixed)")

	w, err := app.Wallets.Get(context.Background(), ada.Wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), w.Balance)
}
