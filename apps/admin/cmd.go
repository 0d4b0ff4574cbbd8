package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/shule/core/payroll"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
)

const dateLayout = "2006-01-02"

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp             = errors.New("help provided")
	errPasswordMismatch = errors.New("passwords do not match")
)

type commandLine struct {
	db       *sql.DB // nil with the in-memory engine
	usrRepo  user.Repository
	payroll  *payroll.Service
	wallets  *wallet.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-roles ROLE,...] [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL [-activate] - reset a user's password, optionally reactivating the account")
	fmt.Fprintln(cli.out, "  payroll -period YYYY-MM -by USERNAME|EMAIL - generate the payroll run of a month")
	fmt.Fprintln(cli.out, "  reconcile [-wallet ID] [-from YYYY-MM-DD] [-to YYYY-MM-DD] [-fix] - reconcile wallets with the bank")
}

func (cli *commandLine) prompt(label string) ([]byte, error) {
	fmt.Fprint(cli.out, label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	return pwd, err
}

// readPassword prompts for a password, then for its confirmation.
func (cli *commandLine) readPassword(cmd *flag.FlagSet) (string, error) {
	pwd, err := cli.prompt("Enter password:")
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	confirm, err := cli.prompt("Confirm password:")
	if err != nil {
		return "", err
	}
	if string(confirm) != string(pwd) {
		return "", errPasswordMismatch
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRoles := addUserCmd.String("roles", "", "Comma separated roles (eg. teacher:,hr:).")
	addUserAdmin := addUserCmd.Bool("admin", false, "Make the user an admin owner.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")
	resetPasswordActivate := resetPasswordCmd.Bool("activate", false, "Reactivate a deactivated account.")

	payrollCmd := flag.NewFlagSet("payroll", flag.ContinueOnError)
	payrollPeriod := payrollCmd.String("period", "", "The month to pay (YYYY-MM).")
	payrollBy := payrollCmd.String("by", "", "Username or email of the HR user generating the run.")

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcileWallet := reconcileCmd.String("wallet", "", "The wallet to reconcile. All wallets when empty.")
	reconcileFrom := reconcileCmd.String("from", "", "Start of the statement window (YYYY-MM-DD).")
	reconcileTo := reconcileCmd.String("to", "", "End of the statement window (YYYY-MM-DD).")
	reconcileFix := reconcileCmd.Bool("fix", false, "Record missing credits and realign balances.")

	for _, cmd := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, payrollCmd, reconcileCmd} {
		cmd.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, splitRoles(*addUserRoles), *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(resetPasswordCmd, *resetPasswordUname, *resetPasswordActivate)

	case "payroll":
		if err := payrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *payrollPeriod == "" || *payrollBy == "" {
			payrollCmd.Usage()
			return errHelp
		}
		return cli.generatePayroll(*payrollPeriod, *payrollBy)

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return err
		}
		from, err := parseDate(*reconcileFrom)
		if err != nil {
			return err
		}
		to, err := parseDate(*reconcileTo)
		if err != nil {
			return err
		}
		return cli.reconcile(*reconcileWallet, from, to, *reconcileFix)

	default:
		cli.printUsage()
		return errHelp
	}
}

func splitRoles(s string) []string {
	roles := make([]string, 0)
	for _, role := range strings.Split(s, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// parseDate returns the zero time for an empty string
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
