package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/payroll"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
)

// generatePayroll generates the draft run of `period` on behalf of the HR user `by`.
func (cli *commandLine) generatePayroll(period, by string) error {
	ctx := context.Background()
	creator, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: core.CleanString(by, true /* lower */)})
	if err != nil {
		return err
	}
	if !creator.HasAnyRole(user.RoleHR, user.RoleAdmin) {
		return errors.Errorf("%q is not allowed to generate payroll runs", creator.Username)
	}

	gr := payroll.GenerateRun{Period: period}
	if err = gr.Validate(cli.validate); err != nil {
		return errors.Wrap(err, "invalid period")
	}
	run, slips, err := cli.payroll.Generate(ctx, creator, gr)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "run %s (%s): %d payslips, net total %d\n", run.ID, run.Period, len(slips), run.TotalNet)
	return nil
}

// reconcile reconciles one wallet, or all of them when `walletID` is empty.
func (cli *commandLine) reconcile(walletID string, from, to time.Time, fix bool) error {
	ctx := context.Background()
	if walletID != "" {
		report, err := cli.wallets.Reconcile(ctx, walletID, from, to, fix)
		if err != nil {
			return err
		}
		cli.printReport(report)
		return nil
	}

	reports, err := cli.wallets.ReconcileAll(ctx, from, to, fix)
	for _, report := range reports {
		cli.printReport(report)
	}
	return err
}

func (cli *commandLine) printReport(r wallet.Report) {
	if r.Balanced() {
		fmt.Fprintf(cli.out, "%s: balanced (%d)\n", r.AccountNumber, r.StoredBalance)
		return
	}
	fmt.Fprintf(cli.out, "%s: stored %d, ledger %d\n", r.AccountNumber, r.StoredBalance, r.LedgerBalance)
	for _, d := range r.Discrepancies {
		fixed := ""
		if d.Fixed {
			fixed = " (fixed)"
		}
		fmt.Fprintf(cli.out, "  - %s %s expected %d, got %d%s\n", d.Kind, d.Reference, d.Expected, d.Actual, fixed)
	}
}
