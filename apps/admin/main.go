package main

import (
	"database/sql"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/shule/apps/api/di/dig"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/payroll"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
	appfs "github.com/trezcool/shule/fs"
	logsvc "github.com/trezcool/shule/services/logger"
)

type cliParam struct {
	dig.In

	Conf     *core.Config
	DB       *sql.DB
	UserRepo user.Repository
	Payroll  *payroll.Service
	Wallets  *wallet.Service
	Validate *validator.Validate
}

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger("ADMIN : ", conf)

	c := dig_container.New(func() *core.Config { return conf }, dig_container.Options{})
	err := c.Invoke(func(p cliParam) error {
		if err := core.ParseEmailTemplates(appfs.FS, p.Conf, logger); err != nil {
			return err
		}
		user.LoadCommonPasswords(appfs.FS, logger)

		if p.DB != nil {
			defer func() { _ = p.DB.Close() }()
		}

		cli := commandLine{
			db:       p.DB,
			usrRepo:  p.UserRepo,
			payroll:  p.Payroll,
			wallets:  p.Wallets,
			validate: p.Validate,
			out:      os.Stdout,
		}
		return cli.run(os.Args)
	})
	if err != nil {
		if err != errHelp {
			logger.Std().Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
