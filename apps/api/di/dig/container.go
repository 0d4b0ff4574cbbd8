package dig_container

import (
	"database/sql"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/boil"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/assessment"
	"github.com/trezcool/shule/core/attendance"
	"github.com/trezcool/shule/core/clinic"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/finance"
	"github.com/trezcool/shule/core/payroll"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/security"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
	bankingsvc "github.com/trezcool/shule/services/banking"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/services/ratelimit"
	"github.com/trezcool/shule/storage/database"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	boiledrepos "github.com/trezcool/shule/storage/database/sqlboiler"
	"github.com/trezcool/shule/storage/database/sqlxrepos"
)

type (
	Options struct {
		// AutoMigrate applies pending migrations when opening postgres.
		AutoMigrate bool
	}

	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage is the result of opening the configured database engine.
	Storage struct {
		dig.Out

		// DB is nil with the in-memory engine
		DB          *sql.DB
		Tx          core.TxRunner
		Users       user.Repository
		School      school.Repository
		Students    student.Repository
		Assessments assessment.Repository
		Attendance  attendance.Repository
		Wallets     wallet.Repository
		Finance     finance.Repository
		Payroll     payroll.Repository
		Clinic      clinic.Repository
		Gate        security.Repository
		Dashboard   dashboard.Repository
	}

	// ServerParam gathers what the echo server depends on.
	ServerParam struct {
		dig.In

		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		Limiter       ratelimit.Limiter
		UserSvc       user.ServiceInterface
		SchoolSvc     *school.Service
		StudentSvc    *student.Service
		AssessmentSvc *assessment.Service
		AttendanceSvc *attendance.Service
		WalletSvc     *wallet.Service
		FinanceSvc    *finance.Service
		PayrollSvc    *payroll.Service
		ClinicSvc     *clinic.Service
		GateSvc       *security.Service
		DashboardSvc  *dashboard.Service
	}
)

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger("API : ", conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger("DB : ", conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newStorage(conf *core.Config, opts Options, loggerParam DBLoggerParam) (Storage, error) {
	if conf.Database.Engine == "inmem" {
		loggerParam.Logger.Info("using the in-memory database: data is lost on exit")
		db := inmemdb.Open()
		return Storage{
			Tx:          inmemdb.NewTxRunner(db),
			Users:       inmemdb.NewUserRepository(db),
			School:      inmemdb.NewSchoolRepository(db),
			Students:    inmemdb.NewStudentRepository(db),
			Assessments: inmemdb.NewAssessmentRepository(db),
			Attendance:  inmemdb.NewAttendanceRepository(db),
			Wallets:     inmemdb.NewWalletRepository(db),
			Finance:     inmemdb.NewFinanceRepository(db),
			Payroll:     inmemdb.NewPayrollRepository(db),
			Clinic:      inmemdb.NewClinicRepository(db),
			Gate:        inmemdb.NewGateRepository(db),
			Dashboard:   inmemdb.NewDashboardRepository(db),
		}, nil
	}

	db, err := openPostgres(conf, opts.AutoMigrate)
	if err != nil {
		return Storage{}, errors.Wrap(err, "setting up database")
	}
	boil.DebugMode = conf.Debug
	return Storage{
		DB:          db.DB,
		Tx:          database.NewTxRunner(db),
		Users:       sqlxrepos.NewUserRepository(db),
		School:      sqlxrepos.NewSchoolRepository(db),
		Students:    sqlxrepos.NewStudentRepository(db),
		Assessments: sqlxrepos.NewAssessmentRepository(db),
		Attendance:  sqlxrepos.NewAttendanceRepository(db),
		Wallets:     sqlxrepos.NewWalletRepository(db),
		Finance:     sqlxrepos.NewFinanceRepository(db),
		Payroll:     sqlxrepos.NewPayrollRepository(db),
		Clinic:      sqlxrepos.NewClinicRepository(db),
		Gate:        sqlxrepos.NewGateRepository(db),
		Dashboard:   boiledrepos.NewDashboardRepository(db),
	}, nil
}

func openPostgres(conf *core.Config, migrate bool) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

func newUserServiceInterface(svc *user.Service) user.ServiceInterface {
	return svc
}

func newSchoolService(repo school.Repository, users *user.Service) *school.Service {
	return school.NewService(repo, users)
}

func newWalletService(
	repo wallet.Repository,
	tx core.TxRunner,
	provider wallet.AccountProvider,
	users *user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *wallet.Service {
	return wallet.NewService(repo, tx, provider, users, mailSvc, logger, conf)
}

func newStudentService(
	repo student.Repository,
	tx core.TxRunner,
	users user.Repository,
	classes *school.Service,
	wallets *wallet.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *student.Service {
	return student.NewService(repo, tx, users, classes, wallets, mailSvc, logger, conf)
}

func newAssessmentService(
	repo assessment.Repository,
	tx core.TxRunner,
	schoolSvc *school.Service,
	students *student.Service,
	conf *core.Config,
) *assessment.Service {
	return assessment.NewService(repo, tx, schoolSvc, students, conf)
}

func newAttendanceService(repo attendance.Repository, tx core.TxRunner, schoolSvc *school.Service, students *student.Service) *attendance.Service {
	return attendance.NewService(repo, tx, schoolSvc, students)
}

func newFinanceService(
	repo finance.Repository,
	tx core.TxRunner,
	classes *school.Service,
	students *student.Service,
	wallets *wallet.Service,
) *finance.Service {
	return finance.NewService(repo, tx, classes, students, wallets)
}

func newPayrollService(
	repo payroll.Repository,
	tx core.TxRunner,
	users *user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *payroll.Service {
	return payroll.NewService(repo, tx, users, mailSvc, logger, conf)
}

func newClinicService(repo clinic.Repository, students *student.Service) *clinic.Service {
	return clinic.NewService(repo, students)
}

func newGateService(repo security.Repository, users *user.Service) *security.Service {
	return security.NewService(repo, users)
}

func newServer(p ServerParam, shutdown chan os.Signal) echoapi.Server {
	return echoapi.NewServer(p.Conf.Server.Address, shutdown, &echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		Limiter:       p.Limiter,
		UserSvc:       p.UserSvc,
		SchoolSvc:     p.SchoolSvc,
		StudentSvc:    p.StudentSvc,
		AssessmentSvc: p.AssessmentSvc,
		AttendanceSvc: p.AttendanceSvc,
		WalletSvc:     p.WalletSvc,
		FinanceSvc:    p.FinanceSvc,
		PayrollSvc:    p.PayrollSvc,
		ClinicSvc:     p.ClinicSvc,
		GateSvc:       p.GateSvc,
		DashboardSvc:  p.DashboardSvc,
	})
}

// New returns a new dependency injection dig.Container.
// `newConfig` is core.NewConfig outside of tests.
func New(newConfig func() *core.Config, opts Options) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(func() Options { return opts }))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(emailsvc.New))
	must(c.Provide(bankingsvc.New))
	must(c.Provide(ratelimit.New))
	must(c.Provide(newValidator))

	must(c.Provide(user.NewService))
	must(c.Provide(newUserServiceInterface))
	must(c.Provide(newSchoolService))
	must(c.Provide(newWalletService))
	must(c.Provide(newStudentService))
	must(c.Provide(newAssessmentService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newFinanceService))
	must(c.Provide(newPayrollService))
	must(c.Provide(newClinicService))
	must(c.Provide(newGateService))
	must(c.Provide(dashboard.NewService))

	must(c.Provide(func() chan os.Signal { return make(chan os.Signal, 1) }))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
