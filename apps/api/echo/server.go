package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
	"github.com/trezcool/shule/services/ratelimit"
)

type (
	Deps struct {
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

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		addr     string
		shutdown chan os.Signal
		deps     *Deps
		auth     *authenticator
		app      *echo.Echo
	}
)

var _ Server = (*server)(nil)

// NewServer sets up the API. `shutdown` receives a signal when a core.shutdown error is caught.
func NewServer(addr string, shutdown chan os.Signal, deps *Deps) Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps, "deps"),
		vala.IsNotNil(deps.Conf, "deps.Conf"),
		vala.IsNotNil(deps.Logger, "deps.Logger"),
		vala.IsNotNil(deps.Validate, "deps.Validate"),
		vala.IsNotNil(deps.Translator, "deps.Translator"),
		vala.IsNotNil(deps.Limiter, "deps.Limiter"),
		vala.IsNotNil(deps.UserSvc, "deps.UserSvc"),
	).CheckAndPanic()

	s := &server{
		addr:     addr,
		shutdown: shutdown,
		deps:     deps,
		auth:     newAuthenticator(deps.Conf, deps.UserSvc),
		app:      echo.New(),
	}
	s.setup()
	return s
}

func (s *server) signalShutdown() {
	if s.shutdown != nil {
		s.shutdown <- syscall.SIGTERM
	}
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = conf.TestMode

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.auth.jwtConfig)
	limit := rateLimitMiddleware(s.deps.Limiter, s.deps.Logger)

	registerUserAPI(v1, jwt, limit, s.auth, s.deps)
	registerSchoolAPI(v1, jwt, s.auth, s.deps)
	registerStudentAPI(v1, jwt, s.auth, s.deps)
	registerAssessmentAPI(v1, jwt, s.auth, s.deps)
	registerAttendanceAPI(v1, jwt, s.auth, s.deps)
	registerWalletAPI(v1, jwt, limit, s.auth, s.deps)
	registerFinanceAPI(v1, jwt, s.auth, s.deps)
	registerPayrollAPI(v1, jwt, s.auth, s.deps)
	registerClinicAPI(v1, jwt, s.auth, s.deps)
	registerGateAPI(v1, jwt, s.auth, s.deps)
	registerDashboardAPI(v1, jwt, s.auth, s.deps)
}

func (s *server) Start() error {
	return s.app.Start(s.addr)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
