// Package testutil wires the services over the in-memory database and provides fixtures for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

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
	appfs "github.com/trezcool/shule/fs"
	bankingsvc "github.com/trezcool/shule/services/banking"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
)

// App holds the services of a test, all sharing one fresh in-memory database.
type App struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *inmemdb.DB
	Tx         *inmemdb.TxRunner
	Validate   *validator.Validate
	Translator ut.Translator
	Mail       *emailsvc.ConsoleService
	Bank       *bankingsvc.DummyProvider

	UserRepo    user.Repository
	Users       *user.Service
	School      *school.Service
	Students    *student.Service
	Assessments *assessment.Service
	Attendance  *attendance.Service
	Wallets     *wallet.Service
	Finance     *finance.Service
	Payroll     *payroll.Service
	Clinic      *clinic.Service
	Gate        *security.Service
	Dashboard   *dashboard.Service
}

func NewApp() *App {
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	if err := core.ParseEmailTemplates(appfs.FS, conf, logger); err != nil {
		panic(err)
	}
	db := inmemdb.Open()
	tx := inmemdb.NewTxRunner(db)
	mailSvc := emailsvc.NewConsoleServiceMock(logger, conf)
	bank := bankingsvc.NewDummyProvider(conf)

	validate, translator := NewValidator()

	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	schoolSvc := school.NewService(inmemdb.NewSchoolRepository(db), usrSvc)
	walletSvc := wallet.NewService(inmemdb.NewWalletRepository(db), tx, bank, usrSvc, mailSvc, logger, conf)
	studentSvc := student.NewService(inmemdb.NewStudentRepository(db), tx, usrRepo, schoolSvc, walletSvc, mailSvc, logger, conf)

	return &App{
		Conf:        conf,
		Logger:      logger,
		DB:          db,
		Tx:          tx,
		Validate:    validate,
		Translator:  translator,
		Mail:        mailSvc,
		Bank:        bank,
		UserRepo:    usrRepo,
		Users:       usrSvc,
		School:      schoolSvc,
		Students:    studentSvc,
		Assessments: assessment.NewService(inmemdb.NewAssessmentRepository(db), tx, schoolSvc, studentSvc, conf),
		Attendance:  attendance.NewService(inmemdb.NewAttendanceRepository(db), tx, schoolSvc, studentSvc),
		Wallets:     walletSvc,
		Finance:     finance.NewService(inmemdb.NewFinanceRepository(db), tx, schoolSvc, studentSvc, walletSvc),
		Payroll:     payroll.NewService(inmemdb.NewPayrollRepository(db), tx, usrSvc, mailSvc, logger, conf),
		Clinic:      clinic.NewService(inmemdb.NewClinicRepository(db), studentSvc),
		Gate:        security.NewService(inmemdb.NewGateRepository(db), usrSvc),
		Dashboard:   dashboard.NewService(inmemdb.NewDashboardRepository(db)),
	}
}

// NewValidator returns a validator knowing every custom tag of the domain.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	student.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  &isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, app *App, name string, level int, formTeacherID string) school.Class {
	t.Helper()
	class, err := app.School.CreateClass(context.Background(), school.NewClass{
		Name:          name,
		Level:         level,
		AcademicYear:  "2024/2025",
		FormTeacherID: formTeacherID,
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return class
}

func CreateSubject(t *testing.T, app *App, classID, name, code, teacherID string) school.Subject {
	t.Helper()
	subject, err := app.School.CreateSubject(context.Background(), school.NewSubject{
		Name:      name,
		Code:      code,
		ClassID:   classID,
		TeacherID: teacherID,
	})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return subject
}

func AdmissionRequest(first, last, classID, parentEmail string) student.AdmissionRequest {
	return student.AdmissionRequest{
		FirstName:   first,
		LastName:    last,
		DateOfBirth: "2012-03-14",
		Gender:      "female",
		ClassID:     classID,
		Parent: student.AdmissionParent{
			Name:         "Parent of " + first,
			Email:        parentEmail,
			Phone:        "0812345678",
			Relationship: "mother",
		},
	}
}

// Admit admits a student whose parent is identified by `parentEmail`.
func Admit(t *testing.T, app *App, first, last, classID, parentEmail string) student.AdmissionResult {
	t.Helper()
	res, err := app.Students.Admit(context.Background(), AdmissionRequest(first, last, classID, parentEmail))
	if err != nil {
		t.Fatalf("Admit() failed: %v", err)
	}
	return res
}

// CreateAssessment creates an assessment of the subject, open from an hour ago until `due`.
func CreateAssessment(t *testing.T, app *App, teacher user.User, subjectID string, requiresToken bool, due time.Time) assessment.Assessment {
	t.Helper()
	a, err := app.Assessments.Create(context.Background(), teacher, assessment.NewAssessment{
		SubjectID:     subjectID,
		Title:         "Fractions",
		Kind:          assessment.KindTest,
		Term:          "2024-T1",
		MaxScore:      50,
		Weight:        1,
		RequiresToken: requiresToken,
		OpensAt:       time.Now().Add(-time.Hour),
		DueAt:         due,
	})
	if err != nil {
		t.Fatalf("CreateAssessment() failed: %v", err)
	}
	return a
}
