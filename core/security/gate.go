package security

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

var (
	ErrNotFound          = core.NewNotFoundError("visitor log not found")
	ErrAlreadyCheckedOut = core.NewConflictError("visitor already checked out")
	ErrInvalidHost       = errors.New("host must be an active user")
)

// VisitorLog records a visitor at the school gate.
type VisitorLog struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Purpose      string    `json:"purpose"`
	HostID       string    `json:"host_id,omitempty"`
	CheckedInAt  time.Time `json:"checked_in_at"`
	CheckedOutAt time.Time `json:"checked_out_at"`
	RecordedBy   string    `json:"recorded_by"`
}

func (vl VisitorLog) Inside() bool { return vl.CheckedOutAt.IsZero() }

type CheckIn struct {
	Name    string `json:"name" validate:"required,max=100"`
	Phone   string `json:"phone" validate:"omitempty,min=7,max=20"`
	Purpose string `json:"purpose" validate:"required,max=255"`
	HostID  string `json:"host_id" validate:"omitempty,uuid"`
}

func (ci *CheckIn) Validate(validate *validator.Validate) error {
	ci.Name = core.CleanString(ci.Name)
	ci.Phone = core.CleanString(ci.Phone)
	ci.Purpose = core.CleanString(ci.Purpose)
	return validate.Struct(ci)
}

type Filter struct {
	ActiveOnly bool      `query:"active"`
	From       time.Time `query:"from"`
	To         time.Time `query:"to"`
}

type (
	Repository interface {
		CreateLog(ctx context.Context, vl VisitorLog, exec ...core.DBExecutor) (VisitorLog, error)
		GetLog(ctx context.Context, id string, exec ...core.DBExecutor) (VisitorLog, error)
		// CheckOut sets the check out time of a visitor still inside.
		// It fails with ErrAlreadyCheckedOut otherwise.
		CheckOut(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (VisitorLog, error)
		// QueryLogs lists logs, latest check in first.
		QueryLogs(ctx context.Context, filter Filter, exec ...core.DBExecutor) ([]VisitorLog, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo    Repository
		users   UserGetter
		nowFunc func() time.Time
	}
)

func NewService(repo Repository, users UserGetter) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
	).CheckAndPanic()

	return &Service{repo: repo, users: users, nowFunc: func() time.Time { return time.Now().UTC() }}
}

// CheckIn records a visitor entering the school. `ci` is expected to be validated.
func (svc *Service) CheckIn(ctx context.Context, guard user.User, ci CheckIn) (VisitorLog, error) {
	if ci.HostID != "" {
		host, err := svc.users.GetByID(ctx, ci.HostID)
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return VisitorLog{}, errors.Wrap(err, "finding host")
		}
		if err != nil || !host.Active() {
			return VisitorLog{}, core.NewFieldValidationError("host_id", ErrInvalidHost)
		}
	}
	return svc.repo.CreateLog(ctx, VisitorLog{
		Name:        ci.Name,
		Phone:       ci.Phone,
		Purpose:     ci.Purpose,
		HostID:      ci.HostID,
		CheckedInAt: svc.nowFunc(),
		RecordedBy:  guard.ID,
	})
}

// CheckOut records a visitor leaving the school; a visitor can only check out once.
func (svc *Service) CheckOut(ctx context.Context, id string) (VisitorLog, error) {
	vl, err := svc.repo.GetLog(ctx, id)
	if err != nil {
		return VisitorLog{}, err
	}
	if !vl.Inside() {
		return VisitorLog{}, ErrAlreadyCheckedOut
	}
	return svc.repo.CheckOut(ctx, id, svc.nowFunc())
}

func (svc *Service) Get(ctx context.Context, id string) (VisitorLog, error) {
	return svc.repo.GetLog(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter Filter) ([]VisitorLog, error) {
	return svc.repo.QueryLogs(ctx, filter)
}
