package student

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/core/wallet"
)

var (
	// errors
	ErrNotFound              = core.NewNotFoundError("student not found")
	ErrParentNotFound        = core.NewNotFoundError("parent not found")
	ErrWardNotFound          = core.NewNotFoundError("ward not found")
	ErrAdmissionNumberExists = core.NewConflictError("admission number already taken")
	ErrWardExists            = core.NewConflictError("student is already a ward of this parent")
	ErrNotParent             = errors.New("this email belongs to a user who cannot be a parent")
	ErrNotActive             = errors.New("student is not active")
	errNoUsername            = errors.New("could not generate a unique username")
)

const (
	maxAdmissionAttempts = 3
	maxUsernameAttempts  = 100
	maxSeqProbes         = 100
	tmpPasswordLength    = 12
)

var nonAlphaNum = regexp.MustCompile(`[^a-z0-9]+`)

type (
	Repository interface {
		// CreateStudent fails with ErrAdmissionNumberExists when the admission number is taken.
		CreateStudent(ctx context.Context, p Profile, exec ...core.DBExecutor) (Profile, error)
		// QueryStudents applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on the name, username or admission number.
		QueryStudents(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Profile, error)
		GetStudent(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Profile, error)
		UpdateStudent(ctx context.Context, p Profile, exec ...core.DBExecutor) (Profile, error)
		AdmissionNumberExists(ctx context.Context, number string, exec ...core.DBExecutor) (bool, error)
		// LastAdmissionSeq returns the highest sequence of admission numbers starting with `prefix`, 0 if none.
		LastAdmissionSeq(ctx context.Context, prefix string, exec ...core.DBExecutor) (int, error)

		CreateParent(ctx context.Context, p ParentProfile, exec ...core.DBExecutor) (ParentProfile, error)
		GetParent(ctx context.Context, filter ParentFilter, exec ...core.DBExecutor) (ParentProfile, error)
		UpdateParent(ctx context.Context, p ParentProfile, exec ...core.DBExecutor) (ParentProfile, error)

		// LinkWard fails with ErrWardExists when the link exists.
		LinkWard(ctx context.Context, w Ward, exec ...core.DBExecutor) (Ward, error)
		UnlinkWard(ctx context.Context, parentID, studentID string, exec ...core.DBExecutor) error
		QueryWards(ctx context.Context, parentID string, exec ...core.DBExecutor) ([]Profile, error)
		QueryParents(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]ParentProfile, error)
		IsWard(ctx context.Context, parentID, studentID string, exec ...core.DBExecutor) (bool, error)
	}

	// UserStore is the subset of user.Repository the admission writes through.
	UserStore interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error)
		GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error)
		UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error)
	}

	ClassGetter interface {
		GetClass(ctx context.Context, id string) (school.Class, error)
	}

	WalletEnsurer interface {
		EnsureWallet(ctx context.Context, owner user.User, exec ...core.DBExecutor) (wallet.Wallet, error)
	}

	Service struct {
		repo            Repository
		tx              core.TxRunner
		users           UserStore
		classes         ClassGetter
		wallets         WalletEnsurer
		mailSvc         core.EmailService
		logger          core.Logger
		admissionPrefix string
		nowFunc         func() time.Time
	}
)

func NewService(
	repo Repository,
	tx core.TxRunner,
	users UserStore,
	classes ClassGetter,
	wallets WalletEnsurer,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(classes, "classes"),
		vala.IsNotNil(wallets, "wallets"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:            repo,
		tx:              tx,
		users:           users,
		classes:         classes,
		wallets:         wallets,
		mailSvc:         mailSvc,
		logger:          logger,
		admissionPrefix: conf.AdmissionPrefix,
		nowFunc:         func() time.Time { return time.Now().UTC() },
	}
}

// Admit creates the student user & profile, the parent user & profile when the parent is new,
// links them and makes sure the parent has a wallet; all in a single transaction.
// Credentials are emailed once committed. `req` is expected to be validated.
func (svc *Service) Admit(ctx context.Context, req AdmissionRequest) (AdmissionResult, error) {
	class, err := svc.classes.GetClass(ctx, req.ClassID)
	if err != nil {
		if errors.Cause(err) == school.ErrClassNotFound {
			return AdmissionResult{}, core.NewFieldValidationError("class_id", err)
		}
		return AdmissionResult{}, errors.Wrap(err, "finding class")
	}
	dob, err := time.Parse(core.DateLayout, req.DateOfBirth)
	if err != nil {
		return AdmissionResult{}, core.NewFieldValidationError("date_of_birth", err)
	}
	if dob.After(svc.nowFunc()) {
		return AdmissionResult{}, core.NewFieldValidationError("date_of_birth", errors.New("date of birth is in the future"))
	}

	var res AdmissionResult
	for attempt := 1; ; attempt++ {
		res, err = svc.admit(ctx, req, class, dob)
		if errors.Cause(err) == ErrAdmissionNumberExists && attempt < maxAdmissionAttempts {
			svc.logger.Warn("admission number collision, retrying", attempt)
			continue
		}
		break
	}
	if err != nil {
		return AdmissionResult{}, err
	}

	admissionsTotal.Inc()
	svc.sendCredentials(res, class)
	return res, nil
}

func (svc *Service) admit(ctx context.Context, req AdmissionRequest, class school.Class, dob time.Time) (AdmissionResult, error) {
	var res AdmissionResult
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		now := svc.nowFunc()

		number, err := svc.nextAdmissionNumber(ctx, now.Year(), exec)
		if err != nil {
			return err
		}

		// student account
		if req.Email != "" {
			if err = svc.users.CheckUsernameUniqueness(ctx, "", req.Email, nil, exec); err != nil {
				if errors.Cause(err) == user.ErrEmailExists {
					return core.NewFieldValidationError("email", user.ErrEmailExists)
				}
				return errors.Wrap(err, "checking email uniqueness")
			}
		}
		res.StudentUser, res.StudentPassword, err = svc.createAccount(ctx, exec, user.User{
			Name:  req.FullName(),
			Email: req.Email,
			Roles: []string{user.RoleStudent},
		}, req.FirstName, req.LastName)
		if err != nil {
			return errors.Wrap(err, "creating student user")
		}

		res.Student, err = svc.repo.CreateStudent(ctx, Profile{
			UserID:          res.StudentUser.ID,
			ClassID:         class.ID,
			AdmissionNumber: number,
			DateOfBirth:     dob,
			Gender:          req.Gender,
			Status:          StatusActive,
			AdmittedAt:      now,
			CreatedAt:       now,
			UpdatedAt:       now,
			Name:            res.StudentUser.Name,
			Username:        res.StudentUser.Username,
		}, exec)
		if err != nil {
			return err
		}

		// parent account
		if err = svc.ensureParent(ctx, exec, req.Parent, &res); err != nil {
			return err
		}

		if _, err = svc.repo.LinkWard(ctx, Ward{
			ParentID:     res.Parent.ID,
			StudentID:    res.Student.ID,
			Relationship: req.Parent.Relationship,
			CreatedAt:    now,
		}, exec); err != nil {
			return errors.Wrap(err, "linking ward")
		}

		if res.Wallet, err = svc.wallets.EnsureWallet(ctx, res.ParentUser, exec); err != nil {
			return errors.Wrap(err, "ensuring parent wallet")
		}
		return nil
	})
	return res, err
}

// ensureParent finds the parent owning `ap.Email` or creates a new one.
// Existing users get the parent role & profile when missing.
func (svc *Service) ensureParent(ctx context.Context, exec core.DBExecutor, ap AdmissionParent, res *AdmissionResult) error {
	now := svc.nowFunc()
	usr, err := svc.users.GetUser(ctx, user.GetFilter{Email: ap.Email}, exec)
	switch {
	case err == nil:
		if usr.IsStudent() {
			return core.NewFieldValidationError("parent.email", ErrNotParent)
		}
		if !usr.IsParent() {
			usr.Roles = append(usr.Roles, user.RoleParent)
			usr.UpdatedAt = now
			if usr, err = svc.users.UpdateUser(ctx, usr, exec); err != nil {
				return errors.Wrap(err, "granting parent role")
			}
		}
	case errors.Cause(err) == user.ErrNotFound:
		first, last := splitName(ap.Name)
		usr, res.ParentPassword, err = svc.createAccount(ctx, exec, user.User{
			Name:  ap.Name,
			Email: ap.Email,
			Phone: ap.Phone,
			Roles: []string{user.RoleParent},
		}, first, last)
		if err != nil {
			return errors.Wrap(err, "creating parent user")
		}
	default:
		return errors.Wrap(err, "finding parent user")
	}
	res.ParentUser = usr

	parent, err := svc.repo.GetParent(ctx, ParentFilter{UserID: usr.ID}, exec)
	switch {
	case err == nil:
	case errors.Cause(err) == ErrParentNotFound:
		parent, err = svc.repo.CreateParent(ctx, ParentProfile{
			UserID:     usr.ID,
			Phone:      ap.Phone,
			Address:    ap.Address,
			Occupation: ap.Occupation,
			CreatedAt:  now,
			UpdatedAt:  now,
			Name:       usr.Name,
			Email:      usr.Email,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating parent profile")
		}
	default:
		return errors.Wrap(err, "finding parent profile")
	}
	res.Parent = parent
	return nil
}

// createAccount saves `usr` with a unique username derived from (first, last) and a temporary password.
func (svc *Service) createAccount(ctx context.Context, exec core.DBExecutor, usr user.User, first, last string) (user.User, string, error) {
	uname, err := svc.uniqueUsername(ctx, exec, first, last)
	if err != nil {
		return user.User{}, "", err
	}
	pwd, err := core.RandomPassword(tmpPasswordLength)
	if err != nil {
		return user.User{}, "", errors.Wrap(err, "generating password")
	}

	now := svc.nowFunc()
	usr.Username = uname
	usr.CreatedAt = now
	usr.UpdatedAt = now
	usr.SetActive(true)
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, "", errors.Wrap(err, "setting password")
	}
	usr, err = svc.users.CreateUser(ctx, usr, exec)
	if err != nil {
		return user.User{}, "", err
	}
	return usr, pwd, nil
}

// uniqueUsername returns "first.last", suffixed with a number when taken: "first.last2", "first.last3"...
func (svc *Service) uniqueUsername(ctx context.Context, exec core.DBExecutor, first, last string) (string, error) {
	base := usernameBase(first, last)
	for i := 1; i <= maxUsernameAttempts; i++ {
		uname := base
		if i > 1 {
			uname = fmt.Sprintf("%s%d", base, i)
		}
		err := svc.users.CheckUsernameUniqueness(ctx, uname, "", nil, exec)
		if err == nil {
			return uname, nil
		}
		if errors.Cause(err) != user.ErrUsernameExists {
			return "", errors.Wrap(err, "checking username uniqueness")
		}
	}
	return "", errNoUsername
}

func usernameBase(first, last string) string {
	clean := func(s string) string {
		return nonAlphaNum.ReplaceAllString(strings.ToLower(s), "")
	}
	parts := make([]string, 0, 2)
	for _, p := range []string{clean(first), clean(last)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	base := strings.Join(parts, ".")
	if len(base) < 4 {
		base += ".user"
	}
	return base
}

func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], fields[len(fields)-1]
	}
}

// nextAdmissionNumber returns the next free "<prefix>/<year>/<seq>" admission number.
func (svc *Service) nextAdmissionNumber(ctx context.Context, year int, exec core.DBExecutor) (string, error) {
	prefix := fmt.Sprintf("%s/%d/", svc.admissionPrefix, year)
	seq, err := svc.repo.LastAdmissionSeq(ctx, prefix, exec)
	if err != nil {
		return "", errors.Wrap(err, "finding last admission number")
	}
	for i := 1; i <= maxSeqProbes; i++ {
		number := fmt.Sprintf("%s%04d", prefix, seq+i)
		exists, err := svc.repo.AdmissionNumberExists(ctx, number, exec)
		if err != nil {
			return "", errors.Wrap(err, "checking admission number")
		}
		if !exists {
			return number, nil
		}
	}
	return "", ErrAdmissionNumberExists
}

func (svc *Service) sendCredentials(res AdmissionResult, class school.Class) {
	data := map[string]interface{}{
		"ParentName":      res.ParentUser.Name,
		"StudentName":     res.StudentUser.Name,
		"ClassName":       class.DisplayName(),
		"AdmissionNumber": res.Student.AdmissionNumber,
		"StudentUsername": res.StudentUser.Username,
		"StudentPassword": res.StudentPassword,
		"ParentUsername":  res.ParentUser.Username,
		"ParentPassword":  res.ParentPassword,
		"AccountNumber":   res.Wallet.AccountNumber,
		"BankName":        res.Wallet.BankName,
	}
	messages := []*core.EmailMessage{{
		To:           []mail.Address{{Name: res.ParentUser.Name, Address: res.ParentUser.Email}},
		Subject:      "Admission of " + res.StudentUser.Name,
		TemplateName: "admission_credentials",
		TemplateData: data,
	}}

	if res.StudentUser.Email != "" {
		studentData := make(map[string]interface{}, len(data))
		for k, v := range data {
			studentData[k] = v
		}
		studentData["ParentName"] = res.StudentUser.Name
		studentData["ParentPassword"] = ""
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: res.StudentUser.Name, Address: res.StudentUser.Email}},
			Subject:      "Welcome to " + class.DisplayName(),
			TemplateName: "admission_credentials",
			TemplateData: studentData,
		})
	}
	svc.mailSvc.SendMessages(messages...)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Profile, error) {
	return svc.repo.QueryStudents(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, id string) (Profile, error) {
	return svc.repo.GetStudent(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	return svc.repo.GetStudent(ctx, GetFilter{UserID: userID})
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Profile, error) {
	p, err := svc.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if us.DateOfBirth != nil {
		if p.DateOfBirth, err = time.Parse(core.DateLayout, *us.DateOfBirth); err != nil {
			return Profile{}, core.NewFieldValidationError("date_of_birth", err)
		}
	}
	if us.Gender != nil {
		p.Gender = *us.Gender
	}
	if us.Status != nil && *us.Status != p.Status {
		return svc.setStatus(ctx, p, *us.Status)
	}
	p.UpdatedAt = svc.nowFunc()
	return svc.repo.UpdateStudent(ctx, p)
}

// Transfer moves an active student to another class.
func (svc *Service) Transfer(ctx context.Context, id, classID string) (Profile, error) {
	p, err := svc.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if !p.Active() {
		return Profile{}, core.NewFieldValidationError("status", ErrNotActive)
	}
	if _, err = svc.classes.GetClass(ctx, classID); err != nil {
		if errors.Cause(err) == school.ErrClassNotFound {
			return Profile{}, core.NewFieldValidationError("class_id", err)
		}
		return Profile{}, errors.Wrap(err, "finding class")
	}
	p.ClassID = classID
	p.UpdatedAt = svc.nowFunc()
	return svc.repo.UpdateStudent(ctx, p)
}

// Withdraw marks the student as withdrawn and deactivates their account.
func (svc *Service) Withdraw(ctx context.Context, id string) (Profile, error) {
	p, err := svc.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if !p.Active() {
		return Profile{}, core.NewFieldValidationError("status", ErrNotActive)
	}
	return svc.setStatus(ctx, p, StatusWithdrawn)
}

// setStatus updates the status of the student; the account is only active along with the student.
func (svc *Service) setStatus(ctx context.Context, p Profile, status string) (Profile, error) {
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		now := svc.nowFunc()
		p.Status = status
		p.UpdatedAt = now
		var err error
		if p, err = svc.repo.UpdateStudent(ctx, p, exec); err != nil {
			return err
		}

		usr, err := svc.users.GetUser(ctx, user.GetFilter{ID: p.UserID}, exec)
		if err != nil {
			return errors.Wrap(err, "finding student user")
		}
		usr.SetActive(status == StatusActive)
		usr.UpdatedAt = now
		_, err = svc.users.UpdateUser(ctx, usr, exec)
		return err
	})
	return p, err
}

func (svc *Service) GetParent(ctx context.Context, id string) (ParentProfile, error) {
	return svc.repo.GetParent(ctx, ParentFilter{ID: id})
}

func (svc *Service) GetParentByUserID(ctx context.Context, userID string) (ParentProfile, error) {
	return svc.repo.GetParent(ctx, ParentFilter{UserID: userID})
}

func (svc *Service) UpdateParent(ctx context.Context, id string, up UpdateParent) (ParentProfile, error) {
	p, err := svc.GetParent(ctx, id)
	if err != nil {
		return ParentProfile{}, err
	}
	if up.Phone != nil {
		p.Phone = *up.Phone
	}
	if up.Address != nil {
		p.Address = *up.Address
	}
	if up.Occupation != nil {
		p.Occupation = *up.Occupation
	}
	p.UpdatedAt = svc.nowFunc()
	return svc.repo.UpdateParent(ctx, p)
}

func (svc *Service) Wards(ctx context.Context, parentID string) ([]Profile, error) {
	return svc.repo.QueryWards(ctx, parentID)
}

func (svc *Service) Parents(ctx context.Context, studentID string) ([]ParentProfile, error) {
	return svc.repo.QueryParents(ctx, studentID)
}

// IsWard reports whether the student is a ward of the parent.
func (svc *Service) IsWard(ctx context.Context, parentID, studentID string) (bool, error) {
	return svc.repo.IsWard(ctx, parentID, studentID)
}

// IsWardOfUser reports whether the student is a ward of the parent owning `userID`.
func (svc *Service) IsWardOfUser(ctx context.Context, userID, studentID string) (bool, error) {
	parent, err := svc.GetParentByUserID(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrParentNotFound {
			return false, nil
		}
		return false, err
	}
	return svc.repo.IsWard(ctx, parent.ID, studentID)
}

func (svc *Service) LinkWard(ctx context.Context, parentID string, lw LinkWard) (Ward, error) {
	if _, err := svc.GetParent(ctx, parentID); err != nil {
		return Ward{}, err
	}
	if _, err := svc.Get(ctx, lw.StudentID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Ward{}, core.NewFieldValidationError("student_id", err)
		}
		return Ward{}, errors.Wrap(err, "finding student")
	}
	return svc.repo.LinkWard(ctx, Ward{
		ParentID:     parentID,
		StudentID:    lw.StudentID,
		Relationship: lw.Relationship,
		CreatedAt:    svc.nowFunc(),
	})
}

func (svc *Service) UnlinkWard(ctx context.Context, parentID, studentID string) error {
	return svc.repo.UnlinkWard(ctx, parentID, studentID)
}
