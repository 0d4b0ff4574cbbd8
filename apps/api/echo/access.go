package echoapi

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

// staff roles allowed to look at any student record
var studentViewerRoles = []string{user.RoleTeacher, user.RoleMedical, user.RoleFinance}

// canViewStudent reports whether usr may see the records of the student:
// admins & staff, the student themselves, and their parents.
func canViewStudent(ctx context.Context, students *student.Service, usr user.User, p student.Profile) (bool, error) {
	switch {
	case usr.IsAdmin() || usr.HasAnyRole(studentViewerRoles...):
		return true, nil
	case usr.IsStudent() && p.UserID == usr.ID:
		return true, nil
	case usr.IsParent():
		return students.IsWardOfUser(ctx, usr.ID, p.ID)
	}
	return false, nil
}

// visibleStudent loads the student `id` for the context user; students they cannot see are not found.
func visibleStudent(ctx echo.Context, auth *authenticator, students *student.Service, id string) (student.Profile, user.User, error) {
	usr, err := auth.contextUser(ctx)
	if err != nil {
		return student.Profile{}, user.User{}, err
	}
	p, err := students.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return student.Profile{}, usr, errHttpNotFound
		}
		return student.Profile{}, usr, errors.Wrap(err, "finding student")
	}
	ok, err := canViewStudent(ctx.Request().Context(), students, usr, p)
	if err != nil {
		return student.Profile{}, usr, errors.Wrap(err, "checking student access")
	}
	if !ok {
		return student.Profile{}, usr, errHttpNotFound
	}
	return p, usr, nil
}

// contextStudent returns the student profile of the context user.
func contextStudent(ctx echo.Context, auth *authenticator, students *student.Service) (student.Profile, error) {
	usr, err := auth.contextUser(ctx)
	if err != nil {
		return student.Profile{}, err
	}
	p, err := students.GetByUserID(ctx.Request().Context(), usr.ID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return student.Profile{}, errHttpForbidden
		}
		return student.Profile{}, errors.Wrap(err, "finding student profile")
	}
	return p, nil
}
