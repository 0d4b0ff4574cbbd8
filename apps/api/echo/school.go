package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/school"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, _ *authenticator, deps *Deps) {
	api := schoolApi{svc: deps.SchoolSvc, validate: deps.Validate}

	cg := g.Group("/classes", jwt)
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass, adminMiddleware())
	cg.GET("/:id", api.retrieveClass)
	cg.PUT("/:id", api.updateClass, adminMiddleware())
	cg.DELETE("/:id", api.destroyClass, adminMiddleware())
	cg.PUT("/:id/form-teacher", api.assignFormTeacher, adminMiddleware())

	sg := g.Group("/subjects", jwt)
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject, adminMiddleware())
	sg.GET("/:id", api.retrieveSubject)
	sg.PUT("/:id", api.updateSubject, adminMiddleware())
	sg.DELETE("/:id", api.destroySubject, adminMiddleware())
	sg.PUT("/:id/teacher", api.assignTeacher, adminMiddleware())
}

type AssignTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid"`
}

// Classes

func (api *schoolApi) createClass(ctx echo.Context) error {
	var data school.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	class, err := api.svc.CreateClass(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, class)
}

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := school.ClassFilter{
		AcademicYear:  q.String("academic_year"),
		Level:         q.Int("level"),
		FormTeacherID: q.String("form_teacher_id"),
	}
	if err := q.Err(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.QueryClasses(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) retrieveClass(ctx echo.Context) error {
	class, err := api.svc.GetClass(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) updateClass(ctx echo.Context) error {
	var data school.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	class, err := api.svc.UpdateClass(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	if err := api.svc.DeleteClass(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) assignFormTeacher(ctx echo.Context) error {
	var data AssignTeacherRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignTeacherRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	class, err := api.svc.AssignFormTeacher(ctx.Request().Context(), ctx.Param("id"), data.TeacherID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, class)
}

// Subjects

func (api *schoolApi) createSubject(ctx echo.Context) error {
	var data school.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	subject, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, subject)
}

func (api *schoolApi) querySubjects(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := school.SubjectFilter{
		ClassID:   q.String("class_id"),
		TeacherID: q.String("teacher_id"),
	}
	subjects, err := api.svc.QuerySubjects(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *schoolApi) retrieveSubject(ctx echo.Context) error {
	subject, err := api.svc.GetSubject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subject)
}

func (api *schoolApi) updateSubject(ctx echo.Context) error {
	var data school.UpdateSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	subject, err := api.svc.UpdateSubject(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subject)
}

func (api *schoolApi) destroySubject(ctx echo.Context) error {
	if err := api.svc.DeleteSubject(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) assignTeacher(ctx echo.Context) error {
	var data AssignTeacherRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignTeacherRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	subject, err := api.svc.AssignTeacher(ctx.Request().Context(), ctx.Param("id"), data.TeacherID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subject)
}
