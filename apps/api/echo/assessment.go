package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/assessment"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type assessmentApi struct {
	svc      *assessment.Service
	students *student.Service
	auth     *authenticator
	validate *validator.Validate
}

func registerAssessmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps *Deps) {
	api := assessmentApi{svc: deps.AssessmentSvc, students: deps.StudentSvc, auth: auth, validate: deps.Validate}
	teacher := roleMiddleware(user.RoleTeacher)
	studnt := roleMiddleware(user.RoleStudent)

	ag := g.Group("/assessments", jwt)
	ag.GET("", api.query, roleMiddleware(user.RoleTeacher, user.RoleStudent))
	ag.POST("", api.create, teacher)
	ag.GET("/:id", api.retrieve, roleMiddleware(user.RoleTeacher, user.RoleStudent))
	ag.PUT("/:id", api.update, teacher)
	ag.DELETE("/:id", api.destroy, teacher)
	ag.POST("/:id/tokens", api.issueTokens, teacher)
	ag.GET("/:id/tokens", api.tokens, teacher)
	ag.GET("/:id/submissions", api.submissions, teacher)
	ag.POST("/:id/publish", api.publish, teacher)
	ag.GET("/:id/results", api.results, teacher)
	ag.POST("/:id/redeem", api.redeem, studnt)
	ag.POST("/:id/submit", api.submit, studnt)
	ag.GET("/:id/submission", api.mySubmission, studnt)

	g.POST("/submissions/:id/grade", api.grade, jwt, teacher)
	g.GET("/students/:id/report-card", api.reportCard, jwt)
}

// Assessments

func (api *assessmentApi) create(ctx echo.Context) error {
	var data assessment.NewAssessment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssessment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

// query lists assessments; students only see the ones of their class.
func (api *assessmentApi) query(ctx echo.Context) error {
	q := newQuery(ctx)
	filter := assessment.Filter{
		ClassID:   q.String("class_id"),
		SubjectID: q.String("subject_id"),
		TeacherID: q.String("teacher_id"),
		Term:      q.String("term"),
		Kind:      q.String("kind"),
		Published: q.Bool("published"),
	}
	if err := q.Err(); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if !usr.IsAdmin() && !usr.IsTeacher() {
		st, err := contextStudent(ctx, api.auth, api.students)
		if err != nil {
			return err
		}
		filter.ClassID = st.ClassID
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)
	assessments, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assessments")
	}
	return ctx.JSON(http.StatusOK, assessments)
}

func (api *assessmentApi) retrieve(ctx echo.Context) error {
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if !usr.IsAdmin() && !usr.IsTeacher() {
		st, err := contextStudent(ctx, api.auth, api.students)
		if err != nil {
			return err
		}
		if st.ClassID != a.ClassID {
			return errHttpNotFound
		}
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) update(ctx echo.Context) error {
	var data assessment.UpdateAssessment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssessment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Update(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) destroy(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assessmentApi) publish(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Publish(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) results(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if !api.svc.CanManage(usr, a) {
		return errHttpForbidden
	}
	results, err := api.svc.Results(ctx.Request().Context(), a.ID)
	if err != nil {
		return errors.Wrap(err, "computing results")
	}
	return ctx.JSON(http.StatusOK, results)
}

// Tokens

func (api *assessmentApi) issueTokens(ctx echo.Context) error {
	var data assessment.IssueTokens
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to IssueTokens")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	tokens, err := api.svc.IssueTokens(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, tokens)
}

func (api *assessmentApi) tokens(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	tokens, err := api.svc.Tokens(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (api *assessmentApi) redeem(ctx echo.Context) error {
	var data assessment.RedeemToken
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RedeemToken")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	st, err := contextStudent(ctx, api.auth, api.students)
	if err != nil {
		return err
	}
	tok, err := api.svc.RedeemToken(ctx.Request().Context(), ctx.Param("id"), st.ID, data.Code)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tok)
}

// Submissions

func (api *assessmentApi) submit(ctx echo.Context) error {
	var data assessment.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	st, err := contextStudent(ctx, api.auth, api.students)
	if err != nil {
		return err
	}
	sub, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("id"), st.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sub)
}

// mySubmission returns the submission of the context student; marks stay hidden until published.
func (api *assessmentApi) mySubmission(ctx echo.Context) error {
	st, err := contextStudent(ctx, api.auth, api.students)
	if err != nil {
		return err
	}
	a, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	sub, err := api.svc.StudentSubmission(ctx.Request().Context(), a.ID, st.ID)
	if err != nil {
		return err
	}
	if !a.Published {
		sub.Score = nil
		sub.Feedback = ""
		sub.GradedAt = time.Time{}
		sub.GradedBy = ""
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *assessmentApi) submissions(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.Submissions(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *assessmentApi) grade(ctx echo.Context) error {
	var data assessment.GradeSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeSubmission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.Grade(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *assessmentApi) reportCard(ctx echo.Context) error {
	st, _, err := visibleStudent(ctx, api.auth, api.students, ctx.Param("id"))
	if err != nil {
		return err
	}
	term := newQuery(ctx).String("term")
	if term == "" {
		return errTermRequired
	}
	card, err := api.svc.ReportCard(ctx.Request().Context(), st.ID, term)
	if err != nil {
		return errors.Wrap(err, "computing report card")
	}
	return ctx.JSON(http.StatusOK, card)
}
