package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

type assignmentApi struct {
	svc       *assignment.Service
	courseSvc *course.Service
	engine    *authz.Engine
	validate  *validator.Validate
	works     uploadKind
}

func registerAssignmentAPI(g *echo.Group, deps Deps, uploads core.UploadsConfig) {
	api := assignmentApi{
		svc:       deps.AssignmentSvc,
		courseSvc: deps.CourseSvc,
		engine:    deps.Engine,
		validate:  deps.Validate,
		works:     workUploads(uploads),
	}

	ag := g.Group("/assignments", loginRequired)
	ag.POST("", api.create)

	// detail endpoints
	dg := ag.Group("/:id", assignmentMiddleware(api.svc, api.courseSvc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.GET("/file", api.downloadFile)

	sg := dg.Group("/submissions")
	sg.POST("", api.submit)
	sg.GET("", api.submissions)
	sg.GET("/:studentId", api.retrieveSubmission)
	sg.GET("/:studentId/file", api.downloadSubmissionFile)
	sg.PUT("/:studentId/grade", api.grade)
}

// authorized returns the context assignment and its course once p is allowed to perform action on it.
func (api *assignmentApi) authorized(ctx echo.Context, action authz.Action) (assignment.Assignment, course.Course, error) {
	a, c, err := contextAssignment(ctx)
	if err != nil {
		return assignment.Assignment{}, course.Course{}, err
	}
	if err = api.engine.Require(getContextPrincipal(ctx), action, a.Resource(c)); err != nil {
		return assignment.Assignment{}, course.Course{}, err
	}
	return a, c, nil
}

// contextSubmission loads the submission of the `:studentId` path param and checks p may perform action on it.
func (api *assignmentApi) contextSubmission(ctx echo.Context, action authz.Action) (assignment.Submission, error) {
	a, _, err := contextAssignment(ctx)
	if err != nil {
		return assignment.Submission{}, err
	}
	s, err := api.svc.GetStudentSubmission(ctx.Request().Context(), a.ID, ctx.Param("studentId"))
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "getting submission")
	}
	if err = api.engine.Require(getContextPrincipal(ctx), action, s.Resource(a)); err != nil {
		return assignment.Submission{}, err
	}
	return s, nil
}

// Handlers

// create takes JSON, or a multipart form which may carry the assignment file.
func (api *assignmentApi) create(ctx echo.Context) error {
	p := getContextPrincipal(ctx)

	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	c, err := api.courseSvc.GetByID(ctx.Request().Context(), data.CourseID)
	if err != nil {
		return errors.Wrap(err, "getting assignment course")
	}
	// the resource of an assignment being created is its parent course's
	target := authz.Resource{Kind: authz.ResourceAssignment, OwnerID: c.TeacherID}
	if err = api.engine.Require(p, authz.ActionCreate, target); err != nil {
		return err
	}

	upload, closer, err := formUpload(ctx, fileField, api.works, false)
	if err != nil {
		return err
	}
	defer closeUpload(closer)

	a, err := api.svc.Create(ctx.Request().Context(), p.ID, data, upload)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	a, _, err := api.authorized(ctx, authz.ActionRead)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) update(ctx echo.Context) error {
	a, _, err := api.authorized(ctx, authz.ActionUpdate)
	if err != nil {
		return err
	}

	var data assignment.UpdateAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	a, err = api.svc.Update(ctx.Request().Context(), a, data)
	if err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	a, _, err := api.authorized(ctx, authz.ActionDelete)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), a.ID); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assignmentApi) downloadFile(ctx echo.Context) error {
	a, _, err := api.authorized(ctx, authz.ActionRead)
	if err != nil {
		return err
	}
	if a.File == nil {
		return assignment.ErrFileNotFound
	}
	rc, err := api.svc.OpenFile(ctx.Request().Context(), a.FileKey())
	if err != nil {
		return errors.Wrap(err, "opening assignment file")
	}
	return sendFile(ctx, rc, a.File.FileName, a.File.FileType)
}

// submit takes JSON, or a multipart form which may carry the submitted file.
func (api *assignmentApi) submit(ctx echo.Context) error {
	p := getContextPrincipal(ctx)
	a, c, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	if err = api.engine.Require(p, authz.ActionCreate, a.SubmissionTarget(c)); err != nil {
		return err
	}

	var data assignment.NewSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	upload, closer, err := formUpload(ctx, fileField, api.works, false)
	if err != nil {
		return err
	}
	defer closeUpload(closer)

	s, err := api.svc.Submit(ctx.Request().Context(), a, p.ID, data, upload)
	if err != nil {
		return errors.Wrap(err, "submitting")
	}
	return ctx.JSON(http.StatusCreated, s)
}

// submissions lists the submissions of an assignment to the teacher who grades them.
func (api *assignmentApi) submissions(ctx echo.Context) error {
	a, _, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	target := authz.Resource{Kind: authz.ResourceSubmission, OwnerID: a.TeacherID}
	if err = api.engine.Require(getContextPrincipal(ctx), authz.ActionGrade, target); err != nil {
		return err
	}

	subs, err := api.svc.Submissions(ctx.Request().Context(), a.ID)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *assignmentApi) retrieveSubmission(ctx echo.Context) error {
	s, err := api.contextSubmission(ctx, authz.ActionRead)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *assignmentApi) downloadSubmissionFile(ctx echo.Context) error {
	s, err := api.contextSubmission(ctx, authz.ActionRead)
	if err != nil {
		return err
	}
	if s.File == nil {
		return assignment.ErrFileNotFound
	}
	rc, err := api.svc.OpenFile(ctx.Request().Context(), s.FileKey())
	if err != nil {
		return errors.Wrap(err, "opening submission file")
	}
	return sendFile(ctx, rc, s.File.FileName, s.File.FileType)
}

func (api *assignmentApi) grade(ctx echo.Context) error {
	s, err := api.contextSubmission(ctx, authz.ActionGrade)
	if err != nil {
		return err
	}

	var data assignment.Grade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Grade")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err = api.svc.Grade(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, s)
}
