package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

type courseApi struct {
	svc           *course.Service
	annSvc        *announcement.Service
	assignmentSvc *assignment.Service
	engine        *authz.Engine
	validate      *validator.Validate
	materials     uploadKind
}

func registerCourseAPI(g *echo.Group, deps Deps, uploads core.UploadsConfig) {
	api := courseApi{
		svc:           deps.CourseSvc,
		annSvc:        deps.AnnouncementSvc,
		assignmentSvc: deps.AssignmentSvc,
		engine:        deps.Engine,
		validate:      deps.Validate,
		materials:     materialUploads(uploads),
	}

	cg := g.Group("/courses")
	cg.GET("", api.query)
	cg.POST("", api.create, loginRequired)

	// detail endpoints
	dg := cg.Group("/:id", courseMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, loginRequired)
	dg.DELETE("", api.destroy, loginRequired)
	dg.POST("/files", api.uploadFile, loginRequired)
	dg.GET("/files/:fileId", api.downloadFile, loginRequired)
	dg.PUT("/files/:fileId/completion", api.markCompletion, loginRequired)
	dg.GET("/announcements", api.announcements)
	dg.GET("/assignments", api.assignments, loginRequired)
}

// courseView hides the completion records of other students from non-owners.
func courseView(p authz.Principal, c course.Course) course.Course {
	if p.IsTeacher() && p.ID == c.TeacherID {
		return c
	}
	return c.VisibleTo(p.ID)
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	p := getContextPrincipal(ctx)
	if err := api.engine.Require(p, authz.ActionCreate, authz.Resource{Kind: authz.ResourceCourse}); err != nil {
		return err
	}

	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), p.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) query(ctx echo.Context) error {
	p := getContextPrincipal(ctx)
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), api.engine.VisibilityFilter(p, authz.ResourceCourse), ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	for i, c := range courses {
		courses[i] = courseView(p, c)
	}
	return ctx.JSON(http.StatusOK, courses)
}

// authorized returns the context course once p is allowed to perform action on it.
func (api *courseApi) authorized(ctx echo.Context, action authz.Action) (course.Course, authz.Principal, error) {
	p := getContextPrincipal(ctx)
	c, err := contextCourse(ctx, contextObjectKey)
	if err != nil {
		return course.Course{}, p, err
	}
	if err = api.engine.Require(p, action, c.Resource()); err != nil {
		return course.Course{}, p, err
	}
	return c, p, nil
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, p, err := api.authorized(ctx, authz.ActionRead)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, courseView(p, c))
}

func (api *courseApi) update(ctx echo.Context) error {
	c, _, err := api.authorized(ctx, authz.ActionUpdate)
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err = api.svc.Update(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	c, _, err := api.authorized(ctx, authz.ActionDelete)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), c.ID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) uploadFile(ctx echo.Context) error {
	c, _, err := api.authorized(ctx, authz.ActionUpload)
	if err != nil {
		return err
	}

	var data course.NewFile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFile")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	upload, closer, err := formUpload(ctx, fileField, api.materials, true)
	if err != nil {
		return err
	}
	defer closeUpload(closer)

	c, err = api.svc.AddFile(ctx.Request().Context(), c, data, *upload)
	if err != nil {
		return errors.Wrap(err, "adding course file")
	}
	return ctx.JSON(http.StatusCreated, c)
}

// contextFile returns the course file named by the `:fileId` path param.
func contextFile(ctx echo.Context, c course.Course) (course.File, error) {
	f, ok := c.File(ctx.Param("fileId"))
	if !ok {
		return course.File{}, course.ErrFileNotFound
	}
	return f, nil
}

func (api *courseApi) downloadFile(ctx echo.Context) error {
	c, err := contextCourse(ctx, contextObjectKey)
	if err != nil {
		return err
	}
	f, err := contextFile(ctx, c)
	if err != nil {
		return err
	}
	if err = api.engine.Require(getContextPrincipal(ctx), authz.ActionRead, c.FileResource()); err != nil {
		return err
	}

	rc, err := api.svc.OpenFile(ctx.Request().Context(), c, f)
	if err != nil {
		return errors.Wrap(err, "opening course file")
	}
	return sendFile(ctx, rc, f.FileName, f.FileType)
}

func (api *courseApi) markCompletion(ctx echo.Context) error {
	p := getContextPrincipal(ctx)
	c, err := contextCourse(ctx, contextObjectKey)
	if err != nil {
		return err
	}
	if _, err = contextFile(ctx, c); err != nil {
		return err
	}
	if err = api.engine.Require(p, authz.ActionMarkComplete, c.FileResource()); err != nil {
		return err
	}

	var data CompletionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompletionRequest")
	}
	completed := data.Completed == nil || *data.Completed

	f, err := api.svc.MarkCompletion(ctx.Request().Context(), c, ctx.Param("fileId"), p.ID, completed)
	if err != nil {
		return errors.Wrap(err, "marking completion")
	}
	return ctx.JSON(http.StatusOK, f.Completion[p.ID])
}

func (api *courseApi) announcements(ctx echo.Context) error {
	c, _, err := api.authorized(ctx, authz.ActionRead)
	if err != nil {
		return err
	}
	anns, err := api.annSvc.ForCourse(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying course announcements")
	}
	return ctx.JSON(http.StatusOK, anns)
}

func (api *courseApi) assignments(ctx echo.Context) error {
	c, err := contextCourse(ctx, contextObjectKey)
	if err != nil {
		return err
	}
	r := c.Resource()
	r.Kind = authz.ResourceAssignment
	if err = api.engine.Require(getContextPrincipal(ctx), authz.ActionRead, r); err != nil {
		return err
	}
	asgs, err := api.assignmentSvc.ForCourse(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying course assignments")
	}
	return ctx.JSON(http.StatusOK, asgs)
}
