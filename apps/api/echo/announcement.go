package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

type announcementApi struct {
	svc       *announcement.Service
	courseSvc *course.Service
	engine    *authz.Engine
	validate  *validator.Validate
}

func registerAnnouncementAPI(g *echo.Group, deps Deps) {
	api := announcementApi{
		svc:       deps.AnnouncementSvc,
		courseSvc: deps.CourseSvc,
		engine:    deps.Engine,
		validate:  deps.Validate,
	}

	ag := g.Group("/announcements")
	ag.GET("", api.query)
	ag.POST("", api.create, loginRequired)

	// detail endpoints
	dg := ag.Group("/:id", announcementMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, loginRequired)
	dg.DELETE("", api.destroy, loginRequired)
}

// ownedCourses loads the courses an announcement is published to; p must own every one of them.
func (api *announcementApi) ownedCourses(ctx context.Context, p authz.Principal, ids []string) ([]course.Course, error) {
	courses := make([]course.Course, 0, len(ids))
	for _, id := range ids {
		c, err := api.courseSvc.GetByID(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "getting announcement course")
		}
		if err = api.engine.Require(p, authz.ActionUpdate, c.Resource()); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

// authorized returns the context announcement once p is allowed to perform action on it.
func (api *announcementApi) authorized(ctx echo.Context, action authz.Action) (announcement.Announcement, authz.Principal, error) {
	p := getContextPrincipal(ctx)
	a, err := contextAnnouncement(ctx)
	if err != nil {
		return announcement.Announcement{}, p, err
	}
	r, err := api.svc.Resource(ctx.Request().Context(), a)
	if err != nil {
		return announcement.Announcement{}, p, err
	}
	if err = api.engine.Require(p, action, r); err != nil {
		return announcement.Announcement{}, p, err
	}
	return a, p, nil
}

// Handlers

func (api *announcementApi) create(ctx echo.Context) error {
	p := getContextPrincipal(ctx)
	if err := api.engine.Require(p, authz.ActionCreate, authz.Resource{Kind: authz.ResourceAnnouncement}); err != nil {
		return err
	}

	var data announcement.NewAnnouncement
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAnnouncement")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	courses, err := api.ownedCourses(ctx.Request().Context(), p, data.CourseIDs)
	if err != nil {
		return err
	}

	usr, _ := getContextUser(ctx)
	a, err := api.svc.Create(ctx.Request().Context(), usr, data, courses)
	if err != nil {
		return errors.Wrap(err, "creating announcement")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *announcementApi) query(ctx echo.Context) error {
	filter := api.engine.VisibilityFilter(getContextPrincipal(ctx), authz.ResourceAnnouncement)
	anns, err := api.svc.Query(ctx.Request().Context(), filter, ctx.QueryParam("course"))
	if err != nil {
		return errors.Wrap(err, "querying announcements")
	}
	return ctx.JSON(http.StatusOK, anns)
}

func (api *announcementApi) retrieve(ctx echo.Context) error {
	a, _, err := api.authorized(ctx, authz.ActionRead)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *announcementApi) update(ctx echo.Context) error {
	a, p, err := api.authorized(ctx, authz.ActionUpdate)
	if err != nil {
		return err
	}

	var data announcement.UpdateAnnouncement
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAnnouncement")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	if data.CourseIDs != nil {
		if _, err = api.ownedCourses(ctx.Request().Context(), p, data.CourseIDs); err != nil {
			return err
		}
	}

	a, err = api.svc.Update(ctx.Request().Context(), a, data)
	if err != nil {
		return errors.Wrap(err, "updating announcement")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *announcementApi) destroy(ctx echo.Context) error {
	a, _, err := api.authorized(ctx, authz.ActionDelete)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), a.ID); err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	return ctx.NoContent(http.StatusNoContent)
}
