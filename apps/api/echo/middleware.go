package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

const (
	contextObjectKey = "object"
	contextCourseKey = "course"
)

// loginRequired rejects anonymous requests.
func loginRequired(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, ok := getContextUser(ctx); !ok {
			return errMissingToken
		}
		return next(ctx)
	}
}

// authorizeMiddleware denies the request unless the engine allows action on
// a resource of kind that needs no loaded object.
func authorizeMiddleware(engine *authz.Engine, action authz.Action, kind authz.ResourceKind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := engine.Require(getContextPrincipal(ctx), action, authz.Resource{Kind: kind}); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// The detail middlewares load the object named by the `:id` path param.
// A missing object is reported before any authorization check.

func courseMiddleware(svc *course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			c, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "getting course")
			}
			ctx.Set(contextObjectKey, c)
			return next(ctx)
		}
	}
}

func announcementMiddleware(svc *announcement.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			a, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "getting announcement")
			}
			ctx.Set(contextObjectKey, a)
			return next(ctx)
		}
	}
}

// assignmentMiddleware also loads the parent course, which assignment reads are checked against.
func assignmentMiddleware(svc *assignment.Service, courseSvc *course.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			a, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "getting assignment")
			}
			c, err := courseSvc.GetByID(ctx.Request().Context(), a.CourseID)
			if err != nil {
				// the course cascade deletes its assignments
				return errors.Wrap(err, "getting assignment course")
			}
			ctx.Set(contextObjectKey, a)
			ctx.Set(contextCourseKey, c)
			return next(ctx)
		}
	}
}

func contextCourse(ctx echo.Context, key string) (course.Course, error) {
	c, ok := ctx.Get(key).(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errObjectNotFoundInCtx, "retrieving course from context")
	}
	return c, nil
}

func contextAnnouncement(ctx echo.Context) (announcement.Announcement, error) {
	a, ok := ctx.Get(contextObjectKey).(announcement.Announcement)
	if !ok {
		return announcement.Announcement{}, errors.Wrap(errObjectNotFoundInCtx, "retrieving announcement from context")
	}
	return a, nil
}

func contextAssignment(ctx echo.Context) (assignment.Assignment, course.Course, error) {
	a, ok := ctx.Get(contextObjectKey).(assignment.Assignment)
	if !ok {
		return assignment.Assignment{}, course.Course{}, errors.Wrap(errObjectNotFoundInCtx, "retrieving assignment from context")
	}
	c, err := contextCourse(ctx, contextCourseKey)
	return a, c, err
}
