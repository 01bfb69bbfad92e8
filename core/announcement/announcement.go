package announcement

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
)

var (
	ErrNotFound  = core.NewNotFoundError("announcement")
	ErrNoCourses = errors.New("an announcement must reference at least one course")
)

type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	TeacherID string    `json:"teacher_id"`
	CourseIDs []string  `json:"courses"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// NewAnnouncement contains information needed to publish an Announcement.
type NewAnnouncement struct {
	Title     string   `json:"title" validate:"required,notblank_,max=200"`
	Content   string   `json:"content" validate:"required,notblank_,max=10000"`
	CourseIDs []string `json:"courses" validate:"required,min=1,dive,required"`
}

func (na *NewAnnouncement) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Content = core.CleanString(na.Content)
	na.CourseIDs = dedup(na.CourseIDs)
	return validate.Struct(na)
}

// UpdateAnnouncement defines what information may be provided to modify an existing Announcement.
// A non-nil CourseIDs replaces the linked courses.
type UpdateAnnouncement struct {
	Title     *string  `json:"title" validate:"omitempty,notblank_,max=200"`
	Content   *string  `json:"content" validate:"omitempty,notblank_,max=10000"`
	CourseIDs []string `json:"courses" validate:"omitempty,min=1,dive,required"`
}

func (ua *UpdateAnnouncement) Validate(validate *validator.Validate) error {
	if ua.Title != nil {
		*ua.Title = core.CleanString(*ua.Title)
	}
	if ua.Content != nil {
		*ua.Content = core.CleanString(*ua.Content)
	}
	if ua.CourseIDs != nil {
		ua.CourseIDs = dedup(ua.CourseIDs)
		if len(ua.CourseIDs) == 0 {
			return core.NewValidationError(ErrNoCourses, core.FieldError{Field: "courses", Error: ErrNoCourses.Error()})
		}
	}
	return validate.Struct(ua)
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

type (
	// Repository persists announcements. Course back-references are kept in
	// sync in the same transaction as the announcement write.
	Repository interface {
		// CreateAnnouncement fails with course.ErrNotFound if a linked course does not exist.
		CreateAnnouncement(ctx context.Context, a Announcement) (Announcement, error)
		GetAnnouncement(ctx context.Context, id string) (Announcement, error)
		// QueryAnnouncements returns the announcements selected by filter, newest first.
		// A non-empty courseID restricts them to the ones linked to that course.
		QueryAnnouncements(ctx context.Context, filter authz.Filter, courseID string) ([]Announcement, error)
		// UpdateAnnouncement re-links both directions when the course set changes.
		// A nil CourseIDs keeps the stored links.
		UpdateAnnouncement(ctx context.Context, a Announcement) (Announcement, error)
		// DeleteAnnouncement also removes it from every linked course.
		DeleteAnnouncement(ctx context.Context, id string) error
	}

	Service struct {
		repo      Repository
		courseSvc *course.Service
		userSvc   *user.Service
		mailSvc   core.EmailService
		logger    core.Logger
	}
)

func NewService(
	repo Repository,
	courseSvc *course.Service,
	userSvc *user.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{repo: repo, courseSvc: courseSvc, userSvc: userSvc, mailSvc: mailSvc, logger: logger}
}

// Resource returns the authorization view of a, with the cohorts of its courses.
func (svc *Service) Resource(ctx context.Context, a Announcement) (authz.Resource, error) {
	courses, err := svc.courseSvc.GetMany(ctx, a.CourseIDs...)
	if err != nil {
		return authz.Resource{}, errors.Wrap(err, "getting announcement courses")
	}
	return resourceOf(a, courses), nil
}

func resourceOf(a Announcement, courses []course.Course) authz.Resource {
	r := authz.Resource{Kind: authz.ResourceAnnouncement, OwnerID: a.TeacherID}
	for _, c := range courses {
		r.Cohorts = append(r.Cohorts, c.Cohort())
	}
	return r
}

// Create publishes an announcement and notifies the students of its courses by email.
// The courses must be loaded and checked by the caller.
// A failed notification is logged; the announcement is published regardless.
func (svc *Service) Create(ctx context.Context, teacher user.User, na NewAnnouncement, courses []course.Course) (Announcement, error) {
	now := time.Now().UTC()
	a := Announcement{
		Title:     na.Title,
		Content:   na.Content,
		TeacherID: teacher.ID,
		CourseIDs: na.CourseIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a, err := svc.repo.CreateAnnouncement(ctx, a)
	if err != nil {
		return Announcement{}, errors.Wrap(err, "creating announcement")
	}

	if err = svc.notify(ctx, teacher, a, courses); err != nil {
		err = errors.Wrapf(err, "notifying students of announcement %s", a.ID)
		svc.logger.Error(err.Error(), err, teacher)
	}
	return a, nil
}

func (svc *Service) notify(ctx context.Context, teacher user.User, a Announcement, courses []course.Course) error {
	titles := make([]string, 0, len(courses))
	seen := make(map[authz.Cohort]bool, len(courses))
	msgs := make([]*core.EmailMessage, 0)
	for _, c := range courses {
		titles = append(titles, c.Title)
		cohort := c.Cohort()
		if seen[cohort] {
			continue
		}
		seen[cohort] = true

		students, err := svc.userSvc.Query(ctx, user.CohortFilter(cohort), nil)
		if err != nil {
			return errors.Wrap(err, "querying cohort students")
		}
		for _, s := range students {
			msgs = append(msgs, &core.EmailMessage{
				To:           []mail.Address{{Name: s.FullName(), Address: s.Email}},
				Subject:      a.Title,
				TemplateName: "new_announcement",
				TemplateData: map[string]string{
					"ID":      a.ID,
					"Name":    s.FirstName,
					"Teacher": teacher.FullName(),
					"Title":   a.Title,
					"Content": a.Content,
				},
			})
		}
	}

	sort.Strings(titles)
	joined := strings.Join(titles, ", ")
	for _, m := range msgs {
		m.TemplateData.(map[string]string)["Courses"] = joined
	}
	svc.mailSvc.SendMessages(msgs...)
	return nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Announcement, error) {
	return svc.repo.GetAnnouncement(ctx, id)
}

// Query lists the announcements visible through filter, optionally restricted to a course.
func (svc *Service) Query(ctx context.Context, filter authz.Filter, courseID string) ([]Announcement, error) {
	if filter.Scope == authz.ScopeNone {
		return []Announcement{}, nil
	}
	return svc.repo.QueryAnnouncements(ctx, filter, courseID)
}

// ForCourse lists every announcement linked to a course. Reading the course must have been authorized.
func (svc *Service) ForCourse(ctx context.Context, courseID string) ([]Announcement, error) {
	return svc.repo.QueryAnnouncements(ctx, authz.Filter{Kind: authz.ResourceAnnouncement, Scope: authz.ScopeAll}, courseID)
}

func (svc *Service) Update(ctx context.Context, a Announcement, ua UpdateAnnouncement) (Announcement, error) {
	if ua.Title != nil && *ua.Title != "" {
		a.Title = *ua.Title
	}
	if ua.Content != nil && *ua.Content != "" {
		a.Content = *ua.Content
	}
	// a may be stale; the repository resolves untouched links itself
	a.CourseIDs = ua.CourseIDs
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAnnouncement(ctx, a)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAnnouncement(ctx, id)
}
