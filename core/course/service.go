package course

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("course")
	ErrFileNotFound = core.NewNotFoundError("file")

	errMajorRequired = errors.New("major is required for master courses")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// GetCourses returns the courses with the given ids, skipping unknown ones.
		GetCourses(ctx context.Context, ids ...string) ([]Course, error)
		// QueryCourses returns the courses selected by filter.
		QueryCourses(ctx context.Context, filter authz.Filter, ordering ...core.DBOrdering) ([]Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		// DeleteCourse deletes the course with its assignments and their submissions,
		// and removes it from the announcements referencing it.
		DeleteCourse(ctx context.Context, id string) error
		AddFile(ctx context.Context, courseID string, f File) (Course, error)
		// MarkCompletion atomically upserts the completion record of rec.StudentID on a course file.
		MarkCompletion(ctx context.Context, courseID, fileID string, rec CompletionRecord) (File, error)
	}

	Service struct {
		repo  Repository
		store core.FileStorage
	}
)

func NewService(repo Repository, store core.FileStorage) *Service {
	return &Service{repo: repo, store: store}
}

// OrderingFields are the fields courses may be ordered by.
var OrderingFields = []string{"title", "academic_level", "academic_year", "created_at"}

func randomCoverImage() string {
	return fmt.Sprintf("course%d.png", rand.Intn(coverImages))
}

func (svc *Service) Create(ctx context.Context, teacherID string, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	c := Course{
		Title:           nc.Title,
		Description:     nc.Description,
		Image:           nc.Image,
		TeacherID:       teacherID,
		AcademicLevel:   nc.AcademicLevel,
		AcademicYear:    nc.AcademicYear,
		Major:           nc.Major,
		Materials:       nc.Materials,
		Files:           []File{},
		AnnouncementIDs: []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if c.Image == "" {
		c.Image = randomCoverImage()
	}
	return svc.repo.CreateCourse(ctx, c)
}

func (svc *Service) Query(ctx context.Context, filter authz.Filter, ordering []core.DBOrdering) ([]Course, error) {
	if filter.Scope == authz.ScopeNone {
		return []Course{}, nil
	}
	return svc.repo.QueryCourses(ctx, filter, core.AllowedOrderings(ordering, OrderingFields...)...)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) GetMany(ctx context.Context, ids ...string) ([]Course, error) {
	return svc.repo.GetCourses(ctx, ids...)
}

func (svc *Service) Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error) {
	c = uc.Apply(c)
	if c.AcademicLevel == "master" && c.Major == "" {
		return Course{}, core.NewValidationError(errMajorRequired, core.FieldError{Field: "major", Error: errMajorRequired.Error()})
	}
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

// Delete deletes the course and everything hanging from it.
// TODO: garbage-collect the stored material and submission blobs of deleted courses.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteCourse(ctx, id)
}

// AddFile stores an uploaded material and attaches it to the course.
func (svc *Service) AddFile(ctx context.Context, c Course, nf NewFile, upload core.Upload) (Course, error) {
	f := File{
		ID:          core.NewID(),
		FileName:    upload.Name,
		FileType:    upload.ContentType,
		Size:        upload.Size,
		Description: core.CleanString(nf.Description),
		CreatedAt:   time.Now().UTC(),
		Completion:  map[string]CompletionRecord{},
	}
	if err := svc.store.Save(ctx, FileKey(c.ID, f.ID), upload); err != nil {
		return Course{}, pkgerrors.Wrap(err, "saving file")
	}
	return svc.repo.AddFile(ctx, c.ID, f)
}

// MarkCompletion records whether studentID completed a course file. Marking twice keeps one record, the latest.
func (svc *Service) MarkCompletion(ctx context.Context, c Course, fileID, studentID string, completed bool) (File, error) {
	rec := CompletionRecord{
		StudentID: studentID,
		Completed: completed,
		MarkedAt:  time.Now().UTC(),
	}
	return svc.repo.MarkCompletion(ctx, c.ID, fileID, rec)
}

// OpenFile returns the contents of a course file. The caller must close it.
func (svc *Service) OpenFile(ctx context.Context, c Course, f File) (io.ReadCloser, error) {
	rc, err := svc.store.Open(ctx, FileKey(c.ID, f.ID))
	if err != nil {
		if pkgerrors.Cause(err) == core.ErrFileNotFound {
			return nil, ErrFileNotFound
		}
		return nil, pkgerrors.Wrap(err, "opening file")
	}
	return rc, nil
}
