package assignment

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("assignment")
	ErrSubmissionNotFound = core.NewNotFoundError("submission")
	ErrFileNotFound       = core.NewNotFoundError("file")
	ErrSubmissionGraded   = core.NewConflictError("submission already graded")
)

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		GetAssignment(ctx context.Context, id string) (Assignment, error)
		// QueryAssignments returns the assignments of a course, by deadline.
		QueryAssignments(ctx context.Context, courseID string) ([]Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// DeleteAssignment also deletes its submissions.
		DeleteAssignment(ctx context.Context, id string) error

		// SaveSubmission atomically creates or replaces the submission of
		// s.StudentID on s.AssignmentID. It fails with ErrSubmissionGraded if
		// the existing one is graded. The ID of a replaced submission is kept.
		SaveSubmission(ctx context.Context, s Submission) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		GetStudentSubmission(ctx context.Context, assignmentID, studentID string) (Submission, error)
		// QuerySubmissions returns the submissions of an assignment, oldest first.
		QuerySubmissions(ctx context.Context, assignmentID string) ([]Submission, error)
		// GradeSubmission sets the mark; grading again overwrites it.
		GradeSubmission(ctx context.Context, id string, mark float64, markedAt time.Time) (Submission, error)
	}

	Service struct {
		repo  Repository
		store core.FileStorage
	}
)

func NewService(repo Repository, store core.FileStorage) *Service {
	return &Service{repo: repo, store: store}
}

func attachmentOf(upload *core.Upload) *Attachment {
	if upload == nil {
		return nil
	}
	return &Attachment{FileName: upload.Name, FileType: upload.ContentType, Size: upload.Size}
}

// Create creates an assignment with an optional attachment.
func (svc *Service) Create(ctx context.Context, teacherID string, na NewAssignment, upload *core.Upload) (Assignment, error) {
	now := time.Now().UTC()
	a := Assignment{
		ID:          core.NewID(),
		Title:       na.Title,
		Description: na.Description,
		File:        attachmentOf(upload),
		Deadline:    na.Deadline.UTC(),
		CourseID:    na.CourseID,
		TeacherID:   teacherID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if upload != nil {
		if err := svc.store.Save(ctx, a.FileKey(), *upload); err != nil {
			return Assignment{}, errors.Wrap(err, "saving assignment file")
		}
	}
	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *Service) ForCourse(ctx context.Context, courseID string) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, courseID)
}

func (svc *Service) Update(ctx context.Context, a Assignment, ua UpdateAssignment) (Assignment, error) {
	if ua.Title != nil && *ua.Title != "" {
		a.Title = *ua.Title
	}
	if ua.Description != nil {
		a.Description = *ua.Description
	}
	if ua.Deadline != nil && !ua.Deadline.IsZero() {
		a.Deadline = ua.Deadline.UTC()
	}
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAssignment(ctx, id)
}

// Submit creates or replaces the student's submission on a.
func (svc *Service) Submit(ctx context.Context, a Assignment, studentID string, ns NewSubmission, upload *core.Upload) (Submission, error) {
	// fail before storing anything if the work is already graded
	if prev, err := svc.repo.GetStudentSubmission(ctx, a.ID, studentID); err == nil && prev.IsGraded() {
		return Submission{}, ErrSubmissionGraded
	} else if err != nil && !core.IsNotFound(err) {
		return Submission{}, errors.Wrap(err, "getting previous submission")
	}

	s := Submission{
		ID:           core.NewID(),
		AssignmentID: a.ID,
		StudentID:    studentID,
		File:         attachmentOf(upload),
		Notes:        ns.Notes,
		SubmittedAt:  time.Now().UTC(),
	}
	s, err := svc.repo.SaveSubmission(ctx, s)
	if err != nil {
		return Submission{}, err
	}
	if upload != nil {
		if err = svc.store.Save(ctx, s.FileKey(), *upload); err != nil {
			return Submission{}, errors.Wrap(err, "saving submission file")
		}
	}
	return s, nil
}

func (svc *Service) GetSubmission(ctx context.Context, id string) (Submission, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *Service) GetStudentSubmission(ctx context.Context, assignmentID, studentID string) (Submission, error) {
	return svc.repo.GetStudentSubmission(ctx, assignmentID, studentID)
}

func (svc *Service) Submissions(ctx context.Context, assignmentID string) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx, assignmentID)
}

func (svc *Service) Grade(ctx context.Context, s Submission, g Grade) (Submission, error) {
	return svc.repo.GradeSubmission(ctx, s.ID, *g.Mark, time.Now().UTC())
}

// OpenFile returns the contents stored under key. The caller must close it.
func (svc *Service) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := svc.store.Open(ctx, key)
	if err != nil {
		if errors.Cause(err) == core.ErrFileNotFound {
			return nil, ErrFileNotFound
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return rc, nil
}
