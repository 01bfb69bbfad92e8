package assignment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

type (
	// Attachment describes an uploaded file. Its contents live in the file storage.
	Attachment struct {
		FileName string `json:"file_name"`
		FileType string `json:"file_type"`
		Size     int64  `json:"size"`
	}

	Assignment struct {
		ID          string      `json:"id"`
		Title       string      `json:"title"`
		Description string      `json:"description"`
		File        *Attachment `json:"file"`
		Deadline    time.Time   `json:"deadline"` // UTC
		CourseID    string      `json:"course_id"`
		TeacherID   string      `json:"teacher_id"`
		CreatedAt   time.Time   `json:"created_at"` // UTC
		UpdatedAt   time.Time   `json:"updated_at"` // UTC
	}

	// Submission is a student's work on an assignment. There is at most one per (assignment, student).
	Submission struct {
		ID           string      `json:"id"`
		AssignmentID string      `json:"assignment_id"`
		StudentID    string      `json:"student_id"`
		File         *Attachment `json:"file"`
		Notes        string      `json:"notes"`
		SubmittedAt  time.Time   `json:"submitted_at"` // UTC
		Mark         *float64    `json:"mark"`
		MarkedAt     *time.Time  `json:"marked_at"` // UTC
	}
)

// Resource returns the authorization view of the assignment, read through its course.
func (a Assignment) Resource(c course.Course) authz.Resource {
	return authz.Resource{Kind: authz.ResourceAssignment, OwnerID: a.TeacherID, Cohorts: []authz.Cohort{c.Cohort()}}
}

// SubmissionTarget returns the authorization view for submitting to the assignment.
func (a Assignment) SubmissionTarget(c course.Course) authz.Resource {
	return authz.Resource{Kind: authz.ResourceSubmission, OwnerID: a.TeacherID, Cohorts: []authz.Cohort{c.Cohort()}}
}

// FileKey is the file storage key of the assignment attachment.
func (a Assignment) FileKey() string {
	return "assignments/" + a.ID + "/file"
}

func (s Submission) IsGraded() bool { return s.Mark != nil }

// Resource returns the authorization view of the submission; the owner is the assignment teacher.
func (s Submission) Resource(a Assignment) authz.Resource {
	return authz.Resource{Kind: authz.ResourceSubmission, OwnerID: a.TeacherID, StudentID: s.StudentID}
}

// FileKey is the file storage key of the submitted file.
func (s Submission) FileKey() string {
	return "submissions/" + s.ID + "/file"
}

// NewAssignment contains information needed to create an Assignment.
type NewAssignment struct {
	Title       string    `json:"title" form:"title" validate:"required,notblank_,max=200"`
	Description string    `json:"description" form:"description" validate:"max=10000"`
	Deadline    time.Time `json:"deadline" form:"deadline" validate:"required"`
	CourseID    string    `json:"course_id" form:"course_id" validate:"required"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.CourseID = core.CleanString(na.CourseID)
	return validate.Struct(na)
}

// UpdateAssignment defines what information may be provided to modify an existing Assignment.
type UpdateAssignment struct {
	Title       *string    `json:"title" validate:"omitempty,notblank_,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=10000"`
	Deadline    *time.Time `json:"deadline"`
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	if ua.Title != nil {
		*ua.Title = core.CleanString(*ua.Title)
	}
	if ua.Description != nil {
		*ua.Description = core.CleanString(*ua.Description)
	}
	return validate.Struct(ua)
}

// NewSubmission contains the textual part of a submission.
type NewSubmission struct {
	Notes string `json:"notes" form:"notes" validate:"max=5000"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Notes = core.CleanString(ns.Notes)
	return validate.Struct(ns)
}

// Grade is a mark given to a submission.
type Grade struct {
	Mark *float64 `json:"mark" validate:"required,gte=0"`
}

func (g *Grade) Validate(validate *validator.Validate) error {
	return validate.Struct(g)
}
