package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/course"
)

const (
	assignmentColumns = `"id", "title", "description", "file_name", "file_type", "file_size", "deadline",
		"course_id", "teacher_id", "created_at", "updated_at"`
	submissionColumns = `"id", "assignment_id", "student_id", "file_name", "file_type", "file_size", "notes",
		"submitted_at", "mark", "marked_at"`
)

// FileCols is the nullable column triple describing an attachment.
type FileCols struct {
	FileName null.String `db:"file_name"`
	FileType null.String `db:"file_type"`
	FileSize null.Int64  `db:"file_size"`
}

func toFileCols(a *assignment.Attachment) FileCols {
	if a == nil {
		return FileCols{}
	}
	return FileCols{
		FileName: null.StringFrom(a.FileName),
		FileType: null.StringFrom(a.FileType),
		FileSize: null.Int64From(a.Size),
	}
}

func (cols FileCols) attachment() *assignment.Attachment {
	if !cols.FileName.Valid {
		return nil
	}
	return &assignment.Attachment{FileName: cols.FileName.String, FileType: cols.FileType.String, Size: cols.FileSize.Int64}
}

type assignmentRow struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	FileCols
	Deadline  time.Time `db:"deadline"`
	CourseID  string    `db:"course_id"`
	TeacherID string    `db:"teacher_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type submissionRow struct {
	ID           string `db:"id"`
	AssignmentID string `db:"assignment_id"`
	StudentID    string `db:"student_id"`
	FileCols
	Notes       string       `db:"notes"`
	SubmittedAt time.Time    `db:"submitted_at"`
	Mark        null.Float64 `db:"mark"`
	MarkedAt    null.Time    `db:"marked_at"`
}

func toAssignmentRow(a assignment.Assignment) assignmentRow {
	return assignmentRow{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		FileCols:    toFileCols(a.File),
		Deadline:    a.Deadline.UTC(),
		CourseID:    a.CourseID,
		TeacherID:   a.TeacherID,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func (row assignmentRow) assignment() assignment.Assignment {
	return assignment.Assignment{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		File:        row.FileCols.attachment(),
		Deadline:    row.Deadline.UTC(),
		CourseID:    row.CourseID,
		TeacherID:   row.TeacherID,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func toSubmissionRow(s assignment.Submission) submissionRow {
	row := submissionRow{
		ID:           s.ID,
		AssignmentID: s.AssignmentID,
		StudentID:    s.StudentID,
		FileCols:     toFileCols(s.File),
		Notes:        s.Notes,
		SubmittedAt:  s.SubmittedAt.UTC(),
		Mark:         null.Float64FromPtr(s.Mark),
	}
	if s.MarkedAt != nil {
		row.MarkedAt = null.TimeFrom(s.MarkedAt.UTC())
	}
	return row
}

func (row submissionRow) submission() assignment.Submission {
	s := assignment.Submission{
		ID:           row.ID,
		AssignmentID: row.AssignmentID,
		StudentID:    row.StudentID,
		File:         row.FileCols.attachment(),
		Notes:        row.Notes,
		SubmittedAt:  row.SubmittedAt.UTC(),
		Mark:         row.Mark.Ptr(),
	}
	if row.MarkedAt.Valid {
		t := row.MarkedAt.Time.UTC()
		s.MarkedAt = &t
	}
	return s
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) *assignmentRepository {
	return &assignmentRepository{db: db}
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM "courses" WHERE "id" = $1)`, a.CourseID); err != nil {
			return err
		}
		if !exists {
			return course.ErrNotFound
		}
		q := `INSERT INTO "assignments" (` + assignmentColumns + `) VALUES (:id, :title, :description, :file_name,
			:file_type, :file_size, :deadline, :course_id, :teacher_id, :created_at, :updated_at)`
		_, err := sqlx.NamedExecContext(ctx, tx, q, toAssignmentRow(a))
		return err
	})
	if err != nil {
		return assignment.Assignment{}, trapNoRowsErr(err, assignment.ErrNotFound, "inserting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) GetAssignment(ctx context.Context, id string) (assignment.Assignment, error) {
	var row assignmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+assignmentColumns+` FROM "assignments" WHERE "id" = $1`, id); err != nil {
		return assignment.Assignment{}, trapNoRowsErr(err, assignment.ErrNotFound, "selecting assignment")
	}
	return row.assignment(), nil
}

func (repo assignmentRepository) QueryAssignments(ctx context.Context, courseID string) ([]assignment.Assignment, error) {
	var rows []assignmentRow
	q := `SELECT ` + assignmentColumns + ` FROM "assignments" WHERE "course_id" = $1 ORDER BY "deadline"`
	if err := repo.db.SelectContext(ctx, &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "selecting assignments")
	}
	assignments := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.assignment())
	}
	return assignments, nil
}

func (repo assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	q := `UPDATE "assignments" SET "title" = :title, "description" = :description, "file_name" = :file_name,
		"file_type" = :file_type, "file_size" = :file_size, "deadline" = :deadline, "updated_at" = :updated_at
		WHERE "id" = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toAssignmentRow(a))
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if err = expectRows(res, assignment.ErrNotFound); err != nil {
		return assignment.Assignment{}, err
	}
	return repo.GetAssignment(ctx, a.ID)
}

// DeleteAssignment relies on ON DELETE CASCADE for the submissions.
func (repo assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM "assignments" WHERE "id" = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return expectRows(res, assignment.ErrNotFound)
}

// SaveSubmission upserts on (assignment_id, student_id); the update is skipped, and no row
// returned, when the stored submission is graded.
func (repo assignmentRepository) SaveSubmission(ctx context.Context, s assignment.Submission) (assignment.Submission, error) {
	if s.ID == "" {
		s.ID = core.NewID()
	}
	s.Mark, s.MarkedAt = nil, nil

	var saved submissionRow
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM "assignments" WHERE "id" = $1)`, s.AssignmentID); err != nil {
			return err
		}
		if !exists {
			return assignment.ErrNotFound
		}

		q := `INSERT INTO "submissions" (` + submissionColumns + `) VALUES (:id, :assignment_id, :student_id,
			:file_name, :file_type, :file_size, :notes, :submitted_at, :mark, :marked_at)
			ON CONFLICT ("assignment_id", "student_id") DO UPDATE SET "file_name" = EXCLUDED."file_name",
			"file_type" = EXCLUDED."file_type", "file_size" = EXCLUDED."file_size", "notes" = EXCLUDED."notes",
			"submitted_at" = EXCLUDED."submitted_at"
			WHERE "submissions"."mark" IS NULL
			RETURNING ` + submissionColumns
		rows, err := sqlx.NamedQueryContext(ctx, tx, q, toSubmissionRow(s))
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		if !rows.Next() {
			if err = rows.Err(); err != nil {
				return err
			}
			return assignment.ErrSubmissionGraded
		}
		return rows.StructScan(&saved)
	})
	if err != nil {
		if err == assignment.ErrSubmissionGraded || err == assignment.ErrNotFound {
			return assignment.Submission{}, err
		}
		return assignment.Submission{}, errors.Wrap(err, "saving submission")
	}
	return saved.submission(), nil
}

func (repo assignmentRepository) getSubmission(ctx context.Context, where string, args ...interface{}) (assignment.Submission, error) {
	var row submissionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+submissionColumns+` FROM "submissions" WHERE `+where, args...); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "selecting submission")
	}
	return row.submission(), nil
}

func (repo assignmentRepository) GetSubmission(ctx context.Context, id string) (assignment.Submission, error) {
	return repo.getSubmission(ctx, `"id" = $1`, id)
}

func (repo assignmentRepository) GetStudentSubmission(ctx context.Context, assignmentID, studentID string) (assignment.Submission, error) {
	return repo.getSubmission(ctx, `"assignment_id" = $1 AND "student_id" = $2`, assignmentID, studentID)
}

func (repo assignmentRepository) QuerySubmissions(ctx context.Context, assignmentID string) ([]assignment.Submission, error) {
	var rows []submissionRow
	q := `SELECT ` + submissionColumns + ` FROM "submissions" WHERE "assignment_id" = $1 ORDER BY "submitted_at"`
	if err := repo.db.SelectContext(ctx, &rows, q, assignmentID); err != nil {
		return nil, errors.Wrap(err, "selecting submissions")
	}
	subs := make([]assignment.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.submission())
	}
	return subs, nil
}

func (repo assignmentRepository) GradeSubmission(ctx context.Context, id string, mark float64, markedAt time.Time) (assignment.Submission, error) {
	var row submissionRow
	q := `UPDATE "submissions" SET "mark" = $1, "marked_at" = $2 WHERE "id" = $3 RETURNING ` + submissionColumns
	if err := repo.db.GetContext(ctx, &row, q, mark, markedAt.UTC(), id); err != nil {
		return assignment.Submission{}, trapNoRowsErr(err, assignment.ErrSubmissionNotFound, "grading submission")
	}
	return row.submission(), nil
}
