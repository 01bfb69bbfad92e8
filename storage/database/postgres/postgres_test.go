package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
	"github.com/trezcool/darasa/storage/database/postgres"
	"github.com/trezcool/darasa/testutil"
)

var master2Computer = authz.Cohort{AcademicLevel: "master", AcademicYear: 2, Major: "computer"}

// openTestDB connects to TEST_DATABASE_URL, migrates it and empties every table.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := sqlx.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE "users", "courses", "course_files", "file_completions", "announcements",
		"announcement_courses", "assignments", "submissions" CASCADE`)
	require.NoError(t, err)
	return db
}

func TestRepositories(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := postgres.NewUserRepository(db)
	courses := postgres.NewCourseRepository(db)
	anns := postgres.NewAnnouncementRepository(db)
	assignments := postgres.NewAssignmentRepository(db)

	teacher := testutil.CreateTeacher(t, users, "Bob", "bob@darasa.test", "pwd")
	student := testutil.CreateStudent(t, users, "Alice", "alice@darasa.test", "pwd", master2Computer)
	c := testutil.CreateCourse(t, courses, teacher.ID, "Compilers", master2Computer)

	t.Run("users", func(t *testing.T) {
		_, err := users.CreateUser(ctx, user.User{FirstName: "X", Email: "bob@darasa.test", Role: user.RoleTeacher, PasswordHash: []byte("x")})
		assert.Equal(t, user.ErrEmailExists, err)

		got, err := users.GetUserByEmail(ctx, "alice@darasa.test")
		require.NoError(t, err)
		assert.Equal(t, student.ID, got.ID)
		assert.NoError(t, got.CheckPassword("pwd"))

		found, err := users.QueryUsers(ctx, user.CohortFilter(master2Computer))
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, student.ID, found[0].ID)
	})

	t.Run("course visibility", func(t *testing.T) {
		got, err := courses.QueryCourses(ctx, authz.Filter{Kind: authz.ResourceCourse, Scope: authz.ScopeCohort, Cohort: master2Computer})
		require.NoError(t, err)
		require.Len(t, got, 1)

		other := master2Computer
		other.AcademicYear = 1
		got, err = courses.QueryCourses(ctx, authz.Filter{Kind: authz.ResourceCourse, Scope: authz.ScopeCohort, Cohort: other})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("completion upsert", func(t *testing.T) {
		_, err := courses.AddFile(ctx, c.ID, course.File{ID: "f1", FileName: "intro.pdf", FileType: "application/pdf", CreatedAt: time.Now()})
		require.NoError(t, err)
		_, err = courses.MarkCompletion(ctx, c.ID, "f1", course.CompletionRecord{StudentID: student.ID, Completed: true, MarkedAt: time.Now()})
		require.NoError(t, err)
		f, err := courses.MarkCompletion(ctx, c.ID, "f1", course.CompletionRecord{StudentID: student.ID, Completed: false, MarkedAt: time.Now()})
		require.NoError(t, err)
		assert.Len(t, f.Completion, 1)
		assert.False(t, f.Completion[student.ID].Completed)

		_, err = courses.MarkCompletion(ctx, c.ID, "nope", course.CompletionRecord{StudentID: student.ID})
		assert.Equal(t, course.ErrFileNotFound, err)
	})

	t.Run("announcement links", func(t *testing.T) {
		_, err := anns.CreateAnnouncement(ctx, announcement.Announcement{Title: "x", Content: "y", TeacherID: teacher.ID, CourseIDs: []string{"nope"}})
		assert.Equal(t, course.ErrNotFound, err)

		a, err := anns.CreateAnnouncement(ctx, announcement.Announcement{
			Title: "Exam", Content: "Friday", TeacherID: teacher.ID, CourseIDs: []string{c.ID},
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
		require.NoError(t, err)

		got, err := courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID}, got.AnnouncementIDs)

		listed, err := anns.QueryAnnouncements(ctx, authz.Filter{Kind: authz.ResourceAnnouncement, Scope: authz.ScopeCohort, Cohort: master2Computer}, "")
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, []string{c.ID}, listed[0].CourseIDs)
	})

	t.Run("submissions", func(t *testing.T) {
		a, err := assignments.CreateAssignment(ctx, assignment.Assignment{
			Title: "Lexer", CourseID: c.ID, TeacherID: teacher.ID, Deadline: time.Now().Add(time.Hour),
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		})
		require.NoError(t, err)

		first, err := assignments.SaveSubmission(ctx, assignment.Submission{AssignmentID: a.ID, StudentID: student.ID, Notes: "v1", SubmittedAt: time.Now()})
		require.NoError(t, err)
		second, err := assignments.SaveSubmission(ctx, assignment.Submission{AssignmentID: a.ID, StudentID: student.ID, Notes: "v2", SubmittedAt: time.Now()})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "v2", second.Notes)

		graded, err := assignments.GradeSubmission(ctx, first.ID, 14, time.Now())
		require.NoError(t, err)
		require.NotNil(t, graded.Mark)
		assert.Equal(t, 14.0, *graded.Mark)

		_, err = assignments.SaveSubmission(ctx, assignment.Submission{AssignmentID: a.ID, StudentID: student.ID, Notes: "v3", SubmittedAt: time.Now()})
		assert.Equal(t, assignment.ErrSubmissionGraded, err)
	})

	t.Run("course deletion cascades", func(t *testing.T) {
		require.NoError(t, courses.DeleteCourse(ctx, c.ID))
		got, err := assignments.QueryAssignments(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Equal(t, course.ErrNotFound, courses.DeleteCourse(ctx, c.ID))
	})
}
