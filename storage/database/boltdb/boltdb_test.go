package boltdb_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database/boltdb"
	"github.com/trezcool/darasa/testutil"
)

var (
	master2Computer = authz.Cohort{AcademicLevel: "master", AcademicYear: 2, Major: "computer"}
	master1Computer = authz.Cohort{AcademicLevel: "master", AcademicYear: 1, Major: "computer"}
	bachelor1       = authz.Cohort{AcademicLevel: "bachelor", AcademicYear: 1}
)

type repos struct {
	users         user.Repository
	courses       course.Repository
	announcements announcement.Repository
	assignments   assignment.Repository
}

func newRepos(t *testing.T) repos {
	db := testutil.OpenDB(t)
	return repos{
		users:         boltdb.NewUserRepository(db),
		courses:       boltdb.NewCourseRepository(db),
		announcements: boltdb.NewAnnouncementRepository(db),
		assignments:   boltdb.NewAssignmentRepository(db),
	}
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	alice := testutil.CreateStudent(t, r.users, "Alice", "alice@darasa.test", "pwd", master2Computer)
	bob := testutil.CreateTeacher(t, r.users, "Bob", "bob@darasa.test", "pwd")

	t.Run("password hash is persisted", func(t *testing.T) {
		got, err := r.users.GetUserByEmail(ctx, "alice@darasa.test")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.NoError(t, got.CheckPassword("pwd"))
	})

	t.Run("email uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrEmailExists, r.users.CheckEmailUniqueness(ctx, "bob@darasa.test"))
		assert.NoError(t, r.users.CheckEmailUniqueness(ctx, "bob@darasa.test", bob))
		assert.NoError(t, r.users.CheckEmailUniqueness(ctx, "carol@darasa.test"))
	})

	t.Run("email change moves the index", func(t *testing.T) {
		bob.Email = "robert@darasa.test"
		_, err := r.users.UpdateUser(ctx, bob)
		require.NoError(t, err)

		_, err = r.users.GetUserByEmail(ctx, "bob@darasa.test")
		assert.True(t, core.IsNotFound(err))
		got, err := r.users.GetUserByEmail(ctx, "robert@darasa.test")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
	})

	t.Run("query by cohort", func(t *testing.T) {
		users, err := r.users.QueryUsers(ctx, user.CohortFilter(master2Computer))
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, alice.ID, users[0].ID)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := r.users.GetUser(ctx, "nope")
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func TestCourseRepository_QueryCourses(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	now := time.Now().UTC()
	c1 := testutil.CreateCourse(t, r.courses, "t1", "Compilers", master2Computer, now.Add(-time.Hour))
	c2 := testutil.CreateCourse(t, r.courses, "t1", "Algebra", bachelor1, now)
	c3 := testutil.CreateCourse(t, r.courses, "t2", "Networks", master1Computer, now.Add(-2*time.Hour))

	ids := func(cs []course.Course) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	tests := []struct {
		name     string
		filter   authz.Filter
		ordering []core.DBOrdering
		want     []string
	}{
		{
			name:   "all, newest first",
			filter: authz.Filter{Kind: authz.ResourceCourse, Scope: authz.ScopeAll},
			want:   []string{c2.ID, c1.ID, c3.ID},
		},
		{
			name:     "all by title",
			filter:   authz.Filter{Kind: authz.ResourceCourse, Scope: authz.ScopeAll},
			ordering: []core.DBOrdering{{Field: "title", Ascending: true}},
			want:     []string{c2.ID, c1.ID, c3.ID},
		},
		{
			name:   "owner",
			filter: authz.Filter{Kind: authz.ResourceCourse, Scope: authz.ScopeOwner, OwnerID: "t2"},
			want:   []string{c3.ID},
		},
		{
			name:   "cohort",
			filter: authz.Filter{Kind: authz.ResourceCourse, Scope: authz.ScopeCohort, Cohort: master2Computer},
			want:   []string{c1.ID},
		},
		{
			name:   "none",
			filter: authz.Filter{Kind: authz.ResourceCourse, Scope: authz.ScopeNone},
			want:   []string{},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.courses.QueryCourses(ctx, tc.filter, tc.ordering...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(got))
		})
	}
}

func TestCourseRepository_MarkCompletion(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	c := testutil.CreateCourse(t, r.courses, "t1", "Compilers", master2Computer)
	c, err := r.courses.AddFile(ctx, c.ID, course.File{ID: "f1", FileName: "intro.pdf"})
	require.NoError(t, err)

	t.Run("unknown file", func(t *testing.T) {
		_, err := r.courses.MarkCompletion(ctx, c.ID, "nope", course.CompletionRecord{StudentID: "s1", Completed: true})
		assert.Equal(t, course.ErrFileNotFound, err)
	})

	t.Run("marking twice keeps one record", func(t *testing.T) {
		_, err := r.courses.MarkCompletion(ctx, c.ID, "f1", course.CompletionRecord{StudentID: "s1", Completed: true})
		require.NoError(t, err)
		f, err := r.courses.MarkCompletion(ctx, c.ID, "f1", course.CompletionRecord{StudentID: "s1", Completed: false})
		require.NoError(t, err)
		assert.Len(t, f.Completion, 1)
		assert.False(t, f.Completion["s1"].Completed)
	})

	t.Run("concurrent marks are not lost", func(t *testing.T) {
		students := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
		var wg sync.WaitGroup
		for _, s := range students {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := r.courses.MarkCompletion(ctx, c.ID, "f1", course.CompletionRecord{StudentID: id, Completed: true})
				assert.NoError(t, err)
			}(s)
		}
		wg.Wait()

		got, err := r.courses.GetCourse(ctx, c.ID)
		require.NoError(t, err)
		f, ok := got.File("f1")
		require.True(t, ok)
		assert.Len(t, f.Completion, len(students)+1)
	})

	t.Run("course update keeps files", func(t *testing.T) {
		stale := c
		stale.Title = "Compilers II"
		updated, err := r.courses.UpdateCourse(ctx, stale)
		require.NoError(t, err)
		assert.Equal(t, "Compilers II", updated.Title)
		f, ok := updated.File("f1")
		require.True(t, ok)
		assert.NotEmpty(t, f.Completion)
	})
}

func TestAnnouncementRepository_BackReferences(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	c1 := testutil.CreateCourse(t, r.courses, "t1", "Compilers", master2Computer)
	c2 := testutil.CreateCourse(t, r.courses, "t1", "Algebra", bachelor1)

	courseAnns := func(id string) []string {
		c, err := r.courses.GetCourse(ctx, id)
		require.NoError(t, err)
		return c.AnnouncementIDs
	}

	t.Run("unknown course", func(t *testing.T) {
		_, err := r.announcements.CreateAnnouncement(ctx, announcement.Announcement{
			Title: "x", TeacherID: "t1", CourseIDs: []string{c1.ID, "nope"},
		})
		assert.Equal(t, course.ErrNotFound, err)
		assert.Empty(t, courseAnns(c1.ID))
	})

	a, err := r.announcements.CreateAnnouncement(ctx, announcement.Announcement{
		Title: "Exam", TeacherID: "t1", CourseIDs: []string{c1.ID}, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	t.Run("create links", func(t *testing.T) {
		assert.Equal(t, []string{a.ID}, courseAnns(c1.ID))
	})

	t.Run("update relinks", func(t *testing.T) {
		a.CourseIDs = []string{c2.ID}
		_, err := r.announcements.UpdateAnnouncement(ctx, a)
		require.NoError(t, err)
		assert.Empty(t, courseAnns(c1.ID))
		assert.Equal(t, []string{a.ID}, courseAnns(c2.ID))
	})

	t.Run("listing by cohort follows the courses", func(t *testing.T) {
		f := authz.Filter{Kind: authz.ResourceAnnouncement, Scope: authz.ScopeCohort, Cohort: bachelor1}
		got, err := r.announcements.QueryAnnouncements(ctx, f, "")
		require.NoError(t, err)
		require.Len(t, got, 1)

		f.Cohort = master2Computer
		got, err = r.announcements.QueryAnnouncements(ctx, f, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("course deletion prunes the announcement", func(t *testing.T) {
		require.NoError(t, r.courses.DeleteCourse(ctx, c2.ID))
		got, err := r.announcements.GetAnnouncement(ctx, a.ID)
		require.NoError(t, err)
		assert.Empty(t, got.CourseIDs)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, r.announcements.DeleteAnnouncement(ctx, a.ID))
		_, err := r.announcements.GetAnnouncement(ctx, a.ID)
		assert.Equal(t, announcement.ErrNotFound, err)
	})
}

func TestAnnouncementRepository_UpdateKeepsStoredCourses(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	kept := testutil.CreateCourse(t, r.courses, "t1", "Compilers", master2Computer)
	dropped := testutil.CreateCourse(t, r.courses, "t1", "Algebra", bachelor1)

	a, err := r.announcements.CreateAnnouncement(ctx, announcement.Announcement{
		Title: "Exam", TeacherID: "t1", CourseIDs: []string{kept.ID, dropped.ID}, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, r.courses.DeleteCourse(ctx, dropped.ID))

	t.Run("stale links are not resurrected", func(t *testing.T) {
		stale := a
		stale.Title = "Exam moved"
		stale.CourseIDs = nil
		updated, err := r.announcements.UpdateAnnouncement(ctx, stale)
		require.NoError(t, err)
		assert.Equal(t, "Exam moved", updated.Title)
		assert.Equal(t, []string{kept.ID}, updated.CourseIDs)

		got, err := r.announcements.GetAnnouncement(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{kept.ID}, got.CourseIDs)

		c, err := r.courses.GetCourse(ctx, kept.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID}, c.AnnouncementIDs)
	})

	t.Run("an explicit deleted course is rejected", func(t *testing.T) {
		_, err := r.announcements.UpdateAnnouncement(ctx, a)
		assert.Equal(t, course.ErrNotFound, err)
	})
}

func TestAssignmentRepository_Submissions(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)
	c := testutil.CreateCourse(t, r.courses, "t1", "Compilers", master2Computer)
	a, err := r.assignments.CreateAssignment(ctx, assignment.Assignment{
		Title: "Lexer", CourseID: c.ID, TeacherID: "t1", Deadline: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	t.Run("assignment needs its course", func(t *testing.T) {
		_, err := r.assignments.CreateAssignment(ctx, assignment.Assignment{Title: "x", CourseID: "nope", TeacherID: "t1"})
		assert.Equal(t, course.ErrNotFound, err)
	})

	first, err := r.assignments.SaveSubmission(ctx, assignment.Submission{AssignmentID: a.ID, StudentID: "s1", Notes: "v1"})
	require.NoError(t, err)

	t.Run("resubmitting replaces", func(t *testing.T) {
		second, err := r.assignments.SaveSubmission(ctx, assignment.Submission{ID: "other", AssignmentID: a.ID, StudentID: "s1", Notes: "v2"})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		subs, err := r.assignments.QuerySubmissions(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, "v2", subs[0].Notes)
	})

	t.Run("grading overwrites", func(t *testing.T) {
		_, err := r.assignments.GradeSubmission(ctx, first.ID, 12, time.Now().UTC())
		require.NoError(t, err)
		s, err := r.assignments.GradeSubmission(ctx, first.ID, 15.5, time.Now().UTC())
		require.NoError(t, err)
		require.NotNil(t, s.Mark)
		assert.Equal(t, 15.5, *s.Mark)
		assert.NotNil(t, s.MarkedAt)
	})

	t.Run("graded submission is locked", func(t *testing.T) {
		_, err := r.assignments.SaveSubmission(ctx, assignment.Submission{AssignmentID: a.ID, StudentID: "s1", Notes: "v3"})
		assert.Equal(t, assignment.ErrSubmissionGraded, err)
	})

	t.Run("student lookup", func(t *testing.T) {
		s, err := r.assignments.GetStudentSubmission(ctx, a.ID, "s1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, s.ID)
		_, err = r.assignments.GetStudentSubmission(ctx, a.ID, "s2")
		assert.Equal(t, assignment.ErrSubmissionNotFound, err)
	})

	t.Run("course deletion cascades", func(t *testing.T) {
		require.NoError(t, r.courses.DeleteCourse(ctx, c.ID))
		_, err := r.assignments.GetAssignment(ctx, a.ID)
		assert.Equal(t, assignment.ErrNotFound, err)
		_, err = r.assignments.GetSubmission(ctx, first.ID)
		assert.Equal(t, assignment.ErrSubmissionNotFound, err)
	})
}
