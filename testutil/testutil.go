package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database/boltdb"
)

// OpenDB opens a fresh bolt database in a temporary directory, closed at the end of the test.
func OpenDB(t *testing.T) *boltdb.DB {
	t.Helper()
	db, err := boltdb.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	fname, lname, email, pwd, role string,
	cohort authz.Cohort,
	group string,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FirstName:     fname,
		LastName:      lname,
		Email:         email,
		Role:          role,
		AcademicLevel: cohort.AcademicLevel,
		AcademicYear:  cohort.AcademicYear,
		Major:         cohort.Major,
		Group:         group,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateTeacher(t *testing.T, repo user.Repository, fname, email, pwd string) user.User {
	t.Helper()
	return CreateUser(t, repo, fname, "Teacher", email, pwd, user.RoleTeacher, authz.Cohort{}, "")
}

func CreateStudent(t *testing.T, repo user.Repository, fname, email, pwd string, cohort authz.Cohort) user.User {
	t.Helper()
	return CreateUser(t, repo, fname, "Student", email, pwd, user.RoleStudent, cohort, "A1")
}

func CreateCourse(t *testing.T, repo course.Repository, teacherID, title string, cohort authz.Cohort, createdAt ...time.Time) course.Course {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	c, err := repo.CreateCourse(context.Background(), course.Course{
		Title:           title,
		Image:           "course0.png",
		TeacherID:       teacherID,
		AcademicLevel:   cohort.AcademicLevel,
		AcademicYear:    cohort.AcademicYear,
		Major:           cohort.Major,
		Files:           []course.File{},
		AnnouncementIDs: []string{},
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}
