package boltdb

import (
	"cmp"
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

var courseComparators = comparators[course.Course]{
	"title":          func(a, b course.Course) int { return strings.Compare(a.Title, b.Title) },
	"academic_level": func(a, b course.Course) int { return strings.Compare(a.AcademicLevel, b.AcademicLevel) },
	"academic_year":  func(a, b course.Course) int { return cmp.Compare(a.AcademicYear, b.AcademicYear) },
	"created_at":     func(a, b course.Course) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func getCourse(tx *bbolt.Tx, id string) (course.Course, error) {
	return get[course.Course](tx, bucketCourses, id, course.ErrNotFound)
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if c.ID == "" {
		c.ID = core.NewID()
	}
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		return put(tx, bucketCourses, c.ID, c)
	})
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string) (c course.Course, err error) {
	err = repo.db.bolt.View(func(tx *bbolt.Tx) error {
		c, err = getCourse(tx, id)
		return err
	})
	return c, err
}

func (repo courseRepository) GetCourses(ctx context.Context, ids ...string) ([]course.Course, error) {
	courses := make([]course.Course, 0, len(ids))
	err := repo.db.bolt.View(func(tx *bbolt.Tx) error {
		for _, id := range ids {
			c, err := getCourse(tx, id)
			if err != nil {
				if err == course.ErrNotFound {
					continue
				}
				return err
			}
			courses = append(courses, c)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	return courses, nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter authz.Filter, ordering ...core.DBOrdering) ([]course.Course, error) {
	var courses []course.Course
	err := repo.db.bolt.View(func(tx *bbolt.Tx) (err error) {
		courses, err = list(tx, bucketCourses, func(c course.Course) bool { return filter.Match(c.Resource()) })
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sortDocs(courses, ordering, courseComparators)
	return courses, nil
}

// UpdateCourse writes the editable fields of c. Files and announcement links are
// only changed through their own operations and are kept as stored.
func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	var updated course.Course
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		stored, err := getCourse(tx, c.ID)
		if err != nil {
			return err
		}
		stored.Title = c.Title
		stored.Description = c.Description
		stored.Image = c.Image
		stored.AcademicLevel = c.AcademicLevel
		stored.AcademicYear = c.AcademicYear
		stored.Major = c.Major
		stored.Materials = c.Materials
		stored.UpdatedAt = c.UpdatedAt
		updated = stored
		return put(tx, bucketCourses, stored.ID, stored)
	})
	if err != nil {
		if err == course.ErrNotFound {
			return course.Course{}, err
		}
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return updated, nil
}

func (repo courseRepository) DeleteCourse(ctx context.Context, id string) error {
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		c, err := getCourse(tx, id)
		if err != nil {
			return err
		}

		// unlink announcements
		for _, annID := range c.AnnouncementIDs {
			a, err := get[announcement.Announcement](tx, bucketAnnouncements, annID, announcement.ErrNotFound)
			if err != nil {
				if err == announcement.ErrNotFound {
					continue
				}
				return err
			}
			a.CourseIDs = removeString(a.CourseIDs, id)
			if err = put(tx, bucketAnnouncements, a.ID, a); err != nil {
				return err
			}
		}

		// cascade assignments and their submissions
		assignments, err := list(tx, bucketAssignments, func(a assignment.Assignment) bool { return a.CourseID == id })
		if err != nil {
			return err
		}
		for _, a := range assignments {
			if err = deleteAssignment(tx, a.ID); err != nil {
				return err
			}
		}
		return del(tx, bucketCourses, id)
	})
	if err != nil {
		if err == course.ErrNotFound {
			return err
		}
		return errors.Wrap(err, "deleting course")
	}
	return nil
}

func (repo courseRepository) AddFile(ctx context.Context, courseID string, f course.File) (c course.Course, err error) {
	err = repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		c, err = getCourse(tx, courseID)
		if err != nil {
			return err
		}
		c.Files = append(c.Files, f)
		return put(tx, bucketCourses, c.ID, c)
	})
	if err != nil {
		if err == course.ErrNotFound {
			return course.Course{}, err
		}
		return course.Course{}, errors.Wrap(err, "adding course file")
	}
	return c, nil
}

func (repo courseRepository) MarkCompletion(ctx context.Context, courseID, fileID string, rec course.CompletionRecord) (f course.File, err error) {
	err = repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		c, err := getCourse(tx, courseID)
		if err != nil {
			return err
		}
		for i := range c.Files {
			if c.Files[i].ID != fileID {
				continue
			}
			if c.Files[i].Completion == nil {
				c.Files[i].Completion = make(map[string]course.CompletionRecord)
			}
			c.Files[i].Completion[rec.StudentID] = rec
			f = c.Files[i]
			return put(tx, bucketCourses, c.ID, c)
		}
		return course.ErrFileNotFound
	})
	if err != nil && !core.IsNotFound(err) {
		err = errors.Wrap(err, "marking file completion")
	}
	return f, err
}
