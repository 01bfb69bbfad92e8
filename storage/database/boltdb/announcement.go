package boltdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

type announcementRepository struct {
	db *DB
}

var _ announcement.Repository = (*announcementRepository)(nil) // interface compliance check

func NewAnnouncementRepository(db *DB) *announcementRepository {
	return &announcementRepository{db: db}
}

func getAnnouncement(tx *bbolt.Tx, id string) (announcement.Announcement, error) {
	return get[announcement.Announcement](tx, bucketAnnouncements, id, announcement.ErrNotFound)
}

// link adds (or with unlink, removes) annID to the announcements of the courses.
func link(tx *bbolt.Tx, annID string, courseIDs []string, unlink bool) error {
	for _, id := range courseIDs {
		c, err := getCourse(tx, id)
		if err != nil {
			if unlink && err == course.ErrNotFound {
				continue
			}
			return err
		}
		if unlink {
			c.AnnouncementIDs = removeString(c.AnnouncementIDs, annID)
		} else if !containsString(c.AnnouncementIDs, annID) {
			c.AnnouncementIDs = append(c.AnnouncementIDs, annID)
		}
		if err = put(tx, bucketCourses, c.ID, c); err != nil {
			return err
		}
	}
	return nil
}

// wrapErr keeps not-found errors unwrapped so callers can compare them.
func wrapErr(err error, msg string) error {
	if err == nil || core.IsNotFound(err) {
		return err
	}
	return errors.Wrap(err, msg)
}

func (repo announcementRepository) CreateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		if err := link(tx, a.ID, a.CourseIDs, false); err != nil {
			return err
		}
		return put(tx, bucketAnnouncements, a.ID, a)
	})
	if err != nil {
		return announcement.Announcement{}, wrapErr(err, "inserting announcement")
	}
	return a, nil
}

func (repo announcementRepository) GetAnnouncement(ctx context.Context, id string) (a announcement.Announcement, err error) {
	err = repo.db.bolt.View(func(tx *bbolt.Tx) error {
		a, err = getAnnouncement(tx, id)
		return err
	})
	return a, err
}

func (repo announcementRepository) QueryAnnouncements(ctx context.Context, filter authz.Filter, courseID string) ([]announcement.Announcement, error) {
	var anns []announcement.Announcement
	err := repo.db.bolt.View(func(tx *bbolt.Tx) (err error) {
		// cohorts are resolved through the linked courses
		cohorts := make(map[string]authz.Cohort)
		courses, err := list[course.Course](tx, bucketCourses, nil)
		if err != nil {
			return err
		}
		for _, c := range courses {
			cohorts[c.ID] = c.Cohort()
		}

		anns, err = list(tx, bucketAnnouncements, func(a announcement.Announcement) bool {
			if courseID != "" && !containsString(a.CourseIDs, courseID) {
				return false
			}
			r := authz.Resource{Kind: authz.ResourceAnnouncement, OwnerID: a.TeacherID}
			for _, id := range a.CourseIDs {
				if c, ok := cohorts[id]; ok {
					r.Cohorts = append(r.Cohorts, c)
				}
			}
			return filter.Match(r)
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "selecting announcements")
	}

	sort.SliceStable(anns, func(i, j int) bool { return anns[i].CreatedAt.After(anns[j].CreatedAt) })
	return anns, nil
}

func (repo announcementRepository) UpdateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	var updated announcement.Announcement
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		stored, err := getAnnouncement(tx, a.ID)
		if err != nil {
			return err
		}

		if a.CourseIDs == nil {
			a.CourseIDs = stored.CourseIDs
		}

		var removed, added []string
		for _, id := range stored.CourseIDs {
			if !containsString(a.CourseIDs, id) {
				removed = append(removed, id)
			}
		}
		for _, id := range a.CourseIDs {
			if !containsString(stored.CourseIDs, id) {
				added = append(added, id)
			}
		}
		if err = link(tx, a.ID, added, false); err != nil {
			return err
		}
		if err = link(tx, a.ID, removed, true); err != nil {
			return err
		}

		stored.Title = a.Title
		stored.Content = a.Content
		stored.CourseIDs = a.CourseIDs
		stored.UpdatedAt = a.UpdatedAt
		updated = stored
		return put(tx, bucketAnnouncements, stored.ID, stored)
	})
	if err != nil {
		return announcement.Announcement{}, wrapErr(err, "updating announcement")
	}
	return updated, nil
}

func (repo announcementRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	err := repo.db.bolt.Update(func(tx *bbolt.Tx) error {
		a, err := getAnnouncement(tx, id)
		if err != nil {
			return err
		}
		if err = link(tx, a.ID, a.CourseIDs, true); err != nil {
			return err
		}
		return del(tx, bucketAnnouncements, id)
	})
	return wrapErr(err, "deleting announcement")
}
