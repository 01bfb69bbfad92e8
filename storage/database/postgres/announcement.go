package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

const announcementColumns = `a."id", a."title", a."content", a."teacher_id", a."created_at", a."updated_at"`

type announcementRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	TeacherID string    `db:"teacher_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row announcementRow) announcement() announcement.Announcement {
	return announcement.Announcement{
		ID:        row.ID,
		Title:     row.Title,
		Content:   row.Content,
		TeacherID: row.TeacherID,
		CourseIDs: []string{},
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type announcementRepository struct {
	db *sqlx.DB
}

var _ announcement.Repository = (*announcementRepository)(nil) // interface compliance check

func NewAnnouncementRepository(db *sqlx.DB) *announcementRepository {
	return &announcementRepository{db: db}
}

// withCourses loads the linked course ids of rows, in link order.
func withCourses(ctx context.Context, q sqlx.ExtContext, rows []announcementRow) ([]announcement.Announcement, error) {
	anns := make([]announcement.Announcement, 0, len(rows))
	if len(rows) == 0 {
		return anns, nil
	}
	ids := make([]string, 0, len(rows))
	byID := make(map[string]int, len(rows))
	for i, row := range rows {
		ids = append(ids, row.ID)
		byID[row.ID] = i
		anns = append(anns, row.announcement())
	}

	query, args, err := in(q, `SELECT "announcement_id", "course_id" FROM "announcement_courses"
		WHERE "announcement_id" IN (?) ORDER BY "position"`, ids)
	if err != nil {
		return nil, err
	}
	var links []linkRow
	if err = sqlx.SelectContext(ctx, q, &links, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting announcement courses")
	}
	for _, l := range links {
		a := &anns[byID[l.AnnouncementID]]
		a.CourseIDs = append(a.CourseIDs, l.CourseID)
	}
	return anns, nil
}

// setCourses replaces the course links of an announcement. Every course must exist.
func setCourses(ctx context.Context, tx *sqlx.Tx, annID string, courseIDs []string) error {
	if len(courseIDs) > 0 {
		query, args, err := in(tx, `SELECT COUNT(*) FROM "courses" WHERE "id" IN (?)`, courseIDs)
		if err != nil {
			return err
		}
		var n int
		if err = tx.GetContext(ctx, &n, query, args...); err != nil {
			return errors.Wrap(err, "counting courses")
		}
		if n != len(courseIDs) {
			return course.ErrNotFound
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM "announcement_courses" WHERE "announcement_id" = $1`, annID); err != nil {
		return errors.Wrap(err, "unlinking courses")
	}
	for i, id := range courseIDs {
		_, err := tx.ExecContext(ctx, `INSERT INTO "announcement_courses" ("announcement_id", "course_id", "position")
			VALUES ($1, $2, $3)`, annID, id, i)
		if err != nil {
			return errors.Wrap(err, "linking course")
		}
	}
	return nil
}

func getAnnouncement(ctx context.Context, q sqlx.ExtContext, id string) (announcement.Announcement, error) {
	var row announcementRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT `+announcementColumns+` FROM "announcements" a WHERE a."id" = $1`, id); err != nil {
		return announcement.Announcement{}, trapNoRowsErr(err, announcement.ErrNotFound, "selecting announcement")
	}
	anns, err := withCourses(ctx, q, []announcementRow{row})
	if err != nil {
		return announcement.Announcement{}, err
	}
	return anns[0], nil
}

func (repo announcementRepository) CreateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO "announcements" ("id", "title", "content", "teacher_id", "created_at", "updated_at")
			VALUES ($1, $2, $3, $4, $5, $6)`, a.ID, a.Title, a.Content, a.TeacherID, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting announcement")
		}
		return setCourses(ctx, tx, a.ID, a.CourseIDs)
	})
	if err != nil {
		return announcement.Announcement{}, trapNoRowsErr(err, announcement.ErrNotFound, "creating announcement")
	}
	return getAnnouncement(ctx, repo.db, a.ID)
}

func (repo announcementRepository) GetAnnouncement(ctx context.Context, id string) (announcement.Announcement, error) {
	return getAnnouncement(ctx, repo.db, id)
}

func (repo announcementRepository) QueryAnnouncements(ctx context.Context, filter authz.Filter, courseID string) ([]announcement.Announcement, error) {
	q := `SELECT ` + announcementColumns + ` FROM "announcements" a WHERE TRUE`
	var args []interface{}
	if courseID != "" {
		q += ` AND EXISTS (SELECT 1 FROM "announcement_courses" ac WHERE ac."announcement_id" = a."id" AND ac."course_id" = ?)`
		args = append(args, courseID)
	}
	switch filter.Scope {
	case authz.ScopeAll:
	case authz.ScopeOwner:
		q += ` AND a."teacher_id" = ?`
		args = append(args, filter.OwnerID)
	case authz.ScopeCohort:
		q += ` AND EXISTS (SELECT 1 FROM "announcement_courses" ac JOIN "courses" c ON c."id" = ac."course_id"
			WHERE ac."announcement_id" = a."id" AND ` + cohortClause(`c.`) + `)`
		args = append(args, cohortArgs(filter.Cohort)...)
	default:
		return []announcement.Announcement{}, nil
	}
	q += ` ORDER BY a."created_at" DESC`

	var rows []announcementRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting announcements")
	}
	return withCourses(ctx, repo.db, rows)
}

func (repo announcementRepository) UpdateAnnouncement(ctx context.Context, a announcement.Announcement) (announcement.Announcement, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE "announcements" SET "title" = $1, "content" = $2, "updated_at" = $3
			WHERE "id" = $4`, a.Title, a.Content, a.UpdatedAt.UTC(), a.ID)
		if err != nil {
			return errors.Wrap(err, "updating announcement")
		}
		if err = expectRows(res, announcement.ErrNotFound); err != nil {
			return err
		}
		if a.CourseIDs == nil {
			return nil
		}
		return setCourses(ctx, tx, a.ID, a.CourseIDs)
	})
	if err != nil {
		return announcement.Announcement{}, trapNoRowsErr(err, announcement.ErrNotFound, "updating announcement")
	}
	return getAnnouncement(ctx, repo.db, a.ID)
}

func (repo announcementRepository) DeleteAnnouncement(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM "announcements" WHERE "id" = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting announcement")
	}
	return expectRows(res, announcement.ErrNotFound)
}
