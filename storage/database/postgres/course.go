package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
)

const courseColumns = `"id", "title", "description", "image", "teacher_id", "academic_level", "academic_year",
	"major", "materials", "created_at", "updated_at"`

var courseOrderColumns = map[string]string{
	"title":          `"title"`,
	"academic_level": `"academic_level"`,
	"academic_year":  `"academic_year"`,
	"created_at":     `"created_at"`,
}

type courseRow struct {
	ID            string    `db:"id"`
	Title         string    `db:"title"`
	Description   string    `db:"description"`
	Image         string    `db:"image"`
	TeacherID     string    `db:"teacher_id"`
	AcademicLevel string    `db:"academic_level"`
	AcademicYear  int       `db:"academic_year"`
	Major         string    `db:"major"`
	Materials     string    `db:"materials"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

type fileRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	FileName    string    `db:"file_name"`
	FileType    string    `db:"file_type"`
	Size        int64     `db:"size"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

type completionRow struct {
	FileID    string    `db:"file_id"`
	StudentID string    `db:"student_id"`
	Completed bool      `db:"completed"`
	MarkedAt  time.Time `db:"marked_at"`
}

type linkRow struct {
	AnnouncementID string `db:"announcement_id"`
	CourseID       string `db:"course_id"`
}

func toCourseRow(c course.Course) courseRow {
	return courseRow{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		Image:         c.Image,
		TeacherID:     c.TeacherID,
		AcademicLevel: c.AcademicLevel,
		AcademicYear:  c.AcademicYear,
		Major:         c.Major,
		Materials:     c.Materials,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func (row courseRow) course() course.Course {
	return course.Course{
		ID:              row.ID,
		Title:           row.Title,
		Description:     row.Description,
		Image:           row.Image,
		TeacherID:       row.TeacherID,
		AcademicLevel:   row.AcademicLevel,
		AcademicYear:    row.AcademicYear,
		Major:           row.Major,
		Materials:       row.Materials,
		Files:           []course.File{},
		AnnouncementIDs: []string{},
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

func (row fileRow) file() course.File {
	return course.File{
		ID:          row.ID,
		FileName:    row.FileName,
		FileType:    row.FileType,
		Size:        row.Size,
		Description: row.Description,
		CreatedAt:   row.CreatedAt.UTC(),
		Completion:  map[string]course.CompletionRecord{},
	}
}

// cohortClause is the WHERE condition selecting the courses readable by a cohort.
func cohortClause(alias string) string {
	return alias + `"academic_level" = ? AND ` + alias + `"academic_year" = ? AND ` + alias + `"major" = ?`
}

func cohortArgs(c authz.Cohort) []interface{} {
	return []interface{}{c.AcademicLevel, c.AcademicYear, c.Major}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

// hydrate loads the files, their completion and the announcement links of rows.
func hydrate(ctx context.Context, q sqlx.ExtContext, rows []courseRow) ([]course.Course, error) {
	courses := make([]course.Course, 0, len(rows))
	if len(rows) == 0 {
		return courses, nil
	}
	ids := make([]string, 0, len(rows))
	byID := make(map[string]int, len(rows))
	for i, row := range rows {
		ids = append(ids, row.ID)
		byID[row.ID] = i
		courses = append(courses, row.course())
	}

	query, args, err := in(q, `SELECT "id", "course_id", "file_name", "file_type", "size", "description", "created_at"
		FROM "course_files" WHERE "course_id" IN (?) ORDER BY "created_at"`, ids)
	if err != nil {
		return nil, err
	}
	var files []fileRow
	if err = sqlx.SelectContext(ctx, q, &files, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting course files")
	}

	if len(files) > 0 {
		fileIDs := make([]string, 0, len(files))
		for _, f := range files {
			fileIDs = append(fileIDs, f.ID)
		}
		query, args, err = in(q, `SELECT "file_id", "student_id", "completed", "marked_at"
			FROM "file_completions" WHERE "file_id" IN (?)`, fileIDs)
		if err != nil {
			return nil, err
		}
		var completions []completionRow
		if err = sqlx.SelectContext(ctx, q, &completions, query, args...); err != nil {
			return nil, errors.Wrap(err, "selecting file completions")
		}
		byFile := make(map[string][]completionRow)
		for _, cr := range completions {
			byFile[cr.FileID] = append(byFile[cr.FileID], cr)
		}
		for _, fr := range files {
			f := fr.file()
			for _, cr := range byFile[f.ID] {
				f.Completion[cr.StudentID] = course.CompletionRecord{StudentID: cr.StudentID, Completed: cr.Completed, MarkedAt: cr.MarkedAt.UTC()}
			}
			c := &courses[byID[fr.CourseID]]
			c.Files = append(c.Files, f)
		}
	}

	query, args, err = in(q, `SELECT ac."announcement_id", ac."course_id" FROM "announcement_courses" ac
		JOIN "announcements" a ON a."id" = ac."announcement_id"
		WHERE ac."course_id" IN (?) ORDER BY a."created_at"`, ids)
	if err != nil {
		return nil, err
	}
	var links []linkRow
	if err = sqlx.SelectContext(ctx, q, &links, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting course announcements")
	}
	for _, l := range links {
		c := &courses[byID[l.CourseID]]
		c.AnnouncementIDs = append(c.AnnouncementIDs, l.AnnouncementID)
	}
	return courses, nil
}

func getCourse(ctx context.Context, q sqlx.ExtContext, id string) (course.Course, error) {
	var row courseRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT `+courseColumns+` FROM "courses" WHERE "id" = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "selecting course")
	}
	courses, err := hydrate(ctx, q, []courseRow{row})
	if err != nil {
		return course.Course{}, err
	}
	return courses[0], nil
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if c.ID == "" {
		c.ID = core.NewID()
	}
	q := `INSERT INTO "courses" (` + courseColumns + `) VALUES (:id, :title, :description, :image, :teacher_id,
		:academic_level, :academic_year, :major, :materials, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toCourseRow(c)); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return getCourse(ctx, repo.db, c.ID)
}

func (repo courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	return getCourse(ctx, repo.db, id)
}

func (repo courseRepository) GetCourses(ctx context.Context, ids ...string) ([]course.Course, error) {
	if len(ids) == 0 {
		return []course.Course{}, nil
	}
	query, args, err := in(repo.db, `SELECT `+courseColumns+` FROM "courses" WHERE "id" IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []courseRow
	if err = repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}

	// keep the requested order
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}
	ordered := make([]courseRow, len(ids))
	present := make([]bool, len(ids))
	for _, row := range rows {
		ordered[pos[row.ID]] = row
		present[pos[row.ID]] = true
	}
	kept := rows[:0]
	for i, row := range ordered {
		if present[i] {
			kept = append(kept, row)
		}
	}
	return hydrate(ctx, repo.db, kept)
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter authz.Filter, ordering ...core.DBOrdering) ([]course.Course, error) {
	q := `SELECT ` + courseColumns + ` FROM "courses"`
	var args []interface{}
	switch filter.Scope {
	case authz.ScopeAll:
	case authz.ScopeOwner:
		q += ` WHERE "teacher_id" = ?`
		args = append(args, filter.OwnerID)
	case authz.ScopeCohort:
		q += ` WHERE ` + cohortClause("")
		args = append(args, cohortArgs(filter.Cohort)...)
	default:
		return []course.Course{}, nil
	}
	q += orderBy(ordering, courseOrderColumns, `"created_at" DESC`)

	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}
	return hydrate(ctx, repo.db, rows)
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	q := `UPDATE "courses" SET "title" = :title, "description" = :description, "image" = :image,
		"academic_level" = :academic_level, "academic_year" = :academic_year, "major" = :major,
		"materials" = :materials, "updated_at" = :updated_at WHERE "id" = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toCourseRow(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if err = expectRows(res, course.ErrNotFound); err != nil {
		return course.Course{}, err
	}
	return getCourse(ctx, repo.db, c.ID)
}

// DeleteCourse relies on ON DELETE CASCADE for files, links, assignments and submissions.
func (repo courseRepository) DeleteCourse(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM "courses" WHERE "id" = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return expectRows(res, course.ErrNotFound)
}

func (repo courseRepository) AddFile(ctx context.Context, courseID string, f course.File) (c course.Course, err error) {
	err = withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM "courses" WHERE "id" = $1)`, courseID); err != nil {
			return err
		}
		if !exists {
			return course.ErrNotFound
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO "course_files" ("id", "course_id", "file_name", "file_type", "size",
			"description", "created_at") VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			f.ID, courseID, f.FileName, f.FileType, f.Size, f.Description, f.CreatedAt.UTC())
		if err != nil {
			return err
		}
		c, err = getCourse(ctx, tx, courseID)
		return err
	})
	if err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "adding course file")
	}
	return c, nil
}

func (repo courseRepository) MarkCompletion(ctx context.Context, courseID, fileID string, rec course.CompletionRecord) (course.File, error) {
	var f course.File
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM "courses" WHERE "id" = $1)`, courseID); err != nil {
			return err
		}
		if !exists {
			return course.ErrNotFound
		}

		var fr fileRow
		err := tx.GetContext(ctx, &fr, `SELECT "id", "course_id", "file_name", "file_type", "size", "description", "created_at"
			FROM "course_files" WHERE "id" = $1 AND "course_id" = $2`, fileID, courseID)
		if err != nil {
			return trapNoRowsErr(err, course.ErrFileNotFound, "selecting course file")
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO "file_completions" ("file_id", "student_id", "completed", "marked_at")
			VALUES ($1, $2, $3, $4)
			ON CONFLICT ("file_id", "student_id") DO UPDATE SET "completed" = EXCLUDED."completed", "marked_at" = EXCLUDED."marked_at"`,
			fileID, rec.StudentID, rec.Completed, rec.MarkedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "upserting file completion")
		}

		var completions []completionRow
		err = tx.SelectContext(ctx, &completions, `SELECT "file_id", "student_id", "completed", "marked_at"
			FROM "file_completions" WHERE "file_id" = $1`, fileID)
		if err != nil {
			return errors.Wrap(err, "selecting file completions")
		}
		f = fr.file()
		for _, cr := range completions {
			f.Completion[cr.StudentID] = course.CompletionRecord{StudentID: cr.StudentID, Completed: cr.Completed, MarkedAt: cr.MarkedAt.UTC()}
		}
		return nil
	})
	if err != nil {
		return course.File{}, trapNoRowsErr(err, course.ErrFileNotFound, "marking file completion")
	}
	return f, nil
}
