package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

const userColumns = `"id", "first_name", "last_name", "email", "phone_number", "role", "academic_level",
	"academic_year", "major", "group", "profile_image", "password_hash", "created_at", "updated_at", "last_login"`

var userOrderColumns = map[string]string{
	"first_name": `"first_name"`,
	"last_name":  `"last_name"`,
	"email":      `"email"`,
	"created_at": `"created_at"`,
}

type userRow struct {
	ID            string      `db:"id"`
	FirstName     string      `db:"first_name"`
	LastName      string      `db:"last_name"`
	Email         string      `db:"email"`
	PhoneNumber   null.String `db:"phone_number"`
	Role          string      `db:"role"`
	AcademicLevel null.String `db:"academic_level"`
	AcademicYear  null.Int    `db:"academic_year"`
	Major         null.String `db:"major"`
	Group         null.String `db:"group"`
	ProfileImage  null.String `db:"profile_image"`
	PasswordHash  []byte      `db:"password_hash"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
	LastLogin     null.Time   `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	return userRow{
		ID:            usr.ID,
		FirstName:     usr.FirstName,
		LastName:      usr.LastName,
		Email:         usr.Email,
		PhoneNumber:   null.NewString(usr.PhoneNumber, usr.PhoneNumber != ""),
		Role:          usr.Role,
		AcademicLevel: null.NewString(usr.AcademicLevel, usr.AcademicLevel != ""),
		AcademicYear:  null.NewInt(usr.AcademicYear, usr.AcademicYear != 0),
		Major:         null.NewString(usr.Major, usr.Major != ""),
		Group:         null.NewString(usr.Group, usr.Group != ""),
		ProfileImage:  null.NewString(usr.ProfileImage, usr.ProfileImage != ""),
		PasswordHash:  usr.PasswordHash,
		CreatedAt:     usr.CreatedAt.UTC(),
		UpdatedAt:     usr.UpdatedAt.UTC(),
		LastLogin:     null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) user() user.User {
	return user.User{
		ID:            row.ID,
		FirstName:     row.FirstName,
		LastName:      row.LastName,
		Email:         row.Email,
		PhoneNumber:   row.PhoneNumber.String,
		Role:          row.Role,
		AcademicLevel: row.AcademicLevel.String,
		AcademicYear:  row.AcademicYear.Int,
		Major:         row.Major.String,
		Group:         row.Group.String,
		ProfileImage:  row.ProfileImage.String,
		PasswordHash:  row.PasswordHash,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
		LastLogin:     row.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		ids = append(ids, u.ID)
	}

	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM "users" WHERE "email" = $1 AND NOT ("id" = ANY($2)))`
	if err := repo.db.GetContext(ctx, &exists, q, email, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = core.NewID()
	}
	q := `INSERT INTO "users" (` + userColumns + `) VALUES (:id, :first_name, :last_name, :email, :phone_number,
		:role, :academic_level, :academic_year, :major, :group, :profile_image, :password_hash, :created_at,
		:updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) getBy(ctx context.Context, column, value string) (user.User, error) {
	var row userRow
	q := `SELECT ` + userColumns + ` FROM "users" WHERE "` + column + `" = $1`
	if err := repo.db.GetContext(ctx, &row, q, value); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "selecting user")
	}
	return row.user(), nil
}

func (repo userRepository) GetUser(ctx context.Context, id string) (user.User, error) {
	return repo.getBy(ctx, "id", id)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getBy(ctx, "email", email)
}

func (repo userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	// users with first name, last name or email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		where = append(where, `("first_name" ILIKE ? OR "last_name" ILIKE ? OR "email" ILIKE ?)`)
		args = append(args, val, val, val)
	}
	if filter.Role != "" {
		where = append(where, `"role" = ?`)
		args = append(args, filter.Role)
	}
	if filter.AcademicLevel != "" {
		where = append(where, `"academic_level" = ?`)
		args = append(args, filter.AcademicLevel)
	}
	if filter.AcademicYear != 0 {
		where = append(where, `"academic_year" = ?`)
		args = append(args, filter.AcademicYear)
	}
	if filter.Major != "" {
		where = append(where, `"major" = ?`)
		args = append(args, filter.Major)
	}
	if filter.Group != "" {
		where = append(where, `"group" = ?`)
		args = append(args, filter.Group)
	}
	if filter.Cohort != nil {
		where = append(where, `"role" = ? AND "academic_level" = ? AND "academic_year" = ? AND COALESCE("major", '') = ?`)
		args = append(args, user.RoleStudent, filter.Cohort.AcademicLevel, filter.Cohort.AcademicYear, filter.Cohort.Major)
	}

	q := `SELECT ` + userColumns + ` FROM "users"`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(ordering, userOrderColumns, `"first_name" ASC, "last_name" ASC`)

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE "users" SET "first_name" = :first_name, "last_name" = :last_name, "email" = :email,
		"phone_number" = :phone_number, "profile_image" = :profile_image, "password_hash" = :password_hash,
		"updated_at" = :updated_at, "last_login" = :last_login WHERE "id" = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toUserRow(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = expectRows(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return usr, nil
}
