package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
)

// Roles
const (
	RoleStudent = string(authz.RoleStudent)
	RoleTeacher = string(authz.RoleTeacher)
)

// Academic levels
const (
	LevelBachelor = "bachelor"
	LevelMaster   = "master"
)

// Majors
const (
	MajorControl  = "control"
	MajorComputer = "computer"
	MajorPower    = "power"
	MajorTelecom  = "telecom"
)

var (
	AllRoles  = []string{RoleStudent, RoleTeacher}
	AllLevels = []string{LevelBachelor, LevelMaster}
	AllMajors = []string{MajorControl, MajorComputer, MajorPower, MajorTelecom}
)

type User struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	PhoneNumber   string    `json:"phone_number"`
	Role          string    `json:"role"`
	AcademicLevel string    `json:"academic_level,omitempty"`
	AcademicYear  int       `json:"academic_year,omitempty"`
	Major         string    `json:"major,omitempty"`
	Group         string    `json:"group,omitempty"`
	ProfileImage  string    `json:"profile_image,omitempty"`
	PasswordHash  []byte    `json:"-"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
	LastLogin     time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

func (u User) Cohort() authz.Cohort {
	if !u.IsStudent() {
		return authz.Cohort{}
	}
	return authz.Cohort{AcademicLevel: u.AcademicLevel, AcademicYear: u.AcademicYear, Major: u.Major}
}

// Principal returns the authorization identity of the user.
func (u User) Principal() authz.Principal {
	return authz.Principal{
		ID:     u.ID,
		Role:   authz.Role(u.Role),
		Cohort: u.Cohort(),
		Group:  u.Group,
	}
}

// ProfileImageKey is the file storage key of the user's profile image.
func (u User) ProfileImageKey() string {
	return "users/" + u.ID + "/profile-image"
}

// NewUser contains information needed to register a new User.
type NewUser struct {
	FirstName       string `json:"first_name" validate:"required,notblank_,max=50"`
	LastName        string `json:"last_name" validate:"required,notblank_,max=50"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	PhoneNumber     string `json:"phone_number" validate:"omitempty,e164"`
	Role            string `json:"role" validate:"required,oneof=student teacher"`
	AcademicLevel   string `json:"academic_level" validate:"required_if=Role student,omitempty,oneof=bachelor master"`
	AcademicYear    int    `json:"academic_year" validate:"required_if=Role student,omitempty,min=1,max=5"`
	Major           string `json:"major" validate:"omitempty,oneof=control computer power telecom"`
	Group           string `json:"group" validate:"required_if=Role student,omitempty,max=20,alphanum_"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.PhoneNumber = core.CleanString(nu.PhoneNumber)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.AcademicLevel = core.CleanString(nu.AcademicLevel, true /* lower */)
	nu.Major = core.CleanString(nu.Major, true /* lower */)
	nu.Group = core.CleanString(nu.Group)

	// cohort fields only make sense for students
	if nu.Role == RoleTeacher {
		nu.AcademicLevel, nu.AcademicYear, nu.Major, nu.Group = "", 0, "", ""
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(nu.Email)
}

// UpdateProfile defines what information a User may change on their own profile.
type UpdateProfile struct {
	FirstName       string `json:"first_name" form:"first_name" validate:"omitempty,notblank_,max=50"`
	LastName        string `json:"last_name" form:"last_name" validate:"omitempty,notblank_,max=50"`
	Email           string `json:"email" form:"email" validate:"omitempty,email"`
	PhoneNumber     string `json:"phone_number" form:"phone_number" validate:"omitempty,e164"`
	CurrentPassword string `json:"current_password" form:"current_password" validate:"required_with=NewPassword"`
	NewPassword     string `json:"new_password" form:"new_password"`

	// fields below are used by validators only
	firstName string
	lastName  string
	email     string
}

func (up *UpdateProfile) Validate(origUsr User, validate *validator.Validate, svc *Service) error {
	up.FirstName = core.CleanString(up.FirstName)
	up.LastName = core.CleanString(up.LastName)
	up.Email = core.CleanString(up.Email, true /* lower */)
	up.PhoneNumber = core.CleanString(up.PhoneNumber)

	up.firstName, up.lastName, up.email = origUsr.FirstName, origUsr.LastName, origUsr.Email
	if up.FirstName != "" {
		up.firstName = up.FirstName
	}
	if up.LastName != "" {
		up.lastName = up.LastName
	}
	if up.Email != "" {
		up.email = up.Email
	}

	if err := validate.Struct(up); err != nil {
		return err
	}
	if up.NewPassword != "" {
		if err := origUsr.CheckPassword(up.CurrentPassword); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "current_password", Error: "incorrect password"})
		}
	}
	if up.Email != "" && up.Email != origUsr.Email {
		return svc.checkUniqueness(up.Email, origUsr)
	}
	return nil
}

type QueryFilter struct {
	Search        string        `query:"search"`
	Role          string        `query:"role"`
	AcademicLevel string        `query:"academic_level"`
	AcademicYear  int           `query:"academic_year"`
	Major         string        `query:"major"`
	Group         string        `query:"group"`
	Cohort        *authz.Cohort `query:"-"` // exact cohort match, students only
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.AcademicLevel = core.CleanString(qf.AcademicLevel, true /* lower */)
	qf.Major = core.CleanString(qf.Major, true /* lower */)
	qf.Group = core.CleanString(qf.Group)
}

// CohortFilter selects the students of a cohort.
func CohortFilter(c authz.Cohort) QueryFilter {
	return QueryFilter{Role: RoleStudent, Cohort: &c}
}

// Match reports whether usr is selected by qf.
// Search does a case-insensitive match on one of the first name, last name or email.
func (qf QueryFilter) Match(usr User) bool {
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !(strings.Contains(strings.ToLower(usr.FirstName), s) ||
			strings.Contains(strings.ToLower(usr.LastName), s) ||
			strings.Contains(usr.Email, s)) {
			return false
		}
	}
	if qf.Role != "" && usr.Role != qf.Role {
		return false
	}
	if qf.AcademicLevel != "" && usr.AcademicLevel != qf.AcademicLevel {
		return false
	}
	if qf.AcademicYear != 0 && usr.AcademicYear != qf.AcademicYear {
		return false
	}
	if qf.Major != "" && usr.Major != qf.Major {
		return false
	}
	if qf.Group != "" && usr.Group != qf.Group {
		return false
	}
	if qf.Cohort != nil && (!usr.IsStudent() || usr.Cohort() != *qf.Cohort) {
		return false
	}
	return true
}
