package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
)

// coverImages is the number of stock cover images (course0.png .. course7.png) served by the frontend.
const coverImages = 8

type (
	Course struct {
		ID              string    `json:"id"`
		Title           string    `json:"title"`
		Description     string    `json:"description"`
		Image           string    `json:"image"`
		TeacherID       string    `json:"teacher_id"`
		AcademicLevel   string    `json:"academic_level"`
		AcademicYear    int       `json:"academic_year"`
		Major           string    `json:"major"`
		Materials       string    `json:"materials"`
		Files           []File    `json:"files"`
		AnnouncementIDs []string  `json:"announcements"`
		CreatedAt       time.Time `json:"created_at"` // UTC
		UpdatedAt       time.Time `json:"updated_at"` // UTC
	}

	// File is a course material. Completion is keyed by student ID.
	File struct {
		ID          string                      `json:"id"`
		FileName    string                      `json:"file_name"`
		FileType    string                      `json:"file_type"`
		Size        int64                       `json:"size"`
		Description string                      `json:"description"`
		CreatedAt   time.Time                   `json:"created_at"`
		Completion  map[string]CompletionRecord `json:"completion_status"`
	}

	CompletionRecord struct {
		StudentID string    `json:"student_id"`
		Completed bool      `json:"completed"`
		MarkedAt  time.Time `json:"marked_at"`
	}
)

func (c Course) Cohort() authz.Cohort {
	return authz.Cohort{AcademicLevel: c.AcademicLevel, AcademicYear: c.AcademicYear, Major: c.Major}
}

// Resource returns the authorization view of the course.
func (c Course) Resource() authz.Resource {
	return authz.Resource{Kind: authz.ResourceCourse, OwnerID: c.TeacherID, Cohorts: []authz.Cohort{c.Cohort()}}
}

// FileResource returns the authorization view of one of the course files.
func (c Course) FileResource() authz.Resource {
	r := c.Resource()
	r.Kind = authz.ResourceFile
	return r
}

// File returns the course file with fileID.
func (c Course) File(fileID string) (File, bool) {
	for _, f := range c.Files {
		if f.ID == fileID {
			return f, true
		}
	}
	return File{}, false
}

// VisibleTo returns a copy of c whose file completion only holds studentID's records.
func (c Course) VisibleTo(studentID string) Course {
	files := make([]File, len(c.Files))
	for i, f := range c.Files {
		completion := make(map[string]CompletionRecord, 1)
		if rec, ok := f.Completion[studentID]; ok {
			completion[studentID] = rec
		}
		f.Completion = completion
		files[i] = f
	}
	c.Files = files
	return c
}

// FileKey is the file storage key of a course material.
func FileKey(courseID, fileID string) string {
	return "courses/" + courseID + "/files/" + fileID
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title         string `json:"title" validate:"required,notblank_,max=200"`
	Description   string `json:"description" validate:"max=5000"`
	Image         string `json:"image" validate:"omitempty,max=200"`
	AcademicLevel string `json:"academic_level" validate:"required,oneof=bachelor master"`
	AcademicYear  int    `json:"academic_year" validate:"required,min=1,max=5"`
	Major         string `json:"major" validate:"required_if=AcademicLevel master,omitempty,oneof=control computer power telecom"`
	Materials     string `json:"materials" validate:"max=5000"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Image = core.CleanString(nc.Image)
	nc.AcademicLevel = core.CleanString(nc.AcademicLevel, true /* lower */)
	nc.Major = core.CleanString(nc.Major, true /* lower */)
	nc.Materials = core.CleanString(nc.Materials)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Omitted fields are left unchanged.
type UpdateCourse struct {
	Title         *string `json:"title" validate:"omitempty,notblank_,max=200"`
	Description   *string `json:"description" validate:"omitempty,max=5000"`
	Image         *string `json:"image" validate:"omitempty,max=200"`
	AcademicLevel *string `json:"academic_level" validate:"omitempty,oneof=bachelor master"`
	AcademicYear  *int    `json:"academic_year" validate:"omitempty,min=1,max=5"`
	Major         *string `json:"major" validate:"omitempty,oneof=control computer power telecom"`
	Materials     *string `json:"materials" validate:"omitempty,max=5000"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	clean := func(s *string, lower ...bool) {
		if s != nil {
			*s = core.CleanString(*s, lower...)
		}
	}
	clean(uc.Title)
	clean(uc.Description)
	clean(uc.Image)
	clean(uc.AcademicLevel, true /* lower */)
	clean(uc.Major, true /* lower */)
	clean(uc.Materials)
	return validate.Struct(uc)
}

// Apply returns c updated with the provided fields.
func (uc UpdateCourse) Apply(c Course) Course {
	if uc.Title != nil && *uc.Title != "" {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Image != nil && *uc.Image != "" {
		c.Image = *uc.Image
	}
	if uc.AcademicLevel != nil && *uc.AcademicLevel != "" {
		c.AcademicLevel = *uc.AcademicLevel
	}
	if uc.AcademicYear != nil && *uc.AcademicYear != 0 {
		c.AcademicYear = *uc.AcademicYear
	}
	if uc.Major != nil {
		c.Major = *uc.Major
	}
	if uc.Materials != nil {
		c.Materials = *uc.Materials
	}
	return c
}

// NewFile contains the metadata of an uploaded course material.
type NewFile struct {
	Description string `form:"description" validate:"max=1000"`
}
