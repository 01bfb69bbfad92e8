// Package authz defines the course platform authorization policy.
//
// Handlers call Engine.Authorize before acting on a loaded resource and
// Engine.VisibilityFilter before listing, instead of duplicating role,
// ownership and cohort checks. Decisions are pure functions of their inputs.
package authz

import (
	"fmt"

	"github.com/pkg/errors"
)

// Action is an operation a principal attempts on a resource.
type Action string

const (
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionGrade        Action = "grade"
	ActionMarkComplete Action = "mark-complete"
	ActionUpload       Action = "upload"
)

// ResourceKind identifies the type of resource an action targets.
type ResourceKind string

const (
	ResourceCourse       ResourceKind = "course"
	ResourceAnnouncement ResourceKind = "announcement"
	ResourceAssignment   ResourceKind = "assignment"
	ResourceSubmission   ResourceKind = "submission"
	ResourceFile         ResourceKind = "file"
	ResourceUserList     ResourceKind = "user-list" // the user directory
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Cohort is the (academic level, academic year, major) tuple students are enrolled by.
type Cohort struct {
	AcademicLevel string `json:"academic_level"`
	AcademicYear  int    `json:"academic_year"`
	Major         string `json:"major"`
}

func (c Cohort) IsZero() bool { return c == Cohort{} }

func (c Cohort) Matches(other Cohort) bool { return c == other }

func (c Cohort) String() string {
	if c.Major == "" {
		return fmt.Sprintf("%s/%d", c.AcademicLevel, c.AcademicYear)
	}
	return fmt.Sprintf("%s/%d/%s", c.AcademicLevel, c.AcademicYear, c.Major)
}

// Principal is the actor of a request. The zero Principal is anonymous.
type Principal struct {
	ID     string
	Role   Role
	Cohort Cohort
	Group  string
}

func (p Principal) IsAnonymous() bool { return p.ID == "" }
func (p Principal) IsTeacher() bool   { return !p.IsAnonymous() && p.Role == RoleTeacher }
func (p Principal) IsStudent() bool   { return !p.IsAnonymous() && p.Role == RoleStudent }

// Resource is the authorization view of a target resource.
//
// OwnerID is the owning teacher: the course teacher, the announcement author,
// the assignment teacher, or the parent assignment's teacher for a submission.
// When creating an assignment the view is the parent course's.
// Cohorts holds the cohorts entitled to read the resource (the cohorts of the
// referenced courses for an announcement). StudentID is only set on submissions.
type Resource struct {
	Kind      ResourceKind
	OwnerID   string
	Cohorts   []Cohort
	StudentID string
}

func (r Resource) matchesCohort(c Cohort) bool {
	for _, rc := range r.Cohorts {
		if rc.Matches(c) {
			return true
		}
	}
	return false
}

// Reason codes
const (
	ReasonAllowRole          = "ROLE"
	ReasonAllowOwner         = "OWNER"
	ReasonAllowCohort        = "COHORT"
	ReasonAllowPublicCatalog = "PUBLIC_CATALOG"

	ReasonDenyUnauthenticated = "UNAUTHENTICATED"
	ReasonDenyRoleRequired    = "ROLE_REQUIRED"
	ReasonDenyOwnerMismatch   = "OWNER_MISMATCH"
	ReasonDenyCohortMismatch  = "COHORT_MISMATCH"
	ReasonDenyNoMatchingRule  = "NO_MATCHING_RULE"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed    bool
	ReasonCode string
}

func allow(reason string) Decision { return Decision{Allowed: true, ReasonCode: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, ReasonCode: reason} }

// Err returns nil for an allowed decision and a *DenyError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DenyError{Reason: d.ReasonCode}
}

// DenyError carries a denied decision to the transport layer.
type DenyError struct {
	Reason string
}

func (e DenyError) Error() string {
	return "permission denied: " + e.Reason
}

// ErrMissingField is matched by every *MissingFieldError.
var ErrMissingField = errors.New("missing resource field")

// MissingFieldError reports a resource view lacking a field the matched rule needs.
type MissingFieldError struct {
	Kind  ResourceKind
	Field string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s resource: %s", ErrMissingField, e.Kind, e.Field)
}

func (e MissingFieldError) Is(target error) bool { return target == ErrMissingField }
